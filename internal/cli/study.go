package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/biblemarker/biblemarker/internal/domain"
	"github.com/biblemarker/biblemarker/internal/state"
)

// StudyOptions holds flags for the study commands.
type StudyOptions struct {
	*RootOptions
	Name   string
	Book   string
	Active bool
}

// StudyList is the output of study list.
type StudyList struct {
	ActiveStudyID string         `json:"active_study_id,omitempty"`
	Studies       []domain.Study `json:"studies"`
}

// ActiveStudy is the output of study active.
type ActiveStudy struct {
	Study *domain.Study `json:"study"`
}

// NewStudyCommand creates the study command group.
func NewStudyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "study",
		Short: "Manage studies",
		Long: `Create, update and delete studies, and choose the active study.

At most one study is active at a time. Activating a study deactivates every
other study.

Examples:
  biblemarker study create "Gospel of John" --book John
  biblemarker study activate <id>
  biblemarker study list --format json`,
	}

	cmd.AddCommand(newStudyListCommand(rootOpts))
	cmd.AddCommand(newStudyCreateCommand(rootOpts))
	cmd.AddCommand(newStudyUpdateCommand(rootOpts))
	cmd.AddCommand(newStudyActivateCommand(rootOpts))
	cmd.AddCommand(newStudyDeactivateCommand(rootOpts))
	cmd.AddCommand(newStudyDeleteCommand(rootOpts))
	cmd.AddCommand(newStudyActiveCommand(rootOpts))

	return cmd
}

func newStudyListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List studies in creation order",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			list := StudyList{
				ActiveStudyID: app.Studies.ActiveStudyID(),
				Studies:       app.Studies.Studies(),
			}
			return formatterFor(rootOpts, cmd).Result(list, renderStudyList(list))
		},
	}
}

func newStudyCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StudyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an inactive study",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			study, err := app.Studies.CreateStudy(cmd.Context(), args[0], opts.Book)
			if err != nil {
				return storeError("failed to create study", err)
			}
			return formatterFor(rootOpts, cmd).Result(study, "Created "+renderStudy(study, ""))
		},
	}

	cmd.Flags().StringVar(&opts.Book, "book", "", "book of the Bible the study covers")
	return cmd
}

func newStudyUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StudyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a study's name, book or active flag",
		Long: `Update a study. Only the given flags change.

Setting --active deactivates every other study; --active=false on the
active study leaves no study active.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			current, ok := app.Studies.GetStudy(args[0])
			if !ok {
				return storeError("failed to update study", fmt.Errorf("study %s: %w", args[0], state.ErrNotFound))
			}
			flags := cmd.Flags()
			if flags.Changed("name") {
				current.Name = opts.Name
			}
			if flags.Changed("book") {
				current.Book = opts.Book
			}
			if flags.Changed("active") {
				current.IsActive = opts.Active
			}

			study, err := app.Studies.UpdateStudy(cmd.Context(), current)
			if err != nil {
				return storeError("failed to update study", err)
			}
			return formatterFor(rootOpts, cmd).Result(study, "Updated "+renderStudy(study, app.Studies.ActiveStudyID()))
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "new name")
	cmd.Flags().StringVar(&opts.Book, "book", "", "new book (empty clears it)")
	cmd.Flags().BoolVar(&opts.Active, "active", false, "activate or deactivate the study")
	return cmd
}

func newStudyActivateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "activate <id>",
		Short: "Make a study the only active study",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			// The store deactivates everything for an unknown id; refuse it
			// here so a typo does not clear the active study.
			if _, ok := app.Studies.GetStudy(args[0]); !ok {
				return storeError("failed to activate study", fmt.Errorf("study %s: %w", args[0], state.ErrNotFound))
			}
			if err := app.Studies.SetActiveStudy(cmd.Context(), args[0]); err != nil {
				return storeError("failed to activate study", err)
			}
			return formatterFor(rootOpts, cmd).Result(
				ActiveStudy{Study: app.Studies.GetActiveStudy()},
				fmt.Sprintf("Active study: %s\n", args[0]),
			)
		},
	}
}

func newStudyDeactivateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate",
		Short: "Deactivate every study",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Studies.SetActiveStudy(cmd.Context(), ""); err != nil {
				return storeError("failed to deactivate studies", err)
			}
			return formatterFor(rootOpts, cmd).Result(ActiveStudy{}, "No active study\n")
		},
	}
}

func newStudyDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a study",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Studies.DeleteStudy(cmd.Context(), args[0]); err != nil {
				return storeError("failed to delete study", err)
			}
			return formatterFor(rootOpts, cmd).Result(
				map[string]string{"deleted": args[0]},
				fmt.Sprintf("Deleted study %s\n", args[0]),
			)
		},
	}
}

func newStudyActiveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "Show the active study",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			active := app.Studies.GetActiveStudy()
			text := "No active study\n"
			if active != nil {
				text = renderStudy(*active, active.ID)
			}
			return formatterFor(rootOpts, cmd).Result(ActiveStudy{Study: active}, text)
		},
	}
}

// formatterFor builds the output formatter for a command.
func formatterFor(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// renderStudy formats one study as a line, marking it when active.
func renderStudy(s domain.Study, activeID string) string {
	marker := " "
	if s.ID == activeID && activeID != "" {
		marker = "*"
	}
	line := fmt.Sprintf("%s %s  %s", marker, s.ID, s.Name)
	if s.Book != "" {
		line += fmt.Sprintf(" (%s)", s.Book)
	}
	return line + "\n"
}

func renderStudyList(list StudyList) string {
	if len(list.Studies) == 0 {
		return "No studies.\n"
	}
	var b strings.Builder
	for _, s := range list.Studies {
		b.WriteString(renderStudy(s, list.ActiveStudyID))
	}
	fmt.Fprintf(&b, "\n%d studies\n", len(list.Studies))
	return b.String()
}
