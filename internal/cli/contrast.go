package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/biblemarker/biblemarker/internal/domain"
	"github.com/biblemarker/biblemarker/internal/state"
)

// ContrastOptions holds flags for the contrast commands.
type ContrastOptions struct {
	*RootOptions
	ItemA        string
	ItemB        string
	Verse        string // "Book chapter:verse"
	Book         string
	Notes        string
	PresetID     string
	AnnotationID string
}

// ContrastList is the output of contrast list.
type ContrastList struct {
	Contrasts []domain.Contrast `json:"contrasts"`
}

// NewContrastCommand creates the contrast command group.
func NewContrastCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contrast",
		Short: "Manage verse contrasts",
		Long: `Record, query and edit contrasts: two compared items anchored to a verse.

Verses are written "Book chapter:verse", for example "John 3:16" or
"1 Corinthians 13:4".

Examples:
  biblemarker contrast create light darkness --verse "John 1:5"
  biblemarker contrast list --verse "John 1:5"
  biblemarker contrast list --book John --format json`,
	}

	cmd.AddCommand(newContrastListCommand(rootOpts))
	cmd.AddCommand(newContrastShowCommand(rootOpts))
	cmd.AddCommand(newContrastCreateCommand(rootOpts))
	cmd.AddCommand(newContrastUpdateCommand(rootOpts))
	cmd.AddCommand(newContrastDeleteCommand(rootOpts))

	return cmd
}

func newContrastListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ContrastOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contrasts, optionally for one verse or book",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Verse != "" && opts.Book != "" {
				return NewExitError(ExitCommandError, "--verse and --book are mutually exclusive")
			}

			var ref domain.VerseRef
			if opts.Verse != "" {
				var err error
				if ref, err = domain.ParseVerseRef(opts.Verse); err != nil {
					return storeError("invalid --verse", err)
				}
			}

			app, err := openApp(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			var contrasts []domain.Contrast
			switch {
			case opts.Verse != "":
				contrasts = app.Contrasts.GetContrastsByVerse(ref)
			case opts.Book != "":
				contrasts = app.Contrasts.GetContrastsByBook(opts.Book)
			default:
				contrasts = app.Contrasts.Contrasts()
			}

			list := ContrastList{Contrasts: contrasts}
			return formatterFor(rootOpts, cmd).Result(list, renderContrastList(list))
		},
	}

	cmd.Flags().StringVar(&opts.Verse, "verse", "", `only contrasts on this verse, e.g. "John 3:16"`)
	cmd.Flags().StringVar(&opts.Book, "book", "", "only contrasts in this book (exact name)")
	return cmd
}

func newContrastShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one contrast",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			c, ok := app.Contrasts.GetContrast(args[0])
			if !ok {
				return storeError("failed to show contrast", fmt.Errorf("contrast %s: %w", args[0], state.ErrNotFound))
			}
			return formatterFor(rootOpts, cmd).Result(c, renderContrastDetail(c))
		},
	}
}

func newContrastCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ContrastOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create <item-a> <item-b>",
		Short: "Record a contrast on a verse",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := domain.ParseVerseRef(opts.Verse)
			if err != nil {
				return storeError("invalid --verse", err)
			}

			app, err := openApp(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			c, err := app.Contrasts.CreateContrast(cmd.Context(), state.ContrastInput{
				ItemA:        args[0],
				ItemB:        args[1],
				VerseRef:     ref,
				Notes:        opts.Notes,
				PresetID:     opts.PresetID,
				AnnotationID: opts.AnnotationID,
			})
			if err != nil {
				return storeError("failed to create contrast", err)
			}
			return formatterFor(rootOpts, cmd).Result(c, "Created "+renderContrast(c))
		},
	}

	cmd.Flags().StringVar(&opts.Verse, "verse", "", `verse the contrast is anchored to, e.g. "John 3:16" (required)`)
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "free-form notes")
	cmd.Flags().StringVar(&opts.PresetID, "preset", "", "preset the contrast was created from")
	cmd.Flags().StringVar(&opts.AnnotationID, "annotation", "", "linked annotation id")
	return cmd
}

func newContrastUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ContrastOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a contrast. Only the given flags change",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			current, ok := app.Contrasts.GetContrast(args[0])
			if !ok {
				return storeError("failed to update contrast", fmt.Errorf("contrast %s: %w", args[0], state.ErrNotFound))
			}
			flags := cmd.Flags()
			if flags.Changed("item-a") {
				current.ItemA = opts.ItemA
			}
			if flags.Changed("item-b") {
				current.ItemB = opts.ItemB
			}
			if flags.Changed("verse") {
				ref, err := domain.ParseVerseRef(opts.Verse)
				if err != nil {
					return storeError("invalid --verse", err)
				}
				current.VerseRef = ref
			}
			if flags.Changed("notes") {
				current.Notes = opts.Notes
			}
			if flags.Changed("preset") {
				current.PresetID = opts.PresetID
			}
			if flags.Changed("annotation") {
				current.AnnotationID = opts.AnnotationID
			}

			c, err := app.Contrasts.UpdateContrast(cmd.Context(), current)
			if err != nil {
				return storeError("failed to update contrast", err)
			}
			return formatterFor(rootOpts, cmd).Result(c, "Updated "+renderContrast(c))
		},
	}

	cmd.Flags().StringVar(&opts.ItemA, "item-a", "", "first item")
	cmd.Flags().StringVar(&opts.ItemB, "item-b", "", "second item")
	cmd.Flags().StringVar(&opts.Verse, "verse", "", "new verse")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "notes (blank clears them)")
	cmd.Flags().StringVar(&opts.PresetID, "preset", "", "preset id")
	cmd.Flags().StringVar(&opts.AnnotationID, "annotation", "", "annotation id")
	return cmd
}

func newContrastDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a contrast",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Contrasts.DeleteContrast(cmd.Context(), args[0]); err != nil {
				return storeError("failed to delete contrast", err)
			}
			return formatterFor(rootOpts, cmd).Result(
				map[string]string{"deleted": args[0]},
				fmt.Sprintf("Deleted contrast %s\n", args[0]),
			)
		},
	}
}

// renderContrast formats one contrast as a line.
func renderContrast(c domain.Contrast) string {
	return fmt.Sprintf("%s  %s: %s vs %s\n", c.ID, c.VerseRef, c.ItemA, c.ItemB)
}

func renderContrastDetail(c domain.Contrast) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ID:      %s\n", c.ID)
	fmt.Fprintf(&b, "Verse:   %s\n", c.VerseRef)
	fmt.Fprintf(&b, "Items:   %s vs %s\n", c.ItemA, c.ItemB)
	if c.Notes != "" {
		fmt.Fprintf(&b, "Notes:   %s\n", c.Notes)
	}
	if c.PresetID != "" {
		fmt.Fprintf(&b, "Preset:  %s\n", c.PresetID)
	}
	if c.AnnotationID != "" {
		fmt.Fprintf(&b, "Annotation: %s\n", c.AnnotationID)
	}
	fmt.Fprintf(&b, "Created: %s\n", c.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Updated: %s\n", c.UpdatedAt.Format("2006-01-02 15:04:05"))
	return b.String()
}

func renderContrastList(list ContrastList) string {
	if len(list.Contrasts) == 0 {
		return "No contrasts.\n"
	}
	var b strings.Builder
	for _, c := range list.Contrasts {
		b.WriteString(renderContrast(c))
	}
	fmt.Fprintf(&b, "\n%d contrasts\n", len(list.Contrasts))
	return b.String()
}
