package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/biblemarker/biblemarker/internal/config"
	"github.com/biblemarker/biblemarker/internal/store"
	"github.com/biblemarker/biblemarker/internal/syncfolder"
)

// SyncOptions holds flags for the sync commands.
type SyncOptions struct {
	*RootOptions
	Yes         bool          // reset-local confirmation
	Debounce    time.Duration // watch override
	PullOnStart bool
}

// StatusReport is the output of sync status: the folder's state plus the
// record counts of the local database.
type StatusReport struct {
	syncfolder.SyncStatus
	Local store.Counts `json:"local"`
}

// SyncListing is the output of sync ls.
type SyncListing struct {
	Location string             `json:"location"`
	Entries  []syncfolder.Entry `json:"entries"`
}

// ResetResult is the output of sync reset-local.
type ResetResult struct {
	Removed []string `json:"removed"`
}

// NewSyncCommand creates the sync command group.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync studies and contrasts through a shared folder",
		Long: `Push and pull the local database through a sync folder.

The folder is a directory (driver fs, for example inside an iCloud
container) or an S3 bucket prefix (driver s3). Both collections travel in
one JSON bundle; pulls merge by last update time and keep local-only records.

Configure the folder with --config or BIBLEMARKER_SYNC_* variables:
  BIBLEMARKER_SYNC_DRIVER=fs BIBLEMARKER_SYNC_DIR=~/Sync biblemarker sync push`,
	}

	cmd.AddCommand(newSyncStatusCommand(rootOpts))
	cmd.AddCommand(newSyncPushCommand(rootOpts))
	cmd.AddCommand(newSyncPullCommand(rootOpts))
	cmd.AddCommand(newSyncListCommand(rootOpts))
	cmd.AddCommand(newSyncTestWriteCommand(rootOpts))
	cmd.AddCommand(newSyncWatchCommand(rootOpts))
	cmd.AddCommand(newSyncResetLocalCommand(rootOpts))

	return cmd
}

// withSync opens the app and its sync service, runs fn and closes the app.
// A backend that cannot be opened is an error unless allowUnavailable.
func withSync(cmd *cobra.Command, opts *RootOptions, allowUnavailable bool, fn func(*App, *syncfolder.Service, error) error) error {
	app, err := openApp(cmd.Context(), opts, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	svc, openErr := app.SyncService(cmd.Context(), opts)
	if svc == nil {
		return openErr
	}
	if openErr != nil && !allowUnavailable {
		return storeError("sync folder unavailable", openErr)
	}
	return fn(app, svc, openErr)
}

func newSyncStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync state, last sync and pending changes",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSync(cmd, rootOpts, true, func(app *App, svc *syncfolder.Service, openErr error) error {
				report := StatusReport{SyncStatus: svc.Status(cmd.Context())}
				if openErr != nil {
					report.Error = openErr.Error()
				}
				counts, err := app.Store.Counts(cmd.Context())
				if err != nil {
					return WrapExitError(ExitFailure, "failed to count local records", err)
				}
				report.Local = counts
				return formatterFor(rootOpts, cmd).Result(report, renderSyncStatus(report))
			})
		},
	}
}

func newSyncPushCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Write every study and contrast to the sync folder",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSync(cmd, rootOpts, false, func(_ *App, svc *syncfolder.Service, _ error) error {
				res, err := svc.Push(cmd.Context())
				if err != nil {
					return storeError("push failed", err)
				}
				text := fmt.Sprintf("Pushed %d studies and %d contrasts to %s\n",
					res.Studies, res.Contrasts, svc.Backend().Location())
				return formatterFor(rootOpts, cmd).Result(res, text)
			})
		},
	}
}

func newSyncPullCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Merge the sync folder's bundle into the local database",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSync(cmd, rootOpts, false, func(_ *App, svc *syncfolder.Service, _ error) error {
				res, err := svc.Pull(cmd.Context())
				if err != nil {
					return storeError("pull failed", err)
				}
				return formatterFor(rootOpts, cmd).Result(res, renderPullResult(res))
			})
		},
	}
}

func newSyncListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List files in the sync folder",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSync(cmd, rootOpts, false, func(_ *App, svc *syncfolder.Service, _ error) error {
				entries, err := svc.List(cmd.Context())
				if err != nil {
					return storeError("list failed", err)
				}
				if entries == nil {
					entries = []syncfolder.Entry{}
				}
				listing := SyncListing{Location: svc.Backend().Location(), Entries: entries}
				return formatterFor(rootOpts, cmd).Result(listing, renderSyncListing(listing))
			})
		},
	}
}

func newSyncTestWriteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "test-write",
		Short: "Write, read back and delete a test file in the sync folder",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSync(cmd, rootOpts, false, func(_ *App, svc *syncfolder.Service, _ error) error {
				if err := svc.TestWrite(cmd.Context()); err != nil {
					return storeError("test write failed", err)
				}
				avail := svc.Check(cmd.Context())
				return formatterFor(rootOpts, cmd).Result(avail, fmt.Sprintf("Sync folder writable: %s\n", avail.Location))
			})
		},
	}
}

func newSyncWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Pull whenever the sync folder's bundle changes",
		Long: `Watch the sync folder and pull each time another device writes the
bundle. Only the fs driver can be watched. Runs until interrupted.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSync(cmd, rootOpts, false, func(app *App, svc *syncfolder.Service, _ error) error {
				return runWatch(cmd, opts, app, svc)
			})
		},
	}

	cmd.Flags().DurationVar(&opts.Debounce, "debounce", 0, "wait this long after the last change (default from config)")
	cmd.Flags().BoolVar(&opts.PullOnStart, "pull-on-start", true, "pull once before watching")
	return cmd
}

func runWatch(cmd *cobra.Command, opts *SyncOptions, app *App, svc *syncfolder.Service) error {
	if app.Config.Sync.Driver != config.DriverFS {
		return NewExitError(ExitCommandError, fmt.Sprintf("sync watch requires the fs driver, configured: %q", app.Config.Sync.Driver))
	}
	dir, err := syncfolder.ResolveFolder(app.Config.Sync)
	if err != nil {
		return storeError("sync folder unavailable", err)
	}

	// Setup signal handling for graceful shutdown
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.PullOnStart {
		if _, err := svc.Pull(ctx); err != nil && !errors.Is(err, syncfolder.ErrNotExist) {
			return storeError("initial pull failed", err)
		}
	}

	debounce := app.Config.Sync.Debounce
	if opts.Debounce > 0 {
		debounce = opts.Debounce
	}
	w, err := syncfolder.NewWatcher(dir, func(ctx context.Context) error {
		_, err := svc.Pull(ctx)
		return err
	}, syncfolder.WithDebounce(debounce), syncfolder.WithWatcherLogger(app.Logger))
	if err != nil {
		return WrapExitError(ExitFailure, "failed to create watcher", err)
	}
	if err := w.Start(ctx); err != nil {
		_ = w.Stop()
		return storeError("failed to watch sync folder", err)
	}

	app.Logger.Info("watching sync folder", "dir", dir, "debounce", debounce)
	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s. Press Ctrl-C to stop.\n", dir)

	select {
	case <-ctx.Done():
	case <-w.Done():
	}
	if err := w.Stop(); err != nil {
		app.Logger.Warn("error stopping watcher", "error", err)
	}

	app.Logger.Info("watch stopped", "pulls", w.Fired())
	return nil
}

func newSyncResetLocalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reset-local",
		Short: "Delete the local database so the next pull starts fresh",
		Long: `Delete the local SQLite database and its -wal and -shm files.

The sync folder is not touched. Run "biblemarker sync pull" afterwards to
rebuild the local database from the folder. Requires --yes.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !opts.Yes {
				return NewExitError(ExitCommandError, "reset-local deletes the local database; pass --yes to confirm")
			}
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}

			removed, err := syncfolder.DeleteLocalDatabase(cfg.DatabasePath)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to delete local database", err)
			}
			if removed == nil {
				removed = []string{}
			}

			text := "Nothing to delete.\n"
			if len(removed) > 0 {
				text = "Deleted " + strings.Join(removed, ", ") + "\n"
			}
			return formatterFor(rootOpts, cmd).Result(ResetResult{Removed: removed}, text)
		},
	}

	cmd.Flags().BoolVar(&opts.Yes, "yes", false, "confirm deletion")
	return cmd
}

func renderSyncStatus(s StatusReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "State:           %s\n", s.State)
	if s.Location != "" {
		fmt.Fprintf(&b, "Location:        %s\n", s.Location)
	}
	if s.LastSync != nil {
		fmt.Fprintf(&b, "Last sync:       %s\n", s.LastSync.Format(time.RFC3339))
	} else {
		fmt.Fprintln(&b, "Last sync:       never")
	}
	fmt.Fprintf(&b, "Pending changes: %d\n", s.PendingChanges)
	fmt.Fprintf(&b, "Local records:   %d studies, %d contrasts\n", s.Local.Studies, s.Local.Contrasts)
	if s.Error != "" {
		fmt.Fprintf(&b, "Error:           %s\n", s.Error)
	}
	return b.String()
}

func renderPullResult(r syncfolder.PullResult) string {
	out := fmt.Sprintf("Pulled studies: %d applied, %d unchanged\nPulled contrasts: %d applied, %d unchanged\n",
		r.StudiesApplied, r.StudiesSkipped, r.ContrastsApplied, r.ContrastsSkipped)
	if r.ActiveStudyChanged {
		out += "Active study updated from the sync folder\n"
	}
	return out
}

func renderSyncListing(l SyncListing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", l.Location)
	if len(l.Entries) == 0 {
		b.WriteString("  (empty)\n")
		return b.String()
	}
	for _, e := range l.Entries {
		fmt.Fprintf(&b, "  %-32s %8d  %s\n", e.Name, e.Size, e.ModTime.Format(time.RFC3339))
	}
	return b.String()
}
