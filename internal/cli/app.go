package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/biblemarker/biblemarker/internal/config"
	"github.com/biblemarker/biblemarker/internal/state"
	"github.com/biblemarker/biblemarker/internal/store"
	"github.com/biblemarker/biblemarker/internal/syncfolder"
)

// App holds the services one command invocation works with.
type App struct {
	Config    config.Config
	Logger    *slog.Logger
	Store     *store.Store
	Studies   *state.StudyStore
	Contrasts *state.ContrastStore
}

// loadConfig reads the config file and environment, then applies flags.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.DatabasePath = opts.Database
	}
	if opts.Verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// newLogger builds the text logger written to the command's stderr.
func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	level, err := cfg.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// openApp loads config, opens the database and hydrates both stores.
func openApp(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*App, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	logger.Debug("opening database", "path", cfg.DatabasePath)
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	common := []state.Option{state.WithLogger(logger)}
	if opts.Clock != nil {
		common = append(common, state.WithClock(opts.Clock))
	}
	if opts.IDs != nil {
		common = append(common, state.WithIDGenerator(opts.IDs))
	}
	studyOpts := append(append([]state.Option{}, common...), state.WithSnapshots(st))

	app := &App{
		Config:    cfg,
		Logger:    logger,
		Store:     st,
		Studies:   state.NewStudyStore(st, studyOpts...),
		Contrasts: state.NewContrastStore(st, common...),
	}

	if err := app.load(ctx); err != nil {
		app.Close()
		return nil, WrapExitError(ExitFailure, "failed to load stores", err)
	}
	return app, nil
}

// load hydrates the stores. The active id from Restore is replaced by the one
// LoadStudies derives from the records; restoring first means the snapshot is
// rewritten only when the two disagree.
func (a *App) load(ctx context.Context) error {
	if err := a.Studies.Restore(ctx); err != nil {
		return err
	}
	if err := a.Studies.LoadStudies(ctx); err != nil {
		return err
	}
	return a.Contrasts.LoadContrasts(ctx)
}

// Close closes the database, logging any error.
func (a *App) Close() {
	if err := a.Store.Close(); err != nil {
		a.Logger.Error("error closing database", "error", err)
	}
}

// SyncService opens the configured backend and wires a sync service to the
// app's stores. A backend that cannot be opened yields a service without a
// backend (reporting unavailable) together with the open error.
func (a *App) SyncService(ctx context.Context, opts *RootOptions) (*syncfolder.Service, error) {
	backend, openErr := syncfolder.OpenBackend(ctx, a.Config.Sync)
	if openErr != nil {
		a.Logger.Warn("sync folder unavailable", "driver", a.Config.Sync.Driver, "error", openErr)
		backend = nil
		if !errors.Is(openErr, syncfolder.ErrUnavailable) {
			openErr = errors.Join(syncfolder.ErrUnavailable, openErr)
		}
	}

	svcOpts := []syncfolder.Option{syncfolder.WithLogger(a.Logger)}
	if opts.Clock != nil {
		svcOpts = append(svcOpts, syncfolder.WithClock(opts.Clock))
	}
	svc, err := syncfolder.NewService(backend, a.Store, a.Studies, a.Contrasts, svcOpts...)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to create sync service", err)
	}
	return svc, openErr
}
