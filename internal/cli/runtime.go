package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/engine"
	"github.com/EmberAGI/arbitrum-vibekit-sub013/internal/store"
)

// runtime is an opened store plus the engine bound to it.
type runtime struct {
	profile *Profile
	store   *store.Store
	engine  *engine.Engine
}

// Close releases the database.
func (r *runtime) Close() {
	if err := r.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// setupLogging installs the process logger. Debug records are shown only
// with --verbose.
func setupLogging(verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// loadProfile returns the profile named by --config, or DefaultProfile.
func loadProfile(opts *RootOptions) (*Profile, error) {
	if opts.Config == "" {
		return DefaultProfile(), nil
	}
	p, err := LoadProfile(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid agent profile", err)
	}
	return p, nil
}

// openRuntime opens the database named by --db (creating it if needed) and
// an engine whose clock resumes after the stored checkpoints.
func openRuntime(opts *RootOptions, cmd *cobra.Command) (*runtime, error) {
	if opts.Database == "" {
		return nil, NewExitError(ExitCommandError, "no database: set --db or "+EnvDatabase)
	}

	profile, err := loadProfile(opts)
	if err != nil {
		return nil, err
	}
	cfg := profile.WorkflowConfig()

	slog.Debug("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database, store.WithRetention(cfg.Limits))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	logger := slog.Default()
	eng, err := engine.Open(commandContext(cmd), st, profile.NewCore(logger), engine.WithLogger(logger))
	if err != nil {
		_ = st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open engine", err)
	}

	return &runtime{profile: profile, store: st, engine: eng}, nil
}

// commandContext returns the command's context, or Background when the
// command runs without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
