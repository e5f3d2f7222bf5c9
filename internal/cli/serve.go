package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sluicedb/sluice/internal/gate"
	"github.com/sluicedb/sluice/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Database string
	RulesDir string
	Interval time.Duration

	// TokenGenerator allows overriding the pass token generator (for
	// testing). If nil, defaults to UUIDv7Generator.
	TokenGenerator gate.PassTokenGenerator
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the integration gate continuously",
		Long: `Run the integration gate continuously.

Opens the database, loads the rule set, and drives the gate from a
scheduler: an initial run catches anything already eligible, a periodic
tick provides liveness, and each productive run immediately re-triggers
so dependency chains converge without waiting for the next tick.

Example:
  sluice serve --db ./sluice.db
  sluice serve --db ./sluice.db --rules ./rules --interval 5s`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.RulesDir, "rules", "", "directory of CUE rule files (default: built-in rules)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 30*time.Second, "periodic gate run interval (0 disables)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	configureLogging(opts.RootOptions)

	slog.Info("loading rules", "dir", opts.RulesDir)
	rules, err := RuleSetFromDir(opts.RulesDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load rules", err)
	}
	slog.Info("rules loaded", "count", rules.Len())

	slog.Info("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database ready")

	var gateOpts []gate.Option
	if opts.TokenGenerator != nil {
		gateOpts = append(gateOpts, gate.WithTokenGenerator(opts.TokenGenerator))
	}
	g := gate.New(st, rules, gateOpts...)
	sched := gate.NewScheduler(g, gate.WithInterval(opts.Interval))

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	slog.Info("gate serving", "db", opts.Database, "interval", opts.Interval)
	fmt.Fprintln(cmd.OutOrStdout(), "Gate started. Integrating on trigger.")
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "gate error", err)
	}

	slog.Info("gate stopped gracefully")
	return nil
}
