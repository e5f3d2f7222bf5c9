package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sluicedb/sluice/internal/store"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Database string
	Check    bool
}

// StatusSummary is the JSON shape of a status report.
type StatusSummary struct {
	Pending    int64  `json:"pending"`
	Awaiting   int64  `json:"awaiting"`
	Integrated int64  `json:"integrated"`
	Rejected   int64  `json:"rejected"`
	Checked    bool   `json:"checked,omitempty"`
	Corrupt    string `json:"corrupt,omitempty"`
}

func (s StatusSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pending:    %d\n", s.Pending)
	fmt.Fprintf(&b, "Awaiting:   %d\n", s.Awaiting)
	fmt.Fprintf(&b, "Integrated: %d\n", s.Integrated)
	fmt.Fprintf(&b, "Rejected:   %d", s.Rejected)
	if s.Checked {
		if s.Corrupt != "" {
			fmt.Fprintf(&b, "\nIntegrity:  CORRUPT (%s)", s.Corrupt)
		} else {
			b.WriteString("\nIntegrity:  ok")
		}
	}
	return b.String()
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show op counts per lifecycle stage",
		Long: `Show op counts per lifecycle stage.

With --check, additionally scans for rows violating the integration
invariants (integrated rows that kept a stage or lack an accepted
status). Corruption is reported, never repaired.

Example:
  sluice status --db ./sluice.db
  sluice status --db ./sluice.db --check`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().BoolVar(&opts.Check, "check", false, "verify integration invariants")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	configureLogging(opts.RootOptions)

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	counts, err := st.CountStages(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to count stages", err)
	}

	summary := StatusSummary{
		Pending:    counts.Pending,
		Awaiting:   counts.Awaiting,
		Integrated: counts.Integrated,
		Rejected:   counts.Rejected,
	}

	if opts.Check {
		summary.Checked = true
		if err := st.VerifyIntegrity(ctx); err != nil {
			if !errors.Is(err, store.ErrCorrupt) {
				return WrapExitError(ExitFailure, "integrity check failed", err)
			}
			summary.Corrupt = err.Error()
			if outErr := formatter.Success(summary); outErr != nil {
				return outErr
			}
			return WrapExitError(ExitFailure, "integrity check found corrupt rows", err)
		}
	}

	return formatter.Success(summary)
}
