package cli

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sluicedb/sluice/internal/gate"
	"github.com/sluicedb/sluice/internal/store"
)

// IntegrateOptions holds flags for the integrate command.
type IntegrateOptions struct {
	*RootOptions
	Database string
	RulesDir string
}

// IntegrateSummary is the JSON shape of an integrate run.
type IntegrateSummary struct {
	PassToken string              `json:"pass_token"`
	Passes    int                 `json:"passes"`
	Promoted  map[string][]string `json:"promoted,omitempty"`
	Total     int                 `json:"total"`
}

func (s IntegrateSummary) String() string {
	if s.Total == 0 {
		return "Nothing to integrate"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Integrated %d op(s) in %d pass(es)\n", s.Total, s.Passes)

	types := make([]string, 0, len(s.Promoted))
	for typ := range s.Promoted {
		types = append(types, typ)
	}
	sort.Strings(types)
	for _, typ := range types {
		fmt.Fprintf(&b, "  %s: %d", typ, len(s.Promoted[typ]))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewIntegrateCommand creates the integrate command.
func NewIntegrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IntegrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "integrate",
		Short: "Run the integration gate to a fixed point",
		Long: `Run the integration gate to a fixed point.

Promotes every validated op whose dependency is already integrated,
repeating until a full pass over the rule set promotes nothing. Safe to
run repeatedly; a run with no eligible ops is a no-op.

Example:
  sluice integrate --db ./sluice.db
  sluice integrate --db ./sluice.db --rules ./rules`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIntegrate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.RulesDir, "rules", "", "directory of CUE rule files (default: built-in rules)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runIntegrate(opts *IntegrateOptions, cmd *cobra.Command) error {
	configureLogging(opts.RootOptions)

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	rules, err := RuleSetFromDir(opts.RulesDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load rules", err)
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

	report, err := gate.New(st, rules).IntegrateAll(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "integration failed", err)
	}

	return formatter.Success(summarizeReport(report))
}

// summarizeReport converts a gate report into its CLI output shape.
func summarizeReport(report gate.Report) IntegrateSummary {
	summary := IntegrateSummary{
		PassToken: report.PassToken,
		Passes:    report.Passes,
		Total:     report.Total(),
	}
	if len(report.Promoted) > 0 {
		summary.Promoted = make(map[string][]string, len(report.Promoted))
		for typ, hashes := range report.Promoted {
			summary.Promoted[string(typ)] = hashes
		}
	}
	return summary
}
