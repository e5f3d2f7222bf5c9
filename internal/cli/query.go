package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sluicedb/sluice/internal/op"
	"github.com/sluicedb/sluice/internal/query"
	"github.com/sluicedb/sluice/internal/store"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Database   string
	Type       string
	Status     string
	Origin     string
	Action     string
	Integrated bool
	Awaiting   bool
	Limit      int
}

// QueryRow is one op in a query result. Lifecycle columns are
// pointers because they are NULL until the relevant transition.
type QueryRow struct {
	Hash             string `json:"hash"`
	Type             string `json:"type"`
	Action           string `json:"action"`
	Dependency       string `json:"dependency,omitempty"`
	Origin           string `json:"origin"`
	Seq              int64  `json:"seq"`
	ValidationStatus string `json:"validation_status,omitempty"`
	ValidationStage  *int64 `json:"validation_stage,omitempty"`
	WhenIntegrated   *int64 `json:"when_integrated,omitempty"`
}

// QueryResult is the JSON shape of a query report.
type QueryResult struct {
	Count int        `json:"count"`
	Ops   []QueryRow `json:"ops"`
}

func (r QueryResult) String() string {
	if r.Count == 0 {
		return "No ops matched"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d op(s)", r.Count)
	for _, row := range r.Ops {
		fmt.Fprintf(&b, "\n  %.12s  %-14s %s  %s", row.Hash, row.Type, row.Action, rowState(row))
	}
	return b.String()
}

// rowState renders the lifecycle position of one row.
func rowState(row QueryRow) string {
	switch {
	case row.WhenIntegrated != nil:
		return "integrated"
	case row.ValidationStage != nil && op.Stage(*row.ValidationStage) == op.StageAwaitingIntegration:
		return "awaiting"
	case row.ValidationStatus != "":
		return row.ValidationStatus
	default:
		return "pending"
	}
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "List ops matching column filters",
		Long: `List ops matching column filters.

Filters combine with AND. Results are ordered by sequence number,
then hash, so the same query always lists rows in the same order.

Example:
  sluice query --db ./sluice.db --type delete-link
  sluice query --db ./sluice.db --integrated --limit 20
  sluice query --db ./sluice.db --awaiting --origin node-1`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Type, "type", "", "filter by op type")
	cmd.Flags().StringVar(&opts.Status, "status", "", "filter by validation status")
	cmd.Flags().StringVar(&opts.Origin, "origin", "", "filter by origin")
	cmd.Flags().StringVar(&opts.Action, "action", "", "filter by action reference")
	cmd.Flags().BoolVar(&opts.Integrated, "integrated", false, "only integrated ops")
	cmd.Flags().BoolVar(&opts.Awaiting, "awaiting", false, "only ops awaiting integration")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum rows to return (0 = all)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runQuery(opts *QueryOptions, cmd *cobra.Command) error {
	configureLogging(opts.RootOptions)

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	filter, err := buildFilter(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid query", err)
	}

	sqlText, params, err := query.Compile(filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid query", err)
	}
	slog.Debug("compiled query", "sql", sqlText)

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

	result, err := collectRows(ctx, st, sqlText, params)
	if err != nil {
		return WrapExitError(ExitFailure, "query failed", err)
	}

	return formatter.Success(result)
}

// buildFilter translates command flags into a filter. The column list
// is fixed: the CLI always reads the full row.
func buildFilter(opts *QueryOptions) (query.Filter, error) {
	var preds []query.Predicate
	if opts.Type != "" {
		preds = append(preds, query.Equals{Column: "type", Value: opts.Type})
	}
	if opts.Status != "" {
		if !op.ValidStatuses[op.ValidationStatus(opts.Status)] {
			return query.Filter{}, fmt.Errorf("unknown status %q", opts.Status)
		}
		preds = append(preds, query.Equals{Column: "validation_status", Value: opts.Status})
	}
	if opts.Origin != "" {
		preds = append(preds, query.Equals{Column: "origin", Value: opts.Origin})
	}
	if opts.Action != "" {
		preds = append(preds, query.Equals{Column: "action", Value: opts.Action})
	}
	if opts.Integrated {
		preds = append(preds, query.NotNull{Column: "when_integrated"})
	}
	if opts.Awaiting {
		preds = append(preds, query.Equals{Column: "validation_stage", Value: int64(op.StageAwaitingIntegration)})
	}

	f := query.Filter{
		Columns: []string{
			"hash", "type", "action", "dependency", "origin", "seq",
			"validation_status", "validation_stage", "when_integrated",
		},
		Limit: opts.Limit,
	}
	if len(preds) > 0 {
		f.Where = query.And{Predicates: preds}
	}
	return f, nil
}

// collectRows executes the compiled statement and scans the rows.
func collectRows(ctx context.Context, st *store.Store, sqlText string, params []any) (QueryResult, error) {
	rows, err := st.Query(ctx, sqlText, params...)
	if err != nil {
		return QueryResult{}, err
	}
	defer rows.Close()

	result := QueryResult{Ops: []QueryRow{}}
	for rows.Next() {
		var (
			row        QueryRow
			dependency sql.NullString
			status     sql.NullString
			stage      sql.NullInt64
			integrated sql.NullInt64
		)
		if err := rows.Scan(
			&row.Hash, &row.Type, &row.Action, &dependency, &row.Origin,
			&row.Seq, &status, &stage, &integrated,
		); err != nil {
			return QueryResult{}, err
		}
		row.Dependency = dependency.String
		row.ValidationStatus = status.String
		if stage.Valid {
			v := stage.Int64
			row.ValidationStage = &v
		}
		if integrated.Valid {
			v := integrated.Int64
			row.WhenIntegrated = &v
		}
		result.Ops = append(result.Ops, row)
	}
	if err := rows.Err(); err != nil {
		return QueryResult{}, err
	}

	result.Count = len(result.Ops)
	return result, nil
}
