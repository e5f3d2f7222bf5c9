package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sluicedb/sluice/internal/op"
	"github.com/sluicedb/sluice/internal/store"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	Database string
}

// opBatch is the YAML shape of an ingest file.
type opBatch struct {
	Ops []batchOp `yaml:"ops"`
}

// batchOp is one op in an ingest batch. Hash is computed, never read.
// Status, when present, marks the op validated and awaiting integration.
type batchOp struct {
	Type       string `yaml:"type"`
	Action     string `yaml:"action"`
	Dependency string `yaml:"dependency,omitempty"`
	Origin     string `yaml:"origin"`
	Seq        int64  `yaml:"seq"`
	Status     string `yaml:"status,omitempty"`
}

// IngestSummary reports the outcome of an ingest run.
type IngestSummary struct {
	Written   int `json:"written"`
	Validated int `json:"validated"`
}

func (s IngestSummary) String() string {
	return fmt.Sprintf("Ingested %d op(s), %d validated", s.Written, s.Validated)
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest <batch-file>",
		Short: "Write a YAML batch of ops into the store",
		Long: `Write a YAML batch of ops into the store.

Each op's hash is computed from its content; re-ingesting a batch is a
no-op for ops already present. Ops carrying a status field are marked
validated and awaiting integration.

Example:
  sluice ingest --db ./sluice.db ./batch.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runIngest(opts *IngestOptions, batchPath string, cmd *cobra.Command) error {
	configureLogging(opts.RootOptions)

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	data, err := os.ReadFile(batchPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read batch file", err)
	}

	var batch opBatch
	if err := yaml.Unmarshal(data, &batch); err != nil {
		return WrapExitError(ExitCommandError, "failed to parse batch file", err)
	}
	if len(batch.Ops) == 0 {
		return NewExitError(ExitCommandError, "batch file declares no ops")
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

	summary := IngestSummary{}
	for i, entry := range batch.Ops {
		o, err := op.New(op.Type(entry.Type), entry.Action, entry.Dependency, entry.Origin, entry.Seq)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("invalid op at index %d", i), err)
		}

		if err := st.WriteOp(ctx, o); err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("writing op %s", o.Hash), err)
		}
		summary.Written++
		formatter.VerboseLog("wrote op %s (%s)", o.Hash, o.Type)

		if entry.Status == "" {
			continue
		}
		status := op.ValidationStatus(entry.Status)
		if !op.ValidStatuses[status] {
			return NewExitError(ExitCommandError, fmt.Sprintf("invalid status %q at index %d", entry.Status, i))
		}
		if err := st.SetValidation(ctx, o.Hash, status, op.StageAwaitingIntegration); err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("marking op %s validated", o.Hash), err)
		}
		summary.Validated++
	}

	return formatter.Success(summary)
}
