package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sluicedb/sluice/internal/op"
	"github.com/sluicedb/sluice/internal/store"
)

// execute runs the CLI with the given args, returning stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func writeBatchFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngestWritesOps(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	batch := writeBatchFile(t, `
ops:
  - type: create-link
    action: action-add
    origin: node-1
    seq: 1
    status: valid
  - type: delete-link
    action: action-del
    dependency: action-add
    origin: node-1
    seq: 2
`)

	out, err := execute(t, "ingest", "--db", dbPath, batch)
	require.NoError(t, err)
	assert.Contains(t, out, "Ingested 2 op(s), 1 validated")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	awaiting, err := st.ReadAwaiting(context.Background(), op.TypeCreateLink)
	require.NoError(t, err)
	require.Len(t, awaiting, 1)
	assert.Equal(t, "action-add", awaiting[0].Action)
	assert.Equal(t, op.StatusValid, awaiting[0].ValidationStatus)

	// The second op has no status, so it stays pending
	counts, err := st.CountStages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Pending)
	assert.Equal(t, int64(1), counts.Awaiting)
}

func TestIngestIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	batch := writeBatchFile(t, `
ops:
  - type: store-entry
    action: action-1
    origin: node-1
    seq: 1
`)

	_, err := execute(t, "ingest", "--db", dbPath, batch)
	require.NoError(t, err)
	_, err = execute(t, "ingest", "--db", dbPath, batch)
	require.NoError(t, err)

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	counts, err := st.CountStages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Pending)
}

func TestIngestRejectsInvalidStatus(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	batch := writeBatchFile(t, `
ops:
  - type: store-entry
    action: action-1
    origin: node-1
    seq: 1
    status: maybe
`)

	_, err := execute(t, "ingest", "--db", dbPath, batch)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestIngestRejectsEmptyBatch(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	batch := writeBatchFile(t, "ops: []")

	_, err := execute(t, "ingest", "--db", dbPath, batch)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestIngestMissingBatchFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	_, err := execute(t, "ingest", "--db", dbPath, filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
