package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtr002/linkboard/internal/links"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DATABASE_URL", "")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootListsCommands(t *testing.T) {
	out, err := run(t, "--help")
	require.NoError(t, err)
	for _, name := range []string{"migrate", "sync-marts", "bulk", "report"} {
		assert.Contains(t, out, name)
	}
}

func TestMigrate_RequiresDatabase(t *testing.T) {
	_, err := run(t, "migrate", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.url")
}

func TestBulk_RequiresFlags(t *testing.T) {
	_, err := run(t, "bulk", "--marts", "M001")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "creatives")
}

func TestBulk_ReportsFailedTasks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("links:\n  bulk_concurrency: 2\n"), 0o644))

	out, err := run(t, "bulk", "--config", path, "--marts", "M001,M002", "--creatives", "spring")
	require.Error(t, err, "marts are unknown to an empty in-memory store")

	var result links.BulkResult
	require.NoError(t, json.Unmarshal([]byte(out[:bytes.LastIndexByte([]byte(out), '}')+1]), &result))
	assert.Equal(t, 2, result.Total)
	assert.Len(t, result.Errors, 2)
}

func TestSyncMarts_NotConfigured(t *testing.T) {
	t.Setenv("SHEETS_API_KEY", "")
	_, err := run(t, "sync-marts", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
