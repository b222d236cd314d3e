package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/server"
)

const testData = `
api_roots:
  - id: default
    title: Default API root
    default: true
    is_public: true
collections:
  - id: coll-1
    api_root_id: default
    title: Indicators
    alias: indicators
    is_public: true
`

func writeConfig(t *testing.T) string {
	t.Helper()
	t.Setenv("TAXII_DB_DSN", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "taxii.toml")
	content := fmt.Sprintf(`
[db]
driver = "sqlite"
path = %q

[log]
level = "error"
`, filepath.Join(dir, "taxii.db"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "taxiisrv "+server.ServerVersion+"\n", out)

	out, err = run(t, "version", "-j")
	require.NoError(t, err)
	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, server.ServerVersion, v["version"])
}

func TestSyncAndList(t *testing.T) {
	cfg := writeConfig(t)
	dataFile := filepath.Join(t.TempDir(), "data.yaml")
	require.NoError(t, os.WriteFile(dataFile, []byte(testData), 0o600))

	out, err := run(t, "sync-data", "--config", cfg, "-f", dataFile)
	require.NoError(t, err)
	assert.Contains(t, out, "api roots: 1 created, 0 skipped")
	assert.Contains(t, out, "collections: 1 created, 0 skipped")

	out, err = run(t, "sync-data", "--config", cfg, "-f", dataFile, "-j")
	require.NoError(t, err)
	var report map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, map[string]int{
		"api_roots_created":   0,
		"api_roots_skipped":   1,
		"collections_created": 0,
		"collections_skipped": 1,
	}, report)

	out, err = run(t, "list", "api-roots", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "- default: Default API root (default) [public]")

	out, err = run(t, "list", "collections", "default", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "- coll-1: Indicators (alias indicators) [public read]")

	out, err = run(t, "list", "collections", "default", "--config", cfg, "-j")
	require.NoError(t, err)
	var listed struct {
		Result int              `json:"result"`
		Value  []map[string]any `json:"value"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed.Value, 1)
	assert.Equal(t, "coll-1", listed.Value[0]["id"])

	_, err = run(t, "list", "collections", "missing", "--config", cfg)
	assert.Error(t, err)
}

func TestCleanupJobsCmd(t *testing.T) {
	cfg := writeConfig(t)
	out, err := run(t, "cleanup-jobs", "--config", cfg, "-j")
	require.NoError(t, err)
	var v map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, 0, v["removed"])
}

func TestMissingConfig(t *testing.T) {
	_, err := run(t, "list", "api-roots", "--config", filepath.Join(t.TempDir(), "none.toml"))
	assert.Error(t, err)
}

func TestSyncDataRequiresFile(t *testing.T) {
	_, err := run(t, "sync-data", "--config", writeConfig(t))
	assert.Error(t, err)
}
