package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/marketsync/internal/canon"
)

const productListing = `
products:
  - page: 0
    total_pages: 1
    total_elements: 2
    content:
      - { id: "P1", barcode: "869001", title: "Runner", brandId: 10, brand: "Acme" }
      - { id: "P2", barcode: "869002", title: "Trail", brandId: 10, brand: "Acme" }
`

// execute runs the root command with args and returns stdout and the error.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func tempFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func decodeRun(t *testing.T, out string) (string, canon.SyncRun) {
	t.Helper()
	var resp struct {
		Status string        `json:"status"`
		RunID  string        `json:"run_id"`
		Data   canon.SyncRun `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp.Status, resp.Data
}

func TestSyncCommand_FromFlags(t *testing.T) {
	db := filepath.Join(t.TempDir(), "m.db")
	fixture := tempFile(t, "listing.yaml", productListing)

	out, err := execute(t, "", "sync", "--db", db, "--fixture", fixture,
		"--tenant", "acme", "--kind", "product", "--policy", "skip")
	require.NoError(t, err)
	assert.Contains(t, out, "(acme/product): completed")
	assert.Contains(t, out, "Pages: 1  Created: 2  Updated: 0  Deleted: 0  Failed: 0")

	// Re-running the same listing only updates
	out, err = execute(t, "", "--format", "json", "sync", "--db", db, "--fixture", fixture,
		"--tenant", "acme", "--kind", "product", "--policy", "skip")
	require.NoError(t, err)
	status, run := decodeRun(t, out)
	assert.Equal(t, "ok", status)
	assert.Equal(t, 0, run.Created)
	assert.Equal(t, 2, run.Updated)
}

func TestSyncCommand_PolicyRequired(t *testing.T) {
	db := filepath.Join(t.TempDir(), "m.db")
	fixture := tempFile(t, "listing.yaml", productListing)

	_, err := execute(t, "", "sync", "--db", db, "--fixture", fixture,
		"--tenant", "acme", "--kind", "product")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "limit policy is required")
}

func TestSyncCommand_InvalidKind(t *testing.T) {
	_, err := execute(t, "", "sync", "--db", filepath.Join(t.TempDir(), "m.db"),
		"--fixture", "unused.yaml", "--tenant", "acme", "--kind", "invoice", "--policy", "skip")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid --kind")
}

func TestSyncCommand_ConfigConflictsWithFlags(t *testing.T) {
	tests := []struct {
		name  string
		flags []string
		want  string
	}{
		{"tenant", []string{"--tenant", "acme"}, "--tenant"},
		{"page size", []string{"--page-size", "10"}, "--page-size"},
		{"fetch rate", []string{"--fetch-rate", "2"}, "--fetch-rate"},
		{"burst at its default value", []string{"--burst", "1"}, "--burst"},
		{"several", []string{"--kind", "order", "--page-size", "10"}, "--kind, --page-size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"sync", "--db", filepath.Join(t.TempDir(), "m.db"), "--config", "sync.cue"}, tt.flags...)
			_, err := execute(t, "", args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), "cannot be combined with "+tt.want)
		})
	}
}

func TestSyncCommand_FromConfig(t *testing.T) {
	db := filepath.Join(t.TempDir(), "m.db")
	fixture := tempFile(t, "listing.yaml", productListing)
	cfg := tempFile(t, "sync.cue", `
sync: {
	products: {
		tenant:       "acme"
		kind:         "product"
		limit_policy: "abort"
		limits: product: 1
	}
	claims: {
		tenant:       "acme"
		kind:         "claim"
		limit_policy: "skip"
	}
}
`)

	// Two entries: --name is needed
	_, err := execute(t, "", "sync", "--db", db, "--fixture", fixture, "--config", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "choose one with --name")

	out, err := execute(t, "", "--format", "json", "sync", "--db", db, "--fixture", fixture,
		"--config", cfg, "--name", "products")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeRun, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "sync run aborted")
	assert.Contains(t, resp.Error.Message, "reached product limit: 1 of 1")
}

func TestSyncCommand_FirstPageFailure(t *testing.T) {
	db := filepath.Join(t.TempDir(), "m.db")
	fixture := tempFile(t, "listing.yaml", `
orders:
  - error: "connection refused"
`)

	out, err := execute(t, "", "sync", "--db", db, "--fixture", fixture,
		"--tenant", "acme", "--kind", "order", "--policy", "skip")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "(acme/order): failed")
	assert.Contains(t, out, "Reason: fetch page 0: connection refused")
}

func TestSyncCommand_MetricsFile(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "m.db")
	metrics := filepath.Join(dir, "sync.prom")
	fixture := tempFile(t, "listing.yaml", productListing)

	_, err := execute(t, "", "sync", "--db", db, "--fixture", fixture,
		"--tenant", "acme", "--kind", "product", "--policy", "skip",
		"--fetch-rate", "100", "--burst", "2", "--metrics-file", metrics)
	require.NoError(t, err)

	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), `marketsync_records_total{kind="product",outcome="created"} 2`)
	assert.Contains(t, string(data), `marketsync_runs_total{kind="product",status="completed"} 1`)
}

func TestPushCommand_AppliesStream(t *testing.T) {
	db := filepath.Join(t.TempDir(), "m.db")
	stream := `{"id": "P1", "barcode": "869001", "title": "Runner"}
{"id": "P2", "barcode": "869002", "title": "Trail"}`

	out, err := execute(t, stream, "push", "--db", db, "--tenant", "acme", "--kind", "product")
	require.NoError(t, err)
	assert.Contains(t, out, "Pushed 2 product records for acme: 2 applied, 0 rejected")
	assert.Contains(t, out, "✓ P1 created")

	// Same record again is an update
	input := tempFile(t, "push.json", `[{"id": "P1", "barcode": "869001", "title": "Runner v2"}]`)
	out, err = execute(t, "", "--format", "json", "push", "--db", db, "--tenant", "acme", "--kind", "product", "--input", input)
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   PushReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Records, 1)
	assert.Equal(t, "updated", resp.Data.Records[0].Operation)
}

func TestPushCommand_RejectsRecord(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "m.db")

	_, err := execute(t, "", "limits", "set", "product", "1", "--db", db, "--tenant", "acme")
	require.NoError(t, err)

	stream := `[{"id": "P1", "barcode": "869001"}, {"id": "P2", "barcode": "869002"}]`
	out, err := execute(t, stream, "--format", "json", "push", "--db", db, "--tenant", "acme", "--kind", "product")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string `json:"status"`
		Error  struct {
			Code    string     `json:"code"`
			Message string     `json:"message"`
			Details PushReport `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, CodePush, resp.Error.Code)
	assert.Equal(t, "1 of 2 records rejected", resp.Error.Message)
	assert.Equal(t, 1, resp.Error.Details.Applied)
	require.Len(t, resp.Error.Details.Records, 2)
	assert.Equal(t, canon.ID("P2"), resp.Error.Details.Records[1].NaturalKey)
	assert.Equal(t, canon.ClassLimit, resp.Error.Details.Records[1].Class)
}

func TestPushCommand_InvalidInput(t *testing.T) {
	_, err := execute(t, "{not json", "push", "--db", filepath.Join(t.TempDir(), "m.db"),
		"--tenant", "acme", "--kind", "order")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to read input")
}

func TestReadRecords(t *testing.T) {
	records, err := readRecords(strings.NewReader(`{"a":1} [{"b":2},{"c":3}]
{"d":4}`))
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.JSONEq(t, `{"c":3}`, string(records[2]))

	records, err = readRecords(strings.NewReader("  \n"))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRunsCommand_ListAndShow(t *testing.T) {
	db := filepath.Join(t.TempDir(), "m.db")
	fixture := tempFile(t, "listing.yaml", productListing)

	out, err := execute(t, "", "runs", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded")

	out, err = execute(t, "", "--format", "json", "sync", "--db", db, "--fixture", fixture,
		"--tenant", "acme", "--kind", "product", "--policy", "skip")
	require.NoError(t, err)
	_, run := decodeRun(t, out)
	require.NotEmpty(t, run.ID)

	out, err = execute(t, "", "runs", "--db", db, "--tenant", "acme", "--kind", "product")
	require.NoError(t, err)
	assert.Contains(t, out, run.ID)
	assert.Contains(t, out, "created=2")

	out, err = execute(t, "", "runs", "--db", db, "--tenant", "other")
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded")

	out, err = execute(t, "", "--format", "json", "runs", "show", run.ID, "--db", db)
	require.NoError(t, err)
	status, shown := decodeRun(t, out)
	assert.Equal(t, "ok", status)
	assert.Equal(t, run.ID, shown.ID)
	assert.Equal(t, canon.RunCompleted, shown.Status)
	assert.Equal(t, 2, shown.Created)
}

func TestRunsCommand_ShowNotFound(t *testing.T) {
	out, err := execute(t, "", "--format", "json", "runs", "show", "missing", "--db", filepath.Join(t.TempDir(), "m.db"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeNotFound, resp.Error.Code)
}

func TestLimitsCommand_SetShowClear(t *testing.T) {
	db := filepath.Join(t.TempDir(), "m.db")
	fixture := tempFile(t, "listing.yaml", productListing)

	_, err := execute(t, "", "limits", "set", "product", "5", "--db", db, "--tenant", "acme")
	require.NoError(t, err)
	_, err = execute(t, "", "sync", "--db", db, "--fixture", fixture,
		"--tenant", "acme", "--kind", "product", "--policy", "skip")
	require.NoError(t, err)

	out, err := execute(t, "", "limits", "show", "--db", db, "--tenant", "acme")
	require.NoError(t, err)
	assert.Contains(t, out, "Plan for acme:")
	assert.Contains(t, out, "product  2 of 5")
	assert.Contains(t, out, "order    0 (unlimited)")

	_, err = execute(t, "", "limits", "clear", "product", "--db", db, "--tenant", "acme")
	require.NoError(t, err)

	out, err = execute(t, "", "--format", "json", "limits", "show", "--db", db, "--tenant", "acme")
	require.NoError(t, err)
	var resp struct {
		Data PlanUsage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Len(t, resp.Data.Resources, 3)
	for _, u := range resp.Data.Resources {
		assert.Nil(t, u.Ceiling, "resource %s", u.Resource)
	}
}

func TestLimitsCommand_InvalidArgs(t *testing.T) {
	db := filepath.Join(t.TempDir(), "m.db")

	_, err := execute(t, "", "limits", "set", "invoice", "5", "--db", db, "--tenant", "acme")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "unknown resource")

	_, err = execute(t, "", "limits", "set", "product", "many", "--db", db, "--tenant", "acme")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
