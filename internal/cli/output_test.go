package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/marketsync/internal/canon"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(CodeInput, "invalid --kind", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.NotNil(t, resp.Error)
	assert.Equal(t, CodeInput, resp.Error.Code)
	assert.Equal(t, "invalid --kind", resp.Error.Message)
}

func TestOutputFormatter_JSONErrorWithDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	details := map[string]string{"flag": "kind", "value": "invoice"}
	err := formatter.Error(CodeStore, "failed to open database", details)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.NotNil(t, resp.Error)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success("product ceiling for acme set to 5")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "product ceiling for acme set to 5")
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: false,
	}

	err := formatter.Error(CodeInput, "invalid --kind", nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E_INPUT]")
	assert.Contains(t, buf.String(), "invalid --kind")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	details := map[string]string{"flag": "kind"}
	err := formatter.Error(CodeInput, "invalid --kind", details)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E_INPUT]")
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:  "text",
				Writer:  buf,
				Verbose: tt.verbose,
			}

			formatter.VerboseLog("Fetching page %d", 3)

			if tt.wantLog {
				assert.Contains(t, buf.String(), "Fetching page 3")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestCLIResponse_JSON(t *testing.T) {
	resp := CLIResponse{
		Status: "ok",
		Data:   map[string]int{"count": 42},
	}

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded CLIResponse
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, "ok", decoded.Status)
}

func TestCLIError_JSON(t *testing.T) {
	cliErr := CLIError{
		Code:    CodeRun,
		Message: "sync run truncated",
		Details: []string{"fetch page 2: timeout"},
	}

	data, err := json.Marshal(cliErr)
	require.NoError(t, err)

	var decoded CLIError
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, CodeRun, decoded.Code)
	assert.Equal(t, "sync run truncated", decoded.Message)
}

func truncatedRun() *canon.SyncRun {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &canon.SyncRun{
		ID:          "run-7",
		Tenant:      "acme",
		Kind:        canon.KindOrder,
		StartedAt:   start,
		FinishedAt:  start.Add(time.Second),
		Status:      canon.RunTruncated,
		AbortReason: "fetch page 2: gateway timeout",
		Pages:       2,
		Created:     3,
		Failed:      1,
		Errors: []canon.RecordError{
			{NaturalKey: "1001", Class: canon.ClassMapping, Message: "line 0: missing barcode", Page: 1, Index: 4},
			{Class: canon.ClassMapping, Message: "missing orderNumber", Page: 1, Index: 5},
		},
	}
}

func TestOutputFormatter_RunResultCompletedJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	run := truncatedRun()
	run.Status = canon.RunCompleted
	run.AbortReason = ""
	require.NoError(t, formatter.RunResult(run))

	var resp struct {
		Status string        `json:"status"`
		RunID  string        `json:"run_id"`
		Data   canon.SyncRun `json:"data"`
		Error  *CLIError     `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-7", resp.RunID)
	assert.Nil(t, resp.Error)
	assert.Equal(t, 3, resp.Data.Created)
	assert.Equal(t, canon.RunCompleted, resp.Data.Status)
}

func TestOutputFormatter_RunResultTruncatedJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.RunResult(truncatedRun()))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "run-7", resp.RunID)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeRun, resp.Error.Code)
	assert.Equal(t, "sync run truncated: fetch page 2: gateway timeout", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_RunResultText(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.RunResult(truncatedRun()))

	out := buf.String()
	assert.Contains(t, out, "Run run-7 (acme/order): truncated")
	assert.Contains(t, out, "Reason: fetch page 2: gateway timeout")
	assert.Contains(t, out, "Pages: 2  Created: 3  Updated: 0  Deleted: 0  Failed: 1")
	assert.Contains(t, out, "✗ 1001 [mapping] line 0: missing barcode")
	assert.Contains(t, out, "✗ page 1 #5 [mapping] missing orderNumber")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))
	assert.Equal(t, ExitFailure, GetExitCode(WrapExitError(ExitFailure, "run", errors.New("x"))))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))

	wrapped := WrapExitError(ExitCommandError, "invalid config", errors.New("tenant is required"))
	assert.Equal(t, "invalid config: tenant is required", wrapped.Error())
	assert.EqualError(t, errors.Unwrap(wrapped), "tenant is required")
}
