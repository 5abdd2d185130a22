package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/marketsync/internal/canon"
)

// Snapshot is the golden record of a scenario execution: the step
// outcomes and the final row counts, without run ids or timestamps.
type Snapshot struct {
	Scenario string         `json:"scenario"`
	Tenant   string         `json:"tenant"`
	Steps    []StepResult   `json:"steps"`
	State    map[string]int `json:"state"`
}

// MarshalSnapshot renders a snapshot as canonical JSON indented by two
// spaces, with a trailing newline. Equal snapshots are byte-identical.
func MarshalSnapshot(s Snapshot) ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	canonical, err := canon.Canonicalize(raw)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, canonical, "", "  "); err != nil {
		return nil, fmt.Errorf("indent snapshot: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// SnapshotOf builds the snapshot of a result.
func SnapshotOf(scenario *Scenario, result *Result) Snapshot {
	tenant := scenario.Tenant
	if tenant == "" {
		tenant = DefaultTenant
	}
	return Snapshot{
		Scenario: scenario.Name,
		Tenant:   tenant,
		Steps:    result.Steps,
		State:    result.State,
	}
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. Test failure (via goldie)
// occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an already computed result against the scenario's
// golden file without re-running it.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(SnapshotOf(scenario, result))
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)

	return nil
}
