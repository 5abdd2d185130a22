package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/marketsync/internal/canon"
	"github.com/roach88/marketsync/internal/limits"
	"github.com/roach88/marketsync/internal/market"
	"github.com/roach88/marketsync/internal/store"
)

// DefaultTenant is used when a scenario names no tenant.
const DefaultTenant = "scenario"

// Scenario defines an end-to-end sync scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Tenant scopes every step. Defaults to DefaultTenant.
	Tenant string `yaml:"tenant,omitempty"`

	// Plan sets per-resource ceilings before the first step.
	Plan map[string]int `yaml:"plan,omitempty"`

	// Steps run in order against one store.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is exactly one of a sync run or a pushed record.
type Step struct {
	Sync   *SyncStep   `yaml:"sync,omitempty"`
	Push   *PushStep   `yaml:"push,omitempty"`
	Expect *StepExpect `yaml:"expect,omitempty"`
}

// SyncStep runs one paged sync over captured pages.
type SyncStep struct {
	Kind     string               `yaml:"kind"`
	Policy   string               `yaml:"policy"`
	PageSize int                  `yaml:"page_size,omitempty"`
	Pages    []market.FixturePage `yaml:"pages"`
}

// PushStep applies one record outside a paged run.
type PushStep struct {
	Kind   string `yaml:"kind"`
	Record any    `yaml:"record"`
}

// StepExpect lists the outcome fields a step must produce. Unset fields are
// not checked. Run fields apply to sync steps; Operation and ErrorClass to
// push steps.
type StepExpect struct {
	Status           string   `yaml:"status,omitempty"`
	Pages            *int     `yaml:"pages,omitempty"`
	Created          *int     `yaml:"created,omitempty"`
	Updated          *int     `yaml:"updated,omitempty"`
	Deleted          *int     `yaml:"deleted,omitempty"`
	Failed           *int     `yaml:"failed,omitempty"`
	ReconcileSkipped *bool    `yaml:"reconcile_skipped,omitempty"`
	ErrorClasses     []string `yaml:"error_classes,omitempty"`

	Operation  string `yaml:"operation,omitempty"`
	ErrorClass string `yaml:"error_class,omitempty"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "count": number of roots of Kind
	// - "keys": exact natural keys of Kind
	// - "shared_count": number of Shared sub-entities
	// - "final_state": query Table and verify expected values
	Type string `yaml:"type"`

	// Kind is the root entity kind (used by count and keys).
	Kind string `yaml:"kind,omitempty"`

	// Shared is the sub-entity kind (used by shared_count).
	Shared string `yaml:"shared,omitempty"`

	// Count is the expected number of rows (used by count and shared_count).
	Count int `yaml:"count,omitempty"`

	// Keys are the expected natural keys in sorted order (used by keys).
	Keys []string `yaml:"keys,omitempty"`

	// Table is the table name (used by final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (used by final_state).
	// All fields must match exactly; tenant_id is added automatically.
	Where map[string]interface{} `yaml:"where,omitempty"`

	// Expect contains expected field values (used by final_state).
	// Subset match - only specified fields are validated.
	Expect map[string]interface{} `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertCount       = "count"
	AssertKeys        = "keys"
	AssertSharedCount = "shared_count"
	AssertFinalState  = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML content.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict fields catch typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Tenant == "" {
		scenario.Tenant = DefaultTenant
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for res, ceiling := range s.Plan {
		if _, err := limits.ParseResource(res); err != nil {
			return fmt.Errorf("plan: %w", err)
		}
		if ceiling < 0 {
			return fmt.Errorf("plan: %s ceiling must be non-negative", res)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, st *Step) error {
	switch {
	case st.Sync != nil && st.Push != nil:
		return fmt.Errorf("steps[%d]: sync and push are mutually exclusive", index)
	case st.Sync != nil:
		if _, err := canon.ParseKind(st.Sync.Kind); err != nil {
			return fmt.Errorf("steps[%d].sync: %w", index, err)
		}
		if _, err := limits.ParsePolicy(st.Sync.Policy); err != nil {
			return fmt.Errorf("steps[%d].sync: %w", index, err)
		}
		if len(st.Sync.Pages) == 0 {
			return fmt.Errorf("steps[%d].sync: pages list is required and must be non-empty", index)
		}
		if st.Expect != nil && (st.Expect.Operation != "" || st.Expect.ErrorClass != "") {
			return fmt.Errorf("steps[%d].expect: operation and error_class apply to push steps", index)
		}
	case st.Push != nil:
		if _, err := canon.ParseKind(st.Push.Kind); err != nil {
			return fmt.Errorf("steps[%d].push: %w", index, err)
		}
		if st.Push.Record == nil {
			return fmt.Errorf("steps[%d].push: record is required", index)
		}
	default:
		return fmt.Errorf("steps[%d]: one of sync or push is required", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertCount, AssertKeys:
		if _, err := canon.ParseKind(a.Kind); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertSharedCount:
		if !knownShared(a.Shared) {
			return fmt.Errorf("assertions[%d]: unknown shared entity %q", index, a.Shared)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

func knownShared(name string) bool {
	for _, k := range store.SharedKinds {
		if string(k) == name {
			return true
		}
	}
	return false
}
