package harness

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario is a sequence of store operations followed by assertions on the
// resulting state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Steps run in order against fresh stores.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one store operation.
type Step struct {
	// Op names the operation (see the Op constants).
	Op string `yaml:"op"`

	// Args are the operation's arguments. "$alias" strings resolve to ids
	// saved by earlier steps.
	Args map[string]interface{} `yaml:"args,omitempty"`

	// SaveAs records the id of the created or updated entity under an alias.
	SaveAs string `yaml:"save_as,omitempty"`

	// ExpectError makes the step pass only if the operation fails with the
	// named kind of error.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type specifies the assertion type (see the Assert constants).
	Type string `yaml:"type"`

	// Study is a study id or alias (active_study, study_field).
	Study string `yaml:"study,omitempty"`

	// Contrast is a contrast id or alias (contrast_field).
	Contrast string `yaml:"contrast,omitempty"`

	// Field and Value describe an expected field (study_field, contrast_field).
	Field string      `yaml:"field,omitempty"`
	Value interface{} `yaml:"value,omitempty"`

	// Count is the expected number of studies (study_count).
	Count *int `yaml:"count,omitempty"`

	// Verse is the queried reference, e.g. "John 3:16" (contrasts_by_verse).
	Verse string `yaml:"verse,omitempty"`

	// Book is the queried book (contrasts_by_book).
	Book string `yaml:"book,omitempty"`

	// Contrasts are the expected query results in order.
	Contrasts []string `yaml:"contrasts,omitempty"`
}

// Step ops.
const (
	OpCreateStudy    = "create_study"
	OpUpdateStudy    = "update_study"
	OpSetActiveStudy = "set_active_study"
	OpDeleteStudy    = "delete_study"
	OpLoadStudies    = "load_studies"
	OpCreateContrast = "create_contrast"
	OpUpdateContrast = "update_contrast"
	OpDeleteContrast = "delete_contrast"
	OpLoadContrasts  = "load_contrasts"
)

// Assertion types.
const (
	AssertActiveStudy      = "active_study"
	AssertStudyCount       = "study_count"
	AssertStudyField       = "study_field"
	AssertContrastField    = "contrast_field"
	AssertContrastsByVerse = "contrasts_by_verse"
	AssertContrastsByBook  = "contrasts_by_book"
	AssertExclusiveActive  = "exclusive_active"
)

// Error kinds accepted by Step.ExpectError.
const (
	ErrorKindNotFound        = "not_found"
	ErrorKindInvalidStudy    = "invalid_study"
	ErrorKindInvalidContrast = "invalid_contrast"
	ErrorKindAny             = "any"
)

var knownOps = map[string]bool{
	OpCreateStudy: true, OpUpdateStudy: true, OpSetActiveStudy: true,
	OpDeleteStudy: true, OpLoadStudies: true, OpCreateContrast: true,
	OpUpdateContrast: true, OpDeleteContrast: true, OpLoadContrasts: true,
}

var knownErrorKinds = map[string]bool{
	ErrorKindNotFound: true, ErrorKindInvalidStudy: true,
	ErrorKindInvalidContrast: true, ErrorKindAny: true,
}

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

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
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
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	aliases := map[string]bool{}
	for i, step := range s.Steps {
		if err := validateStep(i, step, aliases); err != nil {
			return err
		}
		if step.SaveAs != "" {
			aliases[step.SaveAs] = true
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateStep checks the op and that every "$alias" arg was saved by an
// earlier step.
func validateStep(index int, step Step, aliases map[string]bool) error {
	if step.Op == "" {
		return fmt.Errorf("steps[%d]: op is required", index)
	}
	if !knownOps[step.Op] {
		return fmt.Errorf("steps[%d]: unknown op %q", index, step.Op)
	}
	if step.ExpectError != "" && !knownErrorKinds[step.ExpectError] {
		return fmt.Errorf("steps[%d]: unknown expect_error %q", index, step.ExpectError)
	}
	if strings.HasPrefix(step.SaveAs, "$") {
		return fmt.Errorf("steps[%d]: save_as must not start with '$'", index)
	}
	for key, val := range step.Args {
		if ref, ok := val.(string); ok && strings.HasPrefix(ref, "$") && !aliases[ref[1:]] {
			return fmt.Errorf("steps[%d].args.%s: alias %q is not defined by an earlier step", index, key, ref)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertActiveStudy, AssertExclusiveActive:
	case AssertStudyCount:
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for study_count", index)
		}
		if *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for study_count", index)
		}
	case AssertStudyField:
		if a.Study == "" || a.Field == "" {
			return fmt.Errorf("assertions[%d]: study and field are required for study_field", index)
		}
	case AssertContrastField:
		if a.Contrast == "" || a.Field == "" {
			return fmt.Errorf("assertions[%d]: contrast and field are required for contrast_field", index)
		}
	case AssertContrastsByVerse:
		if a.Verse == "" {
			return fmt.Errorf("assertions[%d]: verse is required for contrasts_by_verse", index)
		}
	case AssertContrastsByBook:
		if a.Book == "" {
			return fmt.Errorf("assertions[%d]: book is required for contrasts_by_book", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
