package harness

import "github.com/biblemarker/biblemarker/internal/domain"

// StepRecord is the outcome of one executed step.
type StepRecord struct {
	Index int    `json:"index"`
	Op    string `json:"op"`
	ID    string `json:"id,omitempty"`    // entity created or touched
	Error string `json:"error,omitempty"` // operation error, expected or not
}

// FinalState is the store state after the last step.
type FinalState struct {
	ActiveStudyID string            `json:"active_study_id,omitempty"`
	Studies       []domain.Study    `json:"studies"`
	Contrasts     []domain.Contrast `json:"contrasts"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every step behaved as expected and
	// every assertion held.
	Pass bool `json:"pass"`

	// Steps records each executed step in order.
	Steps []StepRecord `json:"steps"`

	// Errors contains step and assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the final cached state of both stores.
	State FinalState `json:"state"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepRecord{},
		Errors: []string{},
		State: FinalState{
			Studies:   []domain.Study{},
			Contrasts: []domain.Contrast{},
		},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStep appends a step record.
func (r *Result) AddStep(rec StepRecord) {
	r.Steps = append(r.Steps, rec)
}
