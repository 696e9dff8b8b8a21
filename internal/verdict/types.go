// Package verdict converts product facts plus retrieved rule passages
// into a structured, validated compliance verdict. The raw model
// output is untrusted input: it always passes through the normalizer
// before anything downstream sees it.
package verdict

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrSynthesis indicates generation exhausted its retries. Fails
	// the query; never silently produces a partial verdict.
	ErrSynthesis = errors.New("verdict synthesis failed")

	// ErrSchema indicates the generation output was fundamentally
	// unparseable or missing both score and status. Treated as a
	// synthesis failure for propagation.
	ErrSchema = errors.New("verdict schema violation")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Status is the binary compliance outcome.
type Status string

const (
	StatusCompliant    Status = "compliant"
	StatusNonCompliant Status = "non_compliant"
)

// Violation is one finding against a specific label field, citing the
// rule passage it is grounded on. Immutable once created.
type Violation struct {
	Field         string `json:"field"`
	Issue         string `json:"issue"`
	RuleReference string `json:"rule_reference"`
	Reason        string `json:"reason"`

	// UnverifiedReference marks a citation that could not be matched
	// to any passage actually supplied to the synthesizer. The
	// violation is kept; only its grounding is suspect.
	UnverifiedReference bool `json:"unverified_reference,omitempty"`
}

// Verdict is the final compliance decision for one product's facts.
// The sole externally visible output of the core, created fresh per
// query and never mutated after return.
type Verdict struct {
	ID         string      `json:"id"`
	Score      int         `json:"score"`
	Status     Status      `json:"status"`
	Violations []Violation `json:"violations"`
	Reasoning  string      `json:"reasoning"`
	Timestamp  time.Time   `json:"timestamp"`
}

// RawVerdict is the untrusted shape of a generation response. Field
// types are deliberately loose: models emit scores as numbers, quoted
// numbers or percent strings, and the normalizer sorts it out.
type RawVerdict struct {
	ComplianceStatus string          `json:"compliance_status"`
	ComplianceScore  json.RawMessage `json:"compliance_score"`
	Score            json.RawMessage `json:"score"`
	Violations       []RawViolation  `json:"violations"`
	Reasoning        string          `json:"reasoning"`
}

// RawViolation is one untrusted violation entry from the model.
type RawViolation struct {
	Field         string `json:"field"`
	Issue         string `json:"issue"`
	RuleReference string `json:"rule_reference"`
	Reason        string `json:"reason"`
}
