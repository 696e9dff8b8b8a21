package verdict

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/complianced/internal/corpus"
)

// DefaultThreshold is the score below which a verdict is
// non-compliant. A policy decision, not a derived constant: override
// it via configuration when the policy changes.
const DefaultThreshold = 70

// NormalizerConfig holds verdict normalization parameters.
type NormalizerConfig struct {
	// Threshold is the compliant/non-compliant score boundary.
	Threshold int `koanf:"threshold"`
}

// ApplyDefaults sets default values for unset fields.
func (c *NormalizerConfig) ApplyDefaults() {
	if c.Threshold == 0 {
		c.Threshold = DefaultThreshold
	}
}

// Validate validates the configuration.
func (c *NormalizerConfig) Validate() error {
	if c.Threshold < 1 || c.Threshold > 100 {
		return fmt.Errorf("%w: threshold must be in [1, 100]", ErrInvalidConfig)
	}
	return nil
}

// Normalizer enforces the verdict schema on raw generation output,
// repairing what it safely can and raising only when the response is
// not salvageable.
type Normalizer struct {
	config NormalizerConfig
	logger *zap.Logger
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(cfg NormalizerConfig, logger *zap.Logger) (*Normalizer, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{config: cfg, logger: logger}, nil
}

// Threshold returns the configured compliant/non-compliant boundary.
func (n *Normalizer) Threshold() int {
	return n.config.Threshold
}

// Normalize converts a raw verdict into a validated Verdict.
//
// Guarantees on success: score is an integer in [0,100]; status is
// exactly one of the two enumerated values and is non_compliant
// whenever score < threshold or any violation exists; every violation
// is well-formed; citations that do not match a supplied passage are
// flagged, not dropped. Score/status disagreement is corrected toward
// score. Returns ErrSchema only when both score and status are
// missing or unusable.
func (n *Normalizer) Normalize(raw RawVerdict, supplied []corpus.RankedPassage) (Verdict, error) {
	score, scoreOK := parseScore(raw)
	status, statusOK := parseStatus(raw.ComplianceStatus)

	if !scoreOK && !statusOK {
		return Verdict{}, fmt.Errorf("%w: response has neither a usable score nor a status", ErrSchema)
	}

	violations := n.normalizeViolations(raw.Violations, supplied)

	if !scoreOK {
		score = deriveScore(status, len(violations), n.config.Threshold)
	}
	score = clamp(score, 0, 100)

	// Status follows score and violations; the model's own status
	// only ever mattered as a score fallback above.
	if score < n.config.Threshold || len(violations) > 0 {
		status = StatusNonCompliant
	} else {
		status = StatusCompliant
	}

	reasoning := strings.TrimSpace(raw.Reasoning)
	if reasoning == "" {
		if status == StatusCompliant {
			reasoning = "The product complies with all required rules."
		} else {
			reasoning = "The product has one or more violations that make it non-compliant."
		}
	}

	return Verdict{
		ID:         uuid.NewString(),
		Score:      score,
		Status:     status,
		Violations: violations,
		Reasoning:  reasoning,
		Timestamp:  time.Now().UTC(),
	}, nil
}

// normalizeViolations drops malformed entries (partial findings are
// still useful, a broken entry is not) and cross-checks every
// rule_reference against the passages actually supplied to the
// synthesizer.
func (n *Normalizer) normalizeViolations(raw []RawViolation, supplied []corpus.RankedPassage) []Violation {
	violations := make([]Violation, 0, len(raw))
	for _, rv := range raw {
		field := strings.TrimSpace(rv.Field)
		issue := strings.TrimSpace(rv.Issue)
		if field == "" || issue == "" {
			n.logger.Warn("dropping malformed violation",
				zap.String("field", rv.Field),
				zap.String("issue", rv.Issue),
			)
			continue
		}
		v := Violation{
			Field:         field,
			Issue:         issue,
			RuleReference: strings.TrimSpace(rv.RuleReference),
			Reason:        strings.TrimSpace(rv.Reason),
		}
		if !referenceMatches(v.RuleReference, supplied) {
			v.UnverifiedReference = true
		}
		violations = append(violations, v)
	}
	return violations
}

// referenceMatches reports whether the citation names the source
// document of any supplied passage.
func referenceMatches(reference string, supplied []corpus.RankedPassage) bool {
	if reference == "" {
		return false
	}
	ref := strings.ToLower(reference)
	for _, p := range supplied {
		if p.DocumentID != "" && strings.Contains(ref, strings.ToLower(p.DocumentID)) {
			return true
		}
	}
	return false
}

// parseScore extracts a numeric score from the loose raw fields,
// trying compliance_score then score. Accepts numbers, quoted
// numbers, and percent strings like "85%".
func parseScore(raw RawVerdict) (int, bool) {
	for _, msg := range []json.RawMessage{raw.ComplianceScore, raw.Score} {
		if len(msg) == 0 || string(msg) == "null" {
			continue
		}
		if score, ok := parseScoreValue(msg); ok {
			return score, true
		}
	}
	return 0, false
}

func parseScoreValue(msg json.RawMessage) (int, bool) {
	var num float64
	if err := json.Unmarshal(msg, &num); err == nil {
		return int(num + 0.5), true
	}

	var str string
	if err := json.Unmarshal(msg, &str); err != nil {
		return 0, false
	}
	str = strings.TrimSpace(str)

	// Take the leading numeric run: "85", "85%", "85 out of 100".
	end := 0
	for end < len(str) && (str[end] >= '0' && str[end] <= '9' || str[end] == '.') {
		end++
	}
	if end == 0 {
		return 0, false
	}
	parsed, err := strconv.ParseFloat(str[:end], 64)
	if err != nil {
		return 0, false
	}
	return int(parsed + 0.5), true
}

// parseStatus normalizes the model's status string. "non-compliant",
// "non_compliant" and "noncompliant" are all accepted.
func parseStatus(s string) (Status, bool) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	switch normalized {
	case "compliant":
		return StatusCompliant, true
	case "non_compliant", "noncompliant":
		return StatusNonCompliant, true
	default:
		return "", false
	}
}

// deriveScore fills in a score when the model omitted one but gave a
// status. Compliant means a perfect score; non-compliant starts from
// 100, loses 20 per violation and always lands below the threshold.
func deriveScore(status Status, violations, threshold int) int {
	if status == StatusCompliant {
		return 100
	}
	score := 100 - 20*violations
	if score >= threshold {
		score = threshold - 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
