package verdict

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/complianced/internal/corpus"
)

func testNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	n, err := NewNormalizer(NormalizerConfig{}, nil)
	require.NoError(t, err)
	return n
}

func suppliedPassages() []corpus.RankedPassage {
	return []corpus.RankedPassage{
		{PassageID: "packaged-commodities-rules.txt#0003", DocumentID: "packaged-commodities-rules.txt"},
		{PassageID: "legal-metrology-act.txt#0001", DocumentID: "legal-metrology-act.txt"},
	}
}

func TestNormalize_CompliantVerdict(t *testing.T) {
	n := testNormalizer(t)

	v, err := n.Normalize(RawVerdict{
		ComplianceStatus: "compliant",
		ComplianceScore:  json.RawMessage(`100`),
		Reasoning:        "All declarations present and well-formed.",
	}, suppliedPassages())
	require.NoError(t, err)

	assert.Equal(t, 100, v.Score)
	assert.Equal(t, StatusCompliant, v.Status)
	assert.Empty(t, v.Violations)
	assert.Equal(t, "All declarations present and well-formed.", v.Reasoning)
	assert.NotEmpty(t, v.ID)
	assert.WithinDuration(t, time.Now().UTC(), v.Timestamp, time.Minute)
}

func TestNormalize_ScoreForms(t *testing.T) {
	n := testNormalizer(t)

	tests := []struct {
		name string
		raw  RawVerdict
		want int
	}{
		{
			name: "plain number",
			raw:  RawVerdict{ComplianceScore: json.RawMessage(`85`)},
			want: 85,
		},
		{
			name: "float rounds",
			raw:  RawVerdict{ComplianceScore: json.RawMessage(`84.6`)},
			want: 85,
		},
		{
			name: "quoted number",
			raw:  RawVerdict{ComplianceScore: json.RawMessage(`"85"`)},
			want: 85,
		},
		{
			name: "percent string",
			raw:  RawVerdict{ComplianceScore: json.RawMessage(`"85%"`)},
			want: 85,
		},
		{
			name: "score out of hundred string",
			raw:  RawVerdict{ComplianceScore: json.RawMessage(`"85 out of 100"`)},
			want: 85,
		},
		{
			name: "falls back to score field",
			raw:  RawVerdict{Score: json.RawMessage(`72`)},
			want: 72,
		},
		{
			name: "compliance_score wins over score",
			raw: RawVerdict{
				ComplianceScore: json.RawMessage(`90`),
				Score:           json.RawMessage(`10`),
			},
			want: 90,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := n.Normalize(tt.raw, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Score)
		})
	}
}

func TestNormalize_ScoreClamped(t *testing.T) {
	n := testNormalizer(t)

	v, err := n.Normalize(RawVerdict{ComplianceScore: json.RawMessage(`140`)}, nil)
	require.NoError(t, err)
	assert.Equal(t, 100, v.Score)

	v, err = n.Normalize(RawVerdict{ComplianceScore: json.RawMessage(`-10`)}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, v.Score)
	assert.Equal(t, StatusNonCompliant, v.Status)
}

func TestNormalize_StatusFollowsScoreAndViolations(t *testing.T) {
	n := testNormalizer(t)

	tests := []struct {
		name       string
		raw        RawVerdict
		wantStatus Status
	}{
		{
			name: "high score no violations is compliant",
			raw: RawVerdict{
				ComplianceStatus: "non_compliant", // model disagreement corrected
				ComplianceScore:  json.RawMessage(`95`),
			},
			wantStatus: StatusCompliant,
		},
		{
			name: "score below threshold is non-compliant",
			raw: RawVerdict{
				ComplianceStatus: "compliant",
				ComplianceScore:  json.RawMessage(`40`),
			},
			wantStatus: StatusNonCompliant,
		},
		{
			name: "violations force non-compliant despite perfect score",
			raw: RawVerdict{
				ComplianceScore: json.RawMessage(`100`),
				Violations: []RawViolation{
					{Field: "mrp", Issue: "missing"},
				},
			},
			wantStatus: StatusNonCompliant,
		},
		{
			name: "score exactly at threshold is compliant",
			raw: RawVerdict{
				ComplianceScore: json.RawMessage(`70`),
			},
			wantStatus: StatusCompliant,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := n.Normalize(tt.raw, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, v.Status)
		})
	}
}

func TestNormalize_StatusVariants(t *testing.T) {
	n := testNormalizer(t)

	for _, s := range []string{"non_compliant", "non-compliant", "NonCompliant", " NON_COMPLIANT "} {
		v, err := n.Normalize(RawVerdict{ComplianceStatus: s}, nil)
		require.NoError(t, err, s)
		assert.Equal(t, StatusNonCompliant, v.Status, s)
	}

	v, err := n.Normalize(RawVerdict{ComplianceStatus: "Compliant"}, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompliant, v.Status)
	assert.Equal(t, 100, v.Score)
}

func TestNormalize_DerivedScore(t *testing.T) {
	n := testNormalizer(t)

	// Status-only non-compliant response: 100 - 20 per violation,
	// always below the threshold.
	v, err := n.Normalize(RawVerdict{
		ComplianceStatus: "non_compliant",
		Violations: []RawViolation{
			{Field: "mrp", Issue: "missing"},
		},
	}, nil)
	require.NoError(t, err)
	assert.Less(t, v.Score, n.Threshold())
	assert.Equal(t, StatusNonCompliant, v.Status)

	// Many violations floor at zero.
	many := make([]RawViolation, 8)
	for i := range many {
		many[i] = RawViolation{Field: "f", Issue: "missing"}
	}
	v, err = n.Normalize(RawVerdict{ComplianceStatus: "non_compliant", Violations: many}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, v.Score)
}

func TestNormalize_SchemaViolation(t *testing.T) {
	n := testNormalizer(t)

	tests := []struct {
		name string
		raw  RawVerdict
	}{
		{name: "empty response", raw: RawVerdict{}},
		{
			name: "unusable score and status",
			raw: RawVerdict{
				ComplianceStatus: "maybe",
				ComplianceScore:  json.RawMessage(`"excellent"`),
			},
		},
		{
			name: "null score",
			raw:  RawVerdict{ComplianceScore: json.RawMessage(`null`)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Normalize(tt.raw, nil)
			require.ErrorIs(t, err, ErrSchema)
		})
	}
}

func TestNormalize_DropsMalformedViolations(t *testing.T) {
	n := testNormalizer(t)

	v, err := n.Normalize(RawVerdict{
		ComplianceScore: json.RawMessage(`30`),
		Violations: []RawViolation{
			{Field: "mrp", Issue: "missing", RuleReference: "Rule 6 [source: packaged-commodities-rules.txt]"},
			{Field: "", Issue: "orphan issue"},
			{Field: "net_quantity", Issue: "   "},
			{Field: "  country_of_origin  ", Issue: "  not declared  "},
		},
	}, suppliedPassages())
	require.NoError(t, err)

	require.Len(t, v.Violations, 2)
	assert.Equal(t, "mrp", v.Violations[0].Field)
	// Surviving entries are whitespace-trimmed.
	assert.Equal(t, "country_of_origin", v.Violations[1].Field)
	assert.Equal(t, "not declared", v.Violations[1].Issue)
}

func TestNormalize_UnverifiedReferences(t *testing.T) {
	n := testNormalizer(t)

	v, err := n.Normalize(RawVerdict{
		ComplianceScore: json.RawMessage(`20`),
		Violations: []RawViolation{
			{Field: "mrp", Issue: "missing", RuleReference: "Rule 6 [source: packaged-commodities-rules.txt]"},
			{Field: "net_quantity", Issue: "missing", RuleReference: "Rule 99 [source: invented-document.txt]"},
			{Field: "manufacturer", Issue: "missing", RuleReference: ""},
		},
	}, suppliedPassages())
	require.NoError(t, err)
	require.Len(t, v.Violations, 3)

	// Citation matching a supplied passage's document: verified.
	assert.False(t, v.Violations[0].UnverifiedReference)
	// Fabricated citation: kept but flagged.
	assert.True(t, v.Violations[1].UnverifiedReference)
	// No citation at all: flagged.
	assert.True(t, v.Violations[2].UnverifiedReference)
}

func TestNormalize_ReasoningFallback(t *testing.T) {
	n := testNormalizer(t)

	v, err := n.Normalize(RawVerdict{ComplianceScore: json.RawMessage(`100`)}, nil)
	require.NoError(t, err)
	assert.Equal(t, "The product complies with all required rules.", v.Reasoning)

	v, err = n.Normalize(RawVerdict{ComplianceScore: json.RawMessage(`10`)}, nil)
	require.NoError(t, err)
	assert.Equal(t, "The product has one or more violations that make it non-compliant.", v.Reasoning)
}

func TestNormalizerConfig_Validate(t *testing.T) {
	cfg := NormalizerConfig{}
	cfg.ApplyDefaults()
	assert.Equal(t, DefaultThreshold, cfg.Threshold)
	require.NoError(t, cfg.Validate())

	require.ErrorIs(t, (&NormalizerConfig{Threshold: -5}).Validate(), ErrInvalidConfig)
	require.ErrorIs(t, (&NormalizerConfig{Threshold: 101}).Validate(), ErrInvalidConfig)
}
