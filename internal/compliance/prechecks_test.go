package compliance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/complianced/internal/verdict"
)

func TestPrechecks_MissingMandatoryFields(t *testing.T) {
	violations := prechecks(verdict.Facts{})
	require.Len(t, violations, 7)

	for i, field := range verdict.MandatoryFields() {
		assert.Equal(t, string(field), violations[i].Field)
		assert.NotEmpty(t, violations[i].Issue)
		assert.NotEmpty(t, violations[i].RuleReference)
	}
}

func TestPrechecks_CleanFactsPass(t *testing.T) {
	violations := prechecks(fullFacts())
	assert.Empty(t, violations)
}

func TestPrechecks_MRPWithMeasurementUnit(t *testing.T) {
	tests := []struct {
		name string
		mrp  string
		want bool
	}{
		{name: "grams", mrp: "500 g", want: true},
		{name: "kilograms", mrp: "1 kg", want: true},
		{name: "millilitres", mrp: "250ml spelled out", want: false},
		{name: "millilitres with boundary", mrp: "250 ml", want: true},
		{name: "litre", mrp: "1 litre", want: true},
		{name: "currency", mrp: "Rs 55.00", want: false},
		{name: "rupee symbol", mrp: "₹55", want: false},
		{name: "gram inside word", mrp: "program pricing", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts := fullFacts()
			facts[verdict.FieldMRP] = tt.mrp
			violations := prechecks(facts)
			if tt.want {
				require.Len(t, violations, 1)
				assert.Equal(t, "mrp", violations[0].Field)
			} else {
				assert.Empty(t, violations)
			}
		})
	}
}

func TestPrechecks_NetQuantityWithCurrency(t *testing.T) {
	tests := []struct {
		name     string
		quantity string
		want     bool
	}{
		{name: "rupee abbreviation", quantity: "Rs 55", want: true},
		{name: "inr", quantity: "55 INR", want: true},
		{name: "rupee symbol", quantity: "₹55", want: true},
		{name: "dollar", quantity: "$5", want: true},
		{name: "rupees word", quantity: "55 rupees", want: true},
		{name: "grams", quantity: "420 g", want: false},
		{name: "rs inside word", quantity: "4 jars", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts := fullFacts()
			facts[verdict.FieldNetQuantity] = tt.quantity
			violations := prechecks(facts)
			if tt.want {
				require.Len(t, violations, 1)
				assert.Equal(t, "net_quantity", violations[0].Field)
			} else {
				assert.Empty(t, violations)
			}
		})
	}
}

func TestPrechecks_EmptyValueIsNotMissing(t *testing.T) {
	// Present-but-empty mandatory fields are the synthesizer's call,
	// not a precheck finding.
	facts := fullFacts()
	facts[verdict.FieldMRP] = ""
	assert.Empty(t, prechecks(facts))
}
