package compliance

import (
	"fmt"
	"regexp"

	"github.com/fyrsmithlabs/complianced/internal/verdict"
)

// Deterministic pre-checks that do not need a generation call. They
// run alongside synthesis and their findings are merged into the
// final verdict; any hit forces non_compliant.

var (
	// measurementUnit inside an MRP value means the extractor or the
	// label confused price with quantity.
	measurementUnit = regexp.MustCompile(`(?i)\b(kg|g|ml|l|litre|meter|cm)\b`)

	// currencyMarker inside a net quantity value is the mirror-image
	// confusion.
	currencyMarker = regexp.MustCompile(`(?i)(₹|\$|\b(rs|inr|rupees)\b)`)
)

// prechecks returns deterministic findings on the facts alone.
func prechecks(facts verdict.Facts) []verdict.Violation {
	var violations []verdict.Violation

	for _, field := range facts.MissingMandatory() {
		violations = append(violations, verdict.Violation{
			Field:         string(field),
			Issue:         "Mandatory declaration is absent from the label.",
			RuleReference: "Rule 6 on mandatory declarations (Packaged Commodities Rules, 2011)",
			Reason:        fmt.Sprintf("No %s declaration could be found on the product label.", field),
		})
	}

	if mrp, ok := facts[verdict.FieldMRP]; ok && measurementUnit.MatchString(mrp) {
		violations = append(violations, verdict.Violation{
			Field:         string(verdict.FieldMRP),
			Issue:         "MRP value contains a unit (e.g., kg/g/ml) instead of currency.",
			RuleReference: "Rule on Maximum Retail Price display",
			Reason:        "The MRP should represent a monetary amount (e.g., Rs. 50.00), but units like weight/volume were found.",
		})
	}

	if qty, ok := facts[verdict.FieldNetQuantity]; ok && currencyMarker.MatchString(qty) {
		violations = append(violations, verdict.Violation{
			Field:         string(verdict.FieldNetQuantity),
			Issue:         "Net quantity value contains a currency marker instead of a unit of measure.",
			RuleReference: "Rule on net quantity declaration",
			Reason:        "The net quantity should be a number with a standard unit (e.g., 500 g), but a currency amount was found.",
		})
	}

	return violations
}
