package compliance

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/complianced/internal/verdict"
)

// fieldTopics phrase each mandatory field as retrieval-friendly
// natural language: index passages talk about "name and address of the
// manufacturer", not "manufacturer_address".
var fieldTopics = map[verdict.Field]string{
	verdict.FieldManufacturer:        "name of the manufacturer or packer declaration",
	verdict.FieldManufacturerAddress: "address of the manufacturer or packer including pin code",
	verdict.FieldCommonProductName:   "common or generic name of the commodity declaration",
	verdict.FieldNetQuantity:         "net quantity declaration in standard units of weight or measure",
	verdict.FieldMRP:                 "maximum retail price declaration inclusive of all taxes",
	verdict.FieldCountryOfOrigin:     "country of origin declaration and importer details",
	verdict.FieldDateOfManufacture:   "month and year of manufacture or packing declaration",
}

// DeriveQueries turns product facts into the retrieval queries probing
// the rule index: one per mandatory field plus one whole-record query.
// Queries are derived text only and are never persisted.
func DeriveQueries(facts verdict.Facts) []string {
	queries := make([]string, 0, len(fieldTopics)+1)

	for _, field := range verdict.MandatoryFields() {
		topic := fieldTopics[field]
		if value, ok := facts[field]; ok && value != "" {
			queries = append(queries, fmt.Sprintf("%s: %q", topic, value))
		} else {
			queries = append(queries, topic)
		}
	}

	queries = append(queries, wholeRecordQuery(facts))
	return queries
}

// wholeRecordQuery summarizes all declared facts in one query, the way
// the whole label would be checked at once.
func wholeRecordQuery(facts verdict.Facts) string {
	var b strings.Builder
	b.WriteString("mandatory declarations for a packaged commodity label with")
	declared := false
	for _, field := range verdict.KnownFields() {
		value, ok := facts[field]
		if !ok || value == "" {
			continue
		}
		fmt.Fprintf(&b, " %s %q;", field, value)
		declared = true
	}
	if !declared {
		b.WriteString(" no declarations present")
	}
	return b.String()
}
