package verdict

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/complianced/internal/corpus"
)

// missingMarker is how absent fields are surfaced to the model, so it
// can distinguish "not on the label" from "extracted empty".
const missingMarker = "MISSING"

// buildPrompt assembles the single structured-generation request: the
// enumerated fields with their values (absent fields explicitly
// marked), the retrieved passages with their source identifiers, and
// the output schema the response must conform to.
func buildPrompt(facts Facts, passages []corpus.RankedPassage) string {
	var b strings.Builder

	b.WriteString("You are a meticulous compliance officer for the Legal Metrology Act ")
	b.WriteString("(Packaged Commodities Rules, 2011).\n")
	b.WriteString("Validate the PRODUCT DATA against the CONTEXT (rules) and return ONLY valid JSON.\n\n")

	b.WriteString("CONTEXT:\n")
	for _, p := range passages {
		fmt.Fprintf(&b, "[source: %s]\n%s\n\n", p.DocumentID, p.Text)
	}

	b.WriteString("PRODUCT DATA:\n")
	for _, field := range KnownFields() {
		value, ok := facts[field]
		switch {
		case !ok:
			fmt.Fprintf(&b, "- %s: %s\n", field, missingMarker)
		case value == "":
			fmt.Fprintf(&b, "- %s: \"\"\n", field)
		default:
			fmt.Fprintf(&b, "- %s: %s\n", field, value)
		}
	}
	b.WriteString("\n")

	b.WriteString(`INSTRUCTIONS:
1. Output ONLY valid JSON (no commentary, no code blocks).
2. If all fields are compliant:
    - "compliance_status": "compliant"
    - "violations": []
    - "reasoning": "The product information fully complies with the rules in the given context."
3. If there are violations:
    - Include them in "violations" with "field", "issue", "rule_reference", and "reason".
    - "rule_reference" must cite the rule and the source identifier of a CONTEXT passage, e.g. "Rule 6(1) [source: packaged-commodities-rules.txt]".
    - "reason" must clearly explain why the violation occurred.
4. Do not invent violations not present in PRODUCT DATA.
5. A field marked ` + missingMarker + ` is absent from the label: flag it as a violation if the rules require it.
6. Any field with an empty string ("") as its value is a violation.

SPECIAL RULES:
- country_of_origin: If value is "India" or "INDIA", importer details are NOT required.
- imported_by: Mandatory ONLY if country_of_origin is not India.
- date_of_manufacture: "MM/YYYY", "YYYY-MM-DD", or "YYYY/M/D" formats are valid.
- net_quantity:
    - Must be a number followed by a valid unit (g, kg, ml, l, litre, meter, cm, pcs, pack, tablet, capsule).
    - If missing, flag as violation.
    - If it contains a currency unit (Rs, INR, $, rs, etc.), flag as wrong type.
- mrp:
    - Must be a monetary amount (Rs, INR, Rupees, $).
    - If missing, flag as violation.
    - If it contains measurement units (g, kg, ml, litre, meter, cm, etc.), flag as wrong type.

OUTPUT FORMAT (strictly JSON):
{
  "compliance_status": "compliant" | "non_compliant",
  "compliance_score": <integer 0-100>,
  "violations": [
    {
      "field": "string",
      "issue": "string",
      "rule_reference": "string",
      "reason": "string"
    }
  ],
  "reasoning": "string"
}
`)

	return b.String()
}
