package verdict

// Field names the labeled declarations extracted from a product label.
// The set is fixed: upstream extraction maps OCR output onto these
// names before the compliance check runs.
type Field string

// Label declaration fields under the Packaged Commodities Rules.
const (
	FieldManufacturer        Field = "manufacturer"
	FieldManufacturerAddress Field = "manufacturer_address"
	FieldCommonProductName   Field = "common_product_name"
	FieldNetQuantity         Field = "net_quantity"
	FieldMRP                 Field = "mrp"
	FieldCountryOfOrigin     Field = "country_of_origin"
	FieldDateOfManufacture   Field = "date_of_manufacture"
	FieldUnitSalePrice       Field = "unit_sale_price"
	FieldBestBefore          Field = "best_before"
	FieldImportedBy          Field = "imported_by"
)

// MandatoryFields returns the seven declarations every retail package
// must carry, in canonical order.
func MandatoryFields() []Field {
	return []Field{
		FieldManufacturer,
		FieldManufacturerAddress,
		FieldCommonProductName,
		FieldNetQuantity,
		FieldMRP,
		FieldCountryOfOrigin,
		FieldDateOfManufacture,
	}
}

// KnownFields returns every recognized field, mandatory first.
func KnownFields() []Field {
	return append(MandatoryFields(),
		FieldUnitSalePrice,
		FieldBestBefore,
		FieldImportedBy,
	)
}

// Facts maps label fields to their extracted free-text values. A field
// absent from the map was not found on the label at all; a field
// present with an empty string was found but extracted empty. The two
// are distinct and both matter to the verdict.
type Facts map[Field]string

// Get returns the value for a field and whether it was present.
func (f Facts) Get(field Field) (string, bool) {
	v, ok := f[field]
	return v, ok
}

// MissingMandatory returns the mandatory fields absent from the facts,
// in canonical order.
func (f Facts) MissingMandatory() []Field {
	var missing []Field
	for _, field := range MandatoryFields() {
		if _, ok := f[field]; !ok {
			missing = append(missing, field)
		}
	}
	return missing
}
