package workflow

import (
	"strings"

	"github.com/franz/prms-console/internal/model"
	"github.com/shopspring/decimal"
)

// Field names one input of the Add form, by its json name
type Field string

const (
	FieldPharmacyID   Field = "pharmacy_id"
	FieldPharmacyName Field = "pharmacy_names"
	FieldProductName  Field = "product_names"
	FieldProductID    Field = "product_id"
	FieldDoctorName   Field = "doctor_names"
	FieldDoctorID     Field = "doctor_id"
	FieldRepName      Field = "rep_names"
	FieldHQ           Field = "hq"
	FieldArea         Field = "area"
)

// Fields lists the form inputs in display order
var Fields = []Field{
	FieldPharmacyID, FieldPharmacyName, FieldProductName, FieldProductID,
	FieldDoctorName, FieldDoctorID, FieldRepName, FieldHQ, FieldArea,
}

// ParseField accepts a json field name
func ParseField(s string) (Field, bool) {
	for _, f := range Fields {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

// pair links an id field with its name field through the server's mapping tables
type pair struct {
	partner Field
	lookup  func(model.Mappings) map[string]string
}

var pairs = map[Field]pair{
	FieldPharmacyID:   {FieldPharmacyName, func(m model.Mappings) map[string]string { return m.PharmacyIDToName }},
	FieldPharmacyName: {FieldPharmacyID, func(m model.Mappings) map[string]string { return m.PharmacyNameToID }},
	FieldProductID:    {FieldProductName, func(m model.Mappings) map[string]string { return m.ProductIDToName }},
	FieldProductName:  {FieldProductID, func(m model.Mappings) map[string]string { return m.ProductNameToID }},
	FieldDoctorID:     {FieldDoctorName, func(m model.Mappings) map[string]string { return m.DoctorIDToName }},
	FieldDoctorName:   {FieldDoctorID, func(m model.Mappings) map[string]string { return m.DoctorNameToID }},
}

// AddForm is the state of the Add dialog. Choosing a known id fills the paired
// name and vice versa; a field the user typed is never overwritten.
type AddForm struct {
	values   map[Field]string
	typed    map[Field]bool
	price    *decimal.Decimal
	mappings model.Mappings
	unique   model.UniqueValues
}

// NewAddForm creates an empty form backed by the given pickers
func NewAddForm(uv model.UniqueValues) *AddForm {
	return &AddForm{
		values:   make(map[Field]string),
		typed:    make(map[Field]bool),
		mappings: uv.Mappings,
		unique:   uv,
	}
}

// Set records what the user entered for f and auto-fills its partner
func (f *AddForm) Set(field Field, value string) {
	value = strings.TrimSpace(value)
	f.values[field] = value
	f.typed[field] = value != ""

	p, ok := pairs[field]
	if !ok || f.typed[p.partner] {
		return
	}
	// An auto-filled partner follows its source, including back to blank
	f.values[p.partner] = p.lookup(f.mappings)[value]
}

// SetPrice records the product price
func (f *AddForm) SetPrice(price decimal.Decimal) {
	f.price = &price
}

// Value returns the current value of a field
func (f *AddForm) Value(field Field) string {
	return f.values[field]
}

// Typed reports whether the current value of field came from the user
func (f *AddForm) Typed(field Field) bool {
	return f.typed[field]
}

// Unique returns the picker values the form was opened with
func (f *AddForm) Unique() model.UniqueValues {
	return f.unique
}

// Row builds the master row to submit
func (f *AddForm) Row() model.MasterRow {
	return model.MasterRow{
		PharmacyID:    f.values[FieldPharmacyID],
		PharmacyNames: f.values[FieldPharmacyName],
		ProductNames:  f.values[FieldProductName],
		ProductID:     f.values[FieldProductID],
		ProductPrice:  f.price,
		DoctorNames:   f.values[FieldDoctorName],
		DoctorID:      f.values[FieldDoctorID],
		RepNames:      f.values[FieldRepName],
		HQ:            f.values[FieldHQ],
		Area:          f.values[FieldArea],
		Source:        model.SourceManual,
	}
}
