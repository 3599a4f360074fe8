// Package model holds the wire and in-memory shapes shared by the gateway,
// the store and the coordinators.
package model

import (
	"github.com/shopspring/decimal"
)

func init() {
	// The backend sends and expects ratios and prices as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Source records how a master row entered the system
type Source string

const (
	SourceManual     Source = "manual"
	SourceFileUpload Source = "file_upload"
)

// MasterRow is one entry of the master reference catalog
type MasterRow struct {
	ID            int64            `json:"id,omitempty"`
	PharmacyID    string           `json:"pharmacy_id" validate:"required"`
	PharmacyNames string           `json:"pharmacy_names" validate:"required"`
	ProductNames  string           `json:"product_names" validate:"required"`
	ProductID     string           `json:"product_id" validate:"required"`
	ProductPrice  *decimal.Decimal `json:"product_price,omitempty" validate:"omitempty"`
	DoctorNames   string           `json:"doctor_names,omitempty"`
	DoctorID      string           `json:"doctor_id,omitempty"`
	RepNames      string           `json:"rep_names,omitempty"`
	HQ            string           `json:"hq,omitempty"`
	Area          string           `json:"area,omitempty"`
	Source        Source           `json:"source,omitempty" validate:"omitempty,oneof=manual file_upload"`
}

// Key returns the server-assigned id
func (r MasterRow) Key() int64 { return r.ID }

// MasterPatch is a partial update. Nil fields are left unchanged by the server.
type MasterPatch struct {
	PharmacyID    *string          `json:"pharmacy_id,omitempty"`
	PharmacyNames *string          `json:"pharmacy_names,omitempty"`
	ProductNames  *string          `json:"product_names,omitempty"`
	ProductID     *string          `json:"product_id,omitempty"`
	ProductPrice  *decimal.Decimal `json:"product_price,omitempty"`
	DoctorNames   *string          `json:"doctor_names,omitempty"`
	DoctorID      *string          `json:"doctor_id,omitempty"`
	RepNames      *string          `json:"rep_names,omitempty"`
	HQ            *string          `json:"hq,omitempty"`
	Area          *string          `json:"area,omitempty"`
}

// IsEmpty reports whether the patch changes nothing
func (p MasterPatch) IsEmpty() bool {
	return p.PharmacyID == nil && p.PharmacyNames == nil && p.ProductNames == nil &&
		p.ProductID == nil && p.ProductPrice == nil && p.DoctorNames == nil &&
		p.DoctorID == nil && p.RepNames == nil && p.HQ == nil && p.Area == nil
}

// Apply returns a copy of row with the patch applied
func (p MasterPatch) Apply(row MasterRow) MasterRow {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&row.PharmacyID, p.PharmacyID)
	set(&row.PharmacyNames, p.PharmacyNames)
	set(&row.ProductNames, p.ProductNames)
	set(&row.ProductID, p.ProductID)
	set(&row.DoctorNames, p.DoctorNames)
	set(&row.DoctorID, p.DoctorID)
	set(&row.RepNames, p.RepNames)
	set(&row.HQ, p.HQ)
	set(&row.Area, p.Area)
	if p.ProductPrice != nil {
		price := *p.ProductPrice
		row.ProductPrice = &price
	}
	return row
}

// MasterPage is one batch of GET /master-data
type MasterPage struct {
	Data  []MasterRow `json:"data"`
	Total int         `json:"total"`
}

// DuplicateGroup is two or more master rows sharing (pharmacy_id, normalized product).
// Derived, never persisted.
type DuplicateGroup struct {
	PharmacyID        string      `json:"pharmacy_id"`
	NormalizedProduct string      `json:"normalized_product"`
	PharmacyName      string      `json:"pharmacy_name"`
	ProductName       string      `json:"product_name"`
	Records           []MasterRow `json:"records"`
}

// IDs returns the member row ids in group order
func (g DuplicateGroup) IDs() []int64 {
	ids := make([]int64, len(g.Records))
	for i, r := range g.Records {
		ids[i] = r.ID
	}
	return ids
}

// Contains reports whether a master row id belongs to the group
func (g DuplicateGroup) Contains(id int64) bool {
	for _, r := range g.Records {
		if r.ID == id {
			return true
		}
	}
	return false
}

// DuplicatesResponse is the body of GET /master-data/duplicates
type DuplicatesResponse struct {
	Duplicates []DuplicateGroup `json:"duplicates"`
}

// UniqueValues backs the Add dialog's pickers and auto-fill
type UniqueValues struct {
	PharmacyIDs   []string `json:"pharmacy_ids"`
	PharmacyNames []string `json:"pharmacy_names"`
	ProductNames  []string `json:"product_names"`
	ProductIDs    []string `json:"product_ids"`
	DoctorNames   []string `json:"doctor_names"`
	DoctorIDs     []string `json:"doctor_ids"`
	RepNames      []string `json:"rep_names"`
	HQs           []string `json:"hqs"`
	Areas         []string `json:"areas"`
	Mappings      Mappings `json:"mappings"`
}

// Mappings pairs ids and names in both directions
type Mappings struct {
	PharmacyIDToName map[string]string `json:"pharmacy_id_to_name"`
	PharmacyNameToID map[string]string `json:"pharmacy_name_to_id"`
	ProductNameToID  map[string]string `json:"product_name_to_id"`
	ProductIDToName  map[string]string `json:"product_id_to_name"`
	DoctorNameToID   map[string]string `json:"doctor_name_to_id"`
	DoctorIDToName   map[string]string `json:"doctor_id_to_name"`
}

// MasterPharmacy is one candidate target for unmatched mapping
type MasterPharmacy struct {
	PharmacyID   string `json:"pharmacy_id"`
	PharmacyName string `json:"pharmacy_name"`
}

// UploadResult is the backend's answer to a master-data spreadsheet upload
type UploadResult struct {
	Message        string `json:"message"`
	FileID         string `json:"file_id"`
	RowsProcessed  int    `json:"rows_processed"`
	MatchedCount   int    `json:"matched_count"`
	UnmatchedCount int    `json:"unmatched_count"`
}
