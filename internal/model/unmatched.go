package model

import "github.com/shopspring/decimal"

// UnmatchedStatus moves one way out of pending
type UnmatchedStatus string

const (
	StatusPending UnmatchedStatus = "pending"
	StatusMapped  UnmatchedStatus = "mapped"
	StatusIgnored UnmatchedStatus = "ignored"
)

// UnmatchedRecord is an invoice row whose pharmacy failed auto-match at ingest
type UnmatchedRecord struct {
	ID           int64            `json:"id"`
	PharmacyName string           `json:"pharmacy_name"`
	GeneratedID  string           `json:"generated_id"`
	Product      string           `json:"product,omitempty"`
	Quantity     *decimal.Decimal `json:"quantity,omitempty"`
	Amount       *decimal.Decimal `json:"amount,omitempty"`
	Status       UnmatchedStatus  `json:"status"`
	CreatedAt    Timestamp        `json:"created_at"`
}

// Key returns the server-assigned id
func (r UnmatchedRecord) Key() int64 { return r.ID }

// IsPending reports whether the record still awaits a decision
func (r UnmatchedRecord) IsPending() bool {
	return r.Status == "" || r.Status == StatusPending
}

// NewlyMappedRecord is an unmatched record after a user mapped it. It carries the
// master attributes as they were at mapping time.
type NewlyMappedRecord struct {
	UnmatchedRecord
	MappedToPharmacyID   string    `json:"mapped_to_pharmacy_id"`
	MappedToPharmacyName string    `json:"mapped_to_pharmacy_name"`
	MappedAt             Timestamp `json:"mapped_at"`
	ProductNames         string    `json:"product_names,omitempty"`
	ProductID            string    `json:"product_id,omitempty"`
	DoctorNames          string    `json:"doctor_names,omitempty"`
	DoctorID             string    `json:"doctor_id,omitempty"`
	RepNames             string    `json:"rep_names,omitempty"`
	HQ                   string    `json:"hq,omitempty"`
	Area                 string    `json:"area,omitempty"`
}

// MapRequest is the body of map and retarget calls
type MapRequest struct {
	MasterPharmacyID string `json:"master_pharmacy_id"`
}
