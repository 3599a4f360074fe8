package model

import "github.com/shopspring/decimal"

// SplitEntry assigns a share of a product's revenue to one master row (doctor)
type SplitEntry struct {
	MasterMappingID int64           `json:"master_mapping_id"`
	Ratio           decimal.Decimal `json:"ratio"`
}

// SplitRule is the per product_key split policy
type SplitRule struct {
	ID         int64        `json:"id"`
	PharmacyID string       `json:"pharmacy_id"`
	ProductKey string       `json:"product_key"`
	Rules      []SplitEntry `json:"rules"`
}

// Key returns the server-assigned id
func (r SplitRule) Key() int64 { return r.ID }

// SplitRuleCreate is the body of POST /split-rules. The server upserts on product_key.
type SplitRuleCreate struct {
	PharmacyID string       `json:"pharmacy_id"`
	ProductKey string       `json:"product_key"`
	Rules      []SplitEntry `json:"rules"`
}

// SplitRuleCreated is the server's answer to a create
type SplitRuleCreated struct {
	ID                  int64 `json:"id"`
	InvoicesReprocessed int   `json:"invoices_reprocessed"`
}

// SplitRuleDeleted is the optional body of DELETE /split-rules/{id}.
// Applied is nil when the server does not say.
type SplitRuleDeleted struct {
	Applied             *bool `json:"applied,omitempty"`
	InvoicesReprocessed int   `json:"invoices_reprocessed,omitempty"`
}

// ImportResult is the body returned by spreadsheet imports
type ImportResult struct {
	Imported int      `json:"imported"`
	Updated  int      `json:"updated"`
	Errors   []string `json:"errors"`
}
