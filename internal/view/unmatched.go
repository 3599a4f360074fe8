package view

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/franz/prms-console/internal/model"
	"github.com/shopspring/decimal"
)

func decimalOrDash(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return d.String()
}

// UnmatchedTable renders pending unmatched records
func UnmatchedTable(w io.Writer, records []model.UnmatchedRecord, opts Options) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No unmatched records.")
		return
	}
	fmt.Fprintf(w, "%s pending\n", humanize.Comma(int64(len(records))))
	shown, hidden := opts.truncated(len(records))

	tw := newTable(w)
	row(tw, "ID", "PHARMACY", "GENERATED ID", "PRODUCT", "QTY", "AMOUNT", "SEEN")
	for _, r := range records[:shown] {
		row(tw,
			strconv.FormatInt(r.ID, 10),
			r.PharmacyName,
			r.GeneratedID,
			orDash(r.Product),
			decimalOrDash(r.Quantity),
			decimalOrDash(r.Amount),
			Since(r.CreatedAt.Time),
		)
	}
	tw.Flush()
	moreRows(w, hidden)
}

// NewlyMappedTable renders records mapped during review
func NewlyMappedTable(w io.Writer, records []model.NewlyMappedRecord, opts Options) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No newly mapped records.")
		return
	}
	shown, hidden := opts.truncated(len(records))

	tw := newTable(w)
	row(tw, "ID", "PHARMACY", "MAPPED TO", "MASTER NAME", "PRODUCT", "DOCTOR", "MAPPED")
	for _, r := range records[:shown] {
		row(tw,
			strconv.FormatInt(r.ID, 10),
			r.PharmacyName,
			opts.paint("cyan", r.MappedToPharmacyID),
			orDash(r.MappedToPharmacyName),
			orDash(r.ProductNames),
			orDash(r.DoctorNames),
			Since(r.MappedAt.Time),
		)
	}
	tw.Flush()
	moreRows(w, hidden)
}

// MasterPharmacies renders mapping candidates
func MasterPharmacies(w io.Writer, list []model.MasterPharmacy, opts Options) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No matching master pharmacies.")
		return
	}
	shown, hidden := opts.truncated(len(list))

	tw := newTable(w)
	row(tw, "PHARMACY ID", "NAME")
	for _, p := range list[:shown] {
		row(tw, p.PharmacyID, p.PharmacyName)
	}
	tw.Flush()
	moreRows(w, hidden)
}
