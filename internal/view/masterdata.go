package view

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/franz/prms-console/internal/model"
	"github.com/franz/prms-console/internal/reconcile"
)

// MasterTable renders master rows one per line
func MasterTable(w io.Writer, rows []model.MasterRow, opts Options) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No master rows.")
		return
	}
	shown, hidden := opts.truncated(len(rows))

	tw := newTable(w)
	row(tw, "ID", "PHARMACY", "NAME", "PRODUCT", "PRODUCT ID", "PRICE", "DOCTOR", "REP", "HQ", "AREA", "SOURCE")
	for _, r := range rows[:shown] {
		price := "-"
		if r.ProductPrice != nil {
			price = r.ProductPrice.StringFixed(2)
		}
		row(tw,
			strconv.FormatInt(r.ID, 10),
			r.PharmacyID,
			r.PharmacyNames,
			r.ProductNames,
			r.ProductID,
			price,
			orDash(r.DoctorNames),
			orDash(r.RepNames),
			orDash(r.HQ),
			orDash(r.Area),
			orDash(string(r.Source)),
		)
	}
	tw.Flush()
	moreRows(w, hidden)
}

// DuplicateList renders the duplicates tab: a stats header, then each group
// with its members and whether a split rule already covers it
func DuplicateList(w io.Writer, groups []model.DuplicateGroup, rules []model.SplitRule, opts Options) {
	st := reconcile.GroupStats(groups, rules)
	fmt.Fprintf(w, "%s duplicate groups, %s rows across %s pharmacies, %s with a split rule\n",
		humanize.Comma(int64(st.Groups)), humanize.Comma(int64(st.Records)),
		humanize.Comma(int64(st.Pharmacies)), humanize.Comma(int64(st.WithRule)))
	if len(groups) == 0 {
		return
	}
	shown, hidden := opts.truncated(len(groups))

	for i, g := range groups[:shown] {
		badge := opts.Badge("yellow", "NO RULE")
		if rule, ok := reconcile.RuleFor(g, rules); ok {
			badge = opts.Badge("green", fmt.Sprintf("RULE #%d", rule.ID))
		}
		fmt.Fprintf(w, "\n%d. %s / %s (%s) %s\n", i+1, g.PharmacyID, g.ProductName, g.PharmacyName, badge)

		tw := newTable(w)
		row(tw, "  ID", "PRODUCT", "DOCTOR", "DOCTOR ID")
		for _, r := range g.Records {
			row(tw, "  "+strconv.FormatInt(r.ID, 10), r.ProductNames, orDash(r.DoctorNames), orDash(r.DoctorID))
		}
		tw.Flush()
	}
	moreRows(w, hidden)
}
