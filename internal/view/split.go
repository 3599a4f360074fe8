package view

import (
	"fmt"
	"io"
	"strconv"

	"github.com/franz/prms-console/internal/model"
	"github.com/franz/prms-console/internal/reconcile"
	"github.com/shopspring/decimal"
)

// SplitLine is one doctor row of the split editor, joined from a buffer
// entry and the master row it references
type SplitLine struct {
	Index    int
	Row      model.MasterRow
	Ratio    decimal.Decimal
	Dangling bool // the entry names a row that is not in the group
}

// SplitEditor is the projection of a split-ratio editing session
type SplitEditor struct {
	Group    model.DuplicateGroup
	Lines    []SplitLine
	Check    reconcile.RatioCheck
	RuleID   int64 // 0 when no rule exists yet
	State    string
	Existing bool
}

// NewSplitEditor joins entries to group rows by master_mapping_id. Rows are
// looked up on read so a rule saved against other rows shows as dangling.
func NewSplitEditor(g model.DuplicateGroup, entries []model.SplitEntry, existing *model.SplitRule) SplitEditor {
	byID := make(map[int64]model.MasterRow, len(g.Records))
	for _, r := range g.Records {
		byID[r.ID] = r
	}

	ed := SplitEditor{Group: g, Check: reconcile.ValidateRatios(entries)}
	for i, e := range entries {
		r, ok := byID[e.MasterMappingID]
		if !ok {
			r = model.MasterRow{ID: e.MasterMappingID}
		}
		ed.Lines = append(ed.Lines, SplitLine{Index: i, Row: r, Ratio: e.Ratio, Dangling: !ok})
	}
	if existing != nil {
		ed.RuleID = existing.ID
		ed.Existing = true
	}
	return ed
}

// Render prints the editor with a running total and what remains to reach 100
func (ed SplitEditor) Render(w io.Writer, opts Options) {
	header := opts.Badge("yellow", "NEW RULE")
	if ed.Existing {
		header = opts.Badge("green", fmt.Sprintf("RULE #%d", ed.RuleID))
	}
	fmt.Fprintf(w, "%s / %s (%s) %s\n", ed.Group.PharmacyID, ed.Group.ProductName, ed.Group.PharmacyName, header)
	fmt.Fprintf(w, "product key: %s\n", reconcile.GroupProductKey(ed.Group))
	if ed.State != "" {
		fmt.Fprintf(w, "state: %s\n", ed.State)
	}

	out := make(map[int]bool, len(ed.Check.OutOfRange))
	for _, i := range ed.Check.OutOfRange {
		out[i] = true
	}

	tw := newTable(w)
	row(tw, "#", "ROW", "DOCTOR", "PRODUCT", "RATIO")
	for _, l := range ed.Lines {
		ratio := reconcile.FormatRatio(l.Ratio)
		if out[l.Index] {
			ratio = opts.paint("red", ratio)
		}
		doctor := orDash(l.Row.DoctorNames)
		if l.Dangling {
			doctor = opts.Badge("red", "MISSING ROW")
		}
		row(tw, strconv.Itoa(l.Index), strconv.FormatInt(l.Row.ID, 10), doctor, orDash(l.Row.ProductNames), ratio)
	}
	tw.Flush()

	total := reconcile.FormatRatio(ed.Check.Total)
	if ed.Check.Valid() {
		fmt.Fprintf(w, "total %s %s\n", total, opts.Badge("green", "OK"))
		return
	}
	fmt.Fprintf(w, "total %s, remaining %s %s\n", total, reconcile.FormatRatio(ed.Check.Remaining()), opts.Badge("red", "INVALID"))
}

// SplitRules renders saved rules, joining each entry to its master row when known
func SplitRules(w io.Writer, rules []model.SplitRule, rows []model.MasterRow, opts Options) {
	if len(rules) == 0 {
		fmt.Fprintln(w, "No split rules.")
		return
	}
	byID := make(map[int64]model.MasterRow, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	shown, hidden := opts.truncated(len(rules))

	tw := newTable(w)
	row(tw, "RULE", "PHARMACY", "PRODUCT KEY", "ROW", "DOCTOR", "RATIO")
	for _, rule := range rules[:shown] {
		for i, e := range rule.Rules {
			id, pharmacy, key := "", "", ""
			if i == 0 {
				id, pharmacy, key = strconv.FormatInt(rule.ID, 10), rule.PharmacyID, rule.ProductKey
			}
			doctor := "?"
			if r, ok := byID[e.MasterMappingID]; ok {
				doctor = orDash(r.DoctorNames)
			}
			row(tw, id, pharmacy, key, strconv.FormatInt(e.MasterMappingID, 10), doctor, reconcile.FormatRatio(e.Ratio))
		}
	}
	tw.Flush()
	moreRows(w, hidden)
}
