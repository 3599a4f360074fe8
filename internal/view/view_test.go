package view

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/franz/prms-console/internal/model"
	"github.com/franz/prms-console/internal/store"
	"github.com/franz/prms-console/internal/util"
	"github.com/shopspring/decimal"
)

func group() model.DuplicateGroup {
	return model.DuplicateGroup{
		PharmacyID:        "P1",
		NormalizedProduct: "paracetamol",
		PharmacyName:      "City Pharmacy",
		ProductName:       "Paracetamol",
		Records: []model.MasterRow{
			{ID: 1, PharmacyID: "P1", ProductNames: "Paracetamol", DoctorNames: "Dr A"},
			{ID: 2, PharmacyID: "P1", ProductNames: "paracetamol", DoctorNames: "Dr B"},
		},
	}
}

func entry(id int64, ratio string) model.SplitEntry {
	return model.SplitEntry{MasterMappingID: id, Ratio: decimal.RequireFromString(ratio)}
}

func TestSplitEditorJoinsRows(t *testing.T) {
	ed := NewSplitEditor(group(), []model.SplitEntry{entry(2, "60"), entry(9, "40")}, nil)

	if len(ed.Lines) != 2 {
		t.Fatalf("lines = %d", len(ed.Lines))
	}
	if ed.Lines[0].Row.DoctorNames != "Dr B" || ed.Lines[0].Dangling {
		t.Errorf("line 0 = %+v", ed.Lines[0])
	}
	if !ed.Lines[1].Dangling {
		t.Error("entry for row 9 should be dangling")
	}
	if !ed.Check.Valid() {
		t.Errorf("60 + 40 should be valid, got %+v", ed.Check)
	}
}

func TestSplitEditorRender(t *testing.T) {
	tests := []struct {
		name    string
		entries []model.SplitEntry
		rule    *model.SplitRule
		want    []string
	}{
		{
			name:    "new valid",
			entries: []model.SplitEntry{entry(1, "50"), entry(2, "50")},
			want:    []string{"[NEW RULE]", "Dr A", "50.0%", "total 100.0% [OK]"},
		},
		{
			name:    "existing short",
			entries: []model.SplitEntry{entry(1, "33.3"), entry(2, "33.3")},
			rule:    &model.SplitRule{ID: 7},
			want:    []string{"[RULE #7]", "remaining 33.4%", "[INVALID]"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			NewSplitEditor(group(), tt.entries, tt.rule).Render(&buf, Options{})
			out := buf.String()
			for _, s := range tt.want {
				if !strings.Contains(out, s) {
					t.Errorf("output missing %q:\n%s", s, out)
				}
			}
			if strings.Contains(out, "\x1b[") {
				t.Error("colour codes emitted with Color off")
			}
		})
	}
}

func TestDuplicateListBadges(t *testing.T) {
	g := group()
	other := group()
	other.PharmacyID = "P2"
	rules := []model.SplitRule{{ID: 3, PharmacyID: "P1", ProductKey: "P1|EXACT|PARACETAMOL"}}

	var buf bytes.Buffer
	DuplicateList(&buf, []model.DuplicateGroup{g, other}, rules, Options{})
	out := buf.String()

	for _, s := range []string{"2 duplicate groups", "4 rows across 2 pharmacies", "1 with a split rule", "[RULE #3]", "[NO RULE]"} {
		if !strings.Contains(out, s) {
			t.Errorf("output missing %q:\n%s", s, out)
		}
	}
}

func TestMasterTableLimit(t *testing.T) {
	rows := make([]model.MasterRow, 1500)
	for i := range rows {
		rows[i] = model.MasterRow{ID: int64(i + 1), PharmacyID: "P", ProductNames: "X"}
	}

	var buf bytes.Buffer
	MasterTable(&buf, rows, Options{Limit: 10})
	out := buf.String()
	if !strings.Contains(out, "... 1,490 more") {
		t.Errorf("missing truncation footer:\n%s", out)
	}
	if lines := strings.Count(out, "\n"); lines != 12 {
		t.Errorf("lines = %d, want header + 10 rows + footer", lines)
	}
}

func TestAnalyticsVerbatim(t *testing.T) {
	raw := `{"total_revenue":1234567.891,"growth_rate":-3.14159,"period":"2024-Q1",` +
		`"pharmacy_revenue":[{"pharmacy_name":"City","revenue":100.10},{"pharmacy_name":"Town","revenue":5e3}],` +
		`"summary_metrics":{"total_invoices":42,"avg":null}}`
	data := store.AnalyticsData{Raw: json.RawMessage(raw), FetchedAt: time.Now()}

	var buf bytes.Buffer
	Analytics(&buf, store.Dashboard, data, Options{})
	out := buf.String()

	for _, s := range []string{"1234567.891", "-3.14159", "2024-Q1", "PHARMACY_NAME", "100.10", "5e3", "total_invoices:", "pharmacy_revenue (2)"} {
		if !strings.Contains(out, s) {
			t.Errorf("output missing %q:\n%s", s, out)
		}
	}
}

func TestAnalyticsEmpty(t *testing.T) {
	var buf bytes.Buffer
	Analytics(&buf, store.ByDoctor, store.AnalyticsData{}, Options{})
	if !strings.Contains(buf.String(), "No data.") || !strings.Contains(buf.String(), "never") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestErrorBadge(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{util.Validation("ratios total 99.9"), "[VALIDATION]"},
		{util.Busy("save"), "[BUSY]"},
		{util.NewError(util.KindConflict, "exists"), "[CONFLICT]"},
		{errors.New("plain"), "[ERROR]"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		Error(&buf, tt.err, Options{})
		if !strings.HasPrefix(buf.String(), tt.want) {
			t.Errorf("Error(%v) = %q, want prefix %s", tt.err, buf.String(), tt.want)
		}
	}
}

func TestColorEnabled(t *testing.T) {
	var buf bytes.Buffer
	Error(&buf, util.Validation("x"), Options{Color: true})
	if !strings.Contains(buf.String(), "\x1b[") {
		t.Errorf("expected ANSI codes, got %q", buf.String())
	}
}
