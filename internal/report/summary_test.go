package report

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/franz/prms-console/internal/util"
)

func writeSession(t *testing.T) string {
	t.Helper()
	logger, err := NewEventLogger(t.TempDir(), LevelDebug)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	logger.LogMap(1, "P1", nil)
	logger.LogMap(2, "P1", nil)
	logger.LogMap(3, "P2", util.NewError(util.KindConflict, "already mapped"))
	logger.LogMap(4, "P2", util.NewError(util.KindConflict, "already mapped"))
	logger.LogIgnore(5, nil)
	logger.LogSplitSave(7, "P1", "P1|EXACT|PARACETAMOL", 12, time.Second, nil)
	logger.LogSplitDelete(8, "P2|EXACT|IBUPROFEN", 3, nil)
	logger.LogInvalidate("split_save")
	logger.LogSoftWarning("split_save", errors.New("clear-cache failed"))
	logger.LogMasterAdd(30, "P9", nil)
	logger.Close()
	return logger.Path()
}

func TestGenerateSummaryReport(t *testing.T) {
	path := writeSession(t)

	report, err := GenerateSummaryReport(path)
	if err != nil {
		t.Fatalf("GenerateSummaryReport failed: %v", err)
	}

	checks := []struct {
		name      string
		got, want int
	}{
		{"mapped", report.Mapped, 2},
		{"ignored", report.Ignored, 1},
		{"rules saved", report.RulesSaved, 1},
		{"rules deleted", report.RulesDeleted, 1},
		{"reprocessed", report.InvoicesReprocessed, 15},
		{"invalidations", report.Invalidations, 1},
		{"soft warnings", report.SoftWarnings, 1},
		{"failures", report.Failures, 2},
		{"rows added", report.RowsAdded, 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}

	if len(report.TopErrors) != 1 || report.TopErrors[0].Count != 2 || report.TopErrors[0].Kind != "conflict" {
		t.Errorf("unexpected top errors %+v", report.TopErrors)
	}
	if report.FirstEvent.IsZero() || report.LastEvent.Before(report.FirstEvent) {
		t.Errorf("bad span %v - %v", report.FirstEvent, report.LastEvent)
	}
}

func TestGenerateSummaryReportMissingFile(t *testing.T) {
	if _, err := GenerateSummaryReport(filepath.Join(t.TempDir(), "nope.jsonl")); err == nil {
		t.Error("missing event log should fail")
	}
}

func TestWriteMarkdownReport(t *testing.T) {
	report, err := GenerateSummaryReport(writeSession(t))
	if err != nil {
		t.Fatal(err)
	}
	outputPath := filepath.Join(t.TempDir(), "reports", "summary.md")

	if err := WriteMarkdownReport(report, outputPath); err != nil {
		t.Fatalf("WriteMarkdownReport failed: %v", err)
	}

	content, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("Failed to read report: %v", err)
	}
	md := string(content)

	for _, section := range []string{
		"# PRMS Console - Session Report",
		"## Unmatched Records",
		"## Split Rules",
		"## Master Data",
		"## Health",
		"## Top Errors",
		"| Invoices Reprocessed | 15 |",
		"| 2 | conflict |",
	} {
		if !strings.Contains(md, section) {
			t.Errorf("report missing %q", section)
		}
	}
}

func TestReportWithEmptyData(t *testing.T) {
	md := RenderMarkdown(&SummaryReport{GeneratedAt: time.Now()})

	if strings.Contains(md, "## Split Rules") || strings.Contains(md, "## Top Errors") {
		t.Error("empty report should omit empty sections")
	}
	if !strings.Contains(md, "## Health") {
		t.Error("health section is always present")
	}
}

func TestTruncate(t *testing.T) {
	short := "not found"
	if got := truncate(short, 100); got != short {
		t.Errorf("truncate changed a short string: %q", got)
	}
	long := strings.Repeat("x", 150)
	got := truncate(long, 100)
	if len(got) > 100 || !strings.Contains(got, "...") {
		t.Errorf("truncate(%d chars) = %d chars", len(long), len(got))
	}
}
