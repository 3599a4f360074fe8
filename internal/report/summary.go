package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// SummaryReport condenses one or more session event logs
type SummaryReport struct {
	GeneratedAt time.Time
	FirstEvent  time.Time
	LastEvent   time.Time

	// Unmatched mapping
	Mapped     int
	Ignored    int
	Retargeted int
	Reverted   int

	// Split rules
	RulesSaved          int
	RulesDeleted        int
	InvoicesReprocessed int

	// Master data
	RowsAdded   int
	RowsEdited  int
	RowsRemoved int

	Invalidations int
	SoftWarnings  int
	Failures      int

	TopErrors []ErrorSummary

	EventLogPaths []string
	SkippedLines  int
}

// ErrorSummary represents an error with its count
type ErrorSummary struct {
	Error string
	Kind  string
	Count int
}

// GenerateSummaryReport reads event logs and tallies what happened
func GenerateSummaryReport(eventLogPaths ...string) (*SummaryReport, error) {
	report := &SummaryReport{
		GeneratedAt:   time.Now(),
		EventLogPaths: eventLogPaths,
		TopErrors:     make([]ErrorSummary, 0),
	}

	var all []Event
	for _, path := range eventLogPaths {
		events, skipped, err := ReadEvents(path)
		if err != nil {
			return nil, err
		}
		report.SkippedLines += skipped
		all = append(all, events...)
	}

	summarize(report, all)
	report.TopErrors = gatherTopErrors(all, 10)
	return report, nil
}

func summarize(report *SummaryReport, events []Event) {
	for _, e := range events {
		if report.FirstEvent.IsZero() || e.Timestamp.Before(report.FirstEvent) {
			report.FirstEvent = e.Timestamp
		}
		if e.Timestamp.After(report.LastEvent) {
			report.LastEvent = e.Timestamp
		}

		if e.Level == LevelError {
			report.Failures++
			continue
		}

		switch e.Event {
		case EventMap:
			report.Mapped++
		case EventIgnore:
			report.Ignored++
		case EventRetarget:
			report.Retargeted++
		case EventRevert:
			report.Reverted++
		case EventSplitSave:
			report.RulesSaved++
			report.InvoicesReprocessed += e.Reprocessed
		case EventSplitDelete:
			report.RulesDeleted++
			report.InvoicesReprocessed += e.Reprocessed
		case EventMasterAdd:
			report.RowsAdded++
		case EventMasterEdit:
			report.RowsEdited++
		case EventMasterRemove:
			report.RowsRemoved++
		case EventInvalidate:
			report.Invalidations++
		case EventSoftWarning:
			report.SoftWarnings++
		}
	}
}

// gatherTopErrors returns the most common failure messages
func gatherTopErrors(events []Event, limit int) []ErrorSummary {
	type key struct{ msg, kind string }
	counts := make(map[key]int)
	for _, e := range events {
		if e.Level == LevelError && e.Error != "" {
			counts[key{e.Error, e.Kind}]++
		}
	}

	errs := make([]ErrorSummary, 0, len(counts))
	for k, count := range counts {
		errs = append(errs, ErrorSummary{Error: k.msg, Kind: k.kind, Count: count})
	}

	sort.Slice(errs, func(i, j int) bool {
		if errs[i].Count != errs[j].Count {
			return errs[i].Count > errs[j].Count
		}
		return errs[i].Error < errs[j].Error
	})

	if len(errs) > limit {
		errs = errs[:limit]
	}
	return errs
}

// WriteMarkdownReport writes the summary report as Markdown
func WriteMarkdownReport(report *SummaryReport, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(outputPath, []byte(RenderMarkdown(report)), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// RenderMarkdown formats the summary report as Markdown
func RenderMarkdown(report *SummaryReport) string {
	var md strings.Builder

	md.WriteString("# PRMS Console - Session Report\n\n")
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05")))
	if !report.FirstEvent.IsZero() {
		md.WriteString(fmt.Sprintf("**Span:** %s to %s (%s)\n\n",
			report.FirstEvent.Format("2006-01-02 15:04:05"),
			report.LastEvent.Format("2006-01-02 15:04:05"),
			report.LastEvent.Sub(report.FirstEvent).Round(time.Second)))
	}
	for _, p := range report.EventLogPaths {
		md.WriteString(fmt.Sprintf("**Event Log:** `%s`\n\n", p))
	}

	md.WriteString("---\n\n")

	if report.Mapped+report.Ignored+report.Retargeted+report.Reverted > 0 {
		md.WriteString("## Unmatched Records\n\n")
		md.WriteString("| Action | Count |\n")
		md.WriteString("|--------|-------|\n")
		md.WriteString(fmt.Sprintf("| Mapped | %s |\n", humanize.Comma(int64(report.Mapped))))
		md.WriteString(fmt.Sprintf("| Ignored | %s |\n", humanize.Comma(int64(report.Ignored))))
		if report.Retargeted > 0 {
			md.WriteString(fmt.Sprintf("| Retargeted | %s |\n", humanize.Comma(int64(report.Retargeted))))
		}
		if report.Reverted > 0 {
			md.WriteString(fmt.Sprintf("| Reverted | %s |\n", humanize.Comma(int64(report.Reverted))))
		}
		md.WriteString("\n")
	}

	if report.RulesSaved+report.RulesDeleted > 0 {
		md.WriteString("## Split Rules\n\n")
		md.WriteString("| Metric | Value |\n")
		md.WriteString("|--------|-------|\n")
		md.WriteString(fmt.Sprintf("| Rules Saved | %d |\n", report.RulesSaved))
		md.WriteString(fmt.Sprintf("| Rules Deleted | %d |\n", report.RulesDeleted))
		md.WriteString(fmt.Sprintf("| Invoices Reprocessed | %s |\n", humanize.Comma(int64(report.InvoicesReprocessed))))
		md.WriteString("\n")
	}

	if report.RowsAdded+report.RowsEdited+report.RowsRemoved > 0 {
		md.WriteString("## Master Data\n\n")
		md.WriteString("| Action | Count |\n")
		md.WriteString("|--------|-------|\n")
		md.WriteString(fmt.Sprintf("| Added | %d |\n", report.RowsAdded))
		md.WriteString(fmt.Sprintf("| Edited | %d |\n", report.RowsEdited))
		md.WriteString(fmt.Sprintf("| Removed | %d |\n", report.RowsRemoved))
		md.WriteString("\n")
	}

	md.WriteString("## Health\n\n")
	md.WriteString("| Metric | Value |\n")
	md.WriteString("|--------|-------|\n")
	md.WriteString(fmt.Sprintf("| Analytics Invalidations | %d |\n", report.Invalidations))
	md.WriteString(fmt.Sprintf("| Soft Warnings | %d |\n", report.SoftWarnings))
	md.WriteString(fmt.Sprintf("| Failures | %d |\n", report.Failures))
	if report.SkippedLines > 0 {
		md.WriteString(fmt.Sprintf("| Unreadable Log Lines | %d |\n", report.SkippedLines))
	}
	md.WriteString("\n")

	if len(report.TopErrors) > 0 {
		md.WriteString("## Top Errors\n\n")
		md.WriteString("| Count | Kind | Error |\n")
		md.WriteString("|-------|------|-------|\n")
		for _, e := range report.TopErrors {
			kind := e.Kind
			if kind == "" {
				kind = "-"
			}
			md.WriteString(fmt.Sprintf("| %d | %s | %s |\n", e.Count, kind, truncate(e.Error, 100)))
		}
		md.WriteString("\n")
	}

	md.WriteString("---\n\n")
	md.WriteString("*Generated by prms - Pharmacy Revenue Management console*\n")
	return md.String()
}

// truncate shortens s to maxLen, keeping the start and end
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	start := maxLen/2 - 2
	end := len(s) - (maxLen/2 - 2)
	return s[:start] + "..." + s[end:]
}
