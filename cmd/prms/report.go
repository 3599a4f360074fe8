package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/franz/prms-console/internal/report"
	"github.com/franz/prms-console/internal/util"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report [events.jsonl...]",
	Short: "Summarise the audit trail written with --events-dir",
	Long: `Generate a Markdown summary of console sessions from their JSONL event logs.

The report includes:
- Mappings, ignores, retargets and reverts
- Split rules saved and deleted, with invoices reprocessed
- Master rows added, edited and removed
- Analytics invalidations and soft warnings
- Top errors

With no arguments every events-*.jsonl file in --events-dir is read.`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().String("out", "", "write the report to this file instead of stdout")
}

func runReport(cmd *cobra.Command, args []string) error {
	paths := args
	if len(paths) == 0 {
		dir, err := GetConfigPath("events_dir", "")
		if err != nil {
			return err
		}
		if dir == "" {
			return util.Validation("no event logs given and --events-dir is not set")
		}
		paths, err = filepath.Glob(filepath.Join(dir, "events-*.jsonl"))
		if err != nil {
			return fmt.Errorf("failed to list event logs: %w", err)
		}
		sort.Strings(paths)
		if len(paths) == 0 {
			util.WarnLog("No event logs in %s", dir)
			return nil
		}
	}

	util.DebugLog("Reading %d event logs", len(paths))
	summary, err := report.GenerateSummaryReport(paths...)
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}
	if summary.SkippedLines > 0 {
		util.WarnLog("Skipped %d unreadable lines", summary.SkippedLines)
	}

	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		fmt.Print(report.RenderMarkdown(summary))
		return nil
	}
	if err := report.WriteMarkdownReport(summary, out); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	util.SuccessLog("Report saved to %s", out)
	return nil
}
