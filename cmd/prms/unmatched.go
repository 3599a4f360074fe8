package main

import (
	"fmt"
	"os"
	"time"

	"github.com/franz/prms-console/internal/model"
	"github.com/franz/prms-console/internal/util"
	"github.com/franz/prms-console/internal/view"
	"github.com/franz/prms-console/internal/workflow"
	"github.com/spf13/cobra"
)

var unmatchedCmd = &cobra.Command{
	Use:   "unmatched",
	Short: "Review invoice pharmacies that failed auto-match",
}

var unmatchedListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending unmatched records",
	Args:  cobra.NoArgs,
	RunE:  runUnmatchedList,
}

var unmatchedMapCmd = &cobra.Command{
	Use:   "map <id> <master-pharmacy-id>",
	Short: "Map an unmatched record to a master pharmacy",
	Args:  cobra.ExactArgs(2),
	RunE:  runUnmatchedMap,
}

var unmatchedIgnoreCmd = &cobra.Command{
	Use:   "ignore <id>",
	Short: "Mark an unmatched record as ignored",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnmatchedIgnore,
}

var unmatchedSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search master pharmacies to map to",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnmatchedSearch,
}

var unmatchedExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Download unmatched records as a spreadsheet",
	Args:  cobra.NoArgs,
	RunE:  runUnmatchedExport,
}

var newlyCmd = &cobra.Command{
	Use:     "newlymapped",
	Aliases: []string{"newly"},
	Short:   "Review records mapped since the last ingest",
}

var newlyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List newly mapped records",
	Args:  cobra.NoArgs,
	RunE:  runNewlyList,
}

var newlyRetargetCmd = &cobra.Command{
	Use:   "retarget <id> <master-pharmacy-id>",
	Short: "Point a newly mapped record at a different master pharmacy",
	Args:  cobra.ExactArgs(2),
	RunE:  runNewlyRetarget,
}

var newlyRevertCmd = &cobra.Command{
	Use:   "revert <id>",
	Short: "Undo a mapping and return the record to the unmatched queue",
	Args:  cobra.ExactArgs(1),
	RunE:  runNewlyRevert,
}

func init() {
	rootCmd.AddCommand(unmatchedCmd, newlyCmd)
	unmatchedCmd.AddCommand(unmatchedListCmd, unmatchedMapCmd, unmatchedIgnoreCmd, unmatchedSearchCmd, unmatchedExportCmd)
	newlyCmd.AddCommand(newlyListCmd, newlyRetargetCmd, newlyRevertCmd)

	unmatchedListCmd.Flags().String("search", "", "filter by pharmacy name, generated id or product")
	unmatchedListCmd.Flags().Int("limit", 0, "print at most this many records")
	unmatchedSearchCmd.Flags().Bool("local", false, "filter an already fetched master list instead of asking the server per query")
	unmatchedExportCmd.Flags().String("out", ".", "directory to write the file to")
	newlyListCmd.Flags().Int("limit", 0, "print at most this many records")
}

func runUnmatchedList(cmd *cobra.Command, args []string) error {
	search, _ := cmd.Flags().GetString("search")
	limit, _ := cmd.Flags().GetInt("limit")

	return withApp(func(a *app) error {
		if _, err := a.unmatched.ListPending(cmd.Context()); err != nil {
			return a.report(err)
		}
		opts := a.opts
		opts.Limit = limit
		view.UnmatchedTable(os.Stdout, a.unmatched.Filter(search), opts)
		return nil
	})
}

func runUnmatchedMap(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return withApp(func(a *app) error {
		if err := a.unmatched.MapTo(cmd.Context(), id, args[1]); err != nil {
			if !util.IsKind(err, util.KindSoftWarning) {
				return a.report(err)
			}
			a.warn(err)
		}
		util.SuccessLog("Mapped record %d to %s", id, args[1])
		return nil
	})
}

func runUnmatchedIgnore(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return withApp(func(a *app) error {
		if err := a.unmatched.Ignore(cmd.Context(), id); err != nil {
			return a.report(err)
		}
		util.SuccessLog("Ignored record %d", id)
		return nil
	})
}

func runUnmatchedSearch(cmd *cobra.Command, args []string) error {
	local, _ := cmd.Flags().GetBool("local")

	return withApp(func(a *app) error {
		ctx := cmd.Context()
		if local {
			all, err := a.unmatched.LookupMasters(ctx, "")
			if err != nil {
				return a.report(err)
			}
			view.MasterPharmacies(os.Stdout, workflow.FilterMasters(all, args[0]), a.opts)
			return nil
		}

		type result struct {
			list []model.MasterPharmacy
			err  error
		}
		done := make(chan result, 1)
		a.unmatched.SearchMasters(ctx, args[0], func(list []model.MasterPharmacy, err error) {
			done <- result{list, err}
		})
		select {
		case r := <-done:
			if r.err != nil {
				return a.report(r.err)
			}
			view.MasterPharmacies(os.Stdout, r.list, a.opts)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(util.GetRequestTimeout() + util.GetSearchDebounce()):
			return fmt.Errorf("master pharmacy search timed out")
		}
	})
}

func runUnmatchedExport(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")
	return withApp(func(a *app) error {
		blob, err := a.api.Unmatched().ExportXlsx(cmd.Context())
		if err != nil {
			return a.report(err)
		}
		return saveBlob(blob, out)
	})
}

func runNewlyList(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	return withApp(func(a *app) error {
		records, err := a.unmatched.ListNewlyMapped(cmd.Context())
		if err != nil {
			return a.report(err)
		}
		opts := a.opts
		opts.Limit = limit
		view.NewlyMappedTable(os.Stdout, records, opts)
		return nil
	})
}

func runNewlyRetarget(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return withApp(func(a *app) error {
		if err := a.unmatched.Retarget(cmd.Context(), id, args[1]); err != nil {
			if !util.IsKind(err, util.KindSoftWarning) {
				return a.report(err)
			}
			a.warn(err)
		}
		util.SuccessLog("Record %d now maps to %s", id, args[1])
		return nil
	})
}

func runNewlyRevert(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return withApp(func(a *app) error {
		if err := a.unmatched.Revert(cmd.Context(), id); err != nil {
			if !util.IsKind(err, util.KindSoftWarning) {
				return a.report(err)
			}
			a.warn(err)
		}
		util.SuccessLog("Record %d returned to the unmatched queue", id)
		return nil
	})
}
