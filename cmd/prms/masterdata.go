package main

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/prms-console/internal/gateway"
	"github.com/franz/prms-console/internal/model"
	"github.com/franz/prms-console/internal/reconcile"
	"github.com/franz/prms-console/internal/util"
	"github.com/franz/prms-console/internal/view"
	"github.com/franz/prms-console/internal/workflow"
	"github.com/schollz/progressbar/v3"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var masterCmd = &cobra.Command{
	Use:     "masterdata",
	Aliases: []string{"master", "md"},
	Short:   "List and edit the master reference catalog",
}

var masterListCmd = &cobra.Command{
	Use:   "list",
	Short: "Fetch the whole catalog in batches and print it",
	Args:  cobra.NoArgs,
	RunE:  runMasterList,
}

var masterAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a master row",
	Long: `Add a master row. Known ids fill in their names and known names fill in
their ids from the server's mapping tables; values given on the command line
are never overwritten.

Example:
  prms masterdata add --pharmacy-id P1 --product-names "Paracetamol 500" --product-id PR1 --doctor-id D7`,
	Args: cobra.NoArgs,
	RunE: runMasterAdd,
}

var masterEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change fields of a master row",
	Args:  cobra.ExactArgs(1),
	RunE:  runMasterEdit,
}

var masterRemoveCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a master row",
	Args:    cobra.ExactArgs(1),
	RunE:    runMasterRemove,
}

var masterDuplicatesCmd = &cobra.Command{
	Use:     "duplicates",
	Aliases: []string{"dups"},
	Short:   "Show (pharmacy, product) groups with more than one row",
	Args:    cobra.NoArgs,
	RunE:    runMasterDuplicates,
}

var masterExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Download the catalog as a spreadsheet",
	Args:  cobra.NoArgs,
	RunE:  runMasterExport,
}

var masterImportCmd = &cobra.Command{
	Use:   "import <file.xlsx>",
	Short: "Upload a master-data spreadsheet",
	Args:  cobra.ArbitraryArgs,
	RunE:  runMasterImport,
}

func init() {
	rootCmd.AddCommand(masterCmd)
	masterCmd.AddCommand(masterListCmd, masterAddCmd, masterEditCmd, masterRemoveCmd,
		masterDuplicatesCmd, masterExportCmd, masterImportCmd)

	masterListCmd.Flags().String("search", "", "only rows whose pharmacy, product or doctor contains this text")
	masterListCmd.Flags().Int("limit", 0, "print at most this many rows")

	for _, cmd := range []*cobra.Command{masterAddCmd, masterEditCmd} {
		for _, f := range workflow.Fields {
			cmd.Flags().String(flagName(f), "", string(f))
		}
		cmd.Flags().String("price", "", "product price")
	}

	masterDuplicatesCmd.Flags().String("search", "", "only groups matching this text")
	masterDuplicatesCmd.Flags().Int("limit", 0, "print at most this many groups")

	masterExportCmd.Flags().String("out", ".", "directory to write the file to")
}

func flagName(f workflow.Field) string {
	return strings.ReplaceAll(string(f), "_", "-")
}

// loadCatalog runs the pager with a progress bar on a terminal
func loadCatalog(ctx context.Context, a *app) ([]model.MasterRow, error) {
	var bar *progressbar.ProgressBar
	if util.ShowProgress() {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Loading master data"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("rows"),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetRenderBlankState(true),
		)
	}

	rows, err := a.master.ListAllPaged(ctx, func(loaded, total int) {
		if bar == nil {
			return
		}
		if total > 0 {
			bar.ChangeMax(total)
		}
		bar.Set(loaded)
	})
	if bar != nil {
		bar.Finish()
	}
	return rows, err
}

func runMasterList(cmd *cobra.Command, args []string) error {
	search, _ := cmd.Flags().GetString("search")
	limit, _ := cmd.Flags().GetInt("limit")

	return withApp(func(a *app) error {
		rows, err := loadCatalog(cmd.Context(), a)
		if err != nil {
			return a.report(err)
		}
		util.InfoLog("Loaded %s master rows", humanize.Comma(int64(len(rows))))

		if q := strings.ToLower(strings.TrimSpace(search)); q != "" {
			var kept []model.MasterRow
			for _, r := range rows {
				if strings.Contains(strings.ToLower(r.PharmacyID+" "+r.PharmacyNames+" "+r.ProductNames+" "+r.DoctorNames), q) {
					kept = append(kept, r)
				}
			}
			rows = kept
		}

		opts := a.opts
		opts.Limit = limit
		view.MasterTable(os.Stdout, rows, opts)
		return nil
	})
}

func runMasterAdd(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app) error {
		form, err := a.master.OpenAddDialog(cmd.Context())
		if err != nil {
			return a.report(err)
		}
		for _, f := range workflow.Fields {
			if cmd.Flags().Changed(flagName(f)) {
				v, _ := cmd.Flags().GetString(flagName(f))
				form.Set(f, v)
			}
		}
		if cmd.Flags().Changed("price") {
			price, err := parsePrice(cmd.Flags())
			if err != nil {
				return a.report(err)
			}
			form.SetPrice(price)
		}
		for _, f := range workflow.Fields {
			if v := form.Value(f); v != "" && !form.Typed(f) {
				util.InfoLog("Filled %s = %s", f, v)
			}
		}

		row, err := a.master.Add(cmd.Context(), form.Row())
		if err != nil {
			return a.report(err)
		}
		util.SuccessLog("Added master row %d", row.ID)
		view.MasterTable(os.Stdout, []model.MasterRow{row}, a.opts)
		return nil
	})
}

func runMasterEdit(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	patch, err := patchFromFlags(cmd.Flags())
	if err != nil {
		return err
	}

	return withApp(func(a *app) error {
		row, err := a.master.Edit(cmd.Context(), id, patch)
		if err != nil {
			return a.report(err)
		}
		util.SuccessLog("Updated %s on master row %d", strings.Join(workflow.PatchFields(patch), ", "), id)
		view.MasterTable(os.Stdout, []model.MasterRow{row}, a.opts)
		return nil
	})
}

func runMasterRemove(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return withApp(func(a *app) error {
		if err := a.master.Remove(cmd.Context(), id); err != nil {
			return a.report(err)
		}
		util.SuccessLog("Removed master row %d", id)
		return nil
	})
}

func runMasterDuplicates(cmd *cobra.Command, args []string) error {
	search, _ := cmd.Flags().GetString("search")
	limit, _ := cmd.Flags().GetInt("limit")

	return withApp(func(a *app) error {
		groups, rules, err := loadGroupsAndRules(cmd.Context(), a)
		if err != nil {
			return a.report(err)
		}
		groups = reconcile.FilterGroups(groups, search)
		reconcile.SortGroups(groups)

		opts := a.opts
		opts.Limit = limit
		view.DuplicateList(os.Stdout, groups, rules, opts)
		return nil
	})
}

// loadGroupsAndRules fills the duplicates and splitRules partitions. Server
// groups are used when offered; otherwise the catalog is paged in and grouped.
func loadGroupsAndRules(ctx context.Context, a *app) ([]model.DuplicateGroup, []model.SplitRule, error) {
	groups, err := a.master.LoadDuplicates(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(groups) == 0 && !a.store.MasterData.Snapshot().Loaded() {
		if _, err := loadCatalog(ctx, a); err != nil {
			return nil, nil, err
		}
		groups = a.store.Duplicates.Data()
	}

	ticket := a.store.SplitRules.Begin()
	rules, err := a.api.SplitRules().List(ctx)
	if err != nil {
		a.store.SplitRules.Failure(ticket, err)
		return nil, nil, err
	}
	a.store.SplitRules.Success(ticket, rules)
	return groups, rules, nil
}

func runMasterExport(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")
	return withApp(func(a *app) error {
		blob, err := a.api.MasterData().ExportXlsx(cmd.Context())
		if err != nil {
			return a.report(err)
		}
		return saveBlob(blob, out)
	})
}

func runMasterImport(cmd *cobra.Command, args []string) error {
	up, err := gateway.ReadUpload(args)
	if err != nil {
		return err
	}
	return withApp(func(a *app) error {
		res, err := a.api.MasterData().ImportXlsx(cmd.Context(), up)
		if err != nil {
			return a.report(err)
		}
		util.SuccessLog("Imported %s: %d rows processed, %d matched, %d unmatched",
			up.Filename, res.RowsProcessed, res.MatchedCount, res.UnmatchedCount)
		if res.Message != "" {
			util.InfoLog("%s", res.Message)
		}
		a.events.LogInvalidate("master_import")
		a.store.InvalidateAnalytics()
		return nil
	})
}

func saveBlob(blob gateway.Blob, dir string) error {
	path, err := blob.Save(dir)
	if err != nil {
		return err
	}
	util.SuccessLog("Saved %s (%s)", path, humanize.Bytes(uint64(len(blob.Body))))
	return nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, util.Validation("%q is not a record id", s)
	}
	return id, nil
}

func parsePrice(flags *pflag.FlagSet) (decimal.Decimal, error) {
	s, _ := flags.GetString("price")
	price, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || price.IsNegative() {
		return decimal.Zero, util.Validation("price %q is not a non-negative number", s)
	}
	return price, nil
}

// patchFromFlags builds a patch from the flags given on the command line.
// A flag set to "" blanks the field.
func patchFromFlags(flags *pflag.FlagSet) (model.MasterPatch, error) {
	var p model.MasterPatch
	targets := map[workflow.Field]**string{
		workflow.FieldPharmacyID:   &p.PharmacyID,
		workflow.FieldPharmacyName: &p.PharmacyNames,
		workflow.FieldProductName:  &p.ProductNames,
		workflow.FieldProductID:    &p.ProductID,
		workflow.FieldDoctorName:   &p.DoctorNames,
		workflow.FieldDoctorID:     &p.DoctorID,
		workflow.FieldRepName:      &p.RepNames,
		workflow.FieldHQ:           &p.HQ,
		workflow.FieldArea:         &p.Area,
	}
	for _, f := range workflow.Fields {
		if !flags.Changed(flagName(f)) {
			continue
		}
		v, _ := flags.GetString(flagName(f))
		v = strings.TrimSpace(v)
		*targets[f] = &v
	}
	if flags.Changed("price") {
		price, err := parsePrice(flags)
		if err != nil {
			return p, err
		}
		p.ProductPrice = &price
	}
	if p.IsEmpty() {
		return p, util.Validation("nothing to change: pass at least one field flag")
	}
	return p, nil
}
