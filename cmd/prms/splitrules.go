package main

import (
	"context"
	"os"
	"strings"

	"github.com/franz/prms-console/internal/gateway"
	"github.com/franz/prms-console/internal/model"
	"github.com/franz/prms-console/internal/reconcile"
	"github.com/franz/prms-console/internal/util"
	"github.com/franz/prms-console/internal/view"
	"github.com/spf13/cobra"
)

var splitCmd = &cobra.Command{
	Use:     "splitrules",
	Aliases: []string{"split"},
	Short:   "Edit how a duplicate product's revenue is split between doctors",
}

var splitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved split rules",
	Args:  cobra.NoArgs,
	RunE:  runSplitList,
}

var splitEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open the split editor for one duplicate group and save it",
	Long: `Open the split editor for the duplicate group of --pharmacy and --product.

The buffer starts from the group's saved rule, or an equal split for a new
rule. Each --ratio ROW=VALUE changes the share of master row ROW. Ratios must
add up to 100 (within 0.1) before the rule is sent.

Example:
  prms splitrules edit --pharmacy P1 --product Paracetamol -r 101=50 -r 102=30 -r 103=20`,
	Args: cobra.NoArgs,
	RunE: runSplitEdit,
}

var splitDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete the split rule of a duplicate group",
	Args:  cobra.NoArgs,
	RunE:  runSplitDelete,
}

var splitImportCmd = &cobra.Command{
	Use:   "import <file.xlsx>",
	Short: "Upload a split-rule spreadsheet",
	Args:  cobra.ArbitraryArgs,
	RunE:  runSplitImport,
}

var splitExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Download split rules as a spreadsheet",
	Args:  cobra.NoArgs,
	RunE:  runSplitExport,
}

func init() {
	rootCmd.AddCommand(splitCmd)
	splitCmd.AddCommand(splitListCmd, splitEditCmd, splitDeleteCmd, splitImportCmd, splitExportCmd)

	splitListCmd.Flags().Bool("doctors", false, "load the catalog to show doctor names")

	for _, cmd := range []*cobra.Command{splitEditCmd, splitDeleteCmd} {
		cmd.Flags().String("pharmacy", "", "pharmacy id of the group (required)")
		cmd.Flags().String("product", "", "product name of the group (required)")
		cmd.MarkFlagRequired("pharmacy")
		cmd.MarkFlagRequired("product")
	}
	splitEditCmd.Flags().StringArrayP("ratio", "r", nil, "ROW=VALUE share for a master row, repeatable")
	splitEditCmd.Flags().Bool("equal", false, "start from an equal split even when a rule exists")
	splitEditCmd.Flags().Bool("dry-run", false, "show the editor without saving")

	splitExportCmd.Flags().String("out", ".", "directory to write the file to")
}

func runSplitList(cmd *cobra.Command, args []string) error {
	doctors, _ := cmd.Flags().GetBool("doctors")
	return withApp(func(a *app) error {
		rules, err := a.api.SplitRules().List(cmd.Context())
		if err != nil {
			return a.report(err)
		}
		a.store.SplitRules.Replace(rules)

		var rows []model.MasterRow
		if doctors {
			if rows, err = loadCatalog(cmd.Context(), a); err != nil {
				return a.report(err)
			}
		}
		view.SplitRules(os.Stdout, rules, rows, a.opts)
		return nil
	})
}

// findGroup picks the duplicate group of a pharmacy whose product key matches the
// given name. Failing that, a single group whose product normalizes alike is used.
func findGroup(groups []model.DuplicateGroup, pharmacyID, product string) (model.DuplicateGroup, error) {
	pharmacyID = strings.TrimSpace(pharmacyID)
	key := reconcile.ProductKey(pharmacyID, product)
	want := reconcile.Normalize(product)

	var loose []model.DuplicateGroup
	for _, g := range groups {
		if g.PharmacyID != pharmacyID {
			continue
		}
		if reconcile.GroupProductKey(g) == key {
			return g, nil
		}
		if reconcile.Normalize(g.NormalizedProduct) == want {
			loose = append(loose, g)
		}
	}

	switch len(loose) {
	case 0:
		return model.DuplicateGroup{}, util.Validation("no duplicate group for %s / %s", pharmacyID, product)
	case 1:
		return loose[0], nil
	}
	names := make([]string, len(loose))
	for i, g := range loose {
		names[i] = g.ProductName
	}
	return model.DuplicateGroup{}, util.Validation("%s / %s matches %d groups (%s), use the exact product name",
		pharmacyID, product, len(loose), strings.Join(names, ", "))
}

func groupFromFlags(ctx context.Context, cmd *cobra.Command, a *app) (model.DuplicateGroup, error) {
	pharmacy, _ := cmd.Flags().GetString("pharmacy")
	product, _ := cmd.Flags().GetString("product")
	groups, _, err := loadGroupsAndRules(ctx, a)
	if err != nil {
		return model.DuplicateGroup{}, err
	}
	return findGroup(groups, pharmacy, product)
}

// parseRatioArg splits ROW=VALUE
func parseRatioArg(s string) (int64, string, error) {
	row, value, ok := strings.Cut(s, "=")
	if !ok {
		return 0, "", util.Validation("ratio %q must look like ROW=VALUE", s)
	}
	id, err := parseID(row)
	if err != nil {
		return 0, "", err
	}
	return id, value, nil
}

func runSplitEdit(cmd *cobra.Command, args []string) error {
	ratioArgs, _ := cmd.Flags().GetStringArray("ratio")
	equal, _ := cmd.Flags().GetBool("equal")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	return withApp(func(a *app) error {
		ctx := cmd.Context()
		group, err := groupFromFlags(ctx, cmd, a)
		if err != nil {
			return a.report(err)
		}
		if err := a.split.OpenEditor(ctx, group); err != nil {
			return a.report(err)
		}
		defer a.split.Cancel()

		if equal {
			for i, e := range reconcile.SeedEqualSplit(group) {
				if err := a.split.UpdateRatio(i, e.Ratio); err != nil {
					return a.report(err)
				}
			}
		}

		index := make(map[int64]int)
		for i, e := range a.split.Buffer() {
			index[e.MasterMappingID] = i
		}
		for _, s := range ratioArgs {
			id, value, err := parseRatioArg(s)
			if err != nil {
				return a.report(err)
			}
			i, ok := index[id]
			if !ok {
				return a.report(util.Validation("master row %d is not part of this group", id))
			}
			ratio, err := reconcile.ParseRatio(value)
			if err != nil {
				return a.report(err)
			}
			if err := a.split.UpdateRatio(i, ratio); err != nil {
				return a.report(err)
			}
		}

		renderEditor(a, group)
		if dryRun {
			return nil
		}

		created, err := a.split.Save(ctx)
		switch {
		case err == nil:
		case util.IsKind(err, util.KindSoftWarning):
			a.warn(err)
		default:
			return a.report(err)
		}
		util.SuccessLog("Saved split rule %d, %d invoices reprocessed", created.ID, created.InvoicesReprocessed)
		return nil
	})
}

func renderEditor(a *app, group model.DuplicateGroup) {
	var existing *model.SplitRule
	if rule, ok := a.split.Existing(); ok {
		existing = &rule
	}
	ed := view.NewSplitEditor(group, a.split.Buffer(), existing)
	ed.State = string(a.split.State())
	ed.Render(os.Stdout, a.opts)
}

func runSplitDelete(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app) error {
		ctx := cmd.Context()
		group, err := groupFromFlags(ctx, cmd, a)
		if err != nil {
			return a.report(err)
		}
		res, err := a.split.DeleteRule(ctx, group)
		switch {
		case err == nil:
		case util.IsKind(err, util.KindSoftWarning):
			a.warn(err)
		default:
			return a.report(err)
		}
		util.SuccessLog("Deleted split rule for %s, %d invoices reprocessed", reconcile.GroupProductKey(group), res.InvoicesReprocessed)
		return nil
	})
}

func runSplitImport(cmd *cobra.Command, args []string) error {
	up, err := gateway.ReadUpload(args)
	if err != nil {
		return err
	}
	return withApp(func(a *app) error {
		res, err := a.api.SplitRules().ImportXlsx(cmd.Context(), up)
		if err != nil {
			return a.report(err)
		}
		util.SuccessLog("Imported %s: %d new, %d updated", up.Filename, res.Imported, res.Updated)
		for _, e := range res.Errors {
			util.WarnLog("  %s", e)
		}
		a.events.LogInvalidate("split_import")
		a.store.InvalidateAnalytics()
		return nil
	})
}

func runSplitExport(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")
	return withApp(func(a *app) error {
		blob, err := a.api.SplitRules().ExportXlsx(cmd.Context())
		if err != nil {
			return a.report(err)
		}
		return saveBlob(blob, out)
	})
}
