package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/franz/prms-console/internal/store"
	"github.com/franz/prms-console/internal/util"
	"github.com/franz/prms-console/internal/view"
	"github.com/spf13/cobra"
)

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Show revenue analytics computed by the backend",
}

var analyticsShowCmd = &cobra.Command{
	Use:   "show [projection...]",
	Short: "Fetch and print analytics projections (default: dashboard)",
	Long: `Fetch and print analytics projections. Values are printed exactly as the
backend computed them.

Projections: ` + projectionNames(),
	RunE: runAnalyticsShow,
}

var analyticsRefreshCmd = &cobra.Command{
	Use:   "refresh [projection...]",
	Short: "Clear the backend's aggregate cache and refetch projections",
	RunE:  runAnalyticsRefresh,
}

var analyticsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available projections",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, p := range store.Projections {
			fmt.Printf("%-15s /api/v1/analytics/%s\n", p, p.Endpoint())
		}
	},
}

func init() {
	rootCmd.AddCommand(analyticsCmd)
	analyticsCmd.AddCommand(analyticsShowCmd, analyticsRefreshCmd, analyticsListCmd)

	for _, cmd := range []*cobra.Command{analyticsShowCmd, analyticsRefreshCmd} {
		cmd.Flags().Bool("all", false, "every projection")
		cmd.Flags().Int("limit", 0, "print at most this many rows per table")
	}
}

func projectionNames() string {
	names := make([]string, len(store.Projections))
	for i, p := range store.Projections {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}

func projectionsFromArgs(cmd *cobra.Command, args []string) ([]store.Projection, error) {
	if all, _ := cmd.Flags().GetBool("all"); all {
		return store.Projections, nil
	}
	if len(args) == 0 {
		return []store.Projection{store.Dashboard}, nil
	}
	var out []store.Projection
	for _, a := range args {
		p, ok := store.ParseProjection(a)
		if !ok {
			return nil, util.Validation("unknown projection %q (one of %s)", a, projectionNames())
		}
		out = append(out, p)
	}
	return out, nil
}

func runAnalyticsShow(cmd *cobra.Command, args []string) error {
	ps, err := projectionsFromArgs(cmd, args)
	if err != nil {
		return err
	}
	return withApp(func(a *app) error {
		for _, p := range ps {
			if _, err := a.analytics.Observe(cmd.Context(), p); err != nil {
				return a.report(err)
			}
		}
		printProjections(cmd, a, ps)
		return nil
	})
}

func runAnalyticsRefresh(cmd *cobra.Command, args []string) error {
	ps, err := projectionsFromArgs(cmd, args)
	if err != nil {
		return err
	}
	return withApp(func(a *app) error {
		ctx := cmd.Context()
		if err := a.api.Analytics().ClearCache(ctx); err != nil {
			a.warn(util.SoftWarning(err, "clearing the backend analytics cache failed"))
		}
		if err := observeAll(ctx, a, ps); err != nil {
			return a.report(err)
		}
		if err := a.analytics.Refresh(ctx); err != nil {
			return a.report(err)
		}
		printProjections(cmd, a, ps)
		return nil
	})
}

func observeAll(ctx context.Context, a *app, ps []store.Projection) error {
	for _, p := range ps {
		if _, err := a.analytics.Observe(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func printProjections(cmd *cobra.Command, a *app, ps []store.Projection) {
	limit, _ := cmd.Flags().GetInt("limit")
	opts := a.opts
	opts.Limit = limit
	for i, p := range ps {
		if i > 0 {
			fmt.Println()
		}
		snap := a.store.Analytics(p).Snapshot()
		if snap.Err != nil {
			view.Error(os.Stdout, snap.Err, opts)
			continue
		}
		view.Analytics(os.Stdout, p, snap.Data, opts)
	}
}
