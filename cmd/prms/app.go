package main

import (
	"fmt"
	"os"

	"github.com/franz/prms-console/internal/analytics"
	"github.com/franz/prms-console/internal/gateway"
	"github.com/franz/prms-console/internal/keyvalue"
	"github.com/franz/prms-console/internal/report"
	"github.com/franz/prms-console/internal/signal"
	"github.com/franz/prms-console/internal/store"
	"github.com/franz/prms-console/internal/util"
	"github.com/franz/prms-console/internal/view"
	"github.com/franz/prms-console/internal/workflow"
	"github.com/spf13/viper"
)

// app is one console session: the wiring every command shares
type app struct {
	kv        *keyvalue.Store
	api       *gateway.Client
	bus       *signal.Bus
	store     *store.Store
	analytics *analytics.Cache
	events    *report.EventLogger

	split     *workflow.SplitRatio
	unmatched *workflow.UnmatchedMapping
	master    *workflow.MasterEditor

	opts view.Options
}

func newApp() (*app, error) {
	dbPath, err := GetConfigPath("db", defaultDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve state path: %w", err)
	}
	kv, err := keyvalue.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	api, err := gateway.New(gateway.Config{
		BaseURL:  util.GetBaseURL(),
		Timeout:  util.GetRequestTimeout(),
		RetryMax: util.GetRetryMax(),
		Tokens:   kv,
		OnUnauthorized: func() {
			util.WarnLog("Session expired or token rejected, signed out")
		},
	})
	if err != nil {
		kv.Close()
		return nil, err
	}

	events := report.NullLogger()
	if dir, _ := GetConfigPath("events_dir", ""); dir != "" {
		events, err = report.NewEventLogger(dir, report.ParseLevel(viper.GetString("events_level")))
		if err != nil {
			kv.Close()
			return nil, fmt.Errorf("failed to open event log: %w", err)
		}
		util.DebugLog("Event log: %s", events.Path())
	}

	bus := signal.NewBus()
	st := store.New(bus)
	cache := analytics.New(st, api.Analytics())

	a := &app{
		kv:        kv,
		api:       api,
		bus:       bus,
		store:     st,
		analytics: cache,
		events:    events,
		opts: view.Options{
			Color: util.ColorTables(viper.GetBool("no_color")),
			Limit: viper.GetInt("limit"),
		},
	}
	a.split = workflow.NewSplitRatio(workflow.SplitRatioConfig{
		Store:      st,
		Rules:      api.SplitRules(),
		Duplicates: api.MasterData(),
		Analytics:  api.Analytics(),
		Events:     events,
	})
	a.unmatched = workflow.NewUnmatchedMapping(workflow.UnmatchedConfig{
		Store:       st,
		Unmatched:   api.Unmatched(),
		NewlyMapped: api.NewlyMapped(),
		Events:      events,
		Debounce:    util.GetSearchDebounce(),
	})
	a.master = workflow.NewMasterEditor(workflow.MasterEditorConfig{
		Store:    st,
		Master:   api.MasterData(),
		Events:   events,
		PageSize: util.GetPageSize(),
	})
	return a, nil
}

func (a *app) Close() {
	a.unmatched.StopSearch()
	a.analytics.Close()
	if err := a.events.Close(); err != nil {
		util.WarnLog("Failed to close event log: %v", err)
	}
	if err := a.kv.Close(); err != nil {
		util.WarnLog("Failed to close state database: %v", err)
	}
}

// withApp opens a session for the duration of fn
func withApp(fn func(a *app) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// report prints a coordinator error with its kind badge and hands it back
func (a *app) report(err error) error {
	if err == nil {
		return nil
	}
	view.Error(os.Stderr, err, a.opts)
	return err
}

// warn prints a soft warning without failing the command
func (a *app) warn(err error) {
	if err != nil {
		view.Error(os.Stderr, err, a.opts)
	}
}
