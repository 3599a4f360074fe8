// Package workflow holds the coordinators that turn operator actions into
// gateway calls and store updates. All mutations are pessimistic: the store
// changes only after the server confirms.
package workflow

import (
	"context"
	"sync"

	"github.com/franz/prms-console/internal/model"
	"github.com/franz/prms-console/internal/reconcile"
	"github.com/franz/prms-console/internal/report"
	"github.com/franz/prms-console/internal/store"
	"github.com/franz/prms-console/internal/util"
)

// SplitRulesGateway is the part of the backend the split-ratio editor needs
type SplitRulesGateway interface {
	List(ctx context.Context) ([]model.SplitRule, error)
	Create(ctx context.Context, rule model.SplitRuleCreate) (model.SplitRuleCreated, error)
	Delete(ctx context.Context, id int64) (model.SplitRuleDeleted, error)
}

// DuplicatesGateway returns server-computed duplicate groups. ok is false
// when the server does not provide them.
type DuplicatesGateway interface {
	Duplicates(ctx context.Context) (groups []model.DuplicateGroup, ok bool, err error)
}

// MasterDataGateway is the master-data CRUD surface
type MasterDataGateway interface {
	DuplicatesGateway
	List(ctx context.Context, skip, limit int) (model.MasterPage, error)
	Create(ctx context.Context, row model.MasterRow) (model.MasterRow, error)
	Update(ctx context.Context, id int64, patch model.MasterPatch) (model.MasterRow, error)
	Delete(ctx context.Context, id int64) error
	UniqueValues(ctx context.Context) (model.UniqueValues, error)
}

// UnmatchedGateway is the unmatched-queue surface
type UnmatchedGateway interface {
	List(ctx context.Context) ([]model.UnmatchedRecord, error)
	Map(ctx context.Context, id int64, masterPharmacyID string) error
	Ignore(ctx context.Context, id int64) error
	MasterPharmacies(ctx context.Context, query string) ([]model.MasterPharmacy, error)
}

// NewlyMappedGateway is the newly-mapped surface
type NewlyMappedGateway interface {
	List(ctx context.Context) ([]model.NewlyMappedRecord, error)
	Update(ctx context.Context, id int64, masterPharmacyID string) error
	Delete(ctx context.Context, id int64) error
}

// CacheClearer drops the server's aggregate cache
type CacheClearer interface {
	ClearCache(ctx context.Context) error
}

// inflight tracks mutations currently running, keyed by action and record
type inflight struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func (g *inflight) begin(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.keys == nil {
		g.keys = make(map[string]struct{})
	}
	if _, busy := g.keys[key]; busy {
		return false
	}
	g.keys[key] = struct{}{}
	return true
}

func (g *inflight) end(key string) {
	g.mu.Lock()
	delete(g.keys, key)
	g.mu.Unlock()
}

// load runs one fetch through the partition lifecycle
func load[T any](ctx context.Context, p *store.Partition[T], fetch func(context.Context) (T, error)) (T, error) {
	ticket := p.Begin()
	data, err := fetch(ctx)
	if err != nil {
		p.Failure(ticket, err)
		var zero T
		return zero, err
	}
	p.Success(ticket, data)
	return data, nil
}

// loadDuplicates prefers the server's groups and computes them from the
// in-memory master list when the server has none
func loadDuplicates(ctx context.Context, st *store.Store, api DuplicatesGateway) ([]model.DuplicateGroup, error) {
	return load(ctx, st.Duplicates, func(ctx context.Context) ([]model.DuplicateGroup, error) {
		if api != nil {
			groups, ok, err := api.Duplicates(ctx)
			if err != nil {
				return nil, err
			}
			if ok {
				return groups, nil
			}
		}
		util.DebugLog("Server has no duplicate groups, computing from %d master rows", st.MasterData.Len())
		return reconcile.ComputeDuplicateGroups(st.MasterData.Items()), nil
	})
}

// invalidate clears client analytics and records why
func invalidate(st *store.Store, events *report.EventLogger, reason string) {
	st.InvalidateAnalytics()
	events.LogInvalidate(reason)
}

// errorSink is the store partition a coordinator reports to
type errorSink interface {
	SetError(err error)
}

// softWarning records a post-success failure on the partition of the operation
// without undoing the primary change
func softWarning(sink errorSink, events *report.EventLogger, action string, err error, format string, args ...interface{}) error {
	w := util.SoftWarning(err, format, args...)
	util.WarnLog("%s", w.Message)
	events.LogSoftWarning(action, err)
	if sink != nil {
		sink.SetError(w)
	}
	return w
}
