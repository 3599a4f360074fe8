package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/franz/prms-console/internal/model"
	"github.com/franz/prms-console/internal/report"
	"github.com/franz/prms-console/internal/store"
	"github.com/franz/prms-console/internal/util"
)

// UnmatchedConfig wires the mapping coordinator to its collaborators
type UnmatchedConfig struct {
	Store       *store.Store
	Unmatched   UnmatchedGateway
	NewlyMapped NewlyMappedGateway
	Events      *report.EventLogger

	// Debounce delays SearchMasters. Values below util.MinSearchDebounce are raised to it.
	Debounce time.Duration
}

// UnmatchedMapping resolves invoice rows whose pharmacy failed auto-match
type UnmatchedMapping struct {
	store    *store.Store
	api      UnmatchedGateway
	newly    NewlyMappedGateway
	events   *report.EventLogger
	debounce time.Duration
	busy     inflight

	searchMu  sync.Mutex
	searchSeq uint64
	timer     *time.Timer
}

// NewUnmatchedMapping creates the coordinator
func NewUnmatchedMapping(cfg UnmatchedConfig) *UnmatchedMapping {
	debounce := cfg.Debounce
	if debounce < util.MinSearchDebounce {
		debounce = util.MinSearchDebounce
	}
	return &UnmatchedMapping{
		store:    cfg.Store,
		api:      cfg.Unmatched,
		newly:    cfg.NewlyMapped,
		events:   cfg.Events,
		debounce: debounce,
	}
}

// ListPending refreshes the unmatched partition with the records still awaiting a decision
func (u *UnmatchedMapping) ListPending(ctx context.Context) ([]model.UnmatchedRecord, error) {
	return load(ctx, u.store.Unmatched.Partition, func(ctx context.Context) ([]model.UnmatchedRecord, error) {
		all, err := u.api.List(ctx)
		if err != nil {
			return nil, err
		}
		pending := make([]model.UnmatchedRecord, 0, len(all))
		for _, r := range all {
			if r.IsPending() {
				pending = append(pending, r)
			}
		}
		util.DebugLog("Unmatched: %d pending of %d", len(pending), len(all))
		return pending, nil
	})
}

// ListNewlyMapped refreshes the newly-mapped partition
func (u *UnmatchedMapping) ListNewlyMapped(ctx context.Context) ([]model.NewlyMappedRecord, error) {
	return load(ctx, u.store.NewlyMapped.Partition, u.newly.List)
}

// Filter searches the loaded unmatched records by pharmacy name, generated id
// and product. A blank query returns everything.
func (u *UnmatchedMapping) Filter(query string) []model.UnmatchedRecord {
	items := u.store.Unmatched.Items()
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return items
	}
	out := items[:0]
	for _, r := range items {
		if containsFold(q, r.PharmacyName, r.GeneratedID, r.Product) {
			out = append(out, r)
		}
	}
	return out
}

// FilterMasters narrows an already fetched candidate list client-side
func FilterMasters(list []model.MasterPharmacy, query string) []model.MasterPharmacy {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return list
	}
	var out []model.MasterPharmacy
	for _, m := range list {
		if containsFold(q, m.PharmacyID, m.PharmacyName) {
			out = append(out, m)
		}
	}
	return out
}

func containsFold(lowerQuery string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), lowerQuery) {
			return true
		}
	}
	return false
}

// MapTo maps a pending record onto a master pharmacy. The record leaves the
// unmatched partition only once the server confirms.
func (u *UnmatchedMapping) MapTo(ctx context.Context, id int64, masterPharmacyID string) error {
	masterPharmacyID = strings.TrimSpace(masterPharmacyID)
	if masterPharmacyID == "" {
		return util.Validation("master pharmacy id is required")
	}

	key := fmt.Sprintf("unmatched:%d", id)
	if !u.busy.begin(key) {
		return util.Busy(fmt.Sprintf("mapping record %d", id))
	}
	defer u.busy.end(key)

	err := u.api.Map(ctx, id, masterPharmacyID)
	u.events.LogMap(id, masterPharmacyID, err)
	if err != nil {
		u.store.Unmatched.SetError(err)
		return err
	}
	u.store.Unmatched.Remove(id)
	util.InfoLog("Mapped record %d to %s", id, masterPharmacyID)

	var warn error
	if _, err := u.ListNewlyMapped(ctx); err != nil {
		warn = softWarning(u.store.NewlyMapped, u.events, "map", err, "record mapped, but reloading newly-mapped records failed")
	}
	invalidate(u.store, u.events, "map")
	return warn
}

// Ignore marks a record as not revenue-relevant. Analytics is unaffected.
func (u *UnmatchedMapping) Ignore(ctx context.Context, id int64) error {
	key := fmt.Sprintf("unmatched:%d", id)
	if !u.busy.begin(key) {
		return util.Busy(fmt.Sprintf("ignoring record %d", id))
	}
	defer u.busy.end(key)

	err := u.api.Ignore(ctx, id)
	u.events.LogIgnore(id, err)
	if err != nil {
		u.store.Unmatched.SetError(err)
		return err
	}
	u.store.Unmatched.Remove(id)
	util.InfoLog("Ignored record %d", id)
	return nil
}

// Retarget points a newly-mapped record at a different master pharmacy
func (u *UnmatchedMapping) Retarget(ctx context.Context, id int64, masterPharmacyID string) error {
	masterPharmacyID = strings.TrimSpace(masterPharmacyID)
	if masterPharmacyID == "" {
		return util.Validation("master pharmacy id is required")
	}

	key := fmt.Sprintf("newly:%d", id)
	if !u.busy.begin(key) {
		return util.Busy(fmt.Sprintf("retargeting record %d", id))
	}
	defer u.busy.end(key)

	err := u.newly.Update(ctx, id, masterPharmacyID)
	u.events.LogRetarget(id, masterPharmacyID, err)
	if err != nil {
		u.store.NewlyMapped.SetError(err)
		return err
	}
	util.InfoLog("Retargeted record %d to %s", id, masterPharmacyID)

	warn := u.reloadBoth(ctx, "retarget")
	invalidate(u.store, u.events, "retarget")
	return warn
}

// Revert deletes a mapping so the record returns to the unmatched queue
func (u *UnmatchedMapping) Revert(ctx context.Context, id int64) error {
	key := fmt.Sprintf("newly:%d", id)
	if !u.busy.begin(key) {
		return util.Busy(fmt.Sprintf("reverting record %d", id))
	}
	defer u.busy.end(key)

	err := u.newly.Delete(ctx, id)
	u.events.LogRevert(id, err)
	if err != nil {
		u.store.NewlyMapped.SetError(err)
		return err
	}
	u.store.NewlyMapped.Remove(id)
	util.InfoLog("Reverted mapping of record %d", id)

	warn := u.reloadBoth(ctx, "revert")
	invalidate(u.store, u.events, "revert")
	return warn
}

func (u *UnmatchedMapping) reloadBoth(ctx context.Context, action string) error {
	var warn error
	if _, err := u.ListNewlyMapped(ctx); err != nil {
		warn = softWarning(u.store.NewlyMapped, u.events, action, err, "%s done, but reloading newly-mapped records failed", action)
	}
	if _, err := u.ListPending(ctx); err != nil && warn == nil {
		warn = softWarning(u.store.Unmatched, u.events, action, err, "%s done, but reloading unmatched records failed", action)
	}
	return warn
}

// LookupMasters queries master pharmacy candidates immediately
func (u *UnmatchedMapping) LookupMasters(ctx context.Context, query string) ([]model.MasterPharmacy, error) {
	return u.api.MasterPharmacies(ctx, strings.TrimSpace(query))
}

// SearchMasters queries candidates after the debounce delay. A newer call
// supersedes an older one: only the latest query's result reaches fn.
func (u *UnmatchedMapping) SearchMasters(ctx context.Context, query string, fn func([]model.MasterPharmacy, error)) {
	u.searchMu.Lock()
	defer u.searchMu.Unlock()

	u.searchSeq++
	seq := u.searchSeq
	if u.timer != nil {
		u.timer.Stop()
	}
	u.timer = time.AfterFunc(u.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		res, err := u.LookupMasters(ctx, query)

		u.searchMu.Lock()
		current := seq == u.searchSeq
		u.searchMu.Unlock()
		if current {
			fn(res, err)
		}
	})
}

// StopSearch cancels a pending debounced search
func (u *UnmatchedMapping) StopSearch() {
	u.searchMu.Lock()
	defer u.searchMu.Unlock()
	u.searchSeq++
	if u.timer != nil {
		u.timer.Stop()
	}
}
