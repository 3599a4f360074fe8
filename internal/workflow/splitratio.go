package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/franz/prms-console/internal/model"
	"github.com/franz/prms-console/internal/reconcile"
	"github.com/franz/prms-console/internal/report"
	"github.com/franz/prms-console/internal/store"
	"github.com/franz/prms-console/internal/util"
	"github.com/shopspring/decimal"
)

// State is the split-ratio editor's position in its lifecycle
type State string

const (
	StateIdle         State = "idle"
	StateLoadingRules State = "loadingRules"
	StateEditing      State = "editing"
	StateSaving       State = "saving"
	StateError        State = "error"
)

// SplitRatioConfig wires the editor to its collaborators
type SplitRatioConfig struct {
	Store      *store.Store
	Rules      SplitRulesGateway
	Duplicates DuplicatesGateway
	Analytics  CacheClearer
	Events     *report.EventLogger
}

// SplitRatio edits the split rule of one duplicate group at a time
type SplitRatio struct {
	store     *store.Store
	rules     SplitRulesGateway
	dups      DuplicatesGateway
	analytics CacheClearer
	events    *report.EventLogger
	deleting  inflight

	mu       sync.Mutex
	state    State
	epoch    uint64
	group    model.DuplicateGroup
	existing *model.SplitRule
	buffer   []model.SplitEntry
	err      error
}

// NewSplitRatio creates an idle editor
func NewSplitRatio(cfg SplitRatioConfig) *SplitRatio {
	return &SplitRatio{
		store:     cfg.Store,
		rules:     cfg.Rules,
		dups:      cfg.Duplicates,
		analytics: cfg.Analytics,
		events:    cfg.Events,
		state:     StateIdle,
	}
}

// State returns the current state
func (s *SplitRatio) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error behind the error state, or the soft warning left by
// the last save
func (s *SplitRatio) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Group returns the group being edited
func (s *SplitRatio) Group() model.DuplicateGroup {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.group
}

// Existing returns the saved rule the editor was seeded from, if any
func (s *SplitRatio) Existing() (model.SplitRule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.existing == nil {
		return model.SplitRule{}, false
	}
	return *s.existing, true
}

// Buffer returns a copy of the entries being edited
func (s *SplitRatio) Buffer() []model.SplitEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.SplitEntry(nil), s.buffer...)
}

// Validation checks the buffer's ratio sum
func (s *SplitRatio) Validation() reconcile.RatioCheck {
	return reconcile.ValidateRatios(s.Buffer())
}

func (s *SplitRatio) setState(st State) {
	util.DebugLog("Split editor %s -> %s", s.state, st)
	s.state = st
}

// editable reports whether the buffer accepts edits. A validation failure
// leaves the editor editable.
func (s *SplitRatio) editable() bool {
	return s.state == StateEditing || (s.state == StateError && s.buffer != nil)
}

// OpenEditor loads split rules if they are not cached and seeds the buffer
// from the group's rule, or with an equal split when it has none
func (s *SplitRatio) OpenEditor(ctx context.Context, group model.DuplicateGroup) error {
	if len(group.Records) == 0 {
		return util.Validation("group %s has no records", group.PharmacyID)
	}

	s.mu.Lock()
	if s.state == StateSaving {
		s.mu.Unlock()
		return util.Busy("save")
	}
	s.epoch++
	epoch := s.epoch
	s.group = group
	s.existing = nil
	s.buffer = nil
	s.err = nil
	s.setState(StateLoadingRules)
	s.mu.Unlock()

	rules := s.store.SplitRules.Items()
	if !s.store.SplitRules.Snapshot().Loaded() {
		var err error
		rules, err = load(ctx, s.store.SplitRules.Partition, s.rules.List)
		if err != nil {
			s.mu.Lock()
			if s.epoch == epoch {
				s.err = err
				s.setState(StateError)
			}
			s.mu.Unlock()
			return err
		}
	}

	var buffer []model.SplitEntry
	rule, found := reconcile.RuleFor(group, rules)
	if found {
		buffer = reconcile.SeedFromRule(group, rule)
	} else {
		buffer = reconcile.SeedEqualSplit(group)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return nil
	}
	if found {
		s.existing = &rule
	}
	s.buffer = buffer
	s.setState(StateEditing)
	return nil
}

// UpdateRatio edits one buffer entry in memory
func (s *SplitRatio) UpdateRatio(index int, value decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSaving {
		return util.Busy("save")
	}
	if !s.editable() {
		return util.Validation("no split editor is open")
	}
	if index < 0 || index >= len(s.buffer) {
		return util.Validation("entry %d out of range (0-%d)", index, len(s.buffer)-1)
	}
	s.buffer[index].Ratio = value
	if s.state == StateError {
		s.err = nil
		s.setState(StateEditing)
	}
	return nil
}

// Save posts the buffer as the group's rule. On success the returned error is
// nil or a soft warning; the rule is saved either way.
func (s *SplitRatio) Save(ctx context.Context) (model.SplitRuleCreated, error) {
	s.mu.Lock()
	if s.state == StateSaving {
		s.mu.Unlock()
		return model.SplitRuleCreated{}, util.Busy("save")
	}
	if !s.editable() {
		s.mu.Unlock()
		return model.SplitRuleCreated{}, util.Validation("no split editor is open")
	}
	if err := reconcile.ValidateRule(s.group, s.buffer); err != nil {
		s.err = err
		s.setState(StateError)
		s.mu.Unlock()
		return model.SplitRuleCreated{}, err
	}
	body := model.SplitRuleCreate{
		PharmacyID: s.group.PharmacyID,
		ProductKey: reconcile.GroupProductKey(s.group),
		Rules:      append([]model.SplitEntry(nil), s.buffer...),
	}
	epoch := s.epoch
	s.err = nil
	s.setState(StateSaving)
	s.mu.Unlock()

	start := time.Now()
	created, err := s.rules.Create(ctx, body)
	s.events.LogSplitSave(created.ID, body.PharmacyID, body.ProductKey, created.InvoicesReprocessed, time.Since(start), err)
	if err != nil {
		s.store.SplitRules.SetError(err)
		s.finish(epoch, StateError, err)
		return model.SplitRuleCreated{}, err
	}
	util.InfoLog("Saved split rule %d for %s (%d invoices reprocessed)", created.ID, body.ProductKey, created.InvoicesReprocessed)

	var warn error
	if _, err := load(ctx, s.store.SplitRules.Partition, s.rules.List); err != nil {
		warn = softWarning(s.store.SplitRules, s.events, "split_save", err, "rule saved, but reloading split rules failed")
	}
	if _, err := loadDuplicates(ctx, s.store, s.dups); err != nil && warn == nil {
		warn = softWarning(s.store.SplitRules, s.events, "split_save", err, "rule saved, but reloading duplicate groups failed")
	}

	if created.InvoicesReprocessed > 0 {
		// Server cache first, so the refetch the signal triggers sees fresh aggregates.
		if err := s.clearServerCache(ctx); err != nil {
			warn = softWarning(s.store.SplitRules, s.events, "split_save", err, "rule saved, but clearing the analytics cache failed")
		}
		invalidate(s.store, s.events, "split_save")
	}

	s.finish(epoch, StateIdle, warn)
	return created, warn
}

func (s *SplitRatio) clearServerCache(ctx context.Context) error {
	if s.analytics == nil {
		return nil
	}
	return s.analytics.ClearCache(ctx)
}

// finish applies a terminal transition unless the editor was cancelled or
// reopened meanwhile
func (s *SplitRatio) finish(epoch uint64, st State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		util.DebugLog("Split editor result dropped after cancel")
		return
	}
	s.err = err
	if st == StateIdle {
		s.buffer = nil
		s.existing = nil
	}
	s.setState(st)
}

// DeleteRule deletes the group's saved rule. Analytics is invalidated unless
// the server says the rule had never been applied.
func (s *SplitRatio) DeleteRule(ctx context.Context, group model.DuplicateGroup) (model.SplitRuleDeleted, error) {
	rule, found := reconcile.RuleFor(group, s.store.SplitRules.Items())
	if !found {
		rules, err := load(ctx, s.store.SplitRules.Partition, s.rules.List)
		if err != nil {
			return model.SplitRuleDeleted{}, err
		}
		if rule, found = reconcile.RuleFor(group, rules); !found {
			return model.SplitRuleDeleted{}, util.Validation("no split rule for %s", reconcile.GroupProductKey(group))
		}
	}

	key := "delete:" + rule.ProductKey
	if !s.deleting.begin(key) {
		return model.SplitRuleDeleted{}, util.Busy("delete")
	}
	defer s.deleting.end(key)

	res, err := s.rules.Delete(ctx, rule.ID)
	s.events.LogSplitDelete(rule.ID, rule.ProductKey, res.InvoicesReprocessed, err)
	if err != nil {
		s.store.SplitRules.SetError(err)
		return model.SplitRuleDeleted{}, err
	}
	s.store.SplitRules.Remove(rule.ID)
	util.InfoLog("Deleted split rule %d for %s", rule.ID, rule.ProductKey)

	s.mu.Lock()
	if s.existing != nil && s.existing.ID == rule.ID {
		s.existing = nil
	}
	s.mu.Unlock()

	var warn error
	if _, err := load(ctx, s.store.SplitRules.Partition, s.rules.List); err != nil {
		warn = softWarning(s.store.SplitRules, s.events, "split_delete", err, "rule deleted, but reloading split rules failed")
	}

	neverApplied := res.Applied != nil && !*res.Applied && res.InvoicesReprocessed == 0
	if !neverApplied {
		if err := s.clearServerCache(ctx); err != nil {
			warn = softWarning(s.store.SplitRules, s.events, "split_delete", err, "rule deleted, but clearing the analytics cache failed")
		}
		invalidate(s.store, s.events, "split_delete")
	}
	return res, warn
}

// Cancel closes the editor. An in-flight save still completes on the server
// but its result no longer changes the editor's state.
func (s *SplitRatio) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.buffer = nil
	s.existing = nil
	s.err = nil
	s.setState(StateIdle)
}
