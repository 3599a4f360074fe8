package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/franz/prms-console/internal/model"
	"github.com/franz/prms-console/internal/reconcile"
	"github.com/franz/prms-console/internal/signal"
	"github.com/franz/prms-console/internal/store"
	"github.com/franz/prms-console/internal/util"
)

func newSplitRatio(st *store.Store, rules *fakeRules, cache *fakeCache) *SplitRatio {
	return NewSplitRatio(SplitRatioConfig{
		Store:      st,
		Rules:      rules,
		Duplicates: &fakeMaster{},
		Analytics:  cache,
	})
}

func TestEqualSeedMustBeAdjustedBeforeSave(t *testing.T) {
	st, _ := newSignalStore()
	rules := &fakeRules{created: model.SplitRuleCreated{ID: 7}}
	s := newSplitRatio(st, rules, &fakeCache{})
	ctx := context.Background()

	if err := s.OpenEditor(ctx, paracetamolGroup()); err != nil {
		t.Fatalf("OpenEditor: %v", err)
	}
	if s.State() != StateEditing {
		t.Fatalf("state = %s, want editing", s.State())
	}
	for i, e := range s.Buffer() {
		if !e.Ratio.Equal(d("33.3")) {
			t.Errorf("entry %d ratio = %s, want 33.3", i, e.Ratio)
		}
	}
	check := s.Validation()
	if check.OK || !check.Total.Equal(d("99.9")) {
		t.Fatalf("Validation = %+v, want not ok with total 99.9", check)
	}

	_, err := s.Save(ctx)
	if !util.IsKind(err, util.KindValidation) {
		t.Fatalf("Save error = %v, want validation", err)
	}
	if s.State() != StateError {
		t.Errorf("state = %s, want error", s.State())
	}
	if rules.createCount() != 0 {
		t.Fatal("a failed validation must not reach the server")
	}

	if err := s.UpdateRatio(2, d("33.4")); err != nil {
		t.Fatalf("UpdateRatio: %v", err)
	}
	if s.State() != StateEditing {
		t.Errorf("state after edit = %s, want editing", s.State())
	}
	if check := s.Validation(); !check.Valid() {
		t.Fatalf("Validation after adjust = %+v", check)
	}

	if _, err := s.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if rules.createCount() != 1 {
		t.Fatalf("creates = %d, want 1", rules.createCount())
	}
	body := rules.creates[0]
	if got := reconcile.ValidateRatios(body.Rules).Total; !got.Equal(d("100")) {
		t.Errorf("posted ratios sum to %s, want 100.0", got)
	}
	if body.ProductKey != "P1|EXACT|PARACETAMOL" || body.PharmacyID != "P1" {
		t.Errorf("unexpected rule target %+v", body)
	}
	if s.State() != StateIdle {
		t.Errorf("state after save = %s, want idle", s.State())
	}
}

func TestOpenEditorSeedsFromSavedRule(t *testing.T) {
	st, _ := newSignalStore()
	rules := &fakeRules{rules: []model.SplitRule{{
		ID:         5,
		PharmacyID: "P1",
		ProductKey: "P1|EXACT|PARACETAMOL",
		Rules: []model.SplitEntry{
			{MasterMappingID: 1, Ratio: d("50")},
			{MasterMappingID: 2, Ratio: d("30")},
			{MasterMappingID: 3, Ratio: d("20")},
		},
	}}}
	s := newSplitRatio(st, rules, &fakeCache{})
	ctx := context.Background()

	if err := s.OpenEditor(ctx, paracetamolGroup()); err != nil {
		t.Fatalf("OpenEditor: %v", err)
	}
	want := []string{"50", "30", "20"}
	for i, e := range s.Buffer() {
		if !e.Ratio.Equal(d(want[i])) {
			t.Errorf("entry %d = %s, want %s", i, e.Ratio, want[i])
		}
	}
	if r, ok := s.Existing(); !ok || r.ID != 5 {
		t.Errorf("Existing = %+v, %v", r, ok)
	}

	s.Cancel()
	if err := s.OpenEditor(ctx, paracetamolGroup()); err != nil {
		t.Fatalf("OpenEditor: %v", err)
	}
	if rules.listCalls != 1 {
		t.Errorf("rules listed %d times, want 1 (cached)", rules.listCalls)
	}
}

func TestSaveWithReprocessingInvalidatesAnalytics(t *testing.T) {
	st, bus := newSignalStore()
	populateAnalytics(st)
	rules := &fakeRules{created: model.SplitRuleCreated{ID: 7, InvoicesReprocessed: 12}}
	cache := &fakeCache{}
	s := newSplitRatio(st, rules, cache)
	ctx := context.Background()

	fired := 0
	bus.Subscribe(signal.AnalyticsDataUpdated, func(signal.Event) { fired++ })

	s.OpenEditor(ctx, paracetamolGroup())
	s.UpdateRatio(0, d("33.4"))

	created, err := s.Save(ctx)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if created.ID != 7 || created.InvoicesReprocessed != 12 {
		t.Errorf("created = %+v", created)
	}
	if !st.AnalyticsEmpty() {
		t.Error("analytics partitions should be cleared")
	}
	if fired != 1 {
		t.Errorf("analyticsDataUpdated fired %d times, want 1", fired)
	}
	if cache.calls != 1 {
		t.Errorf("server cache clears = %d, want 1", cache.calls)
	}
	if rules.listCalls != 2 {
		t.Errorf("split rules listed %d times, want 2 (open + reload)", rules.listCalls)
	}
	if !st.Duplicates.Snapshot().Loaded() {
		t.Error("duplicates should be reloaded after save")
	}
	if st.SplitRules.Len() != 1 {
		t.Errorf("split rules partition has %d rules, want 1", st.SplitRules.Len())
	}
}

func TestSaveWithoutReprocessingKeepsAnalytics(t *testing.T) {
	st, bus := newSignalStore()
	populateAnalytics(st)
	cache := &fakeCache{}
	s := newSplitRatio(st, &fakeRules{created: model.SplitRuleCreated{ID: 8}}, cache)
	ctx := context.Background()

	s.OpenEditor(ctx, paracetamolGroup())
	s.UpdateRatio(0, d("33.4"))
	if _, err := s.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if st.AnalyticsEmpty() || bus.Count(signal.AnalyticsDataUpdated) != 0 || cache.calls != 0 {
		t.Error("nothing reprocessed, analytics must be untouched")
	}
}

func TestFailedCacheClearIsSoftWarning(t *testing.T) {
	st, bus := newSignalStore()
	populateAnalytics(st)
	cache := &fakeCache{err: util.NewError(util.KindUnavailable, "backend error (500)")}
	s := newSplitRatio(st, &fakeRules{created: model.SplitRuleCreated{ID: 7, InvoicesReprocessed: 3}}, cache)
	ctx := context.Background()

	s.OpenEditor(ctx, paracetamolGroup())
	s.UpdateRatio(0, d("33.4"))

	created, err := s.Save(ctx)
	if !util.IsKind(err, util.KindSoftWarning) {
		t.Fatalf("Save error = %v, want soft warning", err)
	}
	if created.ID != 7 {
		t.Error("the rule is saved despite the warning")
	}
	if !st.AnalyticsEmpty() || bus.Count(signal.AnalyticsDataUpdated) != 1 {
		t.Error("client analytics is invalidated even when the server cache clear fails")
	}
	if s.State() != StateIdle || !util.IsKind(s.Err(), util.KindSoftWarning) {
		t.Errorf("state = %s, err = %v", s.State(), s.Err())
	}
	if err := st.SplitRules.Snapshot().Err; !util.IsKind(err, util.KindSoftWarning) {
		t.Errorf("split rules partition err = %v, want soft warning", err)
	}
}

func TestSecondSaveWhileSavingIsBusy(t *testing.T) {
	st, _ := newSignalStore()
	h := newHold()
	rules := &fakeRules{created: model.SplitRuleCreated{ID: 7}, hold: h}
	s := newSplitRatio(st, rules, &fakeCache{})
	ctx := context.Background()

	s.OpenEditor(ctx, paracetamolGroup())
	s.UpdateRatio(0, d("33.4"))

	done := make(chan error, 1)
	go func() {
		_, err := s.Save(ctx)
		done <- err
	}()
	<-h.entered

	if s.State() != StateSaving {
		t.Errorf("state = %s, want saving", s.State())
	}
	if _, err := s.Save(ctx); !util.IsKind(err, util.KindBusy) {
		t.Errorf("second Save error = %v, want busy", err)
	}
	if err := s.UpdateRatio(0, d("50")); !util.IsKind(err, util.KindBusy) {
		t.Errorf("UpdateRatio while saving = %v, want busy", err)
	}
	if rules.createCount() != 1 {
		t.Errorf("creates = %d, want 1", rules.createCount())
	}

	close(h.release)
	if err := <-done; err != nil {
		t.Fatalf("first Save: %v", err)
	}
}

func TestServerRejectionKeepsEditorEditable(t *testing.T) {
	st, _ := newSignalStore()
	reject := util.NewError(util.KindConflict, "pharmacy P1 has no such product")
	s := newSplitRatio(st, &fakeRules{createErr: reject}, &fakeCache{})
	ctx := context.Background()

	s.OpenEditor(ctx, paracetamolGroup())
	s.UpdateRatio(0, d("33.4"))

	if _, err := s.Save(ctx); !errors.Is(err, reject) {
		t.Fatalf("Save error = %v, want %v", err, reject)
	}
	if s.State() != StateError {
		t.Errorf("state = %s, want error", s.State())
	}
	if snap := st.SplitRules.Snapshot(); !errors.Is(snap.Err, reject) {
		t.Errorf("partition error = %v", snap.Err)
	}
	if len(s.Buffer()) != 3 {
		t.Fatal("buffer must survive a rejected save")
	}
	if err := s.UpdateRatio(1, d("33.3")); err != nil {
		t.Errorf("editor should stay editable: %v", err)
	}
}

func TestCancelDropsSaveTransition(t *testing.T) {
	st, _ := newSignalStore()
	h := newHold()
	rules := &fakeRules{createErr: errors.New("late failure"), hold: h}
	s := newSplitRatio(st, rules, &fakeCache{})
	ctx := context.Background()

	s.OpenEditor(ctx, paracetamolGroup())
	s.UpdateRatio(0, d("33.4"))

	done := make(chan error, 1)
	go func() {
		_, err := s.Save(ctx)
		done <- err
	}()
	<-h.entered
	s.Cancel()
	close(h.release)
	<-done

	if s.State() != StateIdle || s.Err() != nil {
		t.Errorf("cancelled editor moved to %s (%v)", s.State(), s.Err())
	}
}

func TestUpdateRatioBounds(t *testing.T) {
	st, _ := newSignalStore()
	s := newSplitRatio(st, &fakeRules{}, &fakeCache{})

	if err := s.UpdateRatio(0, d("10")); !util.IsKind(err, util.KindValidation) {
		t.Errorf("UpdateRatio with no editor = %v, want validation", err)
	}
	s.OpenEditor(context.Background(), paracetamolGroup())
	for _, idx := range []int{-1, 3} {
		if err := s.UpdateRatio(idx, d("10")); !util.IsKind(err, util.KindValidation) {
			t.Errorf("UpdateRatio(%d) = %v, want validation", idx, err)
		}
	}
}

func TestDeleteRuleInvalidation(t *testing.T) {
	no := false
	yes := true

	tests := []struct {
		name       string
		deleted    model.SplitRuleDeleted
		invalidate bool
	}{
		{"no body", model.SplitRuleDeleted{}, true},
		{"applied", model.SplitRuleDeleted{Applied: &yes, InvoicesReprocessed: 4}, true},
		{"never applied", model.SplitRuleDeleted{Applied: &no}, false},
		{"not applied but reprocessed", model.SplitRuleDeleted{Applied: &no, InvoicesReprocessed: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, bus := newSignalStore()
			populateAnalytics(st)
			rules := &fakeRules{
				rules:   []model.SplitRule{{ID: 5, PharmacyID: "P1", ProductKey: "P1|EXACT|PARACETAMOL"}},
				deleted: tt.deleted,
			}
			s := newSplitRatio(st, rules, &fakeCache{})

			if _, err := s.DeleteRule(context.Background(), paracetamolGroup()); err != nil {
				t.Fatalf("DeleteRule: %v", err)
			}
			if len(rules.deletes) != 1 || rules.deletes[0] != 5 {
				t.Errorf("deletes = %v, want [5]", rules.deletes)
			}
			if st.SplitRules.Contains(5) {
				t.Error("deleted rule still in partition")
			}
			got := bus.Count(signal.AnalyticsDataUpdated) == 1
			if got != tt.invalidate {
				t.Errorf("invalidated = %v, want %v", got, tt.invalidate)
			}
		})
	}
}

func TestDeleteRuleWithoutRule(t *testing.T) {
	st, _ := newSignalStore()
	rules := &fakeRules{}
	s := newSplitRatio(st, rules, &fakeCache{})

	if _, err := s.DeleteRule(context.Background(), paracetamolGroup()); !util.IsKind(err, util.KindValidation) {
		t.Errorf("DeleteRule = %v, want validation", err)
	}
	if len(rules.deletes) != 0 {
		t.Error("no rule, no DELETE")
	}
}

func TestSaveRejectsGroupWithMixedProductKeys(t *testing.T) {
	st, _ := newSignalStore()
	rules := &fakeRules{created: model.SplitRuleCreated{ID: 7}}
	s := newSplitRatio(st, rules, &fakeCache{})
	ctx := context.Background()

	// "Amoxil 250MG 10TAB" is keyed AMOXIL250MG by the backend, "Amoxil" AMOXIL.
	g := model.DuplicateGroup{
		PharmacyID:        "P1",
		NormalizedProduct: "amoxil",
		ProductName:       "Amoxil 250MG 10TAB",
		Records: []model.MasterRow{
			{ID: 1, PharmacyID: "P1", ProductNames: "Amoxil 250MG 10TAB", ProductID: "PR9"},
			{ID: 2, PharmacyID: "P1", ProductNames: "Amoxil", ProductID: "PR9"},
		},
	}
	if err := s.OpenEditor(ctx, g); err != nil {
		t.Fatalf("OpenEditor: %v", err)
	}

	if _, err := s.Save(ctx); !util.IsKind(err, util.KindValidation) {
		t.Fatalf("Save error = %v, want validation", err)
	}
	if rules.createCount() != 0 {
		t.Error("a rule spanning two product keys must not be sent")
	}
}
