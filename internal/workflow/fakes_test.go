package workflow

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/franz/prms-console/internal/model"
	"github.com/franz/prms-console/internal/signal"
	"github.com/franz/prms-console/internal/store"
	"github.com/shopspring/decimal"
)

// hold blocks a fake call until released. entered is closed when the first
// call arrives.
type hold struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newHold() *hold {
	return &hold{entered: make(chan struct{}), release: make(chan struct{})}
}

func (h *hold) wait() {
	if h == nil {
		return
	}
	h.once.Do(func() { close(h.entered) })
	<-h.release
}

type fakeRules struct {
	mu        sync.Mutex
	rules     []model.SplitRule
	creates   []model.SplitRuleCreate
	deletes   []int64
	listCalls int
	created   model.SplitRuleCreated
	deleted   model.SplitRuleDeleted
	createErr error
	listErr   error
	hold      *hold
}

func (f *fakeRules) List(ctx context.Context) ([]model.SplitRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.SplitRule(nil), f.rules...), nil
}

func (f *fakeRules) Create(ctx context.Context, rule model.SplitRuleCreate) (model.SplitRuleCreated, error) {
	f.mu.Lock()
	f.creates = append(f.creates, rule)
	h := f.hold
	f.mu.Unlock()

	h.wait()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return model.SplitRuleCreated{}, f.createErr
	}
	f.rules = append(f.rules, model.SplitRule{
		ID: f.created.ID, PharmacyID: rule.PharmacyID, ProductKey: rule.ProductKey, Rules: rule.Rules,
	})
	return f.created, nil
}

func (f *fakeRules) Delete(ctx context.Context, id int64) (model.SplitRuleDeleted, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, id)
	kept := f.rules[:0]
	for _, r := range f.rules {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	f.rules = kept
	return f.deleted, nil
}

func (f *fakeRules) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.creates)
}

type fakeCache struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeCache) ClearCache(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

type fakeMaster struct {
	mu           sync.Mutex
	rows         []model.MasterRow
	total        int // declared total, len(rows) when zero
	skips        []int
	creates      []model.MasterRow
	updates      []model.MasterPatch
	deletes      []int64
	uniqueCalls  int
	unique       model.UniqueValues
	serverGroups []model.DuplicateGroup // nil means the server does not compute them
	nextID       int64
	err          error
}

func (f *fakeMaster) List(ctx context.Context, skip, limit int) (model.MasterPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.skips = append(f.skips, skip)
	if f.err != nil {
		return model.MasterPage{}, f.err
	}
	total := f.total
	if total == 0 {
		total = len(f.rows)
	}
	end := skip + limit
	if end > len(f.rows) {
		end = len(f.rows)
	}
	var data []model.MasterRow
	if skip < len(f.rows) {
		data = append(data, f.rows[skip:end]...)
	}
	return model.MasterPage{Data: data, Total: total}, nil
}

func (f *fakeMaster) Create(ctx context.Context, row model.MasterRow) (model.MasterRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, row)
	if f.err != nil {
		return model.MasterRow{}, f.err
	}
	f.nextID++
	row.ID = 1000 + f.nextID
	f.rows = append(f.rows, row)
	return row, nil
}

func (f *fakeMaster) Update(ctx context.Context, id int64, patch model.MasterPatch) (model.MasterRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, patch)
	if f.err != nil {
		return model.MasterRow{}, f.err
	}
	for i, r := range f.rows {
		if r.ID == id {
			f.rows[i] = patch.Apply(r)
			return f.rows[i], nil
		}
	}
	return patch.Apply(model.MasterRow{ID: id}), nil
}

func (f *fakeMaster) Delete(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, id)
	return f.err
}

func (f *fakeMaster) UniqueValues(ctx context.Context) (model.UniqueValues, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uniqueCalls++
	return f.unique, f.err
}

func (f *fakeMaster) Duplicates(ctx context.Context) ([]model.DuplicateGroup, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.serverGroups == nil {
		return nil, false, nil
	}
	return f.serverGroups, true, nil
}

type fakeUnmatched struct {
	mu          sync.Mutex
	records     []model.UnmatchedRecord
	newly       []model.NewlyMappedRecord
	masters     []model.MasterPharmacy
	mapCalls    int
	ignoreCalls int
	queries     []string
	updates     map[int64]string
	newlyDelete []int64
	err         error
	newlyErr    error // fails newly-mapped listing only
	hold        *hold
}

func (f *fakeUnmatched) List(ctx context.Context) ([]model.UnmatchedRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]model.UnmatchedRecord(nil), f.records...), nil
}

func (f *fakeUnmatched) Map(ctx context.Context, id int64, masterPharmacyID string) error {
	f.mu.Lock()
	f.mapCalls++
	h := f.hold
	f.mu.Unlock()

	h.wait()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for i, r := range f.records {
		if r.ID == id {
			f.records = append(f.records[:i], f.records[i+1:]...)
			f.newly = append(f.newly, model.NewlyMappedRecord{
				UnmatchedRecord:    model.UnmatchedRecord{ID: id, PharmacyName: r.PharmacyName, Status: model.StatusMapped},
				MappedToPharmacyID: masterPharmacyID,
			})
			break
		}
	}
	return nil
}

func (f *fakeUnmatched) Ignore(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ignoreCalls++
	if f.err != nil {
		return f.err
	}
	for i, r := range f.records {
		if r.ID == id {
			f.records = append(f.records[:i], f.records[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeUnmatched) MasterPharmacies(ctx context.Context, query string) ([]model.MasterPharmacy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	return FilterMasters(f.masters, query), nil
}

// fakeNewly shares state with fakeUnmatched, as the backend does
type fakeNewly struct{ u *fakeUnmatched }

func (f fakeNewly) List(ctx context.Context) ([]model.NewlyMappedRecord, error) {
	f.u.mu.Lock()
	defer f.u.mu.Unlock()
	if f.u.newlyErr != nil {
		return nil, f.u.newlyErr
	}
	return append([]model.NewlyMappedRecord(nil), f.u.newly...), nil
}

func (f fakeNewly) Update(ctx context.Context, id int64, masterPharmacyID string) error {
	f.u.mu.Lock()
	defer f.u.mu.Unlock()
	if f.u.err != nil {
		return f.u.err
	}
	if f.u.updates == nil {
		f.u.updates = make(map[int64]string)
	}
	f.u.updates[id] = masterPharmacyID
	for i := range f.u.newly {
		if f.u.newly[i].ID == id {
			f.u.newly[i].MappedToPharmacyID = masterPharmacyID
		}
	}
	return nil
}

func (f fakeNewly) Delete(ctx context.Context, id int64) error {
	f.u.mu.Lock()
	defer f.u.mu.Unlock()
	if f.u.err != nil {
		return f.u.err
	}
	f.u.newlyDelete = append(f.u.newlyDelete, id)
	for i, r := range f.u.newly {
		if r.ID == id {
			f.u.newly = append(f.u.newly[:i], f.u.newly[i+1:]...)
			f.u.records = append(f.u.records, model.UnmatchedRecord{ID: id, PharmacyName: r.PharmacyName, Status: model.StatusPending})
			break
		}
	}
	return nil
}

// fixtures

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func paracetamolGroup() model.DuplicateGroup {
	return model.DuplicateGroup{
		PharmacyID:        "P1",
		NormalizedProduct: "paracetamol",
		PharmacyName:      "City Pharmacy",
		ProductName:       "Paracetamol",
		Records: []model.MasterRow{
			{ID: 1, PharmacyID: "P1", PharmacyNames: "City Pharmacy", ProductNames: "Paracetamol", ProductID: "PR1", DoctorNames: "Dr A"},
			{ID: 2, PharmacyID: "P1", PharmacyNames: "City Pharmacy", ProductNames: "paracetamol", ProductID: "PR1", DoctorNames: "Dr B"},
			{ID: 3, PharmacyID: "P1", PharmacyNames: "City Pharmacy", ProductNames: "PARACETAMOL 500MG", ProductID: "PR1", DoctorNames: "Dr C"},
		},
	}
}

// populateAnalytics fills every analytics sub-partition
func populateAnalytics(st *store.Store) {
	for _, p := range store.Projections {
		part := st.Analytics(p)
		part.Success(part.Begin(), store.AnalyticsData{Raw: json.RawMessage(`{"total_revenue":1}`)})
	}
}

// newSignalStore returns a store and the bus it publishes on
func newSignalStore() (*store.Store, *signal.Bus) {
	bus := signal.NewBus()
	return store.New(bus), bus
}
