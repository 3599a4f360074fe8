package workflow

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/franz/prms-console/internal/model"
	"github.com/franz/prms-console/internal/reconcile"
	"github.com/franz/prms-console/internal/report"
	"github.com/franz/prms-console/internal/store"
	"github.com/franz/prms-console/internal/util"
	"github.com/go-playground/validator/v10"
)

// MasterEditorConfig wires the editor to its collaborators
type MasterEditorConfig struct {
	Store    *store.Store
	Master   MasterDataGateway
	Events   *report.EventLogger
	PageSize int // defaults to util.DefaultPageSize
}

// Progress reports rows loaded so far against the server's declared total
type Progress func(loaded, total int)

// MasterEditor lists and mutates the master reference catalog
type MasterEditor struct {
	store    *store.Store
	api      MasterDataGateway
	events   *report.EventLogger
	pageSize int
	validate *validator.Validate
	busy     inflight

	mu          sync.Mutex
	uniqueStale bool
}

// NewMasterEditor creates the editor
func NewMasterEditor(cfg MasterEditorConfig) *MasterEditor {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = util.DefaultPageSize
	}

	v := validator.New()
	// Report json names so messages match what the operator sees
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	return &MasterEditor{
		store:    cfg.Store,
		api:      cfg.Master,
		events:   cfg.Events,
		pageSize: pageSize,
		validate: v,
	}
}

// ListAllPaged fetches the whole catalog in fixed-size batches. It stops at the
// first short page or once the server's total is reached.
func (m *MasterEditor) ListAllPaged(ctx context.Context, progress Progress) ([]model.MasterRow, error) {
	rows, err := load(ctx, m.store.MasterData.Partition, func(ctx context.Context) ([]model.MasterRow, error) {
		var rows []model.MasterRow
		for skip := 0; ; skip += m.pageSize {
			page, err := m.api.List(ctx, skip, m.pageSize)
			if err != nil {
				return nil, err
			}
			rows = append(rows, page.Data...)
			util.DebugLog("Master data: skip=%d got %d (%d/%d)", skip, len(page.Data), len(rows), page.Total)
			if progress != nil {
				progress(len(rows), page.Total)
			}
			if len(page.Data) < m.pageSize || (page.Total > 0 && len(rows) >= page.Total) {
				return rows, nil
			}
		}
	})
	if err != nil {
		return nil, err
	}
	m.recomputeDuplicates()
	return rows, nil
}

// LoadDuplicates refreshes the duplicates partition, from the server when it
// computes them and from the loaded catalog otherwise
func (m *MasterEditor) LoadDuplicates(ctx context.Context) ([]model.DuplicateGroup, error) {
	return loadDuplicates(ctx, m.store, m.api)
}

// recomputeDuplicates derives groups from the in-memory catalog
func (m *MasterEditor) recomputeDuplicates() {
	groups := reconcile.ComputeDuplicateGroups(m.store.MasterData.Items())
	m.store.Duplicates.Set(groups)
}

// afterMutation keeps derived state consistent with a confirmed change
func (m *MasterEditor) afterMutation(reason string) {
	m.recomputeDuplicates()
	m.mu.Lock()
	m.uniqueStale = true
	m.mu.Unlock()
	invalidate(m.store, m.events, reason)
}

// ValidateRow checks the fields the backend requires
func (m *MasterEditor) ValidateRow(row model.MasterRow) error {
	err := m.validate.Struct(row)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return util.WrapError(util.KindValidation, err, "invalid master row")
	}

	var missing, invalid []string
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
		} else {
			invalid = append(invalid, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
		}
	}
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing required fields: "+strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		parts = append(parts, "invalid fields: "+strings.Join(invalid, ", "))
	}
	return util.WrapError(util.KindValidation, err, "%s", strings.Join(parts, "; "))
}

// Add creates a master row
func (m *MasterEditor) Add(ctx context.Context, row model.MasterRow) (model.MasterRow, error) {
	row = trimRow(row)
	if row.Source == "" {
		row.Source = model.SourceManual
	}
	if err := m.ValidateRow(row); err != nil {
		return model.MasterRow{}, err
	}

	if !m.busy.begin("add") {
		return model.MasterRow{}, util.Busy("add")
	}
	defer m.busy.end("add")

	created, err := m.api.Create(ctx, row)
	m.events.LogMasterAdd(created.ID, row.PharmacyID, err)
	if err != nil {
		m.store.MasterData.SetError(err)
		return model.MasterRow{}, err
	}
	m.store.MasterData.Upsert(created)
	util.InfoLog("Added master row %d (%s / %s)", created.ID, created.PharmacyID, created.ProductNames)

	m.afterMutation("master_add")
	return created, nil
}

// Edit applies a partial update to a master row
func (m *MasterEditor) Edit(ctx context.Context, id int64, patch model.MasterPatch) (model.MasterRow, error) {
	if patch.IsEmpty() {
		return model.MasterRow{}, util.Validation("nothing to change for master row %d", id)
	}
	if current, ok := m.store.MasterData.Get(id); ok {
		if err := m.ValidateRow(trimRow(patch.Apply(current))); err != nil {
			return model.MasterRow{}, err
		}
	}

	key := fmt.Sprintf("row:%d", id)
	if !m.busy.begin(key) {
		return model.MasterRow{}, util.Busy(fmt.Sprintf("editing master row %d", id))
	}
	defer m.busy.end(key)

	updated, err := m.api.Update(ctx, id, patch)
	m.events.LogMasterEdit(id, PatchFields(patch), err)
	if err != nil {
		m.store.MasterData.SetError(err)
		return model.MasterRow{}, err
	}
	if updated.ID == 0 {
		updated.ID = id
	}
	m.store.MasterData.Upsert(updated)
	util.InfoLog("Updated master row %d", id)

	m.afterMutation("master_edit")
	return updated, nil
}

// Remove deletes a master row
func (m *MasterEditor) Remove(ctx context.Context, id int64) error {
	key := fmt.Sprintf("row:%d", id)
	if !m.busy.begin(key) {
		return util.Busy(fmt.Sprintf("removing master row %d", id))
	}
	defer m.busy.end(key)

	err := m.api.Delete(ctx, id)
	m.events.LogMasterRemove(id, err)
	if err != nil {
		m.store.MasterData.SetError(err)
		return err
	}
	m.store.MasterData.Remove(id)
	util.InfoLog("Removed master row %d", id)

	m.afterMutation("master_remove")
	return nil
}

// OpenAddDialog returns the pickers and mapping tables for the Add form,
// fetching them on first use and after any mutation
func (m *MasterEditor) OpenAddDialog(ctx context.Context) (*AddForm, error) {
	m.mu.Lock()
	stale := m.uniqueStale
	m.mu.Unlock()

	uv := m.store.UniqueValues.Data()
	if stale || !m.store.UniqueValues.Snapshot().Loaded() {
		var err error
		uv, err = load(ctx, m.store.UniqueValues, m.api.UniqueValues)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.uniqueStale = false
		m.mu.Unlock()
	}
	return NewAddForm(uv), nil
}

// PatchFields lists the json names of the fields a patch sets, sorted
func PatchFields(p model.MasterPatch) []string {
	var fields []string
	v := reflect.ValueOf(p)
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if v.Field(i).IsNil() {
			continue
		}
		fields = append(fields, strings.SplitN(t.Field(i).Tag.Get("json"), ",", 2)[0])
	}
	sort.Strings(fields)
	return fields
}

func trimRow(r model.MasterRow) model.MasterRow {
	r.PharmacyID = strings.TrimSpace(r.PharmacyID)
	r.PharmacyNames = strings.TrimSpace(r.PharmacyNames)
	r.ProductNames = strings.TrimSpace(r.ProductNames)
	r.ProductID = strings.TrimSpace(r.ProductID)
	r.DoctorNames = strings.TrimSpace(r.DoctorNames)
	r.DoctorID = strings.TrimSpace(r.DoctorID)
	r.RepNames = strings.TrimSpace(r.RepNames)
	r.HQ = strings.TrimSpace(r.HQ)
	r.Area = strings.TrimSpace(r.Area)
	return r
}
