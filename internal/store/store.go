package store

import (
	"encoding/json"
	"time"

	"github.com/franz/prms-console/internal/model"
	"github.com/franz/prms-console/internal/signal"
	"github.com/franz/prms-console/internal/util"
)

// Projection names one server-computed analytics aggregate
type Projection string

const (
	Dashboard     Projection = "dashboard"
	ByPharmacy    Projection = "byPharmacy"
	ByDoctor      Projection = "byDoctor"
	ByRep         Projection = "byRep"
	ByHQ          Projection = "byHQ"
	ByArea        Projection = "byArea"
	ByProduct     Projection = "byProduct"
	MonthlyTrends Projection = "monthlyTrends"
	DataQuality   Projection = "dataQuality"
)

// Projections lists every analytics sub-partition in display order
var Projections = []Projection{
	Dashboard, ByPharmacy, ByDoctor, ByRep, ByHQ, ByArea, ByProduct, MonthlyTrends, DataQuality,
}

var projectionEndpoints = map[Projection]string{
	Dashboard:     "dashboard",
	ByPharmacy:    "pharmacy-revenue",
	ByDoctor:      "doctor-revenue",
	ByRep:         "rep-revenue",
	ByHQ:          "hq-revenue",
	ByArea:        "area-revenue",
	ByProduct:     "product-revenue",
	MonthlyTrends: "trends",
	DataQuality:   "data-quality",
}

// Endpoint returns the /api/v1/analytics/... path segment for p
func (p Projection) Endpoint() string {
	return projectionEndpoints[p]
}

// ParseProjection accepts either the projection name or its endpoint
func ParseProjection(s string) (Projection, bool) {
	for _, p := range Projections {
		if s == string(p) || s == p.Endpoint() {
			return p, true
		}
	}
	return "", false
}

// AnalyticsData is one fetched aggregate, kept verbatim
type AnalyticsData struct {
	Raw       json.RawMessage
	FetchedAt time.Time
}

// Empty reports whether nothing has been fetched since the last invalidation
func (d AnalyticsData) Empty() bool {
	return d.Raw == nil
}

func cloneAnalytics(d AnalyticsData) AnalyticsData {
	if d.Raw != nil {
		d.Raw = append(json.RawMessage(nil), d.Raw...)
	}
	return d
}

// Store holds every partition the workflow touches
type Store struct {
	bus *signal.Bus

	MasterData   *List[model.MasterRow]
	Duplicates   *Partition[[]model.DuplicateGroup]
	UniqueValues *Partition[model.UniqueValues]
	SplitRules   *List[model.SplitRule]
	Unmatched    *List[model.UnmatchedRecord]
	NewlyMapped  *List[model.NewlyMappedRecord]

	analytics map[Projection]*Partition[AnalyticsData]
}

// New creates an empty store that raises signals on bus
func New(bus *signal.Bus) *Store {
	s := &Store{
		bus:          bus,
		MasterData:   NewList[model.MasterRow]("masterData"),
		Duplicates:   NewPartition[[]model.DuplicateGroup]("duplicates", cloneSlice[model.DuplicateGroup]),
		UniqueValues: NewPartition[model.UniqueValues]("uniqueValues", nil),
		SplitRules:   NewList[model.SplitRule]("splitRules"),
		Unmatched:    NewList[model.UnmatchedRecord]("unmatched"),
		NewlyMapped:  NewList[model.NewlyMappedRecord]("newlyMapped"),
		analytics:    make(map[Projection]*Partition[AnalyticsData], len(Projections)),
	}
	for _, p := range Projections {
		s.analytics[p] = NewPartition[AnalyticsData]("analytics."+string(p), cloneAnalytics)
	}
	return s
}

// Bus returns the signal bus the store publishes on
func (s *Store) Bus() *signal.Bus {
	return s.bus
}

// Analytics returns the sub-partition for p
func (s *Store) Analytics(p Projection) *Partition[AnalyticsData] {
	return s.analytics[p]
}

// ClearAnalytics empties every analytics sub-partition without raising a signal
func (s *Store) ClearAnalytics() {
	for _, p := range Projections {
		s.analytics[p].Reset()
	}
}

// InvalidateAnalytics empties every analytics sub-partition, then raises
// analyticsDataUpdated exactly once
func (s *Store) InvalidateAnalytics() {
	s.ClearAnalytics()
	util.DebugLog("Analytics invalidated")
	if s.bus != nil {
		s.bus.Publish(signal.AnalyticsDataUpdated)
	}
}

// AnalyticsEmpty reports whether every analytics sub-partition is empty
func (s *Store) AnalyticsEmpty() bool {
	for _, p := range Projections {
		if !s.analytics[p].Data().Empty() {
			return false
		}
	}
	return true
}
