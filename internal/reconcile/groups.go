// Package reconcile computes duplicate groups, split seeds and ratio checks
// from in-memory master data. Nothing here performs I/O.
package reconcile

import (
	"sort"
	"strings"

	"github.com/franz/prms-console/internal/model"
)

// ComputeDuplicateGroups groups rows by the backend's product key and returns the
// groups with two or more rows, so every member shares the key a rule is saved
// under. NormalizedProduct carries Normalize(product_names) for display and search.
// Groups are ordered by the position of their first row; rows keep their input order.
func ComputeDuplicateGroups(rows []model.MasterRow) []model.DuplicateGroup {
	index := make(map[string]int)
	var all []model.DuplicateGroup

	for _, row := range rows {
		k := ProductKey(row.PharmacyID, row.ProductNames)
		i, ok := index[k]
		if !ok {
			i = len(all)
			index[k] = i
			all = append(all, model.DuplicateGroup{
				PharmacyID:        row.PharmacyID,
				NormalizedProduct: Normalize(row.ProductNames),
				PharmacyName:      row.PharmacyNames,
				ProductName:       row.ProductNames,
			})
		}
		all[i].Records = append(all[i].Records, row)
	}

	groups := make([]model.DuplicateGroup, 0, len(all))
	for _, g := range all {
		if len(g.Records) >= 2 {
			groups = append(groups, g)
		}
	}
	return groups
}

// GroupProductKey is the key a new rule for the group is saved under
func GroupProductKey(g model.DuplicateGroup) string {
	if len(g.Records) > 0 {
		return ProductKey(g.PharmacyID, g.Records[0].ProductNames)
	}
	return ProductKey(g.PharmacyID, g.ProductName)
}

// MixedKeys returns the ids of member rows whose product key differs from
// GroupProductKey. Groups built here never have any; groups sent by the backend
// are checked before a rule is saved for them.
func MixedKeys(g model.DuplicateGroup) []int64 {
	key := GroupProductKey(g)
	var ids []int64
	for _, r := range g.Records {
		if ProductKey(g.PharmacyID, r.ProductNames) != key {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// RuleFor finds the rule that applies to a group. A rule matches when its
// pharmacy_id equals the group's and its product_key is the key of any member row.
func RuleFor(g model.DuplicateGroup, rules []model.SplitRule) (model.SplitRule, bool) {
	keys := make(map[string]struct{}, len(g.Records)+1)
	keys[GroupProductKey(g)] = struct{}{}
	for _, r := range g.Records {
		keys[ProductKey(g.PharmacyID, r.ProductNames)] = struct{}{}
	}

	for _, rule := range rules {
		if rule.PharmacyID != g.PharmacyID {
			continue
		}
		if _, ok := keys[rule.ProductKey]; ok {
			return rule, true
		}
	}
	return model.SplitRule{}, false
}

// Stats summarises duplicate groups for the list header
type Stats struct {
	Groups     int // number of duplicate groups
	Records    int // rows that belong to some group
	Pharmacies int // distinct pharmacies with at least one group
	WithRule   int // groups that already have a split rule
	Largest    int // size of the largest group
}

// GroupStats computes Stats for groups against the known rules
func GroupStats(groups []model.DuplicateGroup, rules []model.SplitRule) Stats {
	var st Stats
	pharmacies := make(map[string]struct{})
	for _, g := range groups {
		st.Groups++
		st.Records += len(g.Records)
		pharmacies[g.PharmacyID] = struct{}{}
		if len(g.Records) > st.Largest {
			st.Largest = len(g.Records)
		}
		if _, ok := RuleFor(g, rules); ok {
			st.WithRule++
		}
	}
	st.Pharmacies = len(pharmacies)
	return st
}

// FilterGroups keeps groups whose pharmacy id, pharmacy name, product name or
// any member doctor matches query (case-insensitive substring). Empty query keeps all.
func FilterGroups(groups []model.DuplicateGroup, query string) []model.DuplicateGroup {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return groups
	}

	var out []model.DuplicateGroup
	for _, g := range groups {
		if groupMatches(g, q) {
			out = append(out, g)
		}
	}
	return out
}

func groupMatches(g model.DuplicateGroup, q string) bool {
	fields := []string{g.PharmacyID, g.PharmacyName, g.ProductName, g.NormalizedProduct}
	for _, r := range g.Records {
		fields = append(fields, r.DoctorNames, r.DoctorID)
	}
	for _, f := range fields {
		if f != "" && strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

// SortGroups orders groups by pharmacy then product, for exports and stable listings
func SortGroups(groups []model.DuplicateGroup) {
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].PharmacyID != groups[j].PharmacyID {
			return groups[i].PharmacyID < groups[j].PharmacyID
		}
		return groups[i].NormalizedProduct < groups[j].NormalizedProduct
	})
}
