package reconcile

import (
	"fmt"
	"strings"

	"github.com/franz/prms-console/internal/model"
	"github.com/franz/prms-console/internal/util"
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)

	// Tolerance is the allowed distance of a ratio sum from 100. The bound is
	// exclusive: three equal seeds of 33.3 (99.9) must be adjusted before saving.
	Tolerance = decimal.RequireFromString("0.1")
)

// SeedEqualSplit gives every member round(100/n, 1). The remainder is not
// redistributed, so the result may not validate.
func SeedEqualSplit(g model.DuplicateGroup) []model.SplitEntry {
	n := len(g.Records)
	if n == 0 {
		return nil
	}
	share := hundred.DivRound(decimal.NewFromInt(int64(n)), 1)
	entries := make([]model.SplitEntry, n)
	for i, r := range g.Records {
		entries[i] = model.SplitEntry{MasterMappingID: r.ID, Ratio: share}
	}
	return entries
}

// SeedFromRule lays an existing rule over the group in member order. Members the
// rule does not mention get 0; entries for rows no longer in the group are dropped.
func SeedFromRule(g model.DuplicateGroup, rule model.SplitRule) []model.SplitEntry {
	byID := make(map[int64]decimal.Decimal, len(rule.Rules))
	for _, e := range rule.Rules {
		byID[e.MasterMappingID] = e.Ratio
	}
	entries := make([]model.SplitEntry, len(g.Records))
	for i, r := range g.Records {
		entries[i] = model.SplitEntry{MasterMappingID: r.ID, Ratio: byID[r.ID]}
	}
	return entries
}

// RatioCheck is the result of ValidateRatios
type RatioCheck struct {
	OK         bool            // sum is within Tolerance of 100
	Total      decimal.Decimal // sum of all ratios
	OutOfRange []int           // indexes of ratios outside [0, 100]
}

// Valid reports whether the entries may be saved as far as the numbers go
func (c RatioCheck) Valid() bool {
	return c.OK && len(c.OutOfRange) == 0
}

// Remaining is what must still be distributed to reach 100 (negative when over)
func (c RatioCheck) Remaining() decimal.Decimal {
	return hundred.Sub(c.Total)
}

// ValidateRatios sums the entries and checks them against 100
func ValidateRatios(entries []model.SplitEntry) RatioCheck {
	total := decimal.Zero
	var out []int
	for i, e := range entries {
		total = total.Add(e.Ratio)
		if e.Ratio.IsNegative() || e.Ratio.GreaterThan(hundred) {
			out = append(out, i)
		}
	}
	return RatioCheck{
		OK:         total.Sub(hundred).Abs().LessThan(Tolerance),
		Total:      total,
		OutOfRange: out,
	}
}

// ValidateRule checks everything a rule needs before it is sent: the ratio sum,
// each ratio's range, and that every entry names a distinct member of the group.
// Failures are validation errors.
func ValidateRule(g model.DuplicateGroup, entries []model.SplitEntry) error {
	if len(entries) == 0 {
		return util.Validation("split rule has no entries")
	}

	if mixed := MixedKeys(g); len(mixed) > 0 {
		return util.Validation("master row %d is keyed differently from %s", mixed[0], GroupProductKey(g))
	}

	seen := make(map[int64]struct{}, len(entries))
	for _, e := range entries {
		if !g.Contains(e.MasterMappingID) {
			return util.Validation("master row %d is not part of %s / %s", e.MasterMappingID, g.PharmacyID, g.ProductName)
		}
		if _, dup := seen[e.MasterMappingID]; dup {
			return util.Validation("master row %d appears twice", e.MasterMappingID)
		}
		seen[e.MasterMappingID] = struct{}{}
	}

	check := ValidateRatios(entries)
	if len(check.OutOfRange) > 0 {
		i := check.OutOfRange[0]
		return util.Validation("ratio %s for row %d must be between 0 and 100",
			entries[i].Ratio.String(), entries[i].MasterMappingID)
	}
	if !check.OK {
		return util.Validation("ratios total %s, must be 100 (off by %s)",
			check.Total.StringFixed(1), check.Remaining().StringFixed(1))
	}
	return nil
}

// ParseRatio reads an operator-typed ratio such as "33.4" or "33.4%"
func ParseRatio(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, util.Validation("%q is not a number", s)
	}
	if d.IsNegative() || d.GreaterThan(hundred) {
		return decimal.Zero, util.Validation("ratio %s must be between 0 and 100", d.String())
	}
	return d, nil
}

// FormatRatio renders a ratio with one decimal place
func FormatRatio(d decimal.Decimal) string {
	return fmt.Sprintf("%s%%", d.StringFixed(1))
}
