// Package allocation tracks how many seats a customer claims per rate group
// and keeps that claim within the capacity of the selected slot.
package allocation

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/tournetwork/storefront/internal/tour"
)

// AvailableSeats returns the capacity new selections may consume. Slot-scoped
// pricing uses the selected slot's seats and has no capacity until a slot is
// chosen. Date-scoped pricing uses the largest open slot.
func AvailableSeats(slots []tour.TimeSlot, selected *tour.TimeSlot, slotScoped bool) int {
	if slotScoped {
		if selected == nil {
			return 0
		}
		return selected.Seats
	}
	best := 0
	for _, s := range slots {
		if s.Open() && s.Seats > best {
			best = s.Seats
		}
	}
	return best
}

// GroupOption is a selectable party size in group-rate mode.
type GroupOption struct {
	Size    int             `json:"size"`
	RateFor string          `json:"rateFor"`
	Rate    decimal.Decimal `json:"rate"`
}

// Allocator holds the rate-group selections of one booking in progress. The
// zero value is an empty regular allocation. Mutators report whether the
// change was applied; a rejected change leaves the allocator untouched.
type Allocator struct {
	Mode          Mode             `json:"mode"`
	Groups        []tour.RateGroup `json:"groups"`
	Lines         []Line           `json:"lines"`
	GroupSize     int              `json:"groupSize"`
	CommissionPct decimal.Decimal  `json:"commissionPct"`
}

// New returns an empty allocator for mode.
func New(mode Mode) Allocator {
	return Allocator{Mode: mode}
}

func (a *Allocator) strategy() Strategy {
	return StrategyFor(a.Mode)
}

// Load replaces the offered rate groups. Regular mode starts one zero line per
// group; group-rate mode keeps the groups as size tiers with nothing chosen.
func (a *Allocator) Load(groups []tour.RateGroup, pct decimal.Decimal) {
	a.Groups = append([]tour.RateGroup(nil), groups...)
	a.CommissionPct = pct
	a.GroupSize = 0
	if a.Mode == ModeGroupRate {
		a.Lines = nil
		return
	}
	a.Lines = make([]Line, 0, len(groups))
	for _, g := range groups {
		a.Lines = append(a.Lines, Line{RateGroup: g})
	}
}

// Clear drops the offered groups and every selection.
func (a *Allocator) Clear() {
	a.Groups = nil
	a.Lines = nil
	a.GroupSize = 0
}

// Reset zeroes every selection while keeping the offered groups.
func (a *Allocator) Reset() {
	a.GroupSize = 0
	if a.Mode == ModeGroupRate {
		a.Lines = nil
		return
	}
	for i := range a.Lines {
		a.Lines[i] = Line{RateGroup: a.Lines[i].RateGroup}
	}
}

// TotalGuests is the party size in group-rate mode and the sum of quantities
// otherwise.
func (a Allocator) TotalGuests() int {
	if a.Mode == ModeGroupRate {
		return a.GroupSize
	}
	total := 0
	for _, l := range a.Lines {
		total += l.Quantity
	}
	return total
}

// Remaining is the capacity left after the current selections.
func (a Allocator) Remaining(available int) int {
	return available - a.TotalGuests()
}

// SetQuantity changes one regular line. Negative quantities, unknown lines and
// changes that would exceed available are rejected.
func (a *Allocator) SetQuantity(index, quantity, available int) bool {
	if a.Mode == ModeGroupRate {
		return false
	}
	if index < 0 || index >= len(a.Lines) || quantity < 0 {
		return false
	}
	others := 0
	for i, l := range a.Lines {
		if i != index {
			others += l.Quantity
		}
	}
	if others+quantity > available {
		return false
	}
	a.Lines[index] = a.strategy().Price(a.Lines[index].RateGroup, quantity, a.CommissionPct)
	return true
}

// CanIncrease reports whether one more guest fits on line index.
func (a Allocator) CanIncrease(index, available int) bool {
	if a.Mode == ModeGroupRate || index < 0 || index >= len(a.Lines) {
		return false
	}
	return a.TotalGuests()+1 <= available
}

// SetGroupSize picks the party size in group-rate mode. Size 0 clears the
// selection. A size with no matching tier is recorded with no priced line.
func (a *Allocator) SetGroupSize(size, available int) bool {
	if a.Mode != ModeGroupRate {
		return false
	}
	if size < 0 || size > available {
		return false
	}
	a.GroupSize = size
	a.Lines = nil
	if size == 0 {
		return true
	}
	for _, g := range a.Groups {
		if g.GroupSize() == size {
			a.Lines = []Line{a.strategy().Price(g, 1, a.CommissionPct)}
			break
		}
	}
	return true
}

// GroupSizeOptions lists the distinct tier sizes that fit in available, in
// ascending order. Each size reports its first tier.
func (a Allocator) GroupSizeOptions(available int) []GroupOption {
	seen := make(map[int]bool)
	out := make([]GroupOption, 0, len(a.Groups))
	for _, g := range a.Groups {
		size := g.GroupSize()
		if size > available || seen[size] {
			continue
		}
		seen[size] = true
		out = append(out, GroupOption{Size: size, RateFor: g.RateFor, Rate: g.Rate.Decimal})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Size < out[j].Size })
	return out
}

// Selected returns the lines with a positive quantity.
func (a Allocator) Selected() []Line {
	out := make([]Line, 0, len(a.Lines))
	for _, l := range a.Lines {
		if l.Quantity > 0 {
			out = append(out, l)
		}
	}
	return out
}

// Reprice recomputes every line with pct.
func (a *Allocator) Reprice(pct decimal.Decimal) {
	a.CommissionPct = pct
	s := a.strategy()
	for i, l := range a.Lines {
		a.Lines[i] = s.Price(l.RateGroup, l.Quantity, pct)
	}
}
