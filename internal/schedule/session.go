// Package schedule holds the booking wizard of one visitor: the chosen date,
// slot, guests, add-ons and promo, and the prices derived from them.
package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tournetwork/storefront/internal/addon"
	"github.com/tournetwork/storefront/internal/allocation"
	"github.com/tournetwork/storefront/internal/backend"
	"github.com/tournetwork/storefront/internal/calendar"
	"github.com/tournetwork/storefront/internal/cart"
	"github.com/tournetwork/storefront/internal/pricing"
	"github.com/tournetwork/storefront/internal/promo"
	"github.com/tournetwork/storefront/internal/tour"
)

var (
	// ErrInvalidDate is returned for dates that are not YYYY-MM-DD.
	ErrInvalidDate = errors.New("schedule: invalid date")
	// ErrPastDate is returned when a date before today is selected.
	ErrPastDate = errors.New("schedule: date is in the past")
	// ErrSlotUnavailable is returned for unknown or closed slots.
	ErrSlotUnavailable = errors.New("schedule: slot not available")
	// ErrNotBookable is returned when the session cannot become a cart item yet.
	ErrNotBookable = errors.New("schedule: selection incomplete")
)

// Session is the persisted wizard state. All prices are derived on demand
// from the allocator, the add-on values and the promo.
type Session struct {
	ID          string                  `json:"id"`
	TenantID    string                  `json:"tenantId"`
	PackageID   int                     `json:"packageId"`
	Package     tour.Package            `json:"package"`
	Form        []addon.Definition      `json:"form,omitempty"`
	AddOns      map[string]any          `json:"addOns"`
	Date        string                  `json:"date"`
	Month       calendar.Month          `json:"month"`
	Slots       []tour.TimeSlot         `json:"slots"`
	SlotsLoaded bool                    `json:"slotsLoaded"`
	SlotScoped  bool                    `json:"slotScoped"`
	SlotID      *int                    `json:"slotId,omitempty"`
	Rates       *backend.RateGroupQuery `json:"rates,omitempty"`
	RateCommPct *decimal.Decimal        `json:"rateCommissionPct,omitempty"`
	Allocation  allocation.Allocator    `json:"allocation"`
	Promo       *tour.PromoCode         `json:"promo,omitempty"`
	PromoError  string                  `json:"promoError,omitempty"`
	CreatedAt   time.Time               `json:"createdAt"`
	UpdatedAt   time.Time               `json:"updatedAt"`

	fields []addon.Field
}

// NewSession builds the initial state for a package. A nil form means the
// package offers no add-ons.
func NewSession(id string, pkg tour.Package, form *addon.CustomForm, now time.Time) *Session {
	s := &Session{
		ID:         id,
		TenantID:   pkg.TenantID,
		PackageID:  pkg.ID,
		Package:    pkg,
		AddOns:     map[string]any{},
		Allocation: allocation.New(allocation.ModeFor(pkg)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if form != nil {
		s.Form = addon.Visible(form.FormFields)
		s.AddOns = addon.Defaults(s.Fields())
	}
	return s
}

// Calendar evaluates dates in the package zone.
func (s *Session) Calendar(now func() time.Time) calendar.Calendar {
	return calendar.New(s.Package.Timezone, now)
}

// Fields decodes the visible add-on fields.
func (s *Session) Fields() []addon.Field {
	if s.fields != nil {
		return s.fields
	}
	fields, _ := addon.Fields(s.Form)
	s.fields = fields
	return fields
}

// SelectDate moves the wizard to date. Slots, slot choice, rates, guests and
// the promo belong to the old date and are dropped.
func (s *Session) SelectDate(cal calendar.Calendar, date string) error {
	if !calendar.ValidDate(date) {
		return fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	if cal.IsPast(date) {
		return fmt.Errorf("%w: %s", ErrPastDate, date)
	}
	s.Date = date
	if m, ok := calendar.MonthOf(date); ok {
		s.Month = m
	}
	s.Slots = nil
	s.SlotsLoaded = false
	s.SlotScoped = false
	s.SlotID = nil
	s.Rates = nil
	s.RateCommPct = nil
	s.Allocation.Clear()
	s.ClearPromo()
	return nil
}

// ApplySlots installs the slots fetched for date. A response for a date that
// is no longer selected is ignored and false is returned.
func (s *Session) ApplySlots(cal calendar.Calendar, date string, slots []tour.TimeSlot) bool {
	if date != s.Date {
		return false
	}
	s.Slots = cal.FilterFutureSlots(slots, date)
	s.SlotsLoaded = true
	s.SlotScoped = false
	for _, slot := range s.Slots {
		if slot.HasCustomRate() {
			s.SlotScoped = true
			break
		}
	}
	s.SlotID = nil
	s.Rates = nil
	s.RateCommPct = nil
	s.Allocation.Clear()
	return true
}

// RateGroupQuery returns the rate table the current selection needs. Without
// slots nothing is priced; slot-scoped pricing waits for a slot.
func (s *Session) RateGroupQuery() (backend.RateGroupQuery, bool) {
	if s.Date == "" || len(s.Slots) == 0 {
		return backend.RateGroupQuery{}, false
	}
	q := backend.RateGroupQuery{Date: s.Date}
	if !s.SlotScoped {
		return q, true
	}
	slot := s.SelectedSlot()
	if slot == nil {
		return backend.RateGroupQuery{}, false
	}
	if slot.HasCustomRate() {
		id := slot.ID
		q.SlotID = &id
	}
	return q, true
}

// NeedsRates reports whether the loaded table differs from RateGroupQuery.
func (s *Session) NeedsRates() bool {
	q, ok := s.RateGroupQuery()
	if !ok {
		return false
	}
	return s.Rates == nil || !s.Rates.Equal(q)
}

// ApplyRateGroups loads the table fetched for q. Responses for a query that
// no longer matches the selection are ignored and false is returned.
func (s *Session) ApplyRateGroups(q backend.RateGroupQuery, table backend.RateGroups) bool {
	current, ok := s.RateGroupQuery()
	if !ok || !current.Equal(q) {
		return false
	}
	loaded := q
	s.Rates = &loaded
	s.RateCommPct = nil
	if table.CommissionPct != nil {
		pct := table.CommissionPct.Decimal
		s.RateCommPct = &pct
	}
	s.Allocation.Load(table.Groups, s.CommissionPct())
	return true
}

// CommissionPct prefers the percentage sent with the rate table over the
// package default.
func (s *Session) CommissionPct() decimal.Decimal {
	if s.RateCommPct != nil {
		return *s.RateCommPct
	}
	return s.Package.ServiceCommissionPercentage.Decimal
}

// SelectedSlot returns the chosen slot, if any.
func (s *Session) SelectedSlot() *tour.TimeSlot {
	if s.SlotID == nil {
		return nil
	}
	for i := range s.Slots {
		if s.Slots[i].ID == *s.SlotID {
			return &s.Slots[i]
		}
	}
	return nil
}

// SelectSlot chooses an open slot and zeroes every guest selection. Under
// slot-scoped pricing the previous slot's table is dropped as well.
func (s *Session) SelectSlot(id int) error {
	var found *tour.TimeSlot
	for i := range s.Slots {
		if s.Slots[i].ID == id {
			found = &s.Slots[i]
			break
		}
	}
	if found == nil || !found.Open() {
		return fmt.Errorf("%w: %d", ErrSlotUnavailable, id)
	}
	slotID := found.ID
	s.SlotID = &slotID
	if s.SlotScoped && s.NeedsRates() {
		s.Rates = nil
		s.RateCommPct = nil
		s.Allocation.Clear()
		return nil
	}
	s.Allocation.Reset()
	return nil
}

// AvailableSeats is the capacity of the current context.
func (s *Session) AvailableSeats() int {
	return allocation.AvailableSeats(s.Slots, s.SelectedSlot(), s.SlotScoped)
}

// SetQuantity changes a regular line. It reports false, leaving the session
// untouched, when the change does not fit.
func (s *Session) SetQuantity(index, quantity int) bool {
	return s.Allocation.SetQuantity(index, quantity, s.AvailableSeats())
}

// SetGroupSize picks the party size of a group-rate package.
func (s *Session) SetGroupSize(size int) bool {
	return s.Allocation.SetGroupSize(size, s.AvailableSeats())
}

// SetAddOn stores a normalised value for a visible field.
func (s *Session) SetAddOn(fieldID string, value any) error {
	f, ok := addon.Find(s.Fields(), fieldID)
	if !ok {
		return fmt.Errorf("%w: %s", addon.ErrUnknownField, fieldID)
	}
	v, err := addon.Normalize(f, value)
	if err != nil {
		return err
	}
	if s.AddOns == nil {
		s.AddOns = map[string]any{}
	}
	s.AddOns[fieldID] = v
	return nil
}

// ApplyPromo installs a code validated for date. A code validated for a date
// that is no longer selected is ignored.
func (s *Session) ApplyPromo(date string, code tour.PromoCode) bool {
	if date != s.Date {
		return false
	}
	s.Promo = &code
	s.PromoError = ""
	return true
}

// RejectPromo clears the code and keeps the customer facing reason.
func (s *Session) RejectPromo(err error) {
	s.Promo = nil
	s.PromoError = promo.Message(err)
}

// ClearPromo removes the code and any error.
func (s *Session) ClearPromo() {
	s.Promo = nil
	s.PromoError = ""
}

// TotalGuests is the number of people currently selected.
func (s *Session) TotalGuests() int {
	return s.Allocation.TotalGuests()
}

// RemainingSeats may only go negative transiently; mutators never allow it.
func (s *Session) RemainingSeats() int {
	return s.Allocation.Remaining(s.AvailableSeats())
}

// Breakdown prices the current selection.
func (s *Session) Breakdown() pricing.Breakdown {
	return pricing.Compute(pricing.Input{
		Lines:         s.Allocation.Lines,
		Promo:         s.Promo,
		CommissionPct: s.CommissionPct(),
		AddOns:        pricing.AddOnsFor(s.Fields(), s.AddOns),
		Guests:        s.TotalGuests(),
	})
}

// Bookable reports whether the selection can go to the cart and, if not, why.
func (s *Session) Bookable() (bool, string) {
	switch {
	case s.Date == "":
		return false, "select a date"
	case s.SlotScoped && s.SelectedSlot() == nil:
		return false, "select a time slot"
	case s.TotalGuests() <= 0:
		return false, "select at least one guest"
	case s.Allocation.Mode == allocation.ModeGroupRate && len(s.Allocation.Lines) == 0:
		return false, "no rate for the selected group size"
	}
	if missing := addon.Missing(s.Fields(), s.AddOns); len(missing) > 0 {
		return false, "complete required add-ons"
	}
	return true, ""
}

// CartItem freezes the selection into a cart line.
func (s *Session) CartItem(now time.Time) (cart.Item, error) {
	if ok, reason := s.Bookable(); !ok {
		return cart.Item{}, fmt.Errorf("%w: %s", ErrNotBookable, reason)
	}
	guests := s.TotalGuests()
	values := make(map[string]any, len(s.AddOns))
	for k, v := range s.AddOns {
		values[k] = v
	}
	var slot *tour.TimeSlot
	if selected := s.SelectedSlot(); selected != nil {
		copied := *selected
		slot = &copied
	}
	var code *tour.PromoCode
	if s.Promo != nil {
		copied := *s.Promo
		code = &copied
	}
	return cart.Item{
		ID:                  s.TenantID + "-" + strconv.Itoa(s.PackageID) + "-" + strconv.FormatInt(now.UnixMilli(), 10),
		PackageID:           s.PackageID,
		TenantID:            s.TenantID,
		PackageName:         s.Package.Name,
		SelectedDate:        s.Date,
		SelectedSlot:        slot,
		RateGroupSelections: s.Allocation.Selected(),
		AddOnSelections:     values,
		AddOnFieldDetails:   addon.Details(s.Fields(), s.AddOns, guests, s.CommissionPct()),
		AppliedPromoCode:    code,
		Pricing:             s.Breakdown(),
		TotalGuests:         guests,
		CreatedAt:           now.UTC(),
	}, nil
}
