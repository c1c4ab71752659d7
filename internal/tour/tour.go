package tour

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tournetwork/storefront/internal/money"
)

// Slot availability states reported by the booking API.
const (
	SlotOpen   = "Open"
	SlotClosed = "Closed"
)

// Package is a bookable tour product.
type Package struct {
	ID                          int        `json:"id"`
	TenantID                    string     `json:"tenant_id,omitempty"`
	Name                        string     `json:"name"`
	Description                 string     `json:"long_description,omitempty"`
	ShortDescription            string     `json:"short_description,omitempty"`
	Category                    string     `json:"category_id,omitempty"`
	Hours                       int        `json:"hours"`
	Minutes                     int        `json:"minutes"`
	MinPax                      int        `json:"min_pax_allowed"`
	MaxPax                      int        `json:"max_pax_allowed"`
	IsGroupRateEnabled          Flag       `json:"is_group_rate_enabled"`
	Timezone                    string     `json:"timezone,omitempty"`
	ServiceCommissionPercentage money.Flex `json:"service_commission_percentage"`
	ThingsToBring               string     `json:"things_to_bring,omitempty"`
	ImportantNotes              string     `json:"important_notes,omitempty"`
}

// Flag is a boolean the booking API may send as 0/1, "1" or true.
type Flag bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(data []byte) error {
	switch strings.ToLower(strings.Trim(strings.TrimSpace(string(data)), `"`)) {
	case "1", "true", "yes":
		*f = true
	default:
		*f = false
	}
	return nil
}

// GroupRate reports whether the package prices whole groups instead of people.
func (p Package) GroupRate() bool {
	return bool(p.IsGroupRateEnabled)
}

// Duration renders the tour length, e.g. "2h 30m".
func (p Package) Duration() string {
	switch {
	case p.Hours <= 0 && p.Minutes <= 0:
		return "Flexible"
	case p.Hours <= 0:
		return fmt.Sprintf("%dm", p.Minutes)
	case p.Minutes <= 0:
		return fmt.Sprintf("%dh", p.Hours)
	default:
		return fmt.Sprintf("%dh %dm", p.Hours, p.Minutes)
	}
}

// GroupSizeLabel renders the allowed party size, e.g. "2-8 people".
func (p Package) GroupSizeLabel() string {
	switch {
	case p.MinPax > 0 && p.MaxPax > 0 && p.MinPax != p.MaxPax:
		return fmt.Sprintf("%d-%d people", p.MinPax, p.MaxPax)
	case p.MinPax > 0 && p.MaxPax == p.MinPax:
		return people(p.MinPax)
	case p.MinPax > 0:
		return fmt.Sprintf("%d+ people", p.MinPax)
	case p.MaxPax > 0:
		return "Up to " + people(p.MaxPax)
	default:
		return "Any group size"
	}
}

func people(n int) string {
	if n == 1 {
		return "1 person"
	}
	return strconv.Itoa(n) + " people"
}

// TimeSlot is a start time on a date with its remaining capacity.
type TimeSlot struct {
	ID             int        `json:"id"`
	Time           string     `json:"time"`
	Seats          int        `json:"seats"`
	BookableStatus string     `json:"bookable_status"`
	CustomRate     money.Flex `json:"custom_rate"`
}

// Open reports whether the slot accepts bookings.
func (s TimeSlot) Open() bool {
	return strings.EqualFold(s.BookableStatus, SlotOpen)
}

// HasCustomRate reports whether the slot carries its own rate table.
func (s TimeSlot) HasCustomRate() bool {
	return s.CustomRate.IsPositive()
}

// RateGroup is a pricing tier. In group-rate packages Size is the party size
// the tier prices; absent means 1.
type RateGroup struct {
	ID               int        `json:"id"`
	RateFor          string     `json:"rate_for"`
	Rate             money.Flex `json:"rate"`
	Tax              money.Flex `json:"tax"`
	PermitFee        money.Flex `json:"permit_fee"`
	AdditionalCharge money.Flex `json:"additional_charge"`
	PartnerFeeAmount money.Flex `json:"partner_fee_amount"`
	Description      string     `json:"description,omitempty"`
	Size             *int       `json:"size,omitempty"`
}

// GroupSize returns the tier size, defaulting to 1.
func (g RateGroup) GroupSize() int {
	if g.Size == nil || *g.Size == 0 {
		return 1
	}
	return *g.Size
}

// PromoCode is a coupon accepted by the booking API.
type PromoCode struct {
	ID                int        `json:"id"`
	CouponCode        string     `json:"coupon_code"`
	DiscountValue     money.Flex `json:"discount_value"`
	DiscountValueType string     `json:"discount_value_type"`
	Description       string     `json:"description,omitempty"`
}
