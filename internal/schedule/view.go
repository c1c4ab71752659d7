package schedule

import (
	"errors"
	"fmt"

	"github.com/tournetwork/storefront/internal/addon"
	"github.com/tournetwork/storefront/internal/allocation"
	"github.com/tournetwork/storefront/internal/calendar"
	"github.com/tournetwork/storefront/internal/pricing"
	"github.com/tournetwork/storefront/internal/tour"
)

// ErrInvalidDirection is returned for month moves other than prev or next.
var ErrInvalidDirection = errors.New("schedule: direction must be prev or next")

// NavigateMonth moves the displayed month.
func (s *Session) NavigateMonth(cal calendar.Calendar, direction string) error {
	if s.Month.IsZero() {
		s.Month = cal.CurrentMonth()
	}
	switch direction {
	case "prev":
		s.Month = s.Month.Prev()
	case "next":
		s.Month = s.Month.Next()
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDirection, direction)
	}
	return nil
}

// PackageView is the package header of the wizard.
type PackageView struct {
	ID               int    `json:"id"`
	TenantID         string `json:"tenantId"`
	Name             string `json:"name"`
	ShortDescription string `json:"shortDescription,omitempty"`
	Duration         string `json:"duration"`
	GroupSize        string `json:"groupSize"`
	Timezone         string `json:"timezone"`
}

// LineView is a rate group row with its controls state.
type LineView struct {
	Index       int  `json:"index"`
	CanIncrease bool `json:"canIncrease"`
	allocation.Line
}

// AddOnView is a visible add-on with the customer's value and its price.
type AddOnView struct {
	Definition    addon.Definition `json:"field"`
	Value         any              `json:"value"`
	PricingLabel  string           `json:"pricingLabel,omitempty"`
	ShowsQuantity bool             `json:"showsQuantity"`
	Pricing       addon.Pricing    `json:"pricing"`
}

// View is everything a client needs to render the wizard.
type View struct {
	ID               string                   `json:"id"`
	Package          PackageView              `json:"package"`
	Today            string                   `json:"today"`
	Month            string                   `json:"month"`
	MonthLabel       string                   `json:"monthLabel"`
	Days             []calendar.Day           `json:"days"`
	Date             string                   `json:"date"`
	DateLabel        string                   `json:"dateLabel,omitempty"`
	Slots            []tour.TimeSlot          `json:"slots"`
	SlotScoped       bool                     `json:"slotScoped"`
	SlotID           *int                     `json:"slotId,omitempty"`
	Mode             allocation.Mode          `json:"mode"`
	Lines            []LineView               `json:"lines"`
	GroupSize        int                      `json:"groupSize"`
	GroupSizeOptions []allocation.GroupOption `json:"groupSizeOptions,omitempty"`
	AvailableSeats   int                      `json:"availableSeats"`
	RemainingSeats   int                      `json:"remainingSeats"`
	TotalGuests      int                      `json:"totalGuests"`
	AddOns           []AddOnView              `json:"addOns"`
	Promo            *tour.PromoCode          `json:"promo,omitempty"`
	PromoError       string                   `json:"promoError,omitempty"`
	Breakdown        pricing.Breakdown        `json:"breakdown"`
	Bookable         bool                     `json:"bookable"`
	BookableReason   string                   `json:"bookableReason,omitempty"`
}

// View renders the session for month, or for the session's month when zero.
func (s *Session) View(cal calendar.Calendar, month calendar.Month) View {
	if month.IsZero() {
		month = s.Month
	}
	if month.IsZero() {
		month = cal.CurrentMonth()
	}
	available := s.AvailableSeats()
	guests := s.TotalGuests()
	pct := s.CommissionPct()

	lines := make([]LineView, 0, len(s.Allocation.Lines))
	for i, l := range s.Allocation.Lines {
		lines = append(lines, LineView{Index: i, CanIncrease: s.Allocation.CanIncrease(i, available), Line: l})
	}

	addOns := make([]AddOnView, 0, len(s.Form))
	for _, def := range s.Form {
		f, err := addon.Decode(def)
		if err != nil {
			continue
		}
		value := s.AddOns[def.ID]
		addOns = append(addOns, AddOnView{
			Definition:    def,
			Value:         value,
			PricingLabel:  addon.PricingLabel(f),
			ShowsQuantity: addon.ShowsQuantity(f),
			Pricing:       addon.Price(f, value, guests, pct),
		})
	}

	header := PackageView{
		ID:               s.Package.ID,
		TenantID:         s.TenantID,
		Name:             s.Package.Name,
		ShortDescription: s.Package.ShortDescription,
		Duration:         s.Package.Duration(),
		GroupSize:        s.Package.GroupSizeLabel(),
		Timezone:         cal.DisplayName(),
	}
	v := View{
		ID:             s.ID,
		Package:        header,
		Today:          cal.Today(),
		Month:          month.String(),
		MonthLabel:     month.Label(),
		Days:           cal.Days(month, s.Date),
		Date:           s.Date,
		Slots:          s.Slots,
		SlotScoped:     s.SlotScoped,
		SlotID:         s.SlotID,
		Mode:           s.Allocation.Mode,
		Lines:          lines,
		GroupSize:      s.Allocation.GroupSize,
		AvailableSeats: available,
		RemainingSeats: s.RemainingSeats(),
		TotalGuests:    guests,
		AddOns:         addOns,
		Promo:          s.Promo,
		PromoError:     s.PromoError,
		Breakdown:      s.Breakdown(),
	}
	if s.Date != "" {
		v.DateLabel = cal.FormatDate(s.Date)
	}
	if s.Allocation.Mode == allocation.ModeGroupRate {
		v.GroupSizeOptions = s.Allocation.GroupSizeOptions(available)
	}
	v.Bookable, v.BookableReason = s.Bookable()
	return v
}
