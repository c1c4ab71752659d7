package pricing

import (
	"errors"
	"fmt"

	"github.com/tournetwork/storefront/internal/addon"
	"github.com/tournetwork/storefront/internal/allocation"
	"github.com/tournetwork/storefront/internal/money"
	"github.com/tournetwork/storefront/internal/tour"
)

var (
	// ErrOverCapacity is returned when a quote asks for more guests than seats.
	ErrOverCapacity = errors.New("pricing: selection exceeds available seats")
	// ErrUnknownRateGroup is returned when a quantity targets a group not in the request.
	ErrUnknownRateGroup = errors.New("pricing: unknown rate group")
	// ErrNegativeQuantity is returned for quantities below zero.
	ErrNegativeQuantity = errors.New("pricing: quantity must not be negative")
)

// QuoteRequest is a self-contained pricing question. Quantities are keyed by
// rate group id and only apply to regular packages; GroupSize only applies to
// group-rate packages.
type QuoteRequest struct {
	GroupRate      bool               `json:"groupRate"`
	CommissionPct  money.Flex         `json:"commissionPct"`
	RateGroups     []tour.RateGroup   `json:"rateGroups"`
	Quantities     map[int]int        `json:"quantities,omitempty"`
	GroupSize      int                `json:"groupSize,omitempty"`
	AvailableSeats *int               `json:"availableSeats,omitempty"`
	Promo          *tour.PromoCode    `json:"promo,omitempty"`
	Fields         []addon.Definition `json:"fields,omitempty"`
	AddOns         map[string]any     `json:"addOns,omitempty"`
}

// Quote is the priced answer to a QuoteRequest.
type Quote struct {
	Lines     []allocation.Line `json:"lines"`
	Guests    int               `json:"guests"`
	Breakdown Breakdown         `json:"breakdown"`
}

// BuildQuote runs the full pricing pipeline without any session state.
func BuildQuote(req QuoteRequest) (Quote, error) {
	mode := allocation.ModeRegular
	if req.GroupRate {
		mode = allocation.ModeGroupRate
	}
	alloc := allocation.New(mode)
	pct := req.CommissionPct.Decimal
	alloc.Load(req.RateGroups, pct)

	if req.GroupSize < 0 {
		return Quote{}, ErrNegativeQuantity
	}
	available := req.GroupSize
	for _, q := range req.Quantities {
		if q < 0 {
			return Quote{}, ErrNegativeQuantity
		}
		available += q
	}
	if req.AvailableSeats != nil {
		available = *req.AvailableSeats
	}

	if mode == allocation.ModeGroupRate {
		if !alloc.SetGroupSize(req.GroupSize, available) {
			return Quote{}, fmt.Errorf("%w: group of %d", ErrOverCapacity, req.GroupSize)
		}
	} else {
		for id, qty := range req.Quantities {
			idx := indexOf(alloc.Lines, id)
			if idx < 0 {
				return Quote{}, fmt.Errorf("%w: %d", ErrUnknownRateGroup, id)
			}
			if !alloc.SetQuantity(idx, qty, available) {
				return Quote{}, fmt.Errorf("%w: %d guests for rate group %d", ErrOverCapacity, qty, id)
			}
		}
	}

	// Undecodable definitions are skipped as in a session; a value aimed at
	// one fails below as an unknown field.
	fields, _ := addon.Fields(req.Fields)
	values, err := normalizeAddOns(fields, req.AddOns)
	if err != nil {
		return Quote{}, err
	}
	guests := alloc.TotalGuests()
	breakdown := Compute(Input{
		Lines:         alloc.Lines,
		Promo:         req.Promo,
		CommissionPct: pct,
		AddOns:        AddOnsFor(fields, values),
		Guests:        guests,
	})
	return Quote{Lines: alloc.Selected(), Guests: guests, Breakdown: breakdown}, nil
}

// normalizeAddOns applies the same checks as a session add-on change:
// option membership, whole numbers within bounds, known field ids.
func normalizeAddOns(fields []addon.Field, raw map[string]any) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(raw))
	for id, value := range raw {
		f, ok := addon.Find(fields, id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", addon.ErrUnknownField, id)
		}
		v, err := addon.Normalize(f, value)
		if err != nil {
			return nil, err
		}
		out[id] = v
	}
	return out, nil
}

func indexOf(lines []allocation.Line, rateGroupID int) int {
	for i, l := range lines {
		if l.RateGroup.ID == rateGroupID {
			return i
		}
	}
	return -1
}
