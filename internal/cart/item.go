// Package cart keeps the priced line items and purchaser details of a
// visitor until checkout completes.
package cart

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tournetwork/storefront/internal/addon"
	"github.com/tournetwork/storefront/internal/allocation"
	"github.com/tournetwork/storefront/internal/money"
	"github.com/tournetwork/storefront/internal/pricing"
	"github.com/tournetwork/storefront/internal/tour"
)

// Item is one scheduled tour in the cart. Pricing is computed when the item
// is created and never recomputed.
type Item struct {
	ID                  string            `json:"id"`
	PackageID           int               `json:"packageId"`
	TenantID            string            `json:"tenantId"`
	PackageName         string            `json:"packageName"`
	SelectedDate        string            `json:"selectedDate"`
	SelectedSlot        *tour.TimeSlot    `json:"selectedSlot"`
	RateGroupSelections []allocation.Line `json:"rateGroupSelections"`
	AddOnSelections     map[string]any    `json:"addOnSelections"`
	AddOnFieldDetails   []addon.Detail    `json:"addOnFieldDetails"`
	AppliedPromoCode    *tour.PromoCode   `json:"appliedPromoCode"`
	Pricing             pricing.Breakdown `json:"pricing"`
	TotalGuests         int               `json:"totalGuests"`
	CreatedAt           time.Time         `json:"createdAt"`
}

// CustomerInfo is the purchaser entered at checkout.
type CustomerInfo struct {
	FirstName             string `json:"firstName" validate:"required_trimmed"`
	LastName              string `json:"lastName" validate:"required_trimmed"`
	Email                 string `json:"email" validate:"required_trimmed,loose_email"`
	Phone                 string `json:"phone" validate:"required_trimmed"`
	AgreeToTerms          bool   `json:"agreeToTerms" validate:"eq=true"`
	SubscribeToNewsletter bool   `json:"subscribeToNewsletter"`
}

// Completed is the record shown once on the confirmation page.
type Completed struct {
	BookingID       string            `json:"bookingId"`
	BookingDate     time.Time         `json:"bookingDate"`
	CartItems       []Item            `json:"cartItems"`
	CustomerInfo    CustomerInfo      `json:"customerInfo"`
	TotalAmount     decimal.Decimal   `json:"totalAmount"`
	ServiceFees     decimal.Decimal   `json:"serviceFees"`
	PaymentIntentID string            `json:"paymentIntentId,omitempty"`
	Bookings        []json.RawMessage `json:"bookings,omitempty"`
}

// Total sums the amounts of items.
func Total(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Pricing.TotalAmount)
	}
	return money.Round2(total)
}

// Fees sums the service fees of items.
func Fees(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Pricing.TotalFees)
	}
	return money.Round2(total)
}

// Guests sums the party sizes of items.
func Guests(items []Item) int {
	n := 0
	for _, it := range items {
		n += it.TotalGuests
	}
	return n
}
