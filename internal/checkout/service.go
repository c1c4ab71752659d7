// Package checkout turns a cart into a payment intent and, once paid, into
// bookings on the booking API.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tournetwork/storefront/internal/backend"
	"github.com/tournetwork/storefront/internal/cart"
	"github.com/tournetwork/storefront/internal/events"
	"github.com/tournetwork/storefront/internal/obs"
)

var (
	// ErrCartEmpty is returned when there is nothing to pay for.
	ErrCartEmpty = errors.New("checkout: cart is empty")
	// ErrMissingPaymentIntent is returned by Confirm without a payment intent id.
	ErrMissingPaymentIntent = errors.New("checkout: payment intent id is required")
	// ErrMissingCustomer is returned by Confirm before customer info was saved.
	ErrMissingCustomer = errors.New("checkout: customer information missing")
	// ErrNoConfirmation is returned when no completed booking is waiting.
	ErrNoConfirmation = errors.New("checkout: no completed booking")
	// ErrBackend wraps failed booking API calls.
	ErrBackend = errors.New("checkout: booking service failed")
)

// Backend is the part of the booking API that takes money and bookings.
type Backend interface {
	CreatePaymentIntent(ctx context.Context, req backend.PaymentIntentRequest) (backend.PaymentIntent, error)
	CreateBookings(ctx context.Context, req backend.BookingRequest) (backend.BookingResult, error)
}

// Ledger keeps a local copy of confirmed bookings.
type Ledger interface {
	Record(ctx context.Context, cartID string, c cart.Completed) error
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic string, payload any) (events.Event, error)
}

// Service runs checkout. Events and Ledger are optional.
type Service struct {
	Backend  Backend
	Carts    *cart.Store
	Events   Emitter
	Ledger   Ledger
	Currency string
	Now      func() time.Time
	Logger   zerolog.Logger
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// PaymentStart is what the client needs to collect the payment.
type PaymentStart struct {
	PaymentIntent backend.PaymentIntent `json:"paymentIntent"`
	Amount        string                `json:"amount"`
	Currency      string                `json:"currency"`
	ItemCount     int                   `json:"itemCount"`
}

// StartPayment validates and stores the purchaser, then opens a payment for
// the cart total.
func (s *Service) StartPayment(ctx context.Context, cartID string, info cart.CustomerInfo) (PaymentStart, error) {
	if err := info.Validate(); err != nil {
		return PaymentStart{}, err
	}
	items, err := s.Carts.Items(ctx, cartID)
	if err != nil {
		return PaymentStart{}, err
	}
	if len(items) == 0 {
		return PaymentStart{}, ErrCartEmpty
	}
	if err := s.Carts.SetCustomerInfo(ctx, cartID, info); err != nil {
		return PaymentStart{}, err
	}

	amount := cart.Total(items)
	intent, err := s.Backend.CreatePaymentIntent(ctx, backend.PaymentIntentRequest{
		Amount:        amount,
		Currency:      strings.ToLower(s.Currency),
		CustomerEmail: strings.TrimSpace(info.Email),
		CustomerName:  strings.TrimSpace(info.FirstName + " " + info.LastName),
		Description:   description(items),
		Metadata: map[string]string{
			"cart_id":    cartID,
			"item_count": strconv.Itoa(len(items)),
		},
	})
	if err != nil {
		return PaymentStart{}, fmt.Errorf("%w: payment intent: %w", ErrBackend, err)
	}
	s.Logger.Info().Str("cart_id", cartID).Str("payment_intent_id", intent.ID).
		Str("amount", amount.StringFixed(2)).Int("items", len(items)).Msg("payment_started")
	return PaymentStart{
		PaymentIntent: intent,
		Amount:        amount.StringFixed(2),
		Currency:      s.Currency,
		ItemCount:     len(items),
	}, nil
}

func description(items []cart.Item) string {
	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, it.PackageName)
	}
	return "Tour booking: " + strings.Join(names, ", ")
}

// BookingLines converts cart items to the booking API shape. The pricing
// breakdown of each item is forwarded verbatim.
func BookingLines(items []cart.Item) []backend.BookingLine {
	lines := make([]backend.BookingLine, 0, len(items))
	for _, it := range items {
		line := backend.BookingLine{
			TenantID:     it.TenantID,
			PackageID:    it.PackageID,
			Date:         it.SelectedDate,
			RateGroups:   it.RateGroupSelections,
			AddOns:       it.AddOnSelections,
			AddOnDetails: it.AddOnFieldDetails,
			Pricing:      it.Pricing,
			TotalGuests:  it.TotalGuests,
		}
		if it.SelectedSlot != nil {
			line.SlotID = it.SelectedSlot.ID
			line.SlotTime = it.SelectedSlot.Time
		}
		if it.AppliedPromoCode != nil {
			line.CouponID = it.AppliedPromoCode.ID
			line.CouponCode = it.AppliedPromoCode.CouponCode
		}
		lines = append(lines, line)
	}
	return lines
}

// Confirm books every cart item against a paid intent. On success the
// completed record replaces the booked items; items added meanwhile stay.
func (s *Service) Confirm(ctx context.Context, cartID, paymentIntentID string) (cart.Completed, error) {
	paymentIntentID = strings.TrimSpace(paymentIntentID)
	if paymentIntentID == "" {
		return cart.Completed{}, ErrMissingPaymentIntent
	}
	items, err := s.Carts.Items(ctx, cartID)
	if err != nil {
		return cart.Completed{}, err
	}
	if len(items) == 0 {
		return cart.Completed{}, ErrCartEmpty
	}
	info, err := s.Carts.CustomerInfo(ctx, cartID)
	if err != nil {
		return cart.Completed{}, err
	}
	if info == nil {
		return cart.Completed{}, ErrMissingCustomer
	}

	total := cart.Total(items)
	res, err := s.Backend.CreateBookings(ctx, backend.BookingRequest{
		PaymentIntentID: paymentIntentID,
		Customer: backend.Customer{
			FirstName:             strings.TrimSpace(info.FirstName),
			LastName:              strings.TrimSpace(info.LastName),
			Email:                 strings.TrimSpace(info.Email),
			Phone:                 strings.TrimSpace(info.Phone),
			SubscribeToNewsletter: info.SubscribeToNewsletter,
		},
		Items:       BookingLines(items),
		TotalAmount: total,
	})
	if err != nil {
		obs.Inc(obs.Bookings, "failed")
		s.Logger.Error().Err(err).Str("cart_id", cartID).Str("payment_intent_id", paymentIntentID).Msg("booking_failed")
		return cart.Completed{}, fmt.Errorf("%w: create bookings: %w", ErrBackend, err)
	}

	now := s.now().UTC()
	bookingID := res.BookingID
	if bookingID == "" {
		bookingID = "TN-" + strconv.FormatInt(now.UnixMilli(), 10)
	}
	completed := cart.Completed{
		BookingID:       bookingID,
		BookingDate:     now,
		CartItems:       items,
		CustomerInfo:    *info,
		TotalAmount:     total,
		ServiceFees:     cart.Fees(items),
		PaymentIntentID: paymentIntentID,
		Bookings:        res.Bookings,
	}
	// Bookings exist from here on; later failures are logged, not returned.
	if err := s.Carts.SaveCompleted(ctx, cartID, completed); err != nil {
		s.Logger.Error().Err(err).Str("cart_id", cartID).Str("booking_id", bookingID).Msg("completed_booking_save_failed")
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	if _, err := s.Carts.RemoveItems(ctx, cartID, ids); err != nil {
		s.Logger.Warn().Err(err).Str("cart_id", cartID).Msg("cart_clear_failed")
	}
	obs.Inc(obs.Bookings, "confirmed")
	s.Logger.Info().Str("cart_id", cartID).Str("booking_id", bookingID).
		Str("total", total.StringFixed(2)).Int("items", len(items)).Msg("booking_confirmed")

	s.publish(ctx, cartID, completed)
	if s.Ledger != nil {
		if err := s.Ledger.Record(ctx, cartID, completed); err != nil {
			s.Logger.Warn().Err(err).Str("booking_id", bookingID).Msg("ledger_write_failed")
		}
	}
	return completed, nil
}

func (s *Service) publish(ctx context.Context, cartID string, c cart.Completed) {
	if s.Events == nil {
		return
	}
	var (
		tenants  []string
		packages []int
		seen     = map[string]bool{}
	)
	for _, it := range c.CartItems {
		if !seen[it.TenantID] {
			seen[it.TenantID] = true
			tenants = append(tenants, it.TenantID)
		}
		packages = append(packages, it.PackageID)
	}
	payload := events.BookingConfirmed{
		BookingID:       c.BookingID,
		CartID:          cartID,
		Tenants:         tenants,
		Packages:        packages,
		TotalAmount:     c.TotalAmount,
		ServiceFees:     c.ServiceFees,
		Guests:          cart.Guests(c.CartItems),
		PaymentIntentID: c.PaymentIntentID,
		ConfirmedAt:     c.BookingDate,
	}
	if _, err := s.Events.Emit(ctx, events.TopicBookingConfirmed, payload); err != nil {
		s.Logger.Warn().Err(err).Str("booking_id", c.BookingID).Msg("booking_event_failed")
	}
}

// Confirmation hands out the completed booking once.
func (s *Service) Confirmation(ctx context.Context, cartID string) (cart.Completed, error) {
	c, ok, err := s.Carts.TakeCompleted(ctx, cartID)
	if err != nil {
		return cart.Completed{}, err
	}
	if !ok {
		return cart.Completed{}, ErrNoConfirmation
	}
	return c, nil
}
