package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tournetwork/storefront/internal/addon"
	"github.com/tournetwork/storefront/internal/allocation"
	"github.com/tournetwork/storefront/internal/cache"
	"github.com/tournetwork/storefront/internal/money"
	"github.com/tournetwork/storefront/internal/pricing"
	"github.com/tournetwork/storefront/internal/promo"
	"github.com/tournetwork/storefront/internal/resilience"
	"github.com/tournetwork/storefront/internal/tour"
)

func path(prefix, tenantID string, packageID int) string {
	return fmt.Sprintf("/%s/%s/%d", prefix, url.PathEscape(tenantID), packageID)
}

// Package loads a package record. The tenant id from the envelope wins over
// the one on the package itself.
func (c *Client) Package(ctx context.Context, tenantID string, packageID int) (tour.Package, error) {
	key := cache.KeyPackage(tenantID, packageID)
	var pkg tour.Package
	if c.cached(ctx, key, &pkg) {
		return pkg, nil
	}
	var data struct {
		Package  tour.Package `json:"package"`
		TenantID string       `json:"tenant_id"`
	}
	if err := c.do(ctx, http.MethodGet, path("package", tenantID, packageID), nil, &data); err != nil {
		return tour.Package{}, err
	}
	pkg = data.Package
	pkg.TenantID = tenantID
	if data.TenantID != "" {
		pkg.TenantID = data.TenantID
	}
	c.store(ctx, key, pkg)
	return pkg, nil
}

// CustomForm loads the package's add-on form. A package without a form yields nil.
func (c *Client) CustomForm(ctx context.Context, tenantID string, packageID int) (*addon.CustomForm, error) {
	key := cache.KeyCustomForm(tenantID, packageID)
	var form addon.CustomForm
	if c.cached(ctx, key, &form) {
		if len(form.FormFields) == 0 {
			return nil, nil
		}
		return &form, nil
	}
	var data struct {
		CustomForm *addon.CustomForm `json:"custom_form"`
	}
	err := c.do(ctx, http.MethodGet, path("custom-form", tenantID, packageID), nil, &data)
	if IsStatus(err, http.StatusNotFound) {
		c.store(ctx, key, addon.CustomForm{})
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if data.CustomForm == nil {
		c.store(ctx, key, addon.CustomForm{})
		return nil, nil
	}
	c.store(ctx, key, data.CustomForm)
	return data.CustomForm, nil
}

// TimeSlots lists the slots of a date.
func (c *Client) TimeSlots(ctx context.Context, tenantID string, packageID int, date string) ([]tour.TimeSlot, error) {
	var data struct {
		Slots []tour.TimeSlot `json:"slots"`
	}
	body := map[string]string{"date": date}
	if err := c.do(ctx, http.MethodPost, path("time-slots", tenantID, packageID), body, &data); err != nil {
		return nil, err
	}
	return data.Slots, nil
}

// RateGroupQuery identifies a rate table: the date, plus the slot for
// slot-scoped pricing.
type RateGroupQuery struct {
	Date   string `json:"date"`
	SlotID *int   `json:"slot_id,omitempty"`
}

// Equal reports whether q and other request the same table.
func (q RateGroupQuery) Equal(other RateGroupQuery) bool {
	if q.Date != other.Date {
		return false
	}
	if q.SlotID == nil || other.SlotID == nil {
		return q.SlotID == nil && other.SlotID == nil
	}
	return *q.SlotID == *other.SlotID
}

// RateGroups is the rate table of a query. CommissionPct is nil when the API
// did not send one.
type RateGroups struct {
	Groups        []tour.RateGroup `json:"rate_groups"`
	CommissionPct *money.Flex      `json:"service_commission_percentage"`
}

// RateGroups loads the rate table for q.
func (c *Client) RateGroups(ctx context.Context, tenantID string, packageID int, q RateGroupQuery) (RateGroups, error) {
	var data RateGroups
	if err := c.do(ctx, http.MethodPost, path("rate-groups", tenantID, packageID), q, &data); err != nil {
		return RateGroups{}, err
	}
	return data, nil
}

// SetCoupon validates a coupon for a date. 404 and 410 map to
// promo.ErrInvalidCode and promo.ErrExpiredCode; other failures wrap
// promo.ErrApplyFailed.
func (c *Client) SetCoupon(ctx context.Context, tenantID string, packageID int, code, date string) (tour.PromoCode, error) {
	var data struct {
		Coupon *tour.PromoCode `json:"coupon"`
	}
	body := map[string]string{"coupon": code, "date": date}
	err := c.do(ctx, http.MethodPost, path("set-coupon", tenantID, packageID), body, &data)
	if err != nil {
		if status := StatusOf(err); status != 0 {
			classified := promo.Classify(status)
			if errors.Is(classified, promo.ErrApplyFailed) {
				return tour.PromoCode{}, fmt.Errorf("%w: %w", classified, err)
			}
			return tour.PromoCode{}, classified
		}
		return tour.PromoCode{}, fmt.Errorf("%w: %w", promo.ErrApplyFailed, err)
	}
	if data.Coupon == nil {
		return tour.PromoCode{}, promo.ErrInvalidCode
	}
	return *data.Coupon, nil
}

// PaymentIntentRequest asks the booking API to open a payment for a cart.
type PaymentIntentRequest struct {
	Amount        decimal.Decimal   `json:"amount"`
	Currency      string            `json:"currency"`
	CustomerEmail string            `json:"customer_email"`
	CustomerName  string            `json:"customer_name"`
	Description   string            `json:"description,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// PaymentIntent is relayed to the client untouched apart from normalisation.
type PaymentIntent struct {
	ID           string     `json:"id"`
	ClientSecret string     `json:"client_secret"`
	Amount       money.Flex `json:"amount"`
	Currency     string     `json:"currency"`
	Status       string     `json:"status,omitempty"`
}

// CreatePaymentIntent opens a payment. It is attempted once.
func (c *Client) CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (PaymentIntent, error) {
	var data struct {
		PaymentIntent *PaymentIntent `json:"payment_intent"`
		ID            string         `json:"id"`
		ClientSecret  string         `json:"client_secret"`
	}
	if err := c.do(resilience.NoRetry(ctx), http.MethodPost, "/create-payment-intent", req, &data); err != nil {
		return PaymentIntent{}, err
	}
	if data.PaymentIntent != nil {
		return *data.PaymentIntent, nil
	}
	if data.ID == "" && data.ClientSecret == "" {
		return PaymentIntent{}, errors.New("backend: payment intent missing from response")
	}
	return PaymentIntent{ID: data.ID, ClientSecret: data.ClientSecret, Amount: money.NewFlex(req.Amount), Currency: req.Currency}, nil
}

// Customer is the purchaser as the booking API expects it.
type Customer struct {
	FirstName             string `json:"first_name"`
	LastName              string `json:"last_name"`
	Email                 string `json:"email"`
	Phone                 string `json:"phone"`
	SubscribeToNewsletter bool   `json:"subscribe_to_newsletter"`
}

// BookingLine is one cart item submitted for booking. Pricing carries the
// breakdown computed here so the backend can validate it.
type BookingLine struct {
	TenantID     string            `json:"tenant_id"`
	PackageID    int               `json:"package_id"`
	Date         string            `json:"date"`
	SlotID       int               `json:"slot_id,omitempty"`
	SlotTime     string            `json:"slot_time,omitempty"`
	RateGroups   []allocation.Line `json:"rate_groups"`
	AddOns       map[string]any    `json:"add_ons,omitempty"`
	AddOnDetails []addon.Detail    `json:"add_on_details,omitempty"`
	CouponID     int               `json:"coupon_id,omitempty"`
	CouponCode   string            `json:"coupon_code,omitempty"`
	Pricing      pricing.Breakdown `json:"pricing"`
	TotalGuests  int               `json:"total_guests"`
}

// BookingRequest finalises a paid cart.
type BookingRequest struct {
	PaymentIntentID string          `json:"payment_intent_id"`
	Customer        Customer        `json:"customer"`
	Items           []BookingLine   `json:"items"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
}

// BookingResult is the backend's acknowledgement. BookingID may be empty.
type BookingResult struct {
	BookingID string            `json:"booking_id"`
	Bookings  []json.RawMessage `json:"bookings,omitempty"`
}

// CreateBookings submits the booking. It is attempted once.
func (c *Client) CreateBookings(ctx context.Context, req BookingRequest) (BookingResult, error) {
	var data struct {
		BookingID json.RawMessage   `json:"booking_id"`
		Bookings  []json.RawMessage `json:"bookings"`
	}
	if err := c.do(resilience.NoRetry(ctx), http.MethodPost, "/create-bookings", req, &data); err != nil {
		return BookingResult{}, err
	}
	return BookingResult{BookingID: looseID(data.BookingID), Bookings: data.Bookings}, nil
}

func looseID(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return strings.TrimSpace(str)
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return ""
}

// Ping probes GET /packages within timeout.
func (c *Client) Ping(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return c.do(resilience.NoRetry(ctx), http.MethodGet, "/packages", nil, nil)
}
