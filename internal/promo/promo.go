package promo

import (
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tournetwork/storefront/internal/money"
	"github.com/tournetwork/storefront/internal/tour"
)

// Discount kinds as named by the booking API.
const (
	KindPercent = "Percent"
	KindMoney   = "Money"
)

var (
	// ErrInvalidCode is returned when the booking API does not know the code.
	ErrInvalidCode = errors.New("promo: code not valid")
	// ErrExpiredCode is returned when the code exists but can no longer be used.
	ErrExpiredCode = errors.New("promo: code no longer valid")
	// ErrApplyFailed covers every other failure to apply a code.
	ErrApplyFailed = errors.New("promo: apply failed")
	// ErrEmptyCode is returned when no code was entered.
	ErrEmptyCode = errors.New("promo: code is required")
)

// Customer facing messages.
const (
	MessageInvalid = "Your coupon code is not valid."
	MessageExpired = "Your coupon code is no longer valid."
	MessageFailed  = "Failed to apply promo code. Please try again."
	MessageEmpty   = "Please enter a coupon code."
)

// Discount computes the reduction a code grants against the tour subtotal.
// The result is never negative and never exceeds the subtotal.
func Discount(code *tour.PromoCode, tourSubtotal decimal.Decimal) decimal.Decimal {
	if code == nil || !tourSubtotal.IsPositive() {
		return decimal.Zero
	}
	value := code.DiscountValue.Decimal
	if !value.IsPositive() {
		return decimal.Zero
	}
	var discount decimal.Decimal
	if strings.EqualFold(code.DiscountValueType, KindPercent) {
		discount = money.Round2(money.Percent(tourSubtotal, value))
	} else {
		discount = money.Round2(decimal.Min(value, tourSubtotal))
	}
	if discount.GreaterThan(tourSubtotal) {
		discount = tourSubtotal
	}
	return discount
}

// Classify maps a booking API status to the matching promo error.
func Classify(status int) error {
	switch status {
	case http.StatusNotFound:
		return ErrInvalidCode
	case http.StatusGone:
		return ErrExpiredCode
	default:
		return ErrApplyFailed
	}
}

// Message returns the text shown to the customer for err.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCode):
		return MessageInvalid
	case errors.Is(err, ErrExpiredCode):
		return MessageExpired
	case errors.Is(err, ErrEmptyCode):
		return MessageEmpty
	default:
		return MessageFailed
	}
}

// Code returns the API error code for err.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCode):
		return "PROMO_INVALID"
	case errors.Is(err, ErrExpiredCode):
		return "PROMO_EXPIRED"
	case errors.Is(err, ErrEmptyCode):
		return "VALIDATION_ERROR"
	default:
		return "PROMO_FAILED"
	}
}
