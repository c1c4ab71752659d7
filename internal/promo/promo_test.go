package promo

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tournetwork/storefront/internal/money"
	"github.com/tournetwork/storefront/internal/tour"
)

func code(kind, value string) *tour.PromoCode {
	return &tour.PromoCode{ID: 1, CouponCode: "SAVE", DiscountValueType: kind, DiscountValue: money.FlexFromString(value)}
}

func TestDiscountPercent(t *testing.T) {
	got := Discount(code(KindPercent, "10"), decimal.RequireFromString("160.50"))
	require.True(t, got.Equal(decimal.RequireFromString("16.05")))

	got = Discount(code(KindPercent, "15"), decimal.RequireFromString("33.33"))
	// 4.9995 rounds up
	require.True(t, got.Equal(decimal.RequireFromString("5")))
}

func TestDiscountMoneyClampsToSubtotal(t *testing.T) {
	got := Discount(code(KindMoney, "200"), decimal.RequireFromString("160.50"))
	require.True(t, got.Equal(decimal.RequireFromString("160.50")))

	got = Discount(code(KindMoney, "20"), decimal.RequireFromString("160.50"))
	require.True(t, got.Equal(decimal.NewFromInt(20)))
}

func TestDiscountNeverExceedsSubtotal(t *testing.T) {
	subtotals := []string{"0", "0.01", "1", "99.99", "160.50", "1000"}
	codes := []*tour.PromoCode{nil, code(KindPercent, "100"), code(KindPercent, "150"), code(KindMoney, "0.5"), code(KindMoney, "5000"), code(KindMoney, "-4"), code("Unknown", "abc")}
	for _, s := range subtotals {
		sub := decimal.RequireFromString(s)
		for _, c := range codes {
			d := Discount(c, sub)
			require.False(t, d.IsNegative())
			require.True(t, d.LessThanOrEqual(sub), "%v on %s gave %s", c, s, d)
		}
	}
}

func TestDiscountZeroCases(t *testing.T) {
	require.True(t, Discount(nil, decimal.NewFromInt(100)).IsZero())
	require.True(t, Discount(code(KindPercent, "10"), decimal.Zero).IsZero())
}

func TestClassifyAndMessages(t *testing.T) {
	require.ErrorIs(t, Classify(http.StatusNotFound), ErrInvalidCode)
	require.ErrorIs(t, Classify(http.StatusGone), ErrExpiredCode)
	require.ErrorIs(t, Classify(http.StatusInternalServerError), ErrApplyFailed)

	require.Equal(t, MessageInvalid, Message(fmt.Errorf("wrap: %w", ErrInvalidCode)))
	require.Equal(t, MessageExpired, Message(ErrExpiredCode))
	require.Equal(t, MessageFailed, Message(ErrApplyFailed))
	require.NotEqual(t, Message(ErrInvalidCode), Message(ErrExpiredCode))
	require.Equal(t, "PROMO_EXPIRED", Code(ErrExpiredCode))
}
