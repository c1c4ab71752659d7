package pricing

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tournetwork/storefront/internal/addon"
	"github.com/tournetwork/storefront/internal/allocation"
	"github.com/tournetwork/storefront/internal/money"
	"github.com/tournetwork/storefront/internal/tour"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func adultLine(t *testing.T, qty int) allocation.Line {
	t.Helper()
	g := tour.RateGroup{ID: 1, RateFor: "Adult", Rate: money.FlexFromString("50.00"), PermitFee: money.FlexFromString("2.50"), PartnerFeeAmount: money.FlexFromString("1.00")}
	return allocation.Regular{}.Price(g, qty, dec("10"))
}

func TestComputeWithoutPromo(t *testing.T) {
	b := Compute(Input{Lines: []allocation.Line{adultLine(t, 3)}, CommissionPct: dec("10"), Guests: 3})
	require.True(t, b.TourSubtotal.Equal(dec("160.50")))
	require.True(t, b.PromoDiscount.IsZero())
	require.True(t, b.TourFees.Equal(dec("16.05")))
	require.True(t, b.TotalSubtotal.Equal(dec("160.50")))
	require.True(t, b.TotalFees.Equal(dec("16.05")))
	require.True(t, b.TotalAmount.Equal(dec("176.55")))
}

func TestComputePercentPromoRecomputesFees(t *testing.T) {
	code := &tour.PromoCode{ID: 3, CouponCode: "TEN", DiscountValue: money.FlexFromString("10"), DiscountValueType: "Percent"}
	b := Compute(Input{Lines: []allocation.Line{adultLine(t, 3)}, Promo: code, CommissionPct: dec("10"), Guests: 3})
	require.True(t, b.PromoDiscount.Equal(dec("16.05")))
	require.True(t, b.TourFees.Equal(dec("14.45")))
	require.True(t, b.TotalSubtotal.Equal(dec("144.45")))
	require.True(t, b.TotalAmount.Equal(dec("158.90")))
}

func TestComputeFixedPromoClamps(t *testing.T) {
	code := &tour.PromoCode{ID: 4, DiscountValue: money.FlexFromString("200"), DiscountValueType: "Money"}
	b := Compute(Input{Lines: []allocation.Line{adultLine(t, 3)}, Promo: code, CommissionPct: dec("10"), Guests: 3})
	require.True(t, b.PromoDiscount.Equal(dec("160.50")))
	require.True(t, b.TourFees.IsZero())
	require.True(t, b.TotalAmount.IsZero())
}

func TestComputeWithAddOns(t *testing.T) {
	lunch := addon.Checkbox{Common: addon.Common{ID: "lunch", Price: addon.PriceInfo{Enabled: true, Amount: dec("12"), Unit: addon.UnitPerPax}}}
	seat := addon.Radio{Common: addon.Common{ID: "seat", Price: addon.PriceInfo{Enabled: true, Amount: dec("5"), Unit: addon.UnitSetPrice}}}
	notes := addon.Text{Common: addon.Common{ID: "notes"}}

	b := Compute(Input{
		Lines:         []allocation.Line{adultLine(t, 3)},
		CommissionPct: dec("10"),
		Guests:        3,
		AddOns: []AddOn{
			{Field: lunch, Value: true},
			{Field: seat, Value: "0"},
			{Field: notes, Value: "vegan"},
		},
	})
	require.True(t, b.AddOnSubtotal.Equal(dec("36")))
	require.True(t, b.AddOnFees.Equal(dec("3.6")))
	require.True(t, b.TotalSubtotal.Equal(dec("196.50")))
	require.True(t, b.TotalFees.Equal(dec("19.65")))
	require.True(t, b.TotalAmount.Equal(dec("216.15")))
}

func TestComputeIgnoresZeroQuantityLines(t *testing.T) {
	b := Compute(Input{Lines: []allocation.Line{adultLine(t, 0), adultLine(t, 1)}, CommissionPct: dec("10"), Guests: 1})
	require.True(t, b.TourSubtotal.Equal(dec("53.50")))
	require.True(t, b.TourFees.Equal(dec("5.35")))
}

func TestComputeIsIdempotent(t *testing.T) {
	code := &tour.PromoCode{ID: 3, DiscountValue: money.FlexFromString("12.5"), DiscountValueType: "Percent"}
	in := Input{Lines: []allocation.Line{adultLine(t, 2), adultLine(t, 1)}, Promo: code, CommissionPct: dec("7.25"), Guests: 3}
	first, err := json.Marshal(Compute(in))
	require.NoError(t, err)
	second, err := json.Marshal(Compute(in))
	require.NoError(t, err)
	require.Equal(t, string(first), string(second))
}

func TestBuildQuoteRegular(t *testing.T) {
	seats := 4
	req := QuoteRequest{
		CommissionPct: money.FlexFromString("10"),
		RateGroups: []tour.RateGroup{
			{ID: 1, RateFor: "Adult", Rate: money.FlexFromString("50.00"), PermitFee: money.FlexFromString("2.50"), PartnerFeeAmount: money.FlexFromString("1.00")},
			{ID: 2, RateFor: "Child", Rate: money.FlexFromString("20")},
		},
		Quantities:     map[int]int{1: 3},
		AvailableSeats: &seats,
	}
	q, err := BuildQuote(req)
	require.NoError(t, err)
	require.Equal(t, 3, q.Guests)
	require.Len(t, q.Lines, 1)
	require.True(t, q.Breakdown.TotalAmount.Equal(dec("176.55")))

	req.Quantities = map[int]int{1: 3, 2: 2}
	_, err = BuildQuote(req)
	require.ErrorIs(t, err, ErrOverCapacity)

	req.Quantities = map[int]int{9: 1}
	_, err = BuildQuote(req)
	require.ErrorIs(t, err, ErrUnknownRateGroup)

	req.Quantities = map[int]int{1: -1}
	_, err = BuildQuote(req)
	require.ErrorIs(t, err, ErrNegativeQuantity)
}

func TestBuildQuoteGroupRate(t *testing.T) {
	four := 4
	req := QuoteRequest{
		GroupRate:     true,
		CommissionPct: money.FlexFromString("10"),
		RateGroups: []tour.RateGroup{
			{ID: 10, RateFor: "Party of 4", Rate: money.FlexFromString("180"), Tax: money.FlexFromString("9"), Size: &four},
		},
		GroupSize: 4,
	}
	q, err := BuildQuote(req)
	require.NoError(t, err)
	require.Equal(t, 4, q.Guests)
	require.True(t, q.Breakdown.TourSubtotal.Equal(dec("189")))
	require.True(t, q.Breakdown.TourFees.Equal(dec("18.9")))

	req.GroupSize = -2
	_, err = BuildQuote(req)
	require.ErrorIs(t, err, ErrNegativeQuantity)
}

const quoteFieldsJSON = `[
 {"id":"kayak","name":"Kayak","type":"number","visibility":"frontend","order":"1","attrs":{"min":"0","max":"3"},"priceInfo":{"enabled":"true","price":"10","unit":"setprice"}},
 {"id":"lunch","name":"Lunch","type":"radio","visibility":"both","order":"2","attrs":{"options":[{"id":"o1","name":"A","value":"a"}]},"priceInfo":{"enabled":"true","price":"20","unit":"setprice"}},
 {"id":"map","name":"Map","type":"location","visibility":"frontend","order":"3","priceInfo":{"enabled":"false","price":"0","unit":"n"}}
]`

func TestBuildQuoteValidatesAddOns(t *testing.T) {
	var defs []addon.Definition
	require.NoError(t, json.Unmarshal([]byte(quoteFieldsJSON), &defs))
	seats := 2
	quote := func(values map[string]any) (Quote, error) {
		return BuildQuote(QuoteRequest{
			CommissionPct:  money.FlexFromString("10"),
			RateGroups:     []tour.RateGroup{{ID: 1, RateFor: "Adult", Rate: money.FlexFromString("50")}},
			Quantities:     map[int]int{1: 2},
			AvailableSeats: &seats,
			Fields:         defs,
			AddOns:         values,
		})
	}

	q, err := quote(map[string]any{"kayak": float64(3), "lunch": "a"})
	require.NoError(t, err)
	require.True(t, q.Breakdown.AddOnSubtotal.IsPositive())

	_, err = quote(map[string]any{"lunch": "0"})
	require.NoError(t, err)

	_, err = quote(map[string]any{"kayak": float64(5000)})
	require.ErrorIs(t, err, addon.ErrOutOfRange)
	_, err = quote(map[string]any{"kayak": 1.5})
	require.ErrorIs(t, err, addon.ErrInvalidValue)
	_, err = quote(map[string]any{"lunch": "not-an-option"})
	require.ErrorIs(t, err, addon.ErrInvalidValue)
	_, err = quote(map[string]any{"ghost": true})
	require.ErrorIs(t, err, addon.ErrUnknownField)
	_, err = quote(map[string]any{"map": "here"})
	require.ErrorIs(t, err, addon.ErrUnknownField)
}
