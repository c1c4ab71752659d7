package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/tournetwork/storefront/internal/addon"
	"github.com/tournetwork/storefront/internal/allocation"
	"github.com/tournetwork/storefront/internal/money"
	"github.com/tournetwork/storefront/internal/promo"
	"github.com/tournetwork/storefront/internal/tour"
)

// AddOn pairs a field with the customer's value for it.
type AddOn struct {
	Field addon.Field
	Value any
}

// Input is everything the order total depends on.
type Input struct {
	Lines         []allocation.Line
	Promo         *tour.PromoCode
	CommissionPct decimal.Decimal
	AddOns        []AddOn
	Guests        int
}

// Breakdown aggregates computed pricing components. It is attached to cart
// lines and sent to the booking API unchanged.
type Breakdown struct {
	TourSubtotal  decimal.Decimal `json:"tourSubtotal"`
	PromoDiscount decimal.Decimal `json:"promoDiscount"`
	AddOnSubtotal decimal.Decimal `json:"addOnSubtotal"`
	TotalSubtotal decimal.Decimal `json:"totalSubtotal"`
	TourFees      decimal.Decimal `json:"tourFees"`
	AddOnFees     decimal.Decimal `json:"addOnFees"`
	TotalFees     decimal.Decimal `json:"totalFees"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
}

// Compute calculates the order totals. Each term is rounded before it is
// combined. With a promo applied the tour fee is taken from the discounted
// subtotal instead of summing the per-line commissions.
func Compute(in Input) Breakdown {
	var lineSubtotal, lineCommission decimal.Decimal
	for _, l := range in.Lines {
		if l.Quantity <= 0 {
			continue
		}
		lineSubtotal = lineSubtotal.Add(l.Subtotal)
		lineCommission = lineCommission.Add(l.Commission)
	}
	tourSubtotal := money.Round2(lineSubtotal)
	discount := promo.Discount(in.Promo, tourSubtotal)

	var tourFees decimal.Decimal
	if in.Promo != nil {
		tourFees = money.Round2(money.Percent(tourSubtotal.Sub(discount), in.CommissionPct))
	} else {
		tourFees = money.Round2(lineCommission)
	}

	var addOnSubtotal, addOnFees decimal.Decimal
	for _, a := range in.AddOns {
		if a.Field == nil || a.Value == nil {
			continue
		}
		p := addon.Price(a.Field, a.Value, in.Guests, in.CommissionPct)
		addOnSubtotal = addOnSubtotal.Add(p.Subtotal)
		addOnFees = money.Round2(addOnFees.Add(p.Commission))
	}

	totalSubtotal := money.Round2(tourSubtotal.Sub(discount).Add(addOnSubtotal))
	totalFees := money.Round2(tourFees.Add(addOnFees))
	return Breakdown{
		TourSubtotal:  tourSubtotal,
		PromoDiscount: discount,
		AddOnSubtotal: addOnSubtotal,
		TotalSubtotal: totalSubtotal,
		TourFees:      tourFees,
		AddOnFees:     addOnFees,
		TotalFees:     totalFees,
		TotalAmount:   money.Round2(totalSubtotal.Add(totalFees)),
	}
}

// AddOnsFor pairs fields with their values from a value map, in field order.
func AddOnsFor(fields []addon.Field, values map[string]any) []AddOn {
	out := make([]AddOn, 0, len(fields))
	for _, f := range fields {
		v, ok := values[f.Base().ID]
		if !ok {
			continue
		}
		out = append(out, AddOn{Field: f, Value: v})
	}
	return out
}
