package addon

import (
	"github.com/shopspring/decimal"

	"github.com/tournetwork/storefront/internal/money"
)

// Pricing is the cost of one add-on selection.
type Pricing struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	Commission decimal.Decimal `json:"commission"`
	Total      decimal.Decimal `json:"total"`
}

// Price resolves what value costs for field given the party size and the
// service commission percentage. It never mutates its inputs.
func Price(f Field, value any, guests int, pct decimal.Decimal) Pricing {
	if f == nil {
		return Pricing{}
	}
	info := f.Base().Price
	if !info.Active() {
		return Pricing{}
	}

	var subtotal decimal.Decimal
	switch f.(type) {
	case Checkbox:
		if asBool(value) {
			subtotal = scaled(info, guests)
		}
	case Radio:
		if radioChosen(asString(value)) {
			subtotal = scaled(info, guests)
		}
	case Number:
		if n, ok := asInt(value); ok && n > 0 && knownUnit(info.Unit) {
			subtotal = info.Amount.Mul(decimal.NewFromInt(int64(n)))
		}
	case Select, Text, TextArea:
		// never priced
	}

	commission := money.Round2(money.Percent(subtotal, pct))
	return Pricing{
		Subtotal:   subtotal,
		Commission: commission,
		Total:      subtotal.Add(commission),
	}
}

func scaled(info PriceInfo, guests int) decimal.Decimal {
	switch info.Unit {
	case UnitSetPrice:
		return info.Amount
	case UnitPerPax:
		return info.Amount.Mul(decimal.NewFromInt(int64(guests)))
	default:
		return decimal.Zero
	}
}

func knownUnit(u Unit) bool {
	return u == UnitSetPrice || u == UnitPerPax
}

func radioChosen(v string) bool {
	return v != "" && v != "0"
}

// PricingLabel renders the surcharge shown next to a field, e.g.
// "+$12.00 per person". Unpriced fields yield "".
func PricingLabel(f Field) string {
	if f == nil {
		return ""
	}
	info := f.Base().Price
	if !info.Active() {
		return ""
	}
	switch info.Unit {
	case UnitSetPrice:
		return "+" + money.Format(info.Amount)
	case UnitPerPax:
		return "+" + money.Format(info.Amount) + " per person"
	default:
		return ""
	}
}

// ShowsQuantity reports whether the field takes a priced count.
func ShowsQuantity(f Field) bool {
	_, ok := f.(Number)
	return ok && f.Base().Price.Active()
}
