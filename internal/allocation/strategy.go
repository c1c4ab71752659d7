package allocation

import (
	"github.com/shopspring/decimal"

	"github.com/tournetwork/storefront/internal/money"
	"github.com/tournetwork/storefront/internal/tour"
)

// Mode identifies how a package is priced.
type Mode string

const (
	// ModeRegular prices each guest against a rate group.
	ModeRegular Mode = "regular"
	// ModeGroupRate prices a whole party at a tier matching its size.
	ModeGroupRate Mode = "group_rate"
)

// ModeFor selects the allocation mode of a package.
func ModeFor(p tour.Package) Mode {
	if p.GroupRate() {
		return ModeGroupRate
	}
	return ModeRegular
}

// Line is a rate group with the quantity chosen and its computed price.
type Line struct {
	RateGroup  tour.RateGroup  `json:"rateGroup"`
	Quantity   int             `json:"quantity"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Commission decimal.Decimal `json:"commission"`
	Total      decimal.Decimal `json:"total"`
}

// Strategy prices a single rate group selection.
type Strategy interface {
	Mode() Mode
	Price(group tour.RateGroup, quantity int, pct decimal.Decimal) Line
}

// StrategyFor returns the pricing strategy of mode.
func StrategyFor(mode Mode) Strategy {
	if mode == ModeGroupRate {
		return GroupRate{}
	}
	return Regular{}
}

// Regular charges rate plus fees per guest. The commission is rounded per
// guest before multiplying by the quantity.
type Regular struct{}

func (Regular) Mode() Mode { return ModeRegular }

func (Regular) Price(group tour.RateGroup, quantity int, pct decimal.Decimal) Line {
	line := Line{RateGroup: group, Quantity: quantity}
	if quantity <= 0 {
		line.Quantity = 0
		return line
	}
	perPerson := group.Rate.Add(group.PermitFee.Decimal).
		Add(group.AdditionalCharge.Decimal).
		Add(group.PartnerFeeAmount.Decimal)
	commissionPerPerson := money.Round2(money.Percent(perPerson, pct))
	qty := decimal.NewFromInt(int64(quantity))
	line.Subtotal = perPerson.Mul(qty)
	line.Commission = commissionPerPerson.Mul(qty)
	line.Total = line.Subtotal.Add(line.Commission)
	return line
}

// GroupRate charges one price for the whole party including tax.
type GroupRate struct{}

func (GroupRate) Mode() Mode { return ModeGroupRate }

func (GroupRate) Price(group tour.RateGroup, quantity int, pct decimal.Decimal) Line {
	line := Line{RateGroup: group, Quantity: quantity}
	if quantity <= 0 {
		line.Quantity = 0
		return line
	}
	line.Subtotal = group.Rate.Add(group.Tax.Decimal).
		Add(group.PermitFee.Decimal).
		Add(group.AdditionalCharge.Decimal).
		Add(group.PartnerFeeAmount.Decimal)
	line.Commission = money.Round2(money.Percent(line.Subtotal, pct))
	line.Total = line.Subtotal.Add(line.Commission)
	return line
}
