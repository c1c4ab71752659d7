package addon

import (
	"github.com/shopspring/decimal"
)

// Bounds applied to number fields that do not declare their own.
const (
	DefaultMin = 0
	DefaultMax = 999
)

// Unit selects how a priced field scales.
type Unit string

const (
	// UnitSetPrice charges once per booking.
	UnitSetPrice Unit = "setprice"
	// UnitPerPax charges once per guest.
	UnitPerPax Unit = "priceperpax"
	// UnitNone never charges.
	UnitNone Unit = "n"
)

// PriceInfo is the decoded pricing block of a field.
type PriceInfo struct {
	Enabled bool
	Amount  decimal.Decimal
	Unit    Unit
}

// Active reports whether the field carries a positive, enabled price.
func (p PriceInfo) Active() bool {
	return p.Enabled && p.Amount.IsPositive()
}

// Common holds attributes shared by every field kind.
type Common struct {
	ID          string
	Name        string
	Required    bool
	Visibility  string
	Order       int
	Default     string
	Description string
	Price       PriceInfo
}

// Base returns the shared attributes.
func (c Common) Base() Common { return c }

// Label is the field name with a required marker.
func (c Common) Label() string {
	if c.Required {
		return c.Name + " *"
	}
	return c.Name
}

// Field is one of Checkbox, Radio, Select, Number, Text or TextArea.
type Field interface {
	Base() Common
	Kind() string
	field()
}

type Checkbox struct{ Common }

type Radio struct {
	Common
	Options []Option
}

type Select struct {
	Common
	Options []Option
}

type Number struct {
	Common
	Min int
	Max int
}

type Text struct{ Common }

type TextArea struct{ Common }

func (Checkbox) Kind() string { return "checkbox" }
func (Radio) Kind() string    { return "radio" }
func (Select) Kind() string   { return "select" }
func (Number) Kind() string   { return "number" }
func (Text) Kind() string     { return "text" }
func (TextArea) Kind() string { return "textarea" }

func (Checkbox) field() {}
func (Radio) field()    {}
func (Select) field()   {}
func (Number) field()   {}
func (Text) field()     {}
func (TextArea) field() {}
