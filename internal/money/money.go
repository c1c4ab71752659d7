package money

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Places is the precision used for every customer-facing amount.
const Places int32 = 2

// RoundUp rounds d away from zero at the given number of decimal places.
// Negative places are treated as zero.
func RoundUp(d decimal.Decimal, places int32) decimal.Decimal {
	if places < 0 {
		places = 0
	}
	return d.RoundUp(places)
}

// Round2 rounds d away from zero to cents.
func Round2(d decimal.Decimal) decimal.Decimal {
	return RoundUp(d, Places)
}

// Percent returns base * pct / 100 without rounding.
func Percent(base, pct decimal.Decimal) decimal.Decimal {
	return base.Mul(pct).Shift(-2)
}

// Parse converts a numeric string into a decimal. Empty or malformed input
// yields zero.
func Parse(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Format renders d as a dollar amount with two decimals.
func Format(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-$" + d.Neg().StringFixed(Places)
	}
	return "$" + d.StringFixed(Places)
}

// Flex is a decimal that decodes leniently from JSON strings, numbers or null.
// Anything unparseable decodes as zero.
type Flex struct {
	decimal.Decimal
}

// NewFlex wraps d.
func NewFlex(d decimal.Decimal) Flex {
	return Flex{Decimal: d}
}

// FlexFromString parses s with Parse semantics.
func FlexFromString(s string) Flex {
	return Flex{Decimal: Parse(s)}
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flex) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		f.Decimal = decimal.Zero
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			f.Decimal = decimal.Zero
			return nil
		}
		f.Decimal = Parse(s)
		return nil
	}
	f.Decimal = Parse(string(raw))
	return nil
}

// MarshalJSON implements json.Marshaler. Values are emitted as strings so the
// wire keeps exact precision.
func (f Flex) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Decimal.String())
}
