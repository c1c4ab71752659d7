package addon

import "github.com/shopspring/decimal"

// Detail describes a chosen add-on on a cart line.
type Detail struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Type    string  `json:"type"`
	Value   any     `json:"value"`
	Pricing Pricing `json:"pricing"`
}

// Details lists the selected add-ons with their pricing, in field order.
func Details(fields []Field, values map[string]any, guests int, pct decimal.Decimal) []Detail {
	out := make([]Detail, 0, len(fields))
	for _, f := range fields {
		base := f.Base()
		v, ok := values[base.ID]
		if !ok || !IsSelected(f, v) {
			continue
		}
		out = append(out, Detail{
			ID:      base.ID,
			Name:    base.Name,
			Type:    f.Kind(),
			Value:   v,
			Pricing: Price(f, v, guests, pct),
		})
	}
	return out
}
