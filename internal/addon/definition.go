package addon

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tournetwork/storefront/internal/money"
)

var (
	// ErrUnknownType is returned when a definition names an unsupported field type.
	ErrUnknownType = errors.New("addon: unknown field type")
	// ErrUnknownField is returned when a value targets a field that is not offered.
	ErrUnknownField = errors.New("addon: unknown field")
	// ErrInvalidValue is returned when a value cannot be coerced to the field's kind.
	ErrInvalidValue = errors.New("addon: invalid value")
	// ErrOutOfRange is returned when a number value is outside the field bounds.
	ErrOutOfRange = errors.New("addon: value out of range")
)

// Visibility values controlling where a field is shown.
const (
	VisibilityFrontend = "frontend"
	VisibilityBackend  = "backend"
	VisibilityBoth     = "both"
)

// CustomForm is the operator-defined form attached to a package.
type CustomForm struct {
	ID         int          `json:"id"`
	FormFields []Definition `json:"form_fields"`
}

// Definition is a form field as delivered by the booking API.
type Definition struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Required    Loose     `json:"required"`
	Visibility  string    `json:"visibility"`
	Order       Loose     `json:"order"`
	Default     Loose     `json:"default,omitempty"`
	Description string    `json:"description,omitempty"`
	Attrs       *Attrs    `json:"attrs,omitempty"`
	PriceInfo   PriceWire `json:"priceInfo"`
}

// Attrs carries type specific settings.
type Attrs struct {
	Options []Option `json:"options,omitempty"`
	Min     Loose    `json:"min,omitempty"`
	Max     Loose    `json:"max,omitempty"`
}

// Option is one choice of a radio or select field.
type Option struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Value Loose  `json:"value"`
}

// PriceWire is the raw pricing block of a definition.
type PriceWire struct {
	Enabled Loose      `json:"enabled"`
	Price   money.Flex `json:"price"`
	Unit    string     `json:"unit"`
}

// Loose is a string that also decodes from JSON numbers and booleans.
type Loose string

// UnmarshalJSON implements json.Unmarshaler.
func (l *Loose) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		*l = ""
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		*l = Loose(s)
		return nil
	}
	*l = Loose(raw)
	return nil
}

func (l Loose) String() string { return string(l) }

func (l Loose) truthy() bool {
	return strings.EqualFold(strings.TrimSpace(string(l)), "true")
}

// intOr parses the leading integer like a lenient form parser would.
func (l Loose) intOr(def int) int {
	s := strings.TrimSpace(string(l))
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return def
}

// Decode converts a wire definition into its typed field.
func Decode(def Definition) (Field, error) {
	common := Common{
		ID:          def.ID,
		Name:        def.Name,
		Required:    def.Required.truthy(),
		Visibility:  def.Visibility,
		Order:       def.Order.intOr(0),
		Default:     def.Default.String(),
		Description: def.Description,
		Price: PriceInfo{
			Enabled: def.PriceInfo.Enabled.truthy(),
			Amount:  def.PriceInfo.Price.Decimal,
			Unit:    Unit(strings.ToLower(strings.TrimSpace(def.PriceInfo.Unit))),
		},
	}
	var options []Option
	if def.Attrs != nil {
		options = def.Attrs.Options
	}
	switch strings.ToLower(strings.TrimSpace(def.Type)) {
	case "checkbox":
		return Checkbox{Common: common}, nil
	case "radio":
		return Radio{Common: common, Options: options}, nil
	case "select":
		return Select{Common: common, Options: options}, nil
	case "number":
		n := Number{Common: common, Min: DefaultMin, Max: DefaultMax}
		if def.Attrs != nil {
			n.Min = def.Attrs.Min.intOr(DefaultMin)
			n.Max = def.Attrs.Max.intOr(DefaultMax)
		}
		return n, nil
	case "text":
		return Text{Common: common}, nil
	case "textarea":
		return TextArea{Common: common}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, def.Type)
	}
}

// Visible keeps the definitions shown to customers, ordered by their order
// attribute.
func Visible(defs []Definition) []Definition {
	out := make([]Definition, 0, len(defs))
	for _, def := range defs {
		switch def.Visibility {
		case VisibilityFrontend, VisibilityBoth:
			out = append(out, def)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Order.intOr(0) < out[j].Order.intOr(0)
	})
	return out
}

// Fields decodes the visible definitions. Definitions of unknown type are
// skipped and reported.
func Fields(defs []Definition) ([]Field, []error) {
	visible := Visible(defs)
	fields := make([]Field, 0, len(visible))
	var errs []error
	for _, def := range visible {
		f, err := Decode(def)
		if err != nil {
			errs = append(errs, fmt.Errorf("field %s: %w", def.ID, err))
			continue
		}
		fields = append(fields, f)
	}
	return fields, errs
}

// Find returns the field with the given id.
func Find(fields []Field, id string) (Field, bool) {
	for _, f := range fields {
		if f.Base().ID == id {
			return f, true
		}
	}
	return nil, false
}
