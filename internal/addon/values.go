package addon

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Default is the initial value of a field before the customer touches it.
func Default(f Field) any {
	switch field := f.(type) {
	case Checkbox:
		return field.Default == "true"
	case Number:
		return Loose(field.Default).intOr(0)
	case Radio, Select, Text, TextArea:
		return f.Base().Default
	default:
		return ""
	}
}

// Defaults returns the initial value of every field keyed by id.
func Defaults(fields []Field) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f.Base().ID] = Default(f)
	}
	return out
}

// Validate reports whether value satisfies the field's required constraint.
func Validate(f Field, value any) bool {
	if f == nil || !f.Base().Required {
		return true
	}
	switch f.(type) {
	case Checkbox:
		return asBool(value)
	case Number:
		n, ok := asInt(value)
		return ok && n > 0
	default:
		return strings.TrimSpace(asString(value)) != ""
	}
}

// Missing lists the required fields whose value does not validate.
func Missing(fields []Field, values map[string]any) []string {
	var ids []string
	for _, f := range fields {
		if !Validate(f, values[f.Base().ID]) {
			ids = append(ids, f.Base().ID)
		}
	}
	return ids
}

// IsSelected reports whether value represents an actual customer choice worth
// carrying into the cart.
func IsSelected(f Field, value any) bool {
	switch f.(type) {
	case Checkbox:
		return asBool(value)
	case Radio:
		return radioChosen(asString(value))
	case Select:
		return asString(value) != ""
	case Number:
		n, ok := asInt(value)
		return ok && n > 0
	case Text, TextArea:
		return strings.TrimSpace(asString(value)) != ""
	default:
		return false
	}
}

// Normalize coerces a client supplied value to the field's canonical type:
// bool for checkboxes, int for numbers and string otherwise.
func Normalize(f Field, value any) (any, error) {
	switch field := f.(type) {
	case Checkbox:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				return b, nil
			}
		case nil:
			return false, nil
		}
		return nil, fmt.Errorf("%w: %s expects a boolean", ErrInvalidValue, field.ID)
	case Number:
		if value == nil {
			return 0, nil
		}
		n, ok := asInt(value)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects a whole number", ErrInvalidValue, field.ID)
		}
		if n < field.Min || n > field.Max {
			return nil, fmt.Errorf("%w: %s must be between %d and %d", ErrOutOfRange, field.ID, field.Min, field.Max)
		}
		return n, nil
	case Radio:
		return choice(field.ID, field.Options, value)
	case Select:
		return choice(field.ID, field.Options, value)
	case Text, TextArea:
		if value == nil {
			return "", nil
		}
		if s, ok := value.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("%w: %s expects text", ErrInvalidValue, f.Base().ID)
	default:
		return nil, ErrUnknownType
	}
}

func choice(id string, options []Option, value any) (any, error) {
	s := asString(value)
	if s == "" || s == "0" || len(options) == 0 {
		return s, nil
	}
	for _, opt := range options {
		if opt.Value.String() == s {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %q is not an option of %s", ErrInvalidValue, s, id)
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(strings.TrimSpace(t), "true")
	default:
		return false
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) || math.IsNaN(t) {
			return 0, false
		}
		return int(t), true
	case json.Number:
		n, err := strconv.Atoi(t.String())
		return n, err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	default:
		return 0, false
	}
}
