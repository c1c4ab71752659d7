package cart

import (
	"errors"
	"reflect"
	"regexp"
	"sort"
	"strings"

	validator "github.com/go-playground/validator/v10"
)

var looseEmail = regexp.MustCompile(`\S+@\S+\.\S+`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("required_trimmed", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("loose_email", func(fl validator.FieldLevel) bool {
		return looseEmail.MatchString(fl.Field().String())
	})
	return v
}

var fieldMessages = map[string]string{
	"firstName":    "First name is required",
	"lastName":     "Last name is required",
	"email":        "Email is required",
	"phone":        "Phone number is required",
	"agreeToTerms": "You must agree to the terms and conditions",
}

// ValidationError lists the invalid customer fields with their messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return "cart: invalid customer info: " + strings.Join(names, ", ")
}

// Validate checks the purchaser fields required to book.
func (c CustomerInfo) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		msg := fieldMessages[fe.Field()]
		if fe.Tag() == "loose_email" {
			msg = "Please enter a valid email address"
		}
		out.Fields[fe.Field()] = msg
	}
	return out
}
