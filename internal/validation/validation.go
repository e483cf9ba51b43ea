// Package validation builds the go-playground validator shared by the HTTP
// handlers and the reconciler. decimal.Decimal fields are checked on their
// exact value; they are never converted to float64.
package validation

import (
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// TagNonNegative rejects a decimal below zero, however small.
const TagNonNegative = "decimal_gte0"

// New returns a validator that understands decimal.Decimal. Decimals are
// exposed to tags as their exact string form, so numeric tags such as min
// must not be used on them; use TagNonNegative instead.
func New() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})
	if err := v.RegisterValidation(TagNonNegative, nonNegative); err != nil {
		panic(err)
	}
	return v
}

func nonNegative(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	return err == nil && !d.IsNegative()
}
