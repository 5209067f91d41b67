package validator

import (
	"reflect"
	"sync"

	ierr "github.com/flexprice/couponengine/internal/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	validate *validator.Validate
	once     sync.Once
)

// NewValidator builds the shared validator. Decimal fields are validated as float64
// so the numeric tags (gte, lte, gt) apply to them.
func NewValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
		validate.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{}, decimal.NullDecimal{})
	})
	return validate
}

func GetValidator() *validator.Validate {
	return NewValidator()
}

func decimalValue(field reflect.Value) interface{} {
	switch v := field.Interface().(type) {
	case decimal.Decimal:
		f, _ := v.Float64()
		return f
	case decimal.NullDecimal:
		if !v.Valid {
			return nil
		}
		f, _ := v.Decimal.Float64()
		return f
	}
	return nil
}

func ValidateRequest(req interface{}) error {
	if err := GetValidator().Struct(req); err != nil {
		details := make(map[string]any)
		var validateErrs validator.ValidationErrors
		if ierr.As(err, &validateErrs) {
			for _, err := range validateErrs {
				details[err.Field()] = err.Error()
			}
		}
		return ierr.WithError(err).
			WithHint("Request validation failed").
			WithReportableDetails(details).
			Mark(ierr.ErrValidation)
	}
	return nil
}
