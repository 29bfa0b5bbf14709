// Package validation checks builder parameters before any network call.
// It wraps go-playground/validator with kintone specific rules and reports
// failures as middleware.ValidationError, named by wire parameter.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/gaborage/go-kintone/middleware"
)

var fieldCodePattern = regexp.MustCompile(`^[\p{L}\p{N}_\x{30FB}\x{FF65}$￥]+$`)

// Validator wraps go-playground/validator with custom validation logic.
type Validator struct {
	validate *validator.Validate
}

var (
	defaultOnce      sync.Once
	defaultValidator *Validator
)

// Default returns a shared validator. It is safe for concurrent use.
func Default() *Validator {
	defaultOnce.Do(func() {
		defaultValidator = New()
	})
	return defaultValidator
}

// New creates a Validator with the kintone rules registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		_, name := parseParameterInfo(field)
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails for empty tags or nil functions.
	_ = v.RegisterValidation("field_code", validateFieldCode)
	return &Validator{validate: v}
}

// GetValidator returns the underlying validator instance.
func (v *Validator) GetValidator() *validator.Validate {
	return v.validate
}

// Struct validates params for operation. Field failures are returned as a
// *middleware.ValidationError.
func (v *Validator) Struct(operation string, params any) error {
	err := v.validate.Struct(params)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make([]middleware.FieldError, 0, len(validationErrors))
		for _, fe := range validationErrors {
			fields = append(fields, middleware.FieldError{
				Field:   fe.Field(),
				Message: errorMessage(fe),
			})
		}
		return middleware.NewValidationError(operation, fields...)
	}
	return middleware.NewValidationError(operation, middleware.FieldError{Field: "params", Message: err.Error()})
}

// Validate validates params with the shared validator
func Validate(operation string, params any) error {
	return Default().Struct(operation, params)
}

func errorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_without":
		return fmt.Sprintf("is required when %s is not set", fe.Param())
	case "excluded_with":
		return fmt.Sprintf("cannot be combined with %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte", "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte", "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "field_code":
		return "must be a valid field code"
	case "dive":
		return "contains an invalid element"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// validateFieldCode checks kintone field codes: letters, digits, underscore,
// middle dots and currency signs.
func validateFieldCode(fl validator.FieldLevel) bool {
	return fieldCodePattern.MatchString(fl.Field().String())
}
