package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// mapstructureTagParts is the number of parts when splitting a mapstructure tag by comma.
const mapstructureTagParts = 2

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Rule is implemented by value objects with invariants that struct tags cannot express.
type Rule interface {
	CheckInvariants() error
}

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// Report fields by their map key so errors line up with FromMap input and records.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", mapstructureTagParts)[0]
			if name == "-" {
				return ""
			}

			if name == "" {
				return strings.ToLower(fld.Name)
			}

			return name
		})
	})

	return validate
}

// Validate checks a value object against its struct tags and, when it implements
// Rule, its own invariants. Every failure is a ValidationError; several failures
// are joined.
func Validate(v any) error {
	err := structValidator().Struct(v)
	if err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return NewValidationError("", err.Error())
		}

		errs := make([]error, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			errs = append(errs, &ValidationError{
				Field:   fe.Field(),
				Message: describeFieldError(fe),
				Value:   fe.Value(),
			})
		}

		return errors.Join(errs...)
	}

	if r, ok := v.(Rule); ok {
		return r.CheckInvariants()
	}

	return nil
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "email":
		return "must be a valid email address"
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}
