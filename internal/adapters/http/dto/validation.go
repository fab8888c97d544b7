package dto

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/domain"
)

// ErrBinding reports a body or query string that could not be decoded.
var ErrBinding = errors.New("request could not be decoded")

var (
	requestValidator     *validator.Validate
	requestValidatorOnce sync.Once
)

// requests returns the validator for request DTOs. Fields are reported by
// their JSON name so error details match what the client sent.
func requests() *validator.Validate {
	requestValidatorOnce.Do(func() {
		requestValidator = validator.New(validator.WithRequiredStructEnabled())

		requestValidator.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "" {
				name, _, _ = strings.Cut(fld.Tag.Get("form"), ",")
			}

			if name == "-" {
				return ""
			}

			return name
		})

		_ = requestValidator.RegisterValidation("notempty", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
	})

	return requestValidator
}

// BindAndValidate decodes the JSON body into v and checks its validate tags.
// A tag failure matches domain.ErrValidation.
func BindAndValidate(c *gin.Context, v any) error {
	return bind(c.ShouldBindJSON, v)
}

// BindQueryAndValidate is BindAndValidate for the query string.
func BindQueryAndValidate(c *gin.Context, v any) error {
	return bind(c.ShouldBindQuery, v)
}

func bind(decode func(any) error, v any) error {
	if err := decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBinding, err)
	}

	if err := requests().Struct(v); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	return nil
}

// FieldErrors returns one message per failing field, keyed by its path
// below the request, e.g. "users[1].email". It is empty for anything that
// is not a tag failure.
func FieldErrors(err error) map[string]string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return nil
	}

	out := make(map[string]string, len(errs))

	for _, fe := range errs {
		out[fieldPath(fe.Namespace())] = fieldMessage(fe)
	}

	return out
}

// fieldPath drops the root type and untagged embedded structs, which keep
// their capitalised Go name, from a validator namespace.
func fieldPath(ns string) string {
	parts := strings.Split(ns, ".")[1:]
	kept := parts[:0]

	for _, p := range parts {
		if p != "" && unicode.IsUpper(rune(p[0])) {
			continue
		}

		kept = append(kept, p)
	}

	return strings.Join(kept, ".")
}

func fieldMessage(fe validator.FieldError) string {
	unit := ""
	if fe.Kind() == reflect.String {
		unit = " characters"
	}

	switch fe.Tag() {
	case "required":
		return "is required"
	case "notempty":
		return "must not be blank"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param() + unit
	case "max":
		return "must be at most " + fe.Param() + unit
	case "gte":
		return "must be " + fe.Param() + " or more"
	case "lte":
		return "must be " + fe.Param() + " or less"
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "fails the " + fe.Tag() + " rule"
	}
}
