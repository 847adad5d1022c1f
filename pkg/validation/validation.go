// Package validation wraps go-playground/validator with the rules used by
// pending-registration requests and turns failures into domain errors.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	dErrors "enrollgate/pkg/domain-errors"
)

var defaultValidator = newValidator()

// nationalIDPattern accepts national identifiers after punctuation has been stripped:
// 6 to 12 alphanumerics.
var nationalIDPattern = regexp.MustCompile(`^[0-9A-Za-z]{6,12}$`)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("nationalid", func(fl validator.FieldLevel) bool {
		return IsNationalID(fl.Field().String())
	})
	return v
}

// NationalIDMessage is the failure text of the nationalid rule.
const NationalIDMessage = "national_id must be 6 to 12 letters or digits"

// IsNationalID applies the nationalid rule to an already normalized identifier.
func IsNationalID(s string) bool {
	return nationalIDPattern.MatchString(s)
}

// jsonName reports fields by their wire name so messages match the request body.
func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

// Validate validates a struct using the default validator and returns a domain error
func Validate(req any) error {
	if err := defaultValidator.Struct(req); err != nil {
		return dErrors.New(dErrors.CodeValidation, ErrorMessage(err))
	}
	return nil
}

// ErrorMessage describes the first failed rule. Fields inside slices keep
// their path, e.g. "records[3].national_id is required".
func ErrorMessage(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return "invalid request body"
	}

	fe := validationErrs[0]
	field := fieldPath(fe)

	switch fe.ActualTag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email", field)
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must hold at least %s entries", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must hold at most %s entries", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "notblank":
		return fmt.Sprintf("%s must not be blank", field)
	case "nationalid":
		if field == "national_id" {
			return NationalIDMessage
		}
		return fmt.Sprintf("%s must be 6 to 12 letters or digits", field)
	default:
		if field == "" {
			return "invalid request body"
		}
		return fmt.Sprintf("%s is invalid", field)
	}
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}
