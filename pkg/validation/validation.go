package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/courier-dispatch/pkg/errors"
)

var (
	once     sync.Once
	instance *validator.Validate
)

// Validator returns the process-wide validator. Field names are reported by
// their json tag and decimal.Decimal fields compare as numbers, so tags like
// gte=0 and lte=100 work on money fields.
func Validator() *validator.Validate {
	once.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if tag == "" || tag == "-" {
				return f.Name
			}
			return tag
		})
		v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
			if d, ok := field.Interface().(decimal.Decimal); ok {
				f, _ := d.Float64()
				return f
			}
			return nil
		}, decimal.Decimal{})
		instance = v
	})
	return instance
}

// Struct validates s and converts failures into a VALIDATION_ERROR.
func Struct(s any) error {
	if err := Validator().Struct(s); err != nil {
		return FormatErrors(err)
	}
	return nil
}

// FormatErrors maps validator output to field -> message details.
func FormatErrors(err error) *pkgerrors.Error {
	var errs validator.ValidationErrors
	if errors.As(err, &errs) {
		details := map[string]string{}
		for _, fieldErr := range errs {
			details[fieldPath(fieldErr)] = message(fieldErr)
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "lt":
		return fmt.Sprintf("must be less than %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "gtefield":
		return fmt.Sprintf("must be at least %s", fe.Param())
	}
	return "is invalid"
}
