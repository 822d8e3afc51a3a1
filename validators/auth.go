package validators

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Krish-Depani/customer-auth-service/apperr"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = validate.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
		v := fl.Field().String()
		return IsNumericID(v) || IsEmail(v) || IsPhone(v)
	})
}

// Validate checks a request struct and returns one entry per failed field.
func Validate(data interface{}) []apperr.FieldError {
	var validationErrors []apperr.FieldError

	err := validate.Struct(data)
	if err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) {
			for _, e := range errs {
				validationErrors = append(validationErrors, apperr.FieldError{
					Field:   e.Field(),
					Tag:     e.Tag(),
					Message: message(e),
				})
			}
		}
	}

	return validationErrors
}

// Check validates data and folds the field errors into a single domain error.
func Check(data interface{}) error {
	if errs := Validate(data); len(errs) > 0 {
		return apperr.ValidationFields(errs)
	}
	return nil
}

func IsEmail(v string) bool {
	return v != "" && validate.Var(v, "email") == nil
}

// IsPhone accepts E.164 numbers such as +15551234567.
func IsPhone(v string) bool {
	return v != "" && validate.Var(v, "e164") == nil
}

func IsNumericID(v string) bool {
	return v != "" && validate.Var(v, "number") == nil && strings.TrimLeft(v, "0") != ""
}

func message(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "The email address is invalid."
	case "e164":
		return "The phone number is invalid."
	case "identifier":
		return "The identifier must be an email address, a phone number or a customer ID."
	case "oneof":
		return "Must be one of: " + e.Param() + "."
	case "min":
		return "Must be at least " + e.Param() + " characters long."
	case "max":
		return "Must be at most " + e.Param() + " characters long."
	default:
		return "The value is invalid."
	}
}
