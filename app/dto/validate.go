package dto

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks the payload's validate tags and returns one entry per
// failing field, or nil when the payload is valid.
func Validate(payload any) []FieldError {
	err := validate.Struct(payload)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return []FieldError{{Field: "body", Message: err.Error()}}
	}

	fields := make([]FieldError, 0, len(validationErrors))
	for _, fieldError := range validationErrors {
		fields = append(fields, FieldError{
			Field:   fieldError.Field(),
			Message: fieldMessage(fieldError),
		})
	}
	return fields
}

func fieldMessage(fieldError validator.FieldError) string {
	switch fieldError.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fieldError.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fieldError.Param())
	case "gte":
		return fmt.Sprintf("must be %s or greater", fieldError.Param())
	case "uuid4":
		return "must be a valid uuid"
	default:
		return fmt.Sprintf("failed on the %q rule", fieldError.Tag())
	}
}
