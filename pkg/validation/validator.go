package validation

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	// Custom validator instance
	validate = validator.New()

	// Regex patterns for validation
	addressPattern = regexp.MustCompile(`^wallet_[0-9]{3,}$`)
	txIDPattern    = regexp.MustCompile(`^[0-9a-f]{16}$`)
)

// TimestampLayouts are the ISO-8601 forms accepted for a sample timestamp.
// The first entry is the layout the fetcher writes.
var TimestampLayouts = []string{
	"2006-01-02T15:04:05.000000Z07:00",
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// ValidationError represents a validation error with field and message
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return strings.Join(messages, "; ")
}

func init() {
	validate.RegisterValidation("isotime", validateISOTime)
	validate.RegisterValidation("address", validateAddress)
	validate.RegisterValidation("txid", validateTxID)
	validate.RegisterValidation("amount", validateAmount)
}

// validateISOTime checks the field parses with one of TimestampLayouts
func validateISOTime(fl validator.FieldLevel) bool {
	s, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	_, err := ParseTimestamp(s)
	return err == nil
}

// validateAddress validates a synthetic wallet address
func validateAddress(fl validator.FieldLevel) bool {
	addr, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return addressPattern.MatchString(addr)
}

// validateTxID validates a 16 character lowercase hex digest
func validateTxID(fl validator.FieldLevel) bool {
	id, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return txIDPattern.MatchString(id)
}

// validateAmount rejects negative, NaN and infinite market figures
func validateAmount(fl validator.FieldLevel) bool {
	v, ok := fl.Field().Interface().(float64)
	if !ok {
		return false
	}
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ParseTimestamp parses an ISO-8601 sample timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range TimestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// ValidateStruct validates a struct using tags
func ValidateStruct(s interface{}) ValidationErrors {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return ValidationErrors{{Field: "struct", Message: err.Error()}}
	}

	var out ValidationErrors
	for _, fe := range verrs {
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Message: getErrorMessage(fe.Field(), fe.Tag(), fe.Param()),
			Value:   fe.Value(),
		})
	}
	return out
}

// getErrorMessage returns a user-friendly error message
func getErrorMessage(field, tag, param string) string {
	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "isotime":
		return fmt.Sprintf("%s must be an ISO-8601 timestamp", field)
	case "address":
		return fmt.Sprintf("%s must be a pool wallet address", field)
	case "txid":
		return fmt.Sprintf("%s must be a 16 character hex digest", field)
	case "amount":
		return fmt.Sprintf("%s must be a finite non-negative number", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, param)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "excluded_with", "required_if":
		return fmt.Sprintf("%s is invalid for this configuration (%s)", field, param)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}

// SanitizeString removes control characters and trims whitespace
func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 { // Keep tab, newline, carriage return
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
