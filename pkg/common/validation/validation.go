package validation

import (
	"time"

	awerrors "github.com/apiwarden/apiwarden/pkg/common/errors"
)

// ValidatePositive validates that an integer value is positive (> 0).
// Returns a ValidationError if the value is not positive.
func ValidatePositive(module, field string, value int) error {
	if value <= 0 {
		return awerrors.NewValidationError(module, field, value, "must be positive").
			WithHint("value must be greater than 0")
	}
	return nil
}

// ValidateNonNegative validates that an integer value is non-negative (>= 0).
// Returns a ValidationError if the value is negative.
func ValidateNonNegative(module, field string, value int) error {
	if value < 0 {
		return awerrors.NewValidationError(module, field, value, "cannot be negative").
			WithHint("use 0 or a positive value")
	}
	return nil
}

// ValidatePositiveDuration validates that a duration is positive.
// Returns a ValidationError if the duration is zero or negative.
func ValidatePositiveDuration(module, field string, value time.Duration) error {
	if value <= 0 {
		return awerrors.NewValidationError(module, field, value, "must be positive").
			WithHint("provide a duration greater than 0")
	}
	return nil
}

// ValidateOpenUnitInterval validates that a float lies strictly between 0 and 1.
// Returns a ValidationError otherwise.
func ValidateOpenUnitInterval(module, field string, value float64) error {
	if value <= 0 || value >= 1 {
		return awerrors.NewValidationError(module, field, value, "must be between 0 and 1 exclusive").
			WithHint("multiplicative backoff needs 0 < factor < 1")
	}
	return nil
}

// ValidateGreaterThan validates that a float value exceeds min.
// Returns a ValidationError if value <= min.
func ValidateGreaterThan(module, field string, value, min float64) error {
	if value <= min {
		return awerrors.NewValidationError(module, field, value, "too small").
			WithHint("value must be greater than the configured minimum")
	}
	return nil
}

// ValidateAtLeast validates that an integer value is at least min.
// Returns a ValidationError if value < min.
func ValidateAtLeast(module, field string, value, min int) error {
	if value < min {
		return awerrors.NewValidationError(module, field, value, "too small").
			WithHint("value must not be below the configured minimum")
	}
	return nil
}

// ValidateNotEmpty validates that a string value is not empty.
// Returns a ValidationError if the string is empty.
func ValidateNotEmpty(module, field string, value string) error {
	if value == "" {
		return awerrors.NewValidationError(module, field, value, "cannot be empty").
			WithHint("provide a non-empty " + field)
	}
	return nil
}
