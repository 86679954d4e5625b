package validation

import (
	"testing"
	"time"

	awerrors "github.com/apiwarden/apiwarden/pkg/common/errors"
)

func TestValidatePositive(t *testing.T) {
	tests := []struct {
		name    string
		value   int
		wantErr bool
	}{
		{"positive", 10, false},
		{"one", 1, false},
		{"zero", 0, true},
		{"negative", -5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePositive("test", "field", tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePositive(%d) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			if err != nil && !awerrors.IsValidationError(err) {
				t.Error("expected a ValidationError")
			}
		})
	}
}

func TestValidateNonNegative(t *testing.T) {
	if err := ValidateNonNegative("test", "burst", 0); err != nil {
		t.Errorf("zero should be allowed, got %v", err)
	}
	if err := ValidateNonNegative("test", "burst", -1); err == nil {
		t.Error("negative should be rejected")
	}
}

func TestValidatePositiveDuration(t *testing.T) {
	if err := ValidatePositiveDuration("test", "window", time.Minute); err != nil {
		t.Errorf("positive duration should be allowed, got %v", err)
	}
	if err := ValidatePositiveDuration("test", "window", 0); err == nil {
		t.Error("zero duration should be rejected")
	}
	if err := ValidatePositiveDuration("test", "window", -time.Second); err == nil {
		t.Error("negative duration should be rejected")
	}
}

func TestValidateOpenUnitInterval(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		wantErr bool
	}{
		{"middle", 0.5, false},
		{"near zero", 0.01, false},
		{"near one", 0.99, false},
		{"zero", 0, true},
		{"one", 1, true},
		{"above one", 1.5, true},
		{"negative", -0.5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOpenUnitInterval("test", "factor", tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateOpenUnitInterval(%v) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
		})
	}
}

func TestValidateGreaterThan(t *testing.T) {
	if err := ValidateGreaterThan("test", "recovery", 1.05, 1); err != nil {
		t.Errorf("1.05 > 1 should pass, got %v", err)
	}
	if err := ValidateGreaterThan("test", "recovery", 1, 1); err == nil {
		t.Error("equal values should be rejected")
	}
}

func TestValidateAtLeast(t *testing.T) {
	if err := ValidateAtLeast("test", "maxRequestsCap", 50, 2); err != nil {
		t.Errorf("50 >= 2 should pass, got %v", err)
	}
	if err := ValidateAtLeast("test", "maxRequestsCap", 1, 2); err == nil {
		t.Error("1 < 2 should be rejected")
	}
}

func TestValidateNotEmpty(t *testing.T) {
	if err := ValidateNotEmpty("test", "name", "binance"); err != nil {
		t.Errorf("non-empty should pass, got %v", err)
	}
	if err := ValidateNotEmpty("test", "name", ""); err == nil {
		t.Error("empty string should be rejected")
	}
}
