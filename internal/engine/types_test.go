package engine

import (
	"errors"
	"math"
	"testing"
)

func TestNewApplianceValidation(t *testing.T) {
	tests := []struct {
		name     string
		app      string
		power    float64
		duration int
		start    int
		end      int
		wantErr  bool
	}{
		{"valid", "Washer", 1.5, 2, 8, 20, false},
		{"duration fills window", "Washer", 1.5, 13, 8, 20, false},
		{"single hour window", "Kettle", 2.0, 1, 7, 7, false},
		{"empty name", "", 1.0, 1, 0, 0, true},
		{"zero power", "Washer", 0, 1, 0, 0, true},
		{"negative power", "Washer", -1.5, 1, 0, 0, true},
		{"NaN power", "Washer", math.NaN(), 1, 0, 0, true},
		{"zero duration", "Washer", 1.0, 0, 0, 0, true},
		{"negative duration", "Washer", 1.0, -2, 0, 5, true},
		{"window reversed", "Washer", 1.0, 1, 5, 4, true},
		{"duration exceeds window", "Washer", 1.0, 3, 0, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewAppliance(tt.app, tt.power, tt.duration, tt.start, tt.end)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAppliance) {
					t.Fatalf("NewAppliance() error = %v, want ErrInvalidAppliance", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewAppliance() unexpected error: %v", err)
			}
			if got.Name != tt.app {
				t.Errorf("Name = %q, want %q", got.Name, tt.app)
			}
		})
	}
}
