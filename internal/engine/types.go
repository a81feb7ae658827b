package engine

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidAppliance = errors.New("invalid appliance")
	ErrInvalidPrices    = errors.New("invalid price vector")
	ErrInvalidMaxLoad   = errors.New("invalid max load")
)

// Appliance describes one schedulable household load. It must run for
// DurationHours whole hours, not necessarily consecutive, inside the
// inclusive hour window [WindowStart, WindowEnd].
type Appliance struct {
	Name          string  `json:"name"`
	PowerKW       float64 `json:"power_kw"`
	DurationHours int     `json:"duration_hours"`
	WindowStart   int     `json:"window_start"`
	WindowEnd     int     `json:"window_end"`
}

// NewAppliance builds a validated appliance.
func NewAppliance(name string, powerKW float64, durationHours, windowStart, windowEnd int) (Appliance, error) {
	a := Appliance{
		Name:          name,
		PowerKW:       powerKW,
		DurationHours: durationHours,
		WindowStart:   windowStart,
		WindowEnd:     windowEnd,
	}
	if err := a.Validate(); err != nil {
		return Appliance{}, err
	}
	return a, nil
}

// Validate checks the construction invariants. Window bounds are not
// checked against any horizon here; an appliance whose window misses the
// planning horizon simply yields an infeasible schedule.
func (a Appliance) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidAppliance)
	}
	if math.IsNaN(a.PowerKW) || a.PowerKW <= 0 {
		return fmt.Errorf("%w: %s: power must be positive", ErrInvalidAppliance, a.Name)
	}
	if a.DurationHours <= 0 {
		return fmt.Errorf("%w: %s: duration must be positive", ErrInvalidAppliance, a.Name)
	}
	if a.WindowStart > a.WindowEnd {
		return fmt.Errorf("%w: %s: window start %d after end %d", ErrInvalidAppliance, a.Name, a.WindowStart, a.WindowEnd)
	}
	if width := a.WindowEnd - a.WindowStart + 1; a.DurationHours > width {
		return fmt.Errorf("%w: %s: duration %dh exceeds %dh window", ErrInvalidAppliance, a.Name, a.DurationHours, width)
	}
	return nil
}

// Schedule is the cheapest assignment found for one planning horizon.
type Schedule struct {
	// TotalCost is the summed cost of every scheduled hour, in the price
	// vector's unit times kWh.
	TotalCost float64 `json:"total_cost"`
	// Hours lists, per hour slot, the names of the appliances running in
	// that hour, ordered as in the solve's appliance list. Empty slices
	// mark idle hours.
	Hours [][]string `json:"hours"`
	// States counts the scheduling states the solver memoized.
	States int `json:"states"`
}
