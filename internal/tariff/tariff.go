package tariff

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/awaistahir/loadplan/internal/engine"
)

// DefaultHorizon is the planning horizon used everywhere a length is not
// configured explicitly: one value per hour of the day.
const DefaultHorizon = 24

// Tariff is a named price curve, one value per hour of the planning
// horizon.
type Tariff struct {
	Name   string    `json:"name"`
	Unit   string    `json:"unit"`
	Hourly []float64 `json:"hourly"`
}

// Default returns the built-in example curve: cheap nights, an evening
// peak, in PHP per kWh.
func Default() Tariff {
	return Tariff{
		Name: "default",
		Unit: "PHP/kWh",
		Hourly: []float64{
			5, 5, 6, 8, 10, 12, 15, 18, 20, 18, 15, 12,
			10, 9, 8, 7, 6, 6, 7, 9, 12, 15, 10, 6,
		},
	}
}

// Parse builds a tariff from a comma-separated list of hourly prices, the
// format accepted on the command line and in config files.
func Parse(name, unit, list string) (Tariff, error) {
	fields := strings.Split(list, ",")
	hourly := make([]float64, 0, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return Tariff{}, fmt.Errorf("%w: entry %d %q is not a number", engine.ErrInvalidPrices, i, strings.TrimSpace(f))
		}
		hourly = append(hourly, v)
	}
	return Tariff{Name: name, Unit: unit, Hourly: hourly}, nil
}

// Validate checks the curve against the configured horizon. The solver
// re-checks the entries itself; doing it here surfaces bad config before
// anything is scheduled.
func (t Tariff) Validate(horizon int) error {
	if len(t.Hourly) != horizon {
		return fmt.Errorf("%w: %q has %d hours, horizon needs %d", engine.ErrInvalidPrices, t.Name, len(t.Hourly), horizon)
	}
	for h, p := range t.Hourly {
		if p <= 0 {
			return fmt.Errorf("%w: %q hour %d priced %v", engine.ErrInvalidPrices, t.Name, h, p)
		}
	}
	return nil
}

// Summary describes a curve's spread, for display next to a plan.
type Summary struct {
	Mean         float64 `json:"mean"`
	Median       float64 `json:"median"`
	StdDev       float64 `json:"std_dev"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	CheapestHour int     `json:"cheapest_hour"`
	PriciestHour int     `json:"priciest_hour"`
}

// Summarize computes spread statistics over the hourly prices. It assumes
// a non-empty curve.
func (t Tariff) Summarize() Summary {
	sorted := append([]float64(nil), t.Hourly...)
	sort.Float64s(sorted)
	return Summary{
		Mean:         stat.Mean(t.Hourly, nil),
		Median:       stat.Quantile(0.5, stat.Empirical, sorted, nil),
		StdDev:       stat.StdDev(t.Hourly, nil),
		Min:          floats.Min(t.Hourly),
		Max:          floats.Max(t.Hourly),
		CheapestHour: floats.MinIdx(t.Hourly),
		PriciestHour: floats.MaxIdx(t.Hourly),
	}
}
