package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/awaistahir/loadplan/internal/engine"
	"github.com/awaistahir/loadplan/internal/metrics"
	"github.com/awaistahir/loadplan/internal/store"
	"github.com/awaistahir/loadplan/internal/tariff"
)

var (
	// ErrNoAppliances reports a plan request with nothing enabled to schedule.
	ErrNoAppliances = errors.New("no enabled appliances")
	// ErrNoPlans reports a publish request before any plan has been built.
	ErrNoPlans = errors.New("no stored plans")
)

// HourAssignment is one hour of a plan in presentation-ready form.
type HourAssignment struct {
	Hour       int      `json:"hour"`
	Label      string   `json:"label"`
	Appliances []string `json:"appliances"`
	LoadKW     float64  `json:"load_kw"`
	Price      float64  `json:"price"`
	Cost       float64  `json:"cost"`
}

// Plan is a solved schedule enriched with everything a caller needs to
// display or publish it.
type Plan struct {
	ID         string           `json:"id"`
	CreatedAt  time.Time        `json:"created_at"`
	TariffName string           `json:"tariff_name"`
	Unit       string           `json:"unit"`
	MaxLoadKW  float64          `json:"max_load_kw"`
	TotalCost  float64          `json:"total_cost"`
	States     int              `json:"states"`
	Hours      []HourAssignment `json:"hours"`
}

// Publisher pushes a finished plan to an external system.
type Publisher interface {
	PublishPlan(ctx context.Context, p Plan) error
}

// Options configures a Planner beyond its storage.
type Options struct {
	Horizon   int
	MaxLoadKW float64
	Recorder  *metrics.Recorder
	Publisher Publisher
	Logger    *zerolog.Logger
}

// Planner builds plans from the stored appliances and the active tariff.
type Planner struct {
	store     *store.Store
	recorder  *metrics.Recorder
	publisher Publisher
	log       zerolog.Logger
	horizon   int
	maxLoadKW float64
}

// New wires a Planner. Zero options fall back to the 24-hour horizon and
// the 5 kW ceiling.
func New(st *store.Store, opts Options) *Planner {
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	horizon := opts.Horizon
	if horizon <= 0 {
		horizon = tariff.DefaultHorizon
	}
	maxLoadKW := opts.MaxLoadKW
	if maxLoadKW <= 0 {
		maxLoadKW = 5.0
	}
	return &Planner{
		store:     st,
		recorder:  opts.Recorder,
		publisher: opts.Publisher,
		log:       log,
		horizon:   horizon,
		maxLoadKW: maxLoadKW,
	}
}

// BuildPlan loads the enabled appliances and the active tariff, solves for
// the cheapest schedule, persists it to the history and hands it to the
// publisher when one is wired. The solver outcome is always recorded, the
// failed ones included.
func (p *Planner) BuildPlan(ctx context.Context) (Plan, error) {
	records, err := p.store.Appliances(true)
	if err != nil {
		return Plan{}, fmt.Errorf("loading appliances: %w", err)
	}
	if len(records) == 0 {
		return Plan{}, ErrNoAppliances
	}

	tar, err := p.store.ActiveTariff()
	if errors.Is(err, store.ErrNotFound) {
		tar = tariff.Default()
		p.log.Warn().Msg("no active tariff, using the built-in default curve")
	} else if err != nil {
		return Plan{}, fmt.Errorf("loading tariff: %w", err)
	}
	if err := tar.Validate(p.horizon); err != nil {
		return Plan{}, err
	}

	appliances := make([]engine.Appliance, len(records))
	for i, rec := range records {
		appliances[i] = rec.Appliance
	}

	start := time.Now()
	sched, err := engine.Solve(ctx, appliances, tar.Hourly, p.maxLoadKW)
	elapsed := time.Since(start)
	p.recorder.RecordSolve(outcomeFor(err), elapsed, sched.States)
	if err != nil {
		p.log.Warn().Err(err).Dur("elapsed", elapsed).Msg("solve failed")
		return Plan{}, err
	}

	saved, err := p.store.SavePlan(store.PlanRecord{
		TariffName: tar.Name,
		Unit:       tar.Unit,
		MaxLoadKW:  p.maxLoadKW,
		TotalCost:  sched.TotalCost,
		States:     sched.States,
		Hours:      sched.Hours,
	})
	if err != nil {
		return Plan{}, fmt.Errorf("saving plan: %w", err)
	}
	p.recorder.RecordPlanCost(sched.TotalCost)

	plan := assemble(saved, tar, records, sched)
	p.log.Info().
		Str("plan_id", plan.ID).
		Float64("total_cost", plan.TotalCost).
		Int("states", plan.States).
		Dur("elapsed", elapsed).
		Msg("plan built")

	if p.publisher != nil {
		if err := p.publisher.PublishPlan(ctx, plan); err != nil {
			// The plan is already solved and persisted; a publish failure
			// must not throw it away.
			p.log.Warn().Err(err).Str("plan_id", plan.ID).Msg("publish failed")
		}
	}

	return plan, nil
}

// PublishLast re-sends the most recent stored plan to the publisher, for
// instance after a broker lost its retained topics. Per-hour prices and
// loads are re-derived from the stored tariff and the current appliance
// catalog; entries removed since the solve fall back to zero.
func (p *Planner) PublishLast(ctx context.Context) (Plan, error) {
	if p.publisher == nil {
		return Plan{}, errors.New("no publisher wired")
	}

	recent, err := p.store.RecentPlans(1)
	if err != nil {
		return Plan{}, fmt.Errorf("loading plans: %w", err)
	}
	if len(recent) == 0 {
		return Plan{}, ErrNoPlans
	}
	rec := recent[0]

	tar, err := p.store.GetTariff(rec.TariffName)
	if err != nil || len(tar.Hourly) != len(rec.Hours) {
		tar = tariff.Tariff{Name: rec.TariffName, Unit: rec.Unit, Hourly: make([]float64, len(rec.Hours))}
	}
	records, err := p.store.Appliances(false)
	if err != nil {
		return Plan{}, fmt.Errorf("loading appliances: %w", err)
	}

	plan := assemble(rec, tar, records, engine.Schedule{
		TotalCost: rec.TotalCost,
		Hours:     rec.Hours,
		States:    rec.States,
	})
	if err := p.publisher.PublishPlan(ctx, plan); err != nil {
		return Plan{}, fmt.Errorf("publishing plan %s: %w", rec.ID, err)
	}
	p.log.Info().Str("plan_id", rec.ID).Msg("plan re-published")
	return plan, nil
}

// assemble turns the raw hour/name assignment into display rows with the
// per-hour draw and cost filled in.
func assemble(rec store.PlanRecord, tar tariff.Tariff, records []store.ApplianceRecord, sched engine.Schedule) Plan {
	power := make(map[string]float64, len(records))
	for _, r := range records {
		power[r.Name] = r.PowerKW
	}

	hours := make([]HourAssignment, len(sched.Hours))
	for h, names := range sched.Hours {
		var load float64
		for _, name := range names {
			load += power[name]
		}
		hours[h] = HourAssignment{
			Hour:       h,
			Label:      ClockLabel(h),
			Appliances: names,
			LoadKW:     load,
			Price:      tar.Hourly[h],
			Cost:       load * tar.Hourly[h],
		}
	}

	return Plan{
		ID:         rec.ID,
		CreatedAt:  rec.CreatedAt,
		TariffName: tar.Name,
		Unit:       tar.Unit,
		MaxLoadKW:  rec.MaxLoadKW,
		TotalCost:  sched.TotalCost,
		States:     sched.States,
		Hours:      hours,
	}
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomePlanned
	case errors.Is(err, engine.ErrInfeasible):
		return metrics.OutcomeInfeasible
	case errors.Is(err, engine.ErrAborted):
		return metrics.OutcomeAborted
	case errors.Is(err, engine.ErrInvalidAppliance),
		errors.Is(err, engine.ErrInvalidPrices),
		errors.Is(err, engine.ErrInvalidMaxLoad),
		errors.Is(err, engine.ErrSearchSpaceTooLarge):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeError
	}
}

// ClockLabel renders an hour index on the 12-hour clock, the way the
// schedule is shown to people.
func ClockLabel(hour int) string {
	h := hour % 24
	switch {
	case h == 0:
		return "12 AM"
	case h < 12:
		return fmt.Sprintf("%d AM", h)
	case h == 12:
		return "12 PM"
	default:
		return fmt.Sprintf("%d PM", h-12)
	}
}
