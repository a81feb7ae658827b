package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Sentinel results of Solve, tested with errors.Is.
var (
	// ErrInfeasible reports that no hour assignment satisfies every window
	// and the capacity limit. It is an answer, not a defect.
	ErrInfeasible = errors.New("no feasible schedule")

	// ErrAborted reports that the context was cancelled before the search
	// finished.
	ErrAborted = errors.New("solve aborted")

	// ErrSearchSpaceTooLarge reports inputs whose exhaustive search cannot
	// finish in reasonable time or memory.
	ErrSearchSpaceTooLarge = errors.New("search space too large")
)

// maxAppliances caps the subset fan-out at 2^16 combinations per hour. The
// search is exponential in appliance count, so instances past this limit
// are not answerable by exhaustive optimization anyway.
const maxAppliances = 16

// pollInterval is the number of state visits between context checks.
const pollInterval = 1024

// Solve computes the cheapest way to run every appliance for its full
// duration inside its window, with the combined draw of any single hour
// capped at maxLoadKW. prices carries one tariff value per hour and fixes
// the horizon length.
//
// The search is a depth-first walk over (hour, remaining-durations) states
// memoized per state. Ties between equally cheap schedules are broken by
// the fixed order of enumerateSubsets, so identical inputs yield the
// identical schedule, not merely an equal cost.
func Solve(ctx context.Context, appliances []Appliance, prices []float64, maxLoadKW float64) (Schedule, error) {
	if err := validate(appliances, prices, maxLoadKW); err != nil {
		return Schedule{}, err
	}
	if err := ctx.Err(); err != nil {
		return Schedule{}, fmt.Errorf("%w: %v", ErrAborted, err)
	}
	s, err := newSolver(ctx, appliances, prices, maxLoadKW)
	if err != nil {
		return Schedule{}, err
	}
	optimum := s.minCost(0, s.rootKey)
	if s.aborted {
		return Schedule{}, fmt.Errorf("%w: %v", ErrAborted, ctx.Err())
	}
	if math.IsInf(optimum, 1) {
		return Schedule{}, fmt.Errorf("%w: demand does not fit under %g kW within the given windows", ErrInfeasible, maxLoadKW)
	}
	return Schedule{
		TotalCost: optimum,
		Hours:     s.reconstruct(optimum),
		States:    s.states,
	}, nil
}

func validate(appliances []Appliance, prices []float64, maxLoadKW float64) error {
	if len(prices) == 0 {
		return fmt.Errorf("%w: horizon has no hours", ErrInvalidPrices)
	}
	for h, p := range prices {
		if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
			return fmt.Errorf("%w: hour %d priced %v", ErrInvalidPrices, h, p)
		}
	}
	if math.IsNaN(maxLoadKW) || math.IsInf(maxLoadKW, 0) || maxLoadKW <= 0 {
		return fmt.Errorf("%w: %v kW", ErrInvalidMaxLoad, maxLoadKW)
	}
	seen := make(map[string]struct{}, len(appliances))
	for _, a := range appliances {
		if err := a.Validate(); err != nil {
			return err
		}
		if _, dup := seen[a.Name]; dup {
			return fmt.Errorf("%w: duplicate name %q", ErrInvalidAppliance, a.Name)
		}
		seen[a.Name] = struct{}{}
	}
	return nil
}

// solver holds the search state for a single Solve call. It is built fresh
// every time and never shared between goroutines.
type solver struct {
	ctx        context.Context
	appliances []Appliance
	prices     []float64
	subsets    []subset
	rootKey    uint64 // packed key of the full remaining-duration vector
	remaining  []int
	memo       []map[uint64]float64 // per hour: packed remaining -> cost
	states     int
	polls      int
	aborted    bool
}

func newSolver(ctx context.Context, appliances []Appliance, prices []float64, maxLoadKW float64) (*solver, error) {
	if len(appliances) > maxAppliances {
		return nil, fmt.Errorf("%w: %d appliances, limit is %d", ErrSearchSpaceTooLarge, len(appliances), maxAppliances)
	}

	// Remaining-duration vectors pack into one uint64: appliance i holds a
	// digit of radix DurationHours+1 at place value strides[i].
	strides := make([]uint64, len(appliances))
	remaining := make([]int, len(appliances))
	place := uint64(1)
	rootKey := uint64(0)
	for i, a := range appliances {
		strides[i] = place
		remaining[i] = a.DurationHours
		rootKey += place * uint64(a.DurationHours)
		radix := uint64(a.DurationHours) + 1
		if place > math.MaxUint64/radix {
			return nil, fmt.Errorf("%w: remaining-duration keys overflow uint64", ErrSearchSpaceTooLarge)
		}
		place *= radix
	}

	// Subsets drawing more than the capacity can never run together, so
	// they are dropped here once. Removal keeps the relative order of the
	// survivors, which is what the tie-break depends on.
	subsets := make([]subset, 0, 1<<uint(len(appliances)))
	for _, members := range enumerateSubsets(len(appliances)) {
		var load float64
		var delta uint64
		for _, m := range members {
			load += appliances[m].PowerKW
			delta += strides[m]
		}
		if load > maxLoadKW {
			continue
		}
		subsets = append(subsets, subset{members: members, loadKW: load, remDelta: delta})
	}

	memo := make([]map[uint64]float64, len(prices))
	for i := range memo {
		memo[i] = make(map[uint64]float64)
	}
	return &solver{
		ctx:        ctx,
		appliances: appliances,
		prices:     prices,
		subsets:    subsets,
		rootKey:    rootKey,
		remaining:  remaining,
		memo:       memo,
	}, nil
}

// feasible reports whether every member still has hours left and can still
// finish inside its window when one of them is spent now. The capacity test
// is absent because over-capacity subsets were dropped in newSolver.
func (s *solver) feasible(sub *subset, hour int) bool {
	for _, m := range sub.members {
		rem := s.remaining[m]
		if rem == 0 {
			return false
		}
		a := &s.appliances[m]
		if hour < a.WindowStart || hour > a.WindowEnd-rem {
			return false
		}
	}
	return true
}

// minCost returns the cheapest completion cost from the given state, or
// +Inf when no assignment finishes every appliance in time. key is the
// packed form of s.remaining.
func (s *solver) minCost(hour int, key uint64) float64 {
	if key == 0 {
		return 0
	}
	if hour == len(s.prices) {
		return math.Inf(1)
	}
	if s.poll() {
		return math.Inf(1)
	}
	if v, ok := s.memo[hour][key]; ok {
		return v
	}
	best := math.Inf(1)
	for i := range s.subsets {
		sub := &s.subsets[i]
		if !s.feasible(sub, hour) {
			continue
		}
		for _, m := range sub.members {
			s.remaining[m]--
		}
		succ := s.minCost(hour+1, key-sub.remDelta)
		for _, m := range sub.members {
			s.remaining[m]++
		}
		// Kept as two statements: reconstruct repeats these operations
		// verbatim and relies on bit-equal results.
		hourCost := sub.loadKW * s.prices[hour]
		total := hourCost + succ
		if total < best {
			best = total
		}
	}
	if s.aborted {
		return math.Inf(1)
	}
	s.memo[hour][key] = best
	s.states++
	return best
}

// poll checks the context once every pollInterval state visits. After the
// first trip the search unwinds with +Inf and stops writing to the memo.
func (s *solver) poll() bool {
	if s.aborted {
		return true
	}
	s.polls++
	if s.polls%pollInterval != 0 {
		return false
	}
	select {
	case <-s.ctx.Done():
		s.aborted = true
	default:
	}
	return s.aborted
}

// lookup returns a successor state's cost without re-solving it. The
// forward pass has filled every successor of a state on an optimal path.
func (s *solver) lookup(hour int, key uint64) float64 {
	if key == 0 {
		return 0
	}
	if hour == len(s.prices) {
		return math.Inf(1)
	}
	return s.memo[hour][key]
}

// reconstruct replays the horizon, committing at every hour the first
// enumerated subset whose candidate cost equals the memoized optimum.
func (s *solver) reconstruct(optimum float64) [][]string {
	hours := make([][]string, len(s.prices))
	key := s.rootKey
	target := optimum
	for hour := range s.prices {
		hours[hour] = []string{}
		if key == 0 {
			continue
		}
		for i := range s.subsets {
			sub := &s.subsets[i]
			if !s.feasible(sub, hour) {
				continue
			}
			succ := s.lookup(hour+1, key-sub.remDelta)
			hourCost := sub.loadKW * s.prices[hour]
			total := hourCost + succ
			if total != target {
				continue
			}
			names := make([]string, 0, len(sub.members))
			for _, m := range sub.members {
				names = append(names, s.appliances[m].Name)
				s.remaining[m]--
			}
			hours[hour] = names
			key -= sub.remDelta
			target = succ
			break
		}
	}
	return hours
}
