package solver

import (
	"log"
	"math"
	"sort"
	"strings"

	"github.com/rawblock/allocation-engine/pkg/models"
)

// exactTol is the absolute tolerance for the exact-match phase.
const exactTol = 0.001

// ProgressFunc receives advisory phase/percent events while a solve runs.
// It has no behavioral effect on the result.
type ProgressFunc func(phase string, percent int)

// Solver assigns a pool of costs to named targets through a fixed pipeline of
// heuristic phases: extreme-target greedy accumulation, small-target grouping,
// exact subset matching, categorized adaptive/aggressive search, and a final
// forced redistribution of leftovers. Combinatorial phases are hard-capped
// (candidate lists at 20, subset sizes at 5-7) to keep the NP-hard search
// bounded on large inputs.
type Solver struct {
	costs    []float64
	targets  []models.Target
	progress ProgressFunc
}

// New returns an empty solver. Call Load before Solve.
func New() *Solver {
	return &Solver{}
}

// OnProgress installs the progress sink. Passing nil disables reporting.
func (s *Solver) OnProgress(fn ProgressFunc) {
	s.progress = fn
}

// Load stores copies of the inputs and returns the pure load summary. It
// never mutates solver results.
func (s *Solver) Load(costs []float64, targets []models.Target) models.LoadInfo {
	s.costs = make([]float64, len(costs))
	copy(s.costs, costs)
	s.targets = make([]models.Target, len(targets))
	copy(s.targets, targets)

	var sumCosts, sumTargets float64
	for _, c := range costs {
		sumCosts += c
	}
	for _, t := range targets {
		sumTargets += t.Value
	}
	return models.LoadInfo{
		SumCosts:   sumCosts,
		SumTargets: sumTargets,
		Difference: sumCosts - sumTargets,
	}
}

func (s *Solver) report(phase string, percent int) {
	if s.progress != nil {
		s.progress(phase, percent)
	}
}

// Solve runs the full phase pipeline and returns one Assignment per target
// (or per merged group of targets). It is total over all non-negative numeric
// inputs: degenerate inputs yield zero-cost assignments, never an error.
func (s *Solver) Solve() []models.Assignment {
	pool := NewPool(s.costs)
	assignments := make([]*models.Assignment, 0, len(s.targets))

	minCost := pool.Min()
	maxCost := pool.Max()

	s.report("analyzing input", 0)

	// Phase 0: targets an order of magnitude beyond the largest cost get a
	// greedy accumulation plus a single-swap refinement.
	pending := make([]models.Target, 0, len(s.targets))
	for _, t := range s.targets {
		if t.Value > maxCost*10 {
			assignments = append(assignments, assignExtreme(pool, t))
		} else {
			pending = append(pending, t)
		}
	}
	s.report("extreme targets", 10)

	// Phase 1: targets well below the smallest cost cannot be matched alone;
	// merge them into groups that one or two costs can cover.
	var verySmall, normal []models.Target
	for _, t := range pending {
		if t.Value < minCost*0.7 {
			verySmall = append(verySmall, t)
		} else {
			normal = append(normal, t)
		}
	}
	sort.SliceStable(verySmall, func(i, j int) bool {
		return verySmall[i].Value < verySmall[j].Value
	})

	for len(verySmall) > 0 && pool.Len() > 0 {
		g := findBestGroup(verySmall, pool.Values())
		if g == nil {
			// No viable grouping left; the remainder competes as normal targets.
			normal = append(normal, verySmall...)
			verySmall = nil
			break
		}
		assignments = append(assignments, newGroupAssignment(g))
		pool.RemoveAll(g.costs)
		verySmall = removeTargets(verySmall, g.targets)
	}
	s.report("grouping small targets", 20)

	// Phase 2: exact subset matches, smallest subsets first across all
	// targets so a size-1 match is never beaten by a size-3 one elsewhere.
	for _, maxElems := range []int{1, 2, 3} {
		i := 0
		for i < len(normal) {
			t := normal[i]
			m := findExactMatch(pool.Values(), t.Value, maxElems, exactTol)
			if m == nil {
				i++
				continue
			}
			assignments = append(assignments, newAssignment(t, m.costs, m.sum))
			pool.RemoveAll(m.costs)
			normal = append(normal[:i], normal[i+1:]...)
		}
	}
	s.report("exact matches", 40)

	// Phase 3: classify what is left against the current pool and attack each
	// class with the search shaped for it.
	meanCurrent := pool.Mean()
	var large, medium, small []models.Target
	for _, t := range normal {
		switch {
		case t.Value > meanCurrent*2:
			large = append(large, t)
		case t.Value < minCost:
			small = append(small, t)
		default:
			medium = append(medium, t)
		}
	}

	sort.SliceStable(large, func(i, j int) bool {
		return large[i].Value > large[j].Value
	})
	for _, t := range large {
		if pool.Len() == 0 {
			continue
		}
		maxElems := 7
		if meanCurrent > 0 {
			if n := int(math.Round(t.Value / meanCurrent * 1.5)); n > maxElems {
				maxElems = n
			}
		}
		if maxElems > pool.Len() {
			maxElems = pool.Len()
		}
		if m := findAdaptiveMatch(pool.Values(), t.Value, maxElems); m != nil {
			assignments = append(assignments, newAssignment(t, m.costs, m.sum))
			pool.RemoveAll(m.costs)
		}
	}
	s.report("large targets", 60)

	for _, t := range medium {
		if pool.Len() == 0 {
			continue
		}
		if m := findAggressiveMatch(pool.Values(), t.Value); m != nil {
			assignments = append(assignments, newAssignment(t, m.costs, m.sum))
			pool.RemoveAll(m.costs)
		}
	}

	for _, t := range small {
		if pool.Len() == 0 {
			continue
		}
		c := nearestCost(pool.Values(), t.Value)
		assignments = append(assignments, newAssignment(t, []float64{c}, c))
		pool.Remove(c)
	}
	s.report("remaining targets", 80)

	// Phase 4: every cost must land somewhere. Push each leftover into the
	// assignment it hurts least, with a bonus nudging costs toward already
	// poor fits.
	if pool.Len() > 0 && len(assignments) > 0 {
		log.Printf("[Solver] %d costs unassigned after search phases, forcing redistribution", pool.Len())
		redistribute(pool, assignments)
	}
	s.report("redistributing leftovers", 90)

	// Finalization: any target no phase could serve still gets a terminal
	// zero-cost assignment so nothing is silently dropped.
	covered := make(map[string]bool)
	for _, a := range assignments {
		if a.IsGroup {
			for _, m := range a.GroupedTargets {
				covered[m.Name] = true
			}
		} else {
			covered[a.Target] = true
		}
	}
	for _, t := range s.targets {
		if covered[t.Name] {
			continue
		}
		assignments = append(assignments, &models.Assignment{
			Target:      t.Name,
			TargetValue: t.Value,
			Costs:       []float64{},
			Sum:         0,
			Difference:  t.Value,
			Precision:   0,
		})
	}
	s.report("complete", 100)

	out := make([]models.Assignment, len(assignments))
	for i, a := range assignments {
		out[i] = *a
	}
	return out
}

// newAssignment builds a direct (non-group) assignment record.
func newAssignment(t models.Target, costs []float64, sum float64) *models.Assignment {
	if costs == nil {
		costs = []float64{}
	}
	diff := abs(sum - t.Value)
	return &models.Assignment{
		Target:      t.Name,
		TargetValue: t.Value,
		Costs:       costs,
		Sum:         sum,
		Difference:  diff,
		Precision:   models.PrecisionPercent(t.Value, diff),
	}
}

// newGroupAssignment merges the matched small targets under one label.
func newGroupAssignment(g *groupMatch) *models.Assignment {
	names := make([]string, len(g.targets))
	var total float64
	for i, t := range g.targets {
		names[i] = t.Name
		total += t.Value
	}
	diff := abs(g.sum - total)
	return &models.Assignment{
		Target:         strings.Join(names, " + "),
		TargetValue:    total,
		Costs:          g.costs,
		Sum:            g.sum,
		Difference:     diff,
		Precision:      models.PrecisionPercent(total, diff),
		IsGroup:        true,
		GroupedTargets: g.targets,
	}
}

// assignExtreme serves one extreme target: greedy descending accumulation
// capped at 110% of the target, then a bounded single-swap refinement over
// the first 10 chosen and first 20 remaining costs, keeping the best swap
// found. The assignment is committed even when nothing fits.
func assignExtreme(pool *Pool, t models.Target) *models.Assignment {
	chosen, remaining := greedyDescending(pool.Values(), t.Value, 1.1, 0.1)

	var sum float64
	for _, c := range chosen {
		sum += c
	}

	// When every cost sits below a tenth of the target the greedy sum never
	// overshoots and remaining holds only values no larger than the smallest
	// chosen one, so no swap can strictly reduce the difference. The scan
	// only bites if the accumulation window is ever loosened.
	bestDiff := abs(sum - t.Value)
	bestI, bestJ := -1, -1
	for i := 0; i < len(chosen) && i < 10; i++ {
		for j := 0; j < len(remaining) && j < 20; j++ {
			if d := abs(sum - chosen[i] + remaining[j] - t.Value); d < bestDiff {
				bestDiff = d
				bestI, bestJ = i, j
			}
		}
	}
	if bestI >= 0 {
		sum += remaining[bestJ] - chosen[bestI]
		chosen[bestI], remaining[bestJ] = remaining[bestJ], chosen[bestI]
	}

	pool.RemoveAll(chosen)
	return newAssignment(t, chosen, sum)
}

// redistribute hands every leftover cost to the existing assignment that
// benefits most: improvement in absolute difference plus a bonus of
// (100-precision)/100 favoring already-poor fits. Ties go to the first
// assignment in precision-ascending order. Assignments mutate in place.
func redistribute(pool *Pool, assignments []*models.Assignment) {
	ordered := make([]*models.Assignment, len(assignments))
	copy(ordered, assignments)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Precision < ordered[j].Precision
	})

	for _, cost := range pool.Values() {
		var best *models.Assignment
		bestScore := math.Inf(-1)
		for _, a := range ordered {
			newDiff := abs(a.Sum + cost - a.TargetValue)
			improvement := a.Difference - newDiff
			bonus := (100 - a.Precision) * 0.01
			if score := improvement + bonus; score > bestScore {
				bestScore = score
				best = a
			}
		}
		best.Costs = append(best.Costs, cost)
		best.Recalculate()
		pool.Remove(cost)
	}
}

// removeTargets drops the named members from the small-target worklist.
func removeTargets(list []models.Target, drop []models.Target) []models.Target {
	names := make(map[string]bool, len(drop))
	for _, t := range drop {
		names[t.Name] = true
	}
	out := list[:0]
	for _, t := range list {
		if !names[t.Name] {
			out = append(out, t)
		}
	}
	return out
}
