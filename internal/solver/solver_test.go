package solver

import (
	"math"
	"strings"
	"testing"

	"github.com/rawblock/allocation-engine/pkg/models"
)

func targetsOf(pairs ...any) []models.Target {
	out := make([]models.Target, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, models.Target{Name: pairs[i].(string), Value: pairs[i+1].(float64)})
	}
	return out
}

func solve(t *testing.T, costs []float64, targets []models.Target) []models.Assignment {
	t.Helper()
	s := New()
	s.Load(costs, targets)
	result := s.Solve()
	checkInvariants(t, costs, targets, result)
	return result
}

// checkInvariants verifies the three structural properties every solve must
// uphold: coverage (each target appears exactly once), conservation (no cost
// is assigned twice), and consistency (sums and precision are coherent).
func checkInvariants(t *testing.T, costs []float64, targets []models.Target, result []models.Assignment) {
	t.Helper()

	seen := make(map[string]int)
	for _, a := range result {
		if a.IsGroup {
			for _, m := range a.GroupedTargets {
				seen[m.Name]++
			}
		} else {
			seen[a.Target]++
		}
	}
	for _, tgt := range targets {
		if seen[tgt.Name] != 1 {
			t.Errorf("coverage: target %q appears %d times in output", tgt.Name, seen[tgt.Name])
		}
	}

	// Conservation: the assigned multiset must be a sub-multiset of the input.
	pool := NewPool(costs)
	for _, a := range result {
		for _, c := range a.Costs {
			if !pool.Remove(c) {
				t.Errorf("conservation: cost %v assigned to %q is not available in the input pool", c, a.Target)
			}
		}
	}

	for _, a := range result {
		var sum float64
		for _, c := range a.Costs {
			sum += c
		}
		if math.Abs(sum-a.Sum) > 1e-9 {
			t.Errorf("consistency: %q has Sum %v but costs total %v", a.Target, a.Sum, sum)
		}
		if math.Abs(a.Difference-math.Abs(a.Sum-a.TargetValue)) > 1e-9 {
			t.Errorf("consistency: %q has Difference %v, expected %v", a.Target, a.Difference, math.Abs(a.Sum-a.TargetValue))
		}
		if want := models.PrecisionPercent(a.TargetValue, a.Difference); math.Abs(a.Precision-want) > 1e-9 {
			t.Errorf("consistency: %q has Precision %v, expected %v", a.Target, a.Precision, want)
		}
	}
}

func findByTarget(result []models.Assignment, name string) *models.Assignment {
	for i := range result {
		if result[i].Target == name {
			return &result[i]
		}
	}
	return nil
}

func TestSolveExactMatches(t *testing.T) {
	// Scenario: every target has a perfect single-cost match.
	result := solve(t, []float64{10, 10, 5}, targetsOf("A", 10.0, "B", 10.0, "C", 5.0))

	if len(result) != 3 {
		t.Fatalf("expected 3 assignments, got %d", len(result))
	}
	for _, a := range result {
		if a.IsGroup {
			t.Errorf("%q: no groups expected", a.Target)
		}
		if a.Difference != 0 || a.Precision != 100 {
			t.Errorf("%q: expected perfect match, got difference %v precision %v",
				a.Target, a.Difference, a.Precision)
		}
	}
}

func TestSolveExactMatchTakesOneDuplicate(t *testing.T) {
	// Scenario: two equal costs and one target of that value. The size-1
	// exact match must consume exactly one instance; the twin stays in play
	// and is forced onto the assignment in redistribution.
	result := solve(t, []float64{25, 25}, targetsOf("A", 25.0))

	a := findByTarget(result, "A")
	if a == nil {
		t.Fatal("missing assignment for A")
	}
	// Exact match took one 25, redistribution appended the leftover twin.
	if len(a.Costs) != 2 || a.Sum != 50 {
		t.Errorf("expected both duplicates accounted for, got costs %v sum %v", a.Costs, a.Sum)
	}
}

func TestSolveEmptyPool(t *testing.T) {
	// Scenario: no costs at all. The target still gets a terminal zero-cost
	// assignment and nothing errors.
	result := solve(t, nil, targetsOf("A", 5.0))

	if len(result) != 1 {
		t.Fatalf("expected 1 assignment, got %d", len(result))
	}
	a := result[0]
	if len(a.Costs) != 0 || a.Sum != 0 || a.Precision != 0 || a.Difference != 5 {
		t.Errorf("expected zero-cost assignment, got %+v", a)
	}
}

func TestSolveNoTargets(t *testing.T) {
	// Degenerate input: costs but nothing to assign them to.
	result := solve(t, []float64{1, 2, 3}, nil)
	if len(result) != 0 {
		t.Errorf("expected no assignments, got %d", len(result))
	}
}

func TestSolveLargeTargetGreedy(t *testing.T) {
	// Scenario: 290 against three 100s is not extreme (threshold is
	// 100*10=1000) and lands in the large-target adaptive lane, which grabs
	// all three costs greedily.
	result := solve(t, []float64{100, 100, 100}, targetsOf("A", 290.0))

	a := findByTarget(result, "A")
	if a == nil {
		t.Fatal("missing assignment for A")
	}
	if len(a.Costs) != 3 || a.Sum != 300 {
		t.Errorf("expected all three costs (sum 300), got %v (sum %v)", a.Costs, a.Sum)
	}
	if a.Difference != 10 {
		t.Errorf("expected difference 10, got %v", a.Difference)
	}
}

func TestSolveGroupsSmallTargets(t *testing.T) {
	// Scenario: two targets far below the smallest cost merge into a group
	// covered by the exact 3.0 cost; the normal targets match directly.
	costs := []float64{50, 3, 40}
	targets := targetsOf("A", 1.2, "B", 1.8, "C", 50.0, "D", 40.0)
	result := solve(t, costs, targets)

	var group *models.Assignment
	for i := range result {
		if result[i].IsGroup {
			group = &result[i]
		}
	}
	if group == nil {
		t.Fatal("expected a group assignment")
	}
	if group.Target != "A + B" {
		t.Errorf("expected group label %q, got %q", "A + B", group.Target)
	}
	if group.TargetValue != 3.0 {
		t.Errorf("expected group target value 3.0, got %v", group.TargetValue)
	}
	if len(group.Costs) != 1 || group.Costs[0] != 3 {
		t.Errorf("expected the group to take the 3.0 cost, got %v", group.Costs)
	}
	if len(group.GroupedTargets) != 2 {
		t.Errorf("expected 2 grouped targets, got %v", group.GroupedTargets)
	}

	for _, name := range []string{"C", "D"} {
		a := findByTarget(result, name)
		if a == nil {
			t.Fatalf("missing assignment for %s", name)
		}
		if a.Precision != 100 {
			t.Errorf("%s: expected perfect match, got precision %v", name, a.Precision)
		}
	}
}

func TestSolveUngroupableSmallTargetsFallThrough(t *testing.T) {
	// Scenario: tiny targets against a pool of 1s. No grouping lands within
	// the 15% tolerance, so the targets fall through to the nearest-cost
	// path and the leftover 1s are forced onto the worst assignment.
	result := solve(t, []float64{1, 1, 1, 1, 1}, targetsOf("A", 0.3, "B", 0.2))

	if len(result) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(result))
	}
	for _, a := range result {
		if a.IsGroup {
			t.Errorf("%q: grouping should not beat the tolerance here", a.Target)
		}
	}
	// All five costs must be accounted for between the two assignments.
	total := len(result[0].Costs) + len(result[1].Costs)
	if total != 5 {
		t.Errorf("expected all 5 costs assigned after redistribution, got %d", total)
	}
}

func TestSolveExtremeTarget(t *testing.T) {
	// Scenario: the target dwarfs every cost by more than 10x, so phase 0
	// greedily piles up the whole pool even though the fit stays poor.
	result := solve(t, []float64{5, 5, 5}, targetsOf("A", 100.0))

	a := findByTarget(result, "A")
	if a == nil {
		t.Fatal("missing assignment for A")
	}
	if len(a.Costs) != 3 || a.Sum != 15 {
		t.Errorf("expected all costs accumulated (sum 15), got %v (sum %v)", a.Costs, a.Sum)
	}
	if a.Precision != 15 {
		t.Errorf("expected precision 15, got %v", a.Precision)
	}
}

func TestSolveRedistributionPicksLeastDamage(t *testing.T) {
	// Scenario: A and B match perfectly, leaving a 7 with nowhere good to
	// go. It must still be assigned, to the first assignment in the
	// precision-ascending order since all improvements tie.
	result := solve(t, []float64{10, 10, 7}, targetsOf("A", 10.0, "B", 10.0))

	var used int
	for _, a := range result {
		used += len(a.Costs)
	}
	if used != 3 {
		t.Errorf("expected every cost assigned, got %d of 3", used)
	}

	a := findByTarget(result, "A")
	if a == nil || len(a.Costs) != 2 {
		t.Errorf("expected the leftover 7 forced onto A, got %+v", a)
	}
}

func TestSolveProgressEvents(t *testing.T) {
	s := New()
	s.Load([]float64{10, 5}, targetsOf("A", 10.0, "B", 5.0))

	var percents []int
	var phases []string
	s.OnProgress(func(phase string, percent int) {
		phases = append(phases, phase)
		percents = append(percents, percent)
	})
	s.Solve()

	if len(percents) == 0 {
		t.Fatal("expected progress events")
	}
	for i := 1; i < len(percents); i++ {
		if percents[i] < percents[i-1] {
			t.Errorf("progress went backwards: %v", percents)
		}
	}
	if percents[0] != 0 || percents[len(percents)-1] != 100 {
		t.Errorf("expected progress to span 0..100, got %v", percents)
	}
	if !strings.Contains(phases[len(phases)-1], "complete") {
		t.Errorf("expected final phase to report completion, got %q", phases[len(phases)-1])
	}
}

func TestSolveIsRepeatable(t *testing.T) {
	// The pipeline is deterministic: same inputs, same output order and
	// values.
	costs := []float64{12.5, 7, 7, 30, 2.2, 90, 41}
	targets := targetsOf("A", 14.0, "B", 90.0, "C", 1.0, "D", 70.0)

	s1 := New()
	s1.Load(costs, targets)
	r1 := s1.Solve()

	s2 := New()
	s2.Load(costs, targets)
	r2 := s2.Solve()

	if len(r1) != len(r2) {
		t.Fatalf("run lengths differ: %d vs %d", len(r1), len(r2))
	}
	for i := range r1 {
		if r1[i].Target != r2[i].Target || r1[i].Sum != r2[i].Sum || len(r1[i].Costs) != len(r2[i].Costs) {
			t.Errorf("run %d differs: %+v vs %+v", i, r1[i], r2[i])
		}
	}
}

func TestRedistributeBonusFavorsPoorFits(t *testing.T) {
	// Two candidates lose equally by absorbing the leftover 3: both worsen
	// their difference by 3. Only the (100-precision)*0.01 bonus separates
	// them, so the already-poor fit B must receive the cost.
	a := newAssignment(models.Target{Name: "A", Value: 10}, []float64{10}, 10)
	b := newAssignment(models.Target{Name: "B", Value: 5}, []float64{10}, 10)

	pool := NewPool([]float64{3})
	redistribute(pool, []*models.Assignment{a, b})

	if pool.Len() != 0 {
		t.Fatalf("expected the leftover consumed, %d values left", pool.Len())
	}
	if len(a.Costs) != 1 || a.Sum != 10 {
		t.Errorf("A should stay untouched, got costs %v sum %v", a.Costs, a.Sum)
	}
	if len(b.Costs) != 2 || b.Sum != 13 {
		t.Errorf("expected B to absorb the leftover, got costs %v sum %v", b.Costs, b.Sum)
	}

	// Replaying the placement against the pre-placement state must not find
	// a strictly better recipient than the one chosen.
	score := func(sum, target, precision, cost float64) float64 {
		improvement := math.Abs(sum-target) - math.Abs(sum+cost-target)
		return improvement + (100-precision)*0.01
	}
	if chosen, alt := score(10, 5, 0, 3), score(10, 10, 100, 3); alt > chosen {
		t.Errorf("a strictly better recipient existed: %v > %v", alt, chosen)
	}
}

func TestAssignExtremeGreedyStopsWithoutSwap(t *testing.T) {
	// Ten 50s against 520: greedy stops at 500 once within 10% of the
	// target. Every cost is below a tenth of the target, so the sum cannot
	// overshoot and no chosen/remaining swap tightens the fit; the 47 and 3
	// stay in the pool for redistribution.
	pool := NewPool([]float64{50, 50, 50, 50, 50, 50, 50, 50, 50, 50, 47, 3})
	a := assignExtreme(pool, models.Target{Name: "A", Value: 520})

	if len(a.Costs) != 10 || a.Sum != 500 {
		t.Errorf("expected the ten 50s (sum 500), got %v (sum %v)", a.Costs, a.Sum)
	}
	if a.Difference != 20 {
		t.Errorf("expected difference 20, got %v", a.Difference)
	}
	if pool.Len() != 2 {
		t.Errorf("expected 2 values left in the pool, got %d", pool.Len())
	}
}

func TestLoadSummary(t *testing.T) {
	s := New()
	info := s.Load([]float64{10, 20}, targetsOf("A", 25.0))

	if info.SumCosts != 30 || info.SumTargets != 25 || info.Difference != 5 {
		t.Errorf("unexpected load info: %+v", info)
	}
}
