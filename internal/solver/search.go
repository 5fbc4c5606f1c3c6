package solver

import (
	"math"
	"sort"

	"github.com/rawblock/allocation-engine/pkg/models"
)

// subset is a candidate group of costs for a single target.
type subset struct {
	costs []float64
	sum   float64
}

// groupMatch pairs a set of small targets with the cost subset that covers
// their combined value.
type groupMatch struct {
	targets []models.Target
	costs   []float64
	sum     float64
}

// forEachCombination enumerates all k-element index combinations of [0,n) in
// lexicographic order, calling fn for each. fn returns true to stop early;
// the returned bool reports whether enumeration was stopped.
func forEachCombination(n, k int, fn func(idx []int) bool) bool {
	if k <= 0 || k > n {
		return false
	}
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	for {
		if fn(idx) {
			return true
		}
		// Advance to the next combination, rightmost index first.
		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return false
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}

func pick(values []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = values[j]
	}
	return out
}

func sumIndices(values []float64, idx []int) float64 {
	var sum float64
	for _, j := range idx {
		sum += values[j]
	}
	return sum
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// findExactMatch searches for the first subset of at most maxElems costs whose
// sum lands within tol of the target. Sizes are tried in ascending order and
// combinations in pool order, so the smallest, earliest subset always wins a
// tie. Returns nil when nothing qualifies.
func findExactMatch(values []float64, target float64, maxElems int, tol float64) *subset {
	for size := 1; size <= maxElems && size <= len(values); size++ {
		var found *subset
		forEachCombination(len(values), size, func(idx []int) bool {
			sum := sumIndices(values, idx)
			if abs(sum-target) <= tol {
				found = &subset{costs: pick(values, idx), sum: sum}
				return true
			}
			return false
		})
		if found != nil {
			return found
		}
	}
	return nil
}

// findBestGroup searches combinations of 2..5 small targets for one whose
// combined value can be covered by 1 or 2 pool costs within a 15% tolerance.
// The best pairing by absolute difference wins; a pairing under 5% relative
// error short-circuits the whole search. Returns nil when no pairing beats
// the tolerance.
func findBestGroup(smalls []models.Target, values []float64) *groupMatch {
	var best *groupMatch
	bestDiff := math.Inf(1)

	maxPerGroup := len(smalls)
	if maxPerGroup > 5 {
		maxPerGroup = 5
	}

	for size := 2; size <= maxPerGroup; size++ {
		stopped := forEachCombination(len(smalls), size, func(idx []int) bool {
			var groupSum float64
			for _, j := range idx {
				groupSum += smalls[j].Value
			}

			for _, maxCosts := range []int{1, 2} {
				m := findExactMatch(values, groupSum, maxCosts, groupSum*0.15)
				if m == nil {
					continue
				}
				diff := abs(m.sum - groupSum)
				if diff < bestDiff {
					bestDiff = diff
					members := make([]models.Target, len(idx))
					for i, j := range idx {
						members[i] = smalls[j]
					}
					best = &groupMatch{targets: members, costs: m.costs, sum: m.sum}

					if groupSum > 0 && diff/groupSum < 0.05 {
						return true
					}
					if groupSum == 0 && diff == 0 {
						return true
					}
				}
			}
			return false
		})
		if stopped {
			return best
		}
	}
	return best
}

// closestCandidates filters values through keep and retains the limit entries
// closest to the target, sorted by that distance. Stable sort keeps pool
// order for equidistant costs.
func closestCandidates(values []float64, target float64, keep func(float64) bool, limit int) []float64 {
	cands := make([]float64, 0, len(values))
	for _, v := range values {
		if keep == nil || keep(v) {
			cands = append(cands, v)
		}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		return abs(cands[i]-target) < abs(cands[j]-target)
	})
	if len(cands) > limit {
		cands = cands[:limit]
	}
	return cands
}

// greedyDescending accumulates costs largest-first while the running sum stays
// under target*capFactor, stopping early once relative error drops below
// stopRel. It returns the chosen costs and the untouched remainder, both in
// descending order.
func greedyDescending(values []float64, target, capFactor, stopRel float64) (chosen, remaining []float64) {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	var sum float64
	done := false
	for _, v := range sorted {
		if !done && sum+v <= target*capFactor {
			chosen = append(chosen, v)
			sum += v
			if target > 0 && abs(sum-target)/target < stopRel {
				done = true
			}
		} else {
			remaining = append(remaining, v)
		}
	}
	return chosen, remaining
}

// findAdaptiveMatch handles large targets. When the target dominates the pool
// it starts with a greedy descending accumulation, accepting it outright under
// 5% relative error and otherwise keeping it as the fallback to beat. The
// combinatorial lane then restricts candidates (full pool only when the target
// dwarfs every single cost), truncates to the 20 closest, and walks subset
// sizes up to maxElems, returning as soon as the adaptive tolerance is met.
func findAdaptiveMatch(values []float64, target float64, maxElems int) *subset {
	if target <= 0 || len(values) == 0 {
		return nil
	}

	var poolSum, poolMax float64
	for _, v := range values {
		poolSum += v
		if v > poolMax {
			poolMax = v
		}
	}

	var best *subset
	bestRel := math.Inf(1)

	if target > 0.3*poolSum {
		chosen, _ := greedyDescending(values, target, 1.2, 0.05)
		if len(chosen) > 0 {
			var sum float64
			for _, c := range chosen {
				sum += c
			}
			rel := abs(sum-target) / target
			greedy := &subset{costs: chosen, sum: sum}
			if rel < 0.05 {
				return greedy
			}
			best = greedy
			bestRel = rel
		}
	}

	var keep func(float64) bool
	if target <= 5*poolMax {
		keep = func(v float64) bool { return v <= target*2.0 }
	}
	cands := closestCandidates(values, target, keep, 20)

	tol := 0.15
	if target > 50 {
		tol = 0.05
	}

	limit := maxElems
	if limit > len(cands) {
		limit = len(cands)
	}
	for size := 1; size <= limit; size++ {
		var winner *subset
		forEachCombination(len(cands), size, func(idx []int) bool {
			sum := sumIndices(cands, idx)
			rel := abs(sum-target) / target
			if rel < bestRel {
				bestRel = rel
				best = &subset{costs: pick(cands, idx), sum: sum}
				if rel < tol {
					winner = best
					return true
				}
			}
			return false
		})
		if winner != nil {
			return winner
		}
	}
	return best
}

// findAggressiveMatch handles medium targets: candidates capped at twice the
// target and truncated to the 20 closest, subset sizes up to 7, sums above
// 1.8x the target rejected. A sub-15% relative error ends the current size
// immediately and, once a size has produced one, the whole search.
func findAggressiveMatch(values []float64, target float64) *subset {
	if target <= 0 {
		return nil
	}

	cands := closestCandidates(values, target, func(v float64) bool {
		return v <= target*2.0
	}, 20)

	var best *subset
	bestRel := math.Inf(1)

	limit := 7
	if limit > len(cands) {
		limit = len(cands)
	}
	for size := 1; size <= limit; size++ {
		forEachCombination(len(cands), size, func(idx []int) bool {
			sum := sumIndices(cands, idx)
			rel := abs(sum-target) / target
			if rel < bestRel && sum <= target*1.8 {
				bestRel = rel
				best = &subset{costs: pick(cands, idx), sum: sum}
				if rel < 0.15 {
					return true
				}
			}
			return false
		})
		if best != nil && bestRel < 0.15 {
			break
		}
	}
	return best
}

// nearestCost returns the single pool cost closest to the target. The pool
// must be non-empty.
func nearestCost(values []float64, target float64) float64 {
	best := values[0]
	for _, v := range values[1:] {
		if abs(v-target) < abs(best-target) {
			best = v
		}
	}
	return best
}
