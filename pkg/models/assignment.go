package models

import "time"

// Target is a named amount the solver tries to cover with a subset of costs.
type Target struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Assignment is one row of solver output: a target (or a merged group of
// targets) together with the costs assigned to it.
type Assignment struct {
	Target         string    `json:"target"` // target name, or group members joined with " + "
	TargetValue    float64   `json:"targetValue"`
	Costs          []float64 `json:"costs"`
	Sum            float64   `json:"sum"`        // sum of Costs
	Difference     float64   `json:"difference"` // |Sum - TargetValue|
	Precision      float64   `json:"precision"`  // 100*(1 - Difference/TargetValue), clamped at 0
	IsGroup        bool      `json:"isGroup"`
	GroupedTargets []Target  `json:"groupedTargets,omitempty"` // members when IsGroup
}

// Recalculate refreshes Sum, Difference and Precision from Costs. Used by the
// forced-redistribution phase, which is the only place an Assignment mutates
// after creation.
func (a *Assignment) Recalculate() {
	var sum float64
	for _, c := range a.Costs {
		sum += c
	}
	a.Sum = sum
	a.Difference = abs(sum - a.TargetValue)
	a.Precision = PrecisionPercent(a.TargetValue, a.Difference)
}

// PrecisionPercent computes 100*(1 - diff/target) clamped to [0,100].
// A zero-value target always scores 0.
func PrecisionPercent(target, diff float64) float64 {
	if target <= 0 {
		return 0
	}
	p := 100 - (diff/target)*100
	if p < 0 {
		return 0
	}
	return p
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// LoadInfo summarizes loaded input before solving.
type LoadInfo struct {
	SumCosts   float64 `json:"sumCosts"`
	SumTargets float64 `json:"sumTargets"`
	Difference float64 `json:"difference"` // SumCosts - SumTargets
}

// Metrics are the headline numbers computed over a finished solve.
type Metrics struct {
	MeanPrecision     float64 `json:"meanPrecision"` // over assignments with precision > 0
	CostsUsed         int     `json:"costsUsed"`
	CostsUnused       int     `json:"costsUnused"`
	TargetsUnassigned int     `json:"targetsUnassigned"` // assignments with no costs
	GroupsCreated     int     `json:"groupsCreated"`
	TotalAssignments  int     `json:"totalAssignments"`
}

// Breakdown buckets assignments by precision quality.
type Breakdown struct {
	Perfect   int `json:"perfect"`   // precision >= 99.9
	Excellent int `json:"excellent"` // precision >= 90
	Good      int `json:"good"`      // precision >= 70
}

// SolveRun is a persisted solve: inputs summary, results and metrics.
type SolveRun struct {
	ID          string       `json:"id"`
	CreatedAt   time.Time    `json:"createdAt"`
	CostCount   int          `json:"costCount"`
	TargetCount int          `json:"targetCount"`
	SumCosts    float64      `json:"sumCosts"`
	SumTargets  float64      `json:"sumTargets"`
	Metrics     Metrics      `json:"metrics"`
	Assignments []Assignment `json:"assignments,omitempty"`
}
