// Package report renders finished solves: CSV export, headline metrics,
// precision breakdown, and display table rows.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/rawblock/allocation-engine/pkg/models"
)

// unassignedMarker appears in the costs column of zero-cost assignments.
const unassignedMarker = "unassigned"

// WriteCSV serializes assignments one row each; group rows are followed by
// one indented sub-row per grouped target.
func WriteCSV(w io.Writer, assignments []models.Assignment) error {
	cw := csv.NewWriter(w)
	header := []string{
		"Target", "Target_Value", "Assigned_Costs", "Achieved_Sum",
		"Difference", "Precision_%", "Is_Group",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, a := range assignments {
		isGroup := "NO"
		if a.IsGroup {
			isGroup = "YES"
		}
		row := []string{
			a.Target,
			formatFloat(a.TargetValue),
			joinCosts(a.Costs),
			formatFloat(a.Sum),
			formatFloat(a.Difference),
			formatFloat(a.Precision),
			isGroup,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}

		if !a.IsGroup {
			continue
		}
		for _, m := range a.GroupedTargets {
			sub := []string{
				"  └─ " + m.Name,
				formatFloat(m.Value),
				"(part of group above)",
				"", "", "", "",
			}
			if err := cw.Write(sub); err != nil {
				return fmt.Errorf("write csv group row: %w", err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// ComputeMetrics derives the headline numbers for a finished solve.
// It is a pure function: the same assignment list always produces the same
// metrics.
func ComputeMetrics(assignments []models.Assignment, totalCosts int) models.Metrics {
	var m models.Metrics
	m.TotalAssignments = len(assignments)

	var precSum float64
	var precCount int
	for _, a := range assignments {
		m.CostsUsed += len(a.Costs)
		if a.Precision > 0 {
			precSum += a.Precision
			precCount++
		}
		if len(a.Costs) == 0 {
			m.TargetsUnassigned++
		}
		if a.IsGroup {
			m.GroupsCreated++
		}
	}
	if precCount > 0 {
		m.MeanPrecision = precSum / float64(precCount)
	}
	m.CostsUnused = totalCosts - m.CostsUsed
	return m
}

// PrecisionBreakdown buckets assignments by fit quality. Buckets are
// cumulative: a perfect assignment also counts as excellent and good.
func PrecisionBreakdown(assignments []models.Assignment) models.Breakdown {
	var b models.Breakdown
	for _, a := range assignments {
		if a.Precision >= 99.9 {
			b.Perfect++
		}
		if a.Precision >= 90 {
			b.Excellent++
		}
		if a.Precision >= 70 {
			b.Good++
		}
	}
	return b
}

// TableRow is one formatted display line.
type TableRow struct {
	Target      string `json:"target"`
	TargetValue string `json:"targetValue"`
	Costs       string `json:"costs"`
	Sum         string `json:"sum"`
	Difference  string `json:"difference"`
	Precision   string `json:"precision"`
	IsGroup     bool   `json:"isGroup"`
}

// BuildTable prepares display rows sorted best-precision first.
func BuildTable(assignments []models.Assignment) []TableRow {
	sorted := make([]models.Assignment, len(assignments))
	copy(sorted, assignments)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Precision > sorted[j].Precision
	})

	rows := make([]TableRow, len(sorted))
	for i, a := range sorted {
		rows[i] = TableRow{
			Target:      a.Target,
			TargetValue: fmt.Sprintf("%.2f", a.TargetValue),
			Costs:       joinCosts(a.Costs),
			Sum:         fmt.Sprintf("%.2f", a.Sum),
			Difference:  fmt.Sprintf("%.3f", a.Difference),
			Precision:   fmt.Sprintf("%.1f%%", a.Precision),
			IsGroup:     a.IsGroup,
		}
	}
	return rows
}

// UnusedCosts returns the input costs no assignment consumed, preserving
// input order and duplicate instances.
func UnusedCosts(costs []float64, assignments []models.Assignment) []float64 {
	// Count assigned instances per value, then walk the input once.
	assigned := make(map[float64]int)
	for _, a := range assignments {
		for _, c := range a.Costs {
			assigned[c]++
		}
	}

	unused := make([]float64, 0)
	for _, c := range costs {
		if assigned[c] > 0 {
			assigned[c]--
			continue
		}
		unused = append(unused, c)
	}
	return unused
}

func joinCosts(costs []float64) string {
	if len(costs) == 0 {
		return unassignedMarker
	}
	parts := make([]string, len(costs))
	for i, c := range costs {
		parts[i] = formatFloat(c)
	}
	return strings.Join(parts, " + ")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
