package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rawblock/allocation-engine/internal/input"
	"github.com/rawblock/allocation-engine/internal/report"
	"github.com/rawblock/allocation-engine/internal/solver"
	"github.com/rawblock/allocation-engine/pkg/models"
)

// solveRequest carries the raw user text for both load and solve calls.
type solveRequest struct {
	Costs   string `json:"costs"`
	Targets string `json:"targets"`
}

func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"persistence": h.store != nil,
	})
}

// handleLoad validates the input text and returns the load summary plus the
// advisory warnings the solver itself never raises.
func (h *APIHandler) handleLoad(c *gin.Context) {
	var req solveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	costs, targets, ok := parseInputs(c, req)
	if !ok {
		return
	}

	s := solver.New()
	info := s.Load(costs, targets)

	costMin, costMax := valueRange(costs)
	targetValues := make([]float64, len(targets))
	for i, t := range targets {
		targetValues[i] = t.Value
	}
	targetMin, targetMax := valueRange(targetValues)

	c.JSON(http.StatusOK, gin.H{
		"costCount":   len(costs),
		"targetCount": len(targets),
		"costRange":   gin.H{"min": costMin, "max": costMax},
		"targetRange": gin.H{"min": targetMin, "max": targetMax},
		"info":        info,
		"warnings":    loadWarnings(info, costs, targets),
	})
}

// handleSolve runs the full pipeline, streaming progress over the websocket
// hub, and persists the run when a store is configured.
func (h *APIHandler) handleSolve(c *gin.Context) {
	var req solveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	costs, targets, ok := parseInputs(c, req)
	if !ok {
		return
	}

	runID := uuid.New().String()

	s := solver.New()
	info := s.Load(costs, targets)
	s.OnProgress(func(phase string, percent int) {
		h.wsHub.BroadcastProgress(runID, phase, percent)
	})

	assignments := s.Solve()
	metrics := report.ComputeMetrics(assignments, len(costs))
	breakdown := report.PrecisionBreakdown(assignments)
	unused := report.UnusedCosts(costs, assignments)

	run := models.SolveRun{
		ID:          runID,
		CreatedAt:   time.Now().UTC(),
		CostCount:   len(costs),
		TargetCount: len(targets),
		SumCosts:    info.SumCosts,
		SumTargets:  info.SumTargets,
		Metrics:     metrics,
		Assignments: assignments,
	}
	if h.store != nil {
		if err := h.store.SaveRun(context.Background(), run); err != nil {
			log.Printf("Failed to persist run %s: %v", runID, err)
		}
	}

	h.wsHub.BroadcastComplete(runID, len(assignments), metrics.MeanPrecision)

	c.JSON(http.StatusOK, gin.H{
		"runId":       runID,
		"info":        info,
		"assignments": assignments,
		"metrics":     metrics,
		"breakdown":   breakdown,
		"unusedCosts": unused,
		"table":       report.BuildTable(assignments),
	})
}

func (h *APIHandler) handleListRuns(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Persistence not configured"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := h.store.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list runs", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (h *APIHandler) handleGetRun(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Persistence not configured"})
		return
	}

	run, err := h.store.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}

// handleExportRun streams a stored run as a CSV download.
func (h *APIHandler) handleExportRun(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Persistence not configured"})
		return
	}

	run, err := h.store.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=allocation_%s.csv", run.ID))
	if err := report.WriteCSV(c.Writer, run.Assignments); err != nil {
		log.Printf("Failed to stream CSV for run %s: %v", run.ID, err)
	}
}

// parseInputs validates both text blocks, rejecting the request before the
// solver ever runs on bad input.
func parseInputs(c *gin.Context, req solveRequest) ([]float64, []models.Target, bool) {
	costs, err := input.ParseCosts(req.Costs)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, nil, false
	}
	targets, err := input.ParseTargets(req.Targets)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, nil, false
	}
	return costs, targets, true
}

// valueRange returns the min and max of values, or zeros when empty.
func valueRange(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// loadWarnings reproduces the advisory messages shown before solving: sum
// imbalance in either direction, plus a notice when small targets will be
// grouped automatically.
func loadWarnings(info models.LoadInfo, costs []float64, targets []models.Target) []string {
	warnings := make([]string, 0, 2)

	if info.Difference > 0.01 {
		warnings = append(warnings, fmt.Sprintf(
			"Cost sum (%.2f) exceeds target sum (%.2f); %.2f will remain unassigned or be force-distributed.",
			info.SumCosts, info.SumTargets, info.Difference))
	} else if info.Difference < -0.01 {
		warnings = append(warnings, fmt.Sprintf(
			"Target sum (%.2f) exceeds cost sum (%.2f); some targets may receive no costs.",
			info.SumTargets, info.SumCosts))
	}

	var minCost float64
	for i, c := range costs {
		if i == 0 || c < minCost {
			minCost = c
		}
	}
	smallCount := 0
	for _, t := range targets {
		if t.Value < minCost*0.7 {
			smallCount++
		}
	}
	if smallCount > 0 && len(costs) > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"%d targets are below 70%% of the smallest cost; automatic grouping will apply.", smallCount))
	}
	return warnings
}
