// Command allocate runs the assignment engine once over two input files and
// prints the results, optionally writing a CSV export.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/rawblock/allocation-engine/internal/input"
	"github.com/rawblock/allocation-engine/internal/report"
	"github.com/rawblock/allocation-engine/internal/solver"
)

func main() {
	costsPath := flag.String("costs", "", "Path to the cost values file (comma or whitespace delimited)")
	targetsPath := flag.String("targets", "", "Path to the targets file (one NAME: value per line)")
	outPath := flag.String("out", "", "Optional path to write the CSV export")
	quiet := flag.Bool("quiet", false, "Suppress the per-assignment table")
	flag.Parse()

	if *costsPath == "" || *targetsPath == "" {
		exitWith("both -costs and -targets are required")
	}

	costsText, err := os.ReadFile(*costsPath)
	if err != nil {
		exitWith(err.Error())
	}
	targetsText, err := os.ReadFile(*targetsPath)
	if err != nil {
		exitWith(err.Error())
	}

	costs, err := input.ParseCosts(string(costsText))
	if err != nil {
		exitWith(err.Error())
	}
	targets, err := input.ParseTargets(string(targetsText))
	if err != nil {
		exitWith(err.Error())
	}

	s := solver.New()
	info := s.Load(costs, targets)

	fmt.Printf("Loaded %d costs (sum %.2f) and %d targets (sum %.2f), difference %.2f\n",
		len(costs), info.SumCosts, len(targets), info.SumTargets, info.Difference)

	s.OnProgress(func(phase string, percent int) {
		fmt.Fprintf(os.Stderr, "\r[%3d%%] %-28s", percent, phase)
		if percent == 100 {
			fmt.Fprintln(os.Stderr)
		}
	})

	assignments := s.Solve()
	metrics := report.ComputeMetrics(assignments, len(costs))
	breakdown := report.PrecisionBreakdown(assignments)

	fmt.Printf("\nAssignments: %d (groups: %d)\n", metrics.TotalAssignments, metrics.GroupsCreated)
	fmt.Printf("Mean precision: %.1f%%\n", metrics.MeanPrecision)
	fmt.Printf("Costs used: %d/%d\n", metrics.CostsUsed, metrics.CostsUsed+metrics.CostsUnused)
	if metrics.TargetsUnassigned > 0 {
		fmt.Printf("Targets without costs: %d\n", metrics.TargetsUnassigned)
	}
	fmt.Printf("Quality: %d perfect, %d excellent, %d good\n",
		breakdown.Perfect, breakdown.Excellent, breakdown.Good)

	if unused := report.UnusedCosts(costs, assignments); len(unused) > 0 {
		var sum float64
		for _, c := range unused {
			sum += c
		}
		fmt.Printf("Unused costs: %d (sum %.2f)\n", len(unused), sum)
	}

	if !*quiet {
		fmt.Println()
		for _, row := range report.BuildTable(assignments) {
			marker := " "
			if row.IsGroup {
				marker = "G"
			}
			fmt.Printf("%s %-30s target %10s  got %10s  diff %10s  %s\n",
				marker, row.Target, row.TargetValue, row.Sum, row.Difference, row.Precision)
		}
	}

	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			exitWith(err.Error())
		}
		defer f.Close()
		if err := report.WriteCSV(f, assignments); err != nil {
			exitWith(err.Error())
		}
		log.Printf("Wrote CSV export to %s", *outPath)
	}
}

func exitWith(msg string) {
	fmt.Fprintln(os.Stderr, "error: "+msg)
	os.Exit(1)
}
