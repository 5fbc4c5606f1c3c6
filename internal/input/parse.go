// Package input parses the raw cost and target text the engine consumes.
// Validation failures surface here, before the solver ever runs.
package input

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/rawblock/allocation-engine/pkg/models"
)

// ParseCosts reads cost values from text delimited by commas and/or
// whitespace. Empty tokens are skipped. Non-numeric or negative tokens are
// rejected.
func ParseCosts(text string) ([]float64, error) {
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})

	costs := make([]float64, 0, len(tokens))
	for _, tok := range tokens {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid cost value %q: not a number", tok)
		}
		if v < 0 {
			return nil, fmt.Errorf("invalid cost value %q: costs must be non-negative", tok)
		}
		costs = append(costs, v)
	}
	return costs, nil
}

// ParseTargets reads "NAME: value" lines. Lines without a colon are skipped.
// A duplicated name keeps its first position but takes the last value seen,
// matching map-overwrite semantics. Malformed or negative values are rejected.
func ParseTargets(text string) ([]models.Target, error) {
	targets := make([]models.Target, 0)
	index := make(map[string]int)

	for lineNo, line := range strings.Split(text, "\n") {
		name, rawValue, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		rawValue = strings.TrimSpace(rawValue)

		v, err := strconv.ParseFloat(rawValue, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid target on line %d: %q is not a number", lineNo+1, rawValue)
		}
		if v < 0 {
			return nil, fmt.Errorf("invalid target on line %d: %q must be non-negative", lineNo+1, name)
		}

		if i, seen := index[name]; seen {
			targets[i].Value = v
			continue
		}
		index[name] = len(targets)
		targets = append(targets, models.Target{Name: name, Value: v})
	}
	return targets, nil
}
