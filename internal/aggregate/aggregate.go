// Package aggregate folds module results into global and per-target
// summaries. Functions here are pure: same input, same output, whatever the
// order of the input.
package aggregate

import (
	"fmt"
	"sort"

	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
	sharedErrors "github.com/khanhnv2901/seca-gap/internal/shared/errors"
)

// Merge tallies every control verdict of results. Counts come from the
// per-control details, not from the stored summaries, so a tampered or
// stale summary cannot skew the totals.
func Merge(results []assessment.ModuleResult) (assessment.Summary, map[string]assessment.Summary, error) {
	seen := make(map[assessment.UnitKey]struct{}, len(results))
	var overall assessment.Summary
	perTarget := make(map[string]assessment.Summary)

	for _, res := range results {
		key := res.Key()
		if _, dup := seen[key]; dup {
			return assessment.Summary{}, nil, fmt.Errorf("%w: %s", sharedErrors.ErrDuplicateUnit, key)
		}
		seen[key] = struct{}{}

		s := tally(res)
		overall.Add(s)
		t := perTarget[res.Target]
		t.Add(s)
		perTarget[res.Target] = t
	}

	overall.Finalize()
	for target, s := range perTarget {
		s.Finalize()
		perTarget[target] = s
	}
	return overall, perTarget, nil
}

func tally(res assessment.ModuleResult) assessment.Summary {
	var s assessment.Summary
	if len(res.Details) == 0 {
		for _, status := range res.Controls {
			s.Count(status)
		}
		return s
	}
	for _, d := range res.Details {
		s.Count(d.Status)
	}
	return s
}

// Sort orders results by target, then module number.
func Sort(results []assessment.ModuleResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Target != results[j].Target {
			return results[i].Target < results[j].Target
		}
		return results[i].ModuleNumber < results[j].ModuleNumber
	})
}

// Targets returns the distinct targets of results in sorted order.
func Targets(results []assessment.ModuleResult) []string {
	set := make(map[string]struct{})
	for _, r := range results {
		set[r.Target] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
