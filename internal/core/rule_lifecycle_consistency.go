package core

import (
	"context"
	"fmt"
	"math"

	"crosslab/pkg/domain"
	"crosslab/pkg/genetics"
)

// NewLifecycleConsistencyRule blocks experiments whose stored state could
// not have been produced by the lifecycle: structurally invalid records and
// expected counts that no longer follow from the parents and total.
func NewLifecycleConsistencyRule() domain.Rule {
	return lifecycleConsistencyRule{}
}

type lifecycleConsistencyRule struct{}

const expectedCountTolerance = 1e-9

func (lifecycleConsistencyRule) Name() string { return "lifecycle_consistency" }

func (r lifecycleConsistencyRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, e := range changedExperiments(changes) {
		if err := e.Validate(); err != nil {
			res.Violations = append(res.Violations, r.violation(e.ID, err.Error()))
			continue
		}
		if e.ExpectedCounts == nil {
			continue
		}
		if msg := staleExpected(e); msg != "" {
			res.Violations = append(res.Violations, r.violation(e.ID, msg))
		}
	}
	return res, nil
}

func (lifecycleConsistencyRule) violation(id, msg string) domain.Violation {
	return domain.Violation{
		Rule:     "lifecycle_consistency",
		Severity: domain.SeverityBlock,
		Message:  fmt.Sprintf("experiment %s: %s", id, msg),
		Entity:   domain.EntityExperiment,
		EntityID: id,
	}
}

func staleExpected(e domain.Experiment) string {
	ratios, err := e.Ratios()
	if err != nil {
		return err.Error()
	}
	want, err := genetics.ExpectedCounts(ratios, e.TotalExpected)
	if err != nil {
		return err.Error()
	}
	if len(want) != len(e.ExpectedCounts) {
		return fmt.Sprintf("expected counts cover %d categories, cross yields %d", len(e.ExpectedCounts), len(want))
	}
	for _, id := range genetics.SortedIDs(want) {
		got, ok := e.ExpectedCounts[id]
		if !ok {
			return fmt.Sprintf("expected counts missing category %s", id)
		}
		if math.Abs(got-want[id]) > expectedCountTolerance {
			return fmt.Sprintf("expected count for %s is %v, cross yields %v", id, got, want[id])
		}
	}
	return ""
}
