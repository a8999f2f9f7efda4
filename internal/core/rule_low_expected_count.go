package core

import (
	"context"
	"fmt"

	"crosslab/pkg/domain"
	"crosslab/pkg/genetics"
)

// MinReliableExpectedCount is the usual lower bound on expected counts for
// the chi-square approximation to hold.
const MinReliableExpectedCount = 5.0

// NewLowExpectedCountRule warns when an expected count falls below
// MinReliableExpectedCount.
func NewLowExpectedCountRule() domain.Rule {
	return lowExpectedCountRule{}
}

type lowExpectedCountRule struct{}

func (lowExpectedCountRule) Name() string { return "low_expected_count" }

func (lowExpectedCountRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, e := range changedExperiments(changes) {
		for _, id := range genetics.SortedIDs(e.ExpectedCounts) {
			if n := e.ExpectedCounts[id]; n < MinReliableExpectedCount {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "low_expected_count",
					Severity: domain.SeverityWarn,
					Message:  fmt.Sprintf("experiment %s expects %v %s offspring; chi-square is unreliable below %v", e.ID, n, id, MinReliableExpectedCount),
					Entity:   domain.EntityExperiment,
					EntityID: e.ID,
				})
			}
		}
	}
	return res, nil
}
