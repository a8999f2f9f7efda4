package core

import (
	"context"
	"fmt"

	"crosslab/pkg/domain"
	"crosslab/pkg/stats"
)

// NewCategoryAlignmentRule blocks observations whose phenotype categories
// differ from the expected categories.
func NewCategoryAlignmentRule() domain.Rule {
	return categoryAlignmentRule{}
}

type categoryAlignmentRule struct{}

func (categoryAlignmentRule) Name() string { return "category_alignment" }

func (categoryAlignmentRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, e := range changedExperiments(changes) {
		if e.ObservedCounts == nil {
			continue
		}
		if err := stats.CheckKeySets(e.ExpectedCounts, e.ObservedCounts); err != nil {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "category_alignment",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("experiment %s observations do not match expected categories: %v", e.ID, err),
				Entity:   domain.EntityExperiment,
				EntityID: e.ID,
			})
		}
	}
	return res, nil
}
