package core

import (
	"context"
	"fmt"
	"strings"

	"crosslab/pkg/domain"
)

// NewTraitAlignmentRule warns when a gene position pairs unrelated traits,
// e.g. "Ee Ww" crossed with "Ww Ee". Positions are aligned by index, so
// such crosses are legal but rarely intended. Parents never change after
// creation, so only created experiments are checked.
func NewTraitAlignmentRule() domain.Rule {
	return traitAlignmentRule{}
}

type traitAlignmentRule struct{}

func (traitAlignmentRule) Name() string { return "trait_alignment" }

func (traitAlignmentRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityExperiment || change.Action != domain.ActionCreate {
			continue
		}
		e, ok := change.After.(domain.Experiment)
		if !ok {
			continue
		}
		p1, p2, err := e.Parents()
		if err != nil || p1.Len() != p2.Len() {
			continue
		}
		left, right := p1.Pairs(), p2.Pairs()
		for i := range left {
			if sharesLetter(left[i].String(), right[i].String()) {
				continue
			}
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "trait_alignment",
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("experiment %s gene %d pairs %s with %s; positions are matched by order", e.ID, i+1, left[i], right[i]),
				Entity:   domain.EntityExperiment,
				EntityID: e.ID,
			})
		}
	}
	return res, nil
}

func sharesLetter(a, b string) bool {
	for _, r := range strings.ToLower(a) {
		if strings.ContainsRune(strings.ToLower(b), r) {
			return true
		}
	}
	return false
}
