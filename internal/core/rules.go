package core

import "crosslab/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewLifecycleConsistencyRule())
	engine.Register(NewCategoryAlignmentRule())
	engine.Register(NewTraitAlignmentRule())
	engine.Register(NewLowExpectedCountRule())
	return engine
}

// changedExperiments returns the post-change state of every experiment
// created or updated in the transaction.
func changedExperiments(changes []domain.Change) []domain.Experiment {
	var out []domain.Experiment
	for _, change := range changes {
		if change.Entity != domain.EntityExperiment || change.Action == domain.ActionDelete {
			continue
		}
		if e, ok := change.After.(domain.Experiment); ok {
			out = append(out, e)
		}
	}
	return out
}
