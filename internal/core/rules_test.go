package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"crosslab/pkg/domain"
)

func mustExperiment(t *testing.T, p ExperimentParams) Experiment {
	t.Helper()
	e, err := domain.NewExperiment(p, fixedNow)
	if err != nil {
		t.Fatalf("new experiment: %v", err)
	}
	if err := e.ComputeExpected(fixedNow); err != nil {
		t.Fatalf("compute expected: %v", err)
	}
	return e
}

func evaluate(t *testing.T, rule Rule, changes ...Change) Result {
	t.Helper()
	res, err := rule.Evaluate(context.Background(), nil, changes)
	if err != nil {
		t.Fatalf("evaluate %s: %v", rule.Name(), err)
	}
	return res
}

func updateChange(e Experiment) Change {
	return Change{Entity: EntityExperiment, Action: ActionUpdate, After: e}
}

func TestLifecycleConsistencyRule(t *testing.T) {
	rule := NewLifecycleConsistencyRule()
	good := mustExperiment(t, testcrossParams(t, "good"))
	if res := evaluate(t, rule, updateChange(good)); len(res.Violations) != 0 {
		t.Fatalf("unexpected violations %+v", res.Violations)
	}

	stale := good.Clone()
	stale.TotalExpected = 1000
	res := evaluate(t, rule, updateChange(stale))
	if !res.HasBlocking() || !strings.Contains(res.Violations[0].Message, "cross yields") {
		t.Fatalf("expected stale expected counts to block, got %+v", res.Violations)
	}

	orphan := good.Clone()
	orphan.ChiSquare = &domain.AnalysisResult{}
	if res := evaluate(t, rule, updateChange(orphan)); !res.HasBlocking() {
		t.Fatalf("expected result without observations to block")
	}

	deleted := Change{Entity: EntityExperiment, Action: ActionDelete, Before: orphan}
	if res := evaluate(t, rule, deleted); len(res.Violations) != 0 {
		t.Fatalf("deletes are not evaluated, got %+v", res.Violations)
	}
}

func TestCategoryAlignmentRule(t *testing.T) {
	rule := NewCategoryAlignmentRule()
	e := mustExperiment(t, testcrossParams(t, "cat"))
	e.ObservedCounts = map[PhenotypeID]int{"E": 3}
	res := evaluate(t, rule, updateChange(e))
	if !res.HasBlocking() || res.Violations[0].EntityID != "cat" {
		t.Fatalf("expected blocking violation, got %+v", res.Violations)
	}
	e.ObservedCounts = map[PhenotypeID]int{"E": 3, "e": 4}
	if res := evaluate(t, rule, updateChange(e)); len(res.Violations) != 0 {
		t.Fatalf("unexpected violations %+v", res.Violations)
	}
}

func TestTraitAlignmentRule(t *testing.T) {
	rule := NewTraitAlignmentRule()
	p := ExperimentParams{ID: "swap", Parent1: "Ee Ww", Parent2: "Ww Ee", Alleles: eyeWingAlleles(t), TotalExpected: 160}
	swapped := mustExperiment(t, p)
	res := evaluate(t, rule, Change{Entity: EntityExperiment, Action: ActionCreate, After: swapped})
	if len(res.Violations) != 2 || res.HasBlocking() {
		t.Fatalf("expected two warnings, got %+v", res.Violations)
	}
	if res := evaluate(t, rule, updateChange(swapped)); len(res.Violations) != 0 {
		t.Fatalf("updates must not repeat the warning, got %+v", res.Violations)
	}
	p.Parent2 = "ee ww"
	if res := evaluate(t, rule, Change{Entity: EntityExperiment, Action: ActionCreate, After: mustExperiment(t, p)}); len(res.Violations) != 0 {
		t.Fatalf("unexpected violations %+v", res.Violations)
	}
}

func TestLowExpectedCountRule(t *testing.T) {
	rule := NewLowExpectedCountRule()
	p := testcrossParams(t, "low")
	p.TotalExpected = 6
	res := evaluate(t, rule, updateChange(mustExperiment(t, p)))
	if len(res.Violations) != 2 || res.Violations[0].Severity != SeverityWarn {
		t.Fatalf("expected warn violations, got %+v", res.Violations)
	}
}

func TestBlockingRuleRollsBackTransaction(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(NewDefaultRulesEngine())
	if _, _, err := svc.Create(ctx, testcrossParams(t, "exp")); err != nil {
		t.Fatalf("create: %v", err)
	}
	res, err := svc.Store().RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateExperiment("exp", func(e *Experiment) error {
			e.TotalExpected = 42
			return nil
		})
		return err
	})
	var blocked RuleViolationError
	if !errors.As(err, &blocked) || !res.HasBlocking() {
		t.Fatalf("expected rule violation, got %v", err)
	}
	stored, _ := svc.Get(ctx, "exp")
	if stored.TotalExpected != 500 {
		t.Fatalf("blocked transaction must not commit, total %d", stored.TotalExpected)
	}
}

func TestTraitAlignmentWarnsOnlyOnCreate(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(NewDefaultRulesEngine(), WithClock(fixedClock()))
	p := ExperimentParams{ID: "swap", Parent1: "Ee Ww", Parent2: "Ww Ee", Alleles: eyeWingAlleles(t), TotalExpected: 160}
	_, res, err := svc.Create(ctx, p)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if n := countRule(res, "trait_alignment"); n != 2 {
		t.Fatalf("expected two trait warnings on create, got %+v", res.Violations)
	}
	_, res, err = svc.UpdateNotes(ctx, "swap", "swapped on purpose")
	if err != nil {
		t.Fatalf("notes: %v", err)
	}
	if n := countRule(res, "trait_alignment"); n != 0 {
		t.Fatalf("warning repeated on update: %+v", res.Violations)
	}
}

func countRule(res Result, rule string) int {
	n := 0
	for _, v := range res.Violations {
		if v.Rule == rule {
			n++
		}
	}
	return n
}
