package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"crosslab/pkg/genetics"
	"crosslab/pkg/stats"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func monohybridParams(t *testing.T) ExperimentParams {
	t.Helper()
	alleles, err := genetics.NewAlleles(
		genetics.Allele{Symbol: "E", Description: "Red", Dominant: true},
		genetics.Allele{Symbol: "e", Description: "White"},
	)
	if err != nil {
		t.Fatalf("alleles: %v", err)
	}
	return ExperimentParams{
		ID:            "exp-1",
		Name:          "Eye colour F2",
		Parent1:       "Ee",
		Parent2:       "Ee",
		Alleles:       alleles,
		TotalExpected: 100,
	}
}

func TestNewExperimentStartsCreated(t *testing.T) {
	exp, err := NewExperiment(monohybridParams(t), testNow)
	if err != nil {
		t.Fatalf("new experiment: %v", err)
	}
	if exp.State() != StateCreated {
		t.Fatalf("expected created, got %s", exp.State())
	}
	if exp.Status() != "Pending" {
		t.Fatalf("expected Pending status, got %s", exp.Status())
	}
	if !exp.CreatedAt.Equal(testNow) || !exp.UpdatedAt.Equal(testNow) {
		t.Fatalf("timestamps not set")
	}
}

func TestNewExperimentRejectsBadInputs(t *testing.T) {
	cases := map[string]func(*ExperimentParams){
		"arity":          func(p *ExperimentParams) { p.Parent2 = "Ee Ww" },
		"unknown allele": func(p *ExperimentParams) { p.Parent1 = "Ex" },
		"empty parent":   func(p *ExperimentParams) { p.Parent1 = "" },
		"zero total":     func(p *ExperimentParams) { p.TotalExpected = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := monohybridParams(t)
			mutate(&p)
			if _, err := NewExperiment(p, testNow); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestNewExperimentArityError(t *testing.T) {
	p := monohybridParams(t)
	p.Parent2 = "Ee Ee"
	_, err := NewExperiment(p, testNow)
	var arity genetics.ArityMismatchError
	if !errors.As(err, &arity) {
		t.Fatalf("expected arity mismatch, got %v", err)
	}
}

func TestExperimentLifecycle(t *testing.T) {
	exp, err := NewExperiment(monohybridParams(t), testNow)
	if err != nil {
		t.Fatalf("new experiment: %v", err)
	}
	if err := exp.RecordObservations(map[genetics.PhenotypeID]int{"E": 1}, testNow); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition before ratios, got %v", err)
	}
	if err := exp.Analyze(stats.DefaultAlpha, testNow); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition before observations, got %v", err)
	}

	later := testNow.Add(time.Minute)
	if err := exp.ComputeExpected(later); err != nil {
		t.Fatalf("compute expected: %v", err)
	}
	if exp.State() != StateRatiosComputed {
		t.Fatalf("expected ratios_computed, got %s", exp.State())
	}
	if exp.ExpectedCounts["E"] != 75 || exp.ExpectedCounts["e"] != 25 {
		t.Fatalf("unexpected expected counts %v", exp.ExpectedCounts)
	}
	if exp.Phenotypes["E"] != "Red" || exp.Phenotypes["e"] != "White" {
		t.Fatalf("unexpected phenotypes %v", exp.Phenotypes)
	}
	if !exp.UpdatedAt.Equal(later) {
		t.Fatalf("expected updated timestamp")
	}

	if err := exp.RecordObservations(map[genetics.PhenotypeID]int{"E": 72, "e": 28}, later); err != nil {
		t.Fatalf("record: %v", err)
	}
	if exp.State() != StateObservationsRecorded || exp.Status() != "Complete" {
		t.Fatalf("expected observations_recorded/Complete, got %s/%s", exp.State(), exp.Status())
	}

	if err := exp.Analyze(stats.DefaultAlpha, later); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if exp.State() != StateAnalyzed {
		t.Fatalf("expected analyzed, got %s", exp.State())
	}
	if !exp.ChiSquare.Passed || exp.ChiSquare.DegreesFreedom != 1 {
		t.Fatalf("unexpected result %+v", exp.ChiSquare)
	}
	if err := exp.Validate(); err != nil {
		t.Fatalf("validate analyzed experiment: %v", err)
	}
}

func TestRecordObservationsRejectsMismatchedKeys(t *testing.T) {
	exp, _ := NewExperiment(monohybridParams(t), testNow)
	if err := exp.ComputeExpected(testNow); err != nil {
		t.Fatalf("compute: %v", err)
	}
	err := exp.RecordObservations(map[genetics.PhenotypeID]int{"E": 72, "X": 28}, testNow)
	var mismatch stats.KeySetMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected key set mismatch, got %v", err)
	}
	if exp.ObservedCounts != nil {
		t.Fatalf("observations must not be stored on error")
	}
	err = exp.RecordObservations(map[genetics.PhenotypeID]int{"E": -1, "e": 28}, testNow)
	var negative stats.NegativeCountError
	if !errors.As(err, &negative) {
		t.Fatalf("expected negative count error, got %v", err)
	}
}

func TestUpstreamChangesInvalidateDownstream(t *testing.T) {
	exp, _ := NewExperiment(monohybridParams(t), testNow)
	_ = exp.ComputeExpected(testNow)
	_ = exp.RecordObservations(map[genetics.PhenotypeID]int{"E": 72, "e": 28}, testNow)
	if err := exp.Analyze(stats.DefaultAlpha, testNow); err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if err := exp.RecordObservations(map[genetics.PhenotypeID]int{"E": 70, "e": 30}, testNow); err != nil {
		t.Fatalf("re-record: %v", err)
	}
	if exp.ChiSquare != nil {
		t.Fatalf("re-recording must discard the previous analysis")
	}

	if err := exp.UpdateTotalExpected(200, testNow); err != nil {
		t.Fatalf("update total: %v", err)
	}
	if exp.ExpectedCounts["E"] != 150 {
		t.Fatalf("expected counts not rescaled: %v", exp.ExpectedCounts)
	}
	if exp.ObservedCounts != nil || exp.State() != StateRatiosComputed {
		t.Fatalf("expected observations discarded, state %s", exp.State())
	}
	if err := exp.UpdateTotalExpected(0, testNow); err == nil {
		t.Fatalf("expected error for zero total")
	}
	if exp.TotalExpected != 200 {
		t.Fatalf("total changed on error")
	}
}

func TestAnalyzeFailureKeepsPriorResult(t *testing.T) {
	exp, _ := NewExperiment(monohybridParams(t), testNow)
	_ = exp.ComputeExpected(testNow)
	_ = exp.RecordObservations(map[genetics.PhenotypeID]int{"E": 72, "e": 28}, testNow)
	if err := exp.Analyze(stats.DefaultAlpha, testNow); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	prior := exp.ChiSquare
	if err := exp.Analyze(1.5, testNow); err == nil {
		t.Fatalf("expected invalid alpha error")
	}
	if exp.ChiSquare != prior {
		t.Fatalf("prior result must survive a failed analysis")
	}
}

func TestResolveObservations(t *testing.T) {
	exp, _ := NewExperiment(monohybridParams(t), testNow)
	_ = exp.ComputeExpected(testNow)
	got, err := exp.ResolveObservations(map[string]int{"red": 70, "e": 30})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got["E"] != 70 || got["e"] != 30 {
		t.Fatalf("unexpected resolution %v", got)
	}
	_, err = exp.ResolveObservations(map[string]int{"Blue": 1})
	var unknown UnknownPhenotypeError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected unknown phenotype, got %v", err)
	}
}

func TestResolveObservationsAmbiguousDescription(t *testing.T) {
	exp := Experiment{
		Phenotypes:     map[genetics.PhenotypeID]string{"A": "Tall", "B": "Tall"},
		ExpectedCounts: map[genetics.PhenotypeID]float64{"A": 1, "B": 1},
	}
	_, err := exp.ResolveObservations(map[string]int{"tall": 3})
	var ambiguous AmbiguousPhenotypeError
	if !errors.As(err, &ambiguous) {
		t.Fatalf("expected ambiguity error, got %v", err)
	}
}

func TestResolveObservationsRejectsRepeatedCategory(t *testing.T) {
	exp, _ := NewExperiment(monohybridParams(t), testNow)
	_ = exp.ComputeExpected(testNow)
	cases := map[string]map[string]int{
		"id and description":   {"E": 100, "red": 147, "White": 253},
		"description and case": {"Red": 1, "RED": 2},
	}
	for name, labelled := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := exp.ResolveObservations(labelled)
			var dup DuplicatePhenotypeError
			if !errors.As(err, &dup) {
				t.Fatalf("expected duplicate error, got %v (%v)", err, got)
			}
			if dup.ID != "E" || len(dup.Labels) != 2 {
				t.Fatalf("unexpected duplicate %+v", dup)
			}
		})
	}
}

func TestExperimentJSONRoundTripAndClone(t *testing.T) {
	exp, _ := NewExperiment(monohybridParams(t), testNow)
	_ = exp.ComputeExpected(testNow)
	_ = exp.RecordObservations(map[genetics.PhenotypeID]int{"E": 72, "e": 28}, testNow)
	_ = exp.Analyze(stats.DefaultAlpha, testNow)

	data, err := json.Marshal(exp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Experiment
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.State() != StateAnalyzed || decoded.ChiSquare.ChiSquare != exp.ChiSquare.ChiSquare {
		t.Fatalf("round trip lost analysis: %+v", decoded.ChiSquare)
	}
	if err := decoded.Validate(); err != nil {
		t.Fatalf("decoded experiment invalid: %v", err)
	}

	cp := exp.Clone()
	cp.ObservedCounts["E"] = 1
	cp.Alleles["E"] = genetics.Allele{Symbol: "E", Description: "Changed", Dominant: true}
	cp.ChiSquare.Passed = false
	if exp.ObservedCounts["E"] != 72 || exp.Alleles["E"].Description != "Red" || !exp.ChiSquare.Passed {
		t.Fatalf("clone shares state with original")
	}
}

func TestValidateDetectsInconsistentState(t *testing.T) {
	exp, _ := NewExperiment(monohybridParams(t), testNow)
	exp.ObservedCounts = map[genetics.PhenotypeID]int{"E": 1}
	var verr ValidationError
	if err := exp.Validate(); !errors.As(err, &verr) || verr.Field != "observed_counts" {
		t.Fatalf("expected observed_counts validation error, got %v", err)
	}
}
