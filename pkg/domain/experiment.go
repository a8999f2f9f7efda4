package domain

import (
	"errors"
	"maps"
	"sort"
	"strings"
	"time"

	"crosslab/pkg/genetics"
	"crosslab/pkg/stats"
)

// ExperimentParams carries the caller-supplied inputs of a new experiment.
type ExperimentParams struct {
	ID            string
	Name          string
	Generation    string
	Parent1       string
	Parent2       string
	Alleles       genetics.Alleles
	TotalExpected int
	Notes         string
}

// NewExperiment validates params and returns an experiment in StateCreated.
// Parent strings are stored normalised.
func NewExperiment(p ExperimentParams, now time.Time) (Experiment, error) {
	e := Experiment{
		ID:            p.ID,
		Name:          strings.TrimSpace(p.Name),
		Generation:    strings.TrimSpace(p.Generation),
		CreatedAt:     now,
		UpdatedAt:     now,
		Parent1:       p.Parent1,
		Parent2:       p.Parent2,
		Alleles:       p.Alleles.Clone(),
		TotalExpected: p.TotalExpected,
		Notes:         p.Notes,
	}
	p1, p2, err := e.Parents()
	if err != nil {
		return Experiment{}, err
	}
	e.Parent1, e.Parent2 = p1.String(), p2.String()
	if err := e.validateInputs(p1, p2); err != nil {
		return Experiment{}, err
	}
	return e, nil
}

// Parents parses the stored parent genotype strings.
func (e Experiment) Parents() (genetics.Genotype, genetics.Genotype, error) {
	p1, err := genetics.ParseGenotype(e.Parent1)
	if err != nil {
		return genetics.Genotype{}, genetics.Genotype{}, ValidationError{ExperimentID: e.ID, Field: "parent1", Err: err}
	}
	p2, err := genetics.ParseGenotype(e.Parent2)
	if err != nil {
		return genetics.Genotype{}, genetics.Genotype{}, ValidationError{ExperimentID: e.ID, Field: "parent2", Err: err}
	}
	return p1, p2, nil
}

func (e Experiment) validateInputs(p1, p2 genetics.Genotype) error {
	if err := e.Alleles.Validate(); err != nil {
		return ValidationError{ExperimentID: e.ID, Field: "allele_definitions", Err: err}
	}
	if p1.Len() != p2.Len() {
		return ValidationError{ExperimentID: e.ID, Field: "parents", Err: genetics.ArityMismatchError{Left: p1.Len(), Right: p2.Len()}}
	}
	for _, g := range []genetics.Genotype{p1, p2} {
		for _, sym := range g.Symbols() {
			if _, ok := e.Alleles.Lookup(sym); !ok {
				return ValidationError{ExperimentID: e.ID, Field: "allele_definitions", Err: genetics.UnknownAlleleError{Symbol: sym, Pair: g.String()}}
			}
		}
	}
	if e.TotalExpected <= 0 {
		return ValidationError{ExperimentID: e.ID, Field: "total_expected", Err: genetics.ErrNonPositiveTotal}
	}
	return nil
}

// State derives the lifecycle state from which results are present.
func (e Experiment) State() LifecycleState {
	switch {
	case e.ChiSquare != nil:
		return StateAnalyzed
	case e.ObservedCounts != nil:
		return StateObservationsRecorded
	case e.ExpectedCounts != nil:
		return StateRatiosComputed
	default:
		return StateCreated
	}
}

// IsComplete reports whether observations have been recorded.
func (e Experiment) IsComplete() bool { return e.ObservedCounts != nil }

// Status returns "Complete" once observations exist, otherwise "Pending".
func (e Experiment) Status() string {
	if e.IsComplete() {
		return "Complete"
	}
	return "Pending"
}

// Offspring crosses the parents and returns every offspring cell.
func (e Experiment) Offspring() ([]string, error) {
	p1, p2, err := e.Parents()
	if err != nil {
		return nil, err
	}
	return genetics.Cross(p1, p2, e.Alleles)
}

// Ratios recomputes the phenotype ratios of the cross.
func (e Experiment) Ratios() (map[genetics.PhenotypeID]genetics.Ratio, error) {
	offspring, err := e.Offspring()
	if err != nil {
		return nil, err
	}
	return genetics.PhenotypeRatios(offspring, e.Alleles)
}

// ComputeExpected derives phenotype categories and expected counts from the
// cross. Observations and any analysis are discarded because they were made
// against the previous categories.
func (e *Experiment) ComputeExpected(now time.Time) error {
	ratios, err := e.Ratios()
	if err != nil {
		return err
	}
	expected, err := genetics.ExpectedCounts(ratios, e.TotalExpected)
	if err != nil {
		return err
	}
	e.Phenotypes = genetics.Phenotypes(ratios)
	e.ExpectedCounts = expected
	e.ObservedCounts = nil
	e.ChiSquare = nil
	e.UpdatedAt = now
	return nil
}

// RecordObservations stores observed counts, replacing earlier ones. The
// categories must match the expected categories exactly. A previous
// analysis is discarded.
func (e *Experiment) RecordObservations(observed map[genetics.PhenotypeID]int, now time.Time) error {
	if e.ExpectedCounts == nil {
		return TransitionError{Operation: "record observations", From: e.State()}
	}
	if err := stats.CheckKeySets(e.ExpectedCounts, observed); err != nil {
		return err
	}
	for _, id := range genetics.SortedIDs(observed) {
		if n := observed[id]; n < 0 {
			return stats.NegativeCountError{Category: string(id), Observed: n}
		}
	}
	e.ObservedCounts = maps.Clone(observed)
	e.ChiSquare = nil
	e.UpdatedAt = now
	return nil
}

// Analyze runs the chi-square test at alpha. On failure the experiment,
// including any earlier result, is left unchanged.
func (e *Experiment) Analyze(alpha float64, now time.Time) error {
	if e.ObservedCounts == nil {
		return TransitionError{Operation: "analyze", From: e.State()}
	}
	res, err := stats.ChiSquareTest(e.ExpectedCounts, e.ObservedCounts, alpha)
	if err != nil {
		return err
	}
	e.ChiSquare = &res
	e.UpdatedAt = now
	return nil
}

// UpdateTotalExpected changes the sample size. Expected counts already
// derived are recomputed, which discards observations and analysis.
func (e *Experiment) UpdateTotalExpected(total int, now time.Time) error {
	if total <= 0 {
		return ValidationError{ExperimentID: e.ID, Field: "total_expected", Err: genetics.ErrNonPositiveTotal}
	}
	prev := e.TotalExpected
	e.TotalExpected = total
	if e.ExpectedCounts == nil {
		e.UpdatedAt = now
		return nil
	}
	if err := e.ComputeExpected(now); err != nil {
		e.TotalExpected = prev
		return err
	}
	return nil
}

// SetNotes replaces the free-text notes.
func (e *Experiment) SetNotes(notes string, now time.Time) {
	e.Notes = notes
	e.UpdatedAt = now
}

// ResolveObservations maps observation labels to phenotype IDs. A label may
// be a phenotype ID or a description (case-insensitive); descriptions
// shared by several categories must be given by ID. Each category may be
// named by at most one label.
func (e Experiment) ResolveObservations(labelled map[string]int) (map[genetics.PhenotypeID]int, error) {
	byDesc := make(map[string][]genetics.PhenotypeID, len(e.Phenotypes))
	for _, id := range genetics.SortedIDs(e.Phenotypes) {
		key := strings.ToLower(e.Phenotypes[id])
		byDesc[key] = append(byDesc[key], id)
	}
	labels := make([]string, 0, len(labelled))
	for label := range labelled {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	out := make(map[genetics.PhenotypeID]int, len(labelled))
	seen := make(map[genetics.PhenotypeID]string, len(labelled))
	for _, label := range labels {
		var id genetics.PhenotypeID
		if _, ok := e.ExpectedCounts[genetics.PhenotypeID(label)]; ok {
			id = genetics.PhenotypeID(label)
		} else {
			ids := byDesc[strings.ToLower(strings.TrimSpace(label))]
			switch len(ids) {
			case 0:
				return nil, UnknownPhenotypeError{Label: label}
			case 1:
				id = ids[0]
			default:
				return nil, AmbiguousPhenotypeError{Description: label}
			}
		}
		if first, dup := seen[id]; dup {
			return nil, DuplicatePhenotypeError{ID: id, Labels: []string{first, label}}
		}
		seen[id] = label
		out[id] = labelled[label]
	}
	return out, nil
}

// Validate checks the structural invariants of a stored experiment.
func (e Experiment) Validate() error {
	p1, p2, err := e.Parents()
	if err != nil {
		return err
	}
	if err := e.validateInputs(p1, p2); err != nil {
		return err
	}
	if e.ObservedCounts != nil {
		if e.ExpectedCounts == nil {
			return ValidationError{ExperimentID: e.ID, Field: "observed_counts", Err: errors.New("recorded without expected counts")}
		}
		if err := stats.CheckKeySets(e.ExpectedCounts, e.ObservedCounts); err != nil {
			return ValidationError{ExperimentID: e.ID, Field: "observed_counts", Err: err}
		}
	}
	if e.ChiSquare != nil && e.ObservedCounts == nil {
		return ValidationError{ExperimentID: e.ID, Field: "chi_square_result", Err: errors.New("present without observations")}
	}
	for id := range e.Phenotypes {
		if _, ok := e.ExpectedCounts[id]; !ok {
			return ValidationError{ExperimentID: e.ID, Field: "phenotypes", Err: errors.New("category " + string(id) + " has no expected count")}
		}
	}
	return nil
}

// Clone returns a deep copy.
func (e Experiment) Clone() Experiment {
	cp := e
	cp.Alleles = e.Alleles.Clone()
	cp.Phenotypes = maps.Clone(e.Phenotypes)
	cp.ExpectedCounts = maps.Clone(e.ExpectedCounts)
	cp.ObservedCounts = maps.Clone(e.ObservedCounts)
	if e.ChiSquare != nil {
		res := *e.ChiSquare
		if res.Categories != nil {
			res.Categories = append([]stats.Contribution[genetics.PhenotypeID](nil), res.Categories...)
		}
		cp.ChiSquare = &res
	}
	return cp
}
