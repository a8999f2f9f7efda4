// Package domain defines the experiment aggregate, its lifecycle, and the
// persistence and rule evaluation contracts used by crosslab.
package domain

import (
	"time"

	"crosslab/pkg/genetics"
	"crosslab/pkg/stats"
)

// EntityType identifies the type of record stored in the domain.
type EntityType string

// EntityExperiment identifies an experiment record.
const EntityExperiment EntityType = "experiment"

// LifecycleState is the position of an experiment in its workflow.
type LifecycleState string

// Experiment lifecycle states, in workflow order.
const (
	StateCreated              LifecycleState = "created"
	StateRatiosComputed       LifecycleState = "ratios_computed"
	StateObservationsRecorded LifecycleState = "observations_recorded"
	StateAnalyzed             LifecycleState = "analyzed"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// AnalysisResult is a chi-square result keyed by phenotype.
type AnalysisResult = stats.Result[genetics.PhenotypeID]

// Experiment binds two parents, their allele definitions, expected and
// observed offspring counts, and the fit analysis into one record. Parent
// genotypes are stored as their source strings; parsed forms are derived on
// demand.
type Experiment struct {
	ID             string                           `json:"experiment_id"`
	Name           string                           `json:"name"`
	Generation     string                           `json:"generation,omitempty"`
	CreatedAt      time.Time                        `json:"date_created"`
	UpdatedAt      time.Time                        `json:"date_modified"`
	Parent1        string                           `json:"parent1"`
	Parent2        string                           `json:"parent2"`
	Alleles        genetics.Alleles                 `json:"allele_definitions"`
	TotalExpected  int                              `json:"total_expected"`
	Phenotypes     map[genetics.PhenotypeID]string  `json:"phenotypes,omitempty"`
	ExpectedCounts map[genetics.PhenotypeID]float64 `json:"expected_counts"`
	ObservedCounts map[genetics.PhenotypeID]int     `json:"observed_counts"`
	ChiSquare      *AnalysisResult                  `json:"chi_square_result"`
	Notes          string                           `json:"notes"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Message
		}
	}
	return "transaction blocked by rules"
}
