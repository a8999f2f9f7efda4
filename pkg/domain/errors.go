package domain

import (
	"errors"
	"fmt"
	"strings"

	"crosslab/pkg/genetics"
)

// ErrInvalidTransition is returned when an operation is not allowed in the
// experiment's current lifecycle state.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// TransitionError names the operation and state that were rejected.
type TransitionError struct {
	Operation string
	From      LifecycleState
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("%s not allowed in state %s", e.Operation, e.From)
}

// Unwrap lets callers match with errors.Is(err, ErrInvalidTransition).
func (e TransitionError) Unwrap() error { return ErrInvalidTransition }

// ValidationError reports an experiment whose fields break an invariant.
type ValidationError struct {
	ExperimentID string
	Field        string
	Err          error
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("experiment %s: invalid %s: %v", e.ExperimentID, e.Field, e.Err)
}

func (e ValidationError) Unwrap() error { return e.Err }

// AmbiguousPhenotypeError reports a description shared by several categories.
type AmbiguousPhenotypeError struct {
	Description string
}

func (e AmbiguousPhenotypeError) Error() string {
	return fmt.Sprintf("phenotype description %q matches more than one category; use its id", e.Description)
}

// UnknownPhenotypeError reports an observation label matching no category.
type UnknownPhenotypeError struct {
	Label string
}

func (e UnknownPhenotypeError) Error() string {
	return fmt.Sprintf("phenotype %q is not an expected category", e.Label)
}

// DuplicatePhenotypeError reports several observation labels naming the same
// category, such as its id and its description.
type DuplicatePhenotypeError struct {
	ID     genetics.PhenotypeID
	Labels []string
}

func (e DuplicatePhenotypeError) Error() string {
	return fmt.Sprintf("phenotype %s given more than once (%s)", e.ID, strings.Join(e.Labels, ", "))
}
