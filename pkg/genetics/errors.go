package genetics

import (
	"errors"
	"fmt"
)

var (
	// ErrNoOffspring is returned when ratios are requested for an empty offspring list.
	ErrNoOffspring = errors.New("genetics: no offspring to tally")
	// ErrNonPositiveTotal is returned when expected counts are requested for a total <= 0.
	ErrNonPositiveTotal = errors.New("genetics: total expected must be positive")
)

// FormatError reports a malformed genotype expression.
type FormatError struct {
	Input    string
	Token    string
	Position int
}

func (e FormatError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("genetics: genotype %q has no gene pairs", e.Input)
	}
	return fmt.Sprintf("genetics: gene %d of %q must have exactly 2 alleles, got %q", e.Position+1, e.Input, e.Token)
}

// ArityMismatchError reports parents (or gametes) with differing gene counts.
type ArityMismatchError struct {
	Left  int
	Right int
}

func (e ArityMismatchError) Error() string {
	return fmt.Sprintf("genetics: gene count mismatch between parents (%d vs %d)", e.Left, e.Right)
}

// UnknownAlleleError reports a symbol with no allele definition.
type UnknownAlleleError struct {
	Symbol string
	Pair   string
}

func (e UnknownAlleleError) Error() string {
	return fmt.Sprintf("genetics: allele definition missing for %q in pair %q", e.Symbol, e.Pair)
}

// InvalidAlleleError reports an allele definition that cannot be used.
type InvalidAlleleError struct {
	Key    string
	Reason string
}

func (e InvalidAlleleError) Error() string {
	return fmt.Sprintf("genetics: allele %q: %s", e.Key, e.Reason)
}
