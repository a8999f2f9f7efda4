// Package stats implements the chi-square goodness-of-fit test used to
// compare observed offspring counts against Mendelian expectations.
package stats

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultAlpha is the conventional significance level.
const DefaultAlpha = 0.05

const (
	// InterpretationPassed is reported when observations fit the expected ratios.
	InterpretationPassed = "Your observed data matches the expected Mendelian ratios. " +
		"There is no statistically significant deviation."
	// InterpretationFailed is reported when observations deviate significantly.
	InterpretationFailed = "Your observed data significantly deviates from expected ratios. " +
		"This may indicate: counting error, selection bias, or different " +
		"genetic mechanism than predicted."
)

var (
	// ErrInvalidAlpha is returned when alpha is outside (0, 1).
	ErrInvalidAlpha = errors.New("stats: alpha must be between 0 and 1")
	// ErrTooFewCategories is returned when fewer than two categories leave no degrees of freedom.
	ErrTooFewCategories = errors.New("stats: chi-square test needs at least two categories")
)

// KeySetMismatchError reports expected and observed maps over different categories.
type KeySetMismatchError struct {
	Missing []string // expected but not observed
	Extra   []string // observed but not expected
}

func (e KeySetMismatchError) Error() string {
	return fmt.Sprintf("stats: expected and observed categories differ (missing %v, extra %v)", e.Missing, e.Extra)
}

// ZeroExpectedCountError reports a category whose expected count is not
// positive. Such categories are rejected rather than dropped from the sum.
type ZeroExpectedCountError struct {
	Category string
	Expected float64
}

func (e ZeroExpectedCountError) Error() string {
	return fmt.Sprintf("stats: expected count for %s is %v; must be positive", e.Category, e.Expected)
}

// NegativeCountError reports a negative observed count.
type NegativeCountError struct {
	Category string
	Observed int
}

func (e NegativeCountError) Error() string {
	return fmt.Sprintf("stats: observed count for %s is negative (%d)", e.Category, e.Observed)
}

// Contribution is one category's share of the chi-square statistic.
type Contribution[K cmp.Ordered] struct {
	Category     K       `json:"category"`
	Expected     float64 `json:"expected"`
	Observed     int     `json:"observed"`
	Deviation    float64 `json:"deviation"`
	Contribution float64 `json:"contribution"`
}

// Result is the outcome of a chi-square goodness-of-fit test.
type Result[K cmp.Ordered] struct {
	ChiSquare      float64           `json:"chi_square"`
	PValue         float64           `json:"p_value"`
	DegreesFreedom int               `json:"degrees_freedom"`
	CriticalValue  float64           `json:"critical_value"`
	Alpha          float64           `json:"alpha"`
	Passed         bool              `json:"passed"`
	Interpretation string            `json:"interpretation"`
	Categories     []Contribution[K] `json:"categories,omitempty"`
}

// Rounded returns a copy with statistic, p-value, critical value and
// contributions rounded to three decimals for display.
func (r Result[K]) Rounded() Result[K] {
	out := r
	out.ChiSquare = round3(r.ChiSquare)
	out.PValue = round3(r.PValue)
	out.CriticalValue = round3(r.CriticalValue)
	out.Categories = make([]Contribution[K], len(r.Categories))
	for i, c := range r.Categories {
		c.Deviation = round3(c.Deviation)
		c.Contribution = round3(c.Contribution)
		out.Categories[i] = c
	}
	return out
}

func round3(x float64) float64 { return math.Round(x*1000) / 1000 }

// Interpret returns the fixed message for a pass/fail verdict.
func Interpret(passed bool) string {
	if passed {
		return InterpretationPassed
	}
	return InterpretationFailed
}

// ChiSquareTest compares observed counts against expected counts over the
// same categories. The statistic is sum((o-e)^2/e) with len(categories)-1
// degrees of freedom; the test passes when the statistic is below the
// (1-alpha) quantile, which is equivalent to p > alpha.
func ChiSquareTest[K cmp.Ordered](expected map[K]float64, observed map[K]int, alpha float64) (Result[K], error) {
	if !(alpha > 0 && alpha < 1) {
		return Result[K]{}, ErrInvalidAlpha
	}
	if err := CheckKeySets(expected, observed); err != nil {
		return Result[K]{}, err
	}
	categories := slices.Sorted(maps.Keys(expected))
	if len(categories) < 2 {
		return Result[K]{}, ErrTooFewCategories
	}

	res := Result[K]{
		DegreesFreedom: len(categories) - 1,
		Alpha:          alpha,
		Categories:     make([]Contribution[K], 0, len(categories)),
	}
	for _, k := range categories {
		e, o := expected[k], observed[k]
		if !(e > 0) {
			return Result[K]{}, ZeroExpectedCountError{Category: fmt.Sprint(k), Expected: e}
		}
		if o < 0 {
			return Result[K]{}, NegativeCountError{Category: fmt.Sprint(k), Observed: o}
		}
		dev := float64(o) - e
		term := dev * dev / e
		res.ChiSquare += term
		res.Categories = append(res.Categories, Contribution[K]{
			Category:     k,
			Expected:     e,
			Observed:     o,
			Deviation:    dev,
			Contribution: term,
		})
	}

	dist := distuv.ChiSquared{K: float64(res.DegreesFreedom)}
	res.PValue = dist.Survival(res.ChiSquare)
	res.CriticalValue = dist.Quantile(1 - alpha)
	res.Passed = res.ChiSquare < res.CriticalValue
	res.Interpretation = Interpret(res.Passed)
	return res, nil
}

// CheckKeySets returns a KeySetMismatchError unless expected and observed
// cover exactly the same categories.
func CheckKeySets[K cmp.Ordered](expected map[K]float64, observed map[K]int) error {
	var mismatch KeySetMismatchError
	for _, k := range slices.Sorted(maps.Keys(expected)) {
		if _, ok := observed[k]; !ok {
			mismatch.Missing = append(mismatch.Missing, fmt.Sprint(k))
		}
	}
	for _, k := range slices.Sorted(maps.Keys(observed)) {
		if _, ok := expected[k]; !ok {
			mismatch.Extra = append(mismatch.Extra, fmt.Sprint(k))
		}
	}
	if len(mismatch.Missing) > 0 || len(mismatch.Extra) > 0 {
		return mismatch
	}
	return nil
}
