package genetics

import (
	"fmt"
	"maps"
	"math"
	"slices"
)

// Ratio is the share of one category among all offspring cells.
type Ratio struct {
	Description string  `json:"description,omitempty"`
	Count       int     `json:"count"`
	Total       int     `json:"total"`
	Ratio       float64 `json:"ratio"`
	Fraction    string  `json:"fraction"`
}

func newRatio(description string, count, total int) Ratio {
	return Ratio{
		Description: description,
		Count:       count,
		Total:       total,
		Ratio:       float64(count) / float64(total),
		Fraction:    fmt.Sprintf("%d/%d", count, total),
	}
}

// PhenotypeRatios tallies offspring genotypes by phenotype. The ratios of
// the returned categories sum to 1.
func PhenotypeRatios(offspring []string, alleles Alleles) (map[PhenotypeID]Ratio, error) {
	if len(offspring) == 0 {
		return nil, ErrNoOffspring
	}
	counts := make(map[PhenotypeID]int)
	descriptions := make(map[PhenotypeID]string)
	for _, genotype := range offspring {
		ph, err := GenotypeToPhenotype(genotype, alleles)
		if err != nil {
			return nil, err
		}
		counts[ph.ID]++
		descriptions[ph.ID] = ph.Description
	}
	out := make(map[PhenotypeID]Ratio, len(counts))
	for id, n := range counts {
		out[id] = newRatio(descriptions[id], n, len(offspring))
	}
	return out, nil
}

// GenotypeRatios tallies offspring by genotype string.
func GenotypeRatios(offspring []string) map[string]Ratio {
	counts := make(map[string]int)
	for _, g := range offspring {
		counts[g]++
	}
	out := make(map[string]Ratio, len(counts))
	for g, n := range counts {
		out[g] = newRatio("", n, len(offspring))
	}
	return out
}

// ExpectedCounts scales ratios to a sample of total offspring, rounded to one
// decimal place. Rounding is not redistributed, so the values may sum to
// total within 0.1 per category.
func ExpectedCounts(ratios map[PhenotypeID]Ratio, total int) (map[PhenotypeID]float64, error) {
	if total <= 0 {
		return nil, ErrNonPositiveTotal
	}
	out := make(map[PhenotypeID]float64, len(ratios))
	for id, r := range ratios {
		out[id] = RoundTo(r.Ratio*float64(total), 1)
	}
	return out, nil
}

// Phenotypes returns the description of every category in ratios.
func Phenotypes(ratios map[PhenotypeID]Ratio) map[PhenotypeID]string {
	out := make(map[PhenotypeID]string, len(ratios))
	for id, r := range ratios {
		out[id] = r.Description
	}
	return out
}

// AlleleFrequencies returns the share of each allele symbol across all gene
// copies in offspring.
func AlleleFrequencies(offspring []string) (map[string]float64, error) {
	counts := make(map[string]int)
	total := 0
	for _, s := range offspring {
		g, err := ParseGenotype(s)
		if err != nil {
			return nil, err
		}
		for _, p := range g.pairs {
			counts[p.First]++
			counts[p.Second]++
			total += 2
		}
	}
	if total == 0 {
		return nil, ErrNoOffspring
	}
	out := make(map[string]float64, len(counts))
	for sym, n := range counts {
		out[sym] = float64(n) / float64(total)
	}
	return out, nil
}

// SortedIDs returns the keys of m in ascending order.
func SortedIDs[V any](m map[PhenotypeID]V) []PhenotypeID {
	return slices.Sorted(maps.Keys(m))
}

// RoundTo rounds x half away from zero to the given number of decimal places.
func RoundTo(x float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(x*scale) / scale
}
