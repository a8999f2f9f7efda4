package domain

import (
	"fmt"

	"crosslab/pkg/genetics"
)

// GenerationPoint is one complete experiment's observed phenotype
// distribution, labelled for a multi-generation comparison.
type GenerationPoint struct {
	Label        string                           `json:"label"`
	ExperimentID string                           `json:"experiment_id"`
	Total        int                              `json:"total"`
	Percentages  map[genetics.PhenotypeID]float64 `json:"percentages"`
	Descriptions map[genetics.PhenotypeID]string  `json:"descriptions"`
}

// GenerationSeries turns experiments, in the order given, into comparison
// points. Experiments without observations are skipped but still consume
// their position, so an unlabelled experiment at index i is called
// "Gen i+1".
func GenerationSeries(experiments []Experiment) []GenerationPoint {
	var out []GenerationPoint
	for i, exp := range experiments {
		if !exp.IsComplete() {
			continue
		}
		label := exp.Generation
		if label == "" {
			label = fmt.Sprintf("Gen %d", i+1)
		}
		total := 0
		for _, n := range exp.ObservedCounts {
			total += n
		}
		point := GenerationPoint{
			Label:        label,
			ExperimentID: exp.ID,
			Total:        total,
			Percentages:  make(map[genetics.PhenotypeID]float64, len(exp.ObservedCounts)),
			Descriptions: make(map[genetics.PhenotypeID]string, len(exp.ObservedCounts)),
		}
		for id, n := range exp.ObservedCounts {
			pct := 0.0
			if total > 0 {
				pct = float64(n) / float64(total) * 100
			}
			point.Percentages[id] = pct
			point.Descriptions[id] = exp.Phenotypes[id]
		}
		out = append(out, point)
	}
	return out
}

// SeriesPhenotypes returns the union of phenotype IDs across points, sorted.
func SeriesPhenotypes(points []GenerationPoint) []genetics.PhenotypeID {
	seen := make(map[genetics.PhenotypeID]string)
	for _, p := range points {
		for id, desc := range p.Descriptions {
			seen[id] = desc
		}
	}
	return genetics.SortedIDs(seen)
}
