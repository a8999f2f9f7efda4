package domain

import (
	"testing"

	"crosslab/pkg/genetics"
)

func TestGenerationSeriesSkipsIncompleteAndLabels(t *testing.T) {
	complete := func(id, gen string, obs map[genetics.PhenotypeID]int) Experiment {
		return Experiment{
			ID:             id,
			Generation:     gen,
			Phenotypes:     map[genetics.PhenotypeID]string{"E": "Red", "e": "White"},
			ObservedCounts: obs,
		}
	}
	series := GenerationSeries([]Experiment{
		complete("a", "F1", map[genetics.PhenotypeID]int{"E": 40, "e": 0}),
		{ID: "pending"},
		complete("c", "", map[genetics.PhenotypeID]int{"E": 30, "e": 10}),
	})
	if len(series) != 2 {
		t.Fatalf("expected 2 points, got %d", len(series))
	}
	if series[0].Label != "F1" || series[0].Percentages["E"] != 100 {
		t.Fatalf("unexpected first point %+v", series[0])
	}
	if series[1].Label != "Gen 3" || series[1].Total != 40 || series[1].Percentages["e"] != 25 {
		t.Fatalf("unexpected second point %+v", series[1])
	}
	ids := SeriesPhenotypes(series)
	if len(ids) != 2 || ids[0] != "E" || ids[1] != "e" {
		t.Fatalf("unexpected phenotype union %v", ids)
	}
}

func TestGenerationSeriesZeroTotal(t *testing.T) {
	series := GenerationSeries([]Experiment{{ID: "z", ObservedCounts: map[genetics.PhenotypeID]int{"E": 0}}})
	if len(series) != 1 || series[0].Percentages["E"] != 0 {
		t.Fatalf("expected zero percentage, got %+v", series)
	}
}
