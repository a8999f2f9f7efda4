package genetics

import "testing"

func eyeAlleles(t *testing.T) Alleles {
	t.Helper()
	alleles, err := NewAlleles(
		Allele{Symbol: "E", Description: "Red", Dominant: true},
		Allele{Symbol: "e", Description: "White"},
	)
	if err != nil {
		t.Fatalf("alleles: %v", err)
	}
	return alleles
}

func eyeWingAlleles(t *testing.T) Alleles {
	t.Helper()
	alleles, err := NewAlleles(
		Allele{Symbol: "E", Description: "Red", Dominant: true},
		Allele{Symbol: "e", Description: "White"},
		Allele{Symbol: "W", Description: "Normal", Dominant: true},
		Allele{Symbol: "w", Description: "Vestigial"},
	)
	if err != nil {
		t.Fatalf("alleles: %v", err)
	}
	return alleles
}
