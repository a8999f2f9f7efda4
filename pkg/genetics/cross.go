package genetics

import (
	"strings"
	"unicode"
)

// PhenotypeID identifies a phenotype category by the expressed allele symbol
// at each gene position ("EW", "ew"). Two categories whose descriptions
// happen to render the same text still get distinct IDs.
type PhenotypeID string

// Phenotype is the observable expression of a genotype.
type Phenotype struct {
	ID          PhenotypeID `json:"id"`
	Description string      `json:"description"`
}

// Cross enumerates every offspring genotype of p1 x p2: one entry per pair
// of gametes, so the result is a multiset of length
// len(p1.Gametes()) * len(p2.Gametes()). Each gene pair of an offspring is
// written dominant allele first.
func Cross(p1, p2 Genotype, alleles Alleles) ([]string, error) {
	if p1.Len() != p2.Len() {
		return nil, ArityMismatchError{Left: p1.Len(), Right: p2.Len()}
	}
	left := p1.gameteSymbols()
	right := p2.gameteSymbols()
	out := make([]string, 0, len(left)*len(right))
	for _, g1 := range left {
		for _, g2 := range right {
			out = append(out, combine(g1, g2, alleles))
		}
	}
	return out, nil
}

// CombineGametes joins two gamete strings position by position into an
// offspring genotype such as "Ee Ww".
func CombineGametes(gamete1, gamete2 string, alleles Alleles) (string, error) {
	g1 := splitSymbols(gamete1)
	g2 := splitSymbols(gamete2)
	if len(g1) != len(g2) {
		return "", ArityMismatchError{Left: len(g1), Right: len(g2)}
	}
	return combine(g1, g2, alleles), nil
}

func combine(g1, g2 []string, alleles Alleles) string {
	var b strings.Builder
	for i := range g1 {
		if i > 0 {
			b.WriteByte(' ')
		}
		first, second := orderPair(g1[i], g2[i], alleles)
		b.WriteString(first)
		b.WriteString(second)
	}
	return b.String()
}

// orderPair puts the dominant allele first. When dominance does not decide
// (both or neither dominant, or undefined symbols) identical symbols stay
// as they are and otherwise uppercase sorts before lowercase of the same
// letter, then letters sort alphabetically.
func orderPair(a, b string, alleles Alleles) (string, string) {
	da, db := alleles.dominant(a), alleles.dominant(b)
	switch {
	case da && !db:
		return a, b
	case db && !da:
		return b, a
	case a == b:
		return a, b
	}
	if symbolLess(b, a) {
		return b, a
	}
	return a, b
}

func symbolLess(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la != lb {
		return la < lb
	}
	return isUpper(a) && !isUpper(b)
}

func isUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}

func splitSymbols(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// GenotypeToPhenotype derives the phenotype of a genotype string under
// simple dominance. For each pair the first allele is expressed when it is
// dominant or both symbols match, otherwise the second allele is.
func GenotypeToPhenotype(genotype string, alleles Alleles) (Phenotype, error) {
	g, err := ParseGenotype(genotype)
	if err != nil {
		return Phenotype{}, err
	}
	return g.Phenotype(alleles)
}

// Phenotype derives the phenotype of g under simple dominance.
func (g Genotype) Phenotype(alleles Alleles) (Phenotype, error) {
	var id strings.Builder
	parts := make([]string, 0, len(g.pairs))
	for _, pair := range g.pairs {
		first, ok := alleles.Lookup(pair.First)
		if !ok {
			return Phenotype{}, UnknownAlleleError{Symbol: pair.First, Pair: pair.String()}
		}
		second, ok := alleles.Lookup(pair.Second)
		if !ok {
			return Phenotype{}, UnknownAlleleError{Symbol: pair.Second, Pair: pair.String()}
		}
		expressed := second
		if first.Dominant || pair.First == pair.Second {
			expressed = first
		}
		id.WriteString(expressed.Symbol)
		parts = append(parts, expressed.Description)
	}
	return Phenotype{ID: PhenotypeID(id.String()), Description: strings.Join(parts, ", ")}, nil
}

// PunnettSquare is the gamete grid of a cross: Cells[i][j] is the offspring
// of Rows[i] (parent 1) and Columns[j] (parent 2).
type PunnettSquare struct {
	Rows    []string   `json:"rows"`
	Columns []string   `json:"columns"`
	Cells   [][]string `json:"cells"`
}

// Punnett builds the gamete grid for p1 x p2. Flattening Cells row by row
// gives the same multiset as Cross.
func Punnett(p1, p2 Genotype, alleles Alleles) (PunnettSquare, error) {
	if p1.Len() != p2.Len() {
		return PunnettSquare{}, ArityMismatchError{Left: p1.Len(), Right: p2.Len()}
	}
	left := p1.gameteSymbols()
	right := p2.gameteSymbols()
	sq := PunnettSquare{
		Rows:    make([]string, len(left)),
		Columns: make([]string, len(right)),
		Cells:   make([][]string, len(left)),
	}
	for j, g2 := range right {
		sq.Columns[j] = strings.Join(g2, "")
	}
	for i, g1 := range left {
		sq.Rows[i] = strings.Join(g1, "")
		row := make([]string, len(right))
		for j, g2 := range right {
			row[j] = combine(g1, g2, alleles)
		}
		sq.Cells[i] = row
	}
	return sq, nil
}
