package genetics

import (
	"sort"
	"strings"
)

// GenePair holds the two allele symbols of one gene. Order is as parsed;
// only cross output is canonicalised.
type GenePair struct {
	First  string
	Second string
}

// String renders the pair as its two symbols.
func (p GenePair) String() string { return p.First + p.Second }

// Heterozygous reports whether the two symbols differ.
func (p GenePair) Heterozygous() bool { return p.First != p.Second }

// Genotype is an ordered, immutable sequence of gene pairs. Positions are
// the only link between the genes of two parents.
type Genotype struct {
	source string
	pairs  []GenePair
}

// ParseGenotype parses a whitespace separated list of two-character gene
// tokens such as "Ee Ww".
func ParseGenotype(s string) (Genotype, error) {
	tokens := strings.Fields(s)
	if len(tokens) == 0 {
		return Genotype{}, FormatError{Input: s}
	}
	pairs := make([]GenePair, 0, len(tokens))
	for i, tok := range tokens {
		pair, ok := splitPair(tok)
		if !ok {
			return Genotype{}, FormatError{Input: s, Token: tok, Position: i}
		}
		pairs = append(pairs, pair)
	}
	return Genotype{source: strings.Join(tokens, " "), pairs: pairs}, nil
}

// MustParseGenotype is ParseGenotype for literals known to be valid.
func MustParseGenotype(s string) Genotype {
	g, err := ParseGenotype(s)
	if err != nil {
		panic(err)
	}
	return g
}

func splitPair(tok string) (GenePair, bool) {
	runes := []rune(tok)
	if len(runes) != 2 {
		return GenePair{}, false
	}
	return GenePair{First: string(runes[0]), Second: string(runes[1])}, true
}

// String returns the normalised source expression.
func (g Genotype) String() string { return g.source }

// Len returns the number of gene pairs.
func (g Genotype) Len() int { return len(g.pairs) }

// Pairs returns a copy of the gene pairs.
func (g Genotype) Pairs() []GenePair {
	out := make([]GenePair, len(g.pairs))
	copy(out, g.pairs)
	return out
}

// Symbols returns every allele symbol used by the genotype, sorted and deduplicated.
func (g Genotype) Symbols() []string {
	seen := make(map[string]struct{}, 2*len(g.pairs))
	for _, p := range g.pairs {
		seen[p.First] = struct{}{}
		seen[p.Second] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Gametes enumerates the distinct haploid combinations the genotype can
// produce, one allele per gene, in sorted order. Its length is at most 2^N
// and equals 2^N only when every pair is heterozygous.
func (g Genotype) Gametes() []string {
	sets := g.gameteSymbols()
	out := make([]string, len(sets))
	for i, set := range sets {
		out[i] = strings.Join(set, "")
	}
	return out
}

// gameteSymbols returns each gamete as one symbol per gene position, sorted
// by the joined form. A homozygous pair contributes a single choice, so the
// product never holds duplicates.
func (g Genotype) gameteSymbols() [][]string {
	if len(g.pairs) == 0 {
		return nil
	}
	partial := [][]string{{}}
	for _, p := range g.pairs {
		choices := []string{p.First}
		if p.Heterozygous() {
			choices = append(choices, p.Second)
		}
		next := make([][]string, 0, len(partial)*len(choices))
		for _, prefix := range partial {
			for _, c := range choices {
				combo := make([]string, len(prefix), len(prefix)+1)
				copy(combo, prefix)
				next = append(next, append(combo, c))
			}
		}
		partial = next
	}
	sort.Slice(partial, func(i, j int) bool {
		return strings.Join(partial[i], "") < strings.Join(partial[j], "")
	})
	return partial
}
