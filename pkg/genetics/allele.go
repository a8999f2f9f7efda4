package genetics

import (
	"sort"
	"unicode/utf8"
)

// Allele is one variant of a gene. Dominant is authoritative; the upper/lower
// case convention for symbols is never enforced.
type Allele struct {
	Symbol      string `json:"symbol" yaml:"symbol"`
	Description string `json:"description" yaml:"description"`
	Dominant    bool   `json:"is_dominant" yaml:"dominant"`
}

// Alleles maps an allele symbol to its definition. Both parents of a cross
// share one Alleles value.
type Alleles map[string]Allele

// NewAlleles indexes the supplied definitions by symbol.
func NewAlleles(defs ...Allele) (Alleles, error) {
	out := make(Alleles, len(defs))
	for _, def := range defs {
		if _, dup := out[def.Symbol]; dup {
			return nil, InvalidAlleleError{Key: def.Symbol, Reason: "defined more than once"}
		}
		out[def.Symbol] = def
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// Validate checks that every key is a single rune matching its allele symbol.
func (a Alleles) Validate() error {
	for _, key := range a.Symbols() {
		def := a[key]
		if utf8.RuneCountInString(key) != 1 {
			return InvalidAlleleError{Key: key, Reason: "symbol must be a single character"}
		}
		if def.Symbol != key {
			return InvalidAlleleError{Key: key, Reason: "symbol " + def.Symbol + " does not match key"}
		}
	}
	return nil
}

// Lookup returns the definition for symbol.
func (a Alleles) Lookup(symbol string) (Allele, bool) {
	def, ok := a[symbol]
	return def, ok
}

// Symbols returns the defined symbols in sorted order.
func (a Alleles) Symbols() []string {
	out := make([]string, 0, len(a))
	for k := range a {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (a Alleles) Clone() Alleles {
	if a == nil {
		return nil
	}
	out := make(Alleles, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

func (a Alleles) dominant(symbol string) bool {
	def, ok := a[symbol]
	return ok && def.Dominant
}
