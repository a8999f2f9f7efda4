// Package genetics implements the Mendelian cross core: allele definitions,
// genotype parsing, gamete enumeration, offspring generation, phenotype
// derivation under simple dominance, and ratio/expected-count aggregation.
//
// Every function is pure and safe for concurrent use. Nothing bounds the
// number of gene pairs: a genotype with N pairs yields up to 2^N gametes and
// a cross of two such parents up to 4^N offspring cells, so callers that
// accept user input should cap N themselves.
package genetics
