package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"crosslab/internal/core"
	"crosslab/pkg/genetics"
)

// experimentDefinition is one YAML document of an experiment file. Several
// experiments may share a file as separate documents.
type experimentDefinition struct {
	ID            string            `yaml:"id"`
	Name          string            `yaml:"name"`
	Generation    string            `yaml:"generation"`
	Parent1       string            `yaml:"parent1"`
	Parent2       string            `yaml:"parent2"`
	TotalExpected int               `yaml:"total_expected"`
	Notes         string            `yaml:"notes"`
	Alleles       []genetics.Allele `yaml:"alleles"`
	Observed      map[string]int    `yaml:"observed,omitempty"`
}

func (d experimentDefinition) params() (core.ExperimentParams, error) {
	alleles, err := genetics.NewAlleles(d.Alleles...)
	if err != nil {
		return core.ExperimentParams{}, err
	}
	return core.ExperimentParams{
		ID:            d.ID,
		Name:          d.Name,
		Generation:    d.Generation,
		Parent1:       d.Parent1,
		Parent2:       d.Parent2,
		Alleles:       alleles,
		TotalExpected: d.TotalExpected,
		Notes:         d.Notes,
	}, nil
}

func loadDefinitionFile(path string) ([]experimentDefinition, error) {
	clean := filepath.Clean(path)
	f, err := os.Open(clean) // #nosec G304 -- operator-supplied definition file
	if err != nil {
		return nil, fmt.Errorf("open definitions: %w", err)
	}
	defer func() { _ = f.Close() }()
	defs, err := decodeDefinitions(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", clean, err)
	}
	return defs, nil
}

func decodeDefinitions(r io.Reader) ([]experimentDefinition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var defs []experimentDefinition
	for {
		var def experimentDefinition
		err := dec.Decode(&def)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode document %d: %w", len(defs)+1, err)
		}
		defs = append(defs, def)
	}
	if len(defs) == 0 {
		return nil, errors.New("no experiment definitions found")
	}
	return defs, nil
}

// parseAlleleSpec reads "E:Red:dominant,e:White:recessive". When the
// dominance part is omitted an upper-case symbol is taken as dominant.
func parseAlleleSpec(spec string) (genetics.Alleles, error) {
	var defs []genetics.Allele
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("allele %q: want symbol:description[:dominant|recessive]", entry)
		}
		def := genetics.Allele{
			Symbol:      strings.TrimSpace(parts[0]),
			Description: strings.TrimSpace(parts[1]),
		}
		if len(parts) == 3 {
			switch strings.ToLower(strings.TrimSpace(parts[2])) {
			case "dominant", "d":
				def.Dominant = true
			case "recessive", "r":
			default:
				return nil, fmt.Errorf("allele %q: unknown dominance %q", entry, parts[2])
			}
		} else {
			for _, r := range def.Symbol {
				def.Dominant = unicode.IsUpper(r)
			}
		}
		defs = append(defs, def)
	}
	if len(defs) == 0 {
		return nil, errors.New("no alleles given")
	}
	return genetics.NewAlleles(defs...)
}

// parseCounts reads label=count arguments.
func parseCounts(args []string) (map[string]int, error) {
	if len(args) == 0 {
		return nil, errors.New("no counts given")
	}
	out := make(map[string]int, len(args))
	for _, arg := range args {
		label, value, ok := strings.Cut(arg, "=")
		label = strings.TrimSpace(label)
		if !ok || label == "" {
			return nil, fmt.Errorf("count %q: want label=count", arg)
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("count %q: %w", arg, err)
		}
		if _, dup := out[label]; dup {
			return nil, fmt.Errorf("count for %q given twice", label)
		}
		out[label] = n
	}
	return out, nil
}
