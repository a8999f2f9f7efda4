// Package reports renders experiments into CSV, JSON and Markdown artifacts
// and writes them to blob storage.
package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode"

	"crosslab/internal/blob"
	"crosslab/pkg/domain"
	"crosslab/pkg/genetics"
)

// Format identifies the encoding of an exported artifact.
type Format string

// Supported artifact formats.
const (
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Artifact describes one report written to blob storage.
type Artifact struct {
	Key         string         `json:"key"`
	Format      Format         `json:"format"`
	ContentType string         `json:"content_type"`
	SizeBytes   int64          `json:"size_bytes"`
	ETag        string         `json:"etag,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ErrNoGenerations is returned when a comparison has no complete experiments.
var ErrNoGenerations = errors.New("reports: no complete experiments to compare")

// Summary is the JSON document written for a single experiment.
type Summary struct {
	Experiment        domain.Experiment         `json:"experiment"`
	State             domain.LifecycleState     `json:"state"`
	Status            string                    `json:"status"`
	GenotypeRatios    map[string]genetics.Ratio `json:"genotype_ratios,omitempty"`
	AlleleFrequencies map[string]float64        `json:"allele_frequencies,omitempty"`
	Analysis          *domain.AnalysisResult    `json:"analysis,omitempty"`
	ExportedAt        time.Time                 `json:"exported_at"`
}

// Exporter writes experiment reports. It only reads the experiments it is
// given.
type Exporter struct {
	store  blob.Store
	now    func() time.Time
	prefix string
}

// Option customises an Exporter.
type Option func(*Exporter)

// WithClock overrides the timestamp source used for artifacts.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) {
		if now != nil {
			e.now = now
		}
	}
}

// WithPrefix places every artifact key under prefix.
func WithPrefix(prefix string) Option {
	return func(e *Exporter) {
		e.prefix = strings.Trim(prefix, "/")
	}
}

// NewExporter constructs an exporter writing to store.
func NewExporter(store blob.Store, opts ...Option) (*Exporter, error) {
	if store == nil {
		return nil, errors.New("reports: blob store is required")
	}
	e := &Exporter{store: store, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// ExportExperiment writes the counts table, JSON summary and Markdown summary
// for exp under experiments/<id>/.
func (e *Exporter) ExportExperiment(ctx context.Context, exp domain.Experiment) ([]Artifact, error) {
	if exp.ID == "" {
		return nil, errors.New("reports: experiment id is required")
	}
	base := e.key("experiments", exp.ID)
	now := e.now().UTC()

	counts, err := renderCounts(exp)
	if err != nil {
		return nil, fmt.Errorf("render counts for %s: %w", exp.ID, err)
	}
	summary, err := renderSummaryJSON(exp, now)
	if err != nil {
		return nil, fmt.Errorf("render summary for %s: %w", exp.ID, err)
	}
	markdown := renderSummaryMarkdown(exp)

	rows := len(exp.ExpectedCounts)
	rendered := []struct {
		name        string
		format      Format
		contentType string
		payload     []byte
	}{
		{"counts.csv", FormatCSV, "text/csv", counts},
		{"summary.json", FormatJSON, "application/json", summary},
		{"summary.md", FormatMarkdown, "text/markdown", markdown},
	}
	artifacts := make([]Artifact, 0, len(rendered))
	for _, r := range rendered {
		artifact, err := e.write(ctx, path.Join(base, r.name), r.format, r.contentType, r.payload, now)
		if err != nil {
			return artifacts, err
		}
		artifact.Metadata = map[string]any{
			"experiment_id": exp.ID,
			"rows":          rows,
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts, nil
}

// ExportGenerations writes a comparison of observed phenotype percentages
// across generations to generations/<label>.csv.
func (e *Exporter) ExportGenerations(ctx context.Context, label string, points []domain.GenerationPoint) (Artifact, error) {
	if len(points) == 0 {
		return Artifact{}, ErrNoGenerations
	}
	name := slug(label)
	if name == "" {
		name = "comparison"
	}
	payload, err := renderGenerations(points)
	if err != nil {
		return Artifact{}, fmt.Errorf("render generations %s: %w", name, err)
	}
	artifact, err := e.write(ctx, e.key("generations", name+".csv"), FormatCSV, "text/csv", payload, e.now().UTC())
	if err != nil {
		return Artifact{}, err
	}
	ids := make([]string, len(points))
	for i, p := range points {
		ids[i] = p.ExperimentID
	}
	artifact.Metadata = map[string]any{
		"generations":    len(points),
		"experiment_ids": ids,
	}
	return artifact, nil
}

func (e *Exporter) key(parts ...string) string {
	if e.prefix != "" {
		parts = append([]string{e.prefix}, parts...)
	}
	return path.Join(parts...)
}

func (e *Exporter) write(ctx context.Context, key string, format Format, contentType string, payload []byte, now time.Time) (Artifact, error) {
	info, err := blob.PutBytes(ctx, e.store, key, payload, contentType)
	if err != nil {
		return Artifact{}, fmt.Errorf("store artifact %s: %w", key, err)
	}
	return Artifact{
		Key:         key,
		Format:      format,
		ContentType: contentType,
		SizeBytes:   int64(len(payload)),
		ETag:        info.ETag,
		CreatedAt:   now,
	}, nil
}

func renderCounts(exp domain.Experiment) ([]byte, error) {
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write([]string{"phenotype_id", "description", "expected", "observed", "deviation"}); err != nil {
		return nil, err
	}
	for _, id := range genetics.SortedIDs(exp.ExpectedCounts) {
		expected := exp.ExpectedCounts[id]
		record := []string{string(id), exp.Phenotypes[id], formatFloat(expected), "", ""}
		if observed, ok := exp.ObservedCounts[id]; ok {
			record[3] = strconv.Itoa(observed)
			record[4] = formatFloat(float64(observed) - expected)
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderSummaryJSON(exp domain.Experiment, now time.Time) ([]byte, error) {
	summary := Summary{
		Experiment: exp.Clone(),
		State:      exp.State(),
		Status:     exp.Status(),
		ExportedAt: now,
	}
	offspring, err := exp.Offspring()
	if err != nil {
		return nil, err
	}
	summary.GenotypeRatios = genetics.GenotypeRatios(offspring)
	frequencies, err := genetics.AlleleFrequencies(offspring)
	if err != nil {
		return nil, err
	}
	summary.AlleleFrequencies = make(map[string]float64, len(frequencies))
	for sym, f := range frequencies {
		summary.AlleleFrequencies[sym] = genetics.RoundTo(f, 4)
	}
	if exp.ChiSquare != nil {
		rounded := exp.ChiSquare.Rounded()
		summary.Analysis = &rounded
	}
	return json.MarshalIndent(summary, "", "  ")
}

func renderSummaryMarkdown(exp domain.Experiment) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", markdownText(exp.Name))
	fmt.Fprintf(&b, "- ID: `%s`\n", exp.ID)
	if exp.Generation != "" {
		fmt.Fprintf(&b, "- Generation: %s\n", markdownText(exp.Generation))
	}
	fmt.Fprintf(&b, "- Cross: `%s` x `%s`\n", exp.Parent1, exp.Parent2)
	fmt.Fprintf(&b, "- Status: %s (%s)\n", exp.Status(), exp.State())
	fmt.Fprintf(&b, "- Total expected: %d\n", exp.TotalExpected)
	if exp.Notes != "" {
		fmt.Fprintf(&b, "- Notes: %s\n", markdownText(exp.Notes))
	}

	if len(exp.ExpectedCounts) > 0 {
		b.WriteString("\n## Counts\n\n")
		b.WriteString("| Phenotype | Description | Expected | Observed |\n")
		b.WriteString("| --- | --- | ---: | ---: |\n")
		for _, id := range genetics.SortedIDs(exp.ExpectedCounts) {
			observed := "-"
			if n, ok := exp.ObservedCounts[id]; ok {
				observed = strconv.Itoa(n)
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
				markdownText(string(id)), markdownText(exp.Phenotypes[id]),
				formatFloat(exp.ExpectedCounts[id]), observed)
		}
	}

	if exp.ChiSquare != nil {
		r := exp.ChiSquare.Rounded()
		verdict := "fail"
		if r.Passed {
			verdict = "pass"
		}
		b.WriteString("\n## Chi-square\n\n")
		fmt.Fprintf(&b, "- Statistic: %s\n", formatFloat(r.ChiSquare))
		fmt.Fprintf(&b, "- Degrees of freedom: %d\n", r.DegreesFreedom)
		fmt.Fprintf(&b, "- p-value: %s\n", formatFloat(r.PValue))
		fmt.Fprintf(&b, "- Critical value (alpha %s): %s\n", formatFloat(r.Alpha), formatFloat(r.CriticalValue))
		fmt.Fprintf(&b, "- Result: %s\n\n", verdict)
		b.WriteString(r.Interpretation)
		b.WriteString("\n")
	}
	return []byte(b.String())
}

func renderGenerations(points []domain.GenerationPoint) ([]byte, error) {
	phenotypes := domain.SeriesPhenotypes(points)
	descriptions := make(map[genetics.PhenotypeID]string, len(phenotypes))
	for _, p := range points {
		for id, desc := range p.Descriptions {
			if desc != "" {
				descriptions[id] = desc
			}
		}
	}

	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	header := []string{"generation", "experiment_id", "total"}
	for _, id := range phenotypes {
		column := string(id)
		if desc := descriptions[id]; desc != "" {
			column = desc
		}
		header = append(header, column+" (%)")
	}
	if err := writer.Write(header); err != nil {
		return nil, err
	}
	for _, p := range points {
		record := []string{p.Label, p.ExperimentID, strconv.Itoa(p.Total)}
		for _, id := range phenotypes {
			record = append(record, strconv.FormatFloat(genetics.RoundTo(p.Percentages[id], 2), 'f', 2, 64))
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// markdownText escapes table separators and flattens newlines.
func markdownText(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}

// slug lowercases label and replaces runs outside [a-z0-9_] with '-'.
func slug(label string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(label)) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
