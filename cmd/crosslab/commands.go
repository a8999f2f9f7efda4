package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"crosslab/internal/blob"
	"crosslab/internal/core"
	"crosslab/pkg/genetics"
)

func runCreate(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "create")
	file := fs.String("file", "", "YAML file with one or more experiment documents")
	id := fs.String("id", "", "experiment id (generated when empty)")
	name := fs.String("name", "", "experiment name")
	generation := fs.String("generation", "", "generation label, e.g. F1")
	p1 := fs.String("p1", "", "parent 1 genotype, e.g. \"Ee Ww\"")
	p2 := fs.String("p2", "", "parent 2 genotype")
	alleles := fs.String("alleles", "", "allele definitions, e.g. E:Red:dominant,e:White")
	total := fs.Int("total", 0, "total expected offspring")
	notes := fs.String("notes", "", "free-form notes")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	var defs []experimentDefinition
	if *file != "" {
		loaded, err := loadDefinitionFile(*file)
		if err != nil {
			return err
		}
		defs = loaded
	} else {
		if *p1 == "" || *p2 == "" || *alleles == "" {
			return usagef("-p1, -p2 and -alleles are required without -file")
		}
		parsed, err := parseAlleleSpec(*alleles)
		if err != nil {
			return usagef("%v", err)
		}
		def := experimentDefinition{
			ID:            *id,
			Name:          *name,
			Generation:    *generation,
			Parent1:       *p1,
			Parent2:       *p2,
			TotalExpected: *total,
			Notes:         *notes,
		}
		for _, sym := range parsed.Symbols() {
			def.Alleles = append(def.Alleles, parsed[sym])
		}
		defs = []experimentDefinition{def}
	}

	for _, def := range defs {
		params, err := def.params()
		if err != nil {
			return fmt.Errorf("experiment %q: %w", def.ID, err)
		}
		created, res, err := a.svc.Create(ctx, params)
		a.printViolations(res)
		if err != nil {
			return err
		}
		if len(def.Observed) > 0 {
			id := created.ID
			created, res, err = a.svc.RecordObservationsByLabel(ctx, id, def.Observed)
			a.printViolations(res)
			if err != nil {
				return fmt.Errorf("experiment %s: %w", id, err)
			}
		}
		_, _ = fmt.Fprintf(a.stdout, "created %s (%s)\n", created.ID, created.State())
	}
	return nil
}

func runObserve(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "observe")
	id := fs.String("id", "", "experiment id")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *id == "" {
		return usagef("-id is required")
	}
	counts, err := parseCounts(fs.Args())
	if err != nil {
		return usagef("%v", err)
	}
	exp, res, err := a.svc.RecordObservationsByLabel(ctx, *id, counts)
	a.printViolations(res)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.stdout, "recorded observations for %s\n", exp.ID)
	return writeCounts(a.stdout, exp)
}

func runAnalyze(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "analyze")
	id := fs.String("id", "", "experiment id")
	alpha := fs.Float64("alpha", 0, "significance level (defaults to CROSSLAB_ALPHA)")
	asJSON := fs.Bool("json", false, "print the result as JSON")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *id == "" {
		return usagef("-id is required")
	}
	exp, res, err := a.svc.Analyze(ctx, *id, *alpha)
	a.printViolations(res)
	if err != nil {
		return err
	}
	if *asJSON {
		return writeJSON(a.stdout, exp.ChiSquare.Rounded())
	}
	return writeAnalysis(a.stdout, exp)
}

func runShow(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "show")
	asJSON := fs.Bool("json", false, "print the experiment as JSON")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usagef("want exactly one experiment id")
	}
	exp, err := a.svc.Get(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	if *asJSON {
		return writeJSON(a.stdout, exp)
	}
	w := a.stdout
	_, _ = fmt.Fprintf(w, "ID:          %s\n", exp.ID)
	_, _ = fmt.Fprintf(w, "Name:        %s\n", exp.Name)
	_, _ = fmt.Fprintf(w, "Generation:  %s\n", exp.Generation)
	_, _ = fmt.Fprintf(w, "Cross:       %s x %s\n", exp.Parent1, exp.Parent2)
	_, _ = fmt.Fprintf(w, "Total:       %d\n", exp.TotalExpected)
	_, _ = fmt.Fprintf(w, "Status:      %s (%s)\n", exp.Status(), exp.State())
	_, _ = fmt.Fprintf(w, "Created:     %s\n", exp.CreatedAt.Format("2006-01-02 15:04:05"))
	if exp.Notes != "" {
		_, _ = fmt.Fprintf(w, "Notes:       %s\n", exp.Notes)
	}
	if err := writeCounts(w, exp); err != nil {
		return err
	}
	if exp.ChiSquare != nil {
		return writeAnalysis(w, exp)
	}
	return nil
}

func runList(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "list")
	asJSON := fs.Bool("json", false, "print experiments as JSON")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	all, err := a.svc.List(ctx)
	if err != nil {
		return err
	}
	if *asJSON {
		return writeJSON(a.stdout, all)
	}
	return writeExperimentTable(a.stdout, all)
}

func runSearch(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "search")
	field := fs.String("field", "all", "all|name|notes|generation|parent")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	f, err := core.ParseSearchField(*field)
	if err != nil {
		return usagef("%v", err)
	}
	found, err := a.svc.Search(ctx, f, strings.Join(fs.Args(), " "))
	if err != nil {
		return err
	}
	return writeExperimentTable(a.stdout, found)
}

func runDelete(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "delete")
	withReports := fs.Bool("reports", false, "also remove exported reports of each experiment")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return usagef("want at least one experiment id")
	}
	for _, id := range fs.Args() {
		res, err := a.svc.Delete(ctx, id)
		a.printViolations(res)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(a.stdout, "deleted %s\n", id)
		if *withReports {
			removed, err := a.exporter.RemoveExperiment(ctx, id)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(a.stdout, "removed %d reports of %s\n", removed, id)
		}
	}
	return nil
}

func runExport(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "export")
	generations := fs.String("generations", "", "write a generation comparison with this label instead of per-experiment reports")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	ids := fs.Args()

	if *generations != "" {
		points, err := a.svc.GenerationSeries(ctx, ids...)
		if err != nil {
			return err
		}
		artifact, err := a.exporter.ExportGenerations(ctx, *generations, points)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(a.stdout, "wrote %s (%d bytes)\n", artifact.Key, artifact.SizeBytes)
		return nil
	}

	if len(ids) == 0 {
		all, err := a.svc.List(ctx)
		if err != nil {
			return err
		}
		for _, exp := range all {
			ids = append(ids, exp.ID)
		}
	}
	for _, id := range ids {
		exp, err := a.svc.Get(ctx, id)
		if err != nil {
			return err
		}
		artifacts, err := a.exporter.ExportExperiment(ctx, exp)
		if err != nil {
			return err
		}
		for _, artifact := range artifacts {
			_, _ = fmt.Fprintf(a.stdout, "wrote %s (%d bytes)\n", artifact.Key, artifact.SizeBytes)
		}
	}
	a.logger.Info("export finished", "driver", a.blobs.Driver(), "experiments", len(ids))
	return nil
}

func runReports(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "reports")
	id := fs.String("id", "", "only list reports of this experiment")
	withURL := fs.Bool("url", false, "include a download link for each report")
	expiry := fs.Duration("expiry", 15*time.Minute, "lifetime of signed links")
	cat := fs.String("cat", "", "print the contents of this report key")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return usagef("unexpected arguments %v", fs.Args())
	}
	if *cat != "" {
		_, data, err := a.exporter.Read(ctx, *cat)
		if err != nil {
			return err
		}
		_, err = a.stdout.Write(data)
		return err
	}

	infos, err := a.exporter.Stored(ctx, *id)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	header := "KEY\tSIZE\tTYPE\tMODIFIED"
	if *withURL {
		header += "\tURL"
	}
	_, _ = fmt.Fprintln(tw, header)
	for _, info := range infos {
		line := fmt.Sprintf("%s\t%d\t%s\t%s", info.Key, info.Size, info.ContentType, info.LastModified.Format(time.RFC3339))
		if *withURL {
			link, err := a.exporter.URL(ctx, info.Key, *expiry)
			switch {
			case errors.Is(err, blob.ErrUnsupported):
				link = "-"
			case err != nil:
				return err
			}
			line += "\t" + link
		}
		_, _ = fmt.Fprintln(tw, line)
	}
	return tw.Flush()
}

func runCross(_ context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "cross")
	p1 := fs.String("p1", "", "parent 1 genotype")
	p2 := fs.String("p2", "", "parent 2 genotype")
	alleleSpec := fs.String("alleles", "", "allele definitions, e.g. E:Red:dominant,e:White")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *p1 == "" || *p2 == "" || *alleleSpec == "" {
		return usagef("-p1, -p2 and -alleles are required")
	}
	alleles, err := parseAlleleSpec(*alleleSpec)
	if err != nil {
		return usagef("%v", err)
	}
	square, err := a.svc.Punnett(*p1, *p2, alleles)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprint(tw, "\t"+strings.Join(square.Columns, "\t")+"\n")
	var offspring []string
	for i, row := range square.Cells {
		_, _ = fmt.Fprint(tw, square.Rows[i]+"\t"+strings.Join(row, "\t")+"\n")
		offspring = append(offspring, row...)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	ratios, err := genetics.PhenotypeRatios(offspring, alleles)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(a.stdout)
	tw = tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PHENOTYPE\tDESCRIPTION\tRATIO\tSHARE")
	for _, id := range genetics.SortedIDs(ratios) {
		r := ratios[id]
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", id, r.Description, r.Fraction, formatShare(r.Ratio))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	genotypes := genetics.GenotypeRatios(offspring)
	_, _ = fmt.Fprintln(a.stdout)
	tw = tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "GENOTYPE\tRATIO\tSHARE")
	for _, g := range slices.Sorted(maps.Keys(genotypes)) {
		r := genotypes[g]
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", g, r.Fraction, formatShare(r.Ratio))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	frequencies, err := genetics.AlleleFrequencies(offspring)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(a.stdout)
	tw = tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ALLELE\tFREQUENCY")
	for _, sym := range slices.Sorted(maps.Keys(frequencies)) {
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", sym, formatShare(frequencies[sym]))
	}
	return tw.Flush()
}

func formatShare(v float64) string {
	return strconv.FormatFloat(genetics.RoundTo(v, 4), 'f', -1, 64)
}

func (a *app) printViolations(res core.Result) {
	for _, v := range res.Violations {
		_, _ = fmt.Fprintf(a.stderr, "%s: [%s] %s\n", v.Severity, v.Rule, v.Message)
	}
}

func writeExperimentTable(w io.Writer, experiments []core.Experiment) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tGENERATION\tCROSS\tSTATUS")
	for _, e := range experiments {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s x %s\t%s\n", e.ID, e.Name, e.Generation, e.Parent1, e.Parent2, e.Status())
	}
	return tw.Flush()
}

func writeCounts(w io.Writer, exp core.Experiment) error {
	if len(exp.ExpectedCounts) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PHENOTYPE\tDESCRIPTION\tEXPECTED\tOBSERVED")
	for _, id := range genetics.SortedIDs(exp.ExpectedCounts) {
		observed := "-"
		if n, ok := exp.ObservedCounts[id]; ok {
			observed = strconv.Itoa(n)
		}
		expected := strconv.FormatFloat(genetics.RoundTo(exp.ExpectedCounts[id], 2), 'f', -1, 64)
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", id, exp.Phenotypes[id], expected, observed)
	}
	return tw.Flush()
}

func writeAnalysis(w io.Writer, exp core.Experiment) error {
	if exp.ChiSquare == nil {
		return nil
	}
	r := exp.ChiSquare.Rounded()
	verdict := "FAIL"
	if r.Passed {
		verdict = "PASS"
	}
	_, err := fmt.Fprintf(w, "chi-square=%v df=%d p=%v critical=%v alpha=%v %s\n%s\n",
		r.ChiSquare, r.DegreesFreedom, r.PValue, r.CriticalValue, r.Alpha, verdict, r.Interpretation)
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
