package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"crosslab/internal/infra/persistence/memory"
	"crosslab/pkg/domain"
	"crosslab/pkg/genetics"
	"crosslab/pkg/stats"
)

// DefaultMaxGenePairs bounds cross size unless overridden; a genotype with n
// heterozygous pairs yields 4^n offspring cells.
const DefaultMaxGenePairs = 6

// ErrTooManyGenePairs is returned by Create when a parent exceeds the
// configured gene pair limit.
var ErrTooManyGenePairs = errors.New("too many gene pairs")

// ErrNotFound is returned when an operation references a missing record.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// Service exposes the experiment workflow over a transactional store.
type Service struct {
	store        domain.PersistentStore
	clock        Clock
	now          func() time.Time
	logger       Logger
	metrics      MetricsRecorder
	tracer       Tracer
	audit        AuditRecorder
	alpha        float64
	maxGenePairs int
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	svc := &Service{
		store:        store,
		logger:       noopLogger{},
		metrics:      noopMetricsRecorder{},
		tracer:       noopTracer{},
		audit:        noopAuditRecorder{},
		alpha:        stats.DefaultAlpha,
		maxGenePairs: DefaultMaxGenePairs,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	svc.now = selectNowFunc(store, svc.clock)
	return svc
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore { return s.store }

// RulesEngine returns the engine of the underlying store when it exposes one.
func (s *Service) RulesEngine() *RulesEngine { return extractRulesEngine(s.store) }

// Alpha returns the default significance level.
func (s *Service) Alpha() float64 { return s.alpha }

func extractRulesEngine(store domain.PersistentStore) *RulesEngine {
	if provider, ok := store.(interface{ RulesEngine() *RulesEngine }); ok {
		return provider.RulesEngine()
	}
	return nil
}

// selectNowFunc prefers an explicit clock, then the store's time provider,
// then the wall clock. Times are always UTC.
func selectNowFunc(store domain.PersistentStore, clock Clock) func() time.Time {
	if clock != nil {
		return clock.Now
	}
	if provider, ok := store.(interface{ NowFunc() func() time.Time }); ok {
		if fn := provider.NowFunc(); fn != nil {
			return func() time.Time { return fn().UTC() }
		}
	}
	return ClockFunc(nil).Now
}

// Create validates the parents, computes expected counts and stores the
// experiment in the ratios_computed state.
func (s *Service) Create(ctx context.Context, params ExperimentParams) (Experiment, Result, error) {
	var created Experiment
	res, err := s.run(ctx, OpCreateExperiment, params.ID, func(ctx context.Context) (string, Result, error) {
		exp, err := domain.NewExperiment(params, s.now())
		if err != nil {
			return params.ID, Result{}, err
		}
		if err := s.checkGenePairs(exp); err != nil {
			return params.ID, Result{}, err
		}
		if err := exp.ComputeExpected(exp.CreatedAt); err != nil {
			return params.ID, Result{}, err
		}
		res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			created, err = tx.CreateExperiment(exp)
			return err
		})
		if err != nil {
			return params.ID, res, err
		}
		return created.ID, res, nil
	})
	if err != nil {
		return Experiment{}, res, err
	}
	return created, res, nil
}

func (s *Service) checkGenePairs(exp Experiment) error {
	if s.maxGenePairs == 0 {
		return nil
	}
	p1, _, err := exp.Parents()
	if err != nil {
		return err
	}
	if p1.Len() > s.maxGenePairs {
		return fmt.Errorf("%w: %d exceeds limit of %d", ErrTooManyGenePairs, p1.Len(), s.maxGenePairs)
	}
	return nil
}

// RecordObservations replaces the observed counts of an experiment.
func (s *Service) RecordObservations(ctx context.Context, id string, observed map[PhenotypeID]int) (Experiment, Result, error) {
	return s.update(ctx, OpRecordObservations, id, func(e *Experiment, now time.Time) error {
		return e.RecordObservations(observed, now)
	})
}

// RecordObservationsByLabel resolves phenotype IDs or descriptions to
// categories before recording.
func (s *Service) RecordObservationsByLabel(ctx context.Context, id string, labelled map[string]int) (Experiment, Result, error) {
	return s.update(ctx, OpRecordObservations, id, func(e *Experiment, now time.Time) error {
		observed, err := e.ResolveObservations(labelled)
		if err != nil {
			return err
		}
		return e.RecordObservations(observed, now)
	})
}

// Analyze runs the chi-square test. An alpha of zero selects the service
// default.
func (s *Service) Analyze(ctx context.Context, id string, alpha float64) (Experiment, Result, error) {
	if alpha == 0 {
		alpha = s.alpha
	}
	return s.update(ctx, OpAnalyzeExperiment, id, func(e *Experiment, now time.Time) error {
		return e.Analyze(alpha, now)
	})
}

// UpdateTotalExpected changes the sample size and recomputes expected counts.
func (s *Service) UpdateTotalExpected(ctx context.Context, id string, total int) (Experiment, Result, error) {
	return s.update(ctx, OpUpdateTotalExpected, id, func(e *Experiment, now time.Time) error {
		return e.UpdateTotalExpected(total, now)
	})
}

// UpdateNotes replaces an experiment's notes.
func (s *Service) UpdateNotes(ctx context.Context, id, notes string) (Experiment, Result, error) {
	return s.update(ctx, OpUpdateNotes, id, func(e *Experiment, now time.Time) error {
		e.SetNotes(notes, now)
		return nil
	})
}

// Delete removes an experiment.
func (s *Service) Delete(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, OpDeleteExperiment, id, func(ctx context.Context) (string, Result, error) {
		res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if _, ok := tx.FindExperiment(id); !ok {
				return ErrNotFound{Entity: EntityExperiment, ID: id}
			}
			return tx.DeleteExperiment(id)
		})
		return id, res, err
	})
}

func (s *Service) update(ctx context.Context, op, id string, mutate func(*Experiment, time.Time) error) (Experiment, Result, error) {
	var updated Experiment
	res, err := s.run(ctx, op, id, func(ctx context.Context) (string, Result, error) {
		res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if _, ok := tx.FindExperiment(id); !ok {
				return ErrNotFound{Entity: EntityExperiment, ID: id}
			}
			now := s.now()
			var err error
			updated, err = tx.UpdateExperiment(id, func(e *Experiment) error {
				return mutate(e, now)
			})
			return err
		})
		return id, res, err
	})
	if err != nil {
		return Experiment{}, res, err
	}
	return updated, res, nil
}

// Get returns one experiment.
func (s *Service) Get(ctx context.Context, id string) (Experiment, error) {
	var found Experiment
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		e, ok := view.FindExperiment(id)
		if !ok {
			return ErrNotFound{Entity: EntityExperiment, ID: id}
		}
		found = e
		return nil
	})
	return found, err
}

// List returns every experiment ordered by creation time.
func (s *Service) List(ctx context.Context) ([]Experiment, error) {
	var out []Experiment
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		out = view.ListExperiments()
		return nil
	})
	return out, err
}

// SearchField selects the attribute matched by Search.
type SearchField string

const (
	SearchAll        SearchField = "all"
	SearchName       SearchField = "name"
	SearchNotes      SearchField = "notes"
	SearchGeneration SearchField = "generation"
	SearchParent     SearchField = "parent"
)

// ParseSearchField validates a field name; empty selects SearchAll.
func ParseSearchField(s string) (SearchField, error) {
	switch f := SearchField(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return SearchAll, nil
	case SearchAll, SearchName, SearchNotes, SearchGeneration, SearchParent:
		return f, nil
	default:
		return "", fmt.Errorf("unknown search field %q", s)
	}
}

// Search returns experiments whose field contains term, case-insensitively.
// An empty term matches everything.
func (s *Service) Search(ctx context.Context, field SearchField, term string) ([]Experiment, error) {
	if _, err := ParseSearchField(string(field)); err != nil {
		return nil, err
	}
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(term))
	var out []Experiment
	for _, e := range all {
		if matches(e, field, needle) {
			out = append(out, e)
		}
	}
	return out, nil
}

func matches(e Experiment, field SearchField, needle string) bool {
	var haystack []string
	switch field {
	case SearchName:
		haystack = []string{e.Name}
	case SearchNotes:
		haystack = []string{e.Notes}
	case SearchGeneration:
		haystack = []string{e.Generation}
	case SearchParent:
		haystack = []string{e.Parent1, e.Parent2}
	default:
		haystack = []string{e.ID, e.Name, e.Notes, e.Generation, e.Parent1, e.Parent2}
	}
	for _, h := range haystack {
		if strings.Contains(strings.ToLower(h), needle) {
			return true
		}
	}
	return false
}

// GenerationSeries compares phenotype frequencies across the given
// experiments in order. With no ids every experiment is used, ordered by
// generation label and then creation time.
func (s *Service) GenerationSeries(ctx context.Context, ids ...string) ([]GenerationPoint, error) {
	var selected []Experiment
	if len(ids) == 0 {
		all, err := s.List(ctx)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(all, func(i, j int) bool {
			return all[i].Generation < all[j].Generation
		})
		selected = all
	} else {
		for _, id := range ids {
			e, err := s.Get(ctx, id)
			if err != nil {
				return nil, err
			}
			selected = append(selected, e)
		}
	}
	return domain.GenerationSeries(selected), nil
}

// Punnett builds the square for two genotypes without storing anything.
func (s *Service) Punnett(parent1, parent2 string, alleles genetics.Alleles) (genetics.PunnettSquare, error) {
	p1, err := genetics.ParseGenotype(parent1)
	if err != nil {
		return genetics.PunnettSquare{}, err
	}
	p2, err := genetics.ParseGenotype(parent2)
	if err != nil {
		return genetics.PunnettSquare{}, err
	}
	if s.maxGenePairs > 0 && p1.Len() > s.maxGenePairs {
		return genetics.PunnettSquare{}, fmt.Errorf("%w: %d exceeds limit of %d", ErrTooManyGenePairs, p1.Len(), s.maxGenePairs)
	}
	return genetics.Punnett(p1, p2, alleles)
}

func (s *Service) run(ctx context.Context, op, id string, fn func(context.Context) (string, Result, error)) (Result, error) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	s.logger.Debug("operation started", "operation", op, "experiment_id", id)

	entityID, res, err := fn(ctx)
	if entityID == "" {
		entityID = id
	}
	duration := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)

	for _, v := range res.Violations {
		s.logger.Warn("rule violation", "operation", op, "rule", v.Rule, "severity", string(v.Severity), "experiment_id", v.EntityID, "message", v.Message)
	}
	if err != nil {
		s.logger.Error("operation failed", "operation", op, "experiment_id", entityID, "error", err)
		s.recordAuditError(ctx, op, entityID, duration, err)
		return res, err
	}
	s.logger.Info("operation completed", "operation", op, "experiment_id", entityID, "duration", duration)
	s.recordAuditSuccess(ctx, op, entityID, duration)
	return res, nil
}

func (s *Service) recordAuditSuccess(ctx context.Context, op, entityID string, duration time.Duration) {
	s.recordAudit(ctx, op, entityID, duration, nil)
}

func (s *Service) recordAuditError(ctx context.Context, op, entityID string, duration time.Duration, err error) {
	s.recordAudit(ctx, op, entityID, duration, err)
}

func (s *Service) recordAudit(ctx context.Context, op, entityID string, duration time.Duration, err error) {
	meta, ok := auditedOperations[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}
