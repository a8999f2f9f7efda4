package core

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used to stamp mutations.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder sets the recorder observing every operation.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer sets the tracer wrapping every operation.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithAuditRecorder sets the audit sink for mutating operations.
func WithAuditRecorder(recorder AuditRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.audit = recorder
		}
	}
}

// WithAlpha sets the default significance level used by Analyze when the
// caller passes zero. Values outside (0, 1) are ignored.
func WithAlpha(alpha float64) Option {
	return func(s *Service) {
		if alpha > 0 && alpha < 1 {
			s.alpha = alpha
		}
	}
}

// WithMaxGenePairs bounds the number of gene pairs accepted by Create.
// Zero disables the bound; negative values are ignored.
func WithMaxGenePairs(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxGenePairs = n
		}
	}
}
