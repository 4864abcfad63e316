package flow

// engineConfig holds the tunable settings applied by Options during New.
type engineConfig struct {
	maxSteps int
	metrics  *PrometheusMetrics
}

// Option configures an Engine during construction.
//
// Options are applied in order, so later options override earlier ones when
// they touch the same setting.
type Option[S any] func(*engineConfig) error

// WithMaxSteps caps the number of steps a single Advance call may execute.
//
// The cap guards against a miswired successor function looping forever. When
// an advance reaches the cap before pausing or completing, it stops with
// ErrMaxStepsExceeded; the checkpoint written after the last completed step
// remains valid and a later Advance resumes from it.
//
// Parameters:
//   - n: Maximum steps per advance. Must be positive.
//
// Default: 1000.
func WithMaxSteps[S any](n int) Option[S] {
	return func(cfg *engineConfig) error {
		if n <= 0 {
			return &EngineError{
				Message: "max steps must be positive",
				Code:    "INVALID_MAX_STEPS",
			}
		}
		cfg.maxSteps = n
		return nil
	}
}

// WithMetrics attaches Prometheus metrics collection to the engine.
//
// When set, the engine records per-step latency and outcome, absorbed
// failures, session outcomes, and checkpoint write latency.
//
// Parameters:
//   - metrics: Metrics collector from NewPrometheusMetrics. Must not be nil.
func WithMetrics[S any](metrics *PrometheusMetrics) Option[S] {
	return func(cfg *engineConfig) error {
		if metrics == nil {
			return &EngineError{
				Message: "metrics must not be nil",
				Code:    "NIL_METRICS",
			}
		}
		cfg.metrics = metrics
		return nil
	}
}
