package emit

// Emitter receives and processes observability events from session execution.
//
// Emitters enable pluggable observability backends:
//   - Logging: stdout, files, syslog
//   - Distributed tracing: OpenTelemetry
//   - In-memory capture: tests and debugging
//
// Implementations should be:
//   - Non-blocking: Avoid slowing down session advancement
//   - Thread-safe: Distinct sessions may advance concurrently
//   - Resilient: Handle backend failures without crashing the pipeline
type Emitter interface {
	// Emit sends an observability event to the configured backend.
	//
	// Emit must not panic; errors should be handled internally. If the
	// backend is unavailable, events may be buffered or dropped, but the
	// session advance must not fail because of observability.
	Emit(event Event)
}
