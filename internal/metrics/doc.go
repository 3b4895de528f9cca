// Package metrics provides build metrics behind a small Recorder interface.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so no nil checks are needed when metrics are disabled. The
// daemon swaps in a PrometheusRecorder when metrics are enabled and serves it
// through HTTPHandler.
package metrics
