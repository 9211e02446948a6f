// Package metric provides Prometheus metrics for dinegate.
//
//   - prometheus.go: the Registry and its recording helpers
//   - expose.go: text exposition for the CLI and an HTTP handler
//
// Every recording helper is safe on a nil *Registry, so components take
// an optional registry without guarding each call.
package metric
