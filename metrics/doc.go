// Package metrics exports the progress of a process as Prometheus metrics.
//
// Metrics are collected by handlers on the process' event loop, so the collectors observe the
// engine's events in the order they were raised. A ticker on the same event loop samples the
// engine's status, which is served as JSON next to the Prometheus endpoint.
package metrics
