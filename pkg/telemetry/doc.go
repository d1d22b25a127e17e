// Package telemetry provides structured logging, Prometheus metrics, and
// OpenTelemetry tracing for the revision engine.
package telemetry
