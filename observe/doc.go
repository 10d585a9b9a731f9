// Package observe provides ready-made pipeline observers: structured logging,
// Prometheus metrics, OpenTelemetry spans, live status and an in-memory
// recorder used for run history.
//
// All observers are safe to share between concurrent invocations.
package observe
