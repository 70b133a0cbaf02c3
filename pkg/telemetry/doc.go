// Package telemetry provides Prometheus metrics for policy decisions and the
// OpenTelemetry bootstrap used by binaries embedding the middleware.
package telemetry
