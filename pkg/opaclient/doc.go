// Package opaclient provides decision-point client implementations for the
// authorization middleware: an HTTP client speaking the OPA Data API and an
// embedded in-process evaluator backed by the OPA SDK.
package opaclient
