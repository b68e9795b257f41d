// Package api defines the data types shared across sdvagent: report
// requests and results, token usage, identifiers and structured errors.
//
// The package has no external dependencies and performs no I/O.
package api
