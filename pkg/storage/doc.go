// Package storage defines the ReportStore interface implemented by the
// report storage adapters (memory, postgres), together with the sentinel
// errors and tenant context helpers they share.
package storage
