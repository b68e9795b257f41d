package storage

import (
	"context"

	"github.com/rhuss/sdvagent/pkg/api"
)

// Default and maximum page sizes for ListReports.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ListOptions filter and bound a report listing.
type ListOptions struct {
	// VehicleID restricts the listing to one vehicle when set.
	VehicleID string

	// Limit caps the number of reports. Zero means DefaultListLimit;
	// values above MaxListLimit are clamped.
	Limit int
}

// EffectiveLimit returns the clamped page size.
func (o ListOptions) EffectiveLimit() int {
	switch {
	case o.Limit <= 0:
		return DefaultListLimit
	case o.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return o.Limit
	}
}

// ReportStore persists generated reports. All methods are scoped by the
// tenant in the context, if any.
type ReportStore interface {
	// SaveReport stores a new report. It fails with ErrConflict when the
	// ID is taken.
	SaveReport(ctx context.Context, r *api.Report) error

	// GetReport returns a report or ErrNotFound.
	GetReport(ctx context.Context, id string) (*api.Report, error)

	// ListReports returns reports newest first.
	ListReports(ctx context.Context, opts ListOptions) ([]*api.Report, error)

	// DeleteReport removes a report or returns ErrNotFound.
	DeleteReport(ctx context.Context, id string) error

	// HealthCheck reports whether the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
