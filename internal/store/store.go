// Package store persists tenant-scoped property records and the listing
// statuses written back by the refresh scheduler.
package store

import (
	"context"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/propstatus/internal/model"
)

// ErrNotFound is returned when a property id does not exist.
var ErrNotFound = eris.New("store: property not found")

// Store is the property persistence used by the HTTP surface, the CLI and
// the refresh scheduler.
type Store interface {
	GetAddress(ctx context.Context, id int64) (string, error)
	GetProperty(ctx context.Context, id int64) (*model.Property, error)
	ListByTenant(ctx context.Context, tenant string) ([]model.Property, error)
	ListTenants(ctx context.Context) ([]string, error)
	CreateProperty(ctx context.Context, p model.Property) (int64, error)
	// ImportProperties inserts or refreshes properties keyed by (tenant, address).
	// Existing statuses are left untouched.
	ImportProperties(ctx context.Context, props []model.Property) (int64, error)
	UpdateStatus(ctx context.Context, id int64, status model.ListingStatus) error

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

func notFound(id int64) error {
	return eris.Wrapf(ErrNotFound, "id %s", strconv.FormatInt(id, 10))
}

func validateProperty(p model.Property) error {
	if p.Tenant == "" {
		return eris.New("store: property tenant is required")
	}
	if p.Address == "" {
		return eris.New("store: property address is required")
	}
	return nil
}

// initialStatus defaults a missing or unrecognised status to Active, the
// column default for new listings.
func initialStatus(s model.ListingStatus) model.ListingStatus {
	if s == "" || s == model.StatusUnknown {
		return model.StatusActive
	}
	return s
}
