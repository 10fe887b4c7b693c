// Package inventory provides the persisted entity store that branches are
// merged into. It defines the contract the branching core consumes and
// ships SQLite, bbolt and in-memory implementations of it.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/kilupskalvis/dcbranch/internal/models"
)

// ErrNotFound is returned when an entity addressed by ID does not exist.
var ErrNotFound = errors.New("not found")

// ErrExists is returned when creating an entity whose ID is already stored.
var ErrExists = errors.New("already exists")

// Tx is the set of device operations available both directly on a Store
// and inside RunInTransaction.
type Tx interface {
	FindAllDevices(ctx context.Context) ([]*models.Device, error)
	CreateDevices(ctx context.Context, devices []*models.Device) error
	UpdateDevice(ctx context.Context, id string, device *models.Device) error
	DeleteDevices(ctx context.Context, ids []string) error
}

// Store is the persistence collaborator consumed by the branching core.
// Reference collections are read-only from the core's point of view; they
// are written only by Seed.
type Store interface {
	Tx

	FindAllSites(ctx context.Context) ([]*models.Site, error)
	FindAllRacks(ctx context.Context) ([]*models.Rack, error)
	FindAllRoles(ctx context.Context) ([]*models.DeviceRole, error)
	FindAllPlatforms(ctx context.Context) ([]*models.Platform, error)

	// Seed upserts every collection of inv in one transaction.
	Seed(ctx context.Context, inv *models.Inventory) error

	// RunInTransaction runs fn atomically. If fn returns an error nothing fn
	// wrote is observable afterwards.
	RunInTransaction(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendBolt   = "bbolt"
	BackendMemory = "memory"
)

// Open opens the store for the named backend at path.
func Open(backend, path string) (Store, error) {
	switch backend {
	case BackendSQLite, "":
		return NewSQLiteStore(path)
	case BackendBolt:
		return NewBoltStore(path)
	case BackendMemory:
		return NewMockStore(), nil
	default:
		return nil, fmt.Errorf("unknown inventory backend %q", backend)
	}
}

// Verify implementations at compile time
var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*BoltStore)(nil)
	_ Store = (*MockStore)(nil)
	_ Store = (*RetryStore)(nil)
)
