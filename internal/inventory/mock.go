package inventory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kilupskalvis/dcbranch/internal/models"
)

// MockStore is an in-memory Store. Transactions operate on a copy of the
// device table that replaces the original only when fn succeeds.
// It is used by tests and by the "memory" backend.
type MockStore struct {
	mu sync.Mutex

	Devices   map[string]*models.Device
	Reference *models.ReferenceData

	// Err can be set to make every method return an error
	Err error
	// CreateErr, UpdateErr and DeleteErr fail the corresponding write
	CreateErr error
	UpdateErr error
	DeleteErr error

	// Counters of successful writes, including ones later rolled back
	Creates int
	Updates int
	Deletes int
}

// NewMockStore creates an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		Devices:   make(map[string]*models.Device),
		Reference: models.NewReferenceData(),
	}
}

// AddDevice adds a device to the mock store.
func (m *MockStore) AddDevice(d *models.Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Devices[d.ID] = d.Columns()
}

// DeviceIDs returns the stored device IDs in sorted order.
func (m *MockStore) DeviceIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.Devices))
	for id := range m.Devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// RunInTransaction runs fn against a copy of the device table.
func (m *MockStore) RunInTransaction(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}

	tx := &mockTx{store: m, devices: make(map[string]*models.Device, len(m.Devices))}
	for id, d := range m.Devices {
		tx.devices[id] = d.Columns()
	}
	if err := fn(tx); err != nil {
		return err
	}
	m.Devices = tx.devices
	return nil
}

// FindAllDevices returns all devices sorted by ID.
func (m *MockStore) FindAllDevices(ctx context.Context) ([]*models.Device, error) {
	var devices []*models.Device
	err := m.RunInTransaction(ctx, func(tx Tx) error {
		var err error
		devices, err = tx.FindAllDevices(ctx)
		return err
	})
	return devices, err
}

// CreateDevices inserts devices.
func (m *MockStore) CreateDevices(ctx context.Context, devices []*models.Device) error {
	return m.RunInTransaction(ctx, func(tx Tx) error { return tx.CreateDevices(ctx, devices) })
}

// UpdateDevice overwrites a device.
func (m *MockStore) UpdateDevice(ctx context.Context, id string, device *models.Device) error {
	return m.RunInTransaction(ctx, func(tx Tx) error { return tx.UpdateDevice(ctx, id, device) })
}

// DeleteDevices removes devices.
func (m *MockStore) DeleteDevices(ctx context.Context, ids []string) error {
	return m.RunInTransaction(ctx, func(tx Tx) error { return tx.DeleteDevices(ctx, ids) })
}

// FindAllSites returns all sites sorted by ID.
func (m *MockStore) FindAllSites(_ context.Context) ([]*models.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return sortedValues(m.Reference.Sites, func(s *models.Site) string { return s.ID }), nil
}

// FindAllRacks returns all racks sorted by ID.
func (m *MockStore) FindAllRacks(_ context.Context) ([]*models.Rack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return sortedValues(m.Reference.Racks, func(r *models.Rack) string { return r.ID }), nil
}

// FindAllRoles returns all device roles sorted by ID.
func (m *MockStore) FindAllRoles(_ context.Context) ([]*models.DeviceRole, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return sortedValues(m.Reference.Roles, func(r *models.DeviceRole) string { return r.ID }), nil
}

// FindAllPlatforms returns all platforms sorted by ID.
func (m *MockStore) FindAllPlatforms(_ context.Context) ([]*models.Platform, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return sortedValues(m.Reference.Platforms, func(p *models.Platform) string { return p.ID }), nil
}

// Seed upserts every collection of inv.
func (m *MockStore) Seed(_ context.Context, inv *models.Inventory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for _, s := range inv.Sites {
		site := *s
		m.Reference.Sites[s.ID] = &site
	}
	for _, r := range inv.Racks {
		rack := *r
		m.Reference.Racks[r.ID] = &rack
	}
	for _, r := range inv.Roles {
		role := *r
		m.Reference.Roles[r.ID] = &role
	}
	for _, p := range inv.Platforms {
		platform := *p
		m.Reference.Platforms[p.ID] = &platform
	}
	for _, d := range inv.Devices {
		m.Devices[d.ID] = d.Columns()
	}
	return nil
}

type mockTx struct {
	store   *MockStore
	devices map[string]*models.Device
}

func (t *mockTx) FindAllDevices(_ context.Context) ([]*models.Device, error) {
	devices := sortedValues(t.devices, func(d *models.Device) string { return d.ID })
	for i, d := range devices {
		devices[i] = d.Columns()
	}
	return devices, nil
}

func (t *mockTx) CreateDevices(_ context.Context, devices []*models.Device) error {
	if t.store.CreateErr != nil {
		return t.store.CreateErr
	}
	for _, d := range devices {
		if _, exists := t.devices[d.ID]; exists {
			return fmt.Errorf("create device %s: %w", d.ID, ErrExists)
		}
		t.devices[d.ID] = d.Columns()
		t.store.Creates++
	}
	return nil
}

func (t *mockTx) UpdateDevice(_ context.Context, id string, device *models.Device) error {
	if t.store.UpdateErr != nil {
		return t.store.UpdateErr
	}
	if _, exists := t.devices[id]; !exists {
		return fmt.Errorf("update device %s: %w", id, ErrNotFound)
	}
	cols := device.Columns()
	cols.ID = id
	t.devices[id] = cols
	t.store.Updates++
	return nil
}

func (t *mockTx) DeleteDevices(_ context.Context, ids []string) error {
	if t.store.DeleteErr != nil {
		return t.store.DeleteErr
	}
	for _, id := range ids {
		if _, exists := t.devices[id]; !exists {
			return fmt.Errorf("delete device %s: %w", id, ErrNotFound)
		}
		delete(t.devices, id)
		t.store.Deletes++
	}
	return nil
}

func sortedValues[T any](m map[string]*T, key func(*T) string) []*T {
	values := make([]*T, 0, len(m))
	for _, v := range m {
		cp := *v
		values = append(values, &cp)
	}
	sort.Slice(values, func(i, j int) bool {
		return key(values[i]) < key(values[j])
	})
	return values
}
