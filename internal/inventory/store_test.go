package inventory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kilupskalvis/dcbranch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactories builds every backend in a temp directory
var storeFactories = map[string]func(t *testing.T) Store{
	"sqlite": func(t *testing.T) Store {
		st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "inventory.db"))
		require.NoError(t, err)
		return st
	},
	"bbolt": func(t *testing.T) Store {
		st, err := NewBoltStore(filepath.Join(t.TempDir(), "inventory.bolt"))
		require.NoError(t, err)
		return st
	},
	"memory": func(t *testing.T) Store {
		return NewMockStore()
	},
}

var testTime = time.Date(2026, 3, 4, 5, 6, 7, 123456789, time.UTC)

func testInventory() *models.Inventory {
	return &models.Inventory{
		Sites:     []*models.Site{{ID: "dc1", Name: "Datacenter 1", Slug: "dc1", Region: "eu"}},
		Racks:     []*models.Rack{{ID: "r1", Name: "Rack 1", SiteID: "dc1", Height: 42}},
		Roles:     []*models.DeviceRole{{ID: "leaf", Name: "Leaf switch", Color: "00ff00"}},
		Platforms: []*models.Platform{{ID: "eos", Name: "EOS", Manufacturer: "Arista"}},
		Devices: []*models.Device{
			testDevice("sw1"),
			testDevice("sw2"),
		},
	}
}

func testDevice(id string) *models.Device {
	return &models.Device{
		ID:           id,
		Name:         "leaf-" + id,
		SiteID:       "dc1",
		RackID:       "r1",
		RoleID:       "leaf",
		PlatformID:   "eos",
		Position:     10,
		Status:       models.StatusActive,
		Serial:       "SN-" + id,
		Tags:         []string{"edge", "prod"},
		CustomFields: map[string]string{"owner": "netops"},
		CreatedAt:    testTime,
		UpdatedAt:    testTime,
	}
}

// newSeededStore opens a backend seeded with testInventory
func newSeededStore(t *testing.T, backend string) Store {
	t.Helper()
	st := storeFactories[backend](t)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Seed(context.Background(), testInventory()))
	return st
}

func deviceIDs(t *testing.T, st Store) []string {
	t.Helper()
	devices, err := st.FindAllDevices(context.Background())
	require.NoError(t, err)
	ids := make([]string, 0, len(devices))
	for _, d := range devices {
		ids = append(ids, d.ID)
	}
	return ids
}

// ==================== Contract Tests ====================

func TestStore_SeedAndFind(t *testing.T) {
	for backend := range storeFactories {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			st := newSeededStore(t, backend)

			sites, err := st.FindAllSites(ctx)
			require.NoError(t, err)
			require.Len(t, sites, 1)
			assert.Equal(t, "eu", sites[0].Region)

			racks, err := st.FindAllRacks(ctx)
			require.NoError(t, err)
			require.Len(t, racks, 1)
			assert.Equal(t, 42, racks[0].Height)

			roles, err := st.FindAllRoles(ctx)
			require.NoError(t, err)
			require.Len(t, roles, 1)

			platforms, err := st.FindAllPlatforms(ctx)
			require.NoError(t, err)
			require.Len(t, platforms, 1)
			assert.Equal(t, "Arista", platforms[0].Manufacturer)

			devices, err := st.FindAllDevices(ctx)
			require.NoError(t, err)
			require.Len(t, devices, 2)
			assert.Equal(t, "sw1", devices[0].ID)
			assert.Equal(t, []string{"edge", "prod"}, devices[0].Tags)
			assert.Equal(t, "netops", devices[0].CustomFields["owner"])
			assert.True(t, testTime.Equal(devices[0].CreatedAt))
			assert.Nil(t, devices[0].Site)
		})
	}
}

func TestStore_SeedUpserts(t *testing.T) {
	for backend := range storeFactories {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			st := newSeededStore(t, backend)

			again := testInventory()
			again.Sites[0].Name = "Renamed"
			again.Devices = []*models.Device{testDevice("sw1")}
			again.Devices[0].Name = "renamed"
			require.NoError(t, st.Seed(ctx, again))

			sites, err := st.FindAllSites(ctx)
			require.NoError(t, err)
			require.Len(t, sites, 1)
			assert.Equal(t, "Renamed", sites[0].Name)

			devices, err := st.FindAllDevices(ctx)
			require.NoError(t, err)
			require.Len(t, devices, 2)
			assert.Equal(t, "renamed", devices[0].Name)
		})
	}
}

func TestStore_CreateUpdateDelete(t *testing.T) {
	for backend := range storeFactories {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			st := newSeededStore(t, backend)

			require.NoError(t, st.CreateDevices(ctx, []*models.Device{testDevice("sw3")}))
			assert.Equal(t, []string{"sw1", "sw2", "sw3"}, deviceIDs(t, st))

			upd := testDevice("sw3")
			upd.Status = models.StatusOffline
			upd.Tags = nil
			require.NoError(t, st.UpdateDevice(ctx, "sw3", upd))

			devices, err := st.FindAllDevices(ctx)
			require.NoError(t, err)
			assert.Equal(t, models.StatusOffline, devices[2].Status)
			assert.Empty(t, devices[2].Tags)

			require.NoError(t, st.DeleteDevices(ctx, []string{"sw1", "sw3"}))
			assert.Equal(t, []string{"sw2"}, deviceIDs(t, st))
		})
	}
}

func TestStore_WriteErrors(t *testing.T) {
	for backend := range storeFactories {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			st := newSeededStore(t, backend)

			err := st.CreateDevices(ctx, []*models.Device{testDevice("sw1")})
			assert.True(t, errors.Is(err, ErrExists), "got %v", err)

			err = st.UpdateDevice(ctx, "missing", testDevice("missing"))
			assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

			err = st.DeleteDevices(ctx, []string{"missing"})
			assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

			assert.NoError(t, st.DeleteDevices(ctx, nil))
			assert.Equal(t, []string{"sw1", "sw2"}, deviceIDs(t, st))
		})
	}
}

func TestStore_TransactionCommits(t *testing.T) {
	for backend := range storeFactories {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			st := newSeededStore(t, backend)

			err := st.RunInTransaction(ctx, func(tx Tx) error {
				if err := tx.DeleteDevices(ctx, []string{"sw1"}); err != nil {
					return err
				}
				if err := tx.CreateDevices(ctx, []*models.Device{testDevice("sw3")}); err != nil {
					return err
				}
				// Reads inside the transaction see its own writes
				devices, err := tx.FindAllDevices(ctx)
				if err != nil {
					return err
				}
				assert.Len(t, devices, 2)
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, []string{"sw2", "sw3"}, deviceIDs(t, st))
		})
	}
}

func TestStore_TransactionRollsBack(t *testing.T) {
	for backend := range storeFactories {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			st := newSeededStore(t, backend)

			boom := errors.New("boom")
			err := st.RunInTransaction(ctx, func(tx Tx) error {
				require.NoError(t, tx.DeleteDevices(ctx, []string{"sw1", "sw2"}))
				require.NoError(t, tx.CreateDevices(ctx, []*models.Device{testDevice("sw3")}))
				return boom
			})
			assert.ErrorIs(t, err, boom)
			assert.Equal(t, []string{"sw1", "sw2"}, deviceIDs(t, st))
		})
	}
}

func TestStore_TransactionPartialDeleteRollsBack(t *testing.T) {
	for backend := range storeFactories {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			st := newSeededStore(t, backend)

			err := st.RunInTransaction(ctx, func(tx Tx) error {
				return tx.DeleteDevices(ctx, []string{"sw1", "missing"})
			})
			assert.ErrorIs(t, err, ErrNotFound)
			assert.Equal(t, []string{"sw1", "sw2"}, deviceIDs(t, st))
		})
	}
}

// ==================== Backend Tests ====================

func TestOpen_Backends(t *testing.T) {
	dir := t.TempDir()

	st, err := Open("", filepath.Join(dir, "default.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, st)
	st.Close()

	st, err = Open(BackendBolt, filepath.Join(dir, "inventory.bolt"))
	require.NoError(t, err)
	assert.IsType(t, &BoltStore{}, st)
	st.Close()

	st, err = Open(BackendMemory, "")
	require.NoError(t, err)
	assert.IsType(t, &MockStore{}, st)

	_, err = Open("postgres", "")
	assert.Error(t, err)
}

func TestSQLiteStore_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "inventory.db")

	st, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, st.Seed(ctx, testInventory()))
	require.NoError(t, st.Close())

	st, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer st.Close()
	assert.Equal(t, []string{"sw1", "sw2"}, deviceIDs(t, st))
}

func TestSQLiteStore_Migrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.db")

	st, err := NewSQLiteStore(path)
	require.NoError(t, err)
	version, err := st.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, version)
	require.NoError(t, st.Close())

	// Reopening does not reapply or fail
	st, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer st.Close()
	version, err = st.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, version)

	var n int
	require.NoError(t, st.DB().QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name='idx_devices_rack'").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSQLiteStore_ForeignKeys(t *testing.T) {
	ctx := context.Background()
	st := newSeededStore(t, "sqlite")

	d := testDevice("sw9")
	d.SiteID = "nowhere"
	assert.Error(t, st.CreateDevices(ctx, []*models.Device{d}))
}

func TestBoltStore_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "inventory.bolt")

	st, err := NewBoltStore(path)
	require.NoError(t, err)
	require.NoError(t, st.Seed(ctx, testInventory()))
	require.NoError(t, st.Close())

	st, err = NewBoltStore(path)
	require.NoError(t, err)
	defer st.Close()
	assert.Equal(t, []string{"sw1", "sw2"}, deviceIDs(t, st))
}

// ==================== MockStore Tests ====================

func TestMockStore_ErrorInjection(t *testing.T) {
	ctx := context.Background()
	m := NewMockStore()
	m.AddDevice(testDevice("sw1"))

	m.CreateErr = errors.New("create failed")
	err := m.RunInTransaction(ctx, func(tx Tx) error {
		require.NoError(t, tx.DeleteDevices(ctx, []string{"sw1"}))
		return tx.CreateDevices(ctx, []*models.Device{testDevice("sw2")})
	})
	assert.EqualError(t, err, "create failed")
	assert.Equal(t, []string{"sw1"}, m.DeviceIDs())
	assert.Equal(t, 1, m.Deletes)

	m.CreateErr = nil
	m.Err = errors.New("down")
	_, err = m.FindAllDevices(ctx)
	assert.EqualError(t, err, "down")
}
