package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kilupskalvis/dcbranch/internal/models"
	bolt "go.etcd.io/bbolt"
)

// Bucket names used by the bbolt inventory.
var (
	bucketSites     = []byte("sites")
	bucketRacks     = []byte("racks")
	bucketRoles     = []byte("device_roles")
	bucketPlatforms = []byte("platforms")
	bucketDevices   = []byte("devices")
)

// BoltStore persists the inventory in a single bbolt file. Every
// RunInTransaction call is one bbolt read-write transaction.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates a bbolt inventory at dbPath.
func NewBoltStore(dbPath string) (*BoltStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketSites, bucketRacks, bucketRoles, bucketPlatforms, bucketDevices} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RunInTransaction runs fn inside one bbolt Update. Returning an error from fn
// rolls the whole transaction back.
func (s *BoltStore) RunInTransaction(_ context.Context, fn func(tx Tx) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(boltDevices{tx: tx})
	})
}

// FindAllDevices returns all devices ordered by ID.
func (s *BoltStore) FindAllDevices(ctx context.Context) ([]*models.Device, error) {
	var devices []*models.Device
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		devices, err = boltDevices{tx: tx}.FindAllDevices(ctx)
		return err
	})
	return devices, err
}

// CreateDevices inserts devices, failing if any ID already exists.
func (s *BoltStore) CreateDevices(ctx context.Context, devices []*models.Device) error {
	return s.RunInTransaction(ctx, func(tx Tx) error { return tx.CreateDevices(ctx, devices) })
}

// UpdateDevice overwrites an existing device.
func (s *BoltStore) UpdateDevice(ctx context.Context, id string, device *models.Device) error {
	return s.RunInTransaction(ctx, func(tx Tx) error { return tx.UpdateDevice(ctx, id, device) })
}

// DeleteDevices removes devices by ID, failing if any is missing.
func (s *BoltStore) DeleteDevices(ctx context.Context, ids []string) error {
	return s.RunInTransaction(ctx, func(tx Tx) error { return tx.DeleteDevices(ctx, ids) })
}

// FindAllSites returns all sites ordered by ID.
func (s *BoltStore) FindAllSites(_ context.Context) ([]*models.Site, error) {
	return boltList[models.Site](s.db, bucketSites)
}

// FindAllRacks returns all racks ordered by ID.
func (s *BoltStore) FindAllRacks(_ context.Context) ([]*models.Rack, error) {
	return boltList[models.Rack](s.db, bucketRacks)
}

// FindAllRoles returns all device roles ordered by ID.
func (s *BoltStore) FindAllRoles(_ context.Context) ([]*models.DeviceRole, error) {
	return boltList[models.DeviceRole](s.db, bucketRoles)
}

// FindAllPlatforms returns all platforms ordered by ID.
func (s *BoltStore) FindAllPlatforms(_ context.Context) ([]*models.Platform, error) {
	return boltList[models.Platform](s.db, bucketPlatforms)
}

// Seed upserts every collection of inv in one transaction.
func (s *BoltStore) Seed(_ context.Context, inv *models.Inventory) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, site := range inv.Sites {
			if err := boltPut(tx, bucketSites, site.ID, site); err != nil {
				return err
			}
		}
		for _, rack := range inv.Racks {
			if err := boltPut(tx, bucketRacks, rack.ID, rack); err != nil {
				return err
			}
		}
		for _, role := range inv.Roles {
			if err := boltPut(tx, bucketRoles, role.ID, role); err != nil {
				return err
			}
		}
		for _, platform := range inv.Platforms {
			if err := boltPut(tx, bucketPlatforms, platform.ID, platform); err != nil {
				return err
			}
		}
		for _, d := range inv.Devices {
			if err := boltPut(tx, bucketDevices, d.ID, d.Columns()); err != nil {
				return err
			}
		}
		return nil
	})
}

// boltDevices implements Tx on an open bbolt transaction.
type boltDevices struct {
	tx *bolt.Tx
}

func (b boltDevices) FindAllDevices(_ context.Context) ([]*models.Device, error) {
	bucket := b.tx.Bucket(bucketDevices)
	if bucket == nil {
		return nil, fmt.Errorf("devices bucket not found")
	}

	var devices []*models.Device
	err := bucket.ForEach(func(k, v []byte) error {
		var d models.Device
		if err := json.Unmarshal(v, &d); err != nil {
			return fmt.Errorf("unmarshal device %s: %w", k, err)
		}
		devices = append(devices, &d)
		return nil
	})
	return devices, err
}

func (b boltDevices) CreateDevices(_ context.Context, devices []*models.Device) error {
	bucket := b.tx.Bucket(bucketDevices)
	if bucket == nil {
		return fmt.Errorf("devices bucket not found")
	}
	for _, d := range devices {
		if bucket.Get([]byte(d.ID)) != nil {
			return fmt.Errorf("create device %s: %w", d.ID, ErrExists)
		}
		if err := boltPut(b.tx, bucketDevices, d.ID, d.Columns()); err != nil {
			return err
		}
	}
	return nil
}

func (b boltDevices) UpdateDevice(_ context.Context, id string, device *models.Device) error {
	bucket := b.tx.Bucket(bucketDevices)
	if bucket == nil {
		return fmt.Errorf("devices bucket not found")
	}
	if bucket.Get([]byte(id)) == nil {
		return fmt.Errorf("update device %s: %w", id, ErrNotFound)
	}
	cols := device.Columns()
	cols.ID = id
	return boltPut(b.tx, bucketDevices, id, cols)
}

func (b boltDevices) DeleteDevices(_ context.Context, ids []string) error {
	bucket := b.tx.Bucket(bucketDevices)
	if bucket == nil {
		return fmt.Errorf("devices bucket not found")
	}
	for _, id := range ids {
		if bucket.Get([]byte(id)) == nil {
			return fmt.Errorf("delete device %s: %w", id, ErrNotFound)
		}
		if err := bucket.Delete([]byte(id)); err != nil {
			return fmt.Errorf("delete device %s: %w", id, err)
		}
	}
	return nil
}

func boltPut(tx *bolt.Tx, bucketName []byte, key string, v any) error {
	bucket := tx.Bucket(bucketName)
	if bucket == nil {
		return fmt.Errorf("%s bucket not found", bucketName)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s %s: %w", bucketName, key, err)
	}
	return bucket.Put([]byte(key), data)
}

// boltList decodes every value of a bucket. bbolt iterates keys in byte
// order, so results are sorted by ID.
func boltList[T any](db *bolt.DB, bucketName []byte) ([]*T, error) {
	var items []*T
	err := db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketName)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			item := new(T)
			if err := json.Unmarshal(v, item); err != nil {
				return fmt.Errorf("unmarshal %s %s: %w", bucketName, k, err)
			}
			items = append(items, item)
			return nil
		})
	})
	return items, err
}
