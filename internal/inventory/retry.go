package inventory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/kilupskalvis/dcbranch/internal/models"
	bolt "go.etcd.io/bbolt"
)

// ErrBusy marks a transient contention failure worth retrying.
var ErrBusy = errors.New("store busy")

// SQLite primary result codes for lock contention
const (
	sqliteBusy   = 5
	sqliteLocked = 6
)

// RetryConfig configures retry behavior for transient errors.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JitterFraction float64 // 0.0 to 1.0
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		JitterFraction: 0.25,
	}
}

// RetryStore wraps a Store and retries operations that fail on lock
// contention. A retried transaction re-runs fn from the start, so fn must
// not keep state from a failed attempt.
type RetryStore struct {
	Store
	config *RetryConfig
}

// NewRetryStore wraps inner with retry on transient errors.
func NewRetryStore(inner Store, cfg *RetryConfig) *RetryStore {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	return &RetryStore{Store: inner, config: cfg}
}

// isTransient returns true for lock contention errors.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrBusy) || errors.Is(err, bolt.ErrTimeout) {
		return true
	}
	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		code := coded.Code() & 0xff
		return code == sqliteBusy || code == sqliteLocked
	}
	return false
}

// backoff computes the delay for the given attempt with jitter.
func (rs *RetryStore) backoff(attempt int) time.Duration {
	base := float64(rs.config.InitialBackoff) * math.Pow(2, float64(attempt))
	if base > float64(rs.config.MaxBackoff) {
		base = float64(rs.config.MaxBackoff)
	}
	jitter := base * rs.config.JitterFraction * (rand.Float64()*2 - 1)
	d := time.Duration(base + jitter)
	if d < 0 {
		d = 0
	}
	return d
}

// sleep waits for the given duration or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retry executes fn, retrying transient errors only.
func (rs *RetryStore) retry(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= rs.config.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return lastErr
		}
		if attempt < rs.config.MaxRetries {
			if err := sleep(ctx, rs.backoff(attempt)); err != nil {
				return fmt.Errorf("%s: %w (retry cancelled)", operation, lastErr)
			}
		}
	}
	return fmt.Errorf("%s: %w (after %d retries)", operation, lastErr, rs.config.MaxRetries)
}

// --- Delegate Store methods through retry logic ---

func (rs *RetryStore) RunInTransaction(ctx context.Context, fn func(tx Tx) error) error {
	return rs.retry(ctx, "transaction", func() error {
		return rs.Store.RunInTransaction(ctx, fn)
	})
}

func (rs *RetryStore) FindAllDevices(ctx context.Context) (devices []*models.Device, err error) {
	err = rs.retry(ctx, "find devices", func() error {
		devices, err = rs.Store.FindAllDevices(ctx)
		return err
	})
	return
}

func (rs *RetryStore) CreateDevices(ctx context.Context, devices []*models.Device) error {
	return rs.retry(ctx, "create devices", func() error {
		return rs.Store.CreateDevices(ctx, devices)
	})
}

func (rs *RetryStore) UpdateDevice(ctx context.Context, id string, device *models.Device) error {
	return rs.retry(ctx, "update device", func() error {
		return rs.Store.UpdateDevice(ctx, id, device)
	})
}

func (rs *RetryStore) DeleteDevices(ctx context.Context, ids []string) error {
	return rs.retry(ctx, "delete devices", func() error {
		return rs.Store.DeleteDevices(ctx, ids)
	})
}

func (rs *RetryStore) FindAllSites(ctx context.Context) (sites []*models.Site, err error) {
	err = rs.retry(ctx, "find sites", func() error {
		sites, err = rs.Store.FindAllSites(ctx)
		return err
	})
	return
}

func (rs *RetryStore) FindAllRacks(ctx context.Context) (racks []*models.Rack, err error) {
	err = rs.retry(ctx, "find racks", func() error {
		racks, err = rs.Store.FindAllRacks(ctx)
		return err
	})
	return
}

func (rs *RetryStore) FindAllRoles(ctx context.Context) (roles []*models.DeviceRole, err error) {
	err = rs.retry(ctx, "find roles", func() error {
		roles, err = rs.Store.FindAllRoles(ctx)
		return err
	})
	return
}

func (rs *RetryStore) FindAllPlatforms(ctx context.Context) (platforms []*models.Platform, err error) {
	err = rs.retry(ctx, "find platforms", func() error {
		platforms, err = rs.Store.FindAllPlatforms(ctx)
		return err
	})
	return
}

func (rs *RetryStore) Seed(ctx context.Context, inv *models.Inventory) error {
	return rs.retry(ctx, "seed", func() error {
		return rs.Store.Seed(ctx, inv)
	})
}
