package inventory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kilupskalvis/dcbranch/internal/models"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS sites (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL,
		region TEXT
	);

	CREATE TABLE IF NOT EXISTS racks (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		site_id TEXT REFERENCES sites(id),
		height INTEGER NOT NULL DEFAULT 42
	);

	CREATE TABLE IF NOT EXISTS device_roles (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		color TEXT
	);

	CREATE TABLE IF NOT EXISTS platforms (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		manufacturer TEXT
	);

	CREATE TABLE IF NOT EXISTS devices (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		site_id TEXT REFERENCES sites(id),
		rack_id TEXT REFERENCES racks(id),
		role_id TEXT REFERENCES device_roles(id),
		platform_id TEXT REFERENCES platforms(id),
		position INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		serial TEXT,
		asset_tag TEXT,
		tags JSON,
		custom_fields JSON,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_devices_site ON devices(site_id);
	CREATE INDEX IF NOT EXISTS idx_racks_site ON racks(site_id);
	`

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// SQLiteStore persists the inventory in a SQLite database
type SQLiteStore struct {
	db *sql.DB
	sqlDevices
}

// NewSQLiteStore opens or creates a SQLite inventory at dbPath and applies the schema
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStore{db: db, sqlDevices: sqlDevices{q: db}}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for advanced queries
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// RunInTransaction runs fn inside a single SQL transaction
func (s *SQLiteStore) RunInTransaction(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(sqlDevices{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// FindAllSites returns all sites ordered by ID
func (s *SQLiteStore) FindAllSites(ctx context.Context) ([]*models.Site, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, slug, region FROM sites ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sites []*models.Site
	for rows.Next() {
		var site models.Site
		var region sql.NullString
		if err := rows.Scan(&site.ID, &site.Name, &site.Slug, &region); err != nil {
			return nil, err
		}
		site.Region = region.String
		sites = append(sites, &site)
	}
	return sites, rows.Err()
}

// FindAllRacks returns all racks ordered by ID
func (s *SQLiteStore) FindAllRacks(ctx context.Context) ([]*models.Rack, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, site_id, height FROM racks ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var racks []*models.Rack
	for rows.Next() {
		var rack models.Rack
		var siteID sql.NullString
		if err := rows.Scan(&rack.ID, &rack.Name, &siteID, &rack.Height); err != nil {
			return nil, err
		}
		rack.SiteID = siteID.String
		racks = append(racks, &rack)
	}
	return racks, rows.Err()
}

// FindAllRoles returns all device roles ordered by ID
func (s *SQLiteStore) FindAllRoles(ctx context.Context) ([]*models.DeviceRole, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, color FROM device_roles ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*models.DeviceRole
	for rows.Next() {
		var role models.DeviceRole
		var color sql.NullString
		if err := rows.Scan(&role.ID, &role.Name, &color); err != nil {
			return nil, err
		}
		role.Color = color.String
		roles = append(roles, &role)
	}
	return roles, rows.Err()
}

// FindAllPlatforms returns all platforms ordered by ID
func (s *SQLiteStore) FindAllPlatforms(ctx context.Context) ([]*models.Platform, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, manufacturer FROM platforms ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var platforms []*models.Platform
	for rows.Next() {
		var platform models.Platform
		var manufacturer sql.NullString
		if err := rows.Scan(&platform.ID, &platform.Name, &manufacturer); err != nil {
			return nil, err
		}
		platform.Manufacturer = manufacturer.String
		platforms = append(platforms, &platform)
	}
	return platforms, rows.Err()
}

// Seed upserts all collections of inv in one transaction. Reference data is
// written before devices so foreign keys resolve.
func (s *SQLiteStore) Seed(ctx context.Context, inv *models.Inventory) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, site := range inv.Sites {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sites (id, name, slug, region) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name, slug = excluded.slug, region = excluded.region`,
			site.ID, site.Name, site.Slug, nullString(site.Region)); err != nil {
			return fmt.Errorf("seed site %s: %w", site.ID, err)
		}
	}
	for _, rack := range inv.Racks {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO racks (id, name, site_id, height) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name, site_id = excluded.site_id, height = excluded.height`,
			rack.ID, rack.Name, nullString(rack.SiteID), rack.Height); err != nil {
			return fmt.Errorf("seed rack %s: %w", rack.ID, err)
		}
	}
	for _, role := range inv.Roles {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO device_roles (id, name, color) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name, color = excluded.color`,
			role.ID, role.Name, nullString(role.Color)); err != nil {
			return fmt.Errorf("seed role %s: %w", role.ID, err)
		}
	}
	for _, platform := range inv.Platforms {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO platforms (id, name, manufacturer) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name, manufacturer = excluded.manufacturer`,
			platform.ID, platform.Name, nullString(platform.Manufacturer)); err != nil {
			return fmt.Errorf("seed platform %s: %w", platform.ID, err)
		}
	}

	devices := sqlDevices{q: tx}
	for _, d := range inv.Devices {
		if _, err := tx.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", d.ID); err != nil {
			return fmt.Errorf("seed device %s: %w", d.ID, err)
		}
		if err := devices.insert(ctx, d); err != nil {
			return fmt.Errorf("seed device %s: %w", d.ID, err)
		}
	}

	return tx.Commit()
}

// sqlDevices implements Tx against either the database or an open transaction
type sqlDevices struct {
	q querier
}

const deviceColumns = `id, name, site_id, rack_id, role_id, platform_id, position, status,
	serial, asset_tag, tags, custom_fields, created_at, updated_at`

// FindAllDevices returns all devices ordered by ID
func (s sqlDevices) FindAllDevices(ctx context.Context) ([]*models.Device, error) {
	rows, err := s.q.QueryContext(ctx, "SELECT "+deviceColumns+" FROM devices ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []*models.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// CreateDevices inserts devices, failing if any ID already exists
func (s sqlDevices) CreateDevices(ctx context.Context, devices []*models.Device) error {
	for _, d := range devices {
		if err := s.insert(ctx, d); err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint") {
				return fmt.Errorf("create device %s: %w", d.ID, ErrExists)
			}
			return fmt.Errorf("create device %s: %w", d.ID, err)
		}
	}
	return nil
}

func (s sqlDevices) insert(ctx context.Context, d *models.Device) error {
	tags, fields, err := encodeDeviceJSON(d)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx, "INSERT INTO devices ("+deviceColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		d.ID, d.Name, nullString(d.SiteID), nullString(d.RackID), nullString(d.RoleID), nullString(d.PlatformID),
		d.Position, string(d.Status), nullString(d.Serial), nullString(d.AssetTag), tags, fields,
		formatTimestamp(d.CreatedAt), formatTimestamp(d.UpdatedAt),
	)
	return err
}

// UpdateDevice overwrites the persisted columns of an existing device
func (s sqlDevices) UpdateDevice(ctx context.Context, id string, d *models.Device) error {
	tags, fields, err := encodeDeviceJSON(d)
	if err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx, `
		UPDATE devices SET name = ?, site_id = ?, rack_id = ?, role_id = ?, platform_id = ?, position = ?,
			status = ?, serial = ?, asset_tag = ?, tags = ?, custom_fields = ?, created_at = ?, updated_at = ?
		WHERE id = ?`,
		d.Name, nullString(d.SiteID), nullString(d.RackID), nullString(d.RoleID), nullString(d.PlatformID),
		d.Position, string(d.Status), nullString(d.Serial), nullString(d.AssetTag), tags, fields,
		formatTimestamp(d.CreatedAt), formatTimestamp(d.UpdatedAt), id,
	)
	if err != nil {
		return fmt.Errorf("update device %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("update device %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteDevices removes devices by ID, failing if any is missing
func (s sqlDevices) DeleteDevices(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	res, err := s.q.ExecContext(ctx, "DELETE FROM devices WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return fmt.Errorf("delete devices: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if int(n) != len(ids) {
		return fmt.Errorf("delete devices: %d of %d: %w", len(ids)-int(n), len(ids), ErrNotFound)
	}
	return nil
}

func scanDevice(rows *sql.Rows) (*models.Device, error) {
	var d models.Device
	var siteID, rackID, roleID, platformID, serial, assetTag, tags, fields sql.NullString
	var status, createdAt, updatedAt string

	err := rows.Scan(&d.ID, &d.Name, &siteID, &rackID, &roleID, &platformID, &d.Position, &status,
		&serial, &assetTag, &tags, &fields, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	d.SiteID, d.RackID, d.RoleID, d.PlatformID = siteID.String, rackID.String, roleID.String, platformID.String
	d.Status = models.DeviceStatus(status)
	d.Serial, d.AssetTag = serial.String, assetTag.String
	d.CreatedAt = parseTimestamp(createdAt)
	d.UpdatedAt = parseTimestamp(updatedAt)

	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &d.Tags); err != nil {
			return nil, fmt.Errorf("decode tags of %s: %w", d.ID, err)
		}
	}
	if fields.Valid && fields.String != "" {
		if err := json.Unmarshal([]byte(fields.String), &d.CustomFields); err != nil {
			return nil, fmt.Errorf("decode custom fields of %s: %w", d.ID, err)
		}
	}
	return &d, nil
}

func encodeDeviceJSON(d *models.Device) (tags, fields sql.NullString, err error) {
	if len(d.Tags) > 0 {
		data, err := json.Marshal(d.Tags)
		if err != nil {
			return tags, fields, fmt.Errorf("encode tags: %w", err)
		}
		tags = sql.NullString{String: string(data), Valid: true}
	}
	if len(d.CustomFields) > 0 {
		data, err := json.Marshal(d.CustomFields)
		if err != nil {
			return tags, fields, fmt.Errorf("encode custom fields: %w", err)
		}
		fields = sql.NullString{String: string(data), Valid: true}
	}
	return tags, fields, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTimestamp parses a timestamp string from SQLite in various formats
func parseTimestamp(s string) time.Time {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
