package inventory

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kilupskalvis/dcbranch/internal/models"
	"gopkg.in/yaml.v3"
)

// LoadSeedFile reads a YAML inventory document from path.
func LoadSeedFile(path string, now time.Time) (*models.Inventory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return ParseSeed(f, now)
}

// ParseSeed decodes and validates a YAML inventory document. Device statuses
// default to active and timestamps are set to now.
func ParseSeed(r io.Reader, now time.Time) (*models.Inventory, error) {
	var inv models.Inventory
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&inv); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse seed: %w", err)
	}

	if err := checkIDs("site", len(inv.Sites), func(i int) string { return inv.Sites[i].ID }); err != nil {
		return nil, err
	}
	if err := checkIDs("rack", len(inv.Racks), func(i int) string { return inv.Racks[i].ID }); err != nil {
		return nil, err
	}
	if err := checkIDs("role", len(inv.Roles), func(i int) string { return inv.Roles[i].ID }); err != nil {
		return nil, err
	}
	if err := checkIDs("platform", len(inv.Platforms), func(i int) string { return inv.Platforms[i].ID }); err != nil {
		return nil, err
	}
	if err := checkIDs("device", len(inv.Devices), func(i int) string { return inv.Devices[i].ID }); err != nil {
		return nil, err
	}

	for _, d := range inv.Devices {
		status, err := models.ParseDeviceStatus(string(d.Status))
		if err != nil {
			return nil, fmt.Errorf("device %s: %w", d.ID, err)
		}
		d.Status = status
		d.CreatedAt = now
		d.UpdatedAt = now
	}

	return &inv, nil
}

func checkIDs(kind string, n int, id func(int) string) error {
	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		v := id(i)
		if v == "" {
			return fmt.Errorf("%s #%d has no id", kind, i+1)
		}
		if seen[v] {
			return fmt.Errorf("duplicate %s id %q", kind, v)
		}
		seen[v] = true
	}
	return nil
}
