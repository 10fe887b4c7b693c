// Package snapshot implements the per-branch Entity Snapshot: an isolated
// working set of devices plus the read-only reference data they are displayed with.
package snapshot

import (
	"fmt"
	"sort"

	"github.com/kilupskalvis/dcbranch/internal/models"
)

// Snapshot is the working set owned by exactly one branch
type Snapshot struct {
	Devices   map[string]*models.Device
	Reference *models.ReferenceData
}

// New creates an empty snapshot
func New() *Snapshot {
	return &Snapshot{
		Devices:   make(map[string]*models.Device),
		Reference: models.NewReferenceData(),
	}
}

// FromInventory builds a snapshot from loaded collections, decorating every device
func FromInventory(ref *models.ReferenceData, devices []*models.Device) *Snapshot {
	s := &Snapshot{
		Devices:   make(map[string]*models.Device, len(devices)),
		Reference: cloneReference(ref),
	}
	for _, d := range devices {
		dev := d.Columns()
		s.decorate(dev)
		s.Devices[dev.ID] = dev
	}
	return s
}

// Clone returns a structural deep copy. Relation pointers in the copy point
// into the copy's own reference data.
func (s *Snapshot) Clone() *Snapshot {
	cp := &Snapshot{
		Devices:   make(map[string]*models.Device, len(s.Devices)),
		Reference: cloneReference(s.Reference),
	}
	for id, d := range s.Devices {
		dev := d.Columns()
		cp.decorate(dev)
		cp.Devices[id] = dev
	}
	return cp
}

func cloneReference(ref *models.ReferenceData) *models.ReferenceData {
	cp := models.NewReferenceData()
	if ref == nil {
		return cp
	}
	for id, v := range ref.Sites {
		site := *v
		cp.Sites[id] = &site
	}
	for id, v := range ref.Racks {
		rack := *v
		cp.Racks[id] = &rack
	}
	for id, v := range ref.Roles {
		role := *v
		cp.Roles[id] = &role
	}
	for id, v := range ref.Platforms {
		platform := *v
		cp.Platforms[id] = &platform
	}
	return cp
}

// decorate attaches display relations resolved against the snapshot's reference data
func (s *Snapshot) decorate(d *models.Device) {
	d.Site = s.Reference.Sites[d.SiteID]
	d.Rack = s.Reference.Racks[d.RackID]
	d.Role = s.Reference.Roles[d.RoleID]
	d.Platform = s.Reference.Platforms[d.PlatformID]
}

// Has reports whether the snapshot contains a device
func (s *Snapshot) Has(id string) bool {
	_, ok := s.Devices[id]
	return ok
}

// Get returns the device with the given ID, or nil
func (s *Snapshot) Get(id string) *models.Device {
	return s.Devices[id]
}

// Put stores a stripped copy of d, decorated for display
func (s *Snapshot) Put(d *models.Device) {
	dev := d.Columns()
	s.decorate(dev)
	s.Devices[dev.ID] = dev
}

// Remove deletes a device from the snapshot
func (s *Snapshot) Remove(id string) {
	delete(s.Devices, id)
}

// IDs returns the device IDs in sorted order
func (s *Snapshot) IDs() []string {
	ids := make([]string, 0, len(s.Devices))
	for id := range s.Devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// List returns the devices sorted by ID
func (s *Snapshot) List() []*models.Device {
	devices := make([]*models.Device, 0, len(s.Devices))
	for _, id := range s.IDs() {
		devices = append(devices, s.Devices[id])
	}
	return devices
}

// Len returns the number of devices
func (s *Snapshot) Len() int {
	return len(s.Devices)
}

// CheckReferences verifies that every non-empty foreign key of d resolves in the
// snapshot's reference data.
func (s *Snapshot) CheckReferences(d *models.Device) error {
	if d.SiteID != "" && s.Reference.Sites[d.SiteID] == nil {
		return fmt.Errorf("unknown site %q", d.SiteID)
	}
	if d.RackID != "" {
		rack := s.Reference.Racks[d.RackID]
		if rack == nil {
			return fmt.Errorf("unknown rack %q", d.RackID)
		}
		if d.SiteID != "" && rack.SiteID != d.SiteID {
			return fmt.Errorf("rack %q does not belong to site %q", d.RackID, d.SiteID)
		}
	}
	if d.RoleID != "" && s.Reference.Roles[d.RoleID] == nil {
		return fmt.Errorf("unknown role %q", d.RoleID)
	}
	if d.PlatformID != "" && s.Reference.Platforms[d.PlatformID] == nil {
		return fmt.Errorf("unknown platform %q", d.PlatformID)
	}
	return nil
}
