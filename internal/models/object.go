// Package models defines the core data structures used throughout dcb
// including inventory entities, branches, commits, merge results, and the
// branch graph layout.
package models

import (
	"fmt"
	"time"
)

// DeviceStatus is the operational status of a device
type DeviceStatus string

const (
	StatusPlanned         DeviceStatus = "planned"
	StatusStaged          DeviceStatus = "staged"
	StatusActive          DeviceStatus = "active"
	StatusOffline         DeviceStatus = "offline"
	StatusDecommissioning DeviceStatus = "decommissioning"
)

// ParseDeviceStatus validates a status string. An empty string yields StatusActive.
func ParseDeviceStatus(s string) (DeviceStatus, error) {
	switch DeviceStatus(s) {
	case "":
		return StatusActive, nil
	case StatusPlanned, StatusStaged, StatusActive, StatusOffline, StatusDecommissioning:
		return DeviceStatus(s), nil
	}
	return "", fmt.Errorf("invalid device status %q", s)
}

// Site is a physical location holding racks and devices
type Site struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Slug   string `json:"slug" yaml:"slug"`
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
}

// Rack is an equipment rack within a site
type Rack struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	SiteID string `json:"site_id" yaml:"site_id"`
	Height int    `json:"height" yaml:"height"` // Rack units
}

// DeviceRole classifies what a device does (leaf switch, PDU, server...)
type DeviceRole struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Color string `json:"color,omitempty" yaml:"color,omitempty"`
}

// Platform is the software platform a device runs
type Platform struct {
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	Manufacturer string `json:"manufacturer,omitempty" yaml:"manufacturer,omitempty"`
}

// Device is the mutable inventory entity staged on branches.
// Site, Rack, Role and Platform are display relations joined from
// reference data; they are never written to the persisted store.
type Device struct {
	ID           string            `json:"id" yaml:"id"`
	Name         string            `json:"name" yaml:"name"`
	SiteID       string            `json:"site_id,omitempty" yaml:"site_id,omitempty"`
	RackID       string            `json:"rack_id,omitempty" yaml:"rack_id,omitempty"`
	RoleID       string            `json:"role_id,omitempty" yaml:"role_id,omitempty"`
	PlatformID   string            `json:"platform_id,omitempty" yaml:"platform_id,omitempty"`
	Position     int               `json:"position,omitempty" yaml:"position,omitempty"`
	Status       DeviceStatus      `json:"status" yaml:"status"`
	Serial       string            `json:"serial,omitempty" yaml:"serial,omitempty"`
	AssetTag     string            `json:"asset_tag,omitempty" yaml:"asset_tag,omitempty"`
	Tags         []string          `json:"tags,omitempty" yaml:"tags,omitempty"`
	CustomFields map[string]string `json:"custom_fields,omitempty" yaml:"custom_fields,omitempty"`
	CreatedAt    time.Time         `json:"created_at" yaml:"-"`
	UpdatedAt    time.Time         `json:"updated_at" yaml:"-"`

	Site     *Site       `json:"-" yaml:"-"`
	Rack     *Rack       `json:"-" yaml:"-"`
	Role     *DeviceRole `json:"-" yaml:"-"`
	Platform *Platform   `json:"-" yaml:"-"`
}

// Columns returns a copy of the device holding only its persisted columns.
// Slices and maps are copied so the result never aliases d.
func (d *Device) Columns() *Device {
	cp := *d
	cp.Site, cp.Rack, cp.Role, cp.Platform = nil, nil, nil, nil
	if d.Tags != nil {
		cp.Tags = append([]string(nil), d.Tags...)
	}
	if d.CustomFields != nil {
		cp.CustomFields = make(map[string]string, len(d.CustomFields))
		for k, v := range d.CustomFields {
			cp.CustomFields[k] = v
		}
	}
	return &cp
}

// ReferenceData holds the read-only collections devices depend on for display
type ReferenceData struct {
	Sites     map[string]*Site
	Racks     map[string]*Rack
	Roles     map[string]*DeviceRole
	Platforms map[string]*Platform
}

// NewReferenceData creates empty reference data
func NewReferenceData() *ReferenceData {
	return &ReferenceData{
		Sites:     make(map[string]*Site),
		Racks:     make(map[string]*Rack),
		Roles:     make(map[string]*DeviceRole),
		Platforms: make(map[string]*Platform),
	}
}

// Inventory is a complete set of entity collections, used for seeding a store
type Inventory struct {
	Sites     []*Site       `yaml:"sites"`
	Racks     []*Rack       `yaml:"racks"`
	Roles     []*DeviceRole `yaml:"roles"`
	Platforms []*Platform   `yaml:"platforms"`
	Devices   []*Device     `yaml:"devices"`
}
