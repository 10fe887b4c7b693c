package snapshot

import (
	"testing"
	"time"

	"github.com/kilupskalvis/dcbranch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testReference() *models.ReferenceData {
	ref := models.NewReferenceData()
	ref.Sites["dc1"] = &models.Site{ID: "dc1", Name: "Datacenter 1", Slug: "dc1"}
	ref.Sites["dc2"] = &models.Site{ID: "dc2", Name: "Datacenter 2", Slug: "dc2"}
	ref.Racks["r1"] = &models.Rack{ID: "r1", Name: "Rack 1", SiteID: "dc1", Height: 42}
	ref.Roles["leaf"] = &models.DeviceRole{ID: "leaf", Name: "Leaf switch"}
	ref.Platforms["eos"] = &models.Platform{ID: "eos", Name: "EOS", Manufacturer: "Arista"}
	return ref
}

func testDevice(id string) *models.Device {
	return &models.Device{
		ID:           id,
		Name:         "device-" + id,
		SiteID:       "dc1",
		RackID:       "r1",
		RoleID:       "leaf",
		Status:       models.StatusActive,
		Tags:         []string{"edge"},
		CustomFields: map[string]string{"owner": "netops"},
		CreatedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		UpdatedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// ==================== Snapshot Tests ====================

func TestFromInventory_DecoratesDevices(t *testing.T) {
	snap := FromInventory(testReference(), []*models.Device{testDevice("sw1")})

	d := snap.Get("sw1")
	require.NotNil(t, d)
	require.NotNil(t, d.Site)
	require.NotNil(t, d.Rack)
	require.NotNil(t, d.Role)
	assert.Nil(t, d.Platform)
	assert.Equal(t, "Datacenter 1", d.Site.Name)
	assert.Equal(t, "Rack 1", d.Rack.Name)
}

func TestFromInventory_DoesNotAliasInput(t *testing.T) {
	ref := testReference()
	in := testDevice("sw1")
	snap := FromInventory(ref, []*models.Device{in})

	in.Name = "changed"
	in.Tags[0] = "changed"
	ref.Sites["dc1"].Name = "changed"

	d := snap.Get("sw1")
	assert.Equal(t, "device-sw1", d.Name)
	assert.Equal(t, []string{"edge"}, d.Tags)
	assert.Equal(t, "Datacenter 1", d.Site.Name)
}

func TestSnapshot_CloneIsIndependent(t *testing.T) {
	orig := FromInventory(testReference(), []*models.Device{testDevice("sw1"), testDevice("sw2")})
	cp := orig.Clone()

	// Mutate the copy in every way staging can
	cp.Get("sw1").Name = "renamed"
	cp.Get("sw1").Tags = append(cp.Get("sw1").Tags, "core")
	cp.Get("sw1").CustomFields["owner"] = "someone"
	cp.Remove("sw2")
	cp.Put(testDevice("sw3"))

	assert.Equal(t, "device-sw1", orig.Get("sw1").Name)
	assert.Equal(t, []string{"edge"}, orig.Get("sw1").Tags)
	assert.Equal(t, "netops", orig.Get("sw1").CustomFields["owner"])
	assert.True(t, orig.Has("sw2"))
	assert.False(t, orig.Has("sw3"))
	assert.Equal(t, []string{"sw1", "sw3"}, cp.IDs())
}

func TestSnapshot_CloneRelationsPointIntoOwnReference(t *testing.T) {
	orig := FromInventory(testReference(), []*models.Device{testDevice("sw1")})
	cp := orig.Clone()

	assert.Same(t, cp.Reference.Sites["dc1"], cp.Get("sw1").Site)
	assert.NotSame(t, orig.Get("sw1").Site, cp.Get("sw1").Site)

	cp.Reference.Sites["dc1"].Name = "changed"
	assert.Equal(t, "Datacenter 1", orig.Get("sw1").Site.Name)
}

func TestSnapshot_PutStripsRelations(t *testing.T) {
	snap := FromInventory(testReference(), nil)

	in := testDevice("sw1")
	in.Site = &models.Site{ID: "dc1", Name: "stale"}
	snap.Put(in)

	d := snap.Get("sw1")
	require.NotNil(t, d.Site)
	assert.Equal(t, "Datacenter 1", d.Site.Name)
	assert.Equal(t, "stale", in.Site.Name)
}

func TestSnapshot_ListSortedByID(t *testing.T) {
	snap := FromInventory(testReference(), []*models.Device{testDevice("c"), testDevice("a"), testDevice("b")})

	var ids []string
	for _, d := range snap.List() {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
	assert.Equal(t, 3, snap.Len())
}

func TestSnapshot_CheckReferences(t *testing.T) {
	snap := FromInventory(testReference(), nil)

	tests := []struct {
		name    string
		mutate  func(d *models.Device)
		wantErr string
	}{
		{"valid", func(d *models.Device) {}, ""},
		{"no relations", func(d *models.Device) { d.SiteID, d.RackID, d.RoleID = "", "", "" }, ""},
		{"unknown site", func(d *models.Device) { d.SiteID = "nope"; d.RackID = "" }, "unknown site"},
		{"unknown rack", func(d *models.Device) { d.RackID = "nope" }, "unknown rack"},
		{"rack in other site", func(d *models.Device) { d.SiteID = "dc2" }, "does not belong"},
		{"unknown role", func(d *models.Device) { d.RoleID = "nope" }, "unknown role"},
		{"unknown platform", func(d *models.Device) { d.PlatformID = "nope" }, "unknown platform"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testDevice("sw1")
			tt.mutate(d)
			err := snap.CheckReferences(d)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// ==================== Fingerprint Tests ====================

func TestFingerprint_Nil(t *testing.T) {
	assert.Equal(t, "", Fingerprint(nil))
}

func TestFingerprint_Stable(t *testing.T) {
	a := Fingerprint(testDevice("sw1"))
	b := Fingerprint(testDevice("sw1"))
	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
}

func TestFingerprint_IgnoresRelationsAndUpdatedAt(t *testing.T) {
	plain := testDevice("sw1")
	decorated := FromInventory(testReference(), []*models.Device{plain}).Get("sw1")
	touched := testDevice("sw1")
	touched.UpdatedAt = touched.UpdatedAt.Add(time.Hour)

	assert.Equal(t, Fingerprint(plain), Fingerprint(decorated))
	assert.Equal(t, Fingerprint(plain), Fingerprint(touched))
}

func TestFingerprint_NormalizesEmptyCollectionsAndZone(t *testing.T) {
	a := testDevice("sw1")
	a.Tags = nil
	a.CustomFields = nil
	b := testDevice("sw1")
	b.Tags = []string{}
	b.CustomFields = map[string]string{}
	b.CreatedAt = b.CreatedAt.In(time.FixedZone("CET", 3600))

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprint_DetectsColumnChanges(t *testing.T) {
	base := Fingerprint(testDevice("sw1"))

	changes := map[string]func(d *models.Device){
		"name":     func(d *models.Device) { d.Name = "other" },
		"status":   func(d *models.Device) { d.Status = models.StatusOffline },
		"position": func(d *models.Device) { d.Position = 7 },
		"tags":     func(d *models.Device) { d.Tags = []string{"core"} },
		"fields":   func(d *models.Device) { d.CustomFields["owner"] = "ops" },
		"serial":   func(d *models.Device) { d.Serial = "SN1" },
	}
	for name, mutate := range changes {
		t.Run(name, func(t *testing.T) {
			d := testDevice("sw1")
			mutate(d)
			assert.NotEqual(t, base, Fingerprint(d))
		})
	}
}
