package snapshot

import (
	"encoding/hex"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/kilupskalvis/dcbranch/internal/models"
	"github.com/zeebo/blake3"
)

// encMode uses Core Deterministic Encoding so equal columns always produce identical bytes.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("snapshot: CBOR encoder initialization failed: " + err.Error())
	}
}

// Fingerprint returns a hex BLAKE3 digest of the device's persisted columns.
// Display relations and UpdatedAt do not affect the result, so touching a
// device without changing it does not make it differ. Returns "" for nil.
func Fingerprint(d *models.Device) string {
	if d == nil {
		return ""
	}
	cols := d.Columns()
	// Normalize so nil and empty collections hash the same
	if len(cols.Tags) == 0 {
		cols.Tags = nil
	}
	if len(cols.CustomFields) == 0 {
		cols.CustomFields = nil
	}
	cols.CreatedAt = cols.CreatedAt.UTC()
	cols.UpdatedAt = time.Time{}

	data, err := encMode.Marshal(cols)
	if err != nil {
		// Device only holds CBOR-encodable fields
		panic("snapshot: encode device: " + err.Error())
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
