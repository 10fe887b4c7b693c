package store

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/kilupskalvis/dcbranch/internal/core"
	"github.com/klauspost/compress/zstd"
	bolt "go.etcd.io/bbolt"
)

const (
	stateKey      = "state"
	savedAtKey    = "saved_at"
	sessionFormat = byte(1)
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// Keep sub-second precision of commit and device timestamps
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("store: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("store: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("store: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("store: zstd decoder initialization failed: " + err.Error())
	}
}

// SaveState replaces the stored session with state.
func (s *Store) SaveState(state *core.State) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, bucketSession)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(stateKey), data); err != nil {
			return fmt.Errorf("put session: %w", err)
		}

		kv, err := bucket(tx, bucketKV)
		if err != nil {
			return err
		}
		return kv.Put([]byte(savedAtKey), []byte(time.Now().UTC().Format(time.RFC3339)))
	})
}

// LoadState returns the stored session. Returns (nil, nil) if none is saved.
func (s *Store) LoadState() (*core.State, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSession)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(stateKey)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	return decodeState(data)
}

// ResetState deletes the stored session.
func (s *Store) ResetState() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, bucketSession)
		if err != nil {
			return err
		}
		return b.Delete([]byte(stateKey))
	})
}

// encodeState produces a format byte followed by zstd-compressed CBOR.
func encodeState(state *core.State) ([]byte, error) {
	raw, err := encMode.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	out := make([]byte, 1, 1+len(raw)/2)
	out[0] = sessionFormat
	return zstdEncoder.EncodeAll(raw, out), nil
}

func decodeState(data []byte) (*core.State, error) {
	if len(data) == 0 || data[0] != sessionFormat {
		return nil, fmt.Errorf("decode session: unsupported format")
	}
	raw, err := zstdDecoder.DecodeAll(data[1:], nil)
	if err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	var state core.State
	if err := decMode.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &state, nil
}
