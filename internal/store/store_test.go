package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kilupskalvis/dcbranch/internal/core"
	"github.com/kilupskalvis/dcbranch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore creates a new bbolt store in a temp directory for testing.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "session.db")
	st, err := New(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Initialize())
	t.Cleanup(func() { st.Close() })
	return st
}

func testState() *core.State {
	ts := time.Date(2026, 5, 1, 12, 30, 0, 123456789, time.UTC)
	return &core.State{
		Root:   "main",
		Active: "feat1",
		Branches: []*models.Branch{
			{ID: "b-1", Name: "main", CreatedAt: ts},
			{ID: "b-2", Name: "feat1", Parent: "main", CreatedAt: ts},
			{ID: "b-3", Name: "old", Parent: "main", Merged: true, CreatedAt: ts, MergedAt: ts.Add(time.Minute)},
		},
		Commits: []*models.Commit{
			{ID: 1, Branch: "main", Message: models.InitMessage("main"), Author: "dcb", Timestamp: ts},
			{ID: 2, Branch: "feat1", Message: models.ForkMessage("feat1", "main"), Author: "dcb", Timestamp: ts},
		},
		Snapshots: map[string][]*models.Device{
			"feat1": {
				{
					ID:           "sw1",
					Name:         "leaf-01",
					RackID:       "r1",
					Position:     12,
					Status:       models.StatusPlanned,
					Tags:         []string{"leaf", "edge"},
					CustomFields: map[string]string{"owner": "netops"},
					CreatedAt:    ts,
					UpdatedAt:    ts.Add(time.Second),
				},
			},
		},
		Pending: map[string]int{"feat1": 3},
	}
}

// ==================== Store Tests ====================

func TestStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "session.db")
	st, err := New(dbPath)
	require.NoError(t, err)
	defer st.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestStore_GetSetValue(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.SetValue("author", "alice"))
	val, err := st.GetValue("author")
	require.NoError(t, err)
	assert.Equal(t, "alice", val)

	// Missing keys return empty
	val, err = st.GetValue("nonexistent")
	require.NoError(t, err)
	assert.Equal(t, "", val)

	require.NoError(t, st.SetValue("author", "bob"))
	val, err = st.GetValue("author")
	require.NoError(t, err)
	assert.Equal(t, "bob", val)
}

func TestStore_CloseNil(t *testing.T) {
	assert.NoError(t, (&Store{}).Close())
}

// ==================== Session Tests ====================

func TestSession_LoadEmpty(t *testing.T) {
	st := newTestStore(t)

	state, err := st.LoadState()
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestSession_SaveLoadRoundTrip(t *testing.T) {
	st := newTestStore(t)
	want := testState()

	require.NoError(t, st.SaveState(want))
	got, err := st.LoadState()
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, want.Root, got.Root)
	assert.Equal(t, want.Active, got.Active)
	assert.Equal(t, want.Pending, got.Pending)

	require.Len(t, got.Branches, 3)
	assert.Equal(t, "feat1", got.Branches[1].Name)
	assert.Equal(t, "main", got.Branches[1].Parent)
	assert.True(t, got.Branches[2].Merged)
	assert.True(t, got.Branches[2].MergedAt.Equal(want.Branches[2].MergedAt))

	require.Len(t, got.Commits, 2)
	assert.Equal(t, int64(2), got.Commits[1].ID)
	assert.Equal(t, want.Commits[1].Message, got.Commits[1].Message)
	assert.True(t, got.Commits[0].Timestamp.Equal(want.Commits[0].Timestamp), "sub-second precision kept")

	require.Len(t, got.Snapshots["feat1"], 1)
	d := got.Snapshots["feat1"][0]
	w := want.Snapshots["feat1"][0]
	assert.Equal(t, w.Name, d.Name)
	assert.Equal(t, w.RackID, d.RackID)
	assert.Equal(t, w.Position, d.Position)
	assert.Equal(t, w.Status, d.Status)
	assert.Equal(t, w.Tags, d.Tags)
	assert.Equal(t, w.CustomFields, d.CustomFields)
	assert.True(t, d.UpdatedAt.Equal(w.UpdatedAt))

	savedAt, err := st.GetValue(savedAtKey)
	require.NoError(t, err)
	_, err = time.Parse(time.RFC3339, savedAt)
	assert.NoError(t, err)
}

func TestSession_SaveReplaces(t *testing.T) {
	st := newTestStore(t)
	first := testState()
	require.NoError(t, st.SaveState(first))

	second := testState()
	second.Active = "main"
	second.Snapshots = map[string][]*models.Device{}
	require.NoError(t, st.SaveState(second))

	got, err := st.LoadState()
	require.NoError(t, err)
	assert.Equal(t, "main", got.Active)
	assert.Empty(t, got.Snapshots)
}

func TestSession_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "session.db")
	st, err := New(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Initialize())
	require.NoError(t, st.SaveState(testState()))
	require.NoError(t, st.Close())

	st, err = New(dbPath)
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Initialize())

	got, err := st.LoadState()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "feat1", got.Active)
}

func TestSession_Reset(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.SaveState(testState()))

	require.NoError(t, st.ResetState())
	got, err := st.LoadState()
	require.NoError(t, err)
	assert.Nil(t, got)

	// Resetting an empty session is fine
	assert.NoError(t, st.ResetState())
}

func TestSession_EncodingIsDeterministic(t *testing.T) {
	a, err := encodeState(testState())
	require.NoError(t, err)
	b, err := encodeState(testState())
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, sessionFormat, a[0])
}

func TestSession_DecodeRejectsUnknownFormat(t *testing.T) {
	_, err := decodeState(nil)
	assert.Error(t, err)

	_, err = decodeState([]byte{9, 1, 2, 3})
	assert.ErrorContains(t, err, "unsupported format")

	_, err = decodeState([]byte{sessionFormat, 0xde, 0xad})
	assert.Error(t, err)
}

func TestStore_SavedAt(t *testing.T) {
	st := newTestStore(t)

	saved, err := st.SavedAt()
	require.NoError(t, err)
	assert.True(t, saved.IsZero())

	before := time.Now().Add(-time.Second)
	require.NoError(t, st.SaveState(testState()))
	saved, err = st.SavedAt()
	require.NoError(t, err)
	assert.True(t, saved.After(before))

	require.NoError(t, st.SetValue(savedAtKey, "yesterday"))
	_, err = st.SavedAt()
	assert.Error(t, err)
}

func TestStore_NotInitialized(t *testing.T) {
	st, err := New(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	defer st.Close()

	assert.ErrorIs(t, st.SaveState(testState()), ErrNotInitialized)
	assert.ErrorIs(t, st.SetValue("k", "v"), ErrNotInitialized)
	assert.ErrorIs(t, st.ResetState(), ErrNotInitialized)

	// Reads on a fresh file see an empty session
	state, err := st.LoadState()
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestStore_OpenReadOnly(t *testing.T) {
	_, err := OpenReadOnly(filepath.Join(t.TempDir(), "missing.db"))
	assert.Error(t, err)

	dbPath := filepath.Join(t.TempDir(), "session.db")
	st, err := New(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Initialize())
	require.NoError(t, st.SaveState(testState()))
	require.NoError(t, st.Close())

	ro, err := OpenReadOnly(dbPath)
	require.NoError(t, err)
	defer ro.Close()

	got, err := ro.LoadState()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "feat1", got.Active)
	assert.Error(t, ro.SetValue("k", "v"))
}
