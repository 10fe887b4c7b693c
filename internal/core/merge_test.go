package core

import (
	"context"
	"errors"
	"testing"

	"github.com/kilupskalvis/dcbranch/internal/models"
	"github.com/kilupskalvis/dcbranch/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func opIDs(ops []*models.Operation) []string {
	ids := make([]string, len(ops))
	for i, op := range ops {
		ids[i] = op.ObjectID
	}
	return ids
}

// ==================== Plan Tests ====================

func TestPlan(t *testing.T) {
	ref := models.NewReferenceData()
	ref.Sites["dc1"] = &models.Site{ID: "dc1", Name: "Datacenter 1"}

	changed := device("B")
	changed.Name = "renamed"
	relocated := device("C")
	relocated.SiteID = "dc1"
	desired := snapshot.FromInventory(ref, []*models.Device{device("A"), changed, relocated, device("E")})
	actual := []*models.Device{device("A"), device("B"), device("C"), device("D")}

	plan := Plan(desired, actual)
	assert.Equal(t, []string{"E"}, opIDs(plan.Creates))
	assert.Equal(t, []string{"B", "C"}, opIDs(plan.Updates))
	assert.Equal(t, []string{"D"}, opIDs(plan.Deletes))
	assert.Equal(t, 1, plan.Unchanged)
	assert.Equal(t, 4, plan.TotalChanges())

	for _, op := range plan.Creates {
		assert.Equal(t, models.OperationInsert, op.Type)
		assert.Nil(t, op.Previous)
	}
	for _, op := range plan.Updates {
		assert.Equal(t, models.OperationUpdate, op.Type)
		require.NotNil(t, op.Previous)
	}
	assert.Nil(t, plan.Deletes[0].Current)

	// Operations carry stripped devices only
	upd := plan.Updates[1]
	assert.Equal(t, "dc1", upd.Current.SiteID)
	assert.Nil(t, upd.Current.Site)
}

func TestPlan_IgnoresTimestampOnlyChanges(t *testing.T) {
	d := device("A")
	touched := device("A")
	touched.UpdatedAt = touched.UpdatedAt.AddDate(1, 0, 0)

	plan := Plan(snapshot.FromInventory(models.NewReferenceData(), []*models.Device{touched}), []*models.Device{d})
	assert.True(t, plan.IsEmpty())
	assert.Equal(t, 1, plan.Unchanged)
}

func TestPlan_Idempotent(t *testing.T) {
	actual := []*models.Device{device("A"), device("B")}
	desired := snapshot.FromInventory(models.NewReferenceData(), actual)

	first := Plan(desired, actual)
	second := Plan(desired, actual)
	assert.True(t, first.IsEmpty())
	assert.Equal(t, first, second)
}

// ==================== Merge Tests ====================

func TestMerge_EndToEnd(t *testing.T) {
	ctx := context.Background()
	svc, m := newTestService(t, "A", "B")

	_, err := svc.CreateBranch("feat1")
	require.NoError(t, err)
	require.NoError(t, svc.StageDelete("B"))
	require.NoError(t, svc.StageCreate("C", device("C")))
	_, err = svc.Commit("replace B with C")
	require.NoError(t, err)

	result, err := svc.MergeActiveBranch(ctx)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "feat1", result.Branch)
	assert.Equal(t, "main", result.Target)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 1, result.Unchanged)
	require.NotNil(t, result.Commit)
	assert.Equal(t, "main", result.Commit.Branch)
	assert.Equal(t, models.MergeMessage("feat1", "main"), result.Commit.Message)

	assert.Equal(t, []string{"A", "C"}, m.DeviceIDs())
	assert.Equal(t, "main", svc.ActiveBranch().Name)
	assert.Equal(t, []string{"A", "C"}, snapshotIDs(t, svc, "main"))

	b, err := svc.Branch("feat1")
	require.NoError(t, err)
	assert.True(t, b.Merged)
	assert.False(t, b.MergedAt.IsZero())
	_, err = svc.Snapshot("feat1")
	assert.ErrorIs(t, err, ErrNoSnapshot)

	// A second plan against the merged store is empty
	snap, err := svc.Snapshot("main")
	require.NoError(t, err)
	actual, err := m.FindAllDevices(ctx)
	require.NoError(t, err)
	assert.True(t, Plan(snap, actual).IsEmpty())
}

func TestMerge_UpdatesOnlyChangedDevices(t *testing.T) {
	svc, m := newTestService(t, "A", "B")
	_, err := svc.CreateBranch("feat1")
	require.NoError(t, err)

	same := device("A")
	require.NoError(t, svc.StageUpdate("A", same))
	changed := device("B")
	changed.Serial = "SN-1"
	require.NoError(t, svc.StageUpdate("B", changed))

	result, err := svc.MergeActiveBranch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Unchanged)
	assert.Equal(t, 1, m.Updates)
	assert.Equal(t, "SN-1", m.Devices["B"].Serial)
}

func TestMerge_DeleteOnly(t *testing.T) {
	svc, m := newTestService(t, "A", "B")
	_, err := svc.CreateBranch("feat1")
	require.NoError(t, err)
	require.NoError(t, svc.StageDelete("A"))
	require.NoError(t, svc.StageDelete("B"))

	result, err := svc.MergeActiveBranch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Deleted)
	assert.Zero(t, result.Created+result.Updated)
	assert.Empty(t, m.DeviceIDs())
}

func TestMerge_CreateOnly(t *testing.T) {
	svc, m := newTestService(t)
	_, err := svc.CreateBranch("feat1")
	require.NoError(t, err)
	d := device("sw1")
	d.SiteID, d.RackID = "dc1", "r1"
	require.NoError(t, svc.StageCreate("sw1", d))

	result, err := svc.MergeActiveBranch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, []string{"sw1"}, m.DeviceIDs())
	assert.Equal(t, "r1", m.Devices["sw1"].RackID)
	assert.Nil(t, m.Devices["sw1"].Rack)
}

func TestMerge_EmptyBranch(t *testing.T) {
	svc, m := newTestService(t, "A")
	_, err := svc.CreateBranch("feat1")
	require.NoError(t, err)

	result, err := svc.MergeActiveBranch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Created+result.Updated+result.Deleted)
	assert.Equal(t, 1, result.Unchanged)
	assert.Equal(t, []string{"A"}, m.DeviceIDs())
	assert.True(t, result.Commit.IsMergeCommit())
}

func TestMerge_RootBranchRejected(t *testing.T) {
	svc, m := newTestService(t, "A")
	_, err := svc.CreateBranch("feat1")
	require.NoError(t, err)
	require.NoError(t, svc.SetActiveBranch("main"))
	commits := len(svc.Commits())

	_, err = svc.MergeActiveBranch(context.Background())
	var mergeErr *MergeError
	require.ErrorAs(t, err, &mergeErr)
	assert.Equal(t, MergeRootBranch, mergeErr.Reason)
	assert.Equal(t, "main", mergeErr.Branch)

	for _, b := range svc.ListBranches() {
		assert.False(t, b.Merged, b.Name)
	}
	assert.Len(t, svc.Commits(), commits)
	assert.Equal(t, []string{"A"}, m.DeviceIDs())
}

func TestMerge_AlreadyMergedIsNoOp(t *testing.T) {
	ctx := context.Background()
	svc, m := newTestService(t, "A")
	_, err := svc.CreateBranch("feat1")
	require.NoError(t, err)
	require.NoError(t, svc.StageCreate("B", device("B")))
	_, err = svc.MergeActiveBranch(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.SetActiveBranch("feat1"))
	commits := len(svc.Commits())
	writes := m.Creates + m.Updates + m.Deletes

	_, err = svc.MergeActiveBranch(ctx)
	var mergeErr *MergeError
	require.ErrorAs(t, err, &mergeErr)
	assert.Equal(t, MergeAlreadyMerged, mergeErr.Reason)
	assert.Contains(t, err.Error(), "already merged")

	assert.Len(t, svc.Commits(), commits)
	assert.Equal(t, writes, m.Creates+m.Updates+m.Deletes)
	assert.Equal(t, "feat1", svc.ActiveBranch().Name)
}

func TestMerge_DiscardedBranchRejected(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.CreateBranch("feat1")
	require.NoError(t, err)
	require.NoError(t, svc.DiscardBranch("feat1"))
	require.NoError(t, svc.SetActiveBranch("feat1"))

	_, err = svc.MergeActiveBranch(context.Background())
	var mergeErr *MergeError
	require.ErrorAs(t, err, &mergeErr)
	assert.Equal(t, MergeBranchClosed, mergeErr.Reason)
}

func TestMerge_TransactionFailureLeavesStateUnchanged(t *testing.T) {
	svc, m := newTestService(t, "A", "B")
	_, err := svc.CreateBranch("feat1")
	require.NoError(t, err)
	require.NoError(t, svc.StageDelete("A"))
	require.NoError(t, svc.StageCreate("C", device("C")))

	boom := errors.New("disk full")
	m.CreateErr = boom
	commits := len(svc.Commits())

	_, err = svc.MergeActiveBranch(context.Background())
	var mergeErr *MergeError
	require.ErrorAs(t, err, &mergeErr)
	assert.Equal(t, MergeTransactionFailed, mergeErr.Reason)
	assert.ErrorIs(t, err, boom)

	// The delete ran inside the transaction and was rolled back
	assert.Equal(t, []string{"A", "B"}, m.DeviceIDs())
	assert.Equal(t, "feat1", svc.ActiveBranch().Name)
	b, err := svc.Branch("feat1")
	require.NoError(t, err)
	assert.False(t, b.Merged)
	assert.Len(t, svc.Commits(), commits)
	assert.Equal(t, []string{"B", "C"}, snapshotIDs(t, svc, "feat1"))
	assert.Equal(t, []string{"A", "B"}, snapshotIDs(t, svc, "main"))
	pending, err := svc.Pending("feat1")
	require.NoError(t, err)
	assert.Equal(t, 2, pending)

	// The merge succeeds once the store recovers
	m.CreateErr = nil
	result, err := svc.MergeActiveBranch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, []string{"B", "C"}, m.DeviceIDs())
}

func TestMerge_IntoNonRootParent(t *testing.T) {
	ctx := context.Background()
	svc, m := newTestService(t, "A")

	_, err := svc.CreateBranch("feat1")
	require.NoError(t, err)
	_, err = svc.CreateBranch("feat2")
	require.NoError(t, err)
	require.NoError(t, svc.StageCreate("B", device("B")))

	result, err := svc.MergeActiveBranch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "feat1", result.Target)
	assert.Equal(t, "feat1", result.Commit.Branch)
	assert.Equal(t, "feat1", svc.ActiveBranch().Name)

	// The store and the root hold the merged state; the target keeps its own snapshot
	assert.Equal(t, []string{"A", "B"}, m.DeviceIDs())
	assert.Equal(t, []string{"A", "B"}, snapshotIDs(t, svc, "main"))
	assert.Equal(t, []string{"A"}, snapshotIDs(t, svc, "feat1"))

	// feat1's snapshot is authoritative when it merges in turn
	result, err = svc.MergeActiveBranch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "main", result.Target)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 1, result.Unchanged)
	assert.Equal(t, []string{"A"}, m.DeviceIDs())
}

func TestMerge_KeepsTargetStagedWork(t *testing.T) {
	ctx := context.Background()
	svc, m := newTestService(t, "A")

	_, err := svc.CreateBranch("feat1")
	require.NoError(t, err)
	_, err = svc.CreateBranch("feat2")
	require.NoError(t, err)

	require.NoError(t, svc.SetActiveBranch("feat1"))
	require.NoError(t, svc.StageCreate("X", device("X")))
	require.NoError(t, svc.SetActiveBranch("feat2"))
	require.NoError(t, svc.StageCreate("Y", device("Y")))

	result, err := svc.MergeActiveBranch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "feat1", result.Target)
	assert.Equal(t, []string{"A", "Y"}, m.DeviceIDs())
	assert.Equal(t, []string{"A", "Y"}, snapshotIDs(t, svc, "main"))

	// Work staged on the open target survives the merge
	assert.Equal(t, []string{"A", "X"}, snapshotIDs(t, svc, "feat1"))
	pending, err := svc.Pending("feat1")
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestMerge_TargetsNearestOpenAncestor(t *testing.T) {
	ctx := context.Background()
	svc, m := newTestService(t, "A")

	_, err := svc.CreateBranch("feat1")
	require.NoError(t, err)
	_, err = svc.CreateBranch("feat2")
	require.NoError(t, err)
	require.NoError(t, svc.StageCreate("C", device("C")))

	require.NoError(t, svc.SetActiveBranch("feat1"))
	_, err = svc.MergeActiveBranch(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.SetActiveBranch("feat2"))
	result, err := svc.MergeActiveBranch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "main", result.Target)
	assert.Equal(t, "main", svc.ActiveBranch().Name)
	assert.Equal(t, []string{"A", "C"}, m.DeviceIDs())
}

func TestPreviewMerge(t *testing.T) {
	ctx := context.Background()
	svc, m := newTestService(t, "A", "B")
	_, err := svc.CreateBranch("feat1")
	require.NoError(t, err)
	require.NoError(t, svc.StageDelete("A"))
	require.NoError(t, svc.StageCreate("C", device("C")))

	plan, err := svc.PreviewMerge(ctx)
	require.NoError(t, err)
	assert.Equal(t, "feat1", plan.Branch)
	assert.Equal(t, "main", plan.Target)
	assert.Equal(t, []string{"C"}, opIDs(plan.Creates))
	assert.Equal(t, []string{"A"}, opIDs(plan.Deletes))
	assert.Equal(t, 1, plan.Unchanged)

	// Nothing is written
	assert.Equal(t, []string{"A", "B"}, m.DeviceIDs())
	assert.Zero(t, m.Creates+m.Updates+m.Deletes)

	require.NoError(t, svc.SetActiveBranch("main"))
	_, err = svc.PreviewMerge(ctx)
	var mergeErr *MergeError
	assert.ErrorAs(t, err, &mergeErr)
}
