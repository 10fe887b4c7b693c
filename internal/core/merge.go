package core

import (
	"context"
	"fmt"
	"sort"

	"github.com/kilupskalvis/dcbranch/internal/inventory"
	"github.com/kilupskalvis/dcbranch/internal/models"
	"github.com/kilupskalvis/dcbranch/internal/snapshot"
)

// Plan computes the operations that turn the persisted devices (actual) into
// the snapshot's devices (desired). Persisted devices missing from the
// snapshot are deleted; snapshot devices missing from the store are created;
// devices present in both are updated only if their persisted columns differ.
// Every operation carries stripped devices only.
func Plan(desired *snapshot.Snapshot, actual []*models.Device) *models.MergePlan {
	plan := &models.MergePlan{
		Creates: make([]*models.Operation, 0),
		Updates: make([]*models.Operation, 0),
		Deletes: make([]*models.Operation, 0),
	}

	persisted := make(map[string]*models.Device, len(actual))
	for _, d := range actual {
		persisted[d.ID] = d
	}

	// toDelete = persisted - snapshot
	persistedIDs := make([]string, 0, len(persisted))
	for id := range persisted {
		persistedIDs = append(persistedIDs, id)
	}
	sort.Strings(persistedIDs)
	for _, id := range persistedIDs {
		if !desired.Has(id) {
			plan.Deletes = append(plan.Deletes, &models.Operation{
				Type:     models.OperationDelete,
				ObjectID: id,
				Previous: persisted[id].Columns(),
			})
		}
	}

	// toUpsert = snapshot
	for _, d := range desired.List() {
		cols := d.Columns()
		current, exists := persisted[d.ID]
		switch {
		case !exists:
			plan.Creates = append(plan.Creates, &models.Operation{
				Type:     models.OperationInsert,
				ObjectID: d.ID,
				Current:  cols,
			})
		case snapshot.Fingerprint(current) != snapshot.Fingerprint(cols):
			plan.Updates = append(plan.Updates, &models.Operation{
				Type:     models.OperationUpdate,
				ObjectID: d.ID,
				Current:  cols,
				Previous: current.Columns(),
			})
		default:
			plan.Unchanged++
		}
	}

	return plan
}

// applyPlan issues the plan's writes on an open transaction. Delete and
// upsert sets are disjoint, so their order does not matter.
func applyPlan(ctx context.Context, tx inventory.Tx, plan *models.MergePlan) error {
	if len(plan.Deletes) > 0 {
		ids := make([]string, len(plan.Deletes))
		for i, op := range plan.Deletes {
			ids[i] = op.ObjectID
		}
		if err := tx.DeleteDevices(ctx, ids); err != nil {
			return fmt.Errorf("delete devices: %w", err)
		}
	}

	if len(plan.Creates) > 0 {
		devices := make([]*models.Device, len(plan.Creates))
		for i, op := range plan.Creates {
			devices[i] = op.Current
		}
		if err := tx.CreateDevices(ctx, devices); err != nil {
			return fmt.Errorf("create devices: %w", err)
		}
	}

	for _, op := range plan.Updates {
		if err := tx.UpdateDevice(ctx, op.ObjectID, op.Current); err != nil {
			return fmt.Errorf("update device %s: %w", op.ObjectID, err)
		}
	}

	return nil
}

// mergeable checks the active branch can be merged and returns it with its merge target
func (s *Service) mergeable() (*models.Branch, string, error) {
	b := s.byName[s.active]
	switch {
	case b.IsRoot():
		return nil, "", &MergeError{Branch: b.Name, Reason: MergeRootBranch}
	case b.Merged:
		return nil, "", &MergeError{Branch: b.Name, Reason: MergeAlreadyMerged}
	case b.Discarded:
		return nil, "", &MergeError{Branch: b.Name, Reason: MergeBranchClosed}
	}
	return b, s.openAncestor(b), nil
}

// PreviewMerge computes the plan a merge of the active branch would apply,
// without writing anything.
func (s *Service) PreviewMerge(ctx context.Context) (*models.MergePlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, target, err := s.mergeable()
	if err != nil {
		return nil, err
	}

	actual, err := s.store.FindAllDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("read persisted devices: %w", err)
	}

	plan := Plan(s.snapshots[b.Name], actual)
	plan.Branch = b.Name
	plan.Target = target
	return plan, nil
}

// MergeActiveBranch reconciles the active branch's snapshot into the
// persisted store in one transaction. On success the branch is marked
// merged, a merge commit is appended to its target (the parent, or the
// nearest open ancestor if the parent has been closed), and the active
// pointer moves to the target. The root snapshot is replaced so it mirrors
// the store again. On failure no state changes.
func (s *Service) MergeActiveBranch(ctx context.Context) (*models.MergeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, target, err := s.mergeable()
	if err != nil {
		return nil, err
	}
	snap := s.snapshots[b.Name]

	// Step 1: Read the persisted state and apply the plan atomically
	var plan *models.MergePlan
	err = s.store.RunInTransaction(ctx, func(tx inventory.Tx) error {
		actual, err := tx.FindAllDevices(ctx)
		if err != nil {
			return fmt.Errorf("read persisted devices: %w", err)
		}
		plan = Plan(snap, actual)
		return applyPlan(ctx, tx, plan)
	})
	if err != nil {
		s.logger.Warn("merge failed", "branch", b.Name, "target", target, "error", err)
		return nil, &MergeError{Branch: b.Name, Reason: MergeTransactionFailed, Err: err}
	}

	// Step 2: Retire the branch. An open non-root target keeps its own
	// snapshot and pending count; only the root is re-synced to the store.
	now := s.now()
	b.Merged = true
	b.MergedAt = now
	commit := s.log.Append(target, models.MergeMessage(b.Name, target), s.author, now)

	delete(s.snapshots, b.Name)
	delete(s.pending, b.Name)
	s.snapshots[s.root] = snap
	s.active = target

	s.logger.Info("merged branch",
		"branch", b.Name,
		"target", target,
		"commit", commit.ID,
		"created", len(plan.Creates),
		"updated", len(plan.Updates),
		"deleted", len(plan.Deletes),
		"unchanged", plan.Unchanged,
	)

	return &models.MergeResult{
		Success:   true,
		Branch:    b.Name,
		Target:    target,
		Created:   len(plan.Creates),
		Updated:   len(plan.Updates),
		Deleted:   len(plan.Deletes),
		Unchanged: plan.Unchanged,
		Commit:    commit,
	}, nil
}
