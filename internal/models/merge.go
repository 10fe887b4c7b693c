package models

// MergePlan is the reconciled operation set turning the persisted store into a branch's snapshot
type MergePlan struct {
	Branch    string       // Branch whose snapshot is the desired state
	Target    string       // Parent branch receiving the merge commit
	Creates   []*Operation // Entities in the snapshot but not in the store
	Updates   []*Operation // Entities in both whose persisted columns differ
	Deletes   []*Operation // Entities in the store but not in the snapshot
	Unchanged int          // Entities in both with identical columns (not written)
}

// TotalChanges returns the number of writes the plan performs
func (p *MergePlan) TotalChanges() int {
	return len(p.Creates) + len(p.Updates) + len(p.Deletes)
}

// IsEmpty returns true if applying the plan would not write anything
func (p *MergePlan) IsEmpty() bool {
	return p.TotalChanges() == 0
}

// MergeResult contains the outcome of a merge operation
type MergeResult struct {
	Success   bool    // Whether the reconciliation transaction committed
	Branch    string  // Merged branch
	Target    string  // Branch the active pointer moved to
	Created   int     // Entities created in the persisted store
	Updated   int     // Entities updated in the persisted store
	Deleted   int     // Entities deleted from the persisted store
	Unchanged int     // Entities already matching the store
	Commit    *Commit // Merge commit appended to the target branch
}
