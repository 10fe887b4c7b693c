package core

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyBranchName   = errors.New("branch name cannot be empty")
	ErrInvalidBranchName = errors.New("invalid branch name")
	ErrEmptyEntityID     = errors.New("entity id cannot be empty")
	ErrInvalidEntity     = errors.New("invalid entity")
	ErrEmptyMessage      = errors.New("commit message cannot be empty")
	ErrNoSnapshot        = errors.New("branch has no snapshot")
)

// DuplicateBranchError is returned when creating a branch whose name is taken.
type DuplicateBranchError struct {
	Name string
}

func (e *DuplicateBranchError) Error() string {
	return fmt.Sprintf("branch '%s' already exists", e.Name)
}

// UnknownBranchError is returned when a branch name does not resolve.
type UnknownBranchError struct {
	Name string
}

func (e *UnknownBranchError) Error() string {
	return fmt.Sprintf("branch '%s' not found", e.Name)
}

// Reasons a branch refuses modification.
const (
	ReasonRootBranch   = "the root branch cannot be modified directly; create a branch first"
	ReasonMerged       = "branch is merged"
	ReasonDiscarded    = "branch is discarded"
	ReasonOpenChildren = "branch has open child branches"
)

// ProtectedBranchError is returned when staging against, committing to, or
// discarding a branch that does not accept it.
type ProtectedBranchError struct {
	Name   string
	Reason string
}

func (e *ProtectedBranchError) Error() string {
	return fmt.Sprintf("cannot modify branch '%s': %s", e.Name, e.Reason)
}

// MergeFailure identifies why a merge was rejected
type MergeFailure string

const (
	MergeRootBranch        MergeFailure = "root-branch"
	MergeAlreadyMerged     MergeFailure = "already-merged"
	MergeBranchClosed      MergeFailure = "branch-closed"
	MergeTransactionFailed MergeFailure = "transaction-failed"
)

// MergeError is returned when MergeActiveBranch cannot complete. Err holds
// the persistence failure for MergeTransactionFailed.
type MergeError struct {
	Branch string
	Reason MergeFailure
	Err    error
}

func (e *MergeError) Error() string {
	switch e.Reason {
	case MergeRootBranch:
		return fmt.Sprintf("cannot merge '%s': it is the root branch", e.Branch)
	case MergeAlreadyMerged:
		return fmt.Sprintf("cannot merge '%s': branch is already merged", e.Branch)
	case MergeBranchClosed:
		return fmt.Sprintf("cannot merge '%s': branch is discarded", e.Branch)
	default:
		return fmt.Sprintf("merge of '%s' failed: %v", e.Branch, e.Err)
	}
}

func (e *MergeError) Unwrap() error {
	return e.Err
}

// UnknownEntityError is returned when staging against an entity the branch does not contain.
type UnknownEntityError struct {
	ID     string
	Branch string
}

func (e *UnknownEntityError) Error() string {
	return fmt.Sprintf("device '%s' not found on branch '%s'", e.ID, e.Branch)
}

// DuplicateEntityError is returned when staging a create for an ID the branch already contains.
type DuplicateEntityError struct {
	ID     string
	Branch string
}

func (e *DuplicateEntityError) Error() string {
	return fmt.Sprintf("device '%s' already exists on branch '%s'", e.ID, e.Branch)
}
