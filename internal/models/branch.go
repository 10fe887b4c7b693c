package models

import "time"

// DefaultRootBranch is the name given to the parentless branch when none is configured.
const DefaultRootBranch = "main"

// Branch represents a named, isolated working copy of the inventory
type Branch struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Parent    string    `json:"parent,omitempty"` // Empty only for the root branch
	Merged    bool      `json:"merged"`
	Discarded bool      `json:"discarded"`
	CreatedAt time.Time `json:"created_at"`
	MergedAt  time.Time `json:"merged_at,omitempty"`
}

// IsRoot returns true for the single parentless branch
func (b *Branch) IsRoot() bool {
	return b.Parent == ""
}

// IsOpen returns true if the branch still accepts staged mutations and merges
func (b *Branch) IsOpen() bool {
	return !b.Merged && !b.Discarded
}

// State returns a short human readable lifecycle state
func (b *Branch) State() string {
	switch {
	case b.Merged:
		return "merged"
	case b.Discarded:
		return "discarded"
	default:
		return "open"
	}
}
