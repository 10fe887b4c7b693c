package core

import (
	"context"
	"fmt"

	"github.com/kilupskalvis/dcbranch/internal/inventory"
	"github.com/kilupskalvis/dcbranch/internal/models"
	"github.com/kilupskalvis/dcbranch/internal/snapshot"
)

// State is the serializable form of a Service. The root snapshot is not
// included; it is reloaded from the persisted store on Restore.
type State struct {
	Root      string                      `json:"root"`
	Active    string                      `json:"active"`
	Branches  []*models.Branch            `json:"branches"`
	Commits   []*models.Commit            `json:"commits"`
	Snapshots map[string][]*models.Device `json:"snapshots"`
	Pending   map[string]int              `json:"pending,omitempty"`
}

// State exports the branch table, commit log, open snapshots and active pointer.
func (s *Service) State() *State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &State{
		Root:      s.root,
		Active:    s.active,
		Branches:  make([]*models.Branch, len(s.branches)),
		Commits:   s.log.All(),
		Snapshots: make(map[string][]*models.Device),
		Pending:   make(map[string]int),
	}
	for i, b := range s.branches {
		st.Branches[i] = copyBranch(b)
	}
	for name, snap := range s.snapshots {
		if name == s.root {
			continue
		}
		devices := snap.List()
		for i, d := range devices {
			devices[i] = d.Columns()
		}
		st.Snapshots[name] = devices
	}
	for name, n := range s.pending {
		st.Pending[name] = n
	}
	return st
}

// Restore rebuilds a Service from exported state. Branch snapshots are
// decorated with the store's current reference data.
func Restore(ctx context.Context, st inventory.Store, state *State, opts ...Option) (*Service, error) {
	s := newService(st, opts)
	s.root = state.Root

	rootSnap, err := LoadSnapshot(ctx, st)
	if err != nil {
		return nil, err
	}

	roots := 0
	for _, b := range state.Branches {
		if _, dup := s.byName[b.Name]; dup {
			return nil, fmt.Errorf("restore: duplicate branch '%s'", b.Name)
		}
		if b.IsRoot() {
			roots++
			if b.Name != state.Root {
				return nil, fmt.Errorf("restore: root branch is '%s', state names '%s'", b.Name, state.Root)
			}
		}
		s.addBranch(copyBranch(b))
	}
	if roots != 1 {
		return nil, fmt.Errorf("restore: expected one root branch, found %d", roots)
	}
	if _, ok := s.byName[state.Active]; !ok {
		return nil, fmt.Errorf("restore: %w", &UnknownBranchError{Name: state.Active})
	}

	for _, b := range s.branches {
		if b.IsRoot() {
			s.snapshots[b.Name] = rootSnap
			continue
		}
		if !b.IsOpen() {
			continue
		}
		if _, ok := s.byName[b.Parent]; !ok {
			return nil, fmt.Errorf("restore: branch '%s' has unknown parent '%s'", b.Name, b.Parent)
		}
		s.snapshots[b.Name] = snapshot.FromInventory(rootSnap.Reference, state.Snapshots[b.Name])
	}

	log, err := restoreCommitLog(state.Commits)
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	for _, c := range state.Commits {
		if _, ok := s.byName[c.Branch]; !ok {
			return nil, fmt.Errorf("restore: commit %d references unknown branch '%s'", c.ID, c.Branch)
		}
	}
	s.log = log

	for name, n := range state.Pending {
		if b, ok := s.byName[name]; ok && b.IsOpen() && n > 0 {
			s.pending[name] = n
		}
	}
	s.active = state.Active

	s.logger.Debug("restored branching service", "branches", len(s.branches), "commits", log.Len(), "active", s.active)
	return s, nil
}
