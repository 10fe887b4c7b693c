package core

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/kilupskalvis/dcbranch/internal/models"
)

var branchNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]*$`)

// validateBranchName rejects names that could not be recovered from commit messages
func validateBranchName(name string) error {
	if name == "" {
		return ErrEmptyBranchName
	}
	if !branchNameRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidBranchName, name)
	}
	return nil
}

func newBranchID() string {
	return uuid.NewString()
}

func copyBranch(b *models.Branch) *models.Branch {
	cp := *b
	return &cp
}

func closedReason(b *models.Branch) string {
	if b.Merged {
		return ReasonMerged
	}
	return ReasonDiscarded
}

// CreateBranch forks the active branch. The new branch gets a deep copy of
// the active snapshot and becomes the active branch.
func (s *Service) CreateBranch(name string) (*models.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate before touching any state
	if err := validateBranchName(name); err != nil {
		return nil, err
	}
	if _, exists := s.byName[name]; exists {
		return nil, &DuplicateBranchError{Name: name}
	}
	parent := s.byName[s.active]
	if !parent.IsOpen() {
		return nil, &ProtectedBranchError{Name: parent.Name, Reason: closedReason(parent)}
	}

	now := s.now()
	branch := &models.Branch{
		ID:        newBranchID(),
		Name:      name,
		Parent:    parent.Name,
		CreatedAt: now,
	}
	s.addBranch(branch)
	s.snapshots[name] = s.snapshots[parent.Name].Clone()
	s.active = name
	commit := s.log.Append(name, models.ForkMessage(name, parent.Name), s.author, now)

	s.logger.Info("created branch", "branch", name, "parent", parent.Name, "commit", commit.ID)
	return copyBranch(branch), nil
}

// ListBranches returns all branches in creation order.
func (s *Service) ListBranches() []*models.Branch {
	s.mu.Lock()
	defer s.mu.Unlock()

	branches := make([]*models.Branch, len(s.branches))
	for i, b := range s.branches {
		branches[i] = copyBranch(b)
	}
	return branches
}

// Branch returns a branch by name.
func (s *Service) Branch(name string) (*models.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.byName[name]
	if !ok {
		return nil, &UnknownBranchError{Name: name}
	}
	return copyBranch(b), nil
}

// ActiveBranch returns the branch the active pointer refers to.
func (s *Service) ActiveBranch() *models.Branch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyBranch(s.byName[s.active])
}

// SetActiveBranch moves the active pointer. Snapshots are not affected.
func (s *Service) SetActiveBranch(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName[name]; !ok {
		return &UnknownBranchError{Name: name}
	}
	if s.active != name {
		s.logger.Debug("switched branch", "from", s.active, "to", name)
	}
	s.active = name
	return nil
}

// DiscardBranch closes an open branch without merging it and releases its
// snapshot. If it was active, the pointer moves to its nearest open ancestor.
func (s *Service) DiscardBranch(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.byName[name]
	if !ok {
		return &UnknownBranchError{Name: name}
	}
	if b.IsRoot() {
		return &ProtectedBranchError{Name: name, Reason: ReasonRootBranch}
	}
	if !b.IsOpen() {
		return &ProtectedBranchError{Name: name, Reason: closedReason(b)}
	}
	for _, child := range s.branches {
		if child.Parent == name && child.IsOpen() {
			return &ProtectedBranchError{Name: name, Reason: ReasonOpenChildren}
		}
	}

	b.Discarded = true
	delete(s.snapshots, name)
	delete(s.pending, name)
	commit := s.log.Append(name, models.DiscardMessage(name), s.author, s.now())
	if s.active == name {
		s.active = s.openAncestor(b)
	}

	s.logger.Info("discarded branch", "branch", name, "commit", commit.ID)
	return nil
}

// openAncestor walks parent links until it finds an open branch. The root is
// always open, so the walk terminates.
func (s *Service) openAncestor(b *models.Branch) string {
	for p := s.byName[b.Parent]; p != nil; p = s.byName[p.Parent] {
		if p.IsOpen() {
			return p.Name
		}
	}
	return s.root
}
