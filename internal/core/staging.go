package core

import (
	"fmt"

	"github.com/kilupskalvis/dcbranch/internal/models"
	"github.com/kilupskalvis/dcbranch/internal/snapshot"
)

// writableSnapshot returns the active branch and its snapshot if staging is allowed on it
func (s *Service) writableSnapshot() (*models.Branch, *snapshot.Snapshot, error) {
	b := s.byName[s.active]
	if b.IsRoot() {
		return nil, nil, &ProtectedBranchError{Name: b.Name, Reason: ReasonRootBranch}
	}
	if !b.IsOpen() {
		return nil, nil, &ProtectedBranchError{Name: b.Name, Reason: closedReason(b)}
	}
	return b, s.snapshots[b.Name], nil
}

// prepareDevice validates a payload and returns the stripped device to stage
func prepareDevice(snap *snapshot.Snapshot, id string, payload *models.Device) (*models.Device, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: device %s: missing payload", ErrInvalidEntity, id)
	}
	dev := payload.Columns()
	dev.ID = id
	if dev.Name == "" {
		return nil, fmt.Errorf("%w: device %s: name is required", ErrInvalidEntity, id)
	}
	status, err := models.ParseDeviceStatus(string(dev.Status))
	if err != nil {
		return nil, fmt.Errorf("%w: device %s: %v", ErrInvalidEntity, id, err)
	}
	dev.Status = status
	if err := snap.CheckReferences(dev); err != nil {
		return nil, fmt.Errorf("%w: device %s: %v", ErrInvalidEntity, id, err)
	}
	return dev, nil
}

// StageCreate adds a device to the active branch's snapshot.
func (s *Service) StageCreate(id string, payload *models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		return ErrEmptyEntityID
	}
	b, snap, err := s.writableSnapshot()
	if err != nil {
		return err
	}
	if snap.Has(id) {
		return &DuplicateEntityError{ID: id, Branch: b.Name}
	}
	dev, err := prepareDevice(snap, id, payload)
	if err != nil {
		return err
	}

	now := s.now()
	if dev.CreatedAt.IsZero() {
		dev.CreatedAt = now
	}
	if dev.UpdatedAt.IsZero() {
		dev.UpdatedAt = now
	}
	snap.Put(dev)
	s.pending[b.Name]++

	s.logger.Debug("staged create", "branch", b.Name, "device", id)
	return nil
}

// StageUpdate replaces the columns of a device on the active branch's
// snapshot. The creation time of the existing device is kept.
func (s *Service) StageUpdate(id string, payload *models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		return ErrEmptyEntityID
	}
	b, snap, err := s.writableSnapshot()
	if err != nil {
		return err
	}
	existing := snap.Get(id)
	if existing == nil {
		return &UnknownEntityError{ID: id, Branch: b.Name}
	}
	dev, err := prepareDevice(snap, id, payload)
	if err != nil {
		return err
	}

	dev.CreatedAt = existing.CreatedAt
	dev.UpdatedAt = s.now()
	snap.Put(dev)
	s.pending[b.Name]++

	s.logger.Debug("staged update", "branch", b.Name, "device", id)
	return nil
}

// StageDelete removes a device from the active branch's snapshot.
func (s *Service) StageDelete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		return ErrEmptyEntityID
	}
	b, snap, err := s.writableSnapshot()
	if err != nil {
		return err
	}
	if !snap.Has(id) {
		return &UnknownEntityError{ID: id, Branch: b.Name}
	}

	snap.Remove(id)
	s.pending[b.Name]++

	s.logger.Debug("staged delete", "branch", b.Name, "device", id)
	return nil
}

// Commit records the current staging session on the active branch.
func (s *Service) Commit(message string) (*models.Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if message == "" {
		return nil, ErrEmptyMessage
	}
	b, _, err := s.writableSnapshot()
	if err != nil {
		return nil, err
	}

	commit := s.log.Append(b.Name, message, s.author, s.now())
	staged := s.pending[b.Name]
	delete(s.pending, b.Name)

	s.logger.Info("recorded commit", "branch", b.Name, "commit", commit.ID, "staged", staged)
	return commit, nil
}

// Pending returns the number of staged mutations on a branch since its last commit.
func (s *Service) Pending(name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName[name]; !ok {
		return 0, &UnknownBranchError{Name: name}
	}
	return s.pending[name], nil
}

// Snapshot returns a copy of a branch's snapshot. Merged and discarded
// branches no longer own one.
func (s *Service) Snapshot(name string) (*snapshot.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.byName[name]
	if !ok {
		return nil, &UnknownBranchError{Name: name}
	}
	snap, ok := s.snapshots[name]
	if !ok {
		return nil, fmt.Errorf("%w: branch '%s' is %s", ErrNoSnapshot, name, b.State())
	}
	return snap.Clone(), nil
}

// ActiveSnapshot returns a copy of the active branch's snapshot.
func (s *Service) ActiveSnapshot() (*snapshot.Snapshot, error) {
	return s.Snapshot(s.ActiveBranch().Name)
}
