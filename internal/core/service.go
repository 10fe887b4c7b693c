// Package core implements the branching layer of dcb: branch lifecycle,
// staging against per-branch snapshots, the commit log, merge
// reconciliation into the persisted inventory, and the branch graph.
package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/kilupskalvis/dcbranch/internal/inventory"
	"github.com/kilupskalvis/dcbranch/internal/models"
	"github.com/kilupskalvis/dcbranch/internal/snapshot"
	"golang.org/x/sync/errgroup"
)

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used for lifecycle and merge events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the time source for commit and entity timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithAuthor sets the author recorded on commits.
func WithAuthor(author string) Option {
	return func(s *Service) {
		if author != "" {
			s.author = author
		}
	}
}

// WithRootBranch sets the name of the root branch. Only used by New.
func WithRootBranch(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.root = name
		}
	}
}

// Service is the Branching API. It owns the branch table, the per-branch
// snapshots, the commit log and the active branch pointer. Methods are
// safe for concurrent use but calls are serialized.
type Service struct {
	mu sync.Mutex

	store  inventory.Store
	logger *slog.Logger
	now    func() time.Time
	author string
	root   string

	branches  []*models.Branch // creation order
	byName    map[string]*models.Branch
	snapshots map[string]*snapshot.Snapshot
	pending   map[string]int
	log       *CommitLog
	active    string
}

func newService(st inventory.Store, opts []Option) *Service {
	s := &Service{
		store:     st,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:       time.Now,
		author:    "dcb",
		root:      models.DefaultRootBranch,
		byName:    make(map[string]*models.Branch),
		snapshots: make(map[string]*snapshot.Snapshot),
		pending:   make(map[string]int),
		log:       NewCommitLog(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// New creates a Service with a single root branch whose snapshot is loaded
// from the persisted store.
func New(ctx context.Context, st inventory.Store, opts ...Option) (*Service, error) {
	s := newService(st, opts)
	if err := validateBranchName(s.root); err != nil {
		return nil, err
	}

	snap, err := LoadSnapshot(ctx, st)
	if err != nil {
		return nil, err
	}

	now := s.now()
	root := &models.Branch{ID: newBranchID(), Name: s.root, CreatedAt: now}
	s.addBranch(root)
	s.snapshots[root.Name] = snap
	s.active = root.Name
	s.log.Append(root.Name, models.InitMessage(root.Name), s.author, now)

	s.logger.Debug("initialized branching service", "root", root.Name, "devices", snap.Len())
	return s, nil
}

// LoadSnapshot reads every collection from the persisted store and builds a snapshot.
func LoadSnapshot(ctx context.Context, st inventory.Store) (*snapshot.Snapshot, error) {
	var (
		sites     []*models.Site
		racks     []*models.Rack
		roles     []*models.DeviceRole
		platforms []*models.Platform
		devices   []*models.Device
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		sites, err = st.FindAllSites(ctx)
		return err
	})
	g.Go(func() (err error) {
		racks, err = st.FindAllRacks(ctx)
		return err
	})
	g.Go(func() (err error) {
		roles, err = st.FindAllRoles(ctx)
		return err
	})
	g.Go(func() (err error) {
		platforms, err = st.FindAllPlatforms(ctx)
		return err
	})
	g.Go(func() (err error) {
		devices, err = st.FindAllDevices(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load inventory: %w", err)
	}

	ref := models.NewReferenceData()
	for _, v := range sites {
		ref.Sites[v.ID] = v
	}
	for _, v := range racks {
		ref.Racks[v.ID] = v
	}
	for _, v := range roles {
		ref.Roles[v.ID] = v
	}
	for _, v := range platforms {
		ref.Platforms[v.ID] = v
	}

	return snapshot.FromInventory(ref, devices), nil
}

func (s *Service) addBranch(b *models.Branch) {
	s.branches = append(s.branches, b)
	s.byName[b.Name] = b
}

// RootBranch returns the name of the root branch.
func (s *Service) RootBranch() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root
}

// Commits returns a copy of the full commit log, oldest first.
func (s *Service) Commits() []*models.Commit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.All()
}

// BranchLog returns the commits recorded on one branch, oldest first.
func (s *Service) BranchLog(name string) ([]*models.Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[name]; !ok {
		return nil, &UnknownBranchError{Name: name}
	}
	return s.log.ForBranch(name), nil
}

// Graph returns the layout of the current branch and merge history.
func (s *Service) Graph() *models.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return BuildGraph(s.branches, s.log.commits, s.active)
}
