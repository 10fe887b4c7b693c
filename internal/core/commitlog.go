package core

import (
	"fmt"
	"time"

	"github.com/kilupskalvis/dcbranch/internal/models"
)

// CommitLog is the append-only record of semantic events. Insertion order is
// authoritative; IDs increase monotonically.
type CommitLog struct {
	commits []*models.Commit
	nextID  int64
}

// NewCommitLog creates an empty log whose first commit gets ID 1.
func NewCommitLog() *CommitLog {
	return &CommitLog{nextID: 1}
}

// restoreCommitLog rebuilds a log from persisted commits, checking that IDs increase.
func restoreCommitLog(commits []*models.Commit) (*CommitLog, error) {
	l := NewCommitLog()
	for _, c := range commits {
		if c.ID < l.nextID {
			return nil, fmt.Errorf("commit log out of order at commit %d", c.ID)
		}
		cp := *c
		l.commits = append(l.commits, &cp)
		l.nextID = c.ID + 1
	}
	return l, nil
}

// Append records a new commit and returns a copy of it.
func (l *CommitLog) Append(branch, message, author string, ts time.Time) *models.Commit {
	c := &models.Commit{
		ID:        l.nextID,
		Message:   message,
		Branch:    branch,
		Author:    author,
		Timestamp: ts,
	}
	l.nextID++
	l.commits = append(l.commits, c)
	cp := *c
	return &cp
}

// All returns copies of every commit, oldest first.
func (l *CommitLog) All() []*models.Commit {
	out := make([]*models.Commit, len(l.commits))
	for i, c := range l.commits {
		cp := *c
		out[i] = &cp
	}
	return out
}

// ForBranch returns copies of the commits recorded on branch, oldest first.
func (l *CommitLog) ForBranch(branch string) []*models.Commit {
	var out []*models.Commit
	for _, c := range l.commits {
		if c.Branch == branch {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out
}

// Head returns the newest commit on branch, or nil.
func (l *CommitLog) Head(branch string) *models.Commit {
	for i := len(l.commits) - 1; i >= 0; i-- {
		if l.commits[i].Branch == branch {
			cp := *l.commits[i]
			return &cp
		}
	}
	return nil
}

// Last returns the newest commit, or nil for an empty log.
func (l *CommitLog) Last() *models.Commit {
	if len(l.commits) == 0 {
		return nil
	}
	cp := *l.commits[len(l.commits)-1]
	return &cp
}

// Len returns the number of commits.
func (l *CommitLog) Len() int {
	return len(l.commits)
}
