package models

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Commit is an immutable entry in the commit log recording a semantic event on a branch
type Commit struct {
	ID        int64     `json:"id"`
	Message   string    `json:"message"`
	Branch    string    `json:"branch"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

// ShortID returns the commit ID formatted for display
func (c *Commit) ShortID() string {
	return "c" + strconv.FormatInt(c.ID, 10)
}

var (
	forkMessageRe    = regexp.MustCompile(`^Created branch '([^']+)' from '([^']+)'$`)
	mergeMessageRe   = regexp.MustCompile(`^Merged branch '([^']+)' into '([^']+)'$`)
	discardMessageRe = regexp.MustCompile(`^Discarded branch '([^']+)'$`)
)

// InitMessage is the message of the first commit on the root branch
func InitMessage(root string) string {
	return fmt.Sprintf("Initialized branch '%s'", root)
}

// ForkMessage is the message of the first commit on a newly created branch
func ForkMessage(branch, parent string) string {
	return fmt.Sprintf("Created branch '%s' from '%s'", branch, parent)
}

// MergeMessage is the message of the commit appended to the parent on merge
func MergeMessage(branch, parent string) string {
	return fmt.Sprintf("Merged branch '%s' into '%s'", branch, parent)
}

// DiscardMessage is the message of the commit recording a discarded branch
func DiscardMessage(branch string) string {
	return fmt.Sprintf("Discarded branch '%s'", branch)
}

// ParseForkMessage extracts the branch and its parent from a fork commit message
func ParseForkMessage(msg string) (branch, parent string, ok bool) {
	m := forkMessageRe.FindStringSubmatch(msg)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// ParseMergeMessage extracts the merged branch and its target from a merge commit message
func ParseMergeMessage(msg string) (branch, target string, ok bool) {
	m := mergeMessageRe.FindStringSubmatch(msg)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// IsForkCommit returns true if the message encodes a fork relationship
func (c *Commit) IsForkCommit() bool {
	_, _, ok := ParseForkMessage(c.Message)
	return ok
}

// IsMergeCommit returns true if the message encodes a merge event
func (c *Commit) IsMergeCommit() bool {
	_, _, ok := ParseMergeMessage(c.Message)
	return ok
}

// IsDiscardCommit returns true if the message records a discarded branch
func (c *Commit) IsDiscardCommit() bool {
	return discardMessageRe.MatchString(c.Message)
}
