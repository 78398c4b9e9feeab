// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dogmahq/dogma/modules/plumbing"
)

// Default rolling-secondary thresholds (spec.md §4.D "Rolling secondary").
// See DESIGN.md "Open Questions (decided)" for why these specific values.
const (
	DefaultMaxPrimaryCommits = 100000
	DefaultMinSecondaryAge   = 24 * time.Hour
)

const (
	primaryDirName   = "primary"
	secondaryDirName = "secondary"
)

// RollingStore is a repository's object store: a primary that serves all
// reads, and — once the primary has accumulated enough commits — a
// secondary that shadows every new write so that it can later be promoted
// without a disruptive bulk copy.
type RollingStore struct {
	mu sync.RWMutex

	root              string
	primary           *Store
	secondary         *Store
	secondaryCreated  time.Time
	primaryCommits    int
	maxPrimaryCommits int
	minSecondaryAge   time.Duration
}

// OpenRolling opens (or creates) the rolling object store rooted at root.
// An existing secondary directory, if present from a prior run, is reopened
// rather than discarded.
func OpenRolling(root string, maxPrimaryCommits int, minSecondaryAge time.Duration) (*RollingStore, error) {
	if maxPrimaryCommits <= 0 {
		maxPrimaryCommits = DefaultMaxPrimaryCommits
	}
	if minSecondaryAge <= 0 {
		minSecondaryAge = DefaultMinSecondaryAge
	}
	primary, err := Open(filepath.Join(root, primaryDirName))
	if err != nil {
		return nil, err
	}
	rs := &RollingStore{
		root:              root,
		primary:           primary,
		maxPrimaryCommits: maxPrimaryCommits,
		minSecondaryAge:   minSecondaryAge,
	}
	secondaryPath := filepath.Join(root, secondaryDirName)
	if info, statErr := os.Stat(secondaryPath); statErr == nil && info.IsDir() {
		secondary, err := Open(secondaryPath)
		if err != nil {
			return nil, err
		}
		rs.secondary = secondary
		rs.secondaryCreated = info.ModTime()
	}
	return rs, nil
}

// Get always reads from the primary: while a secondary is shadowing writes,
// the primary still holds the complete reachable history.
func (rs *RollingStore) Get(oid plumbing.Hash) ([]byte, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.primary.Get(oid)
}

func (rs *RollingStore) Contains(oid plumbing.Hash) (bool, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.primary.Contains(oid)
}

// Put writes to the primary and, if a secondary is currently shadowing
// writes, to the secondary too.
func (rs *RollingStore) Put(data []byte) (plumbing.Hash, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	oid, err := rs.primary.Put(data)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if rs.secondary != nil {
		if _, err := rs.secondary.Put(data); err != nil {
			return plumbing.ZeroHash, fmt.Errorf("dogma: shadow write to secondary store: %w", err)
		}
	}
	return oid, nil
}

// RecordCommit is called once per committed revision. It opens a fresh
// secondary once the primary has accumulated maxPrimaryCommits commits since
// the last promotion (or since the store was created).
func (rs *RollingStore) RecordCommit() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.primaryCommits++
	if rs.secondary != nil || rs.primaryCommits < rs.maxPrimaryCommits {
		return nil
	}
	return rs.openFreshSecondaryLocked()
}

func (rs *RollingStore) openFreshSecondaryLocked() error {
	secondaryPath := filepath.Join(rs.root, secondaryDirName)
	if err := os.RemoveAll(secondaryPath); err != nil {
		return fmt.Errorf("dogma: clear stale secondary: %w", err)
	}
	secondary, err := Open(secondaryPath)
	if err != nil {
		return err
	}
	rs.secondary = secondary
	rs.secondaryCreated = time.Now()
	return nil
}

// ReadyToPromote reports whether a secondary exists and has reached the
// configured minimum age — the precondition for Promote, which an operator
// or a background policy decides whether to actually fire.
func (rs *RollingStore) ReadyToPromote() bool {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.secondary != nil && time.Since(rs.secondaryCreated) >= rs.minSecondaryAge
}

// Promote atomically retires the primary (renaming it to a "_removed"
// sidecar) and makes the secondary the new primary, per spec.md §4.D. A
// fresh secondary is opened immediately so shadowing continues
// uninterrupted. Promote is a no-op error if no secondary is active.
func (rs *RollingStore) Promote(timestamp time.Time) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.secondary == nil {
		return fmt.Errorf("dogma: no secondary store to promote")
	}
	if err := rs.primary.Close(); err != nil {
		return err
	}
	if err := rs.secondary.Close(); err != nil {
		return err
	}

	primaryPath := filepath.Join(rs.root, primaryDirName)
	removedPath := filepath.Join(rs.root, fmt.Sprintf("%s_removed.%d", primaryDirName, timestamp.UnixNano()))
	if err := os.Rename(primaryPath, removedPath); err != nil {
		return fmt.Errorf("dogma: retire primary store: %w", err)
	}
	secondaryPath := filepath.Join(rs.root, secondaryDirName)
	if err := os.Rename(secondaryPath, primaryPath); err != nil {
		return fmt.Errorf("dogma: promote secondary store: %w", err)
	}

	primary, err := Open(primaryPath)
	if err != nil {
		return err
	}
	rs.primary = primary
	rs.secondary = nil
	rs.primaryCommits = 0
	return rs.openFreshSecondaryLocked()
}

func (rs *RollingStore) Close() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if err := rs.primary.Close(); err != nil {
		return err
	}
	if rs.secondary != nil {
		return rs.secondary.Close()
	}
	return nil
}
