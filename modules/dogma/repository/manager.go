// SPDX-License-Identifier: Apache-2.0

// Package repository implements the repository manager of spec.md §4.I:
// it owns every repository's on-disk layout, its writer serialization, its
// lifecycle state machine (ACTIVE/REMOVED/PURGED), and the wiring between
// the object store, ref index, commit pipeline, query engine, watch
// manager and result cache that make up one open repository handle.
package repository

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dogmahq/dogma/dogmaerr"
	"github.com/dogmahq/dogma/modules/dogma/backend"
	"github.com/dogmahq/dogma/modules/dogma/cache"
	"github.com/dogmahq/dogma/modules/dogma/commit"
	"github.com/dogmahq/dogma/modules/dogma/envelope"
	"github.com/dogmahq/dogma/modules/dogma/object"
	"github.com/dogmahq/dogma/modules/dogma/query"
	"github.com/dogmahq/dogma/modules/dogma/refs"
	"github.com/dogmahq/dogma/modules/dogma/watch"
	"github.com/dogmahq/dogma/modules/plumbing"
	"github.com/dogmahq/dogma/modules/wildmatch"
)

// State is a repository's position in spec.md §4.D's state machine.
type State string

const (
	Active  State = "ACTIVE"
	Removed State = "REMOVED"
	Purged  State = "PURGED"
)

const metaFileName = "meta.json"

// meta is the only piece of durable state this package owns directly (the
// object store, ref index and envelope each own their own files under the
// same repository directory) — grounded on refs.Index's own small
// append-only/overwrite file convention rather than pulling in a database
// dependency for what is, per repository, a few dozen bytes written rarely.
type meta struct {
	Project   string    `json:"project"`
	Name      string    `json:"name"`
	State     State     `json:"state"`
	Encrypted bool      `json:"encrypted"`
	CreatedAt time.Time `json:"createdAt"`
}

// Repository is one open repository: its writer serialization point, its
// lifecycle state, and every component (4.A-4.H) wired together over its
// object store and ref index.
type Repository struct {
	Project string
	Name    string

	dir string

	// cmdMu is the "single per-repository command queue" of spec.md §4.I:
	// every state-changing call (Commit, Remove, Unremove, Purge) takes it
	// for its duration, so a command queue of depth one drained by one
	// worker and a plain mutex are behaviorally identical here — the
	// Pipeline underneath already serializes Commit on its own, so cmdMu's
	// job is strictly to keep lifecycle transitions from racing a commit.
	cmdMu sync.Mutex
	state State

	store    object.Store
	refs     *refs.Index
	pipeline *commit.Pipeline
	query    *query.Engine
	watch    *watch.Manager
	cache    *cache.Cache

	rolling  *backend.RollingStore // nil for encrypted repositories
	envelope *envelope.Repository  // nil for plaintext repositories
}

func (r *Repository) metaPath() string { return filepath.Join(r.dir, metaFileName) }

func (r *Repository) writeMeta() error {
	m := meta{Project: r.Project, Name: r.Name, State: r.state, Encrypted: r.envelope != nil}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return dogmaerr.Wrap(dogmaerr.StorageException, err, "encode repository metadata")
	}
	if err := os.WriteFile(r.metaPath(), data, 0o644); err != nil {
		return dogmaerr.Wrap(dogmaerr.StorageException, err, "write repository metadata")
	}
	return nil
}

func readMeta(dir string) (meta, error) {
	var m meta
	data, err := os.ReadFile(filepath.Join(dir, metaFileName))
	if err != nil {
		return m, dogmaerr.Wrap(dogmaerr.StorageException, err, "read repository metadata")
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, dogmaerr.Wrap(dogmaerr.StorageException, err, "decode repository metadata")
	}
	return m, nil
}

// State reports the repository's current lifecycle state.
func (r *Repository) State() State {
	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()
	return r.state
}

// Query returns the repository's read-only query engine (spec.md §4.F),
// safe to call without going through the command queue — readers never
// take the writer lock.
func (r *Repository) Query() *query.Engine { return r.query }

// Cache returns the repository's result cache (spec.md §4.H).
func (r *Repository) Cache() *cache.Cache { return r.cache }

// Commit applies edits through the commit pipeline, then fans the result
// out to the watch manager once the pipeline has returned — spec.md §4.D
// step 8's "release the lock and synchronously compute..."; Pipeline's own
// mutex is the writer lock step 1 acquires, cmdMu here additionally keeps a
// concurrent Remove/Purge from racing a Commit.
func (r *Repository) Commit(baseRevision plumbing.Revision, author object.Author, summary, detail string, markup object.Markup, edits []commit.Change, allowEmpty bool) (*commit.Result, error) {
	r.cmdMu.Lock()
	if r.state != Active {
		r.cmdMu.Unlock()
		return nil, dogmaerr.ReadOnlyErr("repository %s/%s is not active", r.Project, r.Name)
	}
	result, err := r.pipeline.Commit(baseRevision, author, summary, detail, markup, edits, allowEmpty)
	r.cmdMu.Unlock()
	if err != nil {
		return nil, err
	}
	r.watch.Notify(result.Revision, result.ChangedPaths)
	return result, nil
}

// Watch parks until a revision strictly newer than lastKnown changes a path
// matching pattern, fires immediately if one already has, times out at
// deadline, or ctx is cancelled (spec.md §4.G). A lastKnown strictly ahead
// of the current HEAD is rejected outright rather than parked forever (see
// DESIGN.md "Open Questions (decided)").
func (r *Repository) Watch(ctx context.Context, lastKnown plumbing.Revision, pattern wildmatch.Matcher, deadline time.Time) (watch.Result, error) {
	if head := r.refs.Head(); lastKnown > head {
		return watch.Result{}, dogmaerr.RevisionNotFoundErr(int32(lastKnown))
	}
	return r.watch.Wait(ctx, lastKnown, pattern, deadline)
}

// Close releases the repository's object store handles.
func (r *Repository) Close() error {
	if r.cache != nil {
		r.cache.Close()
	}
	if r.rolling != nil {
		return r.rolling.Close()
	}
	return nil
}
