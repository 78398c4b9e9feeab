// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
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

// Manager owns every open Repository under one data root — the process-wide
// equivalent of the teacher's pkg/serve/repo/repositories.go "repositories"
// type, generalized from one ODB-per-repo to this package's full component
// wiring (4.A/4.C/4.D/4.F/4.G/4.H) per repo.
type Manager struct {
	root string
	kms  envelope.KMS // nil: Create rejects requests for an encrypted repository

	maxPrimaryCommits int
	minSecondaryAge   time.Duration
	cacheNumCounters  int64
	cacheMaxEntries   int64

	mu    sync.Mutex
	repos map[string]*Repository // keyed by project + "/" + name
}

// Options configures a Manager; the zero value of every field falls back to
// the same defaults backend.RollingStore and cache.Cache themselves use.
type Options struct {
	KMS               envelope.KMS
	MaxPrimaryCommits int
	MinSecondaryAge   time.Duration
	CacheNumCounters  int64
	CacheMaxEntries   int64
}

// NewManager opens (or creates) the manager's data root. Existing
// repository directories are not eagerly opened — Get/list open lazily and
// cache the handle, mirroring the teacher's own repositories.Open-per-call
// shape (pkg/serve/repo/repositories.go).
func NewManager(root string, opts Options) (*Manager, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, dogmaerr.Wrap(dogmaerr.StorageException, err, "create repository manager root")
	}
	numCounters := opts.CacheNumCounters
	if numCounters == 0 {
		numCounters = 100000
	}
	maxEntries := opts.CacheMaxEntries
	if maxEntries == 0 {
		maxEntries = 10000
	}
	return &Manager{
		root:              root,
		kms:               opts.KMS,
		maxPrimaryCommits: opts.MaxPrimaryCommits,
		minSecondaryAge:   opts.MinSecondaryAge,
		cacheNumCounters:  numCounters,
		cacheMaxEntries:   maxEntries,
		repos:             make(map[string]*Repository),
	}, nil
}

func repoKey(project, name string) string { return project + "/" + name }

func (m *Manager) repoDir(project, name string) string {
	return filepath.Join(m.root, project, name)
}

// Exists reports whether project/name has ever been created, regardless of
// its current lifecycle state.
func (m *Manager) Exists(project, name string) bool {
	_, err := os.Stat(filepath.Join(m.repoDir(project, name), metaFileName))
	return err == nil
}

// Create opens a brand-new ACTIVE repository with a genesis commit at
// revision 1 (an empty tree — spec.md §3 "Lifecycle": "created with an
// initial empty commit at revision 1"). encrypted selects whether the
// repository's object store is wrapped per spec.md §4.B; it requires a KMS
// to have been configured on the Manager.
func (m *Manager) Create(project, name string, author object.Author, encrypted bool) (*Repository, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := repoKey(project, name)
	if _, err := m.ProjectState(project); err != nil {
		return nil, err
	}
	if m.Exists(project, name) {
		return nil, dogmaerr.RepositoryExistsErr(project, name)
	}
	if encrypted && m.kms == nil {
		return nil, dogmaerr.New(dogmaerr.StorageException, "encryption requested for %s/%s but no KMS is configured", project, name)
	}

	dir := m.repoDir(project, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, dogmaerr.Wrap(dogmaerr.StorageException, err, "create repository directory")
	}

	r, err := m.open(project, name, dir, encrypted, true)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	if _, err := r.pipeline.Commit(0, author, "create repository", "", object.PlaintextMarkup, nil, true); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	m.repos[key] = r
	return r, nil
}

// Get returns the open handle for project/name, opening it if this is the
// first access since process start. A REMOVED repository is still
// returned — its writes are rejected, but reads and unremove remain
// possible; a PURGED repository reports RepositoryNotFound.
func (m *Manager) Get(project, name string) (*Repository, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(project, name)
}

func (m *Manager) getLocked(project, name string) (*Repository, error) {
	key := repoKey(project, name)
	if r, ok := m.repos[key]; ok {
		if r.State() == Purged {
			return nil, dogmaerr.RepositoryNotFoundErr(project, name)
		}
		return r, nil
	}
	dir := m.repoDir(project, name)
	mt, err := readMeta(dir)
	if err != nil {
		if os.IsNotExist(unwrapPathErr(err)) {
			return nil, dogmaerr.RepositoryNotFoundErr(project, name)
		}
		return nil, err
	}
	if mt.State == Purged {
		return nil, dogmaerr.RepositoryNotFoundErr(project, name)
	}
	r, err := m.open(project, name, dir, mt.Encrypted, false)
	if err != nil {
		return nil, err
	}
	r.state = mt.State
	m.repos[key] = r
	return r, nil
}

func unwrapPathErr(err error) error {
	if de, ok := err.(*dogmaerr.Error); ok && de.Cause != nil {
		return de.Cause
	}
	return err
}

// open wires every component of an on-disk repository directory together
// without creating it (create selects whether a brand-new meta.json and
// envelope WDEK are generated, for Create, versus loaded, for Get/List).
func (m *Manager) open(project, name, dir string, encrypted, create bool) (*Repository, error) {
	var store object.Store
	var rolling *backend.RollingStore
	var envRepo *envelope.Repository

	if encrypted {
		envDir := filepath.Join(dir, "envelope")
		var err error
		if create {
			envRepo, err = envelope.Create(m.kms, envDir)
		} else {
			envRepo, err = envelope.Open(m.kms, envDir)
		}
		if err != nil {
			return nil, err
		}
		store = envelope.NewObjectStore(envRepo)
	} else {
		objDir := filepath.Join(dir, "objects")
		var err error
		rolling, err = backend.OpenRolling(objDir, m.maxPrimaryCommits, m.minSecondaryAge)
		if err != nil {
			return nil, err
		}
		store = rolling
	}

	refIndex, err := refs.Open(filepath.Join(dir, "refs"))
	if err != nil {
		return nil, err
	}

	pipeline := commit.New(store, refIndex)
	queryEngine := query.New(store, refIndex, pipeline)
	resultCache, err := cache.New(m.cacheNumCounters, m.cacheMaxEntries)
	if err != nil {
		return nil, err
	}
	watchMgr := watch.New(refIndex.Head, func(from, to plumbing.Revision, pattern wildmatch.Matcher) (plumbing.Revision, bool, error) {
		return queryEngine.FirstMatchingRevision(from, to, pattern)
	})

	r := &Repository{
		Project:  project,
		Name:     name,
		dir:      dir,
		state:    Active,
		store:    store,
		refs:     refIndex,
		pipeline: pipeline,
		query:    queryEngine,
		watch:    watchMgr,
		cache:    resultCache,
		rolling:  rolling,
		envelope: envRepo,
	}
	if create {
		if err := r.writeMeta(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// List returns every repository ever created under project, in name order,
// regardless of lifecycle state.
func (m *Manager) List(project string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(m.root, project))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, dogmaerr.Wrap(dogmaerr.StorageException, err, "list repositories")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Remove flags project/name REMOVED: a metadata-only transition that stops
// accepting commits but keeps all data (spec.md §4.D's ACTIVE -> REMOVED).
func (m *Manager) Remove(project, name string) error {
	return m.transition(project, name, func(r *Repository) error {
		if r.state == Purged {
			return dogmaerr.RepositoryNotFoundErr(project, name)
		}
		r.state = Removed
		return r.writeMeta()
	})
}

// Unremove reverses Remove, permitted only before Purge (spec.md §4.D's
// REMOVED -> ACTIVE, "permitted only before purge").
func (m *Manager) Unremove(project, name string) error {
	return m.transition(project, name, func(r *Repository) error {
		if r.state == Purged {
			return dogmaerr.RepositoryNotFoundErr(project, name)
		}
		r.state = Active
		return r.writeMeta()
	})
}

// Purge destroys project/name's durable data, including its WDEK if
// encrypted, and is irreversible (spec.md §3 "Lifecycle": "A repository may
// never be resurrected under the same identifier in a way that exposes
// pre-purge revisions").
func (m *Manager) Purge(project, name string) error {
	return m.transition(project, name, func(r *Repository) error {
		if err := r.Close(); err != nil {
			return err
		}
		r.state = Purged
		if r.envelope != nil {
			if err := envelope.Purge(filepath.Join(r.dir, "envelope")); err != nil {
				return err
			}
		}
		if err := os.RemoveAll(filepath.Join(r.dir, "objects")); err != nil {
			return dogmaerr.Wrap(dogmaerr.StorageException, err, "purge object store")
		}
		if err := os.RemoveAll(filepath.Join(r.dir, "refs")); err != nil {
			return dogmaerr.Wrap(dogmaerr.StorageException, err, "purge ref index")
		}
		return r.writeMeta()
	})
}

// transition serializes one lifecycle change through the target
// repository's command-queue mutex, matching spec.md §4.I's "All
// state-changing operations are sequenced through a single per-repository
// command queue to keep the commit pipeline single-threaded".
func (m *Manager) transition(project, name string, apply func(*Repository) error) error {
	m.mu.Lock()
	r, err := m.getLocked(project, name)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()
	if err := apply(r); err != nil {
		return fmt.Errorf("repository %s/%s: %w", project, name, err)
	}
	return nil
}
