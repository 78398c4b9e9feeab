// SPDX-License-Identifier: Apache-2.0

// Package watch implements the long-poll waiter registry of spec.md §4.G: a
// waiter parks until a revision strictly newer than its lastKnownRevision
// changes a path matching its pattern, or until it times out or its caller
// cancels. Dispatch happens outside the repository's writer lock — the
// commit pipeline hands Notify the already-computed changed-path set once
// Commit has returned, the same "release the lock, then fan out" shape
// cmd/zeta-serve/shutdown.go uses for its own signal-driven closer, just
// generalized here from a one-shot process shutdown broadcast to a
// per-commit, many-waiters-many-commits broadcast.
package watch

import (
	"context"
	"sync"
	"time"

	"github.com/dogmahq/dogma/modules/plumbing"
	"github.com/dogmahq/dogma/modules/wildmatch"
)

// Result is what a waiter receives: either the first qualifying revision, or
// a timeout signal. A context cancellation is reported as an error instead
// (see Wait).
type Result struct {
	Revision plumbing.Revision
	Timeout  bool
}

// Resolver finds the first revision in the inclusive range [from, to] whose
// commit changed at least one path matching pattern, used only for the
// registration-time liveness check (spec.md §4.G "Liveness") — the common
// live-dispatch path never calls it, since Notify already carries the
// triggering commit's changed paths. Repository wiring supplies this backed
// by the query engine's history scan over the object store.
type Resolver func(from, to plumbing.Revision, pattern wildmatch.Matcher) (plumbing.Revision, bool, error)

type waiter struct {
	lastKnown plumbing.Revision
	pattern   wildmatch.Matcher
	ch        chan Result
}

// Manager is one repository's waiter registry. The zero value is not usable;
// construct with New.
type Manager struct {
	head    func() plumbing.Revision
	resolve Resolver

	mu      sync.Mutex
	waiters map[uint64]*waiter
	nextID  uint64
}

// New builds a Manager. head reports the repository's current HEAD revision
// (typically refs.Index.Head); resolve backs the registration-time liveness
// check.
func New(head func() plumbing.Revision, resolve Resolver) *Manager {
	return &Manager{
		head:    head,
		resolve: resolve,
		waiters: make(map[uint64]*waiter),
	}
}

// Wait registers a waiter for (lastKnown, pattern) and blocks until it
// fires, times out at deadline, or ctx is cancelled.
//
// Per spec.md §4.G "Liveness": if head is already past lastKnown and some
// already-committed revision in that gap matches pattern, Wait fires
// immediately without parking — the long poll only ever blocks on commits
// that have not happened yet.
func (m *Manager) Wait(ctx context.Context, lastKnown plumbing.Revision, pattern wildmatch.Matcher, deadline time.Time) (Result, error) {
	if head := m.head(); head > lastKnown {
		rev, ok, err := m.resolve(lastKnown+1, head, pattern)
		if err != nil {
			return Result{}, err
		}
		if ok {
			return Result{Revision: rev}, nil
		}
	}

	w := &waiter{lastKnown: lastKnown, pattern: pattern, ch: make(chan Result, 1)}
	id := m.register(w)
	defer m.unregister(id)

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case res := <-w.ch:
		return res, nil
	case <-timer.C:
		return Result{Timeout: true}, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (m *Manager) register(w *waiter) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.waiters[id] = w
	return id
}

func (m *Manager) unregister(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.waiters, id)
}

// Notify fans a just-published revision's changed paths out to every waiter
// whose pattern matches at least one of them and whose lastKnown is strictly
// below rev (spec.md §4.G "Monotone delivery", "Fan-out"). Callers must
// invoke Notify only after releasing the writer lock the commit was made
// under, never while holding it.
func (m *Manager) Notify(rev plumbing.Revision, changedPaths []string) {
	m.mu.Lock()
	var fire []*waiter
	for id, w := range m.waiters {
		if rev <= w.lastKnown {
			continue
		}
		if matchesAny(w.pattern, changedPaths) {
			fire = append(fire, w)
			delete(m.waiters, id)
		}
	}
	m.mu.Unlock()

	// Dispatch happens after the registry lock is released: a slow or
	// abandoned waiter's buffered send of capacity 1 never blocks Notify,
	// and "no guarantee of the order in which waiters are notified" (spec.md
	// §4.G "Ordering independence") is exactly what an unordered slice walk
	// gives for free.
	for _, w := range fire {
		w.ch <- Result{Revision: rev}
	}
}

func matchesAny(pattern wildmatch.Matcher, paths []string) bool {
	for _, p := range paths {
		if pattern.Match(p) {
			return true
		}
	}
	return false
}

// Pending reports the number of waiters currently parked, for diagnostics.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiters)
}
