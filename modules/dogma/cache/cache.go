// SPDX-License-Identifier: Apache-2.0

// Package cache implements the per-repository result cache of spec.md
// §4.H: a bounded associative map keyed by (operation, revision,
// argument-fingerprint), with at-most-one in-flight build per key and no
// negative caching — an EntryNotFound result is cheap to recompute and
// could only become true at a later, differently-keyed revision, so it is
// never worth the cache slot.
package cache

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/singleflight"

	"github.com/dogmahq/dogma/modules/plumbing"
)

// Key identifies one cacheable result: a query-engine operation name, the
// (already-normalized, absolute) revision it ran against, and a caller-
// supplied fingerprint of whatever arguments (pattern, path, structured-path
// expressions, merge sources) distinguish this call from another at the
// same operation and revision. Revisions are immutable once published, so a
// Key never needs explicit invalidation — only LRU eviction under memory
// pressure.
type Key struct {
	Operation   string
	Revision    plumbing.Revision
	Fingerprint string
}

func (k Key) String() string {
	return k.Operation + "\x00" + strconv.Itoa(int(k.Revision)) + "\x00" + k.Fingerprint
}

// Fingerprint hashes an operation's argument list (pattern strings, a path,
// structured-path expressions, merge source lists — whatever varies a call
// at one operation and revision) into Key's Fingerprint field. It uses
// blake3, the teacher's own non-cryptographic hashing choice
// (modules/plumbing/hash.go's Hasher, modules/git/hash.go), rather than
// adding a second hash function just for cache keys.
func Fingerprint(parts ...string) string {
	h := blake3.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Cache is a ristretto-backed LRU guarded by a singleflight.Group, the same
// combination the teacher's object-database cache and cold-store cache use
// (pkg/serve/odb/cache.go, modules/zeta/backend/odb.go), repurposed here to
// cache query-engine results instead of decoded objects.
type Cache struct {
	store *ristretto.Cache[string, any]
	group singleflight.Group
}

// New builds a Cache sized the way the teacher sizes its own ristretto
// caches (modules/zeta/backend/odb.go): numCounters ~10x the expected
// working-set size, maxCost as a plain entry-count budget (this package
// charges every entry a cost of 1, not a byte size — query results vary
// wildly in shape and a byte-accurate cost model isn't worth the
// complexity it would add), and bufferItems at the library's own
// recommended default of 64.
func New(numCounters, maxEntries int64) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, any]{
		NumCounters: numCounters,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("dogma: unable to initialize result cache: %w", err)
	}
	return &Cache{store: c}, nil
}

// Get returns the cached result for key, if present, without triggering a
// build.
func (c *Cache) Get(key Key) (any, bool) {
	return c.store.Get(key.String())
}

// GetOrBuild returns the cached result for key, invoking build to produce it
// if absent. Concurrent callers for the same key share one in-flight build
// (spec.md §4.H "at-most-one in-flight build"); a caller whose ctx is
// cancelled while waiting simply stops waiting and returns ctx.Err() — it
// neither aborts the shared build for other waiters nor stores a partial
// result, so a cancelled caller can never leave a half-built entry behind.
//
// build intentionally takes no context: it may outlive any single caller
// that requested it (another concurrent caller with a longer-lived context
// can still be waiting), so tying it to one caller's cancellation would let
// that caller's cancellation corrupt the result every other waiter receives.
// Only a successful build (nil error) is ever stored — spec.md §4.H's "no
// negative caching" falls out of this for free, since an EntryNotFound (or
// any other) error is simply never passed to Set.
func (c *Cache) GetOrBuild(ctx context.Context, key Key, build func() (any, error)) (any, error) {
	k := key.String()
	if v, ok := c.store.Get(k); ok {
		return v, nil
	}
	ch := c.group.DoChan(k, func() (any, error) {
		return build()
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		c.store.Set(k, res.Val, 1)
		return res.Val, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Wait blocks until every pending write (ristretto buffers and applies Set
// calls asynchronously) has been applied. Production callers never need
// this — a cache is an optimization, not a consistency guarantee — but
// tests that assert Get sees a just-completed GetOrBuild's result do.
func (c *Cache) Wait() {
	c.store.Wait()
}

// Close releases the cache's background goroutines.
func (c *Cache) Close() {
	c.store.Close()
}
