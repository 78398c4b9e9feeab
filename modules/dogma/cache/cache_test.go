// SPDX-License-Identifier: Apache-2.0

package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dogmahq/dogma/modules/dogma/cache"
	"github.com/dogmahq/dogma/modules/plumbing"
)

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.New(1000, 100)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestFingerprintIsDeterministicAndOrderSensitive(t *testing.T) {
	a := cache.Fingerprint("/config/**", "rev=5")
	b := cache.Fingerprint("/config/**", "rev=5")
	c := cache.Fingerprint("rev=5", "/config/**")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestGetOrBuildCachesSuccessfulResult(t *testing.T) {
	c := newTestCache(t)
	key := cache.Key{Operation: "getFile", Revision: plumbing.Revision(1), Fingerprint: "/a.json"}

	var calls int64
	build := func() (any, error) {
		atomic.AddInt64(&calls, 1)
		return "value", nil
	}

	v, err := c.GetOrBuild(context.Background(), key, build)
	require.NoError(t, err)
	assert.Equal(t, "value", v)

	c.Wait()

	v2, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "value", v2)

	v3, err := c.GetOrBuild(context.Background(), key, build)
	require.NoError(t, err)
	assert.Equal(t, "value", v3)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestGetOrBuildDoesNotCacheErrors(t *testing.T) {
	c := newTestCache(t)
	key := cache.Key{Operation: "getFile", Revision: plumbing.Revision(1), Fingerprint: "/missing.json"}
	wantErr := errors.New("not found")

	_, err := c.GetOrBuild(context.Background(), key, func() (any, error) {
		return nil, wantErr
	})
	require.ErrorIs(t, err, wantErr)

	_, ok := c.Get(key)
	assert.False(t, ok)
}

func TestGetOrBuildDeduplicatesConcurrentBuilds(t *testing.T) {
	c := newTestCache(t)
	key := cache.Key{Operation: "diffs", Revision: plumbing.Revision(5), Fingerprint: "/**"}

	var calls int64
	release := make(chan struct{})
	build := func() (any, error) {
		atomic.AddInt64(&calls, 1)
		<-release
		return 42, nil
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([]any, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			v, err := c.GetOrBuild(context.Background(), key, build)
			assert.NoError(t, err)
			results[i] = v
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestGetOrBuildCancellationReturnsWithoutCachingAndWithoutAffectingOtherWaiters(t *testing.T) {
	c := newTestCache(t)
	key := cache.Key{Operation: "history", Revision: plumbing.Revision(9), Fingerprint: "/**"}

	release := make(chan struct{})
	build := func() (any, error) {
		<-release
		return "done", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancelledDone := make(chan error, 1)
	go func() {
		_, err := c.GetOrBuild(ctx, key, build)
		cancelledDone <- err
	}()

	patientDone := make(chan any, 1)
	go func() {
		v, err := c.GetOrBuild(context.Background(), key, build)
		assert.NoError(t, err)
		patientDone <- v
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	err := <-cancelledDone
	require.ErrorIs(t, err, context.Canceled)

	close(release)
	v := <-patientDone
	assert.Equal(t, "done", v)
}
