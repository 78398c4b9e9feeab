// SPDX-License-Identifier: Apache-2.0

package repository_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dogmahq/dogma/dogmaerr"
	"github.com/dogmahq/dogma/modules/dogma/commit"
	"github.com/dogmahq/dogma/modules/dogma/envelope"
	"github.com/dogmahq/dogma/modules/dogma/object"
	"github.com/dogmahq/dogma/modules/dogma/repository"
	"github.com/dogmahq/dogma/modules/plumbing"
	"github.com/dogmahq/dogma/modules/wildmatch"
)

func testAuthor() object.Author {
	return object.Author{Name: "tester", Email: "tester@example.com"}
}

func generateTestRSAKey(t *testing.T) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der := x509.MarshalPKCS1PrivateKey(key)
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der})
}

func newTestManager(t *testing.T) *repository.Manager {
	t.Helper()
	m, err := repository.NewManager(t.TempDir(), repository.Options{})
	require.NoError(t, err)
	return m
}

func TestCreateOpensActiveRepositoryWithGenesisCommit(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.CreateProject("team-a"))
	r, err := m.Create("team-a", "config", testAuthor(), false)
	require.NoError(t, err)
	require.Equal(t, repository.Active, r.State())

	files, err := r.Query().ListFiles(plumbing.Revision(-1), wildmatch.Compile("/**"))
	require.NoError(t, err)
	require.Empty(t, files)
}

func TestCreateRejectsDuplicate(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.CreateProject("team-a"))
	_, err := m.Create("team-a", "config", testAuthor(), false)
	require.NoError(t, err)

	_, err = m.Create("team-a", "config", testAuthor(), false)
	require.Error(t, err)
	require.True(t, dogmaerr.Is(err, dogmaerr.RepositoryExists))
}

func TestCreateEncryptedWithoutKMSFails(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.CreateProject("team-a"))
	_, err := m.Create("team-a", "secrets", testAuthor(), true)
	require.Error(t, err)
}

func TestCreateEncryptedWithKMS(t *testing.T) {
	pemKey := generateTestRSAKey(t)
	kms, err := envelope.NewLocalRSAKMS(pemKey)
	require.NoError(t, err)

	m, err := repository.NewManager(t.TempDir(), repository.Options{KMS: kms})
	require.NoError(t, err)
	require.NoError(t, m.CreateProject("team-a"))

	r, err := m.Create("team-a", "secrets", testAuthor(), true)
	require.NoError(t, err)
	require.Equal(t, repository.Active, r.State())
}

func TestGetUnknownRepositoryIsNotFound(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.CreateProject("team-a"))
	_, err := m.Get("team-a", "nope")
	require.Error(t, err)
	require.True(t, dogmaerr.Is(err, dogmaerr.RepositoryNotFound))
}

func TestGetReturnsSameHandleAcrossCalls(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.CreateProject("team-a"))
	created, err := m.Create("team-a", "config", testAuthor(), false)
	require.NoError(t, err)

	got, err := m.Get("team-a", "config")
	require.NoError(t, err)
	require.Same(t, created, got)
}

func TestListReturnsCreatedRepositoriesSorted(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.CreateProject("team-a"))
	_, err := m.Create("team-a", "zeta", testAuthor(), false)
	require.NoError(t, err)
	_, err = m.Create("team-a", "alpha", testAuthor(), false)
	require.NoError(t, err)

	names, err := m.List("team-a")
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "zeta"}, names)
}

func TestCommitAppliesChangeAndNotifiesWatchers(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.CreateProject("team-a"))
	r, err := m.Create("team-a", "config", testAuthor(), false)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	waitDone := make(chan struct{})
	go func() {
		_, _ = r.Watch(ctx, plumbing.Revision(1), wildmatch.Compile("/a.json"), time.Now().Add(2*time.Second))
		close(waitDone)
	}()
	time.Sleep(20 * time.Millisecond)

	result, err := r.Commit(plumbing.Revision(-1), testAuthor(), "add a.json", "", object.PlaintextMarkup,
		[]commit.Change{commit.NewUpsertJSON("/a.json", json.RawMessage(`{"k":1}`))}, false)
	require.NoError(t, err)
	require.Equal(t, plumbing.Revision(2), result.Revision)

	select {
	case <-waitDone:
	case <-time.After(time.Second):
		t.Fatal("watcher was not notified of matching commit")
	}
}

func TestCommitOnRemovedRepositoryIsRejected(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.CreateProject("team-a"))
	_, err := m.Create("team-a", "config", testAuthor(), false)
	require.NoError(t, err)
	require.NoError(t, m.Remove("team-a", "config"))

	r, err := m.Get("team-a", "config")
	require.NoError(t, err)
	require.Equal(t, repository.Removed, r.State())

	_, err = r.Commit(plumbing.Revision(-1), testAuthor(), "should fail", "", object.PlaintextMarkup, nil, true)
	require.Error(t, err)
	require.True(t, dogmaerr.Is(err, dogmaerr.ReadOnly))
}

func TestUnremoveRestoresActiveState(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.CreateProject("team-a"))
	_, err := m.Create("team-a", "config", testAuthor(), false)
	require.NoError(t, err)
	require.NoError(t, m.Remove("team-a", "config"))
	require.NoError(t, m.Unremove("team-a", "config"))

	r, err := m.Get("team-a", "config")
	require.NoError(t, err)
	require.Equal(t, repository.Active, r.State())
}

func TestPurgeIsIrreversibleAndHidesRepository(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.CreateProject("team-a"))
	_, err := m.Create("team-a", "config", testAuthor(), false)
	require.NoError(t, err)
	require.NoError(t, m.Remove("team-a", "config"))
	require.NoError(t, m.Purge("team-a", "config"))

	_, err = m.Get("team-a", "config")
	require.Error(t, err)
	require.True(t, dogmaerr.Is(err, dogmaerr.RepositoryNotFound))

	err = m.Unremove("team-a", "config")
	require.Error(t, err)
	require.True(t, dogmaerr.Is(err, dogmaerr.RepositoryNotFound))
}

func TestWatchRejectsLastKnownAheadOfHead(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.CreateProject("team-a"))
	r, err := m.Create("team-a", "config", testAuthor(), false)
	require.NoError(t, err)

	_, err = r.Watch(context.Background(), plumbing.Revision(99), wildmatch.Compile("/**"), time.Now().Add(time.Second))
	require.Error(t, err)
	require.True(t, dogmaerr.Is(err, dogmaerr.RevisionNotFound))
}

func TestReopenedManagerLoadsPersistedState(t *testing.T) {
	dir := t.TempDir()
	m1, err := repository.NewManager(dir, repository.Options{})
	require.NoError(t, err)
	require.NoError(t, m1.CreateProject("team-a"))
	_, err = m1.Create("team-a", "config", testAuthor(), false)
	require.NoError(t, err)
	require.NoError(t, m1.Remove("team-a", "config"))

	m2, err := repository.NewManager(dir, repository.Options{})
	require.NoError(t, err)
	r, err := m2.Get("team-a", "config")
	require.NoError(t, err)
	require.Equal(t, repository.Removed, r.State())
}
