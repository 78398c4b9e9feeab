// SPDX-License-Identifier: Apache-2.0

package envelope_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dogmahq/dogma/modules/dogma/envelope"
	"github.com/dogmahq/dogma/modules/plumbing"
)

func TestObjectStorePutGetContains(t *testing.T) {
	kms := testKMS(t)
	repo, err := envelope.Create(kms, filepath.Join(t.TempDir(), "proj", "repo"))
	require.NoError(t, err)
	store := envelope.NewObjectStore(repo)

	data := []byte("hello object")
	oid, err := store.Put(data)
	require.NoError(t, err)
	assert.Equal(t, plumbing.SumBytes(data), oid)

	ok, err := store.Contains(oid)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := store.Get(oid)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	ok, err = store.Contains(plumbing.SumBytes([]byte("never stored")))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestObjectStoreGetMissingIsNoSuchObject(t *testing.T) {
	kms := testKMS(t)
	repo, err := envelope.Create(kms, filepath.Join(t.TempDir(), "proj", "repo"))
	require.NoError(t, err)
	store := envelope.NewObjectStore(repo)

	_, err = store.Get(plumbing.SumBytes([]byte("nope")))
	require.Error(t, err)
	assert.True(t, plumbing.IsNoSuchObject(err))
}
