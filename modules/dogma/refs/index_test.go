// SPDX-License-Identifier: Apache-2.0

package refs_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dogmahq/dogma/dogmaerr"
	"github.com/dogmahq/dogma/modules/dogma/refs"
	"github.com/dogmahq/dogma/modules/plumbing"
)

func TestOpenFreshRootYieldsZeroHead(t *testing.T) {
	idx, err := refs.Open(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, plumbing.Revision(0), idx.Head())
}

func TestAdvancePersistsAcrossReopen(t *testing.T) {
	root := t.TempDir()
	idx, err := refs.Open(root)
	require.NoError(t, err)

	hash1 := plumbing.SumBytes([]byte("commit-1"))
	require.NoError(t, idx.Advance(0, 1, hash1))
	assert.Equal(t, plumbing.Revision(1), idx.Head())

	hash2 := plumbing.SumBytes([]byte("commit-2"))
	require.NoError(t, idx.Advance(1, 2, hash2))
	assert.Equal(t, plumbing.Revision(2), idx.Head())

	reopened, err := refs.Open(root)
	require.NoError(t, err)
	assert.Equal(t, plumbing.Revision(2), reopened.Head())

	got1, err := reopened.Commit(1)
	require.NoError(t, err)
	assert.Equal(t, hash1, got1)

	got2, err := reopened.Commit(2)
	require.NoError(t, err)
	assert.Equal(t, hash2, got2)
}

func TestAdvanceWithStaleFromRevisionConflicts(t *testing.T) {
	idx, err := refs.Open(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, idx.Advance(0, 1, plumbing.SumBytes([]byte("c1"))))

	err = idx.Advance(0, 2, plumbing.SumBytes([]byte("c2")))
	require.Error(t, err)
	assert.Equal(t, dogmaerr.ChangeConflict, dogmaerr.KindOf(err))
	assert.Equal(t, plumbing.Revision(1), idx.Head())
}

func TestAdvanceRejectsNonSequentialJump(t *testing.T) {
	idx, err := refs.Open(t.TempDir())
	require.NoError(t, err)

	err = idx.Advance(0, 2, plumbing.SumBytes([]byte("c2")))
	assert.Error(t, err)
	assert.Equal(t, plumbing.Revision(0), idx.Head())
}

func TestCommitUnknownRevisionIsNotFound(t *testing.T) {
	idx, err := refs.Open(t.TempDir())
	require.NoError(t, err)

	_, err = idx.Commit(5)
	require.Error(t, err)
	assert.Equal(t, dogmaerr.RevisionNotFound, dogmaerr.KindOf(err))
}

func TestIndexRootIsNestedPath(t *testing.T) {
	root := filepath.Join(t.TempDir(), "proj", "repo", "refs")
	idx, err := refs.Open(root)
	require.NoError(t, err)
	require.NoError(t, idx.Advance(0, 1, plumbing.SumBytes([]byte("c1"))))
	assert.Equal(t, plumbing.Revision(1), idx.Head())
}
