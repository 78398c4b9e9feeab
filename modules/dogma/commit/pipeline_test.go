// SPDX-License-Identifier: Apache-2.0

package commit_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dogmahq/dogma/dogmaerr"
	"github.com/dogmahq/dogma/modules/dogma/commit"
	"github.com/dogmahq/dogma/modules/dogma/object"
	"github.com/dogmahq/dogma/modules/dogma/refs"
	"github.com/dogmahq/dogma/modules/plumbing"
)

func newTestPipeline(t *testing.T) (*commit.Pipeline, *memStore, *refs.Index) {
	t.Helper()
	store := newMemStore()
	idx, err := refs.Open(t.TempDir())
	require.NoError(t, err)
	return commit.New(store, idx), store, idx
}

var testAuthor = object.Author{Name: "tester", Email: "tester@example.com"}

func TestCommitUpsertTextNormalizesContent(t *testing.T) {
	p, store, idx := newTestPipeline(t)

	result, err := p.Commit(0, testAuthor, "add hello", "", object.PlaintextMarkup,
		[]commit.Change{commit.NewUpsertText("/hello.txt", "hello")}, false)
	require.NoError(t, err)
	assert.Equal(t, plumbing.Revision(1), result.Revision)
	assert.Equal(t, []string{"/hello.txt"}, result.ChangedPaths)
	assert.Equal(t, plumbing.Revision(1), idx.Head())

	commitObj, err := object.GetCommit(store, result.CommitHash)
	require.NoError(t, err)
	tree, err := object.GetTree(store, commitObj.Tree)
	require.NoError(t, err)
	entry, ok := tree.Entry("hello.txt")
	require.True(t, ok)
	blob, err := object.GetBlob(store, entry.Hash)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(blob.Content))
}

func TestCommitRedundantChangeRejected(t *testing.T) {
	p, _, _ := newTestPipeline(t)

	_, err := p.Commit(0, testAuthor, "add hello", "", object.PlaintextMarkup,
		[]commit.Change{commit.NewUpsertText("/hello.txt", "hello")}, false)
	require.NoError(t, err)

	_, err = p.Commit(1, testAuthor, "add hello again", "", object.PlaintextMarkup,
		[]commit.Change{commit.NewUpsertText("/hello.txt", "hello")}, false)
	require.Error(t, err)
	assert.Equal(t, dogmaerr.RedundantChange, dogmaerr.KindOf(err))
}

func TestCommitRemoveTwiceConflicts(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	_, err := p.Commit(0, testAuthor, "add", "", object.PlaintextMarkup,
		[]commit.Change{commit.NewUpsertText("/a.txt", "a")}, false)
	require.NoError(t, err)

	_, err = p.Commit(1, testAuthor, "remove", "", object.PlaintextMarkup,
		[]commit.Change{commit.NewRemove("/a.txt")}, false)
	require.NoError(t, err)

	_, err = p.Commit(2, testAuthor, "remove again", "", object.PlaintextMarkup,
		[]commit.Change{commit.NewRemove("/a.txt")}, false)
	require.Error(t, err)
	assert.Equal(t, dogmaerr.ChangeConflict, dogmaerr.KindOf(err))
}

func TestCommitStaleBaseConflicts(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	_, err := p.Commit(0, testAuthor, "add a", "", object.PlaintextMarkup,
		[]commit.Change{commit.NewUpsertText("/a.txt", "a")}, false)
	require.NoError(t, err)

	_, err = p.Commit(0, testAuthor, "add b", "", object.PlaintextMarkup,
		[]commit.Change{commit.NewUpsertText("/b.txt", "b")}, false)
	require.Error(t, err)
	assert.Equal(t, dogmaerr.ChangeConflict, dogmaerr.KindOf(err))
}

func TestCommitRenameRoundTrip(t *testing.T) {
	p, store, _ := newTestPipeline(t)
	_, err := p.Commit(0, testAuthor, "add", "", object.PlaintextMarkup,
		[]commit.Change{commit.NewUpsertText("/a.txt", "content")}, false)
	require.NoError(t, err)

	r2, err := p.Commit(1, testAuthor, "rename a->b", "", object.PlaintextMarkup,
		[]commit.Change{commit.NewRename("/a.txt", "/b.txt")}, false)
	require.NoError(t, err)

	r3, err := p.Commit(2, testAuthor, "rename b->a", "", object.PlaintextMarkup,
		[]commit.Change{commit.NewRename("/b.txt", "/a.txt")}, false)
	require.NoError(t, err)

	c2, err := object.GetCommit(store, r2.CommitHash)
	require.NoError(t, err)
	c3, err := object.GetCommit(store, r3.CommitHash)
	require.NoError(t, err)
	// The round trip restores the tree byte-for-byte only relative to the
	// pre-rename tree, not c2's — compare against the commit before r2.
	c1, err := object.GetCommit(store, c2.Parent)
	require.NoError(t, err)
	assert.Equal(t, c1.Tree, c3.Tree)
}

func TestCommitJSONPatchTestFailureConflicts(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	_, err := p.Commit(0, testAuthor, "add", "", object.PlaintextMarkup,
		[]commit.Change{commit.NewUpsertJSON("/a.json", json.RawMessage(`{"x":1}`))}, false)
	require.NoError(t, err)

	patch := json.RawMessage(`[{"op":"test","path":"/x","value":2}]`)
	_, err = p.Commit(1, testAuthor, "patch", "", object.PlaintextMarkup,
		[]commit.Change{commit.NewApplyJSONPatch("/a.json", patch)}, false)
	require.Error(t, err)
	assert.Equal(t, dogmaerr.ChangeConflict, dogmaerr.KindOf(err))
}

func TestCommitJSONPatchReplaceApplies(t *testing.T) {
	p, store, _ := newTestPipeline(t)
	_, err := p.Commit(0, testAuthor, "add", "", object.PlaintextMarkup,
		[]commit.Change{commit.NewUpsertJSON("/a.json", json.RawMessage(`{"x":1}`))}, false)
	require.NoError(t, err)

	patch := json.RawMessage(`[{"op":"test","path":"/x","value":1},{"op":"replace","path":"/x","value":2}]`)
	result, err := p.Commit(1, testAuthor, "patch", "", object.PlaintextMarkup,
		[]commit.Change{commit.NewApplyJSONPatch("/a.json", patch)}, false)
	require.NoError(t, err)

	commitObj, err := object.GetCommit(store, result.CommitHash)
	require.NoError(t, err)
	tree, err := object.GetTree(store, commitObj.Tree)
	require.NoError(t, err)
	entry, _ := tree.Entry("a.json")
	blob, err := object.GetBlob(store, entry.Hash)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(blob.Content, &decoded))
	assert.Equal(t, float64(2), decoded["x"])
}

func TestCommitTextPatchApplies(t *testing.T) {
	p, store, _ := newTestPipeline(t)
	_, err := p.Commit(0, testAuthor, "add", "", object.PlaintextMarkup,
		[]commit.Change{commit.NewUpsertText("/a.txt", "one\ntwo\nthree\n")}, false)
	require.NoError(t, err)

	diff := "@@ -2 +2 @@\n-two\n+TWO\n"
	result, err := p.Commit(1, testAuthor, "patch", "", object.PlaintextMarkup,
		[]commit.Change{commit.NewApplyTextPatch("/a.txt", diff)}, false)
	require.NoError(t, err)

	commitObj, err := object.GetCommit(store, result.CommitHash)
	require.NoError(t, err)
	tree, err := object.GetTree(store, commitObj.Tree)
	require.NoError(t, err)
	entry, _ := tree.Entry("a.txt")
	blob, err := object.GetBlob(store, entry.Hash)
	require.NoError(t, err)
	assert.Equal(t, "one\nTWO\nthree\n", string(blob.Content))
}

func TestCommitNestedPathsBuildIntermediateDirectories(t *testing.T) {
	p, store, _ := newTestPipeline(t)
	result, err := p.Commit(0, testAuthor, "add nested", "", object.PlaintextMarkup,
		[]commit.Change{
			commit.NewUpsertText("/a/b/c.txt", "leaf"),
			commit.NewUpsertText("/a/d.txt", "sibling"),
		}, false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/a/b/c.txt", "/a/d.txt"}, result.ChangedPaths)

	commitObj, err := object.GetCommit(store, result.CommitHash)
	require.NoError(t, err)
	root, err := object.GetTree(store, commitObj.Tree)
	require.NoError(t, err)
	aEntry, ok := root.Entry("a")
	require.True(t, ok)
	assert.Equal(t, object.SubtreeEntry, aEntry.Mode)
}

func TestGenesisCommitAllowsEmptyTree(t *testing.T) {
	p, _, idx := newTestPipeline(t)
	result, err := p.Commit(0, testAuthor, "genesis", "", object.PlaintextMarkup, nil, true)
	require.NoError(t, err)
	assert.Equal(t, plumbing.Revision(1), result.Revision)
	assert.True(t, result.CommitHash != plumbing.ZeroHash)
	assert.Equal(t, plumbing.Revision(1), idx.Head())
}
