// SPDX-License-Identifier: Apache-2.0

package query_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dogmahq/dogma/dogmaerr"
	"github.com/dogmahq/dogma/modules/dogma/commit"
	"github.com/dogmahq/dogma/modules/dogma/object"
	"github.com/dogmahq/dogma/modules/dogma/query"
	"github.com/dogmahq/dogma/modules/dogma/refs"
	"github.com/dogmahq/dogma/modules/plumbing"
	"github.com/dogmahq/dogma/modules/wildmatch"
)

var testAuthor = object.Author{Name: "tester", Email: "tester@example.com"}

func newTestEngine(t *testing.T) (*query.Engine, *commit.Pipeline) {
	t.Helper()
	store := newMemStore()
	idx, err := refs.Open(t.TempDir())
	require.NoError(t, err)
	p := commit.New(store, idx)
	return query.New(store, idx, p), p
}

func mustCommit(t *testing.T, p *commit.Pipeline, base plumbing.Revision, summary string, edits ...commit.Change) *commit.Result {
	t.Helper()
	r, err := p.Commit(base, testAuthor, summary, "", object.PlaintextMarkup, edits, false)
	require.NoError(t, err)
	return r
}

func seedRepo(t *testing.T) *query.Engine {
	t.Helper()
	e, p := newTestEngine(t)
	mustCommit(t, p, 0, "seed",
		commit.NewUpsertJSON("/config/app.json", json.RawMessage(`{"name":"svc","limits":{"cpu":2,"mem":512}}`)),
		commit.NewUpsertJSON("/config/override.json", json.RawMessage(`{"limits":{"mem":1024},"region":"us"}`)),
		commit.NewUpsertText("/docs/readme.txt", "line one\nline two\nline three\n"),
	)
	mustCommit(t, p, 1, "update",
		commit.NewUpsertJSON("/config/app.json", json.RawMessage(`{"name":"svc","limits":{"cpu":4,"mem":512}}`)),
		commit.NewUpsertText("/docs/readme.txt", "line one\nLINE TWO\nline three\n"),
	)
	return e
}

func TestListFilesMatchesPattern(t *testing.T) {
	e := seedRepo(t)
	files, err := e.ListFiles(-1, wildmatch.Compile("/config/**"))
	require.NoError(t, err)
	assert.Contains(t, files, "/config/app.json")
	assert.Contains(t, files, "/config/override.json")
	assert.NotContains(t, files, "/docs/readme.txt")
	assert.Equal(t, plumbing.JSON, files["/config/app.json"])
}

func TestGetFilesReturnsDecodedContent(t *testing.T) {
	e := seedRepo(t)
	files, err := e.GetFiles(-1, wildmatch.Compile("/config/app.json"))
	require.NoError(t, err)
	entry, ok := files["/config/app.json"]
	require.True(t, ok)
	m, ok := entry.JSON.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(4), m["limits"].(map[string]any)["cpu"])
}

func TestGetFileStructuredPath(t *testing.T) {
	e := seedRepo(t)
	entry, err := e.GetFile(-1, query.StructuredPath("/config/app.json", ".limits", ".cpu"))
	require.NoError(t, err)
	assert.Equal(t, float64(4), entry.JSON)
}

func TestGetFileMissingIsNotFound(t *testing.T) {
	e := seedRepo(t)
	_, err := e.GetFile(-1, query.Identity("/config/missing.json"))
	require.Error(t, err)
	assert.Equal(t, dogmaerr.EntryNotFound, dogmaerr.KindOf(err))
}

func TestMergeRightBiasedDeep(t *testing.T) {
	e := seedRepo(t)
	merged, err := e.Merge(-1, query.MergeQuery{
		Sources: []query.MergeSource{
			{Path: "/config/app.json"},
			{Path: "/config/override.json"},
		},
	})
	require.NoError(t, err)
	m := merged.JSON.(map[string]any)
	limits := m["limits"].(map[string]any)
	assert.Equal(t, float64(4), limits["cpu"])   // kept from base, absent in overlay
	assert.Equal(t, float64(1024), limits["mem"]) // overlay wins
	assert.Equal(t, "us", m["region"])
}

func TestMergeSkipsMissingOptionalSource(t *testing.T) {
	e := seedRepo(t)
	merged, err := e.Merge(-1, query.MergeQuery{
		Sources: []query.MergeSource{
			{Path: "/config/app.json"},
			{Path: "/config/does-not-exist.json", Optional: true},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/config/app.json"}, merged.Contributing)
}

func TestMergeFailsOnMissingRequiredSource(t *testing.T) {
	e := seedRepo(t)
	_, err := e.Merge(-1, query.MergeQuery{
		Sources: []query.MergeSource{{Path: "/config/does-not-exist.json"}},
	})
	require.Error(t, err)
	assert.Equal(t, dogmaerr.EntryNotFound, dogmaerr.KindOf(err))
}

func TestHistoryOrderedNewestFirstFilteredByPattern(t *testing.T) {
	e := seedRepo(t)
	commits, err := e.History(1, -1, wildmatch.Compile("/docs/**"))
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, plumbing.Revision(2), commits[0].Revision)
	assert.Equal(t, plumbing.Revision(1), commits[1].Revision)
}

func TestHistoryExcludesCommitsNotMatchingPattern(t *testing.T) {
	e, p := newTestEngine(t)
	mustCommit(t, p, 0, "a", commit.NewUpsertText("/a.txt", "a"))
	mustCommit(t, p, 1, "b", commit.NewUpsertText("/b.txt", "b"))
	commits, err := e.History(1, -1, wildmatch.Compile("/a.txt"))
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, plumbing.Revision(1), commits[0].Revision)
}

func TestDiffSinglePath(t *testing.T) {
	e := seedRepo(t)
	change, err := e.Diff(1, 2, query.Identity("/config/app.json"))
	require.NoError(t, err)
	assert.Equal(t, query.Modified, change.Kind)
	assert.NotEqual(t, change.OldContent, change.NewContent)
}

func TestDiffsOrderedLexicographically(t *testing.T) {
	e := seedRepo(t)
	changes, err := e.Diffs(1, 2, wildmatch.Compile("/**"))
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, "/config/app.json", changes[0].Path)
	assert.Equal(t, "/docs/readme.txt", changes[1].Path)
	assert.Contains(t, changes[1].UnifiedDiff, "-line two")
	assert.Contains(t, changes[1].UnifiedDiff, "+LINE TWO")
}

func TestFirstMatchingRevisionFindsEarliestHit(t *testing.T) {
	e, p := newTestEngine(t)
	mustCommit(t, p, 0, "a", commit.NewUpsertText("/a.txt", "a"))
	mustCommit(t, p, 1, "b", commit.NewUpsertText("/config/b.json", `{"x":1}`))
	mustCommit(t, p, 2, "c", commit.NewUpsertText("/config/c.json", `{"x":2}`))

	rev, ok, err := e.FirstMatchingRevision(1, 3, wildmatch.Compile("/config/**"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, plumbing.Revision(2), rev)
}

func TestFirstMatchingRevisionNoHit(t *testing.T) {
	e, p := newTestEngine(t)
	mustCommit(t, p, 0, "a", commit.NewUpsertText("/a.txt", "a"))

	_, ok, err := e.FirstMatchingRevision(1, 1, wildmatch.Compile("/config/**"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPreviewDiffsDoesNotAdvanceHead(t *testing.T) {
	e, p := newTestEngine(t)
	mustCommit(t, p, 0, "seed", commit.NewUpsertText("/a.txt", "one\n"))

	changes, err := e.PreviewDiffs(-1, []commit.Change{commit.NewUpsertText("/a.txt", "two\n")})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, query.Modified, changes[0].Kind)

	current, err := e.GetFile(-1, query.Identity("/a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "one\n", current.Text)
}
