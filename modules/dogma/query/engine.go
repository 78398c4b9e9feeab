// SPDX-License-Identifier: Apache-2.0

package query

import (
	"github.com/dogmahq/dogma/dogmaerr"
	"github.com/dogmahq/dogma/modules/dogma/commit"
	"github.com/dogmahq/dogma/modules/dogma/object"
	"github.com/dogmahq/dogma/modules/dogma/refs"
	"github.com/dogmahq/dogma/modules/plumbing"
	"github.com/dogmahq/dogma/modules/wildmatch"
)

// Engine is the read-only query surface of spec.md §4.F: listFiles,
// getFiles, getFile, merge, history, diff, diffs and previewDiffs, all
// evaluated against a repository's committed object store and ref index.
// Engine takes no lock — it relies on the immutability of committed
// revisions, the same reasoning spec.md §5 gives for lock-free readers.
type Engine struct {
	store    object.Store
	refs     *refs.Index
	pipeline *commit.Pipeline
}

func New(store object.Store, refIndex *refs.Index, pipeline *commit.Pipeline) *Engine {
	return &Engine{store: store, refs: refIndex, pipeline: pipeline}
}

// Head returns the repository's current HEAD revision.
func (e *Engine) Head() plumbing.Revision {
	return e.refs.Head()
}

// resolveTree resolves rev against the current HEAD and returns the
// absolute revision and its commit's tree hash.
func (e *Engine) resolveTree(rev plumbing.Revision) (plumbing.Revision, plumbing.Hash, error) {
	head := e.refs.Head()
	abs, err := rev.Normalize(head)
	if err != nil {
		return 0, plumbing.ZeroHash, dogmaerr.RevisionNotFoundErr(int32(rev))
	}
	commitHash, err := e.refs.Commit(abs)
	if err != nil {
		return 0, plumbing.ZeroHash, err
	}
	c, err := object.GetCommit(e.store, commitHash)
	if err != nil {
		return 0, plumbing.ZeroHash, dogmaerr.StorageExceptionErr(err, "load commit at revision %d", abs)
	}
	return abs, c.Tree, nil
}

// ListFiles implements `listFiles(rev, pattern) -> map<path, type>`.
func (e *Engine) ListFiles(rev plumbing.Revision, pattern wildmatch.Matcher) (map[string]plumbing.EntryType, error) {
	_, tree, err := e.resolveTree(rev)
	if err != nil {
		return nil, err
	}
	return listFiles(e.store, tree, pattern)
}

// GetFiles implements `getFiles(rev, pattern) -> map<path, Entry>`.
func (e *Engine) GetFiles(rev plumbing.Revision, pattern wildmatch.Matcher) (map[string]*Entry, error) {
	abs, tree, err := e.resolveTree(rev)
	if err != nil {
		return nil, err
	}
	return getFiles(e.store, tree, abs, pattern)
}

// GetFile implements `getFile(rev, query) -> Entry | EntryNotFound`,
// applying q's structured-path projection (if any) to the file's JSON
// document.
func (e *Engine) GetFile(rev plumbing.Revision, q Query) (*Entry, error) {
	abs, tree, err := e.resolveTree(rev)
	if err != nil {
		return nil, err
	}
	entry, err := getEntry(e.store, tree, abs, q.Path)
	if err != nil {
		return nil, err
	}
	if !q.IsStructured() {
		return entry, nil
	}
	if entry.Type != plumbing.JSON {
		return nil, dogmaerr.New(dogmaerr.QueryExecution, "structured-path query over non-JSON entry %q", q.Path)
	}
	projected, err := Evaluate(entry.JSON, q.Exprs)
	if err != nil {
		return nil, err
	}
	return &Entry{Revision: abs, Path: q.Path, Type: plumbing.JSON, JSON: projected}, nil
}

// Merge implements `merge(rev, mergeQuery) -> MergedEntry | EntryNotFound`.
func (e *Engine) Merge(rev plumbing.Revision, mq MergeQuery) (*MergedEntry, error) {
	abs, tree, err := e.resolveTree(rev)
	if err != nil {
		return nil, err
	}
	if len(mq.Sources) == 0 {
		return nil, dogmaerr.New(dogmaerr.QueryExecution, "merge query has no sources")
	}

	var composite any
	var contributing []string
	paths := make([]string, 0, len(mq.Sources))
	for _, src := range mq.Sources {
		paths = append(paths, src.Path)
		entry, err := getEntry(e.store, tree, abs, src.Path)
		if err != nil {
			if src.Optional && dogmaerr.Is(err, dogmaerr.EntryNotFound) {
				continue
			}
			return nil, err
		}
		if entry.Type != plumbing.JSON {
			return nil, dogmaerr.New(dogmaerr.QueryExecution, "merge source %q is not JSON", src.Path)
		}
		if composite == nil {
			composite = entry.JSON
		} else {
			composite = deepMerge(composite, entry.JSON)
		}
		contributing = append(contributing, src.Path)
	}
	if composite == nil {
		return nil, dogmaerr.EntryNotFoundErr(paths[0])
	}

	if len(mq.Exprs) > 0 {
		projected, err := Evaluate(composite, mq.Exprs)
		if err != nil {
			return nil, err
		}
		composite = projected
	}
	return &MergedEntry{Revision: abs, Paths: paths, Contributing: contributing, JSON: composite}, nil
}

// History implements `history(from, to, pattern) -> ordered list<Commit>`
// (inclusive, newest-first), keeping only commits that changed at least one
// path matching pattern.
func (e *Engine) History(from, to plumbing.Revision, pattern wildmatch.Matcher) ([]*object.Commit, error) {
	head := e.refs.Head()
	absFrom, err := from.Normalize(head)
	if err != nil {
		return nil, dogmaerr.RevisionNotFoundErr(int32(from))
	}
	absTo, err := to.Normalize(head)
	if err != nil {
		return nil, dogmaerr.RevisionNotFoundErr(int32(to))
	}
	lo, hi := absFrom, absTo
	if lo > hi {
		lo, hi = hi, lo
	}

	var out []*object.Commit
	for r := hi; r >= lo; r-- {
		commitHash, err := e.refs.Commit(r)
		if err != nil {
			return nil, err
		}
		c, err := object.GetCommit(e.store, commitHash)
		if err != nil {
			return nil, dogmaerr.StorageExceptionErr(err, "load commit at revision %d", r)
		}
		var parentTree plumbing.Hash
		if c.HasParent() {
			parent, err := object.GetCommit(e.store, c.Parent)
			if err != nil {
				return nil, dogmaerr.StorageExceptionErr(err, "load parent commit of revision %d", r)
			}
			parentTree = parent.Tree
		}
		matched, err := changedPathsMatch(e.store, parentTree, c.Tree, pattern)
		if err != nil {
			return nil, err
		}
		if matched {
			out = append(out, c)
		}
	}
	return out, nil
}

// Diff implements `diff(from, to, query) -> Change`, a single path's
// transition between two revisions.
func (e *Engine) Diff(from, to plumbing.Revision, q Query) (*Change, error) {
	_, fromTree, err := e.resolveTree(from)
	if err != nil {
		return nil, err
	}
	_, toTree, err := e.resolveTree(to)
	if err != nil {
		return nil, err
	}
	// diffChanges matches against a glob; q.Path is a literal path that may
	// itself contain glob metacharacters, so diff the whole tree and filter
	// by exact equality rather than compiling q.Path as a pattern.
	changes, err := diffChanges(e.store, fromTree, toTree, wildmatch.Compile("/**"))
	if err != nil {
		return nil, err
	}
	for i := range changes {
		if changes[i].Path == q.Path {
			return &changes[i], nil
		}
	}
	return nil, dogmaerr.EntryNotFoundErr(q.Path)
}

// Diffs implements `diffs(from, to, pattern) -> list<Change>`, ordered
// lexicographically by path.
func (e *Engine) Diffs(from, to plumbing.Revision, pattern wildmatch.Matcher) ([]Change, error) {
	_, fromTree, err := e.resolveTree(from)
	if err != nil {
		return nil, err
	}
	_, toTree, err := e.resolveTree(to)
	if err != nil {
		return nil, err
	}
	return diffChanges(e.store, fromTree, toTree, pattern)
}

// FirstMatchingRevision scans [from, to] ascending for the first commit
// that changed a path matching pattern, backing the watch manager's
// registration-time liveness check (spec.md §4.G "Liveness"). from and to
// are both absolute revisions.
func (e *Engine) FirstMatchingRevision(from, to plumbing.Revision, pattern wildmatch.Matcher) (plumbing.Revision, bool, error) {
	if from > to {
		return 0, false, nil
	}
	var parentTree plumbing.Hash
	if from > plumbing.Init {
		parentCommitHash, err := e.refs.Commit(from - 1)
		if err != nil {
			return 0, false, err
		}
		parentCommit, err := object.GetCommit(e.store, parentCommitHash)
		if err != nil {
			return 0, false, dogmaerr.StorageExceptionErr(err, "load commit at revision %d", from-1)
		}
		parentTree = parentCommit.Tree
	}
	for r := from; r <= to; r++ {
		commitHash, err := e.refs.Commit(r)
		if err != nil {
			return 0, false, err
		}
		c, err := object.GetCommit(e.store, commitHash)
		if err != nil {
			return 0, false, dogmaerr.StorageExceptionErr(err, "load commit at revision %d", r)
		}
		matched, err := changedPathsMatch(e.store, parentTree, c.Tree, pattern)
		if err != nil {
			return 0, false, err
		}
		if matched {
			return r, true, nil
		}
		parentTree = c.Tree
	}
	return 0, false, nil
}

// PreviewDiffs implements `previewDiffs(base, edits) -> list<Change>`: runs
// the commit pipeline's staging and change-computation steps against base
// without advancing HEAD or writing a commit object.
func (e *Engine) PreviewDiffs(base plumbing.Revision, edits []commit.Change) ([]Change, error) {
	_, baseTree, err := e.resolveTree(base)
	if err != nil {
		return nil, err
	}
	newTree, _, err := e.pipeline.Preview(baseTree, edits)
	if err != nil {
		return nil, err
	}
	return diffChanges(e.store, baseTree, newTree, wildmatch.Compile("/**"))
}
