// SPDX-License-Identifier: Apache-2.0

package commit

import (
	"sync"
	"time"

	"github.com/dogmahq/dogma/dogmaerr"
	"github.com/dogmahq/dogma/modules/dogma/object"
	"github.com/dogmahq/dogma/modules/dogma/refs"
	"github.com/dogmahq/dogma/modules/plumbing"
)

// maxAdvanceRetries bounds the retry loop of spec.md §4.D step 7: under
// the caller's own writer lock, Advance can only race with an external,
// replicated lock implementation — this is a defensive bound, not an
// expected path.
const maxAdvanceRetries = 3

// Result is the outcome of a successful Commit (spec.md §4.D:
// "CommitResult{revision, appliedChanges}"), plus the changed-path set step
// 8 hands to the watch manager.
type Result struct {
	Revision       plumbing.Revision
	AppliedChanges []Change
	ChangedPaths   []string
	CommitHash     plumbing.Hash
}

// Pipeline applies batches of edits against one repository's object store
// and ref index (spec.md §4.D). A Pipeline is safe for concurrent Commit
// calls: Commit holds the Pipeline's own mutex, the per-repository writer
// lock, for its whole duration.
type Pipeline struct {
	mu    sync.Mutex
	store object.Store
	refs  *refs.Index
}

func New(store object.Store, refIndex *refs.Index) *Pipeline {
	return &Pipeline{store: store, refs: refIndex}
}

// Commit applies edits against the tree at baseRevision (normalized against
// the current HEAD) and produces the next revision.
func (p *Pipeline) Commit(
	baseRevision plumbing.Revision,
	author object.Author,
	summary, detail string,
	markup object.Markup,
	edits []Change,
	allowEmpty bool,
) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if summary == "" {
		return nil, dogmaerr.ChangeConflictErr("commit summary must not be empty")
	}
	for _, e := range edits {
		if err := e.Validate(); err != nil {
			return nil, err
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxAdvanceRetries; attempt++ {
		result, err := p.attemptCommit(baseRevision, author, summary, detail, markup, edits, allowEmpty)
		if err == nil {
			return result, nil
		}
		if !dogmaerr.Is(err, dogmaerr.ChangeConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (p *Pipeline) attemptCommit(
	baseRevision plumbing.Revision,
	author object.Author,
	summary, detail string,
	markup object.Markup,
	edits []Change,
	allowEmpty bool,
) (*Result, error) {
	head := p.refs.Head()

	// Revision(0) is illegal as a reference to an existing commit, but a
	// brand-new repository's HEAD is legitimately 0 before its genesis
	// commit — the repository manager's create() calls Commit with
	// baseRevision 0 in that one case, bypassing the usual
	// client-supplied-revision normalization.
	var base plumbing.Revision
	if head == 0 {
		if baseRevision != 0 {
			return nil, dogmaerr.ChangeConflictErr("base revision %d does not equal HEAD %d", baseRevision, head)
		}
		base = 0
	} else {
		var err error
		base, err = baseRevision.Normalize(head)
		if err != nil {
			return nil, dogmaerr.ChangeConflictErr("base revision %d does not equal HEAD %d", baseRevision, head)
		}
	}
	if base != head {
		return nil, dogmaerr.ChangeConflictErr("base revision %d does not equal HEAD %d", base, head)
	}

	var baseTree, baseCommitHash plumbing.Hash
	if head > 0 {
		var err error
		baseCommitHash, err = p.refs.Commit(head)
		if err != nil {
			return nil, err
		}
		baseCommit, err := object.GetCommit(p.store, baseCommitHash)
		if err != nil {
			return nil, dogmaerr.StorageExceptionErr(err, "load base commit")
		}
		baseTree = baseCommit.Tree
	}

	st := newStage(p.store)
	seenPaths := make(map[string]bool, len(edits))
	for _, edit := range edits {
		key := edit.Path
		if edit.Op == Rename {
			key = edit.Path + "\x00" + edit.NewPath
		}
		if seenPaths[key] {
			return nil, dogmaerr.ChangeConflictErr("duplicate edit for path %q in one batch", edit.Path)
		}
		seenPaths[key] = true

		if err := p.applyEdit(st, baseTree, edit); err != nil {
			return nil, err
		}
	}

	newTree, err := st.rebuild(baseTree)
	if err != nil {
		return nil, err
	}

	if newTree == baseTree {
		if !allowEmpty {
			return nil, dogmaerr.RedundantChangeErr()
		}
	}

	newRevision := head + 1
	newCommit := &object.Commit{
		Revision: newRevision,
		Author:   author,
		PushedAt: time.Now().Truncate(time.Second),
		Summary:  summary,
		Detail:   detail,
		Markup:   markup,
		Tree:     newTree,
		Parent:   baseCommitHash,
	}
	commitHash, err := object.PutEncoded(p.store, newCommit)
	if err != nil {
		return nil, dogmaerr.StorageExceptionErr(err, "write commit object")
	}

	if err := p.refs.Advance(head, newRevision, commitHash); err != nil {
		return nil, err
	}

	paths, err := changedPaths(p.store, baseTree, newTree)
	if err != nil {
		return nil, err
	}

	return &Result{
		Revision:       newRevision,
		AppliedChanges: edits,
		ChangedPaths:   paths,
		CommitHash:     commitHash,
	}, nil
}

// Preview applies edits against baseTree without touching the ref index or
// writing a commit object — the query engine's previewDiffs (spec.md §4.F)
// runs the pipeline only up to the change-computation step of §4.D step 8.
// It returns the tree edits would produce and the paths that changed.
func (p *Pipeline) Preview(baseTree plumbing.Hash, edits []Change) (newTree plumbing.Hash, paths []string, err error) {
	for _, e := range edits {
		if err := e.Validate(); err != nil {
			return plumbing.ZeroHash, nil, err
		}
	}
	st := newStage(p.store)
	seenPaths := make(map[string]bool, len(edits))
	for _, edit := range edits {
		key := edit.Path
		if edit.Op == Rename {
			key = edit.Path + "\x00" + edit.NewPath
		}
		if seenPaths[key] {
			return plumbing.ZeroHash, nil, dogmaerr.ChangeConflictErr("duplicate edit for path %q in one batch", edit.Path)
		}
		seenPaths[key] = true
		if err := p.applyEdit(st, baseTree, edit); err != nil {
			return plumbing.ZeroHash, nil, err
		}
	}
	newTree, err = st.rebuild(baseTree)
	if err != nil {
		return plumbing.ZeroHash, nil, err
	}
	paths, err = changedPaths(p.store, baseTree, newTree)
	if err != nil {
		return plumbing.ZeroHash, nil, err
	}
	return newTree, paths, nil
}

func (p *Pipeline) applyEdit(st *stage, baseTree plumbing.Hash, edit Change) error {
	switch edit.Op {
	case UpsertJSON:
		normalized, err := normalizeJSON(edit.JSON)
		if err != nil {
			return err
		}
		hash, err := object.PutEncoded(p.store, object.NewBlob(normalized))
		if err != nil {
			return dogmaerr.StorageExceptionErr(err, "write blob at %q", edit.Path)
		}
		return st.set(baseTree, edit.Path, hash)

	case UpsertText:
		normalized := normalizeText(edit.Text)
		hash, err := object.PutEncoded(p.store, object.NewBlob(normalized))
		if err != nil {
			return dogmaerr.StorageExceptionErr(err, "write blob at %q", edit.Path)
		}
		return st.set(baseTree, edit.Path, hash)

	case Remove:
		return st.remove(baseTree, edit.Path)

	case Rename:
		blob, err := mustGetBlob(st, baseTree, edit.Path)
		if err != nil {
			return err
		}
		if _, ok, err := st.get(baseTree, edit.NewPath); err != nil {
			return err
		} else if ok {
			return dogmaerr.ChangeConflictErr("rename target %q already exists", edit.NewPath)
		}
		hash, err := object.PutEncoded(p.store, blob)
		if err != nil {
			return dogmaerr.StorageExceptionErr(err, "write blob at %q", edit.NewPath)
		}
		if err := st.remove(baseTree, edit.Path); err != nil {
			return err
		}
		return st.set(baseTree, edit.NewPath, hash)

	case ApplyJSONPatch:
		blob, err := mustGetBlob(st, baseTree, edit.Path)
		if err != nil {
			return err
		}
		patched, err := applyJSONPatch(blob.Content, edit.JSON)
		if err != nil {
			return err
		}
		normalized, err := normalizeJSON(patched)
		if err != nil {
			return err
		}
		hash, err := object.PutEncoded(p.store, object.NewBlob(normalized))
		if err != nil {
			return dogmaerr.StorageExceptionErr(err, "write blob at %q", edit.Path)
		}
		return st.set(baseTree, edit.Path, hash)

	case ApplyTextPatch:
		blob, err := mustGetBlob(st, baseTree, edit.Path)
		if err != nil {
			return err
		}
		patched, err := applyTextPatch(string(blob.Content), edit.Text)
		if err != nil {
			return err
		}
		hash, err := object.PutEncoded(p.store, object.NewBlob(normalizeText(patched)))
		if err != nil {
			return dogmaerr.StorageExceptionErr(err, "write blob at %q", edit.Path)
		}
		return st.set(baseTree, edit.Path, hash)

	default:
		return dogmaerr.ChangeConflictErr("unknown change type %q", edit.Op)
	}
}
