// SPDX-License-Identifier: Apache-2.0

package query

import (
	"context"
	"sort"

	"github.com/dogmahq/dogma/dogmaerr"
	"github.com/dogmahq/dogma/modules/dogma/object"
	"github.com/dogmahq/dogma/modules/diferenco"
	"github.com/dogmahq/dogma/modules/plumbing"
	"github.com/dogmahq/dogma/modules/wildmatch"
)

// diffChanges walks the two trees in lockstep (the same content-hash-equal
// short-circuiting commit.changedPaths uses, generalized here to also carry
// each side's content) and returns every changed leaf path matching
// pattern, sorted lexicographically (spec.md §4.F: "diffs ... ordered
// lexicographically by path").
func diffChanges(store object.Store, oldHash, newHash plumbing.Hash, pattern wildmatch.Matcher) ([]Change, error) {
	var changes []Change
	if err := diffTreeInto(store, oldHash, newHash, "/", pattern, &changes); err != nil {
		return nil, err
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes, nil
}

func diffTreeInto(store object.Store, oldHash, newHash plumbing.Hash, prefix string, pattern wildmatch.Matcher, out *[]Change) error {
	if oldHash == newHash {
		return nil
	}
	oldEntries, err := treeEntries(store, oldHash)
	if err != nil {
		return err
	}
	newEntries, err := treeEntries(store, newHash)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(oldEntries)+len(newEntries))
	for name := range oldEntries {
		seen[name] = true
	}
	for name := range newEntries {
		seen[name] = true
	}

	for name := range seen {
		oldEntry, inOld := oldEntries[name]
		newEntry, inNew := newEntries[name]
		path := prefix + name
		switch {
		case !inOld:
			if err := collectChanges(store, newEntry, path, Added, pattern, out); err != nil {
				return err
			}
		case !inNew:
			if err := collectChanges(store, oldEntry, path, Removed, pattern, out); err != nil {
				return err
			}
		case oldEntry.Mode == object.SubtreeEntry && newEntry.Mode == object.SubtreeEntry:
			if err := diffTreeInto(store, oldEntry.Hash, newEntry.Hash, path+"/", pattern, out); err != nil {
				return err
			}
		case oldEntry.Mode == object.FileEntry && newEntry.Mode == object.FileEntry:
			if oldEntry.Hash == newEntry.Hash {
				continue
			}
			if err := appendFileChange(store, path, oldEntry.Hash, newEntry.Hash, Modified, pattern, out); err != nil {
				return err
			}
		default:
			if err := collectChanges(store, oldEntry, path, Removed, pattern, out); err != nil {
				return err
			}
			if err := collectChanges(store, newEntry, path, Added, pattern, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func treeEntries(store object.Store, hash plumbing.Hash) (map[string]object.TreeEntry, error) {
	if hash.IsZero() {
		return nil, nil
	}
	tree, err := object.GetTree(store, hash)
	if err != nil {
		return nil, dogmaerr.StorageExceptionErr(err, "load tree %s", hash)
	}
	m := make(map[string]object.TreeEntry, len(tree.Entries))
	for _, e := range tree.Entries {
		m[e.Name] = e
	}
	return m, nil
}

// collectChanges appends Change records for every leaf under entry — itself
// if a file, every descendant file if a subtree — each stamped with kind.
func collectChanges(store object.Store, entry object.TreeEntry, path string, kind ChangeKind, pattern wildmatch.Matcher, out *[]Change) error {
	if entry.Mode == object.FileEntry {
		if !pattern.Match(path) {
			return nil
		}
		blob, err := object.GetBlob(store, entry.Hash)
		if err != nil {
			return dogmaerr.StorageExceptionErr(err, "load blob at %q", path)
		}
		*out = append(*out, fileChange(path, blob.Content, kind))
		return nil
	}
	tree, err := object.GetTree(store, entry.Hash)
	if err != nil {
		return dogmaerr.StorageExceptionErr(err, "load tree %s", entry.Hash)
	}
	for _, e := range tree.Entries {
		if err := collectChanges(store, e, path+"/"+e.Name, kind, pattern, out); err != nil {
			return err
		}
	}
	return nil
}

// fileChange builds a Change for a pure addition or removal: content sits
// on whichever side the kind names, the other side is nil.
func fileChange(path string, content []byte, kind ChangeKind) Change {
	c := Change{Path: path, Type: plumbing.InferEntryType(path), Kind: kind}
	switch kind {
	case Added:
		c.NewContent = content
	case Removed:
		c.OldContent = content
	}
	return c
}

func appendFileChange(store object.Store, path string, oldHash, newHash plumbing.Hash, kind ChangeKind, pattern wildmatch.Matcher, out *[]Change) error {
	if !pattern.Match(path) {
		return nil
	}
	oldBlob, err := object.GetBlob(store, oldHash)
	if err != nil {
		return dogmaerr.StorageExceptionErr(err, "load blob at %q", path)
	}
	newBlob, err := object.GetBlob(store, newHash)
	if err != nil {
		return dogmaerr.StorageExceptionErr(err, "load blob at %q", path)
	}
	c := Change{
		Path:       path,
		Type:       plumbing.InferEntryType(path),
		Kind:       kind,
		OldContent: oldBlob.Content,
		NewContent: newBlob.Content,
	}
	if c.Type == plumbing.Text {
		diff, err := unifiedTextDiff(path, oldBlob.Content, newBlob.Content)
		if err != nil {
			return err
		}
		c.UnifiedDiff = diff
	}
	*out = append(*out, c)
	return nil
}

// changedPathsMatch reports whether any path that differs between oldHash
// and newHash matches pattern, without fetching any blob content — used by
// history to test a commit's changed-path set against a pattern cheaply.
func changedPathsMatch(store object.Store, oldHash, newHash plumbing.Hash, pattern wildmatch.Matcher) (bool, error) {
	if oldHash == newHash {
		return false, nil
	}
	return pathsMatchInto(store, oldHash, newHash, "/", pattern)
}

func pathsMatchInto(store object.Store, oldHash, newHash plumbing.Hash, prefix string, pattern wildmatch.Matcher) (bool, error) {
	if oldHash == newHash {
		return false, nil
	}
	oldEntries, err := treeEntries(store, oldHash)
	if err != nil {
		return false, err
	}
	newEntries, err := treeEntries(store, newHash)
	if err != nil {
		return false, err
	}
	seen := make(map[string]bool, len(oldEntries)+len(newEntries))
	for name := range oldEntries {
		seen[name] = true
	}
	for name := range newEntries {
		seen[name] = true
	}
	for name := range seen {
		oldEntry, inOld := oldEntries[name]
		newEntry, inNew := newEntries[name]
		path := prefix + name
		switch {
		case !inOld:
			if ok, err := leafMatches(store, newEntry, path, pattern); err != nil || ok {
				return ok, err
			}
		case !inNew:
			if ok, err := leafMatches(store, oldEntry, path, pattern); err != nil || ok {
				return ok, err
			}
		case oldEntry.Mode == object.SubtreeEntry && newEntry.Mode == object.SubtreeEntry:
			if ok, err := pathsMatchInto(store, oldEntry.Hash, newEntry.Hash, path+"/", pattern); err != nil || ok {
				return ok, err
			}
		case oldEntry.Mode == object.FileEntry && newEntry.Mode == object.FileEntry:
			if oldEntry.Hash != newEntry.Hash && pattern.Match(path) {
				return true, nil
			}
		default:
			if ok, err := leafMatches(store, oldEntry, path, pattern); err != nil || ok {
				return ok, err
			}
			if ok, err := leafMatches(store, newEntry, path, pattern); err != nil || ok {
				return ok, err
			}
		}
	}
	return false, nil
}

// leafMatches reports whether pattern matches entry itself (a file) or any
// descendant leaf (a subtree), without fetching blob content.
func leafMatches(store object.Store, entry object.TreeEntry, path string, pattern wildmatch.Matcher) (bool, error) {
	if entry.Mode == object.FileEntry {
		return pattern.Match(path), nil
	}
	tree, err := object.GetTree(store, entry.Hash)
	if err != nil {
		return false, dogmaerr.StorageExceptionErr(err, "load tree %s", entry.Hash)
	}
	for _, e := range tree.Entries {
		if ok, err := leafMatches(store, e, path+"/"+e.Name, pattern); err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// unifiedTextDiff renders the change between two text blobs as a unified
// diff using the histogram diff algorithm.
func unifiedTextDiff(path string, oldContent, newContent []byte) (string, error) {
	u, err := diferenco.DoUnified(context.Background(), &diferenco.Options{
		From: &diferenco.File{Path: path},
		To:   &diferenco.File{Path: path},
		A:    string(oldContent),
		B:    string(newContent),
	})
	if err != nil {
		return "", dogmaerr.StorageExceptionErr(err, "compute diff for %q", path)
	}
	return u.String(), nil
}
