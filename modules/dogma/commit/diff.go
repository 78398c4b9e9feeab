// SPDX-License-Identifier: Apache-2.0

package commit

import (
	"github.com/dogmahq/dogma/dogmaerr"
	"github.com/dogmahq/dogma/modules/dogma/object"
	"github.com/dogmahq/dogma/modules/plumbing"
)

// changedPaths returns every file path that differs between two content-
// addressed trees, content-hash equal subtrees are skipped entirely without
// being fetched (spec.md §4.D step 8: "synchronously compute the set of
// paths changed between the two trees").
func changedPaths(store object.Store, oldHash, newHash plumbing.Hash) ([]string, error) {
	if oldHash == newHash {
		return nil, nil
	}
	var paths []string
	if err := diffInto(store, oldHash, newHash, nil, &paths); err != nil {
		return nil, err
	}
	return paths, nil
}

func entriesOf(store object.Store, hash plumbing.Hash) (map[string]object.TreeEntry, error) {
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

func diffInto(store object.Store, oldHash, newHash plumbing.Hash, prefix []string, out *[]string) error {
	if oldHash == newHash {
		return nil
	}
	oldEntries, err := entriesOf(store, oldHash)
	if err != nil {
		return err
	}
	newEntries, err := entriesOf(store, newHash)
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
		path := append(append([]string{}, prefix...), name)
		switch {
		case !inOld:
			// Added.
			if err := collectLeaves(store, newEntry, path, out); err != nil {
				return err
			}
		case !inNew:
			// Removed.
			if err := collectLeaves(store, oldEntry, path, out); err != nil {
				return err
			}
		case oldEntry.Mode == object.SubtreeEntry && newEntry.Mode == object.SubtreeEntry:
			if err := diffInto(store, oldEntry.Hash, newEntry.Hash, path, out); err != nil {
				return err
			}
		case oldEntry.Mode == object.FileEntry && newEntry.Mode == object.FileEntry:
			if oldEntry.Hash != newEntry.Hash {
				*out = append(*out, plumbing.JoinSegments(path))
			}
		default:
			// A file became a directory or vice versa: every leaf on
			// both sides counts as changed.
			if err := collectLeaves(store, oldEntry, path, out); err != nil {
				return err
			}
			if err := collectLeaves(store, newEntry, path, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// collectLeaves appends every file path reachable under entry (itself, if
// a file; every descendant file, if a subtree).
func collectLeaves(store object.Store, entry object.TreeEntry, prefix []string, out *[]string) error {
	if entry.Mode == object.FileEntry {
		*out = append(*out, plumbing.JoinSegments(prefix))
		return nil
	}
	tree, err := object.GetTree(store, entry.Hash)
	if err != nil {
		return dogmaerr.StorageExceptionErr(err, "load tree %s", entry.Hash)
	}
	for _, e := range tree.Entries {
		if err := collectLeaves(store, e, append(append([]string{}, prefix...), e.Name), out); err != nil {
			return err
		}
	}
	return nil
}
