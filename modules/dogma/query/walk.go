// SPDX-License-Identifier: Apache-2.0

package query

import (
	"encoding/json"
	"sort"

	"github.com/dogmahq/dogma/dogmaerr"
	"github.com/dogmahq/dogma/modules/dogma/object"
	"github.com/dogmahq/dogma/modules/plumbing"
	"github.com/dogmahq/dogma/modules/wildmatch"
)

// walkFunc is invoked once per tree entry (file or directory) encountered by
// walkTree, with path already "/"-joined and absolute. Directory paths carry
// a trailing "/" so wildmatch.Matcher sees them as directory patterns would
// expect.
type walkFunc func(path string, entry object.TreeEntry) error

// walkTree performs a depth-first, name-sorted traversal of the tree at
// rootHash, invoking visit for every file and every directory reached.
// Directories are content-addressed, so two commits sharing a subtree never
// require fetching it twice within the same walk when the caller memoizes —
// callers here are one-shot per query, so no such cache is kept.
func walkTree(store object.Store, rootHash plumbing.Hash, prefix string, visit walkFunc) error {
	if rootHash.IsZero() {
		return nil
	}
	tree, err := object.GetTree(store, rootHash)
	if err != nil {
		return dogmaerr.StorageExceptionErr(err, "load tree %s", rootHash)
	}
	for _, e := range tree.Entries {
		path := prefix + e.Name
		if e.Mode == object.SubtreeEntry {
			dirPath := path + "/"
			if err := visit(dirPath, e); err != nil {
				return err
			}
			if err := walkTree(store, e.Hash, dirPath, visit); err != nil {
				return err
			}
			continue
		}
		if err := visit(path, e); err != nil {
			return err
		}
	}
	return nil
}

// listFiles implements spec.md §4.F `listFiles(rev, pattern) -> map<path,
// type>`, walking every tree entry (files and directories alike) whose path
// matches pattern.
func listFiles(store object.Store, rootHash plumbing.Hash, pattern wildmatch.Matcher) (map[string]plumbing.EntryType, error) {
	out := make(map[string]plumbing.EntryType)
	err := walkTree(store, rootHash, "/", func(path string, entry object.TreeEntry) error {
		if !pattern.Match(path) {
			return nil
		}
		if entry.Mode == object.SubtreeEntry {
			out[path] = plumbing.Directory
			return nil
		}
		out[path] = plumbing.InferEntryType(path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// getFiles implements spec.md §4.F `getFiles(rev, pattern) -> map<path,
// Entry>`, fetching and decoding the content of every matching file (never
// directories, which carry no content).
func getFiles(store object.Store, rootHash plumbing.Hash, rev plumbing.Revision, pattern wildmatch.Matcher) (map[string]*Entry, error) {
	var paths []string
	entries := make(map[string]object.TreeEntry)
	err := walkTree(store, rootHash, "/", func(path string, entry object.TreeEntry) error {
		if entry.Mode == object.SubtreeEntry || !pattern.Match(path) {
			return nil
		}
		paths = append(paths, path)
		entries[path] = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	out := make(map[string]*Entry, len(paths))
	for _, path := range paths {
		blob, err := object.GetBlob(store, entries[path].Hash)
		if err != nil {
			return nil, dogmaerr.StorageExceptionErr(err, "load blob at %q", path)
		}
		entry, err := decodeEntry(rev, path, blob.Content)
		if err != nil {
			return nil, err
		}
		out[path] = entry
	}
	return out, nil
}

// resolveEntry fetches a single path's TreeEntry from rootHash, walking one
// directory level at a time.
func resolveEntry(store object.Store, rootHash plumbing.Hash, path string) (object.TreeEntry, error) {
	segments := plumbing.Segments(path)
	if len(segments) == 0 {
		return object.TreeEntry{Name: "", Mode: object.SubtreeEntry, Hash: rootHash}, nil
	}
	current := rootHash
	var entry object.TreeEntry
	for i, seg := range segments {
		if current.IsZero() {
			return object.TreeEntry{}, dogmaerr.EntryNotFoundErr(path)
		}
		tree, err := object.GetTree(store, current)
		if err != nil {
			return object.TreeEntry{}, dogmaerr.StorageExceptionErr(err, "load tree %s", current)
		}
		found, ok := tree.Entry(seg)
		if !ok {
			return object.TreeEntry{}, dogmaerr.EntryNotFoundErr(path)
		}
		if i < len(segments)-1 && found.Mode != object.SubtreeEntry {
			return object.TreeEntry{}, dogmaerr.EntryNotFoundErr(path)
		}
		entry = found
		current = found.Hash
	}
	return entry, nil
}

// getEntry fetches and decodes the entry at path, failing with
// EntryNotFound on the read-path semantics spec.md §7 documents for queries
// (as opposed to the edit-path ChangeConflict the commit pipeline raises for
// the same condition). A directory path yields a Directory entry with no
// content rather than an error.
func getEntry(store object.Store, rootHash plumbing.Hash, rev plumbing.Revision, path string) (*Entry, error) {
	entry, err := resolveEntry(store, rootHash, path)
	if err != nil {
		return nil, err
	}
	if entry.Mode == object.SubtreeEntry {
		return &Entry{Revision: rev, Path: path, Type: plumbing.Directory}, nil
	}
	blob, err := object.GetBlob(store, entry.Hash)
	if err != nil {
		return nil, dogmaerr.StorageExceptionErr(err, "load blob at %q", path)
	}
	return decodeEntry(rev, path, blob.Content)
}

func decodeEntry(rev plumbing.Revision, path string, content []byte) (*Entry, error) {
	typ := plumbing.InferEntryType(path)
	e := &Entry{Revision: rev, Path: path, Type: typ}
	switch typ {
	case plumbing.JSON:
		var doc any
		if err := json.Unmarshal(content, &doc); err != nil {
			return nil, dogmaerr.New(dogmaerr.QueryExecution, "malformed JSON at %q: %v", path, err)
		}
		e.JSON = doc
	default:
		e.Text = string(content)
	}
	return e, nil
}
