// SPDX-License-Identifier: Apache-2.0

package commit

import (
	"sort"
	"strings"

	"github.com/dogmahq/dogma/dogmaerr"
	"github.com/dogmahq/dogma/modules/dogma/object"
	"github.com/dogmahq/dogma/modules/plumbing"
)

// isValidPath rejects directory paths for an edit target: every Change
// names a file, never a directory (spec.md §3's DIRECTORY entries only
// arise implicitly from a file's ancestor path components).
func isValidPath(path string) bool {
	return plumbing.ValidatePath(path) && !plumbing.IsDirectoryPath(path)
}

// stage is the in-memory staging structure of spec.md §4.D step 3: the tree
// at the base revision, loaded lazily directory-by-directory and mutated by
// each edit, then re-serialized bottom-up in step 5.
type stage struct {
	store object.Store

	// dirs maps a directory's "/"-joined segment key ("" for root) to its
	// live entries, keyed by base name. Only directories actually touched
	// by a load or a write are materialized.
	dirs map[string]map[string]object.TreeEntry
	// dirty marks directories whose entries changed since loading and so
	// must be re-encoded and re-hashed in rebuild().
	dirty map[string]bool
}

func newStage(store object.Store) *stage {
	return &stage{
		store: store,
		dirs:  make(map[string]map[string]object.TreeEntry),
		dirty: make(map[string]bool),
	}
}

func dirKey(segments []string) string {
	return strings.Join(segments, "/")
}

// dir returns the live entry map for the directory named by segments,
// loading it (and every ancestor along the way) from store on first touch.
// A directory that does not yet exist on disk is returned as a fresh empty
// map — creating intermediate directories implicitly, the way a filesystem
// "mkdir -p" would.
func (s *stage) dir(rootHash plumbing.Hash, segments []string) (map[string]object.TreeEntry, error) {
	key := dirKey(segments)
	if m, ok := s.dirs[key]; ok {
		return m, nil
	}
	if len(segments) == 0 {
		m, err := s.loadTreeEntries(rootHash)
		if err != nil {
			return nil, err
		}
		s.dirs[key] = m
		return m, nil
	}

	parent, err := s.dir(rootHash, segments[:len(segments)-1])
	if err != nil {
		return nil, err
	}
	name := segments[len(segments)-1]
	entry, ok := parent[name]
	var m map[string]object.TreeEntry
	switch {
	case !ok:
		m = make(map[string]object.TreeEntry)
	case entry.Mode != object.SubtreeEntry:
		return nil, dogmaerr.ChangeConflictErr("%q is a file, not a directory", plumbing.JoinSegments(segments))
	default:
		m, err = s.loadTreeEntries(entry.Hash)
		if err != nil {
			return nil, err
		}
	}
	s.dirs[key] = m
	return m, nil
}

func (s *stage) loadTreeEntries(hash plumbing.Hash) (map[string]object.TreeEntry, error) {
	if hash.IsZero() {
		return make(map[string]object.TreeEntry), nil
	}
	tree, err := object.GetTree(s.store, hash)
	if err != nil {
		return nil, dogmaerr.StorageExceptionErr(err, "load tree %s", hash)
	}
	m := make(map[string]object.TreeEntry, len(tree.Entries))
	for _, e := range tree.Entries {
		m[e.Name] = e
	}
	return m, nil
}

// markDirty marks the directory named by segments (and every ancestor, so
// the ancestors are revisited during rebuild) dirty.
func (s *stage) markDirty(segments []string) {
	for i := len(segments); i >= 0; i-- {
		s.dirty[dirKey(segments[:i])] = true
	}
}

// get resolves path to its TreeEntry, or ok=false if absent.
func (s *stage) get(rootHash plumbing.Hash, path string) (entry object.TreeEntry, ok bool, err error) {
	segments := plumbing.Segments(path)
	if len(segments) == 0 {
		return object.TreeEntry{}, false, nil
	}
	parent, err := s.dir(rootHash, segments[:len(segments)-1])
	if err != nil {
		return object.TreeEntry{}, false, err
	}
	entry, ok = parent[segments[len(segments)-1]]
	return entry, ok, nil
}

// getBlob resolves path to its Blob content, failing if path is absent or
// names a directory.
func (s *stage) getBlob(rootHash plumbing.Hash, path string) (*object.Blob, error) {
	entry, ok, err := s.get(rootHash, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, dogmaerr.EntryNotFoundErr(path)
	}
	if entry.Mode != object.FileEntry {
		return nil, dogmaerr.EntryNoContentErr(path)
	}
	blob, err := object.GetBlob(s.store, entry.Hash)
	if err != nil {
		return nil, dogmaerr.StorageExceptionErr(err, "load blob at %q", path)
	}
	return blob, nil
}

// mustGetBlob fetches the blob an edit batch expects to already exist at
// path, surfacing a missing or directory target as ChangeConflict rather
// than stage.getBlob's read-path EntryNotFound/EntryNoContent — a commit
// batch referencing a path that isn't there is a malformed batch, not a
// query miss (spec.md §8: "REMOVE(p); REMOVE(p) — the second commit is
// ChangeConflict").
func mustGetBlob(s *stage, rootHash plumbing.Hash, path string) (*object.Blob, error) {
	blob, err := s.getBlob(rootHash, path)
	if err != nil {
		if dogmaerr.Is(err, dogmaerr.EntryNotFound) || dogmaerr.Is(err, dogmaerr.EntryNoContent) {
			return nil, dogmaerr.ChangeConflictErr("%q does not exist", path)
		}
		return nil, err
	}
	return blob, nil
}

// set writes (creating or overwriting) a file entry at path.
func (s *stage) set(rootHash plumbing.Hash, path string, hash plumbing.Hash) error {
	segments := plumbing.Segments(path)
	parent, err := s.dir(rootHash, segments[:len(segments)-1])
	if err != nil {
		return err
	}
	name := segments[len(segments)-1]
	if existing, ok := parent[name]; ok && existing.Mode == object.SubtreeEntry {
		return dogmaerr.ChangeConflictErr("%q is a directory", path)
	}
	parent[name] = object.TreeEntry{Name: name, Mode: object.FileEntry, Hash: hash}
	s.markDirty(segments[:len(segments)-1])
	return nil
}

// remove deletes the file entry at path, failing if it is absent.
func (s *stage) remove(rootHash plumbing.Hash, path string) error {
	segments := plumbing.Segments(path)
	parent, err := s.dir(rootHash, segments[:len(segments)-1])
	if err != nil {
		return err
	}
	name := segments[len(segments)-1]
	if _, ok := parent[name]; !ok {
		return dogmaerr.ChangeConflictErr("%q does not exist", path)
	}
	delete(parent, name)
	s.markDirty(segments[:len(segments)-1])
	return nil
}

// rebuild re-encodes every dirty directory bottom-up (deepest first) and
// returns the new root tree hash. Unmodified subtrees are left untouched —
// only directories on a dirtied path are rewritten and rehashed.
func (s *stage) rebuild(rootHash plumbing.Hash) (plumbing.Hash, error) {
	if len(s.dirty) == 0 {
		return rootHash, nil
	}
	keys := make([]string, 0, len(s.dirty))
	for k := range s.dirty {
		keys = append(keys, k)
	}
	// Deepest directories (most "/" separators) first, so a child's new
	// hash is available when its parent is re-encoded.
	sort.Slice(keys, func(i, j int) bool {
		return strings.Count(keys[i], "/") > strings.Count(keys[j], "/")
	})

	var newRoot plumbing.Hash
	for _, key := range keys {
		entries := s.dirs[key]
		treeEntries := make([]object.TreeEntry, 0, len(entries))
		for _, e := range entries {
			treeEntries = append(treeEntries, e)
		}
		tree := object.NewTree(treeEntries)
		hash, err := object.PutEncoded(s.store, tree)
		if err != nil {
			return plumbing.ZeroHash, dogmaerr.StorageExceptionErr(err, "write tree %q", key)
		}
		if key == "" {
			newRoot = hash
			continue
		}
		segments := strings.Split(key, "/")
		parentKey := dirKey(segments[:len(segments)-1])
		name := segments[len(segments)-1]
		parent, ok := s.dirs[parentKey]
		if !ok {
			return plumbing.ZeroHash, dogmaerr.New(dogmaerr.StorageException, "rebuild: missing parent directory %q", parentKey)
		}
		parent[name] = object.TreeEntry{Name: name, Mode: object.SubtreeEntry, Hash: hash}
	}
	// markDirty always dirties the root key ("") alongside every ancestor of
	// a changed path, so keys always includes "" and newRoot is always set
	// by the loop above.
	return newRoot, nil
}
