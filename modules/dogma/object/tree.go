// SPDX-License-Identifier: Apache-2.0

package object

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/dogmahq/dogma/modules/plumbing"
)

// EntryKind distinguishes the two things a Tree entry can name (spec.md
// §4.A: "mode distinguishes FILE and SUBTREE").
type EntryKind uint8

const (
	InvalidEntryKind EntryKind = 0
	FileEntry        EntryKind = 1
	SubtreeEntry     EntryKind = 2
)

func (k EntryKind) String() string {
	switch k {
	case FileEntry:
		return "FILE"
	case SubtreeEntry:
		return "SUBTREE"
	default:
		return "INVALID"
	}
}

// TreeEntry names one child of a Tree by its base name (no "/").
type TreeEntry struct {
	Name string
	Mode EntryKind
	Hash plumbing.Hash
}

// Tree is a directory listing: entries sorted lexicographically by name.
type Tree struct {
	Entries []TreeEntry
}

// NewTree builds a Tree from entries, sorting them by name.
func NewTree(entries []TreeEntry) *Tree {
	sorted := make([]TreeEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return &Tree{Entries: sorted}
}

// Entry looks up a direct child by base name.
func (t *Tree) Entry(name string) (TreeEntry, bool) {
	for _, e := range t.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return TreeEntry{}, false
}

// WithEntry returns a new Tree with entry inserted or replacing the existing
// entry of the same name. The receiver is left unmodified.
func (t *Tree) WithEntry(entry TreeEntry) *Tree {
	out := make([]TreeEntry, 0, len(t.Entries)+1)
	replaced := false
	for _, e := range t.Entries {
		if e.Name == entry.Name {
			out = append(out, entry)
			replaced = true
			continue
		}
		out = append(out, e)
	}
	if !replaced {
		out = append(out, entry)
	}
	return NewTree(out)
}

// WithoutEntry returns a new Tree with the named entry removed, or the
// receiver's entries unchanged if no such entry exists. ok reports whether
// an entry was actually removed.
func (t *Tree) WithoutEntry(name string) (tree *Tree, ok bool) {
	out := make([]TreeEntry, 0, len(t.Entries))
	for _, e := range t.Entries {
		if e.Name == name {
			ok = true
			continue
		}
		out = append(out, e)
	}
	return NewTree(out), ok
}

// Equal reports whether t and other have byte-identical canonical encodings.
func (t *Tree) Equal(other *Tree) bool {
	if t == nil || other == nil {
		return t == other
	}
	if len(t.Entries) != len(other.Entries) {
		return false
	}
	for i := range t.Entries {
		a, b := t.Entries[i], other.Entries[i]
		if a.Name != b.Name || a.Mode != b.Mode || a.Hash != b.Hash {
			return false
		}
	}
	return true
}

func (t *Tree) Encode(w io.Writer) error {
	if _, err := w.Write(treeMagic[:]); err != nil {
		return err
	}
	// Entries must already be name-sorted; NewTree/WithEntry/WithoutEntry
	// guarantee this, so Encode never re-sorts (compile once, encode many).
	var lenBuf [binary.MaxVarintLen64]byte
	for _, e := range t.Entries {
		if _, err := w.Write([]byte{byte(e.Mode)}); err != nil {
			return err
		}
		n := binary.PutUvarint(lenBuf[:], uint64(len(e.Name)))
		if _, err := w.Write(lenBuf[:n]); err != nil {
			return err
		}
		if _, err := io.WriteString(w, e.Name); err != nil {
			return err
		}
		if _, err := w.Write(e.Hash[:]); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) Decode(data []byte) error {
	if len(data) < 4 || !bytes.Equal(data[:4], treeMagic[:]) {
		return ErrUnsupportedObject
	}
	r := bytes.NewReader(data[4:])
	var entries []TreeEntry
	for r.Len() > 0 {
		var modeByte byte
		var err error
		if modeByte, err = r.ReadByte(); err != nil {
			return err
		}
		nameLen, err := binary.ReadUvarint(r)
		if err != nil {
			return err
		}
		nameBuf := make([]byte, nameLen)
		if _, err := io.ReadFull(r, nameBuf); err != nil {
			return err
		}
		var hash plumbing.Hash
		if _, err := io.ReadFull(r, hash[:]); err != nil {
			return err
		}
		entries = append(entries, TreeEntry{Name: string(nameBuf), Mode: EntryKind(modeByte), Hash: hash})
	}
	t.Entries = entries
	return nil
}

// ErrEntryNotFound is returned by Walk helpers when a path component is
// missing from a tree.
type ErrEntryNotFound struct {
	Path string
}

func (e *ErrEntryNotFound) Error() string {
	return fmt.Sprintf("dogma: entry %q not found", e.Path)
}

func IsErrEntryNotFound(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*ErrEntryNotFound)
	return ok
}
