// SPDX-License-Identifier: Apache-2.0

// Package backend implements the content-addressed object store of spec.md
// §4.A: put/get/contains over objects named by the SHA-1 of their canonical
// bytes, stored as zstd-compressed loose files sharded two levels deep by
// hex prefix, written durably via temp-file-then-fsync-then-rename.
package backend

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dogmahq/dogma/modules/plumbing"
	"github.com/dogmahq/dogma/modules/streamio"
)

// loose object on-disk framing:
//
//	4 byte magic
//	2 byte version
//	8 byte uncompressed length
//	N bytes zstd-compressed payload
var looseMagic = [4]byte{'D', 'O', 0x00, 0x01}

const looseVersion uint16 = 1

// Store is a single content-addressed loose-object store rooted at a
// directory on disk. It is safe for concurrent use.
type Store struct {
	root     string
	incoming string
}

// Open opens (creating if necessary) a Store rooted at root.
func Open(root string) (*Store, error) {
	incoming := filepath.Join(root, "incoming")
	if err := os.MkdirAll(incoming, 0o755); err != nil {
		return nil, fmt.Errorf("dogma: create incoming dir: %w", err)
	}
	return &Store{root: root, incoming: incoming}, nil
}

func (s *Store) Root() string { return s.root }

func (s *Store) path(oid plumbing.Hash) string {
	encoded := oid.String()
	return filepath.Join(s.root, encoded[:2], encoded[2:4], encoded)
}

// Contains reports whether oid is present in the store.
func (s *Store) Contains(oid plumbing.Hash) (bool, error) {
	_, err := os.Stat(s.path(oid))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Get returns the decompressed canonical bytes of oid.
func (s *Store) Get(oid plumbing.Hash) ([]byte, error) {
	f, err := os.Open(s.path(oid))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, plumbing.NoSuchObject(oid)
		}
		return nil, err
	}
	defer f.Close()

	var hdr [14]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		return nil, fmt.Errorf("dogma: truncated object %s: %w", oid, err)
	}
	if !bytes.Equal(hdr[:4], looseMagic[:]) {
		return nil, fmt.Errorf("dogma: object %s has bad magic", oid)
	}
	size := int64(binary.BigEndian.Uint64(hdr[6:14]))

	zr, err := streamio.GetZstdReader(f)
	if err != nil {
		return nil, fmt.Errorf("dogma: open zstd reader for %s: %w", oid, err)
	}
	defer streamio.PutZstdReader(zr)

	buf := make([]byte, 0, size)
	w := bytes.NewBuffer(buf)
	if _, err := streamio.Copy(w, zr); err != nil {
		return nil, fmt.Errorf("dogma: decompress object %s: %w", oid, err)
	}
	return w.Bytes(), nil
}

// Put stores data, keyed by the SHA-1 of data itself (spec.md §4.A: "Hashes
// are 20-byte SHA-1 of the object's canonical byte form"). Put is
// idempotent and durable: the write is fsync'd before the rename into place,
// and Put returns successfully if an identical object is already present.
func (s *Store) Put(data []byte) (plumbing.Hash, error) {
	oid := plumbing.SumBytes(data)
	if ok, err := s.Contains(oid); err != nil {
		return plumbing.ZeroHash, err
	} else if ok {
		return oid, nil
	}

	tmp, err := os.CreateTemp(s.incoming, "obj")
	if err != nil {
		return plumbing.ZeroHash, err
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if err := writeLoose(tmp, data); err != nil {
		return plumbing.ZeroHash, err
	}
	if err := tmp.Sync(); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("dogma: fsync object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return plumbing.ZeroHash, err
	}

	objectPath := s.path(oid)
	if err := os.MkdirAll(filepath.Dir(objectPath), 0o755); err != nil {
		return plumbing.ZeroHash, err
	}
	if err := finalize(tmpPath, objectPath); err != nil {
		return plumbing.ZeroHash, err
	}
	return oid, nil
}

func writeLoose(w io.Writer, data []byte) error {
	if _, err := w.Write(looseMagic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, looseVersion); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, int64(len(data))); err != nil {
		return err
	}
	zw := streamio.GetZstdWriter(w)
	defer streamio.PutZstdWriter(zw)
	_, err := zw.Write(data)
	return err
}

// finalize durably installs the object written at tmpPath under its final
// content-addressed name. A concurrent writer racing to the same path is
// harmless — the bytes are identical by construction — so an already-exists
// error from rename is not a failure.
func finalize(tmpPath, finalPath string) error {
	if _, err := os.Stat(finalPath); err == nil {
		return nil
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		if _, statErr := os.Stat(finalPath); statErr == nil {
			return nil
		}
		return err
	}
	return os.Chmod(finalPath, 0o444)
}

// Close holds no open handles and does nothing; it does not remove any
// objects or the incoming temp directory.
func (s *Store) Close() error {
	return nil
}
