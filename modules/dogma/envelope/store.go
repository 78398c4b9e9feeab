// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"os"

	"github.com/dogmahq/dogma/dogmaerr"
	"github.com/dogmahq/dogma/modules/plumbing"
)

// ObjectStore adapts a Repository to the plain object-store contract
// (backend.Store's Put/Get/Contains shape): the object's identity is still
// the SHA-1 of its plaintext canonical bytes (tree/commit objects reference
// children by that same hash, encrypted or not), but every byte actually
// persisted is AEAD-sealed under the repository's DEK, AAD-bound to the
// 20-byte object hash itself (spec.md §4.B: "for objects: the 20-byte
// object id").
type ObjectStore struct {
	repo *Repository
}

// NewObjectStore wraps repo as a content-addressed, transparently encrypting
// object store.
func NewObjectStore(repo *Repository) *ObjectStore {
	return &ObjectStore{repo: repo}
}

// Put seals data and stores it under the AAD-bound storage key derived from
// its plaintext hash, returning that plaintext hash as the object's
// identity — exactly what a tree or commit object references.
func (s *ObjectStore) Put(data []byte) (plumbing.Hash, error) {
	oid := plumbing.SumBytes(data)
	if _, err := s.repo.PutSealed(oid[:], data); err != nil {
		return plumbing.ZeroHash, err
	}
	return oid, nil
}

// Get decrypts and returns the plaintext bytes previously Put under oid.
func (s *ObjectStore) Get(oid plumbing.Hash) ([]byte, error) {
	ok, err := s.Contains(oid)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, plumbing.NoSuchObject(oid)
	}
	return s.repo.GetSealed(oid[:])
}

// Contains reports whether oid's ciphertext row is present, without
// decrypting it.
func (s *ObjectStore) Contains(oid plumbing.Hash) (bool, error) {
	storageKey, err := s.repo.StorageKey(oid[:])
	if err != nil {
		return false, err
	}
	_, err = os.Stat(s.repo.dataPath(storageKey))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, dogmaerr.Wrap(dogmaerr.StorageException, err, "stat sealed object")
}
