// SPDX-License-Identifier: Apache-2.0

package object

import (
	"github.com/dogmahq/dogma/modules/plumbing"
)

// Store is the minimal content-addressed contract every object-store
// implementation satisfies, whether it is plaintext (backend.Store /
// backend.RollingStore) or wrapped by the encryption layer
// (envelope.ObjectStore) — component D (the commit pipeline) is written
// against this interface only and never cares which is behind it.
type Store interface {
	Put(data []byte) (plumbing.Hash, error)
	Get(hash plumbing.Hash) ([]byte, error)
	Contains(hash plumbing.Hash) (bool, error)
}

// PutEncoded canonically encodes e, stores it in store, and returns its
// hash (equal to Hash(e)).
func PutEncoded(store Store, e Encoder) (plumbing.Hash, error) {
	data, _, err := Encode(e)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return store.Put(data)
}

// GetBlob reads and decodes the Blob at hash.
func GetBlob(store Store, hash plumbing.Hash) (*Blob, error) {
	data, err := store.Get(hash)
	if err != nil {
		return nil, err
	}
	b := &Blob{}
	if err := b.Decode(data); err != nil {
		return nil, err
	}
	return b, nil
}

// GetTree reads and decodes the Tree at hash.
func GetTree(store Store, hash plumbing.Hash) (*Tree, error) {
	data, err := store.Get(hash)
	if err != nil {
		return nil, err
	}
	t := &Tree{}
	if err := t.Decode(data); err != nil {
		return nil, err
	}
	return t, nil
}

// GetCommit reads and decodes the Commit at hash.
func GetCommit(store Store, hash plumbing.Hash) (*Commit, error) {
	data, err := store.Get(hash)
	if err != nil {
		return nil, err
	}
	c := &Commit{}
	if err := c.Decode(data); err != nil {
		return nil, err
	}
	return c, nil
}
