// SPDX-License-Identifier: Apache-2.0

package query_test

import (
	"sync"

	"github.com/dogmahq/dogma/modules/plumbing"
)

// memStore is a trivial in-memory object.Store, mirroring the one used by
// the commit package's own tests, so query tests don't depend on
// filesystem timing either.
type memStore struct {
	mu   sync.Mutex
	data map[plumbing.Hash][]byte
}

func newMemStore() *memStore {
	return &memStore{data: make(map[plumbing.Hash][]byte)}
}

func (s *memStore) Put(data []byte) (plumbing.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hash := plumbing.SumBytes(data)
	cp := make([]byte, len(data))
	copy(cp, data)
	s.data[hash] = cp
	return hash, nil
}

func (s *memStore) Get(hash plumbing.Hash) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.data[hash]
	if !ok {
		return nil, plumbing.NoSuchObject(hash)
	}
	return data, nil
}

func (s *memStore) Contains(hash plumbing.Hash) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[hash]
	return ok, nil
}
