// SPDX-License-Identifier: Apache-2.0

package plumbing

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"sort"
)

const (
	HashDigestSize = sha1.Size // 20-byte SHA-1 object hash, per the object store contract.
	HashHexSize    = HashDigestSize * 2
)

// ZeroHash is Hash with value zero.
var ZeroHash Hash

// Hash is the content address of a stored object: the SHA-1 digest of its
// canonical encoded byte form.
type Hash [HashDigestSize]byte

func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

func (h *Hash) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	hashBytes, _ := hex.DecodeString(s)
	copy(h[:], hashBytes)
	return nil
}

// MarshalText / UnmarshalText let a Hash be used directly as a TOML or map key.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	hashBytes, _ := hex.DecodeString(string(text))
	copy(h[:], hashBytes)
	return nil
}

// NewHash returns a new Hash from a hexadecimal hash representation.
func NewHash(s string) Hash {
	b, _ := hex.DecodeString(s)
	var h Hash
	copy(h[:], b)
	return h
}

func (h Hash) IsZero() bool {
	return h == ZeroHash
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// HashesSort sorts a slice of Hashes in increasing order.
func HashesSort(a []Hash) {
	sort.Sort(HashSlice(a))
}

// HashSlice attaches the methods of sort.Interface to []Hash, sorting in
// increasing order.
type HashSlice []Hash

func (p HashSlice) Len() int           { return len(p) }
func (p HashSlice) Less(i, j int) bool { return bytes.Compare(p[i][:], p[j][:]) < 0 }
func (p HashSlice) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }

// ValidateHashHex returns true if the given string is a valid hash.
func ValidateHashHex(s string) bool {
	if len(s) != HashHexSize {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

func NewHashEx(s string) (Hash, error) {
	if !ValidateHashHex(s) {
		return ZeroHash, fmt.Errorf("dogma: '%s' not a valid object hash", s)
	}
	return NewHash(s), nil
}

// IsLooseDir reports whether s looks like a two-hex-character shard
// directory name under the loose-object store root.
func IsLooseDir(s string) bool {
	if len(s) != 2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// Hasher incrementally computes an object Hash; it implements io.Writer so
// that an object's canonical encoder can hash while it serializes.
type Hasher struct {
	hash.Hash
}

func NewHasher() Hasher {
	return Hasher{Hash: sha1.New()}
}

func (h Hasher) Sum() (sum Hash) {
	copy(sum[:], h.Hash.Sum(nil))
	return
}

// SumBytes hashes an already-materialized byte slice in one call.
func SumBytes(b []byte) Hash {
	h := NewHasher()
	_, _ = h.Write(b)
	return h.Sum()
}
