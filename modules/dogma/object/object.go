// SPDX-License-Identifier: Apache-2.0

// Package object implements the three object shapes of the content-addressed
// store (spec.md §4.A): Blob, Tree and Commit. An object's Hash is the SHA-1
// digest of exactly the bytes its Encode method writes — encode once, hash
// the same bytes, store the same bytes.
package object

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dogmahq/dogma/modules/plumbing"
)

// ObjectType tags the three object shapes.
type ObjectType int8

const (
	InvalidObject ObjectType = 0
	BlobObject    ObjectType = 1
	TreeObject    ObjectType = 2
	CommitObject  ObjectType = 3
)

func (t ObjectType) String() string {
	switch t {
	case BlobObject:
		return "blob"
	case TreeObject:
		return "tree"
	case CommitObject:
		return "commit"
	default:
		return "invalid"
	}
}

func ObjectTypeFromString(s string) ObjectType {
	switch strings.ToLower(s) {
	case "blob":
		return BlobObject
	case "tree":
		return TreeObject
	case "commit":
		return CommitObject
	default:
		return InvalidObject
	}
}

func (t ObjectType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *ObjectType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*t = ObjectTypeFromString(s)
	return nil
}

// ErrUnsupportedObject is returned by Decode when the magic header does not
// match any known object shape.
var ErrUnsupportedObject = errors.New("dogma: unsupported object type")

var (
	blobMagic   = [4]byte{'D', 'B', 0x00, 0x01}
	treeMagic   = [4]byte{'D', 'T', 0x00, 0x01}
	commitMagic = [4]byte{'D', 'C', 0x00, 0x01}
)

// Encoder produces the canonical byte form of an object: the same bytes are
// written to the object store and hashed to name it.
type Encoder interface {
	Encode(w io.Writer) error
}

// Hash returns the content address of e: the SHA-1 digest of its canonical
// encoding.
func Hash(e Encoder) plumbing.Hash {
	h := plumbing.NewHasher()
	if err := e.Encode(h); err != nil {
		return plumbing.ZeroHash
	}
	return h.Sum()
}

// Encode serializes e and returns both its canonical bytes and its hash.
func Encode(e Encoder) ([]byte, plumbing.Hash, error) {
	var buf bytes.Buffer
	if err := e.Encode(&buf); err != nil {
		return nil, plumbing.ZeroHash, err
	}
	return buf.Bytes(), plumbing.SumBytes(buf.Bytes()), nil
}

// Decode parses the canonical byte form of an object, dispatching on its
// magic header.
func Decode(data []byte) (any, ObjectType, error) {
	if len(data) < 4 {
		return nil, InvalidObject, io.ErrUnexpectedEOF
	}
	var magic [4]byte
	copy(magic[:], data[:4])
	switch magic {
	case blobMagic:
		b := &Blob{}
		if err := b.Decode(data); err != nil {
			return nil, InvalidObject, err
		}
		return b, BlobObject, nil
	case treeMagic:
		t := &Tree{}
		if err := t.Decode(data); err != nil {
			return nil, InvalidObject, err
		}
		return t, TreeObject, nil
	case commitMagic:
		c := &Commit{}
		if err := c.Decode(data); err != nil {
			return nil, InvalidObject, err
		}
		return c, CommitObject, nil
	default:
		return nil, InvalidObject, fmt.Errorf("%w: magic %x", ErrUnsupportedObject, magic)
	}
}
