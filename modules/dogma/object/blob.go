// SPDX-License-Identifier: Apache-2.0

package object

import (
	"bytes"
	"io"
)

// Blob is the object shape for raw file bytes (spec.md §4.A). Its canonical
// encoding is the magic header followed by the content verbatim — a blob's
// hash therefore depends only on its bytes, not on how upstream normalized
// them (callers normalize JSON/text content before building a Blob).
type Blob struct {
	Content []byte
}

func NewBlob(content []byte) *Blob {
	return &Blob{Content: content}
}

func (b *Blob) Encode(w io.Writer) error {
	if _, err := w.Write(blobMagic[:]); err != nil {
		return err
	}
	_, err := w.Write(b.Content)
	return err
}

func (b *Blob) Decode(data []byte) error {
	if len(data) < 4 || !bytes.Equal(data[:4], blobMagic[:]) {
		return ErrUnsupportedObject
	}
	b.Content = bytes.Clone(data[4:])
	return nil
}
