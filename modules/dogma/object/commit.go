// SPDX-License-Identifier: Apache-2.0

package object

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"github.com/dogmahq/dogma/modules/plumbing"
)

// Markup is the rendering hint for a commit's Detail field (spec.md §3).
type Markup uint8

const (
	UnknownMarkup  Markup = 0
	PlaintextMarkup Markup = 1
	MarkdownMarkup Markup = 2
)

func (m Markup) String() string {
	switch m {
	case PlaintextMarkup:
		return "PLAINTEXT"
	case MarkdownMarkup:
		return "MARKDOWN"
	default:
		return "UNKNOWN"
	}
}

func MarkupFromString(s string) Markup {
	switch s {
	case "PLAINTEXT":
		return PlaintextMarkup
	case "MARKDOWN":
		return MarkdownMarkup
	default:
		return UnknownMarkup
	}
}

// Author identifies who authored a commit. Per spec.md §3, author
// comparison uses e-mail only.
type Author struct {
	Name  string
	Email string
}

func (a Author) Equal(other Author) bool {
	return a.Email == other.Email
}

// Commit is the object shape recording one revision's metadata (spec.md §3,
// §4.A). Parent is plumbing.ZeroHash for the repository's initial commit.
type Commit struct {
	Revision plumbing.Revision
	Author   Author
	PushedAt time.Time // truncated to whole seconds
	Summary  string
	Detail   string
	Markup   Markup
	Tree     plumbing.Hash
	Parent   plumbing.Hash
}

func (c *Commit) HasParent() bool {
	return !c.Parent.IsZero()
}

func (c *Commit) Encode(w io.Writer) error {
	if _, err := w.Write(commitMagic[:]); err != nil {
		return err
	}
	var fixed [13]byte
	binary.BigEndian.PutUint32(fixed[0:4], uint32(c.Revision))
	binary.BigEndian.PutUint64(fixed[4:12], uint64(c.PushedAt.Truncate(time.Second).Unix()))
	fixed[12] = byte(c.Markup)
	if _, err := w.Write(fixed[:]); err != nil {
		return err
	}
	if _, err := w.Write(c.Tree[:]); err != nil {
		return err
	}
	if _, err := w.Write(c.Parent[:]); err != nil {
		return err
	}
	var lenBuf [binary.MaxVarintLen64]byte
	for _, s := range []string{c.Author.Name, c.Author.Email, c.Summary, c.Detail} {
		n := binary.PutUvarint(lenBuf[:], uint64(len(s)))
		if _, err := w.Write(lenBuf[:n]); err != nil {
			return err
		}
		if _, err := io.WriteString(w, s); err != nil {
			return err
		}
	}
	return nil
}

func (c *Commit) Decode(data []byte) error {
	if len(data) < 4 || !bytes.Equal(data[:4], commitMagic[:]) {
		return ErrUnsupportedObject
	}
	r := bytes.NewReader(data[4:])
	var fixed [13]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return err
	}
	c.Revision = plumbing.Revision(binary.BigEndian.Uint32(fixed[0:4]))
	c.PushedAt = time.Unix(int64(binary.BigEndian.Uint64(fixed[4:12])), 0).UTC()
	c.Markup = Markup(fixed[12])
	if _, err := io.ReadFull(r, c.Tree[:]); err != nil {
		return err
	}
	if _, err := io.ReadFull(r, c.Parent[:]); err != nil {
		return err
	}
	strs := make([]string, 4)
	for i := range strs {
		n, err := binary.ReadUvarint(r)
		if err != nil {
			return err
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return err
		}
		strs[i] = string(buf)
	}
	c.Author = Author{Name: strs[0], Email: strs[1]}
	c.Summary = strs[2]
	c.Detail = strs[3]
	return nil
}
