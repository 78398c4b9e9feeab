// SPDX-License-Identifier: Apache-2.0

// Package commit implements the commit pipeline of spec.md §4.D: applying a
// batch of path-scoped edits against the tree at a base revision and
// producing exactly one new revision.
package commit

import (
	"encoding/json"

	"github.com/dogmahq/dogma/dogmaerr"
)

// Op tags the six edit shapes of spec.md §3 "Change (edit)". The wire
// encoding keys each Change by a "type" discriminator field (spec.md §9:
// "Serializer/deserializer keys remain on the wire"), replacing what the
// source expresses as a class hierarchy.
type Op string

const (
	UpsertJSON    Op = "UPSERT_JSON"
	UpsertText    Op = "UPSERT_TEXT"
	Remove        Op = "REMOVE"
	Rename        Op = "RENAME"
	ApplyJSONPatch Op = "APPLY_JSON_PATCH"
	ApplyTextPatch Op = "APPLY_TEXT_PATCH"
)

// Change is one edit in a commit batch. Exactly the fields relevant to Op
// are populated; callers build one with the New* constructors rather than
// the struct literal. JSON and Text both encode to the wire's single
// "content" key — which one applies is decided by Op — so Change carries
// its own MarshalJSON/UnmarshalJSON rather than letting encoding/json's
// default struct tags collide on that key (spec.md §9's "tagged unions for
// Change/Query/MergeQuery").
type Change struct {
	Op   Op
	Path string

	// UpsertJSON / ApplyJSONPatch
	JSON json.RawMessage
	// UpsertText / ApplyTextPatch
	Text string
	// Rename
	NewPath string
}

type changeWire struct {
	Type    Op              `json:"type"`
	Path    string          `json:"path"`
	Content json.RawMessage `json:"content,omitempty"`
	NewPath string          `json:"newPath,omitempty"`
}

func (c Change) MarshalJSON() ([]byte, error) {
	w := changeWire{Type: c.Op, Path: c.Path, NewPath: c.NewPath}
	switch c.Op {
	case UpsertJSON, ApplyJSONPatch:
		w.Content = c.JSON
	case UpsertText, ApplyTextPatch:
		if c.Text != "" {
			encoded, err := json.Marshal(c.Text)
			if err != nil {
				return nil, err
			}
			w.Content = encoded
		}
	}
	return json.Marshal(w)
}

func (c *Change) UnmarshalJSON(data []byte) error {
	var w changeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	c.Op, c.Path, c.NewPath = w.Type, w.Path, w.NewPath
	c.JSON, c.Text = nil, ""
	switch c.Op {
	case UpsertJSON, ApplyJSONPatch:
		c.JSON = w.Content
	case UpsertText, ApplyTextPatch:
		if len(w.Content) > 0 {
			return json.Unmarshal(w.Content, &c.Text)
		}
	}
	return nil
}

func NewUpsertJSON(path string, content json.RawMessage) Change {
	return Change{Op: UpsertJSON, Path: path, JSON: content}
}

func NewUpsertText(path, text string) Change {
	return Change{Op: UpsertText, Path: path, Text: text}
}

func NewRemove(path string) Change {
	return Change{Op: Remove, Path: path}
}

func NewRename(path, newPath string) Change {
	return Change{Op: Rename, Path: path, NewPath: newPath}
}

func NewApplyJSONPatch(path string, patch json.RawMessage) Change {
	return Change{Op: ApplyJSONPatch, Path: path, JSON: patch}
}

func NewApplyTextPatch(path, unifiedDiff string) Change {
	return Change{Op: ApplyTextPatch, Path: path, Text: unifiedDiff}
}

// Validate checks the shape invariants a Change must hold before the
// pipeline attempts to apply it — independent of whatever tree state it
// will be applied against.
func (c Change) Validate() error {
	switch c.Op {
	case UpsertJSON, UpsertText, Remove, ApplyJSONPatch, ApplyTextPatch:
		if !isValidPath(c.Path) {
			return dogmaerr.ChangeConflictErr("invalid path %q", c.Path)
		}
	case Rename:
		if !isValidPath(c.Path) || !isValidPath(c.NewPath) {
			return dogmaerr.ChangeConflictErr("invalid rename path %q -> %q", c.Path, c.NewPath)
		}
	default:
		return dogmaerr.ChangeConflictErr("unknown change type %q", c.Op)
	}
	return nil
}
