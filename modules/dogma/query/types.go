// SPDX-License-Identifier: Apache-2.0

// Package query implements the query engine of spec.md §4.F: reading
// entries and histories out of the committed tree sequence, structured-path
// projection, cross-file merges, and diff computation between two
// revisions (or, for previewDiffs, between a revision and a hypothetical
// edit batch that is never committed).
package query

import "github.com/dogmahq/dogma/modules/plumbing"

// Entry is a single file (or directory) as it exists at one revision
// (spec.md §3 "Entry"). For Directory entries JSON and Text are both zero.
type Entry struct {
	Revision plumbing.Revision
	Path     string
	Type     plumbing.EntryType
	JSON     any    // populated when Type == plumbing.JSON
	Text     string // populated when Type == plumbing.Text
}

// Query selects either a file verbatim (Identity) or a structured
// sub-document of a JSON file (StructuredPath), per spec.md §3 "Query".
type Query struct {
	Path  string
	Exprs []string // non-empty only for a structured-path query
}

// Identity builds a Query returning path's entry unprojected.
func Identity(path string) Query {
	return Query{Path: path}
}

// StructuredPath builds a Query projecting path's JSON document through the
// ordered list of path expressions exprs (spec.md §4.F's JSONPath subset).
func StructuredPath(path string, exprs ...string) Query {
	return Query{Path: path, Exprs: exprs}
}

// IsStructured reports whether q carries a structured-path projection.
func (q Query) IsStructured() bool {
	return len(q.Exprs) > 0
}

// MergeSource is one input of a MergeQuery (spec.md §3 "Merge query").
type MergeSource struct {
	Path     string
	Optional bool
}

// MergeQuery composes several JSON sources with right-biased deep merge,
// then optionally projects the result through a structured-path chain.
type MergeQuery struct {
	Sources []MergeSource
	Exprs   []string
}

// MergedEntry is the result of a merge query: the composite document plus
// the list of source paths that actually contributed to it (an optional
// source that was absent is not listed).
type MergedEntry struct {
	Revision     plumbing.Revision
	Paths        []string
	Contributing []string
	JSON         any
}

// ChangeKind classifies one path's transition between two trees.
type ChangeKind string

const (
	Added    ChangeKind = "ADDED"
	Modified ChangeKind = "MODIFIED"
	Removed  ChangeKind = "REMOVED"
)

// Change is one path's transition between two trees (spec.md §4.F
// `diff`/`diffs`/`previewDiffs`). OldContent is nil for Added, NewContent is
// nil for Removed. UnifiedDiff is populated only for Text entries present on
// both sides.
type Change struct {
	Path        string
	Type        plumbing.EntryType
	Kind        ChangeKind
	OldContent  []byte
	NewContent  []byte
	UnifiedDiff string
}
