// SPDX-License-Identifier: Apache-2.0

package wildmatch

import "strings"

// PatternSetBuilder assembles a conjunction of path constraints — unlike the
// comma alternatives inside a single Pattern (which are OR'd), every
// constraint added to a builder must hold for a path to match. This backs
// queries like "JSON files under /foo/bar that also sit under some /ext/
// directory" (spec.md §4.E).
type PatternSetBuilder struct {
	parts []Matcher
}

// NewPatternSetBuilder returns an empty builder; Build on an empty builder
// yields a Matcher that matches every path.
func NewPatternSetBuilder() *PatternSetBuilder {
	return &PatternSetBuilder{}
}

// Add requires the compiled raw pattern to match.
func (b *PatternSetBuilder) Add(raw string) *PatternSetBuilder {
	b.parts = append(b.parts, Compile(raw))
	return b
}

// Extension requires the path to end in "."+ext, lowered to "/**/*.<ext>".
func (b *PatternSetBuilder) Extension(ext string) *PatternSetBuilder {
	ext = strings.TrimPrefix(ext, ".")
	return b.Add("/**/*." + ext)
}

// StartsWith requires the path to fall under dir, lowered to "<dir>/**".
// dir must be an absolute path, with or without a trailing "/".
func (b *PatternSetBuilder) StartsWith(dir string) *PatternSetBuilder {
	dir = strings.TrimSuffix(dir, "/")
	return b.Add(dir + "/**")
}

// Contains requires some path segment named name to appear anywhere in the
// path, lowered to "/**/<name>/**".
func (b *PatternSetBuilder) Contains(name string) *PatternSetBuilder {
	name = strings.Trim(name, "/")
	return b.Add("/**/" + name + "/**")
}

// Build returns a Matcher requiring every added constraint to match.
func (b *PatternSetBuilder) Build() Matcher {
	parts := make([]Matcher, len(b.parts))
	copy(parts, b.parts)
	return &andMatcher{parts: parts}
}

// andMatcher is the conjunction of several Matchers.
type andMatcher struct {
	parts []Matcher
}

func (m *andMatcher) Match(path string) bool {
	for _, p := range m.parts {
		if !p.Match(path) {
			return false
		}
	}
	return true
}

func (m *andMatcher) String() string {
	strs := make([]string, len(m.parts))
	for i, p := range m.parts {
		strs[i] = p.String()
	}
	return strings.Join(strs, " & ")
}
