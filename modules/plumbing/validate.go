// SPDX-License-Identifier: Apache-2.0

package plumbing

import "strings"

// EntryType is the kind of a repository entry, inferred from its path
// suffix unless a change explicitly declares it (spec.md §3 "Entry type").
type EntryType int8

const (
	InvalidEntry EntryType = iota
	JSON
	Text
	Directory
)

func (t EntryType) String() string {
	switch t {
	case JSON:
		return "JSON"
	case Text:
		return "TEXT"
	case Directory:
		return "DIRECTORY"
	default:
		return "INVALID"
	}
}

// InferEntryType infers an entry's type from its path, per spec.md §3: a
// trailing "/" is a directory, a ".json"/".yaml"/".yml" suffix is JSON,
// anything else is plain text.
func InferEntryType(path string) EntryType {
	if strings.HasSuffix(path, "/") {
		return Directory
	}
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".json") || strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") {
		return JSON
	}
	return Text
}

// ValidatePath reports whether path is a well-formed repository path: it
// must begin with "/", use "/" as the only separator, and contain no empty,
// "." or ".." components.
func ValidatePath(path string) bool {
	if len(path) == 0 || path[0] != '/' {
		return false
	}
	body := path[1:]
	isDir := strings.HasSuffix(body, "/")
	if isDir {
		body = body[:len(body)-1]
	}
	if body == "" {
		// "/" on its own denotes the repository root directory.
		return isDir
	}
	for _, comp := range strings.Split(body, "/") {
		switch comp {
		case "", ".", "..":
			return false
		}
	}
	return true
}

// IsDirectoryPath reports whether path denotes a directory entry (trailing
// "/"), per spec.md §3 "Path".
func IsDirectoryPath(path string) bool {
	return strings.HasSuffix(path, "/")
}

// Segments splits a validated path into its non-empty components, e.g.
// "/a/b/c.json" -> ["a", "b", "c.json"] and "/" -> []. Callers must have
// already confirmed ValidatePath(path).
func Segments(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// JoinSegments is the inverse of Segments for a file path (no trailing "/").
func JoinSegments(segments []string) string {
	return "/" + strings.Join(segments, "/")
}

// ErrBadPath is returned when a caller-supplied path fails ValidatePath.
type ErrBadPath struct {
	Path string
}

func (err *ErrBadPath) Error() string {
	return "bad path: '" + err.Path + "'"
}

func IsErrBadPath(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*ErrBadPath)
	return ok
}
