// SPDX-License-Identifier: Apache-2.0

package commit

import (
	"strconv"
	"strings"

	"github.com/dogmahq/dogma/dogmaerr"
)

// textHunk is one "@@ -a,b +c,d @@" region of a unified diff: a run of
// context/removed/added lines. modules/diferenco only generates unified
// diffs (diferenco.Unified.String) and has no corresponding apply side, so
// applying one back is hand-rolled here against plain string lines — the
// same scope the teacher reserves for its own bespoke formats.
type textHunk struct {
	oldStart int
	lines    []textHunkLine
}

type textHunkLine struct {
	kind byte // ' ', '-', '+'
	text string
}

// parseUnifiedDiff parses the hunks of a unified diff, ignoring the
// "--- "/"+++ " file headers.
func parseUnifiedDiff(diff string) ([]textHunk, error) {
	lines := strings.Split(diff, "\n")
	var hunks []textHunk
	i := 0
	for i < len(lines) {
		line := lines[i]
		switch {
		case strings.HasPrefix(line, "--- ") || strings.HasPrefix(line, "+++ "):
			i++
		case strings.HasPrefix(line, "@@"):
			hunk, next, err := parseHunk(lines, i)
			if err != nil {
				return nil, err
			}
			hunks = append(hunks, hunk)
			i = next
		case line == "":
			i++
		default:
			return nil, dogmaerr.ChangeConflictErr("unexpected line in unified diff: %q", line)
		}
	}
	return hunks, nil
}

func parseHunk(lines []string, i int) (textHunk, int, error) {
	header := lines[i]
	oldStart, err := parseHunkOldStart(header)
	if err != nil {
		return textHunk{}, 0, err
	}
	hunk := textHunk{oldStart: oldStart}
	i++
	for i < len(lines) {
		line := lines[i]
		if line == "" || strings.HasPrefix(line, "@@") || strings.HasPrefix(line, "--- ") || strings.HasPrefix(line, "+++ ") {
			break
		}
		kind, text := line[0], line[1:]
		switch kind {
		case ' ', '-', '+':
			hunk.lines = append(hunk.lines, textHunkLine{kind: kind, text: text})
		default:
			return textHunk{}, 0, dogmaerr.ChangeConflictErr("malformed hunk line: %q", line)
		}
		i++
	}
	return hunk, i, nil
}

// parseHunkOldStart extracts "a" from a "@@ -a[,b] +c[,d] @@" header.
func parseHunkOldStart(header string) (int, error) {
	body := strings.TrimPrefix(header, "@@")
	fields := strings.Fields(body)
	if len(fields) < 1 || !strings.HasPrefix(fields[0], "-") {
		return 0, dogmaerr.ChangeConflictErr("malformed hunk header: %q", header)
	}
	oldSpec := strings.TrimPrefix(fields[0], "-")
	oldStartStr, _, _ := strings.Cut(oldSpec, ",")
	n, err := strconv.Atoi(oldStartStr)
	if err != nil {
		return 0, dogmaerr.ChangeConflictErr("malformed hunk range %q", fields[0])
	}
	return n, nil
}

// applyTextPatch applies a unified diff to content, failing if any hunk
// does not match cleanly (spec.md §4.D: "Text patches must apply without
// rejecting hunks").
func applyTextPatch(content string, diff string) (string, error) {
	hunks, err := parseUnifiedDiff(diff)
	if err != nil {
		return "", err
	}
	trailingNewline := strings.HasSuffix(content, "\n")
	src := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	if content == "" {
		src = nil
	}

	var out []string
	cursor := 0 // 0-based index into src already emitted
	for _, hunk := range hunks {
		start := hunk.oldStart - 1
		if hunk.oldStart == 0 {
			start = 0
		}
		if start < cursor || start > len(src) {
			return "", dogmaerr.ChangeConflictErr("hunk does not apply: out-of-order or out-of-range context")
		}
		out = append(out, src[cursor:start]...)
		cursor = start
		for _, l := range hunk.lines {
			switch l.kind {
			case ' ':
				if cursor >= len(src) || src[cursor] != l.text {
					return "", dogmaerr.ChangeConflictErr("hunk context mismatch at line %d", cursor+1)
				}
				out = append(out, l.text)
				cursor++
			case '-':
				if cursor >= len(src) || src[cursor] != l.text {
					return "", dogmaerr.ChangeConflictErr("hunk removal mismatch at line %d", cursor+1)
				}
				cursor++
			case '+':
				out = append(out, l.text)
			}
		}
	}
	out = append(out, src[cursor:]...)

	result := strings.Join(out, "\n")
	if trailingNewline || result != "" {
		result += "\n"
	}
	return result, nil
}
