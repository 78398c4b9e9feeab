// SPDX-License-Identifier: Apache-2.0

package query

import (
	"sort"
	"strconv"
	"strings"

	"github.com/dogmahq/dogma/dogmaerr"
)

// Evaluate walks root through the ordered list of structured-path
// expressions exprs (spec.md §4.F: "$ @ . [] .. * [start:end:step] [,]
// ?(expr) (expr)"), each narrowing the current node set. No JSONPath
// library ships in any example go.mod (see DESIGN.md), so this is a
// from-scratch evaluator scoped to exactly the operator set the spec lists
// — not a general-purpose JSONPath implementation.
//
// The final node set collapses to its single element when there is exactly
// one, and is returned as a []any otherwise, matching spec.md §3's "selects
// either a single node or an array of nodes".
func Evaluate(root any, exprs []string) (any, error) {
	nodes := []any{root}
	for _, expr := range exprs {
		next, err := applyStep(root, nodes, strings.TrimSpace(expr))
		if err != nil {
			return nil, err
		}
		nodes = next
	}
	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return nodes, nil
}

func applyStep(root any, nodes []any, expr string) ([]any, error) {
	switch {
	case expr == "":
		return nodes, nil
	case expr == "$":
		return []any{root}, nil
	case expr == "@":
		return nodes, nil
	case expr == "*":
		return wildcardChildren(nodes), nil
	case expr == "..":
		return recursiveDescent(nodes), nil
	case strings.HasPrefix(expr, ".."):
		// "..name" — recursive descent then filter by member name.
		return memberAccess(recursiveDescent(nodes), expr[2:])
	case strings.HasPrefix(expr, "."):
		return memberAccess(nodes, expr[1:])
	case strings.HasPrefix(expr, "?(") && strings.HasSuffix(expr, ")"):
		return filterChildren(root, nodes, expr[2:len(expr)-1])
	case strings.HasPrefix(expr, "(") && strings.HasSuffix(expr, ")"):
		return scriptIndex(root, nodes, expr[1:len(expr)-1])
	case strings.HasPrefix(expr, "[") && strings.HasSuffix(expr, "]"):
		return bracketAccess(nodes, expr[1:len(expr)-1])
	default:
		return nil, dogmaerr.New(dogmaerr.QueryExecution, "unsupported structured-path expression %q", expr)
	}
}

func memberAccess(nodes []any, name string) ([]any, error) {
	var out []any
	for _, n := range nodes {
		m, ok := n.(map[string]any)
		if !ok {
			continue
		}
		if v, ok := m[name]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// wildcardChildren implements "*" and the bare "[]" iterate-everything form:
// every value of an object (in sorted key order, for determinism) or every
// element of an array.
func wildcardChildren(nodes []any) []any {
	var out []any
	for _, n := range nodes {
		switch v := n.(type) {
		case map[string]any:
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				out = append(out, v[k])
			}
		case []any:
			out = append(out, v...)
		}
	}
	return out
}

// recursiveDescent collects every node reachable from nodes, including the
// nodes themselves, depth-first.
func recursiveDescent(nodes []any) []any {
	var out []any
	var walk func(n any)
	walk = func(n any) {
		out = append(out, n)
		switch v := n.(type) {
		case map[string]any:
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				walk(v[k])
			}
		case []any:
			for _, e := range v {
				walk(e)
			}
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return out
}

// bracketAccess handles every "[...]" form except script/filter expressions
// (handled upstream before the generic bracket fallback applies): bare "[]"
// (iterate), a slice "[start:end:step]", a comma union of indices or quoted
// keys "[,]", or a single index/key.
func bracketAccess(nodes []any, inner string) ([]any, error) {
	inner = strings.TrimSpace(inner)
	if inner == "" || inner == "*" {
		return wildcardChildren(nodes), nil
	}
	if strings.Contains(inner, ":") {
		return sliceAccess(nodes, inner)
	}
	if strings.Contains(inner, ",") {
		return unionAccess(nodes, splitTopLevelComma(inner))
	}
	return unionAccess(nodes, []string{inner})
}

func splitTopLevelComma(s string) []string {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func unionAccess(nodes []any, tokens []string) ([]any, error) {
	var out []any
	for _, n := range nodes {
		for _, tok := range tokens {
			if key, ok := unquote(tok); ok {
				if m, ok := n.(map[string]any); ok {
					if v, ok := m[key]; ok {
						out = append(out, v)
					}
				}
				continue
			}
			idx, err := strconv.Atoi(tok)
			if err != nil {
				return nil, dogmaerr.New(dogmaerr.QueryExecution, "malformed index/key %q", tok)
			}
			if arr, ok := n.([]any); ok {
				if i := resolveIndex(idx, len(arr)); i >= 0 && i < len(arr) {
					out = append(out, arr[i])
				}
			}
		}
	}
	return out, nil
}

func sliceAccess(nodes []any, spec string) ([]any, error) {
	fields := strings.Split(spec, ":")
	if len(fields) > 3 {
		return nil, dogmaerr.New(dogmaerr.QueryExecution, "malformed slice %q", spec)
	}
	parse := func(s string) (int, bool, error) {
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, false, nil
		}
		n, err := strconv.Atoi(s)
		return n, true, err
	}
	startRaw, hasStart, err := parse(fields[0])
	if err != nil {
		return nil, dogmaerr.New(dogmaerr.QueryExecution, "malformed slice start %q", spec)
	}
	var endRaw int
	var hasEnd bool
	if len(fields) > 1 {
		endRaw, hasEnd, err = parse(fields[1])
		if err != nil {
			return nil, dogmaerr.New(dogmaerr.QueryExecution, "malformed slice end %q", spec)
		}
	}
	step := 1
	if len(fields) > 2 {
		s, has, err := parse(fields[2])
		if err != nil {
			return nil, dogmaerr.New(dogmaerr.QueryExecution, "malformed slice step %q", spec)
		}
		if has {
			if s == 0 {
				return nil, dogmaerr.New(dogmaerr.QueryExecution, "slice step must not be 0")
			}
			step = s
		}
	}

	var out []any
	for _, n := range nodes {
		arr, ok := n.([]any)
		if !ok {
			continue
		}
		length := len(arr)
		start := 0
		end := length
		if step < 0 {
			start, end = length-1, -1
		}
		if hasStart {
			start = resolveIndex(startRaw, length)
		}
		if hasEnd {
			end = resolveIndex(endRaw, length)
		}
		if step > 0 {
			for i := start; i < end && i < length; i++ {
				if i >= 0 {
					out = append(out, arr[i])
				}
			}
		} else {
			for i := start; i > end && i >= 0; i += step {
				if i < length {
					out = append(out, arr[i])
				}
			}
		}
	}
	return out, nil
}

// resolveIndex turns a (possibly negative, Python-slice-style) index into a
// 0-based offset into a sequence of the given length.
func resolveIndex(i, length int) int {
	if i < 0 {
		return length + i
	}
	return i
}

func unquote(tok string) (string, bool) {
	if len(tok) >= 2 {
		if (tok[0] == '\'' && tok[len(tok)-1] == '\'') || (tok[0] == '"' && tok[len(tok)-1] == '"') {
			return tok[1 : len(tok)-1], true
		}
	}
	return "", false
}

// filterChildren implements "?(expr)": among the children of each current
// node (object values or array elements), keep those for which expr
// evaluates true with "@" bound to the candidate child.
func filterChildren(root any, nodes []any, expr string) ([]any, error) {
	var out []any
	for _, n := range nodes {
		children := wildcardChildren([]any{n})
		for _, child := range children {
			ok, err := evalPredicate(root, child, expr)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, child)
			}
		}
	}
	return out, nil
}

// scriptIndex implements "(expr)": expr computes a single numeric index from
// "@" (the current node) and that index is applied to each array node
// (negative values count from the end); object and scalar nodes yield
// nothing. Its principal use is a tail expression like "(@.length-1)"
// selecting an array's last element.
func scriptIndex(root any, nodes []any, expr string) ([]any, error) {
	var out []any
	for _, n := range nodes {
		val, err := evalScript(n, expr)
		if err != nil {
			return nil, err
		}
		switch v := n.(type) {
		case []any:
			idx := resolveIndex(int(val), len(v))
			if idx >= 0 && idx < len(v) {
				out = append(out, v[idx])
			}
		}
	}
	return out, nil
}
