// SPDX-License-Identifier: Apache-2.0

package commit

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/dogmahq/dogma/dogmaerr"
)

// jsonPatchOp is one RFC-6902 operation. No third-party JSON-patch library
// appears anywhere in the example corpus (checked); the operation set is
// small enough to implement directly against encoding/json's generic
// any-tree decoding, the same style the teacher uses for its own bespoke
// object encodings.
type jsonPatchOp struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	From  string          `json:"from"`
	Value json.RawMessage `json:"value"`
}

// applyJSONPatch applies patch (a JSON array of RFC-6902 operations) to doc,
// returning the resulting document. Every "test" operation must hold or the
// whole patch is rejected (spec.md §4.D: "JSON patches must pass every test
// op; otherwise ChangeConflict").
func applyJSONPatch(doc json.RawMessage, patch json.RawMessage) (json.RawMessage, error) {
	var ops []jsonPatchOp
	if err := json.Unmarshal(patch, &ops); err != nil {
		return nil, dogmaerr.ChangeConflictErr("invalid JSON patch: %v", err)
	}

	var root any
	if err := json.Unmarshal(doc, &root); err != nil {
		return nil, dogmaerr.ChangeConflictErr("invalid JSON document: %v", err)
	}

	for _, op := range ops {
		var err error
		switch op.Op {
		case "test":
			err = jsonPatchTest(root, op)
		case "add":
			root, err = jsonPointerSet(root, op.Path, decodeValue(op.Value), true)
		case "replace":
			root, err = jsonPointerSet(root, op.Path, decodeValue(op.Value), false)
		case "remove":
			root, err = jsonPointerRemove(root, op.Path)
		case "move":
			var v any
			v, root, err = jsonPointerExtract(root, op.From)
			if err == nil {
				root, err = jsonPointerSet(root, op.Path, v, true)
			}
		case "copy":
			var v any
			v, err = jsonPointerGet(root, op.From)
			if err == nil {
				root, err = jsonPointerSet(root, op.Path, v, true)
			}
		default:
			err = dogmaerr.ChangeConflictErr("unsupported JSON patch op %q", op.Op)
		}
		if err != nil {
			return nil, err
		}
	}

	out, err := json.Marshal(root)
	if err != nil {
		return nil, dogmaerr.ChangeConflictErr("re-encode patched document: %v", err)
	}
	return out, nil
}

func decodeValue(raw json.RawMessage) any {
	var v any
	_ = json.Unmarshal(raw, &v)
	return v
}

func jsonPatchTest(root any, op jsonPatchOp) error {
	actual, err := jsonPointerGet(root, op.Path)
	if err != nil {
		return dogmaerr.ChangeConflictErr("test op: %v", err)
	}
	actualBytes, _ := json.Marshal(actual)
	expectedBytes, _ := json.Marshal(decodeValue(op.Value))
	if string(actualBytes) != string(expectedBytes) {
		return dogmaerr.ChangeConflictErr("test op failed at %q: %s != %s", op.Path, actualBytes, expectedBytes)
	}
	return nil
}

// pointerTokens splits an RFC-6901 JSON pointer into unescaped reference
// tokens ("" for the pointer "" itself, meaning the whole document).
func pointerTokens(pointer string) ([]string, error) {
	if pointer == "" {
		return nil, nil
	}
	if !strings.HasPrefix(pointer, "/") {
		return nil, dogmaerr.ChangeConflictErr("json pointer %q must start with '/'", pointer)
	}
	raw := strings.Split(pointer[1:], "/")
	tokens := make([]string, len(raw))
	for i, t := range raw {
		t = strings.ReplaceAll(t, "~1", "/")
		t = strings.ReplaceAll(t, "~0", "~")
		tokens[i] = t
	}
	return tokens, nil
}

func jsonPointerGet(root any, pointer string) (any, error) {
	tokens, err := pointerTokens(pointer)
	if err != nil {
		return nil, err
	}
	cur := root
	for _, tok := range tokens {
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[tok]
			if !ok {
				return nil, dogmaerr.ChangeConflictErr("path %q not found", pointer)
			}
			cur = next
		case []any:
			idx, err := arrayIndex(tok, len(v))
			if err != nil {
				return nil, err
			}
			cur = v[idx]
		default:
			return nil, dogmaerr.ChangeConflictErr("path %q traverses a scalar", pointer)
		}
	}
	return cur, nil
}

func arrayIndex(tok string, length int) (int, error) {
	if tok == "-" {
		return length, nil
	}
	n, err := strconv.Atoi(tok)
	if err != nil || n < 0 {
		return 0, dogmaerr.ChangeConflictErr("invalid array index %q", tok)
	}
	return n, nil
}

// jsonPointerSet sets the value named by pointer, returning the (possibly
// new top-level) document. insert, when true, inserts into arrays/extends
// objects (RFC-6902 "add" semantics); when false it requires the target to
// already exist ("replace" semantics).
func jsonPointerSet(root any, pointer string, value any, insert bool) (any, error) {
	tokens, err := pointerTokens(pointer)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return value, nil
	}
	return setAt(root, tokens, value, insert, pointer)
}

func setAt(node any, tokens []string, value any, insert bool, pointer string) (any, error) {
	tok := tokens[0]
	if len(tokens) == 1 {
		switch v := node.(type) {
		case map[string]any:
			if !insert {
				if _, ok := v[tok]; !ok {
					return nil, dogmaerr.ChangeConflictErr("replace target %q not found", pointer)
				}
			}
			v[tok] = value
			return v, nil
		case []any:
			idx, err := arrayIndex(tok, len(v))
			if err != nil {
				return nil, err
			}
			if insert {
				if idx > len(v) {
					return nil, dogmaerr.ChangeConflictErr("array index out of range at %q", pointer)
				}
				out := make([]any, 0, len(v)+1)
				out = append(out, v[:idx]...)
				out = append(out, value)
				out = append(out, v[idx:]...)
				return out, nil
			}
			if idx >= len(v) {
				return nil, dogmaerr.ChangeConflictErr("replace target %q not found", pointer)
			}
			v[idx] = value
			return v, nil
		default:
			return nil, dogmaerr.ChangeConflictErr("path %q traverses a scalar", pointer)
		}
	}

	switch v := node.(type) {
	case map[string]any:
		child, ok := v[tok]
		if !ok {
			return nil, dogmaerr.ChangeConflictErr("path %q not found", pointer)
		}
		newChild, err := setAt(child, tokens[1:], value, insert, pointer)
		if err != nil {
			return nil, err
		}
		v[tok] = newChild
		return v, nil
	case []any:
		idx, err := arrayIndex(tok, len(v))
		if err != nil || idx >= len(v) {
			return nil, dogmaerr.ChangeConflictErr("path %q not found", pointer)
		}
		newChild, err := setAt(v[idx], tokens[1:], value, insert, pointer)
		if err != nil {
			return nil, err
		}
		v[idx] = newChild
		return v, nil
	default:
		return nil, dogmaerr.ChangeConflictErr("path %q traverses a scalar", pointer)
	}
}

func jsonPointerRemove(root any, pointer string) (any, error) {
	tokens, err := pointerTokens(pointer)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, dogmaerr.ChangeConflictErr("cannot remove the whole document")
	}
	return removeAt(root, tokens, pointer)
}

func removeAt(node any, tokens []string, pointer string) (any, error) {
	tok := tokens[0]
	if len(tokens) == 1 {
		switch v := node.(type) {
		case map[string]any:
			if _, ok := v[tok]; !ok {
				return nil, dogmaerr.ChangeConflictErr("remove target %q not found", pointer)
			}
			delete(v, tok)
			return v, nil
		case []any:
			idx, err := arrayIndex(tok, len(v))
			if err != nil || idx >= len(v) {
				return nil, dogmaerr.ChangeConflictErr("remove target %q not found", pointer)
			}
			return append(v[:idx], v[idx+1:]...), nil
		default:
			return nil, dogmaerr.ChangeConflictErr("path %q traverses a scalar", pointer)
		}
	}

	switch v := node.(type) {
	case map[string]any:
		child, ok := v[tok]
		if !ok {
			return nil, dogmaerr.ChangeConflictErr("path %q not found", pointer)
		}
		newChild, err := removeAt(child, tokens[1:], pointer)
		if err != nil {
			return nil, err
		}
		v[tok] = newChild
		return v, nil
	case []any:
		idx, err := arrayIndex(tok, len(v))
		if err != nil || idx >= len(v) {
			return nil, dogmaerr.ChangeConflictErr("path %q not found", pointer)
		}
		newChild, err := removeAt(v[idx], tokens[1:], pointer)
		if err != nil {
			return nil, err
		}
		v[idx] = newChild
		return v, nil
	default:
		return nil, dogmaerr.ChangeConflictErr("path %q traverses a scalar", pointer)
	}
}

// jsonPointerExtract gets the value at pointer and removes it in one step,
// for "move".
func jsonPointerExtract(root any, pointer string) (any, any, error) {
	value, err := jsonPointerGet(root, pointer)
	if err != nil {
		return nil, nil, err
	}
	newRoot, err := jsonPointerRemove(root, pointer)
	if err != nil {
		return nil, nil, err
	}
	return value, newRoot, nil
}
