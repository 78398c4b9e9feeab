// SPDX-License-Identifier: Apache-2.0

package query

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestEvaluateDotAccess(t *testing.T) {
	doc := decode(t, `{"a":{"b":{"c":42}}}`)
	v, err := Evaluate(doc, []string{".a", ".b", ".c"})
	require.NoError(t, err)
	assert.Equal(t, float64(42), v)
}

func TestEvaluateWildcardOverArray(t *testing.T) {
	doc := decode(t, `{"items":[1,2,3]}`)
	v, err := Evaluate(doc, []string{".items", "[*]"})
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), float64(2), float64(3)}, v)
}

func TestEvaluateSlice(t *testing.T) {
	doc := decode(t, `[0,1,2,3,4,5]`)
	v, err := Evaluate(doc, []string{"[1:4]"})
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), float64(2), float64(3)}, v)
}

func TestEvaluateSliceNegativeStep(t *testing.T) {
	doc := decode(t, `[0,1,2,3,4]`)
	v, err := Evaluate(doc, []string{"[4:0:-1]"})
	require.NoError(t, err)
	assert.Equal(t, []any{float64(4), float64(3), float64(2), float64(1)}, v)
}

func TestEvaluateUnionOfKeys(t *testing.T) {
	doc := decode(t, `{"a":1,"b":2,"c":3}`)
	v, err := Evaluate(doc, []string{"['a','c']"})
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), float64(3)}, v)
}

func TestEvaluateRecursiveDescent(t *testing.T) {
	doc := decode(t, `{"a":{"id":1},"b":{"c":{"id":2}}}`)
	v, err := Evaluate(doc, []string{"..", ".id"})
	require.NoError(t, err)
	ids, ok := v.([]any)
	require.True(t, ok)
	assert.ElementsMatch(t, []any{float64(1), float64(2)}, ids)
}

func TestEvaluateFilterExpression(t *testing.T) {
	doc := decode(t, `{"items":[{"name":"a","active":true},{"name":"b","active":false}]}`)
	v, err := Evaluate(doc, []string{".items", "?(@.active==true)"})
	require.NoError(t, err)
	item, ok := v.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "a", item["name"])
}

func TestEvaluateScriptLastElement(t *testing.T) {
	doc := decode(t, `{"items":["x","y","z"]}`)
	v, err := Evaluate(doc, []string{".items", "(@.length-1)"})
	require.NoError(t, err)
	assert.Equal(t, "z", v)
}

func TestEvaluateMissingMemberYieldsEmpty(t *testing.T) {
	doc := decode(t, `{"a":1}`)
	v, err := Evaluate(doc, []string{".missing"})
	require.NoError(t, err)
	assert.Equal(t, []any(nil), v)
}
