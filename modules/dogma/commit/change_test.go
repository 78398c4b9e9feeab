// SPDX-License-Identifier: Apache-2.0

package commit_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dogmahq/dogma/modules/dogma/commit"
)

func TestChangeJSONRoundTripUpsertJSON(t *testing.T) {
	in := commit.NewUpsertJSON("/a.json", json.RawMessage(`{"k":1}`))
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"UPSERT_JSON","path":"/a.json","content":{"k":1}}`, string(data))

	var out commit.Change
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in.Op, out.Op)
	assert.Equal(t, in.Path, out.Path)
	assert.JSONEq(t, string(in.JSON), string(out.JSON))
}

func TestChangeJSONRoundTripUpsertText(t *testing.T) {
	in := commit.NewUpsertText("/readme.md", "hello world")
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"UPSERT_TEXT","path":"/readme.md","content":"hello world"}`, string(data))

	var out commit.Change
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestChangeJSONRoundTripRename(t *testing.T) {
	in := commit.NewRename("/old.json", "/new.json")
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out commit.Change
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestChangeJSONRoundTripRemove(t *testing.T) {
	in := commit.NewRemove("/gone.json")
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out commit.Change
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}
