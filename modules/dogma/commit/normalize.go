// SPDX-License-Identifier: Apache-2.0

package commit

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/dogmahq/dogma/dogmaerr"
)

// normalizeJSON re-encodes content with stable (sorted) key ordering and a
// pretty-printed, LF-terminated form (spec.md §4.D step 4: "JSON upserts
// normalize content"). encoding/json already sorts object keys when
// marshaling a map, so round-tripping through json.Unmarshal/MarshalIndent
// is sufficient — no separate canonicalization library is needed.
func normalizeJSON(content json.RawMessage) ([]byte, error) {
	var v any
	if err := json.Unmarshal(content, &v); err != nil {
		return nil, dogmaerr.ChangeConflictErr("invalid JSON content: %v", err)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, dogmaerr.ChangeConflictErr("encode normalized JSON: %v", err)
	}
	// json.Encoder.Encode already appends a trailing "\n".
	return buf.Bytes(), nil
}

// normalizeText turns \r\n and lone \r line endings into \n and appends a
// trailing \n when the text does not already end with one; existing
// trailing newlines are kept as they are (spec.md §3 "Entry", §8 round-trip
// law).
func normalizeText(text string) []byte {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return []byte(text)
}
