// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/dogmahq/dogma/dogmaerr"
)

// errorBody is spec.md §7's wire shape: {"exception":"<kind>","message":"<text>"}.
type errorBody struct {
	Exception string `json:"exception"`
	Message   string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.Errorf("dogma: encode response: %v", err)
	}
}

// writeError maps any error to spec.md §7's HTTP status table, wrapping a
// non-dogmaerr error as StorageException first so every response carries a
// known exception kind.
func writeError(w http.ResponseWriter, err error) {
	de := dogmaerr.AsStorageException(err)
	writeJSON(w, de.HTTPStatus(), errorBody{Exception: de.Kind.String(), Message: de.Message})
}
