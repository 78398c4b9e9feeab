// SPDX-License-Identifier: Apache-2.0

package dogmaerr_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dogmahq/dogma/dogmaerr"
)

func TestHTTPStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, dogmaerr.RepositoryNotFoundErr("p", "r").HTTPStatus())
	assert.Equal(t, http.StatusConflict, dogmaerr.ChangeConflictErr("base mismatch").HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, dogmaerr.StorageExceptionErr(errors.New("disk full"), "write failed").HTTPStatus())
}

func TestIsAndKindOf(t *testing.T) {
	err := dogmaerr.EntryNotFoundErr("/a.json")
	assert.True(t, dogmaerr.Is(err, dogmaerr.EntryNotFound))
	assert.False(t, dogmaerr.Is(err, dogmaerr.ChangeConflict))
	assert.Equal(t, dogmaerr.EntryNotFound, dogmaerr.KindOf(err))
}

func TestKindOfUnknownErrorIsStorageException(t *testing.T) {
	assert.Equal(t, dogmaerr.StorageException, dogmaerr.KindOf(errors.New("boom")))
}

func TestWithHTTPStatusOverride(t *testing.T) {
	err := dogmaerr.ApiRequestTimeoutErr().WithHTTPStatus(http.StatusGatewayTimeout)
	assert.Equal(t, http.StatusGatewayTimeout, err.HTTPStatus())
}

func TestAsStorageExceptionPreservesExistingKind(t *testing.T) {
	orig := dogmaerr.RevisionNotFoundErr(5)
	assert.Same(t, orig, dogmaerr.AsStorageException(orig))
}

func TestCauseIsLoggableNotSerialized(t *testing.T) {
	cause := errors.New("kms unreachable")
	err := dogmaerr.Wrap(dogmaerr.StorageException, cause, "unwrap failed")
	assert.ErrorIs(t, err, cause)
	assert.NotContains(t, err.Message, "kms unreachable")
}
