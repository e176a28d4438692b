package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"statwise/internal/apperr"
)

func TestKindsAndStatusCodes(t *testing.T) {
	testCases := []struct {
		name   string
		err    error
		kind   apperr.Kind
		status int
		public string
	}{
		{"bad request", apperr.BadRequest("invalid bucket"), apperr.KindBadRequest, http.StatusBadRequest, "invalid bucket"},
		{"precondition", apperr.PreconditionFailed("range too large"), apperr.KindPreconditionFailed, http.StatusPreconditionFailed, "range too large"},
		{"unprocessable", apperr.Unprocessable("filters must be an array"), apperr.KindUnprocessable, http.StatusUnprocessableEntity, "filters must be an array"},
		{"internal", apperr.Internalf("query traffic", errors.New("code: 60, table missing")), apperr.KindInternal, http.StatusInternalServerError, apperr.InternalMessage},
		{"untyped", errors.New("boom"), apperr.KindInternal, http.StatusInternalServerError, apperr.InternalMessage},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.kind, apperr.KindOf(tc.err))
			assert.Equal(t, tc.status, apperr.StatusCode(tc.err))
			assert.Equal(t, tc.public, apperr.PublicMessage(tc.err))
		})
	}
}

func TestWrappedErrorsKeepKind(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("dashboard: %w", apperr.Internal(cause))

	assert.True(t, apperr.Is(err, apperr.KindInternal))
	assert.ErrorIs(t, err, cause)
	assert.NotContains(t, apperr.PublicMessage(err), "refused")
	assert.Equal(t, http.StatusOK, apperr.StatusCode(nil))
}
