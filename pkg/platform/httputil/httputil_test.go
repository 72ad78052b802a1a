package httputil

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "claimstack/pkg/domain-errors"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestWriteErrorDomainError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, dErrors.New(dErrors.CodeInvalidTransition, "DRAFT -> SETTLED is not a legal transition"))

	assert.Equal(t, 422, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, 422, body.Error.StatusCode)
	assert.Equal(t, "INVALID_TRANSITION", body.Error.Code)
	assert.Equal(t, "DRAFT -> SETTLED is not a legal transition", body.Error.Message)
}

func TestWriteErrorInternalOmitsCause(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, dErrors.Wrap(errors.New("pq: connection refused"), dErrors.CodeInternal, "failed to load claim"))

	assert.Equal(t, 500, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
	assert.NotContains(t, body.Error.Message, "connection refused")
	assert.NotContains(t, body.Error.Message, "failed to load claim")
}

func TestWriteErrorResourceCode(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, dErrors.New(dErrors.NotFound("claim"), "claim not found"))

	assert.Equal(t, 404, w.Code)
	assert.Equal(t, "CLAIM_NOT_FOUND", decodeError(t, w).Error.Code)
}

func TestNewMeta(t *testing.T) {
	cases := []struct {
		name       string
		page       int
		limit      int
		totalCount int
		totalPages int
	}{
		{"exact division", 1, 10, 40, 4},
		{"remainder rounds up", 2, 10, 41, 5},
		{"empty result", 1, 20, 0, 0},
		{"single partial page", 1, 25, 7, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			meta := NewMeta(tc.page, tc.limit, tc.totalCount)
			assert.Equal(t, tc.totalPages, meta.TotalPages)
			assert.Equal(t, tc.totalCount, meta.TotalCount)
			assert.Equal(t, tc.page, meta.Page)
			assert.Equal(t, tc.limit, meta.Limit)
		})
	}
}
