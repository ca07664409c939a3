package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/apperror"
)

func TestWriteErrorMapsKind(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	r := httptest.NewRequest(http.MethodGet, "/x", nil)

	conflict := apperror.New(apperror.KindConflict, "already_checked_in", "already checked in today")
	w := httptest.NewRecorder()
	WriteError(w, logger, r, conflict)
	assert.Equal(t, http.StatusConflict, w.Code)
	var body ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "already_checked_in", body.Code)

	w = httptest.NewRecorder()
	WriteError(w, logger, r, errors.New("pq: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "internal error", body.Error)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, BearerToken(r))
	r.Header.Set("Authorization", "Bearer abc.def")
	assert.Equal(t, "abc.def", BearerToken(r))
	r.Header.Set("Authorization", "bearer  xyz ")
	assert.Equal(t, "xyz", BearerToken(r))
	r.Header.Set("Authorization", "Basic Zm9v")
	assert.Empty(t, BearerToken(r))
}
