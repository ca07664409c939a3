package geocode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/apperror"
)

func fakeOpenCage(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "-6.2,106.8", r.URL.Query().Get("q"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestReverse(t *testing.T) {
	srv := fakeOpenCage(t, http.StatusOK, `{"results":[{"formatted":"Jakarta, Indonesia"}],"status":{"code":200,"message":"OK"}}`)
	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL, Timeout: time.Second})
	name, err := c.Reverse(context.Background(), -6.2, 106.8)
	require.NoError(t, err)
	assert.Equal(t, "Jakarta, Indonesia", name)
}

func TestReverseUpstreamFailure(t *testing.T) {
	srv := fakeOpenCage(t, http.StatusPaymentRequired, `{"results":[],"status":{"code":402,"message":"quota exceeded"}}`)
	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})
	_, err := c.Reverse(context.Background(), -6.2, 106.8)
	require.Error(t, err)
	assert.Equal(t, apperror.KindExternal, apperror.KindOf(err))
}

func TestReverseNoResult(t *testing.T) {
	srv := fakeOpenCage(t, http.StatusOK, `{"results":[],"status":{"code":200,"message":"OK"}}`)
	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})
	_, err := c.Reverse(context.Background(), -6.2, 106.8)
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestReverseWithoutKey(t *testing.T) {
	c := NewClient(Config{})
	_, err := c.Reverse(context.Background(), 0, 0)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestHandler(t *testing.T) {
	srv := fakeOpenCage(t, http.StatusOK, `{"results":[{"formatted":"Jakarta, Indonesia"}],"status":{"code":200}}`)
	h := NewHandler(NewClient(Config{APIKey: "test-key", BaseURL: srv.URL}), zaptest.NewLogger(t).Sugar())

	w := httptest.NewRecorder()
	h.Reverse(w, httptest.NewRequest(http.MethodGet, "/api/v1/geocode/reverse?lat=-6.2&lng=106.8", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var out map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "Jakarta, Indonesia", out["name"])

	w = httptest.NewRecorder()
	h.Reverse(w, httptest.NewRequest(http.MethodGet, "/api/v1/geocode/reverse?lat=200&lng=1", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
