package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/app"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/testutil"
)

type api struct {
	t   *testing.T
	srv *httptest.Server
}

func newAPI(t *testing.T) *api {
	t.Helper()
	db := testutil.NewSQLite(t)
	logger := zaptest.NewLogger(t).Sugar()
	cfg := app.Config{
		Session:           session.Config{Secret: "0123456789abcdef0123456789abcdef", Issuer: "test", Expiry: time.Hour},
		Attendance:        attendance.Config{Location: time.UTC},
		CORSAllowedOrigin: "https://attendance.example",
		AdminEmail:        "admin@example.com",
		AdminPassword:     "admin-password",
	}
	a, err := app.New(db, cfg, logger)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, a.EnsureSchema(ctx))
	require.NoError(t, a.SeedAdmin(ctx))

	srv := httptest.NewServer(RegisterRoutes(logger, a))
	t.Cleanup(srv.Close)
	return &api{t: t, srv: srv}
}

func (a *api) do(method, path, token string, body any) (int, []byte) {
	a.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, rd)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.srv.Client().Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	return resp.StatusCode, out
}

func (a *api) login(email, password string) (string, map[string]any) {
	a.t.Helper()
	code, body := a.do(http.MethodPost, "/api/login", "", map[string]string{"email": email, "password": password})
	require.Equal(a.t, http.StatusOK, code, string(body))
	var out struct {
		Token string         `json:"token"`
		User  map[string]any `json:"user"`
	}
	require.NoError(a.t, json.Unmarshal(body, &out))
	return out.Token, out.User
}

func TestHealth(t *testing.T) {
	a := newAPI(t)
	code, body := a.do(http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", string(body))
}

func TestEmployeeFlow(t *testing.T) {
	a := newAPI(t)

	code, body := a.do(http.MethodPost, "/api/register", "", map[string]string{"email": "emp@example.com", "password": "password1"})
	require.Equal(t, http.StatusCreated, code, string(body))
	code, _ = a.do(http.MethodPost, "/api/register", "", map[string]string{"email": "EMP@example.com", "password": "password1"})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = a.do(http.MethodPost, "/api/login", "", map[string]string{"email": "emp@example.com", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, code)

	token, u := a.login("emp@example.com", "password1")
	userID := u["id"].(string)
	assert.Equal(t, "employee", u["role"])
	assert.NotContains(t, u, "passwordHash")

	code, body = a.do(http.MethodGet, "/api/validate-token", token, nil)
	require.Equal(t, http.StatusOK, code, string(body))

	submit := map[string]any{"method": "manual", "status": "present", "location": map[string]float64{"lat": 1, "lng": 2}, "isCheckout": false}
	code, body = a.do(http.MethodPost, "/api/v1/attendance", token, submit)
	require.Equal(t, http.StatusCreated, code, string(body))
	var created struct {
		Success bool           `json:"success"`
		Record  map[string]any `json:"record"`
	}
	require.NoError(t, json.Unmarshal(body, &created))
	assert.True(t, created.Success)
	assert.Equal(t, userID, created.Record["userId"])

	code, body = a.do(http.MethodPost, "/api/v1/attendance", token, submit)
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, string(body), "already_checked_in")

	code, body = a.do(http.MethodGet, "/api/v1/attendance/today/"+userID, token, nil)
	require.Equal(t, http.StatusOK, code)
	var today map[string]any
	require.NoError(t, json.Unmarshal(body, &today))
	assert.Equal(t, true, today["hasCheckedIn"])
	assert.Equal(t, false, today["hasCheckedOut"])

	code, _ = a.do(http.MethodGet, "/api/v1/stats/dashboard", token, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = a.do(http.MethodPost, "/api/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = a.do(http.MethodPost, "/api/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = a.do(http.MethodGet, "/api/validate-token", token, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestInvalidPayloadHasDetails(t *testing.T) {
	a := newAPI(t)
	token, _ := a.login("admin@example.com", "admin-password")
	code, body := a.do(http.MethodPost, "/api/v1/attendance", token, map[string]any{"method": "telepathy", "isCheckout": false})
	require.Equal(t, http.StatusBadRequest, code)
	var e map[string]any
	require.NoError(t, json.Unmarshal(body, &e))
	assert.Equal(t, "invalid_payload", e["code"])
	assert.NotEmpty(t, e["details"])
}

func TestAdminCreatesEmployeeWhoMustResetPassword(t *testing.T) {
	a := newAPI(t)
	adminToken, _ := a.login("admin@example.com", "admin-password")

	code, body := a.do(http.MethodPost, "/api/v1/users", adminToken, map[string]string{
		"name": "New Hire", "email": "hire@example.com", "password": "temporary1", "position": "Clerk",
	})
	require.Equal(t, http.StatusCreated, code, string(body))

	token, u := a.login("hire@example.com", "temporary1")
	assert.Equal(t, true, u["isFirstLogin"])

	checkIn := map[string]any{"method": "manual", "isCheckout": false}
	code, body = a.do(http.MethodPost, "/api/v1/attendance", token, checkIn)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Contains(t, string(body), "password_reset_required")

	code, body = a.do(http.MethodPut, "/api/v1/users/me/password", token, map[string]string{
		"currentPassword": "temporary1", "newPassword": "permanent1",
	})
	require.Equal(t, http.StatusOK, code, string(body))
	var out struct {
		Token string         `json:"token"`
		User  map[string]any `json:"user"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, false, out.User["isFirstLogin"])

	// the pre-change token is dead, the returned one works
	code, _ = a.do(http.MethodGet, "/api/v1/users/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = a.do(http.MethodGet, "/api/v1/users/me", out.Token, nil)
	assert.Equal(t, http.StatusOK, code)

	// status is derived from the seeded business hours
	code, body = a.do(http.MethodPost, "/api/v1/attendance", out.Token, checkIn)
	require.Equal(t, http.StatusCreated, code, string(body))

	code, body = a.do(http.MethodGet, "/api/v1/stats/dashboard", adminToken, nil)
	require.Equal(t, http.StatusOK, code, string(body))
	var stats map[string]any
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, float64(1), stats["check_ins"])

	code, body = a.do(http.MethodGet, "/api/v1/users", adminToken, nil)
	require.Equal(t, http.StatusOK, code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Len(t, list, 2)
}

func TestEmployeeCannotActForOthers(t *testing.T) {
	a := newAPI(t)
	adminToken, admin := a.login("admin@example.com", "admin-password")
	_, _ = a.do(http.MethodPost, "/api/register", "", map[string]string{"email": "x@example.com", "password": "password1"})
	token, _ := a.login("x@example.com", "password1")

	code, _ := a.do(http.MethodGet, "/api/v1/attendance/today/"+admin["id"].(string), token, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = a.do(http.MethodPost, "/api/v1/attendance", token, map[string]any{"userId": admin["id"], "method": "manual", "isCheckout": false})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = a.do(http.MethodGet, "/api/v1/stats/dashboard", adminToken, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestHistoryRejectsBadPaging(t *testing.T) {
	a := newAPI(t)
	token, _ := a.login("admin@example.com", "admin-password")

	for _, q := range []string{"limit=ten", "offset=-x", "limit=1.5"} {
		code, body := a.do(http.MethodGet, "/api/v1/attendance?"+q, token, nil)
		assert.Equal(t, http.StatusBadRequest, code, q)
		assert.Contains(t, string(body), "invalid_input", q)
	}
	code, _ := a.do(http.MethodGet, "/api/v1/attendance?limit=5&offset=0", token, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestBusinessHoursOptimisticLock(t *testing.T) {
	a := newAPI(t)
	adminToken, _ := a.login("admin@example.com", "admin-password")
	update := map[string]any{"checkInStart": "08:00", "checkOutEnd": "16:00", "lateGraceMinutes": 10, "version": 1}

	code, body := a.do(http.MethodPut, "/api/v1/business-hours", adminToken, update)
	require.Equal(t, http.StatusOK, code, string(body))
	code, _ = a.do(http.MethodPut, "/api/v1/business-hours", adminToken, update)
	assert.Equal(t, http.StatusConflict, code)

	code, body = a.do(http.MethodGet, "/api/v1/business-hours", adminToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), `"checkInStart":"08:00"`)
}

func TestRefreshToken(t *testing.T) {
	a := newAPI(t)
	token, _ := a.login("admin@example.com", "admin-password")
	code, body := a.do(http.MethodPost, "/api/refresh-token", token, nil)
	require.Equal(t, http.StatusOK, code, string(body))
	var out map[string]string
	require.NoError(t, json.Unmarshal(body, &out))
	assert.NotEmpty(t, out["token"])

	code, _ = a.do(http.MethodPost, "/api/refresh-token", token, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestCORSPreflight(t *testing.T) {
	a := newAPI(t)
	req, err := http.NewRequest(http.MethodOptions, a.srv.URL+"/api/login", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://attendance.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := a.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://attendance.example", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeadersMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
}
