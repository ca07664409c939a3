package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/app"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/client"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/testutil"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/workflow"
)

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"register", "login", "logout", "whoami", "refresh", "password", "checkin", "checkout", "today", "history", "config"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestCheckInFlags(t *testing.T) {
	cmd := NewRootCommand()
	sub, _, err := cmd.Find([]string{"checkin"})
	require.NoError(t, err)
	for _, f := range []string{"method", "status", "lat", "lng", "photo", "no-location"} {
		assert.NotNil(t, sub.Flags().Lookup(f), f)
	}
	assert.Equal(t, "text", cmd.PersistentFlags().Lookup("format").DefValue)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig(filepath.Join(dir, "missing.yaml"), false)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"), true)
	assert.Error(t, err)

	path := filepath.Join(dir, "attendctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server: https://attendance.example
timeout: 3s
method: biometric
location:
  lat: -6.2
  lng: 106.8
`), 0o600))
	cfg, err = LoadConfig(path, true)
	require.NoError(t, err)
	assert.Equal(t, "https://attendance.example", cfg.Server)
	assert.Equal(t, Duration(3*time.Second), cfg.Timeout)
	assert.Equal(t, "biometric", cfg.Method)
	require.NotNil(t, cfg.Location)
	assert.Equal(t, -6.2, cfg.Location.Lat)
	assert.Equal(t, client.DefaultSessionPath(), cfg.SessionFile)

	require.NoError(t, os.WriteFile(path, []byte("method: telepathy\n"), 0o600))
	_, err = LoadConfig(path, true)
	assert.ErrorContains(t, err, "method")

	require.NoError(t, os.WriteFile(path, []byte("timeout: soon\n"), 0o600))
	_, err = LoadConfig(path, true)
	assert.ErrorContains(t, err, "timeout")
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(workflow.ErrAlreadyCheckedIn))
	assert.Equal(t, ExitUnavailable, GetExitCode(client.ErrNetwork))
	assert.Equal(t, ExitCommandError, GetExitCode(os.ErrNotExist))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "config", nil)))
}

type harness struct {
	t          *testing.T
	configPath string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewSQLite(t)
	logger := zaptest.NewLogger(t).Sugar()
	a, err := app.New(db, app.Config{
		Session:       session.Config{Secret: "0123456789abcdef0123456789abcdef", Issuer: "test", Expiry: time.Hour},
		Attendance:    attendance.Config{Location: time.UTC},
		AdminEmail:    "admin@example.com",
		AdminPassword: "admin-password",
	}, logger)
	require.NoError(t, err)
	require.NoError(t, a.EnsureSchema(context.Background()))
	require.NoError(t, a.SeedAdmin(context.Background()))
	srv := httptest.NewServer(router.RegisterRoutes(logger, a))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	path := filepath.Join(dir, "attendctl.yaml")
	cfg := "server: " + srv.URL + "\ntimeout: 5s\nsession_file: " + filepath.Join(dir, "session.json") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return &harness{t: t, configPath: path}
}

func (h *harness) run(stdin string, args ...string) (string, error) {
	h.t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", h.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestEmployeeDay(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("password1\n", "register", "--name", "Dewi", "--email", "dewi@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "registered")

	_, err = h.run("", "whoami")
	assert.ErrorIs(t, err, client.ErrNotSignedIn)

	_, err = h.run("", "login", "--email", "dewi@example.com", "--password", "password1")
	require.NoError(t, err)

	out, err = h.run("", "--format", "json", "whoami")
	require.NoError(t, err)
	var me map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &me))
	assert.Equal(t, "dewi@example.com", me["email"])

	out, err = h.run("", "checkin", "--lat=-6.2", "--lng=106.8")
	require.NoError(t, err)
	assert.Contains(t, out, "checked in")

	_, err = h.run("", "checkin", "--no-location")
	assert.ErrorIs(t, err, workflow.ErrAlreadyCheckedIn)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	out, err = h.run("", "checkout", "--no-location")
	require.NoError(t, err)
	assert.Contains(t, out, "checked out")

	out, err = h.run("", "--format", "json", "today")
	require.NoError(t, err)
	var today map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &today))
	assert.Equal(t, true, today["hasCheckedIn"])
	assert.Equal(t, true, today["hasCheckedOut"])

	out, err = h.run("", "--format", "json", "history")
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, true, rows[0]["isCheckout"])

	_, err = h.run("", "refresh")
	require.NoError(t, err)

	out, err = h.run("", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "signed out")
	_, err = h.run("", "logout")
	require.NoError(t, err)
	_, err = h.run("", "today")
	assert.ErrorIs(t, err, client.ErrNotSignedIn)
}

func TestBiometricWithoutPhoto(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("", "login", "--email", "admin@example.com", "--password", "admin-password")
	require.NoError(t, err)
	_, err = h.run("", "checkin", "--method", "biometric")
	assert.ErrorIs(t, err, workflow.ErrCaptureFailed)
}

func TestPasswordFromStdin(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("", "login", "--email", "admin@example.com", "--password", "admin-password")
	require.NoError(t, err)
	_, err = h.run("admin-password\nnew-admin-password\n", "password")
	require.NoError(t, err)

	_, err = h.run("", "logout")
	require.NoError(t, err)
	_, err = h.run("", "login", "--email", "admin@example.com", "--password", "admin-password")
	assert.Error(t, err)
	_, err = h.run("", "login", "--email", "admin@example.com", "--password", "new-admin-password")
	assert.NoError(t, err)
}

func TestConfigInit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "attendctl.yaml")
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", filepath.Join(dir, "seed.yaml"), "config", "show"})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seed.yaml"), []byte("server: http://example.test\n"), 0o600))
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "server: http://example.test")
	assert.Contains(t, out.String(), "timeout: 15s")

	cmd = NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", path, "--server", "http://other.test", "config", "init"})
	require.NoError(t, cmd.Execute())
	cfg, err := LoadConfig(path, true)
	require.NoError(t, err)
	assert.Equal(t, "http://other.test", cfg.Server)
}
