package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/app"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/client"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/imagehost"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/schema"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/testutil"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/workflow"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/apperror"
)

var pngPixel = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01, 0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4,
	0x89, 0x00, 0x00, 0x00, 0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49, 0x45, 0x4e, 0x44, 0xae,
	0x42, 0x60, 0x82,
}

type fixture struct {
	srv      *httptest.Server
	sessions *client.SessionManager
	store    client.FileStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	imgbb := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"status":200,"data":{"url":"https://i.example/face.png"}}`))
	}))
	t.Cleanup(imgbb.Close)

	db := testutil.NewSQLite(t)
	logger := zaptest.NewLogger(t).Sugar()
	a, err := app.New(db, app.Config{
		Session:       session.Config{Secret: "0123456789abcdef0123456789abcdef", Issuer: "test", Expiry: time.Hour},
		Attendance:    attendance.Config{Location: time.UTC},
		ImageHost:     imagehost.Config{APIKey: "k", BaseURL: imgbb.URL},
		AdminEmail:    "admin@example.com",
		AdminPassword: "admin-password",
	}, logger)
	require.NoError(t, err)
	require.NoError(t, a.EnsureSchema(context.Background()))
	require.NoError(t, a.SeedAdmin(context.Background()))

	srv := httptest.NewServer(router.RegisterRoutes(logger, a))
	t.Cleanup(srv.Close)

	store := client.FileStore{Path: filepath.Join(t.TempDir(), "attendctl", "session.json")}
	return &fixture{
		srv:      srv,
		store:    store,
		sessions: client.NewSessionManager(client.NewAPI(srv.URL, 5*time.Second), store, logger),
	}
}

func TestLoginPersistsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.sessions.Login(ctx, "admin@example.com", "admin-password")
	require.NoError(t, err)
	assert.Equal(t, "admin", s.User.Role)

	info, err := os.Stat(f.store.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// a fresh manager picks the session up from disk
	other := client.NewSessionManager(f.sessions.API(), f.store, nil)
	restored, err := other.Bootstrap(ctx)
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, s.Token, restored.Token)
	assert.Equal(t, "admin@example.com", restored.User.Email)
}

func TestBadLoginKeepsNothing(t *testing.T) {
	f := newFixture(t)
	_, err := f.sessions.Login(context.Background(), "admin@example.com", "nope-nope")
	assert.ErrorIs(t, err, user.ErrBadCredentials)
	assert.Equal(t, apperror.KindAuth, apperror.KindOf(err))
	assert.Nil(t, f.sessions.Current())
	_, err = os.Stat(f.store.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestBootstrapDropsRevokedToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, err := f.sessions.Login(ctx, "admin@example.com", "admin-password")
	require.NoError(t, err)
	require.NoError(t, f.sessions.API().Logout(ctx, s.Token))

	restored, err := client.NewSessionManager(f.sessions.API(), f.store, nil).Bootstrap(ctx)
	require.NoError(t, err)
	assert.Nil(t, restored)
	loaded, err := f.store.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestBootstrapOfflineKeepsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.sessions.Login(ctx, "admin@example.com", "admin-password")
	require.NoError(t, err)
	f.srv.Close()

	m := client.NewSessionManager(client.NewAPI(f.srv.URL, time.Second), f.store, nil)
	restored, err := m.Bootstrap(ctx)
	assert.ErrorIs(t, err, client.ErrNetwork)
	require.NotNil(t, restored)
	assert.NotNil(t, m.Current())
}

func TestRefreshFailsClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.sessions.Login(ctx, "admin@example.com", "admin-password")
	require.NoError(t, err)

	next, err := f.sessions.Refresh(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, next.Token)
	assert.Equal(t, first.User.ID, next.User.ID)

	// the old token was revoked by the refresh
	_, err = f.sessions.API().ValidateToken(ctx, first.Token)
	assert.ErrorIs(t, err, session.ErrInvalidToken)

	// a refresh the server refuses signs the user out locally
	require.NoError(t, f.sessions.API().Logout(ctx, next.Token))
	_, err = f.sessions.Refresh(ctx)
	assert.ErrorIs(t, err, session.ErrInvalidToken)
	assert.Nil(t, f.sessions.Current())
	loaded, err := f.store.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestRejectedTokenSignsOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s, err := f.sessions.Login(ctx, "admin@example.com", "admin-password")
	require.NoError(t, err)

	assert.NoError(t, f.sessions.Check(nil))
	assert.ErrorIs(t, f.sessions.Check(client.ErrNetwork), client.ErrNetwork)
	assert.NotNil(t, f.sessions.Current())

	require.NoError(t, f.sessions.API().Logout(ctx, s.Token))
	remote := client.Remote{Sessions: f.sessions}
	_, err = remote.Today(ctx, s.User.ID)
	assert.ErrorIs(t, err, session.ErrInvalidToken)
	assert.Nil(t, f.sessions.Current())
	loaded, err := f.store.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.sessions.Logout(ctx))

	s, err := f.sessions.Login(ctx, "admin@example.com", "admin-password")
	require.NoError(t, err)
	require.NoError(t, f.sessions.Logout(ctx))
	require.NoError(t, f.sessions.Logout(ctx))
	assert.Nil(t, f.sessions.Current())
	_, err = f.sessions.Token()
	assert.ErrorIs(t, err, client.ErrNotSignedIn)

	_, err = f.sessions.API().ValidateToken(ctx, s.Token)
	assert.ErrorIs(t, err, session.ErrInvalidToken)
}

func TestErrorBodiesMapToSentinels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	api := f.sessions.API()

	_, err := f.sessions.Register(ctx, "Sari", "sari@example.com", "password1")
	require.NoError(t, err)
	_, err = f.sessions.Register(ctx, "Sari", "SARI@example.com", "password1")
	assert.ErrorIs(t, err, user.ErrUserExists)

	_, err = f.sessions.Register(ctx, "", "short@example.com", "short")
	assert.ErrorIs(t, err, schema.ErrInvalidPayload)
	e, ok := apperror.As(err)
	require.True(t, ok)
	assert.NotEmpty(t, e.Details)

	_, err = api.Me(ctx, "")
	assert.ErrorIs(t, err, session.ErrMissingToken)
}

func TestWorkflowOverHTTP(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin, err := f.sessions.Login(ctx, "admin@example.com", "admin-password")
	require.NoError(t, err)
	_, err = f.sessions.API().CreateEmployee(ctx, admin.Token, user.CreateEmployeeRequest{
		Name: "Rina", Email: "rina@example.com", Password: "temporary1",
	})
	require.NoError(t, err)

	s, err := f.sessions.Login(ctx, "rina@example.com", "temporary1")
	require.NoError(t, err)

	remote := client.Remote{Sessions: f.sessions}
	e := workflow.NewEngine(workflow.Deps{
		Records:  remote,
		Camera:   cameraFunc(func(ctx context.Context) ([]byte, error) { return pngPixel, nil }),
		Uploader: remote,
	}, nil)

	_, err = e.Run(ctx, s.User, entity.MethodBiometric, false, "")
	assert.ErrorIs(t, err, workflow.ErrPasswordResetRequired)

	s, err = f.sessions.ChangePassword(ctx, "temporary1", "permanent1")
	require.NoError(t, err)
	assert.False(t, s.User.IsFirstLogin)

	rec, err := e.Run(ctx, s.User, entity.MethodBiometric, false, "")
	require.NoError(t, err)
	assert.Equal(t, s.User.ID, rec.UserID)
	require.NotNil(t, rec.ImageURL)
	assert.Equal(t, "https://i.example/face.png", *rec.ImageURL)
	assert.Nil(t, rec.Location)

	_, err = e.Run(ctx, s.User, entity.MethodManual, false, "")
	assert.ErrorIs(t, err, workflow.ErrAlreadyCheckedIn)

	// the server guard answers the same way when the local one is bypassed
	tok, err := f.sessions.Token()
	require.NoError(t, err)
	_, err = f.sessions.API().SubmitAttendance(ctx, tok, attendance.SubmitRequest{Method: entity.MethodManual})
	assert.ErrorIs(t, err, attendance.ErrAlreadyCheckedIn)

	out, err := e.Run(ctx, s.User, entity.MethodManual, true, "")
	require.NoError(t, err)
	assert.True(t, out.IsCheckout)

	today, err := f.sessions.API().Today(ctx, tok, s.User.ID)
	require.NoError(t, err)
	assert.True(t, today.HasCheckedIn)
	assert.True(t, today.HasCheckedOut)

	history, err := f.sessions.API().History(ctx, tok, entity.Filter{})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].IsCheckout)
}

type cameraFunc func(ctx context.Context) ([]byte, error)

func (f cameraFunc) Capture(ctx context.Context) ([]byte, error) { return f(ctx) }
