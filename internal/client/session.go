package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/session"
	userentity "github.com/ovaphlow/pitchfork/service-attendance-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/apperror"
)

var ErrNotSignedIn = apperror.New(apperror.KindAuth, "not_signed_in", "not signed in")

// SessionManager is the single owner of the signed-in session. Callers ask
// it for the token instead of reading the store themselves.
type SessionManager struct {
	api    *API
	store  Store
	logger *zap.SugaredLogger
	now    func() time.Time

	mu  sync.Mutex
	cur *Session
}

func NewSessionManager(api *API, store Store, logger *zap.SugaredLogger) *SessionManager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SessionManager{api: api, store: store, logger: logger, now: time.Now}
}

func (m *SessionManager) API() *API { return m.api }

// Current returns the active session or nil.
func (m *SessionManager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

// Token returns the bearer token or ErrNotSignedIn.
func (m *SessionManager) Token() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return "", ErrNotSignedIn
	}
	return m.cur.Token, nil
}

func (m *SessionManager) set(s *Session) error {
	s.SavedAt = m.now().UTC()
	if err := m.store.Save(s); err != nil {
		return err
	}
	m.mu.Lock()
	m.cur = s
	m.mu.Unlock()
	return nil
}

func (m *SessionManager) clear() error {
	m.mu.Lock()
	m.cur = nil
	m.mu.Unlock()
	return m.store.Clear()
}

// Bootstrap restores the stored session and confirms it with the server.
// A rejected token is wiped; when the server cannot be reached the stored
// session is kept and the network error returned.
func (m *SessionManager) Bootstrap(ctx context.Context) (*Session, error) {
	s, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, nil
	}
	u, err := m.api.ValidateToken(ctx, s.Token)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindAuth {
			m.logger.Debugw("stored session rejected", "err", err)
			if cerr := m.clear(); cerr != nil {
				return nil, cerr
			}
			return nil, nil
		}
		m.mu.Lock()
		m.cur = s
		m.mu.Unlock()
		return s, err
	}
	s.User = u
	if err := m.set(s); err != nil {
		return nil, err
	}
	return s, nil
}

func (m *SessionManager) Login(ctx context.Context, email, password string) (*Session, error) {
	res, err := m.api.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	s := &Session{Token: res.Token, User: res.User}
	if err := m.set(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Register creates an account without signing in.
func (m *SessionManager) Register(ctx context.Context, name, email, password string) (*userentity.PublicUser, error) {
	return m.api.Register(ctx, name, email, password)
}

// Refresh swaps the token for a fresh one. Any failure signs the user out:
// a session that could not be renewed is never kept half-valid.
func (m *SessionManager) Refresh(ctx context.Context) (*Session, error) {
	token, err := m.Token()
	if err != nil {
		return nil, err
	}
	next, err := m.api.RefreshToken(ctx, token)
	if err != nil {
		if cerr := m.clear(); cerr != nil {
			return nil, errors.Join(err, cerr)
		}
		return nil, err
	}
	s := &Session{Token: next}
	m.mu.Lock()
	if m.cur != nil {
		s.User = m.cur.User
	}
	m.mu.Unlock()
	if err := m.set(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Logout revokes the token when the server is reachable and always clears
// the local session. Calling it signed out is a no-op.
func (m *SessionManager) Logout(ctx context.Context) error {
	token, err := m.Token()
	if err == nil {
		if rerr := m.api.Logout(ctx, token); rerr != nil {
			m.logger.Warnw("server logout failed; clearing local session", "err", rerr)
		}
	}
	return m.clear()
}

// ChangePassword stores the replacement token the server hands back.
func (m *SessionManager) ChangePassword(ctx context.Context, current, next string) (*Session, error) {
	token, err := m.Token()
	if err != nil {
		return nil, err
	}
	res, err := m.api.ChangePassword(ctx, token, current, next)
	if err != nil {
		return nil, m.Check(err)
	}
	s := &Session{Token: res.Token, User: res.User}
	if err := m.set(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Check signs the user out locally when err says the server no longer
// accepts the token. err is returned unchanged.
func (m *SessionManager) Check(err error) error {
	if errors.Is(err, session.ErrInvalidToken) || errors.Is(err, session.ErrMissingToken) {
		if cerr := m.clear(); cerr != nil {
			m.logger.Warnw("clear rejected session", "err", cerr)
		}
		m.logger.Infow("session rejected by server; signed out")
	}
	return err
}
