package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/session/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/session/repo"
	userentity "github.com/ovaphlow/pitchfork/service-attendance-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/apperror"
)

const minSecretLen = 32

var (
	ErrMissingToken = apperror.New(apperror.KindAuth, "missing_token", "authentication required")
	ErrInvalidToken = apperror.New(apperror.KindAuth, "invalid_token", "invalid or expired token")
	ErrForbidden    = apperror.New(apperror.KindForbidden, "forbidden", "insufficient permissions")
)

type Config struct {
	Secret string
	Issuer string
	Expiry time.Duration
}

// ConfigFromEnv reads JWT_SECRET, JWT_ISSUER and TOKEN_EXPIRY.
func ConfigFromEnv() Config {
	issuer := os.Getenv("JWT_ISSUER")
	if issuer == "" {
		issuer = "attendance-api"
	}
	expiry := 24 * time.Hour
	if v := os.Getenv("TOKEN_EXPIRY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			expiry = d
		}
	}
	return Config{Secret: os.Getenv("JWT_SECRET"), Issuer: issuer, Expiry: expiry}
}

func (c Config) Validate() error {
	if len(c.Secret) < minSecretLen {
		return fmt.Errorf("JWT_SECRET must be set to at least %d characters", minSecretLen)
	}
	if c.Expiry <= 0 {
		return errors.New("token expiry must be positive")
	}
	return nil
}

// AuthViews resolves the current identity fields of a user.
type AuthViews interface {
	GetMinimalAuthView(ctx context.Context, id string) (*userentity.MinimalAuthView, error)
}

// Manager issues and validates session tokens. A token stays valid until it
// expires, its jti is revoked, or the owner's version moves past the one
// recorded in the token.
type Manager struct {
	cfg    Config
	repo   *repo.RevocationRepo
	users  AuthViews
	now    func() time.Time
	parser *jwt.Parser
}

func NewManager(db *sqlx.DB, cfg Config, users AuthViews) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{cfg: cfg, repo: repo.NewRevocationRepo(db), users: users, now: time.Now}
	m.buildParser()
	return m, nil
}

// WithClock replaces the time source; used by tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	m.buildParser()
	return m
}

func (m *Manager) buildParser() {
	m.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	)
}

func (m *Manager) EnsureTable(ctx context.Context) error {
	return m.repo.EnsureTable(ctx)
}

// Issue signs a new token for v.
func (m *Manager) Issue(v *userentity.MinimalAuthView) (string, *entity.Claims, error) {
	now := m.now().Truncate(time.Second)
	claims := &entity.Claims{
		UserID:  v.ID,
		Email:   v.Email,
		Role:    v.Role,
		Version: v.Version,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   v.ID,
			Issuer:    m.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.Expiry)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.cfg.Secret))
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// parse checks signature, algorithm, issuer and expiry only.
func (m *Manager) parse(token string) (*entity.Claims, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	claims := &entity.Claims{}
	tok, err := m.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(m.cfg.Secret), nil
	})
	if err != nil || !tok.Valid {
		return nil, apperror.Wrap(ErrInvalidToken, err)
	}
	if claims.ID == "" || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Validate fully checks token and returns the caller it identifies. The role
// is taken from the user row, not the token.
func (m *Manager) Validate(ctx context.Context, token string) (*entity.Principal, error) {
	claims, err := m.parse(token)
	if err != nil {
		return nil, err
	}
	revoked, err := m.repo.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, apperror.Store(err)
	}
	if revoked {
		return nil, ErrInvalidToken
	}
	v, err := m.users.GetMinimalAuthView(ctx, claims.UserID)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindNotFound {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if v.Version != claims.Version {
		return nil, ErrInvalidToken
	}
	return &entity.Principal{
		UserID:    v.ID,
		Email:     v.Email,
		Role:      v.Role,
		Version:   v.Version,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Refresh exchanges a valid token for a new one and revokes the old jti. A
// token can be refreshed once; a second attempt fails closed.
func (m *Manager) Refresh(ctx context.Context, token string) (string, error) {
	p, err := m.Validate(ctx, token)
	if err != nil {
		return "", err
	}
	fresh, err := m.revoke(ctx, p.TokenID, p.UserID, p.ExpiresAt)
	if err != nil {
		return "", err
	}
	if !fresh {
		return "", ErrInvalidToken
	}
	signed, _, err := m.Issue(&userentity.MinimalAuthView{ID: p.UserID, Email: p.Email, Role: p.Role, Version: p.Version})
	return signed, err
}

// Revoke denylists token until it expires. Tokens that are already invalid
// need no revocation and succeed silently.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	claims, err := m.parse(token)
	if err != nil {
		return nil
	}
	_, err = m.revoke(ctx, claims.ID, claims.UserID, claims.ExpiresAt.Time)
	return err
}

func (m *Manager) revoke(ctx context.Context, jti, userID string, expiresAt time.Time) (bool, error) {
	now := m.now().UTC().Truncate(time.Second)
	ok, err := m.repo.Revoke(ctx, jti, userID, expiresAt.UTC(), now)
	if err != nil {
		return false, apperror.Store(err)
	}
	return ok, nil
}
