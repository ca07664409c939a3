package user

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-attendance-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/apperror"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/utilities"
)

// PasswordHasher defines minimal hashing interface (abstract so we can swap to argon2 later).
type PasswordHasher interface {
	Hash(pw string) (hash string, algo string, err error)
	Verify(hash, pw string) bool
	NeedsRehash(hash string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) cost() int {
	if b.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return b.Cost
}

func (b BcryptHasher) Hash(pw string) (string, string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), b.cost())
	if err != nil {
		return "", "", err
	}
	return string(h), fmt.Sprintf("bcrypt:%d", b.cost()), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

func (b BcryptHasher) NeedsRehash(hash string) bool {
	c, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return false
	}
	return c < b.cost()
}

const (
	minPasswordLen = 8
	maxPasswordLen = 72 // bcrypt ignores anything beyond 72 bytes
)

var (
	ErrUserNotFound          = apperror.New(apperror.KindNotFound, "user_not_found", "user not found")
	ErrUserExists            = apperror.New(apperror.KindConflict, "user_exists", "email already registered")
	ErrBadCredentials        = apperror.New(apperror.KindAuth, "invalid_credentials", "invalid credentials")
	ErrLocked                = apperror.New(apperror.KindAuth, "account_locked", "account temporarily locked")
	ErrWeakPassword          = apperror.New(apperror.KindValidation, "weak_password", "password must be 8 to 72 characters")
	ErrInvalidEmail          = apperror.New(apperror.KindValidation, "invalid_email", "a valid email is required")
	ErrInvalidRole           = apperror.New(apperror.KindValidation, "invalid_role", "role must be employee or admin")
	ErrSamePassword          = apperror.New(apperror.KindValidation, "same_password", "new password must differ from the current one")
	ErrCurrentPasswordNeeded = apperror.New(apperror.KindAuth, "invalid_current_password", "current password is incorrect")
)

// UserService orchestrates authentication and user lifecycle flows.
type UserService struct {
	repo   *userrepo.UserRepo
	hasher PasswordHasher
	now    func() time.Time
	// configuration knobs
	MaxFailed    int
	LockDuration time.Duration
}

func NewUserService(db *sqlx.DB, r *userrepo.UserRepo, hasher PasswordHasher) *UserService {
	if r == nil {
		r = userrepo.NewUserRepo(db)
	}
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	return &UserService{repo: r, hasher: hasher, now: time.Now, MaxFailed: 6, LockDuration: 15 * time.Minute}
}

func (s *UserService) EnsureTable(ctx context.Context) error {
	return s.repo.EnsureTable(ctx)
}

// WithClock replaces the time source; used by tests.
func (s *UserService) WithClock(now func() time.Time) *UserService {
	s.now = now
	return s
}

func (s *UserService) clock() time.Time { return s.now().UTC().Truncate(time.Second) }

// NormalizeEmail trims, NFC-normalizes and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(email)))
}

func normalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

func validEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t\r\n")
}

func validPassword(pw string) bool {
	return len(pw) >= minPasswordLen && len(pw) <= maxPasswordLen
}

// generatedName produces a system username for accounts registered without one.
func generatedName() string {
	id := utilities.NewKSUID()
	return "user_" + strings.ToLower(id[len(id)-8:])
}

// NewUser describes an account to create.
type NewUser struct {
	Name         string
	Email        string
	Password     string
	Role         string
	Position     *string
	IsFirstLogin bool
}

// Register creates a self-service employee account.
func (s *UserService) Register(ctx context.Context, name, email, password string) (*entity.User, error) {
	return s.create(ctx, NewUser{Name: name, Email: email, Password: password, Role: entity.RoleEmployee})
}

// CreateEmployee is the admin path: the account starts with a temporary
// password that must be replaced on first login.
func (s *UserService) CreateEmployee(ctx context.Context, in NewUser) (*entity.User, error) {
	if in.Role == "" {
		in.Role = entity.RoleEmployee
	}
	in.IsFirstLogin = true
	return s.create(ctx, in)
}

func (s *UserService) create(ctx context.Context, in NewUser) (*entity.User, error) {
	email := NormalizeEmail(in.Email)
	if !validEmail(email) {
		return nil, ErrInvalidEmail
	}
	if !validPassword(in.Password) {
		return nil, ErrWeakPassword
	}
	if in.Role != entity.RoleEmployee && in.Role != entity.RoleAdmin {
		return nil, ErrInvalidRole
	}
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, ErrUserExists
	} else if !userrepo.IsNotFound(err) {
		return nil, apperror.Store(err)
	}
	name := normalizeName(in.Name)
	if name == "" {
		name = generatedName()
	}
	hash, algo, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.clock()
	u := &entity.User{
		ID:           utilities.NewSnowflakeID(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		PasswordAlgo: algo,
		Role:         in.Role,
		Position:     in.Position,
		IsFirstLogin: in.IsFirstLogin,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		// lost the race against a concurrent registration
		if database.IsUniqueViolation(err) {
			return nil, ErrUserExists
		}
		return nil, apperror.Store(err)
	}
	return u, nil
}

// AuthenticatePassword performs password authentication by email.
// On success resets counters and returns the full user row.
func (s *UserService) AuthenticatePassword(ctx context.Context, email, password string) (*entity.User, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrBadCredentials
	}
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if userrepo.IsNotFound(err) {
			return nil, ErrBadCredentials
		} // avoid user enumeration
		return nil, apperror.Store(err)
	}

	now := s.clock()
	if u.LockedUntil != nil && now.Before(*u.LockedUntil) {
		return nil, ErrLocked
	}

	if !s.hasher.Verify(u.PasswordHash, password) {
		// failure path
		if _, incErr := s.repo.IncrementFailedLogin(ctx, u.ID, now); incErr == nil {
			_, _ = s.repo.LockIfThreshold(ctx, u.ID, s.MaxFailed, now.Add(s.LockDuration), now)
		}
		return nil, ErrBadCredentials
	}

	// success path
	if err := s.repo.ResetLoginSuccess(ctx, u.ID, now); err != nil {
		return nil, apperror.Store(err)
	}
	u.LoginFailedAttempts = 0
	u.LockedUntil = nil
	u.LastLoginAt = &now

	if s.hasher.NeedsRehash(u.PasswordHash) {
		if newHash, algo, hErr := s.hasher.Hash(password); hErr == nil {
			// rehash keeps the version so the token about to be issued stays valid
			_ = s.repo.UpdatePassword(ctx, u.ID, newHash, algo, now, false)
		}
	}
	return u, nil
}

// ChangePassword verifies the current password and stores a new one. The
// returned user carries the bumped version.
func (s *UserService) ChangePassword(ctx context.Context, id, current, next string) (*entity.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.hasher.Verify(u.PasswordHash, current) {
		return nil, ErrCurrentPasswordNeeded
	}
	if !validPassword(next) {
		return nil, ErrWeakPassword
	}
	if ConstantTimeCompare(current, next) {
		return nil, ErrSamePassword
	}
	hash, algo, err := s.hasher.Hash(next)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.UpdatePassword(ctx, id, hash, algo, s.clock(), true); err != nil {
		return nil, apperror.Store(err)
	}
	return s.Get(ctx, id)
}

// ProfileUpdate carries editable profile fields; nil leaves a field unchanged.
type ProfileUpdate struct {
	Name         *string
	Position     *string
	ProfileImage *string
}

func (s *UserService) UpdateProfile(ctx context.Context, id string, in ProfileUpdate) (*entity.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	name := u.Name
	if in.Name != nil {
		if n := normalizeName(*in.Name); n != "" {
			name = n
		}
	}
	position, image := u.Position, u.ProfileImage
	if in.Position != nil {
		position = emptyToNil(*in.Position)
	}
	if in.ProfileImage != nil {
		image = emptyToNil(*in.ProfileImage)
	}
	if err := s.repo.UpdateProfile(ctx, id, name, position, image, s.clock()); err != nil {
		if userrepo.IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, apperror.Store(err)
	}
	return s.Get(ctx, id)
}

// Get returns the full user row by id.
func (s *UserService) Get(ctx context.Context, id string) (*entity.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if userrepo.IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, apperror.Store(err)
	}
	return u, nil
}

// GetMinimalAuthView retrieves the minimal projection for a user by ID.
func (s *UserService) GetMinimalAuthView(ctx context.Context, id string) (*entity.MinimalAuthView, error) {
	v, err := s.repo.GetMinimalAuthView(ctx, id)
	if err != nil {
		if userrepo.IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, apperror.Store(err)
	}
	return v, nil
}

func (s *UserService) List(ctx context.Context, limit, offset int) ([]entity.User, error) {
	rows, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, apperror.Store(err)
	}
	return rows, nil
}

// CountEmployees feeds the dashboard head count.
func (s *UserService) CountEmployees(ctx context.Context) (int, error) {
	n, err := s.repo.CountByRole(ctx, entity.RoleEmployee)
	if err != nil {
		return 0, apperror.Store(err)
	}
	return n, nil
}

// EnsureAdmin creates the bootstrap admin when no account uses email yet.
func (s *UserService) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	_, err := s.create(ctx, NewUser{Name: "Administrator", Email: email, Password: password, Role: entity.RoleAdmin})
	if err == nil {
		return true, nil
	}
	if e, ok := apperror.As(err); ok && e.Is(ErrUserExists) {
		return false, nil
	}
	return false, err
}

// ConstantTimeCompare helper.
func ConstantTimeCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func emptyToNil(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
