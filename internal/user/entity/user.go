package entity

import "time"

const (
	RoleEmployee = "employee"
	RoleAdmin    = "admin"
)

// User represents an account row in the `users` table.
type User struct {
	ID                  string     `db:"id"`
	Name                string     `db:"name"`
	Email               string     `db:"email"`
	PasswordHash        string     `db:"password_hash"`
	PasswordAlgo        string     `db:"password_algo"`
	Role                string     `db:"role"`
	ProfileImage        *string    `db:"profile_image"`
	Position            *string    `db:"position"`
	IsFirstLogin        bool       `db:"is_first_login"`
	Version             int64      `db:"version"`
	LoginFailedAttempts int        `db:"login_failed_attempts"`
	LockedUntil         *time.Time `db:"locked_until"`
	LastLoginAt         *time.Time `db:"last_login_at"`
	PasswordUpdatedAt   *time.Time `db:"password_updated_at"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

// PublicUser is the projection returned to clients; it never carries the
// password hash or lockout state.
type PublicUser struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Role         string     `json:"role"`
	ProfileImage *string    `json:"profileImage,omitempty"`
	Position     *string    `json:"position,omitempty"`
	IsFirstLogin bool       `json:"isFirstLogin"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

func (u *User) Public() *PublicUser {
	return &PublicUser{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		Role:         u.Role,
		ProfileImage: u.ProfileImage,
		Position:     u.Position,
		IsFirstLogin: u.IsFirstLogin,
		LastLoginAt:  u.LastLoginAt,
		CreatedAt:    u.CreatedAt,
	}
}

// MinimalAuthView is the minimal projection required for token claim hydration.
type MinimalAuthView struct {
	ID      string `db:"id"`
	Email   string `db:"email"`
	Role    string `db:"role"`
	Version int64  `db:"version"`
}
