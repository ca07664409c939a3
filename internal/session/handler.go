package session

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/schema"
	userentity "github.com/ovaphlow/pitchfork/service-attendance-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/httpx"
)

// Users is the slice of the user service the session endpoints need.
type Users interface {
	AuthViews
	AuthenticatePassword(ctx context.Context, email, password string) (*userentity.User, error)
	Get(ctx context.Context, id string) (*userentity.User, error)
}

type Handler struct {
	mgr    *Manager
	users  Users
	logger *zap.SugaredLogger
}

func NewHandler(mgr *Manager, users Users, logger *zap.SugaredLogger) *Handler {
	return &Handler{mgr: mgr, users: users, logger: logger}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse is returned by login and password change.
type TokenResponse struct {
	Token string                 `json:"token"`
	User  *userentity.PublicUser `json:"user,omitempty"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := schema.Decode(r, schema.Login, &req); err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	u, err := h.users.AuthenticatePassword(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	token, _, err := h.mgr.Issue(&userentity.MinimalAuthView{ID: u.ID, Email: u.Email, Role: u.Role, Version: u.Version})
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	h.logger.Infow("user logged in", "user_id", u.ID)
	httpx.WriteJSON(w, http.StatusOK, TokenResponse{Token: token, User: u.Public()})
}

func (h *Handler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	p, err := h.mgr.Validate(r.Context(), httpx.BearerToken(r))
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	u, err := h.users.Get(r.Context(), p.UserID)
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"valid": true, "user": u.Public()})
}

func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.mgr.Refresh(r.Context(), httpx.BearerToken(r))
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, TokenResponse{Token: token})
}

// Logout always answers 204 unless the revocation store is unreachable.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.mgr.Revoke(r.Context(), httpx.BearerToken(r)); err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
