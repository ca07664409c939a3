package user

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/schema"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/httpx"
)

// Handler exposes HTTP endpoints for registration, profile and admin user management.
type Handler struct {
	svc    *UserService
	tokens *session.Manager
	logger *zap.SugaredLogger
}

func NewHandler(svc *UserService, tokens *session.Manager, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, tokens: tokens, logger: logger}
}

// RegisterRequest request body for the public registration endpoint.
type RegisterRequest struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := schema.Decode(r, schema.Register, &req); err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	u, err := h.svc.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	h.logger.Infow("user registered", "user_id", u.ID)
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"message": "registration successful", "user": u.Public()})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, _ := session.FromContext(r.Context())
	u, err := h.svc.Get(r.Context(), p.UserID)
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, u.Public())
}

type ProfileRequest struct {
	Name         *string `json:"name,omitempty"`
	Position     *string `json:"position,omitempty"`
	ProfileImage *string `json:"profileImage,omitempty"`
}

func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	p, _ := session.FromContext(r.Context())
	var req ProfileRequest
	if err := schema.Decode(r, schema.ProfileUpdate, &req); err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	u, err := h.svc.UpdateProfile(r.Context(), p.UserID, ProfileUpdate(req))
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, u.Public())
}

type PasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ChangePassword answers with a fresh token: the version bump has just
// invalidated the one used for this request.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	p, _ := session.FromContext(r.Context())
	var req PasswordRequest
	if err := schema.Decode(r, schema.PasswordChange, &req); err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	u, err := h.svc.ChangePassword(r.Context(), p.UserID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	token, _, err := h.tokens.Issue(&entity.MinimalAuthView{ID: u.ID, Email: u.Email, Role: u.Role, Version: u.Version})
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	h.logger.Infow("password changed", "user_id", u.ID)
	httpx.WriteJSON(w, http.StatusOK, session.TokenResponse{Token: token, User: u.Public()})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := h.svc.List(r.Context(), limit, offset)
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	out := make([]*entity.PublicUser, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].Public())
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

type CreateEmployeeRequest struct {
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Position *string `json:"position,omitempty"`
	Role     string  `json:"role,omitempty"`
}

func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if err := schema.Decode(r, schema.EmployeeCreate, &req); err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	u, err := h.svc.CreateEmployee(r.Context(), NewUser{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
		Position: emptyToNilPtr(req.Position),
	})
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	p, _ := session.FromContext(r.Context())
	h.logger.Infow("employee created", "user_id", u.ID, "by", p.UserID)
	httpx.WriteJSON(w, http.StatusCreated, u.Public())
}

func emptyToNilPtr(s *string) *string {
	if s == nil {
		return nil
	}
	return emptyToNil(*s)
}
