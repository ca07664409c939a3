package attendance

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/schema"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/session"
	userentity "github.com/ovaphlow/pitchfork/service-attendance-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/apperror"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/httpx"
)

type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// SubmitRequest is the body of POST /api/v1/attendance.
type SubmitRequest struct {
	UserID     string           `json:"userId,omitempty"`
	Status     string           `json:"status,omitempty"`
	Method     string           `json:"method"`
	Location   *entity.Location `json:"location,omitempty"`
	Timestamp  *time.Time       `json:"timestamp,omitempty"`
	IsCheckout bool             `json:"isCheckout"`
	ImageURL   *string          `json:"imageUrl,omitempty"`
}

type SubmitResponse struct {
	Success bool               `json:"success"`
	Message string             `json:"message"`
	Record  *entity.RecordView `json:"record"`
}

// canActFor allows admins to act on anyone and everyone else on themselves.
func canActFor(r *http.Request, userID string) bool {
	p, ok := session.FromContext(r.Context())
	return ok && (p.UserID == userID || p.Role == userentity.RoleAdmin)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := schema.Decode(r, schema.AttendanceSubmit, &req); err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	p, _ := session.FromContext(r.Context())
	if req.UserID == "" {
		req.UserID = p.UserID
	}
	if !canActFor(r, req.UserID) {
		httpx.WriteError(w, h.logger, r, session.ErrForbidden)
		return
	}
	rec, err := h.svc.Submit(r.Context(), Submission{
		UserID:     req.UserID,
		Status:     req.Status,
		Method:     req.Method,
		Location:   req.Location,
		Timestamp:  req.Timestamp,
		IsCheckout: req.IsCheckout,
		ImageURL:   req.ImageURL,
	})
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	msg := "check-in recorded"
	if rec.IsCheckout {
		msg = "check-out recorded"
	}
	httpx.WriteJSON(w, http.StatusCreated, SubmitResponse{Success: true, Message: msg, Record: rec.View()})
}

func (h *Handler) Today(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if !canActFor(r, userID) {
		httpx.WriteError(w, h.logger, r, session.ErrForbidden)
		return
	}
	st, err := h.svc.Today(r.Context(), userID)
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, st)
}

// History lists records newest first. Employees only ever see their own.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	p, _ := session.FromContext(r.Context())
	q := r.URL.Query()
	f := entity.Filter{UserID: q.Get("userId"), FromDay: q.Get("from"), ToDay: q.Get("to")}
	if p.Role != userentity.RoleAdmin {
		f.UserID = p.UserID
	}
	var err error
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		httpx.WriteError(w, h.logger, r, apperror.Validation("limit must be an integer"))
		return
	}
	if f.Offset, err = intParam(q.Get("offset")); err != nil {
		httpx.WriteError(w, h.logger, r, apperror.Validation("offset must be an integer"))
		return
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	rows, err := h.svc.History(r.Context(), f)
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	out := make([]*entity.RecordView, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].View())
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// intParam parses an optional query integer; empty means zero.
func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	stats, err := h.svc.Dashboard(r.Context(), q.Get("from"), q.Get("to"))
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stats)
}
