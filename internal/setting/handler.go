package setting

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/schema"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/setting/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/httpx"
)

// Handler contains dependencies for handling business hours endpoints.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

// NewHandler constructs a new Handler.
func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	bh, err := h.svc.BusinessHours(r.Context())
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, bh)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var in entity.BusinessHours
	if err := schema.Decode(r, schema.BusinessHours, &in); err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	p, _ := session.FromContext(r.Context())
	bh, err := h.svc.UpdateBusinessHours(r.Context(), in, p.UserID)
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	h.logger.Infow("business hours updated", "by", p.UserID, "version", bh.Version)
	httpx.WriteJSON(w, http.StatusOK, bh)
}
