package geocode

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/apperror"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/httpx"
)

type Reverser interface {
	Reverse(ctx context.Context, lat, lng float64) (string, error)
}

// Handler proxies reverse geocoding for clients so they never hold the API key.
type Handler struct {
	geo    Reverser
	logger *zap.SugaredLogger
}

func NewHandler(geo Reverser, logger *zap.SugaredLogger) *Handler {
	return &Handler{geo: geo, logger: logger}
}

func parseCoord(s string, limit float64) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < -limit || v > limit {
		return 0, false
	}
	return v, true
}

func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	lat, okLat := parseCoord(r.URL.Query().Get("lat"), 90)
	lng, okLng := parseCoord(r.URL.Query().Get("lng"), 180)
	if !okLat || !okLng {
		httpx.WriteError(w, h.logger, r, apperror.Validation("lat and lng query parameters are required"))
		return
	}
	name, err := h.geo.Reverse(r.Context(), lat, lng)
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"name": name})
}
