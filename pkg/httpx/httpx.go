package httpx

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/apperror"
)

// ErrorBody is the wire shape of every error response.
type ErrorBody struct {
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Details []string `json:"details,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err onto a status and error body. Unclassified and store
// errors are logged with their cause and reported generically.
func WriteError(w http.ResponseWriter, logger *zap.SugaredLogger, r *http.Request, err error) {
	e, ok := apperror.As(err)
	if !ok {
		e = apperror.Store(err)
	}
	status := apperror.HTTPStatus(e.Kind)
	if status >= http.StatusInternalServerError || e.Kind == apperror.KindExternal {
		logger.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "code", e.Code, "err", err)
	} else {
		logger.Debugw("request rejected", "method", r.Method, "path", r.URL.Path, "code", e.Code)
	}
	WriteJSON(w, status, ErrorBody{Error: e.Message, Code: e.Code, Details: e.Details})
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[7:])
}
