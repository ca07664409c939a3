package imagehost

import (
	"context"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/apperror"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/httpx"
)

type Uploader interface {
	Upload(ctx context.Context, filename string, image []byte) (string, error)
}

// Handler accepts a multipart "image" field and forwards it to the image host.
type Handler struct {
	up     Uploader
	logger *zap.SugaredLogger
}

func NewHandler(up Uploader, logger *zap.SugaredLogger) *Handler {
	return &Handler{up: up, logger: logger}
}

var ErrNotAnImage = apperror.New(apperror.KindValidation, "invalid_image", "an image file is required in field \"image\"")

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxImageBytes+64<<10)
	file, header, err := r.FormFile("image")
	if err != nil {
		httpx.WriteError(w, h.logger, r, ErrNotAnImage)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, MaxImageBytes+1))
	if err != nil || len(data) == 0 || len(data) > MaxImageBytes {
		httpx.WriteError(w, h.logger, r, ErrNotAnImage)
		return
	}
	if !strings.HasPrefix(http.DetectContentType(data), "image/") {
		httpx.WriteError(w, h.logger, r, ErrNotAnImage)
		return
	}
	u, err := h.up.Upload(r.Context(), header.Filename, data)
	if err != nil {
		httpx.WriteError(w, h.logger, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"url": u})
}
