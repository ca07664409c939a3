// Package imagehost uploads captured face images to an imgbb-compatible
// image host and returns the public URL.
package imagehost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/apperror"
)

const defaultBaseURL = "https://api.imgbb.com/1/upload"

// MaxImageBytes caps a single upload.
const MaxImageBytes = 5 << 20

var (
	ErrNotConfigured = apperror.New(apperror.KindExternal, "image_host_not_configured", "image upload is not configured")
	ErrUploadFailed  = apperror.New(apperror.KindExternal, "upload_failed", "image upload failed")
)

type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// ConfigFromEnv reads IMAGE_HOST_API_KEY, IMAGE_HOST_BASE_URL and OUTBOUND_TIMEOUT.
func ConfigFromEnv() Config {
	cfg := Config{APIKey: os.Getenv("IMAGE_HOST_API_KEY"), BaseURL: os.Getenv("IMAGE_HOST_BASE_URL"), Timeout: 15 * time.Second}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if v := os.Getenv("OUTBOUND_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Timeout = d
		}
	}
	return cfg
}

type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

type uploadResponse struct {
	Success bool `json:"success"`
	Status  int  `json:"status"`
	Data    struct {
		URL        string `json:"url"`
		DisplayURL string `json:"display_url"`
	} `json:"data"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Upload sends image as the multipart "image" field and returns its URL.
func (c *Client) Upload(ctx context.Context, filename string, image []byte) (string, error) {
	if c.cfg.APIKey == "" {
		return "", ErrNotConfigured
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(image); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	endpoint := c.cfg.BaseURL + "?" + url.Values{"key": {c.cfg.APIKey}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperror.Wrap(ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", apperror.Wrap(ErrUploadFailed, err)
	}
	var body uploadResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", apperror.Wrap(ErrUploadFailed, fmt.Errorf("decode (status %d): %w", resp.StatusCode, err))
	}
	if resp.StatusCode != http.StatusOK || !body.Success || body.Data.URL == "" {
		return "", apperror.Wrap(ErrUploadFailed, fmt.Errorf("status %d: %s", resp.StatusCode, body.Error.Message))
	}
	return body.Data.URL, nil
}
