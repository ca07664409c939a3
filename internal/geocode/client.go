// Package geocode resolves coordinates to place names through the OpenCage
// reverse geocoding API. The API key never leaves the server.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/apperror"
)

const defaultBaseURL = "https://api.opencagedata.com/geocode/v1/json"

var (
	ErrNotConfigured = apperror.New(apperror.KindExternal, "geocoder_not_configured", "reverse geocoding is not configured")
	ErrNoResult      = apperror.New(apperror.KindNotFound, "place_not_found", "no place found for these coordinates")
)

type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// ConfigFromEnv reads GEOCODE_API_KEY, GEOCODE_BASE_URL and OUTBOUND_TIMEOUT.
func ConfigFromEnv() Config {
	cfg := Config{APIKey: os.Getenv("GEOCODE_API_KEY"), BaseURL: os.Getenv("GEOCODE_BASE_URL"), Timeout: 5 * time.Second}
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
		cfg.Timeout = 5 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

type response struct {
	Results []struct {
		Formatted string `json:"formatted"`
	} `json:"results"`
	Status struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"status"`
}

// Reverse returns the formatted address closest to lat/lng.
func (c *Client) Reverse(ctx context.Context, lat, lng float64) (string, error) {
	if c.cfg.APIKey == "" {
		return "", ErrNotConfigured
	}
	q := url.Values{}
	q.Set("q", strconv.FormatFloat(lat, 'f', -1, 64)+","+strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("key", c.cfg.APIKey)
	q.Set("no_annotations", "1")
	q.Set("limit", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperror.External("geocoder_unavailable", "reverse geocoding failed", err)
	}
	defer resp.Body.Close()

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", apperror.External("geocoder_unavailable", "reverse geocoding failed", fmt.Errorf("decode: %w (status %d)", err, resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return "", apperror.External("geocoder_unavailable", "reverse geocoding failed", fmt.Errorf("status %d: %s", resp.StatusCode, body.Status.Message))
	}
	if len(body.Results) == 0 || body.Results[0].Formatted == "" {
		return "", ErrNoResult
	}
	return body.Results[0].Formatted, nil
}
