// Package client talks to the attendance API over HTTP and keeps the
// signed-in session on disk.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/session"
	settingentity "github.com/ovaphlow/pitchfork/service-attendance-go/internal/setting/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/user"
	userentity "github.com/ovaphlow/pitchfork/service-attendance-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/apperror"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/httpx"
)

const DefaultTimeout = 15 * time.Second

var ErrNetwork = apperror.New(apperror.KindExternal, "network_error", "cannot reach the attendance server")

// API is a thin typed wrapper over the HTTP endpoints. Every call carries
// the bearer token it is given; API itself holds no session state.
type API struct {
	base string
	http *http.Client
}

// NewAPI builds a client for baseURL, e.g. "http://localhost:8431".
func NewAPI(baseURL string, timeout time.Duration) *API {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &API{base: strings.TrimRight(baseURL, "/"), http: &http.Client{Timeout: timeout}}
}

// do sends body as JSON and decodes a 2xx answer into out. Error bodies
// become *apperror.Error values that compare equal to the server sentinels.
func (a *API) do(ctx context.Context, method, path, token string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return a.send(req, token, out)
}

func (a *API) send(req *http.Request, token string, out any) error {
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return apperror.Wrap(ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperror.External("bad_response", "unexpected response from server", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body httpx.ErrorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err != nil || body.Code == "" {
		return &apperror.Error{
			Kind:    apperror.KindFromStatus(resp.StatusCode),
			Code:    "http_" + strconv.Itoa(resp.StatusCode),
			Message: strings.TrimSpace(string(raw)),
		}
	}
	return &apperror.Error{
		Kind:    apperror.KindFromStatus(resp.StatusCode),
		Code:    body.Code,
		Message: body.Error,
		Details: body.Details,
	}
}

func (a *API) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.base+"/api/health", nil)
	if err != nil {
		return err
	}
	return a.send(req, "", nil)
}

func (a *API) Register(ctx context.Context, name, email, password string) (*userentity.PublicUser, error) {
	var out struct {
		User *userentity.PublicUser `json:"user"`
	}
	err := a.do(ctx, http.MethodPost, "/api/register", "", user.RegisterRequest{Name: name, Email: email, Password: password}, &out)
	return out.User, err
}

func (a *API) Login(ctx context.Context, email, password string) (*session.TokenResponse, error) {
	var out session.TokenResponse
	if err := a.do(ctx, http.MethodPost, "/api/login", "", session.LoginRequest{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateToken returns the token's owner, or session.ErrInvalidToken.
func (a *API) ValidateToken(ctx context.Context, token string) (*userentity.PublicUser, error) {
	var out struct {
		Valid bool                   `json:"valid"`
		User  *userentity.PublicUser `json:"user"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/validate-token", token, nil, &out); err != nil {
		return nil, err
	}
	if !out.Valid || out.User == nil {
		return nil, session.ErrInvalidToken
	}
	return out.User, nil
}

func (a *API) RefreshToken(ctx context.Context, token string) (string, error) {
	var out session.TokenResponse
	if err := a.do(ctx, http.MethodPost, "/api/refresh-token", token, nil, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

func (a *API) Logout(ctx context.Context, token string) error {
	return a.do(ctx, http.MethodPost, "/api/logout", token, nil, nil)
}

func (a *API) Me(ctx context.Context, token string) (*userentity.PublicUser, error) {
	var out userentity.PublicUser
	if err := a.do(ctx, http.MethodGet, "/api/v1/users/me", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) UpdateProfile(ctx context.Context, token string, in user.ProfileRequest) (*userentity.PublicUser, error) {
	var out userentity.PublicUser
	if err := a.do(ctx, http.MethodPut, "/api/v1/users/me", token, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChangePassword returns the replacement token; the old one stops working.
func (a *API) ChangePassword(ctx context.Context, token, current, next string) (*session.TokenResponse, error) {
	var out session.TokenResponse
	if err := a.do(ctx, http.MethodPut, "/api/v1/users/me/password", token, user.PasswordRequest{CurrentPassword: current, NewPassword: next}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) ListUsers(ctx context.Context, token string, limit, offset int) ([]userentity.PublicUser, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	var out []userentity.PublicUser
	err := a.do(ctx, http.MethodGet, "/api/v1/users?"+q.Encode(), token, nil, &out)
	return out, err
}

func (a *API) CreateEmployee(ctx context.Context, token string, in user.CreateEmployeeRequest) (*userentity.PublicUser, error) {
	var out userentity.PublicUser
	if err := a.do(ctx, http.MethodPost, "/api/v1/users", token, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) SubmitAttendance(ctx context.Context, token string, in attendance.SubmitRequest) (*entity.RecordView, error) {
	var out attendance.SubmitResponse
	if err := a.do(ctx, http.MethodPost, "/api/v1/attendance", token, in, &out); err != nil {
		return nil, err
	}
	return out.Record, nil
}

func (a *API) Today(ctx context.Context, token, userID string) (*entity.TodayStatus, error) {
	var out entity.TodayStatus
	if err := a.do(ctx, http.MethodGet, "/api/v1/attendance/today/"+url.PathEscape(userID), token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) History(ctx context.Context, token string, f entity.Filter) ([]entity.RecordView, error) {
	q := url.Values{}
	if f.UserID != "" {
		q.Set("userId", f.UserID)
	}
	if f.FromDay != "" {
		q.Set("from", f.FromDay)
	}
	if f.ToDay != "" {
		q.Set("to", f.ToDay)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	path := "/api/v1/attendance"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []entity.RecordView
	err := a.do(ctx, http.MethodGet, path, token, nil, &out)
	return out, err
}

func (a *API) Dashboard(ctx context.Context, token, from, to string) (*entity.DashboardStats, error) {
	q := url.Values{}
	if from != "" {
		q.Set("from", from)
	}
	if to != "" {
		q.Set("to", to)
	}
	path := "/api/v1/stats/dashboard"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out entity.DashboardStats
	if err := a.do(ctx, http.MethodGet, path, token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) BusinessHours(ctx context.Context, token string) (*settingentity.BusinessHours, error) {
	var out settingentity.BusinessHours
	if err := a.do(ctx, http.MethodGet, "/api/v1/business-hours", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) UpdateBusinessHours(ctx context.Context, token string, in settingentity.BusinessHours) (*settingentity.BusinessHours, error) {
	body := struct {
		CheckInStart     string `json:"checkInStart"`
		CheckOutEnd      string `json:"checkOutEnd"`
		LateGraceMinutes int    `json:"lateGraceMinutes"`
		Version          int64  `json:"version"`
	}{in.CheckInStart, in.CheckOutEnd, in.LateGraceMinutes, in.Version}
	var out settingentity.BusinessHours
	if err := a.do(ctx, http.MethodPut, "/api/v1/business-hours", token, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadImage sends image through the server proxy and returns its public URL.
func (a *API) UploadImage(ctx context.Context, token, filename string, image []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(image); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.base+"/api/v1/uploads", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var out struct {
		URL string `json:"url"`
	}
	if err := a.send(req, token, &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", apperror.External("bad_response", "upload returned no url", fmt.Errorf("empty url"))
	}
	return out.URL, nil
}

// ReverseGeocode resolves coordinates through the server proxy.
func (a *API) ReverseGeocode(ctx context.Context, token string, lat, lng float64) (string, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lng", strconv.FormatFloat(lng, 'f', -1, 64))
	var out struct {
		Name string `json:"name"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/v1/geocode/reverse?"+q.Encode(), token, nil, &out); err != nil {
		return "", err
	}
	return out.Name, nil
}
