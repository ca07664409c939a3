// Package workflow drives a single check-in or check-out attempt through
// location capture, optional face capture and submission.
package workflow

import (
	"context"
	"time"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/apperror"
)

type State string

const (
	StateIdle             State = "idle"
	StateAwaitingLocation State = "awaiting_location"
	StateAwaitingCapture  State = "awaiting_capture"
	StateReady            State = "ready"
	StateSubmitting       State = "submitting"
	StateCompleted        State = "completed"
	StateError            State = "error"
)

var (
	ErrAlreadySubmitted    = apperror.New(apperror.KindConflict, "already_submitted", "this attempt was already submitted")
	ErrBusy                = apperror.New(apperror.KindConflict, "busy", "another step is still in progress")
	ErrInvalidState        = apperror.New(apperror.KindValidation, "invalid_state", "step not allowed in the current state")
	ErrInvalidMethod       = apperror.New(apperror.KindValidation, "invalid_method", "method must be biometric or manual")
	ErrLocationDenied      = apperror.New(apperror.KindForbidden, "location_denied", "location permission denied")
	ErrLocationUnavailable = apperror.New(apperror.KindExternal, "location_unavailable", "location is unavailable")
	ErrCaptureFailed       = apperror.New(apperror.KindValidation, "capture_failed", "no face image was captured")

	// guard failures come from the server's own sentinels so errors.Is
	// matches them whether they were produced locally or decoded from HTTP
	ErrAlreadyCheckedIn  = attendance.ErrAlreadyCheckedIn
	ErrNotCheckedIn      = attendance.ErrNotCheckedIn
	ErrAlreadyCheckedOut = attendance.ErrAlreadyCheckedOut

	ErrPasswordResetRequired = attendance.ErrPasswordResetRequired
)

// Submission is what the engine hands to Records.Submit.
type Submission struct {
	UserID     string
	Status     string
	Method     string
	Location   *entity.Location
	Timestamp  time.Time
	IsCheckout bool
	ImageURL   *string
}

// Records is the record store as seen by the engine.
type Records interface {
	Today(ctx context.Context, userID string) (*entity.TodayStatus, error)
	Submit(ctx context.Context, s Submission) (*entity.RecordView, error)
}

// Locator returns the device position or ErrLocationDenied/ErrLocationUnavailable.
type Locator interface {
	Locate(ctx context.Context) (lat, lng float64, err error)
}

type Geocoder interface {
	Reverse(ctx context.Context, lat, lng float64) (string, error)
}

// Camera returns one encoded frame.
type Camera interface {
	Capture(ctx context.Context) ([]byte, error)
}

type ImageUploader interface {
	Upload(ctx context.Context, filename string, image []byte) (string, error)
}

// Deps are the engine's collaborators. Locator, Geocoder, Camera and
// Uploader may be nil: no locator records a null location, no geocoder
// leaves the place name empty, and biometric attempts need Camera and Uploader.
type Deps struct {
	Records  Records
	Locator  Locator
	Geocoder Geocoder
	Camera   Camera
	Uploader ImageUploader
	Now      func() time.Time
}

func validMethod(m string) bool {
	return m == entity.MethodBiometric || m == entity.MethodManual
}
