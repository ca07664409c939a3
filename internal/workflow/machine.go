package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance/entity"
	userentity "github.com/ovaphlow/pitchfork/service-attendance-go/internal/user/entity"
)

// Engine owns one attempt at a time. Every step checks the current state
// under the mutex and marks the engine busy while it waits on I/O, so a
// second caller gets ErrBusy instead of a duplicate submission.
type Engine struct {
	deps   Deps
	logger *zap.SugaredLogger

	mu       sync.Mutex
	state    State
	busy     bool
	userID   string
	method   string
	checkout bool
	location *entity.Location
	imageURL *string
	result   *entity.RecordView
	err      error
}

func NewEngine(deps Deps, logger *zap.SugaredLogger) *Engine {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Engine{deps: deps, logger: logger, state: StateIdle}
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Result is the stored record once the attempt is completed.
func (e *Engine) Result() *entity.RecordView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result
}

// Err is the failure that moved the engine into StateError.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Location is the position captured for the current attempt, nil when none.
func (e *Engine) Location() *entity.Location {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.location
}

// Reset abandons the current attempt and returns to idle.
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy {
		return ErrBusy
	}
	e.resetLocked()
	return nil
}

func (e *Engine) resetLocked() {
	e.state = StateIdle
	e.userID, e.method, e.checkout = "", "", false
	e.location, e.imageURL, e.result, e.err = nil, nil, nil, nil
}

// enter claims the engine for a step that must start in want.
func (e *Engine) enter(want ...State) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy {
		return ErrBusy
	}
	if e.state == StateCompleted && !contains(want, StateCompleted) {
		return ErrAlreadySubmitted
	}
	if !contains(want, e.state) {
		return fmt.Errorf("%w: %s", ErrInvalidState, e.state)
	}
	e.busy = true
	return nil
}

// leave releases the engine, moving to next on success or StateError on err.
func (e *Engine) leave(next State, err error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.busy = false
	if err != nil {
		e.state = StateError
		e.err = err
		return err
	}
	e.state = next
	return nil
}

func contains(states []State, s State) bool {
	for _, x := range states {
		if x == s {
			return true
		}
	}
	return false
}

func (e *Engine) BeginCheckIn(ctx context.Context, user *userentity.PublicUser, method string) error {
	return e.begin(ctx, user, method, false)
}

func (e *Engine) BeginCheckOut(ctx context.Context, user *userentity.PublicUser, method string) error {
	return e.begin(ctx, user, method, true)
}

// begin runs the guards against today's records. A rejected guard leaves
// the engine idle and a failed lookup moves it to error; a finished or
// failed attempt is discarded first.
func (e *Engine) begin(ctx context.Context, user *userentity.PublicUser, method string, checkout bool) error {
	if user == nil {
		return ErrInvalidState
	}
	if !validMethod(method) {
		return ErrInvalidMethod
	}
	if user.IsFirstLogin {
		return ErrPasswordResetRequired
	}
	if err := e.enter(StateIdle, StateCompleted, StateError); err != nil {
		return err
	}
	e.mu.Lock()
	e.resetLocked()
	e.mu.Unlock()

	today, err := e.deps.Records.Today(ctx, user.ID)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.busy = false
	if err != nil {
		e.state, e.err = StateError, err
		return err
	}
	if err := guard(today, checkout); err != nil {
		return err
	}
	e.userID, e.method, e.checkout = user.ID, method, checkout
	e.state = StateAwaitingLocation
	return nil
}

func guard(today *entity.TodayStatus, checkout bool) error {
	switch {
	case !checkout && today.HasCheckedIn:
		return ErrAlreadyCheckedIn
	case checkout && !today.HasCheckedIn:
		return ErrNotCheckedIn
	case checkout && today.HasCheckedOut:
		return ErrAlreadyCheckedOut
	}
	return nil
}

// AcquireLocation reads the device position and resolves a place name.
// Geocoding is best effort: a failure leaves the name empty.
func (e *Engine) AcquireLocation(ctx context.Context) error {
	if err := e.enter(StateAwaitingLocation); err != nil {
		return err
	}
	var loc *entity.Location
	if e.deps.Locator != nil {
		lat, lng, err := e.deps.Locator.Locate(ctx)
		if err != nil {
			if !errors.Is(err, ErrLocationDenied) && !errors.Is(err, ErrLocationUnavailable) {
				err = fmt.Errorf("%w: %v", ErrLocationUnavailable, err)
			}
			return e.leave(StateError, err)
		}
		loc = &entity.Location{Lat: lat, Lng: lng}
		if e.deps.Geocoder != nil {
			name, gerr := e.deps.Geocoder.Reverse(ctx, lat, lng)
			if gerr != nil {
				e.logger.Warnw("reverse geocoding failed", "err", gerr)
			} else if name != "" {
				loc.Name = &name
			}
		}
	}

	e.mu.Lock()
	e.location = loc
	next := StateReady
	if e.method == entity.MethodBiometric {
		next = StateAwaitingCapture
	}
	e.mu.Unlock()
	return e.leave(next, nil)
}

// CaptureFace takes one frame and uploads it to the image host.
func (e *Engine) CaptureFace(ctx context.Context) error {
	if err := e.enter(StateAwaitingCapture); err != nil {
		return err
	}
	if e.deps.Camera == nil || e.deps.Uploader == nil {
		return e.leave(StateError, ErrCaptureFailed)
	}
	img, err := e.deps.Camera.Capture(ctx)
	if err != nil {
		return e.leave(StateError, fmt.Errorf("%w: %v", ErrCaptureFailed, err))
	}
	if len(img) == 0 {
		return e.leave(StateError, ErrCaptureFailed)
	}
	e.mu.Lock()
	name := fmt.Sprintf("%s-%d.jpg", e.userID, e.deps.Now().Unix())
	e.mu.Unlock()
	url, err := e.deps.Uploader.Upload(ctx, name, img)
	if err != nil {
		return e.leave(StateError, err)
	}
	e.mu.Lock()
	e.imageURL = &url
	e.mu.Unlock()
	return e.leave(StateReady, nil)
}

// Submit sends the attempt. status may be empty to let the server derive it.
// A completed attempt is never sent twice.
func (e *Engine) Submit(ctx context.Context, status string) (*entity.RecordView, error) {
	if err := e.enter(StateReady); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.state = StateSubmitting
	sub := Submission{
		UserID:     e.userID,
		Status:     status,
		Method:     e.method,
		Location:   e.location,
		Timestamp:  e.deps.Now().UTC().Truncate(time.Second),
		IsCheckout: e.checkout,
		ImageURL:   e.imageURL,
	}
	e.mu.Unlock()

	rec, err := e.deps.Records.Submit(ctx, sub)
	if err != nil {
		return nil, e.leave(StateError, err)
	}
	e.mu.Lock()
	e.result = rec
	e.mu.Unlock()
	e.logger.Infow("attendance submitted", "user_id", sub.UserID, "checkout", sub.IsCheckout, "status", rec.Status)
	return rec, e.leave(StateCompleted, nil)
}

// Run drives a whole attempt from idle to completed.
func (e *Engine) Run(ctx context.Context, user *userentity.PublicUser, method string, checkout bool, status string) (*entity.RecordView, error) {
	var err error
	if checkout {
		err = e.BeginCheckOut(ctx, user, method)
	} else {
		err = e.BeginCheckIn(ctx, user, method)
	}
	if err != nil {
		return nil, err
	}
	if err := e.AcquireLocation(ctx); err != nil {
		return nil, err
	}
	if e.State() == StateAwaitingCapture {
		if err := e.CaptureFace(ctx); err != nil {
			return nil, err
		}
	}
	return e.Submit(ctx, status)
}
