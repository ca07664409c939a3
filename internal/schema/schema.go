// Package schema validates request payloads against the versioned JSON
// Schemas embedded under v1/.
package schema

import (
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/apperror"
)

const (
	Register         = "register"
	Login            = "login"
	ProfileUpdate    = "profile_update"
	PasswordChange   = "password_change"
	EmployeeCreate   = "employee_create"
	AttendanceSubmit = "attendance_submit"
	BusinessHours    = "business_hours"
)

// MaxBodyBytes caps every JSON request body.
const MaxBodyBytes = 1 << 20

//go:embed v1/*.json
var files embed.FS

var (
	loadOnce sync.Once
	compiled map[string]*gojsonschema.Schema
	loadErr  error
)

var ErrInvalidPayload = apperror.New(apperror.KindValidation, "invalid_payload", "request body failed validation")

func load() {
	compiled = map[string]*gojsonschema.Schema{}
	entries, err := files.ReadDir("v1")
	if err != nil {
		loadErr = err
		return
	}
	for _, e := range entries {
		raw, err := files.ReadFile(path.Join("v1", e.Name()))
		if err != nil {
			loadErr = err
			return
		}
		s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			loadErr = fmt.Errorf("compile %s: %w", e.Name(), err)
			return
		}
		compiled[strings.TrimSuffix(e.Name(), ".json")] = s
	}
}

// Load compiles the embedded schemas once; callers at start-up use it to
// fail fast on a broken schema.
func Load() error {
	loadOnce.Do(load)
	return loadErr
}

// Validate checks raw JSON against the named schema. Violations come back as
// ErrInvalidPayload with one detail per failing field.
func Validate(name string, raw []byte) error {
	if err := Load(); err != nil {
		return err
	}
	s, ok := compiled[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}
	res, err := s.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		// not parseable as JSON at all
		return apperror.WithDetails(ErrInvalidPayload, []string{"body must be a JSON document"})
	}
	if !res.Valid() {
		d := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			d = append(d, e.String())
		}
		return apperror.WithDetails(ErrInvalidPayload, d)
	}
	return nil
}

// Decode reads the request body, validates it against the named schema and
// unmarshals it into v.
func Decode(r *http.Request, name string, v any) error {
	raw, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	if err != nil {
		return apperror.WithDetails(ErrInvalidPayload, []string{"unreadable body"})
	}
	if len(raw) > MaxBodyBytes {
		return apperror.WithDetails(ErrInvalidPayload, []string{"body too large"})
	}
	if err := Validate(name, raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperror.WithDetails(ErrInvalidPayload, []string{err.Error()})
	}
	return nil
}
