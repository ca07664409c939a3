package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/apperror"
)

const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the server refused the operation
	ExitCommandError = 2 // bad flags, config or local state
	ExitUnavailable  = 3 // server or upstream unreachable
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode picks the exit code for err. Unclassified errors map by kind.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	e, ok := apperror.As(err)
	if !ok {
		return ExitCommandError
	}
	switch e.Kind {
	case apperror.KindExternal, apperror.KindStore:
		return ExitUnavailable
	default:
		return ExitFailure
	}
}

// Describe renders err for a terminal, including any field details.
func Describe(err error) string {
	prefix := ""
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err == nil {
			return exitErr.Message
		}
		prefix = exitErr.Message + ": "
	}
	e, ok := apperror.As(err)
	if !ok {
		return err.Error()
	}
	s := fmt.Sprintf("%s%s (%s)", prefix, e.Message, e.Code)
	for _, d := range e.Details {
		s += "\n  - " + d
	}
	return s
}

// Printer writes either indented JSON or a caller-supplied text form.
type Printer struct {
	Format string
	W      io.Writer
}

func (p Printer) Print(v any, text func(w io.Writer)) error {
	if p.Format == "json" {
		enc := json.NewEncoder(p.W)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(p.W)
	return nil
}
