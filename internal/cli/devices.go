package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/workflow"
)

// StaticLocator reports a configured position.
type StaticLocator struct {
	Lat, Lng float64
}

func (l StaticLocator) Locate(ctx context.Context) (float64, float64, error) {
	return l.Lat, l.Lng, nil
}

// FileCamera stands in for a camera by reading a photo from disk.
type FileCamera struct {
	Path string
}

func (c FileCamera) Capture(ctx context.Context) ([]byte, error) {
	if c.Path == "" {
		return nil, fmt.Errorf("%w: --photo is required for biometric attendance", workflow.ErrCaptureFailed)
	}
	return os.ReadFile(c.Path)
}
