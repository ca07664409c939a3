package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/attendance/entity"
	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/client"
)

const DefaultServer = "http://localhost:8431"

// Config is the on-disk attendctl.yaml. Flags override every field.
type Config struct {
	Server      string    `yaml:"server"`
	Timeout     Duration  `yaml:"timeout"`
	SessionFile string    `yaml:"session_file"`
	Method      string    `yaml:"method"`
	Location    *Position `yaml:"location,omitempty"`
}

// Position is a fixed device position for machines without a GPS.
type Position struct {
	Lat float64 `yaml:"lat"`
	Lng float64 `yaml:"lng"`
}

// Duration accepts "15s" style strings in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("timeout: %w", err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func DefaultConfig() Config {
	return Config{
		Server:      DefaultServer,
		Timeout:     Duration(client.DefaultTimeout),
		SessionFile: client.DefaultSessionPath(),
		Method:      entity.MethodManual,
	}
}

// DefaultConfigPath is attendctl.yaml next to the stored session.
func DefaultConfigPath() string {
	return filepath.Join(filepath.Dir(client.DefaultSessionPath()), "attendctl.yaml")
}

// LoadConfig overlays path onto the defaults. A missing file is not an
// error unless required is set.
func LoadConfig(path string, required bool) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Server == "" {
		return errors.New("server must be set")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.Method != entity.MethodManual && c.Method != entity.MethodBiometric {
		return fmt.Errorf("method must be %s or %s", entity.MethodManual, entity.MethodBiometric)
	}
	if p := c.Location; p != nil && (p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180) {
		return errors.New("location out of range")
	}
	return nil
}
