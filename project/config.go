package project

import (
	"math"
	"os"

	"github.com/LdDl/mor-go/mor"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the project configuration stored in .morris/project.yaml
type Config struct {
	Name string `yaml:"name"`
	// ScaleFactor is pixels per metre, 0 means uncalibrated
	ScaleFactor    float64        `yaml:"scale_factor"`
	Compass        map[string]any `yaml:"compass,omitempty"`
	ExportSettings map[string]any `yaml:"export_settings"`
	// CoordType is the encoding for containers created by the project
	CoordType string `yaml:"coord_type,omitempty"`
	// FPS is the frame rate for statistics when none is given explicitly, 0 means the stats default
	FPS float64 `yaml:"fps,omitempty"`
}

// DefaultConfig returns configuration of a freshly created project
func DefaultConfig(name string) Config {
	return Config{
		Name:           name,
		ExportSettings: map[string]any{},
	}
}

// Validate checks numeric ranges and coordinate type name
func (cfg Config) Validate() error {
	if cfg.ScaleFactor < 0 || math.IsNaN(cfg.ScaleFactor) || math.IsInf(cfg.ScaleFactor, 0) {
		return errors.Errorf("scale_factor must be non-negative, got %v", cfg.ScaleFactor)
	}
	if cfg.FPS < 0 || math.IsNaN(cfg.FPS) || math.IsInf(cfg.FPS, 0) {
		return errors.Errorf("fps must be non-negative, got %v", cfg.FPS)
	}
	if _, err := cfg.Coord(); err != nil {
		return err
	}
	return nil
}

// Coord returns coordinate type for new containers
func (cfg Config) Coord() (mor.CoordType, error) {
	if cfg.CoordType == "" {
		return mor.DefaultCoordType, nil
	}
	coordType, err := mor.ParseCoordType(cfg.CoordType)
	if err != nil {
		return 0, errors.Wrap(err, "bad coord_type")
	}
	return coordType, nil
}

// Calibrated reports whether pixel distances can be converted into metres
func (cfg Config) Calibrated() bool {
	return cfg.ScaleFactor > 0
}

// PixelsToMetres converts distance when calibrated and returns px as is otherwise
func (cfg Config) PixelsToMetres(px float64) float64 {
	if cfg.Calibrated() {
		return px / cfg.ScaleFactor
	}
	return px
}

// StatsParams fills frame rate and pixels per metre left unset (zero) by the caller from the configuration
func (cfg Config) StatsParams(fps, pixelsPerMetre float64) (float64, float64) {
	if fps <= 0 {
		fps = cfg.FPS
	}
	if pixelsPerMetre == 0 && cfg.Calibrated() {
		pixelsPerMetre = cfg.ScaleFactor
	}
	return fps, pixelsPerMetre
}

// LoadConfig reads configuration file. Missing file gives DefaultConfig(defaultName).
func LoadConfig(path, defaultName string) (Config, error) {
	cfg := DefaultConfig(defaultName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.Wrapf(err, "can't read %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(defaultName), errors.Wrapf(err, "can't parse %s", path)
	}
	if cfg.Name == "" {
		cfg.Name = defaultName
	}
	if cfg.ExportSettings == nil {
		cfg.ExportSettings = map[string]any{}
	}
	if err := cfg.Validate(); err != nil {
		return DefaultConfig(defaultName), errors.Wrapf(err, "invalid %s", path)
	}
	return cfg, nil
}

// SaveConfig writes configuration over the existing file. Unknown keys are kept,
// and so are optional keys left empty in cfg.
func SaveConfig(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	document := map[string]any{}
	if data, err := os.ReadFile(path); err == nil {
		// An unreadable file is replaced
		if yaml.Unmarshal(data, &document) != nil || document == nil {
			document = map[string]any{}
		}
	}

	known, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "can't encode config")
	}
	fields := map[string]any{}
	if err := yaml.Unmarshal(known, &fields); err != nil {
		return errors.Wrap(err, "can't encode config")
	}
	for key, value := range fields {
		document[key] = value
	}

	data, err := yaml.Marshal(document)
	if err != nil {
		return errors.Wrap(err, "can't encode config")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "can't write %s", path)
	}
	return nil
}
