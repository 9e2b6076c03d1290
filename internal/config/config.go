// Package config holds the physical constants and tuning knobs of the
// simulation. Defaults reproduce the classroom demo; a JSON file can
// override any subset of them.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

const maxFileSize = 1 << 20 // 1MB

// Config is the complete simulation configuration. Fields omitted from a JSON
// file keep their default values.
type Config struct {
	// Physics
	SpeedOfSound     float64 `json:"speed_of_sound"`     // m/s
	MetersPerPercent float64 `json:"meters_per_percent"` // metres per track-percent
	PositionScale    float64 `json:"position_scale"`     // animation speed-up of source motion

	// Wavefronts
	WaveLifetime         float64 `json:"wave_lifetime_seconds"`
	FrequencyScaleFactor float64 `json:"frequency_scale_factor"` // emission period = scale/f
	MaxWavefronts        int     `json:"max_wavefronts"`

	// Echoes
	ReflectionWindow float64 `json:"reflection_window"` // fraction of WaveLifetime; 0 disables the gate

	// Shockwave
	ConeWidth            float64 `json:"cone_width_percent"`
	ProximityThreshold   float64 `json:"proximity_threshold_percent"`
	MinShockwaveInterval float64 `json:"min_shockwave_interval_seconds"`

	// Audio
	MinDistance      float64 `json:"min_distance_meters"`
	SilenceThreshold float64 `json:"silence_threshold_meters"`

	// Initial state and input fallbacks
	DefaultSpeed     float64 `json:"default_speed"`
	MaxSpeed         float64 `json:"max_speed"` // speed inputs above this are clamped
	DefaultFrequency float64 `json:"default_frequency"`
	MinFrequency     float64 `json:"min_frequency"`
	InitialSource    float64 `json:"initial_source_percent"`
	InitialObserver  float64 `json:"initial_observer_percent"`

	// MaxTick caps a single Advance step so a stalled frame cannot teleport
	// the source or skip a cone crossing.
	MaxTick Duration `json:"max_tick"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		SpeedOfSound:         343,
		MetersPerPercent:     3.43,
		PositionScale:        1.5,
		WaveLifetime:         2,
		FrequencyScaleFactor: 1000,
		MaxWavefronts:        1000,
		ReflectionWindow:     0.15,
		ConeWidth:            30,
		// 0.95rem marker on a 1000px track, five markers wide.
		ProximityThreshold:   (0.95 * 16 / 1000) * 100 * 5,
		MinShockwaveInterval: 5,
		MinDistance:          1,
		SilenceThreshold:     20,
		DefaultSpeed:         25,
		MaxSpeed:             2000,
		DefaultFrequency:     400,
		MinFrequency:         1,
		InitialSource:        50,
		InitialObserver:      50,
		MaxTick:              Duration(250 * time.Millisecond),
	}
}

// Load reads a JSON config file and overlays it onto Default. The file must
// have a .json extension and be under 1MB.
func Load(path string) (Config, error) {
	cfg := Default()

	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return cfg, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return cfg, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Validate checks that every value is usable by the engine.
func (c Config) Validate() error {
	positive := []struct {
		name string
		v    float64
	}{
		{"speed_of_sound", c.SpeedOfSound},
		{"meters_per_percent", c.MetersPerPercent},
		{"position_scale", c.PositionScale},
		{"wave_lifetime_seconds", c.WaveLifetime},
		{"frequency_scale_factor", c.FrequencyScaleFactor},
		{"cone_width_percent", c.ConeWidth},
		{"proximity_threshold_percent", c.ProximityThreshold},
		{"min_distance_meters", c.MinDistance},
		{"silence_threshold_meters", c.SilenceThreshold},
		{"default_frequency", c.DefaultFrequency},
		{"min_frequency", c.MinFrequency},
		{"max_speed", c.MaxSpeed},
	}
	for _, p := range positive {
		if !(p.v > 0) || math.IsInf(p.v, 0) {
			return fmt.Errorf("%w: %s must be a positive finite number, got %v", ErrInvalid, p.name, p.v)
		}
	}
	if c.MaxWavefronts <= 0 {
		return fmt.Errorf("%w: max_wavefronts must be positive, got %d", ErrInvalid, c.MaxWavefronts)
	}
	if c.ReflectionWindow < 0 || math.IsNaN(c.ReflectionWindow) {
		return fmt.Errorf("%w: reflection_window must be >= 0, got %v", ErrInvalid, c.ReflectionWindow)
	}
	if c.MinShockwaveInterval < 0 || math.IsNaN(c.MinShockwaveInterval) {
		return fmt.Errorf("%w: min_shockwave_interval_seconds must be >= 0, got %v", ErrInvalid, c.MinShockwaveInterval)
	}
	if c.DefaultSpeed < 0 || math.IsNaN(c.DefaultSpeed) || math.IsInf(c.DefaultSpeed, 0) {
		return fmt.Errorf("%w: default_speed must be a finite number >= 0, got %v", ErrInvalid, c.DefaultSpeed)
	}
	if c.DefaultSpeed > c.MaxSpeed {
		return fmt.Errorf("%w: default_speed %v exceeds max_speed %v", ErrInvalid, c.DefaultSpeed, c.MaxSpeed)
	}
	for name, p := range map[string]float64{
		"initial_source_percent":   c.InitialSource,
		"initial_observer_percent": c.InitialObserver,
	} {
		if !(p >= 0 && p < 100) {
			return fmt.Errorf("%w: %s must be in [0, 100), got %v", ErrInvalid, name, p)
		}
	}
	if c.MaxTick <= 0 {
		return fmt.Errorf("%w: max_tick must be positive, got %v", ErrInvalid, c.MaxTick)
	}
	return nil
}

// SpeedOfSoundSim is the speed of sound expressed in track-percent per second.
func (c Config) SpeedOfSoundSim() float64 {
	return c.SpeedOfSound / c.MetersPerPercent
}

// Duration is a time.Duration that reads and writes JSON as a duration
// string such as "250ms".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"250ms\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}
