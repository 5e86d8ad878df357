package fantagal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	intaudio "github.com/tonetxo/fantagal-go/internal/audio"
	"github.com/tonetxo/fantagal-go/internal/gears"
	"github.com/tonetxo/fantagal-go/internal/mixer"
	"github.com/tonetxo/fantagal-go/internal/synth"
)

// GearConfig is one gear of the startup layout.
type GearConfig struct {
	ID       int     `yaml:"id"`
	X        float32 `yaml:"x"`
	Y        float32 `yaml:"y"`
	Radius   float32 `yaml:"radius"`
	Teeth    int     `yaml:"teeth"`
	Material string  `yaml:"material"`
}

// Config is the file form of the platform options.
type Config struct {
	SampleRate       int          `yaml:"sample_rate"`
	FramesPerBuffer  int          `yaml:"frames_per_buffer"`
	Backend          string       `yaml:"backend"`
	FrameRate        float64      `yaml:"frame_rate"`
	ConnectionMargin float32      `yaml:"connection_margin"`
	Enabled          []string     `yaml:"enabled"`
	Selected         string       `yaml:"selected"`
	LogLevel         string       `yaml:"log_level"`
	MIDIPort         string       `yaml:"midi_port"`
	Gears            []GearConfig `yaml:"gears"`
}

// DefaultConfig returns the built-in settings: every engine off, the pad
// selected and the default five gear layout.
func DefaultConfig() Config {
	c := Config{
		SampleRate:       intaudio.DefaultSampleRate,
		FramesPerBuffer:  intaudio.DefaultFramesPerBuffer,
		Backend:          BackendOto,
		FrameRate:        DefaultFrameRate,
		ConnectionMargin: gears.DefaultMargin,
		Selected:         mixer.SlotCriosfera.String(),
		LogLevel:         "info",
	}
	for _, g := range synth.DefaultGears() {
		c.Gears = append(c.Gears, GearConfig{
			ID:       g.ID,
			X:        g.X,
			Y:        g.Y,
			Radius:   g.Radius,
			Teeth:    g.Teeth,
			Material: g.Material.String(),
		})
	}
	return c
}

// LoadConfig reads a YAML file over DefaultConfig. Keys missing from the file
// keep their defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("fantagal: read config: %w", err)
	}
	c, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("fantagal: %s: %w", path, err)
	}
	return c, nil
}

// ParseConfig decodes YAML over DefaultConfig and validates the result.
func ParseConfig(data []byte) (Config, error) {
	c := DefaultConfig()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample_rate %d must be positive", c.SampleRate))
	}
	if c.FramesPerBuffer <= 0 {
		errs = append(errs, fmt.Errorf("frames_per_buffer %d must be positive", c.FramesPerBuffer))
	}
	if c.FrameRate < 0 {
		errs = append(errs, fmt.Errorf("frame_rate %g must not be negative", c.FrameRate))
	}
	if c.ConnectionMargin < 0 {
		errs = append(errs, fmt.Errorf("connection_margin %g must not be negative", c.ConnectionMargin))
	}
	if _, err := NewBackend(c.Backend); err != nil {
		errs = append(errs, err)
	}
	for _, name := range c.Enabled {
		if _, ok := mixer.ParseSlot(name); !ok {
			errs = append(errs, fmt.Errorf("enabled: unknown engine %q", name))
		}
	}
	if _, ok := mixer.ParseSlot(c.Selected); !ok {
		errs = append(errs, fmt.Errorf("selected: unknown engine %q", c.Selected))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	seen := map[int]bool{}
	for _, g := range c.Gears {
		if seen[g.ID] {
			errs = append(errs, fmt.Errorf("gears: duplicate id %d", g.ID))
		}
		seen[g.ID] = true
		if _, ok := synth.ParseMaterial(strings.ToLower(g.Material)); !ok {
			errs = append(errs, fmt.Errorf("gears: id %d: unknown material %q", g.ID, g.Material))
		}
		if g.Radius < 0 {
			errs = append(errs, fmt.Errorf("gears: id %d: negative radius", g.ID))
		}
	}
	if len(c.Gears) > 0 && !seen[gears.DriverID] {
		errs = append(errs, fmt.Errorf("gears: driver id %d missing", gears.DriverID))
	}
	return errors.Join(errs...)
}

// Level parses LogLevel; an empty value means info.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

func (c Config) enabledSlots() []mixer.Slot {
	var out []mixer.Slot
	for _, name := range c.Enabled {
		if s, ok := mixer.ParseSlot(name); ok {
			out = append(out, s)
		}
	}
	return out
}

func (c Config) selectedSlot() mixer.Slot {
	s, _ := mixer.ParseSlot(c.Selected)
	return s
}

func (c Config) layout() []gears.Gear {
	out := make([]gears.Gear, 0, len(c.Gears))
	for _, g := range c.Gears {
		m, _ := synth.ParseMaterial(strings.ToLower(g.Material))
		gear := gears.Gear{
			ID:       g.ID,
			X:        g.X,
			Y:        g.Y,
			Radius:   g.Radius,
			Teeth:    g.Teeth,
			Material: m,
		}
		if g.ID != gears.DriverID {
			gear.Depth = gears.Unreachable
		}
		out = append(out, gear)
	}
	return out
}
