package fantagal

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tonetxo/fantagal-go/internal/gears"
	"github.com/tonetxo/fantagal-go/internal/mixer"
	"github.com/tonetxo/fantagal-go/internal/synth"
)

func TestDefaultConfigIsValid(t *testing.T) {
	c := DefaultConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(c.Enabled) != 0 {
		t.Fatalf("enabled = %v, want none", c.Enabled)
	}
	if len(c.Gears) != 5 || c.Gears[0].Material != "iron" {
		t.Fatalf("gears = %+v", c.Gears)
	}
}

func TestParseConfigOverridesDefaults(t *testing.T) {
	src := `
sample_rate: 44100
backend: headless
enabled: [gearheart, Breitema]
selected: vocoder
log_level: debug
gears:
  - {id: 0, x: 0, y: 0, radius: 100, teeth: 14, material: iron}
  - {id: 1, x: 170, y: 0, radius: 60, teeth: 8, material: Gold}
`
	c, err := ParseConfig([]byte(src))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if c.SampleRate != 44100 || c.FramesPerBuffer != 256 {
		t.Fatalf("rates = %d/%d", c.SampleRate, c.FramesPerBuffer)
	}
	slots := c.enabledSlots()
	if len(slots) != 2 || slots[0] != mixer.SlotGearheart || slots[1] != mixer.SlotBreitema {
		t.Fatalf("slots = %v", slots)
	}
	if c.selectedSlot() != mixer.SlotVocoder {
		t.Fatalf("selected = %v", c.selectedSlot())
	}
	if lvl, _ := c.Level(); lvl != slog.LevelDebug {
		t.Fatalf("level = %v", lvl)
	}
	gs := c.layout()
	if len(gs) != 2 || gs[1].Material != synth.MaterialGold || gs[1].Depth != gears.Unreachable || gs[0].Depth != 0 {
		t.Fatalf("layout = %+v", gs)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	c := DefaultConfig()
	c.SampleRate = 0
	c.Backend = "jack"
	c.Enabled = []string{"theremin"}
	c.LogLevel = "loud"
	c.Gears = append(c.Gears, GearConfig{ID: 1, Material: "wood", Radius: -1})
	err := c.Validate()
	if err == nil {
		t.Fatal("invalid config accepted")
	}
	if !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("backend error not wrapped: %v", err)
	}
	for _, want := range []string{"sample_rate", "theremin", "log_level", "duplicate id 1", "wood", "negative radius"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestValidateRequiresDriver(t *testing.T) {
	c := DefaultConfig()
	c.Gears = c.Gears[1:]
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "driver") {
		t.Fatalf("err = %v", err)
	}
	c.Gears = nil
	if err := c.Validate(); err != nil {
		t.Fatalf("empty layout should fall back to defaults: %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fantagal.yaml")
	if err := os.WriteFile(path, []byte("frames_per_buffer: 512\nmidi_port: Keystation\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if c.FramesPerBuffer != 512 || c.MIDIPort != "Keystation" || c.SampleRate != 48000 {
		t.Fatalf("config = %+v", c)
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("missing file err = %v", err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("sample_rate: [1, 2]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(bad); err == nil {
		t.Fatal("malformed yaml accepted")
	}
}

func TestEmptyLogLevelIsInfo(t *testing.T) {
	c := Config{}
	if lvl, err := c.Level(); err != nil || lvl != slog.LevelInfo {
		t.Fatalf("level = %v, %v", lvl, err)
	}
}
