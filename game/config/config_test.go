package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"snake-sim/game/types"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if o := cfg.FieldOrigin(); o != (types.Pixel{X: 665, Y: 25}) {
		t.Fatalf("origin = %v", o)
	}
	if cfg.HalfCell() != 7 {
		t.Fatalf("half cell = %d", cfg.HalfCell())
	}
}

func TestValidateRejects(t *testing.T) {
	tests := map[string]Config{
		"short snake":   Default().WithInitialSnake([]types.Cell{{X: 1, Y: 1}}, types.Down),
		"outside field": Default().WithInitialSnake([]types.Cell{{X: 40, Y: 1}, {X: 39, Y: 1}}, types.Right),
		"no direction":  Default().WithInitialSnake([]types.Cell{{X: 1, Y: 1}, {X: 1, Y: 1}}, types.None),
		"empty field":   Default().WithField(0, 10),
	}
	for name, cfg := range tests {
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%s: err = %v, want ErrInvalidConfig", name, err)
		}
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"field_width": 20, "field_height": 10, "initial_direction": "RIGHT", "initial_snake": [{"X": 2, "Y": 2}, {"X": 1, "Y": 2}]}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.FieldWidth != 20 || cfg.FieldHeight != 10 || cfg.InitialDirection != types.Right {
		t.Fatalf("overlay not applied: %+v", cfg)
	}
	if cfg.SegmentSize != 15 || cfg.TickRate != 10 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}
