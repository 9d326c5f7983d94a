// Package config holds the immutable simulation configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"snake-sim/game/types"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid config")

// Config is passed by value into the driver. Several simulations with different
// grids can coexist because nothing here is global.
type Config struct {
	ScreenWidth  int `json:"screen_width"`
	ScreenHeight int `json:"screen_height"`

	FieldPosition types.Pixel `json:"field_position"`
	FieldBorder   int         `json:"field_border"`
	FieldWidth    int         `json:"field_width"`
	FieldHeight   int         `json:"field_height"`
	SegmentSize   int         `json:"segment_size"`

	InitialSnake     []types.Cell    `json:"initial_snake"`
	InitialDirection types.Direction `json:"initial_direction"`

	// Ticks per second in visual mode. Headless runs ignore it.
	TickRate int `json:"tick_rate"`

	SnakeColor    types.Color `json:"snake_color"`
	FoodColor     types.Color `json:"food_color"`
	BorderColor   types.Color `json:"border_color"`
	WallRayColor  types.Color `json:"wall_ray_color"`
	SelfRayColor  types.Color `json:"self_ray_color"`
	BackdropColor types.Color `json:"backdrop_color"`
}

// Default returns the classic 40x45 field with 15 pixel segments
func Default() Config {
	return Config{
		ScreenWidth:      1280,
		ScreenHeight:     720,
		FieldPosition:    types.Pixel{X: 660, Y: 20},
		FieldBorder:      5,
		FieldWidth:       40,
		FieldHeight:      45,
		SegmentSize:      15,
		InitialSnake:     []types.Cell{{X: 1, Y: 1}, {X: 1, Y: 1}},
		InitialDirection: types.Down,
		TickRate:         10,
		SnakeColor:       types.Color{R: 255, G: 255, B: 255},
		FoodColor:        types.Color{R: 255, G: 0, B: 0},
		BorderColor:      types.Color{R: 255, G: 255, B: 255},
		WallRayColor:     types.Color{R: 0, G: 255, B: 0},
		SelfRayColor:     types.Color{R: 0, G: 0, B: 255},
		BackdropColor:    types.Color{R: 0, G: 0, B: 0},
	}
}

// Grid returns the field dimensions in cells
func (c Config) Grid() types.Grid {
	return types.Grid{Width: c.FieldWidth, Height: c.FieldHeight}
}

// FieldOrigin is the pixel of the top-left corner of cell (0,0)
func (c Config) FieldOrigin() types.Pixel {
	return types.Pixel{X: c.FieldPosition.X + c.FieldBorder, Y: c.FieldPosition.Y + c.FieldBorder}
}

// HalfCell uses integer division; odd segment sizes lose a pixel.
func (c Config) HalfCell() int {
	return c.SegmentSize / 2
}

// WithField returns a copy with a different grid size
func (c Config) WithField(width, height int) Config {
	c.FieldWidth = width
	c.FieldHeight = height
	return c
}

// WithInitialSnake returns a copy with a different starting body and direction
func (c Config) WithInitialSnake(body []types.Cell, dir types.Direction) Config {
	c.InitialSnake = append([]types.Cell(nil), body...)
	c.InitialDirection = dir
	return c
}

func (c Config) Validate() error {
	if c.FieldWidth <= 0 || c.FieldHeight <= 0 {
		return fmt.Errorf("%w: field %dx%d", ErrInvalidConfig, c.FieldWidth, c.FieldHeight)
	}
	if c.SegmentSize <= 0 {
		return fmt.Errorf("%w: segment size %d", ErrInvalidConfig, c.SegmentSize)
	}
	if c.TickRate <= 0 {
		return fmt.Errorf("%w: tick rate %d", ErrInvalidConfig, c.TickRate)
	}
	if len(c.InitialSnake) < 2 {
		return fmt.Errorf("%w: initial snake needs at least 2 segments, got %d", ErrInvalidConfig, len(c.InitialSnake))
	}
	grid := c.Grid()
	for i, cell := range c.InitialSnake {
		if !grid.Contains(cell) {
			return fmt.Errorf("%w: initial segment %d at (%d,%d) is outside the field", ErrInvalidConfig, i, cell.X, cell.Y)
		}
	}
	switch c.InitialDirection {
	case types.Up, types.Right, types.Down, types.Left:
	default:
		return fmt.Errorf("%w: initial direction %v", ErrInvalidConfig, c.InitialDirection)
	}
	return nil
}

// Load reads a JSON file and overlays it on the defaults. Missing keys keep
// their default value.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
