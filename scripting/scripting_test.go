package scripting

import (
	"context"
	"errors"
	"testing"
	"time"

	"snake-sim/game"
	"snake-sim/game/config"
	"snake-sim/game/entity"
	"snake-sim/game/manager"
	"snake-sim/game/rng"
	"snake-sim/game/sensors"
	"snake-sim/game/types"
)

func readings(t *testing.T) *sensors.Readings {
	t.Helper()
	cfg := config.Default()
	state := &manager.State{
		Snake:      entity.NewSnake([]types.Cell{{X: 5, Y: 5}, {X: 5, Y: 6}}),
		Direction:  types.Up,
		Food:       types.Cell{X: 5, Y: 2},
		FoodPlaced: true,
		RNG:        rng.New(1),
	}
	r := sensors.Compute(cfg, state)
	return &r
}

func TestScriptDirections(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   types.Direction
	}{
		{"name", `function nextDirection(s, tick) { return "LEFT"; }`, types.Left},
		{"letter", `function nextDirection(s, tick) { return "u"; }`, types.Up},
		{"undefined", `function nextDirection(s, tick) {}`, types.None},
		{"empty", `function nextDirection(s, tick) { return ""; }`, types.None},
		{"uses sensors", `function nextDirection(s, tick) { return s.food.up.distance > 0 ? "UP" : "DOWN"; }`, types.Up},
		{"uses tick", `function nextDirection(s, tick) { return tick === 3 ? "R" : null; }`, types.Right},
		{"uses direction", `function nextDirection(s, tick) { return s.direction === "UP" ? "LEFT" : "DOWN"; }`, types.Left},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.source)
			if err != nil {
				t.Fatal(err)
			}
			if got := c.NextDirection(readings(t), 3); got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			if c.Err() != nil {
				t.Fatalf("unexpected error %v", c.Err())
			}
		})
	}
}

func TestScriptFailuresMeanNoPreference(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"throws", `function nextDirection() { throw new Error("boom"); }`},
		{"bad answer", `function nextDirection() { return "sideways"; }`},
		{"runaway", `function nextDirection() { for (;;) {} }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.source, WithCallTimeout(50*time.Millisecond))
			if err != nil {
				t.Fatal(err)
			}
			if got := c.NextDirection(readings(t), 0); got != types.None {
				t.Fatalf("got %v, want NONE", got)
			}
			if c.Err() == nil {
				t.Fatalf("error not recorded")
			}
		})
	}
}

func TestRuntimeUsableAfterTimeout(t *testing.T) {
	c, err := New(`function nextDirection(s, tick) { if (tick === 0) { for (;;) {} } return "DOWN"; }`,
		WithCallTimeout(50*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	c.NextDirection(readings(t), 0)
	if got := c.NextDirection(readings(t), 1); got != types.Down {
		t.Fatalf("after timeout got %v, want DOWN", got)
	}
}

func TestNewRequiresEntryPoint(t *testing.T) {
	if _, err := New(`var x = 1;`); !errors.Is(err, ErrNoEntryPoint) {
		t.Fatalf("err = %v, want ErrNoEntryPoint", err)
	}
	if _, err := New(`function (`); err == nil {
		t.Fatalf("syntax error not reported")
	}
}

func TestScriptDrivesGame(t *testing.T) {
	c, err := New(`function nextDirection(s, tick) { return "RIGHT"; }`)
	if err != nil {
		t.Fatal(err)
	}
	res, err := game.RunController(context.Background(), config.Default(), ptr(7), c)
	if err != nil {
		t.Fatal(err)
	}
	if !res.GameOver || res.Cause != manager.WallCollision || res.Moves != 39 {
		t.Fatalf("result %+v", res)
	}
}

func ptr(v uint64) *uint64 { return &v }
