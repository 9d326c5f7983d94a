// Package ui shows a game in a raylib window and feeds the keyboard to a
// manual controller.
package ui

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/charmbracelet/log"
	rl "github.com/gen2brain/raylib-go/raylib"

	"snake-sim/game"
	"snake-sim/game/controller"
	"snake-sim/game/manager"
	"snake-sim/game/types"
)

// Options configure a window session
type Options struct {
	// Renderer must also be the driver's presenter (game.WithPresenter)
	Renderer *Renderer
	// Manual receives arrow and WASD presses. Nil when a policy is playing.
	Manual *controller.Manual
	// OnGameOver is called once per finished game
	OnGameOver func(game.Result)
	Logger     *log.Logger
}

var keyDirections = []struct {
	keys []int32
	dir  types.Direction
}{
	{[]int32{rl.KeyUp, rl.KeyW}, types.Up},
	{[]int32{rl.KeyRight, rl.KeyD}, types.Right},
	{[]int32{rl.KeyDown, rl.KeyS}, types.Down},
	{[]int32{rl.KeyLeft, rl.KeyA}, types.Left},
}

func pressedDirection() types.Direction {
	for _, kd := range keyDirections {
		for _, k := range kd.keys {
			if rl.IsKeyPressed(k) {
				return kd.dir
			}
		}
	}
	return types.None
}

// Run opens the window and plays until it is closed or ctx is cancelled.
// It must be called from the main goroutine.
func Run(ctx context.Context, d *game.Driver, opts Options) error {
	renderer := opts.Renderer
	if renderer == nil {
		return errors.New("ui: a renderer is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	cfg := d.Config()
	rl.InitWindow(int32(cfg.ScreenWidth), int32(cfg.ScreenHeight), "Snake")
	defer rl.CloseWindow()
	rl.SetTargetFPS(60)

	updateInterval := time.Second / time.Duration(cfg.TickRate)
	lastUpdate := time.Now()

	for !rl.WindowShouldClose() {
		if err := ctx.Err(); err != nil {
			return err
		}

		if dir := pressedDirection(); dir != types.None && opts.Manual != nil {
			opts.Manual.Press(dir)
		}
		if rl.IsKeyPressed(rl.KeyF) {
			d.SetFixedSeed(!d.FixedSeed())
			logger.Info("fixed seed", "on", d.FixedSeed(), "seed", d.Seed())
		}
		if rl.IsKeyPressed(rl.KeyR) {
			d.Reset()
			lastUpdate = time.Now()
		}

		if d.Phase() == manager.Playing && time.Since(lastUpdate) >= updateInterval {
			d.Tick()
			lastUpdate = time.Now()
			if d.Phase() == manager.GameOver {
				res := d.Result()
				renderer.RecordScore(res.Score)
				logger.Info("game over", "score", res.Score, "moves", res.Moves, "cause", res.Cause, "seed", res.Seed)
				if opts.OnGameOver != nil {
					opts.OnGameOver(res)
				}
			}
		}

		renderer.Draw()
	}
	return nil
}
