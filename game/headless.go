package game

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"snake-sim/game/config"
	"snake-sim/game/controller"
	"snake-sim/game/manager"
	"snake-sim/game/types"
)

// Result is the outcome of a headless run. History has exactly Moves entries;
// when the game ended by collision the last entry is the fatal move.
type Result struct {
	RunID    string                `json:"run_id"`
	Seed     uint64                `json:"seed"`
	Score    int                   `json:"score"`
	Moves    int                   `json:"moves"`
	History  []types.Direction     `json:"history"`
	GameOver bool                  `json:"game_over"`
	Cause    manager.CollisionType `json:"cause"`
	Started  time.Time             `json:"started"`
	Duration time.Duration         `json:"duration"`
}

// Result reports the current game as a result record
func (d *Driver) Result() Result {
	history := make([]types.Direction, len(d.state.History))
	copy(history, d.state.History)
	return Result{
		RunID:    uuid.New().String(),
		Seed:     d.seed,
		Score:    d.state.Score,
		Moves:    d.state.MoveCount,
		History:  history,
		GameOver: d.state.Phase == manager.GameOver,
		Cause:    d.state.Cause,
		Started:  d.started,
		Duration: time.Since(d.started),
	}
}

// Play ticks back to back, with no pacing, until the game is over, the move
// limit is reached or the context is cancelled. Cancellation is checked only
// between ticks.
func (d *Driver) Play(ctx context.Context) (Result, error) {
	for d.state.Phase == manager.Playing {
		if err := ctx.Err(); err != nil {
			return d.Result(), err
		}
		if d.maxMoves > 0 && d.state.MoveCount >= d.maxMoves {
			d.logger.Debug("move limit reached", "seed", d.seed, "moves", d.state.MoveCount)
			break
		}
		d.Tick()
	}
	return d.Result(), nil
}

// RunHeadless plays one game driven by a script. A nil seed draws one from the
// entropy source. Once the script is exhausted the snake keeps its direction. Collisions
// are reported in the result, never as errors; an error means an invalid config
// or a cancelled context.
func RunHeadless(ctx context.Context, cfg config.Config, seed *uint64, script []types.Direction, opts ...Option) (Result, error) {
	return RunController(ctx, cfg, seed, controller.NewScript(script), opts...)
}

// RunController plays one game with any controller
func RunController(ctx context.Context, cfg config.Config, seed *uint64, c controller.Controller, opts ...Option) (Result, error) {
	all := make([]Option, 0, len(opts)+2)
	all = append(all, opts...)
	all = append(all, WithController(c))
	if seed != nil {
		all = append(all, WithSeed(*seed))
	}

	d, err := NewDriver(cfg, all...)
	if err != nil {
		return Result{}, err
	}
	return d.Play(ctx)
}

// ControllerFactory builds a fresh controller for one batch run
type ControllerFactory func(seed uint64) controller.Controller

// RunBatch plays one independent game per seed on up to workers goroutines.
// Every game gets its own driver, state, RNG and controller. Results are in
// seed order. The first error cancels nothing; runs that failed carry a zero
// Result and the error is returned alongside.
func RunBatch(ctx context.Context, cfg config.Config, seeds []uint64, factory ControllerFactory, workers int, opts ...Option) ([]Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = 1
	}

	results := make([]Result, len(seeds))
	jobs := make(chan int)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				seed := seeds[i]
				res, err := RunController(ctx, cfg, &seed, factory(seed), opts...)
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					continue
				}
				results[i] = res
			}
		}()
	}

	for i := range seeds {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results, firstErr
}
