// Package game drives the simulation: it asks a controller for input, advances
// the state one tick at a time, recomputes the sensors and hands each frame to
// a presenter.
package game

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"snake-sim/game/config"
	"snake-sim/game/controller"
	"snake-sim/game/manager"
	"snake-sim/game/rng"
	"snake-sim/game/sensors"
	"snake-sim/game/types"
)

// Frame is what a presenter receives when a game starts, after every tick and
// when fixed-seed mode changes. Readings is nil once the game is over.
type Frame struct {
	Snake     []types.Cell
	Food      types.Cell
	Direction types.Direction
	Score     int
	MoveCount int
	Phase     manager.Phase
	Cause     manager.CollisionType
	Seed      uint64
	FixedSeed bool
	Readings  *sensors.Readings
}

// Presenter renders frames. Headless runs use NopPresenter.
type Presenter interface {
	Present(Frame)
}

type NopPresenter struct{}

func (NopPresenter) Present(Frame) {}

type Option func(*Driver)

// WithSeed fixes the seed of the first game. Without it a seed is drawn from
// system entropy.
func WithSeed(seed uint64) Option {
	return func(d *Driver) {
		d.seed = seed
		d.seeded = true
	}
}

// WithFixedSeed makes every reset reuse the original seed
func WithFixedSeed(fixed bool) Option {
	return func(d *Driver) { d.fixedSeed = fixed }
}

func WithController(c controller.Controller) Option {
	return func(d *Driver) { d.controller = c }
}

func WithPresenter(p Presenter) Option {
	return func(d *Driver) { d.presenter = p }
}

func WithLogger(l *log.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// WithMaxMoves stops headless runs that never collide. Zero means no limit.
func WithMaxMoves(n int) Option {
	return func(d *Driver) { d.maxMoves = n }
}

// Driver owns one simulation. It is not safe for concurrent use; run independent
// simulations on independent drivers.
type Driver struct {
	cfg          config.Config
	stateManager *manager.StateManager

	seed      uint64
	seeded    bool
	fixedSeed bool
	maxMoves  int

	state    *manager.State
	readings *sensors.Readings

	controller controller.Controller
	presenter  Presenter
	logger     *log.Logger

	started time.Time
}

// NewDriver validates the config and starts the first game
func NewDriver(cfg config.Config, opts ...Option) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Driver{
		cfg:          cfg,
		stateManager: manager.NewStateManager(cfg),
		controller:   controller.Keep{},
		presenter:    NopPresenter{},
		logger:       log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(d)
	}
	if !d.seeded {
		d.seed = rng.NewSeed()
	}

	d.start(rng.New(d.seed))
	return d, nil
}

func (d *Driver) start(r *rng.RNG) {
	d.state = d.stateManager.NewState(r)
	d.started = time.Now()
	d.refreshSensors()
	d.logger.Debug("game started", "seed", d.seed, "fixed_seed", d.fixedSeed)
	d.present()
}

// present skips the snapshot copy for headless runs
func (d *Driver) present() {
	if _, nop := d.presenter.(NopPresenter); nop {
		return
	}
	d.presenter.Present(d.Snapshot())
}

// Reset replaces the state with a fresh Playing one. In fixed-seed mode the RNG
// is reseeded with the original seed, otherwise a new seed is drawn.
func (d *Driver) Reset() {
	seed := d.seed
	if !d.fixedSeed {
		seed = rng.NewSeed()
	}
	d.ResetWithSeed(seed)
}

// ResetWithSeed starts a new game with the given seed. It becomes the seed that
// fixed-seed mode reuses.
func (d *Driver) ResetWithSeed(seed uint64) {
	d.seed = seed
	r := d.state.RNG
	r.Reseed(seed)
	d.start(r)
}

func (d *Driver) SetFixedSeed(fixed bool) {
	d.fixedSeed = fixed
	d.present()
}

func (d *Driver) FixedSeed() bool {
	return d.fixedSeed
}

func (d *Driver) SetController(c controller.Controller) {
	d.controller = c
}

func (d *Driver) Config() config.Config {
	return d.cfg
}

func (d *Driver) Seed() uint64 {
	return d.seed
}

func (d *Driver) Phase() manager.Phase {
	return d.state.Phase
}

// Readings returns the sensors for the current head, or nil after game over
func (d *Driver) Readings() *sensors.Readings {
	return d.readings
}

// State exposes the live state for read-only inspection
func (d *Driver) State() *manager.State {
	return d.state
}

func (d *Driver) refreshSensors() {
	if d.state.Phase != manager.Playing {
		d.readings = nil
		return
	}
	r := sensors.Compute(d.cfg, d.state)
	d.readings = &r
}

// Tick runs one atomic simulation step: input, movement and collisions, food
// placement, sensors. Nothing happens once the game is over.
func (d *Driver) Tick() manager.TickEvent {
	if d.state.Phase == manager.GameOver {
		return manager.TickEvent{Direction: d.state.Direction, Collision: d.state.Cause}
	}

	requested := d.controller.NextDirection(d.readings, d.state.MoveCount)
	event := d.stateManager.AdvanceTick(d.state, requested)
	d.refreshSensors()
	d.present()

	if event.Collision != manager.NoCollision {
		d.logger.Debug("game over",
			"seed", d.seed,
			"score", d.state.Score,
			"moves", d.state.MoveCount,
			"cause", event.Collision,
		)
	}
	return event
}

// Snapshot copies the state into a Frame
func (d *Driver) Snapshot() Frame {
	body := make([]types.Cell, len(d.state.Snake.Body))
	copy(body, d.state.Snake.Body)
	return Frame{
		Snake:     body,
		Food:      d.state.Food,
		Direction: d.state.Direction,
		Score:     d.state.Score,
		MoveCount: d.state.MoveCount,
		Phase:     d.state.Phase,
		Cause:     d.state.Cause,
		Seed:      d.seed,
		FixedSeed: d.fixedSeed,
		Readings:  d.readings,
	}
}

// Run ticks at the configured rate and presents every frame until the context
// is cancelled. Game over does not end the loop; the caller decides when to
// Reset.
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(d.cfg.TickRate))
	defer ticker.Stop()

	d.present()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.Tick()
		}
	}
}
