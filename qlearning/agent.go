package qlearning

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"snake-sim/game"
	"snake-sim/game/config"
	"snake-sim/game/manager"
	"snake-sim/game/rng"
	"snake-sim/game/sensors"
	"snake-sim/game/types"
	"snake-sim/stats"
)

// Relative actions
const (
	TurnLeft = iota
	Straight
	TurnRight
	NumActions
)

// SnakeAgent plays through a Learner. It chooses among relative actions, so it
// never requests a reversal, and learns from each observed tick.
type SnakeAgent struct {
	learner     Learner
	segmentSize int
	initial     types.Direction
	heading     types.Direction
	learning    bool

	lastState  []float64
	lastAction int
	pending    bool
}

// NewSnakeAgent creates an agent that starts heading in cfg.InitialDirection
func NewSnakeAgent(learner Learner, cfg config.Config) *SnakeAgent {
	return &SnakeAgent{
		learner:     learner,
		segmentSize: cfg.SegmentSize,
		initial:     cfg.InitialDirection,
		heading:     cfg.InitialDirection,
		learning:    true,
	}
}

// SetLearning turns updates on or off. With learning off the agent only acts.
func (sa *SnakeAgent) SetLearning(on bool) {
	sa.learning = on
}

// Begin prepares the agent for a new game
func (sa *SnakeAgent) Begin(dir types.Direction) {
	sa.heading = dir
	sa.pending = false
	sa.lastState = nil
}

// relativeToAbsolute maps 0 (left), 1 (straight) and 2 (right) to a direction
func relativeToAbsolute(current types.Direction, action int) types.Direction {
	switch action {
	case TurnLeft:
		return current.TurnLeft()
	case TurnRight:
		return current.TurnRight()
	default:
		return current
	}
}

// NextDirection picks a relative action from the heading in readings. Tick 0
// means the driver started a new game.
func (sa *SnakeAgent) NextDirection(readings *sensors.Readings, tick int) types.Direction {
	if tick == 0 {
		sa.Begin(sa.initial)
	}
	if readings == nil {
		return types.None
	}
	if readings.Direction != types.None {
		sa.heading = readings.Direction
	}
	state := readings.Features(sa.heading, sa.segmentSize)
	action := sa.learner.Act(state, NumActions)

	sa.lastState = state
	sa.lastAction = action
	sa.pending = true
	sa.heading = relativeToAbsolute(sa.heading, action)
	return sa.heading
}

// Reward scores the outcome of a tick. next may be nil after a collision.
func Reward(event manager.TickEvent, score int, next []float64) float64 {
	if event.Collision != manager.NoCollision {
		return -2.0
	}
	if event.Ate {
		return 5.0 + 0.2*float64(score)
	}
	reward := -0.005
	if len(next) >= 24 {
		// food straight ahead, walls and body directly in front
		reward += 0.05*next[16] - 0.05*(next[0]+next[8])
	}
	return reward
}

// Observe feeds the outcome of the last decision to the learner
func (sa *SnakeAgent) Observe(event manager.TickEvent, score int, readings *sensors.Readings) {
	sa.heading = event.Direction
	if !sa.pending {
		return
	}
	sa.pending = false

	done := event.Collision != manager.NoCollision
	next := make([]float64, InputFeatures)
	if readings != nil {
		next = readings.Features(sa.heading, sa.segmentSize)
	}
	if sa.learning {
		sa.learner.Learn(sa.lastState, sa.lastAction, Reward(event, score, next), next, done, NumActions)
	}
}

// errReporter is implemented by learners whose updates can fail
type errReporter interface {
	Err() error
}

// TrainOptions control a training session
type TrainOptions struct {
	Episodes int
	Seed     uint64
	// MaxMoves ends episodes that never collide. Zero means no limit.
	MaxMoves  int
	SavePath  string
	SaveEvery int
	Stats     *stats.GameStats
	Logger    *log.Logger
	// OnEpisode is called after each finished episode
	OnEpisode func(episode int, res game.Result)
}

// Train plays Episodes games, learning after every tick. Episode seeds are
// drawn from Seed so a session is reproducible for the tabular learner.
func Train(ctx context.Context, cfg config.Config, learner Learner, opts TrainOptions) ([]game.Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	agent := NewSnakeAgent(learner, cfg)
	seeds := rng.New(opts.Seed)

	d, err := game.NewDriver(cfg,
		game.WithSeed(uint64(seeds.Intn(1<<62))),
		game.WithController(agent),
		game.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	results := make([]game.Result, 0, opts.Episodes)
	bestScore := 0
	for episode := 0; episode < opts.Episodes; episode++ {
		if episode > 0 {
			d.ResetWithSeed(uint64(seeds.Intn(1 << 62)))
		}
		agent.Begin(cfg.InitialDirection)

		for d.Phase() == manager.Playing {
			if err := ctx.Err(); err != nil {
				return results, err
			}
			if opts.MaxMoves > 0 && d.State().MoveCount >= opts.MaxMoves {
				break
			}
			event := d.Tick()
			agent.Observe(event, d.State().Score, d.Readings())
		}

		res := d.Result()
		results = append(results, res)
		if er, ok := learner.(errReporter); ok && er.Err() != nil {
			return results, fmt.Errorf("learner failed in episode %d: %w", episode+1, er.Err())
		}
		learner.IncrementEpisode()
		if opts.Stats != nil {
			opts.Stats.AddGame(res.Score, res.Moves, res.Started, res.Started.Add(res.Duration))
		}
		if res.Score > bestScore {
			bestScore = res.Score
		}
		if opts.OnEpisode != nil {
			opts.OnEpisode(episode, res)
		}
		if (episode+1)%50 == 0 {
			logger.Info("training progress",
				"episode", episode+1,
				"best", bestScore,
				"epsilon", learner.Epsilon(),
			)
		}
		if opts.SavePath != "" && opts.SaveEvery > 0 && (episode+1)%opts.SaveEvery == 0 {
			if err := learner.Save(opts.SavePath); err != nil {
				logger.Error("failed to save learner", "err", err)
			}
		}
	}

	if opts.SavePath != "" {
		if err := learner.Save(opts.SavePath); err != nil {
			return results, err
		}
	}
	return results, nil
}
