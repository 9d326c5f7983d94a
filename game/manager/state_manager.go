package manager

import (
	"snake-sim/game/config"
	"snake-sim/game/entity"
	"snake-sim/game/rng"
	"snake-sim/game/types"
)

type Phase int

const (
	Playing Phase = iota
	GameOver
)

func (p Phase) String() string {
	if p == GameOver {
		return "game-over"
	}
	return "playing"
}

// UnplacedFood is the off-grid marker stored while no food exists
var UnplacedFood = types.Cell{X: -1, Y: -1}

// State is the whole mutable simulation. It is owned by a single driver and
// replaced entirely on reset.
type State struct {
	Snake     *entity.Snake
	Direction types.Direction // last applied
	Pending   types.Direction // last requested, before resolution
	Score     int
	MoveCount int
	History   []types.Direction

	Food       types.Cell
	FoodPlaced bool

	Phase Phase
	Cause CollisionType

	RNG *rng.RNG
}

// TickEvent describes what a single tick did
type TickEvent struct {
	Direction types.Direction
	Ate       bool
	Collision CollisionType
	Advanced  bool
}

type StateManager struct {
	cfg          config.Config
	collisionMgr *CollisionManager
	foodMgr      *FoodManager
}

func NewStateManager(cfg config.Config) *StateManager {
	grid := cfg.Grid()
	return &StateManager{
		cfg:          cfg,
		collisionMgr: NewCollisionManager(grid),
		foodMgr:      NewFoodManager(grid),
	}
}

// NewState builds a fresh Playing state around the given RNG and places the
// first food immediately.
func (sm *StateManager) NewState(r *rng.RNG) *State {
	state := &State{
		Snake:     entity.NewSnake(sm.cfg.InitialSnake),
		Direction: sm.cfg.InitialDirection,
		Pending:   types.None,
		Food:      UnplacedFood,
		Phase:     Playing,
		Cause:     NoCollision,
		RNG:       r,
	}
	sm.foodMgr.EnsureFoodPlaced(state)
	return state
}

// ResolveDirection applies the reversal rule. A reversal collapses to None for
// this tick only, and only once the snake is moving: a freshly spawned snake
// with stacked segments may turn any way.
func ResolveDirection(state *State, requested types.Direction) types.Direction {
	switch requested {
	case types.Up, types.Right, types.Down, types.Left:
	default:
		return types.None
	}
	if requested == state.Direction.Opposite() && state.Snake.Moving() {
		return types.None
	}
	return requested
}

// AdvanceTick moves the snake one cell and resolves food, wall and self
// collisions. It is a no-op once the game is over. Food is re-placed only
// when the tick leaves the game running.
func (sm *StateManager) AdvanceTick(state *State, requested types.Direction) TickEvent {
	if state.Phase == GameOver {
		return TickEvent{Direction: state.Direction, Collision: state.Cause}
	}

	state.Pending = requested
	if resolved := ResolveDirection(state, requested); resolved != types.None {
		state.Direction = resolved
	}

	event := TickEvent{Direction: state.Direction, Advanced: true}

	newHead := state.Snake.Head().Add(state.Direction.ToPoint())
	state.Snake.Grow(newHead)

	if state.FoodPlaced && newHead == state.Food {
		state.Food = UnplacedFood
		state.FoodPlaced = false
		state.Score++
		event.Ate = true
	} else {
		state.Snake.Shrink()
	}

	state.MoveCount++
	state.History = append(state.History, state.Direction)

	if collision := sm.collisionMgr.Check(state.Snake); collision != NoCollision {
		state.Phase = GameOver
		state.Cause = collision
		event.Collision = collision
		return event
	}

	sm.foodMgr.EnsureFoodPlaced(state)
	return event
}
