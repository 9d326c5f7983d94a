// Package controller defines how a manual player, a recorded script or a policy
// supplies the direction for the next tick.
package controller

import (
	"sync"

	"snake-sim/game/rng"
	"snake-sim/game/sensors"
	"snake-sim/game/types"
)

// Controller returns the requested direction for the given tick, or types.None
// for no preference. readings describe the state before the tick. It must not
// block and must not touch the simulation state.
type Controller interface {
	NextDirection(readings *sensors.Readings, tick int) types.Direction
}

// Func adapts a plain function to a Controller
type Func func(readings *sensors.Readings, tick int) types.Direction

func (f Func) NextDirection(readings *sensors.Readings, tick int) types.Direction {
	return f(readings, tick)
}

// Keep never asks for a change of direction
type Keep struct{}

func (Keep) NextDirection(*sensors.Readings, int) types.Direction {
	return types.None
}

// Script replays a finite list of directions indexed by tick. Once the list is
// exhausted it defers to Fallback, or keeps the current direction if Fallback
// is nil.
type Script struct {
	Moves    []types.Direction
	Fallback Controller
}

func NewScript(moves []types.Direction) *Script {
	return &Script{Moves: append([]types.Direction(nil), moves...)}
}

func (s *Script) NextDirection(readings *sensors.Readings, tick int) types.Direction {
	if tick >= 0 && tick < len(s.Moves) {
		return s.Moves[tick]
	}
	if s.Fallback != nil {
		return s.Fallback.NextDirection(readings, tick)
	}
	return types.None
}

// Manual latches the last direction pressed by the player. The latch is
// consumed by the next tick. Press may be called from an input goroutine.
type Manual struct {
	mu      sync.Mutex
	pending types.Direction
}

func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) Press(d types.Direction) {
	m.mu.Lock()
	m.pending = d
	m.mu.Unlock()
}

func (m *Manual) NextDirection(*sensors.Readings, int) types.Direction {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.pending
	m.pending = types.None
	return d
}

// Random is the "random play" policy. While its current heading is safe it
// turns with probability TurnChance; otherwise it must pick another heading. A
// heading is safe when its wall and self rays reach further than one cell.
// The reverse heading is never a candidate. It owns its RNG, so two Random
// controllers never share a sequence.
type Random struct {
	rng         *rng.RNG
	TurnChance  float64
	SegmentSize int
}

func NewRandom(seed uint64, segmentSize int) *Random {
	return &Random{
		rng:         rng.New(seed),
		TurnChance:  0.2,
		SegmentSize: segmentSize,
	}
}

func (r *Random) safe(readings *sensors.Readings, d types.Direction) bool {
	h := types.HeadingOf(d)
	limit := float64(r.SegmentSize)
	return readings.Walls[h].Distance > limit && readings.Self[h].Distance > limit
}

func (r *Random) NextDirection(readings *sensors.Readings, _ int) types.Direction {
	if readings == nil {
		return types.None
	}

	current := readings.Direction
	candidates := make([]types.Direction, 0, len(types.Directions))
	for _, d := range types.Directions {
		if current != types.None && d == current.Opposite() {
			continue
		}
		if r.safe(readings, d) {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) == 0 {
		return types.None
	}
	if current != types.None && r.safe(readings, current) && r.rng.Float64() >= r.TurnChance {
		return types.None
	}
	return candidates[r.rng.Intn(len(candidates))]
}
