// Package sensors projects the 8 compass rays from the snake head to the walls,
// to the nearest body segment and to the food.
//
// All geometry is integer pixel math. The head center is the cell's top-left
// pixel plus SegmentSize/2, so with odd segment sizes the center sits one pixel
// closer to the top-left corner than to the bottom-right. The diagonal corner
// offsets below compensate for that and must stay exactly as they are: a
// controller replaying a recorded game depends on bit-identical readings.
package sensors

import (
	"math"

	"snake-sim/game/config"
	"snake-sim/game/entity"
	"snake-sim/game/manager"
	"snake-sim/game/types"
)

// parityAdjust shifts the far-side coordinate of the up-right and down-left
// diagonal corners.
const parityAdjust = 1

// Ray is one sensor measurement: where the ray stops and how far that is from
// the head center.
type Ray struct {
	End      types.Pixel
	Distance float64
}

// RaySet holds one ray per heading, indexed by types.Heading
type RaySet [types.NumHeadings]Ray

// Readings is recomputed every tick and never stored in the simulation state.
type Readings struct {
	Head types.Pixel
	// Direction is the heading the snake moved in on its last tick
	Direction types.Direction
	Walls     RaySet
	Self      RaySet
	Food      RaySet

	// Presentation tags, ignored by the simulation
	WallColor types.Color
	SelfColor types.Color
}

// CellCorner returns the top-left pixel of a cell
func CellCorner(cfg config.Config, c types.Cell) types.Pixel {
	o := cfg.FieldOrigin()
	return types.Pixel{X: o.X + c.X*cfg.SegmentSize, Y: o.Y + c.Y*cfg.SegmentSize}
}

// HeadCenter returns the pixel center of a cell
func HeadCenter(cfg config.Config, c types.Cell) types.Pixel {
	p := CellCorner(cfg, c)
	h := cfg.HalfCell()
	return types.Pixel{X: p.X + h, Y: p.Y + h}
}

// Distance is the Euclidean pixel distance between two points
func Distance(a, b types.Pixel) float64 {
	return math.Hypot(float64(b.X-a.X), float64(b.Y-a.Y))
}

// Compute derives all 24 rays for the current head position. Only call it while
// the game is being played: after a wall collision the head is off the field.
func Compute(cfg config.Config, state *manager.State) Readings {
	head := state.Snake.Head()
	center := HeadCenter(cfg, head)

	r := Readings{
		Head:      center,
		Direction: state.Direction,
		WallColor: cfg.WallRayColor,
		SelfColor: cfg.SelfRayColor,
	}
	r.Walls = wallRays(cfg, center)
	r.Self = selfRays(cfg, center, state.Snake, r.Walls)
	r.Food = foodRays(cfg, center, head, state.Food, state.FoodPlaced)

	r.Walls.measure(center)
	r.Self.measure(center)
	r.Food.measure(center)
	return r
}

func (rs *RaySet) measure(from types.Pixel) {
	for i := range rs {
		rs[i].Distance = Distance(from, rs[i].End)
	}
}

func wallRays(cfg config.Config, c types.Pixel) RaySet {
	o := cfg.FieldOrigin()
	left, top := o.X, o.Y
	right := o.X + cfg.FieldWidth*cfg.SegmentSize
	bottom := o.Y + cfg.FieldHeight*cfg.SegmentSize

	var rays RaySet
	rays[types.HeadingUp].End = types.Pixel{X: c.X, Y: top}
	rays[types.HeadingRight].End = types.Pixel{X: right, Y: c.Y}
	rays[types.HeadingDown].End = types.Pixel{X: c.X, Y: bottom}
	rays[types.HeadingLeft].End = types.Pixel{X: left, Y: c.Y}

	// Diagonals take the x distance to the wall, then fall back to the y
	// distance when that offset would leave the field vertically.
	d := right - c.X
	if c.Y+d > bottom {
		d = bottom - c.Y
	}
	rays[types.HeadingDownRight].End = types.Pixel{X: c.X + d, Y: c.Y + d}

	d = right - c.X
	if c.Y-d < top {
		d = c.Y - top
	}
	rays[types.HeadingUpRight].End = types.Pixel{X: c.X + d, Y: c.Y - d}

	d = c.X - left
	if c.Y-d < top {
		d = c.Y - top
	}
	rays[types.HeadingUpLeft].End = types.Pixel{X: c.X - d, Y: c.Y - d}

	d = c.X - left
	if c.Y+d > bottom {
		d = bottom - c.Y
	}
	rays[types.HeadingDownLeft].End = types.Pixel{X: c.X - d, Y: c.Y + d}

	return rays
}

// selfRays starts from the wall rays and pulls each ray in to the nearest
// body segment on it.
func selfRays(cfg config.Config, c types.Pixel, snake *entity.Snake, walls RaySet) RaySet {
	rays := walls
	head := snake.Head()
	for _, seg := range snake.Body[1:] {
		if h, p, ok := target(cfg, c, head, seg); ok {
			if Distance(c, p) < Distance(c, rays[h].End) {
				rays[h].End = p
			}
		}
	}
	return rays
}

// foodRays are zero length unless the food is aligned with the head. Only the
// ray pointing at the food is set.
func foodRays(cfg config.Config, c types.Pixel, head, food types.Cell, placed bool) RaySet {
	var rays RaySet
	for i := range rays {
		rays[i].End = c
	}
	if !placed {
		return rays
	}
	if h, p, ok := target(cfg, c, head, food); ok {
		rays[h].End = p
	}
	return rays
}

// target returns the heading on which cell lies as seen from head, and the
// point where a ray on that heading stops: the near edge for axis rays, the
// near corner for diagonal rays. ok is false when the cell is on no ray.
func target(cfg config.Config, c types.Pixel, head, cell types.Cell) (types.Heading, types.Pixel, bool) {
	dx, dy := cell.X-head.X, cell.Y-head.Y
	if dx == 0 && dy == 0 {
		return 0, types.Pixel{}, false
	}

	size := cfg.SegmentSize
	half := cfg.HalfCell()
	center := HeadCenter(cfg, cell)

	switch {
	case dx == 0 && dy > 0:
		return types.HeadingDown, types.Pixel{X: c.X, Y: center.Y - half}, true
	case dx == 0:
		return types.HeadingUp, types.Pixel{X: c.X, Y: center.Y + half}, true
	case dy == 0 && dx > 0:
		return types.HeadingRight, types.Pixel{X: center.X - half, Y: c.Y}, true
	case dy == 0:
		return types.HeadingLeft, types.Pixel{X: center.X + half, Y: c.Y}, true
	case abs(dx) != abs(dy):
		return 0, types.Pixel{}, false
	}

	tl := CellCorner(cfg, cell)
	switch {
	case dx > 0 && dy > 0:
		return types.HeadingDownRight, tl, true
	case dx > 0:
		return types.HeadingUpRight, types.Pixel{X: tl.X - parityAdjust, Y: tl.Y + size}, true
	case dy < 0:
		return types.HeadingUpLeft, types.Pixel{X: tl.X + size, Y: tl.Y + size}, true
	default:
		return types.HeadingDownLeft, types.Pixel{X: tl.X + size, Y: tl.Y - parityAdjust}, true
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Features flattens the readings into 24 values, [walls][self][food] x 8 rays,
// with the rays rotated so that index 0 points straight ahead of dir and the
// rest follow clockwise. Each value is a closeness in (0,1]; a zero-length food
// ray (food not aligned) is 0.
func (r *Readings) Features(dir types.Direction, segmentSize int) []float64 {
	out := make([]float64, 0, 3*int(types.NumHeadings))
	front := types.HeadingOf(dir)
	for _, set := range []*RaySet{&r.Walls, &r.Self, &r.Food} {
		for i := 0; i < int(types.NumHeadings); i++ {
			ray := set[front.Rotate(i)]
			out = append(out, closeness(ray.Distance, segmentSize, set == &r.Food))
		}
	}
	return out
}

func closeness(d float64, segmentSize int, zeroIsAbsent bool) float64 {
	if zeroIsAbsent && d == 0 {
		return 0
	}
	s := float64(segmentSize)
	return s / (s + d)
}
