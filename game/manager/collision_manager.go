package manager

import (
	"fmt"

	"snake-sim/game/entity"
	"snake-sim/game/types"
)

// CollisionType represents the type of collision
type CollisionType int

const (
	NoCollision CollisionType = iota
	WallCollision
	SelfCollision
)

func (c CollisionType) String() string {
	switch c {
	case WallCollision:
		return "wall"
	case SelfCollision:
		return "self"
	default:
		return "none"
	}
}

func (c CollisionType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *CollisionType) UnmarshalText(text []byte) error {
	switch string(text) {
	case "wall":
		*c = WallCollision
	case "self":
		*c = SelfCollision
	case "none", "":
		*c = NoCollision
	default:
		return fmt.Errorf("unknown collision type %q", text)
	}
	return nil
}

type CollisionManager struct {
	grid types.Grid
}

func NewCollisionManager(grid types.Grid) *CollisionManager {
	return &CollisionManager{
		grid: grid,
	}
}

// IsWallCollision checks if a position lies outside the field
func (cm *CollisionManager) IsWallCollision(pos types.Cell) bool {
	return !cm.grid.Contains(pos)
}

// IsSelfCollision checks if the head overlaps any other segment
func (cm *CollisionManager) IsSelfCollision(snake *entity.Snake) bool {
	head := snake.Head()
	for _, part := range snake.Body[1:] {
		if part == head {
			return true
		}
	}
	return false
}

// Check runs the wall test first, then the self test
func (cm *CollisionManager) Check(snake *entity.Snake) CollisionType {
	if cm.IsWallCollision(snake.Head()) {
		return WallCollision
	}
	if cm.IsSelfCollision(snake) {
		return SelfCollision
	}
	return NoCollision
}
