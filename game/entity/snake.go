package entity

import "snake-sim/game/types"

// Snake keeps its head at index 0 and its tail at the last index
type Snake struct {
	Body []types.Cell
}

func NewSnake(body []types.Cell) *Snake {
	return &Snake{Body: append([]types.Cell(nil), body...)}
}

func (s *Snake) Head() types.Cell {
	return s.Body[0]
}

func (s *Snake) Len() int {
	return len(s.Body)
}

// Grow prepends a new head
func (s *Snake) Grow(head types.Cell) {
	s.Body = append(s.Body, types.Cell{})
	copy(s.Body[1:], s.Body)
	s.Body[0] = head
}

// Shrink drops the tail
func (s *Snake) Shrink() {
	if len(s.Body) > 0 {
		s.Body = s.Body[:len(s.Body)-1]
	}
}

// Occupies reports whether any segment, head included, is on the cell
func (s *Snake) Occupies(c types.Cell) bool {
	for _, p := range s.Body {
		if p == c {
			return true
		}
	}
	return false
}

// Moving reports whether the head has separated from the next segment. A freshly
// spawned snake has its segments stacked on one cell.
func (s *Snake) Moving() bool {
	return len(s.Body) > 1 && s.Body[0] != s.Body[1]
}

func (s *Snake) Clone() *Snake {
	return NewSnake(s.Body)
}
