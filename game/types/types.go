package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDirection is returned when a direction token cannot be parsed
var ErrInvalidDirection = errors.New("invalid direction")

// Cell is a grid coordinate, not a pixel coordinate
type Cell struct {
	X, Y int
}

// Add returns the cell shifted by the given vector
func (c Cell) Add(v Cell) Cell {
	return Cell{X: c.X + v.X, Y: c.Y + v.Y}
}

// Pixel is a screen-space coordinate
type Pixel struct {
	X, Y int
}

// Grid represents the game grid dimensions
type Grid struct {
	Width  int
	Height int
}

// Contains reports whether the cell lies inside the grid
func (g Grid) Contains(c Cell) bool {
	return c.X >= 0 && c.X < g.Width && c.Y >= 0 && c.Y < g.Height
}

type Color struct {
	R, G, B uint8
}

// Direction is a cardinal movement direction. None means "keep the current one".
type Direction int

const (
	None Direction = iota
	Up
	Right
	Down
	Left
)

// Directions lists the four movement directions
var Directions = [4]Direction{Up, Right, Down, Left}

// ToPoint returns the unit vector of the direction
func (d Direction) ToPoint() Cell {
	switch d {
	case Up:
		return Cell{X: 0, Y: -1}
	case Right:
		return Cell{X: 1, Y: 0}
	case Down:
		return Cell{X: 0, Y: 1}
	case Left:
		return Cell{X: -1, Y: 0}
	default:
		return Cell{}
	}
}

// Opposite returns the 180° reversal of d
func (d Direction) Opposite() Direction {
	switch d {
	case Up:
		return Down
	case Right:
		return Left
	case Down:
		return Up
	case Left:
		return Right
	default:
		return None
	}
}

// TurnLeft returns the direction after a counter-clockwise quarter turn
func (d Direction) TurnLeft() Direction {
	switch d {
	case Up:
		return Left
	case Right:
		return Up
	case Down:
		return Right
	case Left:
		return Down
	default:
		return d
	}
}

// TurnRight returns the direction after a clockwise quarter turn
func (d Direction) TurnRight() Direction {
	switch d {
	case Up:
		return Right
	case Right:
		return Down
	case Down:
		return Left
	case Left:
		return Up
	default:
		return d
	}
}

func (d Direction) String() string {
	switch d {
	case Up:
		return "UP"
	case Right:
		return "RIGHT"
	case Down:
		return "DOWN"
	case Left:
		return "LEFT"
	case None:
		return "NONE"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Letter returns the one-letter form used in compact scripts
func (d Direction) Letter() byte {
	switch d {
	case Up:
		return 'U'
	case Right:
		return 'R'
	case Down:
		return 'D'
	case Left:
		return 'L'
	default:
		return 'N'
	}
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(text []byte) error {
	parsed, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDirection accepts full names ("UP", "left") and single letters ("U", "l").
// "N", "-" and "NONE" map to None.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "U", "UP":
		return Up, nil
	case "R", "RIGHT":
		return Right, nil
	case "D", "DOWN":
		return Down, nil
	case "L", "LEFT":
		return Left, nil
	case "N", "-", "NONE", "KEEP":
		return None, nil
	}
	return None, fmt.Errorf("%w: %q", ErrInvalidDirection, s)
}

// ParseScript parses either a compact letter script ("UURDL"), a comma separated
// list of names ("UP,UP,RIGHT") or a single name ("DOWN"). Whitespace is ignored.
func ParseScript(s string) ([]Direction, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if d, err := ParseDirection(s); err == nil {
		return []Direction{d}, nil
	}

	var tokens []string
	if strings.ContainsAny(s, ", ") {
		tokens = strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	} else {
		for _, r := range s {
			tokens = append(tokens, string(r))
		}
	}

	script := make([]Direction, 0, len(tokens))
	for _, tok := range tokens {
		d, err := ParseDirection(tok)
		if err != nil {
			return nil, err
		}
		script = append(script, d)
	}
	return script, nil
}

// FormatScript renders directions in the compact letter form
func FormatScript(dirs []Direction) string {
	var b strings.Builder
	b.Grow(len(dirs))
	for _, d := range dirs {
		b.WriteByte(d.Letter())
	}
	return b.String()
}

// Heading is one of the 8 compass rays used by the sensors, in clockwise order
type Heading int

const (
	HeadingUp Heading = iota
	HeadingUpRight
	HeadingRight
	HeadingDownRight
	HeadingDown
	HeadingDownLeft
	HeadingLeft
	HeadingUpLeft
	NumHeadings
)

var headingNames = [NumHeadings]string{"up", "up-right", "right", "down-right", "down", "down-left", "left", "up-left"}

func (h Heading) String() string {
	if h < 0 || h >= NumHeadings {
		return fmt.Sprintf("Heading(%d)", int(h))
	}
	return headingNames[h]
}

// HeadingOf returns the ray heading pointing the same way as a movement direction
func HeadingOf(d Direction) Heading {
	switch d {
	case Right:
		return HeadingRight
	case Down:
		return HeadingDown
	case Left:
		return HeadingLeft
	default:
		return HeadingUp
	}
}

// Rotate returns the heading n eighth-turns clockwise from h
func (h Heading) Rotate(n int) Heading {
	return Heading(((int(h)+n)%int(NumHeadings) + int(NumHeadings)) % int(NumHeadings))
}
