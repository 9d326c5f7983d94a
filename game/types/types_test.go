package types

import (
	"errors"
	"testing"
)

func TestOppositeIsInvolution(t *testing.T) {
	for _, d := range Directions {
		if d.Opposite() == d {
			t.Errorf("%v is its own opposite", d)
		}
		if d.Opposite().Opposite() != d {
			t.Errorf("opposite of opposite of %v = %v", d, d.Opposite().Opposite())
		}
		v, o := d.ToPoint(), d.Opposite().ToPoint()
		if v.X != -o.X || v.Y != -o.Y {
			t.Errorf("%v vector %v is not the negation of %v", d, v, o)
		}
	}
	if None.Opposite() != None {
		t.Errorf("None.Opposite() = %v", None.Opposite())
	}
}

func TestTurnsAreInverse(t *testing.T) {
	for _, d := range Directions {
		if d.TurnLeft().TurnRight() != d {
			t.Errorf("left then right from %v = %v", d, d.TurnLeft().TurnRight())
		}
	}
}

func TestParseScript(t *testing.T) {
	tests := []struct {
		in   string
		want []Direction
	}{
		{"UURDL", []Direction{Up, Up, Right, Down, Left}},
		{"UP,up, RIGHT", []Direction{Up, Up, Right}},
		{"u-d", []Direction{Up, None, Down}},
		{"UP", []Direction{Up}},
		{" down ", []Direction{Down}},
		{"L", []Direction{Left}},
		{"", nil},
	}
	for _, tt := range tests {
		got, err := ParseScript(tt.in)
		if err != nil {
			t.Fatalf("ParseScript(%q): %v", tt.in, err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("ParseScript(%q) = %v, want %v", tt.in, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Fatalf("ParseScript(%q)[%d] = %v, want %v", tt.in, i, got[i], tt.want[i])
			}
		}
	}

	if _, err := ParseScript("UXD"); !errors.Is(err, ErrInvalidDirection) {
		t.Fatalf("expected ErrInvalidDirection, got %v", err)
	}
}

func TestFormatScriptRoundTrip(t *testing.T) {
	script := []Direction{Up, Right, Down, Left, None}
	if got := FormatScript(script); got != "URDLN" {
		t.Fatalf("FormatScript = %q", got)
	}
}

func TestHeadingRotate(t *testing.T) {
	if HeadingUp.Rotate(2) != HeadingRight {
		t.Errorf("up + 2 = %v", HeadingUp.Rotate(2))
	}
	if HeadingUp.Rotate(-1) != HeadingUpLeft {
		t.Errorf("up - 1 = %v", HeadingUp.Rotate(-1))
	}
	if HeadingLeft.Rotate(10) != HeadingUp {
		t.Errorf("left + 10 = %v", HeadingLeft.Rotate(10))
	}
}
