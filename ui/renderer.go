package ui

import (
	"fmt"

	rl "github.com/gen2brain/raylib-go/raylib"

	"snake-sim/game"
	"snake-sim/game/config"
	"snake-sim/game/manager"
	"snake-sim/game/sensors"
	"snake-sim/game/types"
)

const (
	maxScores   = 200 // scores kept for the graph
	panelMargin = 20
	fontSize    = 20
	lineHeight  = 28
)

// Renderer draws the latest frame. It implements game.Presenter; Draw must be
// called from the thread that owns the raylib window.
type Renderer struct {
	cfg    config.Config
	frame  game.Frame
	scores []int
}

func NewRenderer(cfg config.Config) *Renderer {
	return &Renderer{cfg: cfg}
}

func (r *Renderer) Present(f game.Frame) {
	r.frame = f
}

// RecordScore adds a finished game to the score graph
func (r *Renderer) RecordScore(score int) {
	r.scores = append(r.scores, score)
	if len(r.scores) > maxScores {
		r.scores = r.scores[len(r.scores)-maxScores:]
	}
}

func toRL(c types.Color) rl.Color {
	return rl.Color{R: c.R, G: c.G, B: c.B, A: 255}
}

func (r *Renderer) Draw() {
	rl.BeginDrawing()
	defer rl.EndDrawing()
	rl.ClearBackground(toRL(r.cfg.BackdropColor))

	r.drawField()
	if r.frame.Readings != nil {
		r.drawRays(r.frame.Readings)
	}
	r.drawPanel()
}

func (r *Renderer) drawField() {
	cfg := r.cfg
	s := int32(cfg.SegmentSize)
	border := int32(cfg.FieldBorder)
	pos := cfg.FieldPosition
	w := int32(cfg.FieldWidth) * s
	h := int32(cfg.FieldHeight) * s

	// The border is drawn as a filled frame around the field
	rl.DrawRectangle(int32(pos.X), int32(pos.Y), w+2*border, h+2*border, toRL(cfg.BorderColor))
	origin := cfg.FieldOrigin()
	rl.DrawRectangle(int32(origin.X), int32(origin.Y), w, h, toRL(cfg.BackdropColor))

	if r.frame.Food != manager.UnplacedFood {
		food := sensors.CellCorner(cfg, r.frame.Food)
		rl.DrawRectangle(int32(food.X), int32(food.Y), s, s, toRL(cfg.FoodColor))
	}

	for _, cell := range r.frame.Snake {
		p := sensors.CellCorner(cfg, cell)
		rl.DrawRectangle(int32(p.X), int32(p.Y), s, s, toRL(cfg.SnakeColor))
	}
}

func (r *Renderer) drawRays(readings *sensors.Readings) {
	head := readings.Head
	line := func(ray sensors.Ray, color rl.Color) {
		if ray.Distance == 0 {
			return
		}
		rl.DrawLine(int32(head.X), int32(head.Y), int32(ray.End.X), int32(ray.End.Y), color)
	}

	for h := range readings.Walls {
		// A self ray equal to the wall ray found nothing closer
		if readings.Self[h] != readings.Walls[h] {
			line(readings.Self[h], toRL(readings.SelfColor))
		} else {
			line(readings.Walls[h], toRL(readings.WallColor))
		}
		line(readings.Food[h], toRL(r.cfg.FoodColor))
	}
}

func (r *Renderer) drawPanel() {
	x := int32(panelMargin)
	y := int32(panelMargin)
	text := func(s string, color rl.Color) {
		rl.DrawText(s, x, y, fontSize, color)
		y += lineHeight
	}

	f := r.frame
	text(fmt.Sprintf("Score: %d", f.Score), rl.White)
	text(fmt.Sprintf("Moves: %d", f.MoveCount), rl.White)
	text(fmt.Sprintf("Direction: %s", f.Direction), rl.White)
	text(fmt.Sprintf("Seed: %d", f.Seed), rl.White)
	if f.FixedSeed {
		text("Fixed seed: ON  (F)", rl.Green)
	} else {
		text("Fixed seed: OFF (F)", rl.Gray)
	}
	y += lineHeight / 2
	text("Arrows/WASD: steer", rl.LightGray)
	text("R: restart", rl.LightGray)

	if f.Phase == manager.GameOver {
		y += lineHeight / 2
		text("GAME OVER", rl.Red)
		text(fmt.Sprintf("Hit: %s", f.Cause), rl.Red)
		text("Press R to restart", rl.Red)
	}

	r.drawScoreGraph(x, int32(r.cfg.ScreenHeight)-panelMargin-150)
}

func (r *Renderer) drawScoreGraph(x, y int32) {
	width := int32(r.cfg.FieldPosition.X) - 2*panelMargin
	height := int32(150)
	if width <= 0 {
		return
	}
	rl.DrawRectangleLines(x, y, width, height, rl.White)
	rl.DrawText(fmt.Sprintf("Last %d games", len(r.scores)), x, y-fontSize-5, fontSize, rl.White)
	if len(r.scores) < 2 {
		return
	}

	maxScore := 1
	total := 0
	for _, s := range r.scores {
		maxScore = max(maxScore, s)
		total += s
	}
	scale := func(s float32) int32 {
		return y + height - int32(float32(height)*s/float32(maxScore))
	}

	color := toRL(r.cfg.SnakeColor)
	for j := 1; j < len(r.scores); j++ {
		x1 := x + int32(float32(width)*float32(j-1)/float32(maxScores))
		x2 := x + int32(float32(width)*float32(j)/float32(maxScores))
		rl.DrawLine(x1, scale(float32(r.scores[j-1])), x2, scale(float32(r.scores[j])), color)
	}

	// dashed average
	avgY := scale(float32(total) / float32(len(r.scores)))
	for dx := x; dx < x+width; dx += 5 {
		rl.DrawLine(dx, avgY, dx+2, avgY, rl.Yellow)
	}
}
