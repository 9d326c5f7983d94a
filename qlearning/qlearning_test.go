package qlearning

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"snake-sim/game"
	"snake-sim/game/config"
	"snake-sim/game/controller"
	"snake-sim/game/manager"
	"snake-sim/game/types"
	"snake-sim/stats"
)

func TestStateKeyBuckets(t *testing.T) {
	tests := []struct {
		state []float64
		want  string
	}{
		{[]float64{0, 0.3, 0.5, 1}, "0,1,2,3"},
		{[]float64{0.99}, "3"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := StateKey(tt.state); got != tt.want {
			t.Errorf("StateKey(%v) = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestLearnUpdatesQValue(t *testing.T) {
	a := NewAgent(0.5, 0.9, 1)
	state := []float64{0, 0}
	next := []float64{1, 1}
	a.QTable[StateKey(next)] = []float64{0, 2, 1}

	a.Learn(state, 1, 1.0, next, false, 3)
	// 0 + 0.5 * (1 + 0.9*2 - 0)
	if got := a.QTable[StateKey(state)][1]; math.Abs(got-1.4) > 1e-9 {
		t.Fatalf("Q = %v, want 1.4", got)
	}

	a.Learn(state, 0, -2.0, next, true, 3)
	if got := a.QTable[StateKey(state)][0]; got != -1.0 {
		t.Fatalf("terminal Q = %v, want -1", got)
	}
}

func TestGreedyActionWithoutExploration(t *testing.T) {
	a := NewAgent(0.1, 0.9, 1)
	a.Eps = 0
	state := []float64{0.5}
	a.QTable[StateKey(state)] = []float64{0.1, -1, 3}
	for i := 0; i < 10; i++ {
		if got := a.Act(state, 3); got != 2 {
			t.Fatalf("Act = %d, want 2", got)
		}
	}
}

func TestEpsilonDecays(t *testing.T) {
	a := NewAgent(0.1, 0.9, 1)
	prev := a.Epsilon()
	for i := 0; i < 100; i++ {
		a.IncrementEpisode()
		if a.Epsilon() > prev {
			t.Fatalf("epsilon grew at episode %d", i)
		}
		prev = a.Epsilon()
	}
	for i := 0; i < 10000; i++ {
		a.IncrementEpisode()
	}
	if a.Epsilon() != a.MinEpsilon {
		t.Fatalf("epsilon = %v, want floor %v", a.Epsilon(), a.MinEpsilon)
	}
}

func TestAgentSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qtable.json")
	a := NewAgent(0.1, 0.9, 1)
	a.QTable["0,1"] = []float64{1, 2, 3}
	a.IncrementEpisode()
	if err := a.Save(path); err != nil {
		t.Fatal(err)
	}

	b := NewAgent(0.1, 0.9, 2)
	if err := b.Load(path); err != nil {
		t.Fatal(err)
	}
	if b.TrainingEpisode != 1 || b.QTable["0,1"][2] != 3 || b.Eps != a.Eps {
		t.Fatalf("loaded %+v", b)
	}

	if err := b.Load(filepath.Join(t.TempDir(), "none.json")); err != nil {
		t.Fatalf("missing file: %v", err)
	}
}

func TestRelativeActions(t *testing.T) {
	tests := []struct {
		current types.Direction
		action  int
		want    types.Direction
	}{
		{types.Up, TurnLeft, types.Left},
		{types.Up, Straight, types.Up},
		{types.Up, TurnRight, types.Right},
		{types.Right, TurnLeft, types.Up},
		{types.Down, TurnRight, types.Left},
		{types.Left, TurnRight, types.Up},
	}
	for _, tt := range tests {
		if got := relativeToAbsolute(tt.current, tt.action); got != tt.want {
			t.Errorf("%v action %d = %v, want %v", tt.current, tt.action, got, tt.want)
		}
	}
}

func TestReward(t *testing.T) {
	if got := Reward(manager.TickEvent{Collision: manager.WallCollision}, 3, nil); got != -2 {
		t.Errorf("death reward = %v", got)
	}
	if got := Reward(manager.TickEvent{Ate: true}, 5, nil); got != 6 {
		t.Errorf("food reward = %v, want 6", got)
	}
	if got := Reward(manager.TickEvent{}, 0, nil); got != -0.005 {
		t.Errorf("step reward = %v", got)
	}
}

func smallConfig() config.Config {
	return config.Default().WithField(10, 10).WithInitialSnake([]types.Cell{{X: 5, Y: 5}, {X: 5, Y: 5}}, types.Up)
}

func TestTrainIsReproducible(t *testing.T) {
	run := func() []game.Result {
		learner := NewAgent(0.5, 0.9, 11)
		res, err := Train(context.Background(), smallConfig(), learner, TrainOptions{Episodes: 20, Seed: 3, MaxMoves: 500})
		if err != nil {
			t.Fatal(err)
		}
		return res
	}
	a, b := run(), run()
	if len(a) != 20 || len(b) != 20 {
		t.Fatalf("episodes = %d/%d", len(a), len(b))
	}
	for i := range a {
		if a[i].Seed != b[i].Seed || a[i].Score != b[i].Score || a[i].Moves != b[i].Moves {
			t.Fatalf("episode %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestTrainRecordsStatsAndSaves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qtable.json")
	learner := NewAgent(0.5, 0.9, 1)
	s := stats.NewGameStats()
	episodes := 0

	_, err := Train(context.Background(), smallConfig(), learner, TrainOptions{
		Episodes:  5,
		Seed:      1,
		MaxMoves:  300,
		SavePath:  path,
		Stats:     s,
		OnEpisode: func(int, game.Result) { episodes++ },
	})
	if err != nil {
		t.Fatal(err)
	}
	if episodes != 5 || s.GamesPlayed() != 5 {
		t.Fatalf("episodes=%d games=%d", episodes, s.GamesPlayed())
	}
	if learner.TrainingEpisode != 5 || len(learner.QTable) == 0 {
		t.Fatalf("learner did not learn: episode=%d states=%d", learner.TrainingEpisode, len(learner.QTable))
	}

	loaded := NewAgent(0.5, 0.9, 1)
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if loaded.TrainingEpisode != 5 {
		t.Fatalf("saved episode = %d", loaded.TrainingEpisode)
	}
}

func TestTrainStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Train(ctx, smallConfig(), NewAgent(0.5, 0.9, 1), TrainOptions{Episodes: 3})
	if err == nil || len(res) != 0 {
		t.Fatalf("err=%v results=%d", err, len(res))
	}
}

func TestAgentNeverReverses(t *testing.T) {
	cfg := smallConfig()
	learner := NewAgent(0.5, 0.9, 4)
	agent := NewSnakeAgent(learner, cfg)
	d, err := game.NewDriver(cfg, game.WithSeed(9), game.WithController(agent))
	if err != nil {
		t.Fatal(err)
	}
	agent.Begin(cfg.InitialDirection)
	for i := 0; i < 200 && d.Phase() == manager.Playing; i++ {
		before := d.State().Direction
		event := d.Tick()
		if event.Direction == before.Opposite() {
			t.Fatalf("tick %d: reversed from %v", i, before)
		}
		agent.Observe(event, d.State().Score, d.Readings())
	}
}

// constLearner always picks the same relative action
type constLearner struct{ action int }

func (c constLearner) Act([]float64, int) int                            { return c.action }
func (constLearner) Learn([]float64, int, float64, []float64, bool, int) {}
func (constLearner) IncrementEpisode()                                   {}
func (constLearner) Epsilon() float64                                    { return 0 }
func (constLearner) Save(string) error                                   { return nil }
func (constLearner) Load(string) error                                   { return nil }

func TestSnakeAgentTracksHeadingAsController(t *testing.T) {
	cfg := config.Default()
	agent := NewSnakeAgent(constLearner{action: TurnLeft}, cfg)
	agent.SetLearning(false)

	d, err := game.NewDriver(cfg, game.WithSeed(1), game.WithController(agent), game.WithMaxMoves(500))
	if err != nil {
		t.Fatal(err)
	}

	want := []types.Direction{types.Right, types.Up, types.Left, types.Down}
	// the second game checks that a reset restarts the heading
	for round := 0; round < 2; round++ {
		res, err := d.Play(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if res.GameOver || res.Moves != 500 {
			t.Fatalf("round %d: left turns should circle forever, got moves=%d cause=%v", round, res.Moves, res.Cause)
		}
		for i, dir := range res.History[:8] {
			if dir != want[i%4] {
				t.Fatalf("round %d: history[%d] = %v, want %v", round, i, dir, want[i%4])
			}
		}
		d.Reset()
	}
}

func TestSnakeAgentRunsHeadless(t *testing.T) {
	cfg := config.Default()
	seed := uint64(1)
	agent := NewSnakeAgent(constLearner{action: Straight}, cfg)
	res, err := game.RunController(context.Background(), cfg, &seed, agent, game.WithMaxMoves(500))
	if err != nil {
		t.Fatal(err)
	}
	// straight down from (1,1) on a 45 row field
	if !res.GameOver || res.Cause != manager.WallCollision || res.Moves != 44 {
		t.Fatalf("moves=%d gameOver=%v cause=%v", res.Moves, res.GameOver, res.Cause)
	}
}

func TestSnakeAgentFollowsScriptedHeading(t *testing.T) {
	cfg := config.Default()
	seed := uint64(1)
	script := controller.NewScript([]types.Direction{types.Right, types.Right, types.Right})
	script.Fallback = NewSnakeAgent(constLearner{action: Straight}, cfg)

	res, err := game.RunController(context.Background(), cfg, &seed, script, game.WithMaxMoves(500))
	if err != nil {
		t.Fatal(err)
	}
	// keeps going right from (1,1) after the script ends
	if res.Cause != manager.WallCollision || res.Moves != 39 {
		t.Fatalf("moves=%d cause=%v", res.Moves, res.Cause)
	}
	for i, dir := range res.History {
		if dir != types.Right {
			t.Fatalf("history[%d] = %v, want RIGHT", i, dir)
		}
	}
}

type failingLearner struct {
	constLearner
	err error
}

func (f failingLearner) Err() error { return f.err }

func TestTrainStopsOnLearnerError(t *testing.T) {
	boom := errors.New("backprop failed")
	res, err := Train(context.Background(), smallConfig(), failingLearner{err: boom}, TrainOptions{Episodes: 5, Seed: 1, MaxMoves: 50})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if len(res) != 1 {
		t.Fatalf("played %d episodes, want 1", len(res))
	}
}
