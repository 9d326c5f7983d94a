package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"snake-sim/game"
	"snake-sim/game/manager"
	"snake-sim/game/types"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleResult(score int, seed uint64) game.Result {
	return game.Result{
		RunID:    uuid.NewString(),
		Seed:     seed,
		Score:    score,
		Moves:    4,
		History:  []types.Direction{types.Up, types.Right, types.Right, types.Down},
		GameOver: true,
		Cause:    manager.SelfCollision,
		Started:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Duration: 1500 * time.Millisecond,
	}
}

func TestSaveAndGetRun(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	res := sampleResult(3, 1<<63+5)

	if err := s.SaveRun(ctx, res, "URRD"); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	got, err := s.GetRun(ctx, res.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}

	if got.Seed != res.Seed {
		t.Errorf("Seed = %d, want %d", got.Seed, res.Seed)
	}
	if got.Score != 3 || got.Moves != 4 || !got.GameOver || got.Cause != manager.SelfCollision {
		t.Errorf("got %+v", got)
	}
	if types.FormatScript(got.History) != "URRD" {
		t.Errorf("History = %v", got.History)
	}
	if got.Script != "URRD" {
		t.Errorf("Script = %q", got.Script)
	}
	if got.Duration != res.Duration || !got.Started.Equal(res.Started) {
		t.Errorf("timing = %v %v", got.Started, got.Duration)
	}
}

func TestGetRunNotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.GetRun(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListAndTopRuns(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	for i, score := range []int{2, 9, 5} {
		if err := s.SaveRun(ctx, sampleResult(score, uint64(i)), ""); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].Score != 5 || runs[1].Score != 9 {
		t.Fatalf("ListRuns = %+v", runs)
	}

	top, err := s.TopRuns(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 1 || top[0].Score != 9 {
		t.Fatalf("TopRuns = %+v", top)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := testStore(t)
	if err := s.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}
