package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/charmbracelet/log"

	"snake-sim/api"
	"snake-sim/game"
	"snake-sim/game/config"
	"snake-sim/game/controller"
	"snake-sim/game/rng"
	"snake-sim/game/types"
	"snake-sim/qlearning"
	"snake-sim/scripting"
	"snake-sim/stats"
	"snake-sim/store"
	"snake-sim/ui"
)

type options struct {
	mode      string
	seed      string
	fixedSeed bool
	script    string
	jsPath    string
	policy    string
	games     int
	workers   int
	learner   string
	episodes  int
	dbPath    string
	addr      string
	cfgPath   string
	logLevel  string
	maxMoves  int
}

func main() {
	var o options
	flag.StringVar(&o.mode, "mode", "play", "play, headless, batch, train or serve")
	flag.StringVar(&o.seed, "seed", "", "unsigned 64-bit seed (default: drawn from system entropy)")
	flag.BoolVar(&o.fixedSeed, "fixed-seed", false, "reuse the seed on every restart")
	flag.StringVar(&o.script, "script", "", `direction script, e.g. "UURDL" or "UP,UP,RIGHT"`)
	flag.StringVar(&o.jsPath, "js", "", "JavaScript file defining nextDirection(sensors, tick)")
	flag.StringVar(&o.policy, "policy", "manual", "controller when no script is given: manual, random or learner")
	flag.IntVar(&o.games, "games", 100, "games to play in batch mode")
	flag.IntVar(&o.workers, "workers", 4, "parallel games in batch mode")
	flag.StringVar(&o.learner, "learner", "table", "learner for train mode and the learner policy: table or dqn")
	flag.IntVar(&o.episodes, "episodes", 1000, "training episodes")
	flag.StringVar(&o.dbPath, "db", "", "SQLite run archive (disabled when empty)")
	flag.StringVar(&o.addr, "addr", ":8080", "listen address in serve mode")
	flag.StringVar(&o.cfgPath, "config", "", "JSON config overlay")
	flag.StringVar(&o.logLevel, "log-level", "info", "debug, info, warn or error")
	flag.IntVar(&o.maxMoves, "max-moves", 100000, "move limit for headless games (0 = none)")
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Prefix:          "snake",
	})
	if level, err := log.ParseLevel(o.logLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warn("unknown log level, using info", "level", o.logLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, o, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("snake failed", "err", err)
	}
}

func run(ctx context.Context, o options, logger *log.Logger) error {
	cfg := config.Default()
	if o.cfgPath != "" {
		var err error
		if cfg, err = config.Load(o.cfgPath); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var seed *uint64
	if o.seed != "" {
		s, err := rng.ParseSeed(o.seed)
		if err != nil {
			return err
		}
		seed = &s
	}

	var archive *store.Store
	if o.dbPath != "" {
		var err error
		if archive, err = store.Open(o.dbPath); err != nil {
			return err
		}
		defer archive.Close()
		if err := archive.Migrate(); err != nil {
			return err
		}
	}

	switch o.mode {
	case "play":
		return play(ctx, cfg, seed, o, archive, logger)
	case "headless":
		return headless(ctx, cfg, seed, o, archive, logger)
	case "batch":
		return batch(ctx, cfg, seed, o, archive, logger)
	case "train":
		return train(ctx, cfg, seed, o, logger)
	case "serve":
		return serve(ctx, cfg, o, archive, logger)
	default:
		return fmt.Errorf("unknown mode %q", o.mode)
	}
}

func newLearner(kind string, seed uint64) (qlearning.Learner, string, error) {
	switch kind {
	case "table":
		return qlearning.NewAgent(0.5, 0.9, seed), qlearning.QTableFile, nil
	case "dqn":
		d, err := qlearning.NewDQN(seed)
		return d, qlearning.WeightsFile, err
	default:
		return nil, "", fmt.Errorf("unknown learner %q", kind)
	}
}

// policyController builds the controller for a non-manual policy
func policyController(cfg config.Config, o options, seed uint64) (controller.Controller, error) {
	switch o.policy {
	case "random":
		return controller.NewRandom(seed, cfg.SegmentSize), nil
	case "learner":
		learner, path, err := newLearner(o.learner, seed)
		if err != nil {
			return nil, err
		}
		if err := learner.Load(path); err != nil {
			return nil, err
		}
		agent := qlearning.NewSnakeAgent(learner, cfg)
		agent.SetLearning(false)
		return agent, nil
	case "manual", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown policy %q", o.policy)
	}
}

// buildController picks JavaScript, then a script, then the policy. A script
// without a policy falls back to fallback once exhausted.
func buildController(cfg config.Config, o options, seed uint64, fallback controller.Controller, logger *log.Logger) (controller.Controller, error) {
	if o.jsPath != "" {
		src, err := os.ReadFile(o.jsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read script: %w", err)
		}
		return scripting.New(string(src), scripting.WithLogger(logger))
	}

	policy, err := policyController(cfg, o, seed)
	if err != nil {
		return nil, err
	}
	if policy != nil {
		fallback = policy
	}

	if o.script != "" {
		moves, err := types.ParseScript(o.script)
		if err != nil {
			return nil, err
		}
		s := controller.NewScript(moves)
		s.Fallback = fallback
		return s, nil
	}
	if fallback == nil {
		return controller.Keep{}, nil
	}
	return fallback, nil
}

func play(ctx context.Context, cfg config.Config, seed *uint64, o options, archive *store.Store, logger *log.Logger) error {
	manual := controller.NewManual()
	policySeed := rng.NewSeed()
	if seed != nil {
		policySeed = *seed
	}
	c, err := buildController(cfg, o, policySeed, manual, logger)
	if err != nil {
		return err
	}

	renderer := ui.NewRenderer(cfg)
	opts := []game.Option{
		game.WithController(c),
		game.WithPresenter(renderer),
		game.WithFixedSeed(o.fixedSeed),
		game.WithLogger(logger),
	}
	if seed != nil {
		opts = append(opts, game.WithSeed(*seed))
	}
	d, err := game.NewDriver(cfg, opts...)
	if err != nil {
		return err
	}

	gameStats := stats.NewGameStats()
	if err := gameStats.Load(stats.StatsFile); err != nil {
		logger.Warn("failed to load stats", "err", err)
	}
	defer func() {
		if err := gameStats.Save(stats.StatsFile); err != nil {
			logger.Error("failed to save stats", "err", err)
		}
	}()

	return ui.Run(ctx, d, ui.Options{
		Renderer: renderer,
		Manual:   manual,
		Logger:   logger,
		OnGameOver: func(res game.Result) {
			gameStats.AddGame(res.Score, res.Moves, res.Started, res.Started.Add(res.Duration))
			archiveRun(ctx, archive, res, o.script, logger)
		},
	})
}

func archiveRun(ctx context.Context, archive *store.Store, res game.Result, script string, logger *log.Logger) {
	if archive == nil {
		return
	}
	if err := archive.SaveRun(ctx, res, script); err != nil {
		logger.Error("failed to archive run", "run_id", res.RunID, "err", err)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func headless(ctx context.Context, cfg config.Config, seed *uint64, o options, archive *store.Store, logger *log.Logger) error {
	policySeed := rng.NewSeed()
	if seed != nil {
		policySeed = *seed
	}
	c, err := buildController(cfg, o, policySeed, nil, logger)
	if err != nil {
		return err
	}

	res, err := game.RunController(ctx, cfg, seed, c,
		game.WithMaxMoves(o.maxMoves),
		game.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	archiveRun(ctx, archive, res, o.script, logger)
	return printJSON(res)
}

func batch(ctx context.Context, cfg config.Config, seed *uint64, o options, archive *store.Store, logger *log.Logger) error {
	if o.games <= 0 {
		return fmt.Errorf("games must be positive, got %d", o.games)
	}
	first := rng.NewSeed()
	if seed != nil {
		first = *seed
	}
	seeds := make([]uint64, o.games)
	for i := range seeds {
		seeds[i] = first + uint64(i)
	}

	// Validate the controller choice once before fanning out
	if _, err := buildController(cfg, o, first, nil, logger); err != nil {
		return err
	}
	factory := func(s uint64) controller.Controller {
		c, err := buildController(cfg, o, s, nil, logger)
		if err != nil {
			return controller.Keep{}
		}
		return c
	}

	start := time.Now()
	results, err := game.RunBatch(ctx, cfg, seeds, factory, o.workers,
		game.WithMaxMoves(o.maxMoves),
		game.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	batchStats := stats.NewGameStats()
	for _, res := range results {
		batchStats.AddGame(res.Score, res.Moves, res.Started, res.Started.Add(res.Duration))
		archiveRun(ctx, archive, res, o.script, logger)
	}
	logger.Info("batch finished",
		"games", batchStats.GamesPlayed(),
		"avg_score", fmt.Sprintf("%.2f", batchStats.AverageScore()),
		"median_score", batchStats.MedianScore(),
		"max_score", batchStats.MaxScore(),
		"avg_moves", fmt.Sprintf("%.1f", batchStats.AverageMoves()),
		"elapsed", time.Since(start),
	)
	return nil
}

func train(ctx context.Context, cfg config.Config, seed *uint64, o options, logger *log.Logger) error {
	s := rng.NewSeed()
	if seed != nil {
		s = *seed
	}
	learner, path, err := newLearner(o.learner, s)
	if err != nil {
		return err
	}
	if err := learner.Load(path); err != nil {
		return err
	}

	gameStats := stats.NewGameStats()
	if err := gameStats.Load(stats.StatsFile); err != nil {
		logger.Warn("failed to load stats", "err", err)
	}

	logger.Info("training", "learner", o.learner, "episodes", o.episodes, "seed", s)
	_, err = qlearning.Train(ctx, cfg, learner, qlearning.TrainOptions{
		Episodes:  o.episodes,
		Seed:      s,
		MaxMoves:  o.maxMoves,
		SavePath:  path,
		SaveEvery: 500,
		Stats:     gameStats,
		Logger:    logger,
	})
	if saveErr := gameStats.Save(stats.StatsFile); saveErr != nil {
		logger.Error("failed to save stats", "err", saveErr)
	}
	if err != nil {
		// keep what was learned before the interruption
		if saveErr := learner.Save(path); saveErr != nil {
			logger.Error("failed to save learner", "err", saveErr)
		}
		return err
	}

	logger.Info("training finished",
		"games", gameStats.GamesPlayed(),
		"avg_score", fmt.Sprintf("%.2f", gameStats.AverageScore()),
		"max_score", gameStats.MaxScore(),
		"epsilon", learner.Epsilon(),
	)
	return nil
}

func serve(ctx context.Context, cfg config.Config, o options, archive *store.Store, logger *log.Logger) error {
	apiOpts := []api.Option{api.WithLogger(logger)}
	if archive != nil {
		apiOpts = append(apiOpts, api.WithStore(archive))
	}
	if o.maxMoves > 0 {
		apiOpts = append(apiOpts, api.WithMaxMoves(o.maxMoves))
	}

	srv := &http.Server{
		Addr:              o.addr,
		Handler:           api.NewServer(cfg, apiOpts...).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", o.addr, "archive", archive != nil)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
