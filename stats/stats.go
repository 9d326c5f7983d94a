// Package stats keeps a compact history of finished games. Old games are
// folded into groups so the history stays small over long training sessions.
package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	StatsFile = "data/stats.json"
	GroupSize = 100 // records folded into one group per compression level
)

// GameStats holds single game records and compressed groups of them
type GameStats struct {
	Games     []GameRecord
	groupSize int
	mutex     sync.RWMutex
}

// GameRecord describes one game (CompressionIndex 0) or a group of games
type GameRecord struct {
	StartTime        time.Time `json:"startTime"`
	EndTime          time.Time `json:"endTime"`
	Score            int       `json:"score"`
	Moves            int       `json:"moves"`
	CompressionIndex int       `json:"compressionIndex"`
	GamesCount       int       `json:"gamesCount"`
	AverageScore     float64   `json:"averageScore"`
	MedianScore      float64   `json:"medianScore"`
	MaxScore         int       `json:"maxScore"`
	MinScore         int       `json:"minScore"`
	AverageMoves     float64   `json:"averageMoves"`
	AverageDuration  float64   `json:"averageDuration"`
	MaxDuration      float64   `json:"maxDuration"`
	MinDuration      float64   `json:"minDuration"`
}

func NewGameStats() *GameStats {
	return NewGameStatsWithGroupSize(GroupSize)
}

// NewGameStatsWithGroupSize folds every size records of a level into one
func NewGameStatsWithGroupSize(size int) *GameStats {
	if size < 2 {
		size = 2
	}
	return &GameStats{Games: make([]GameRecord, 0), groupSize: size}
}

// AddGame records a finished game
func (s *GameStats) AddGame(score, moves int, startTime, endTime time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	duration := endTime.Sub(startTime).Seconds()
	s.Games = append(s.Games, GameRecord{
		StartTime:       startTime,
		EndTime:         endTime,
		Score:           score,
		Moves:           moves,
		GamesCount:      1,
		AverageScore:    float64(score),
		MedianScore:     float64(score),
		MaxScore:        score,
		MinScore:        score,
		AverageMoves:    float64(moves),
		AverageDuration: duration,
		MaxDuration:     duration,
		MinDuration:     duration,
	})

	s.groupGames()
}

func (s *GameStats) groupGames() {
	sort.SliceStable(s.Games, func(i, j int) bool {
		if s.Games[i].CompressionIndex != s.Games[j].CompressionIndex {
			return s.Games[i].CompressionIndex < s.Games[j].CompressionIndex
		}
		return s.Games[i].StartTime.Before(s.Games[j].StartTime)
	})

	for level := 0; ; level++ {
		var records, rest []GameRecord
		for _, g := range s.Games {
			if g.CompressionIndex == level {
				records = append(records, g)
			} else {
				rest = append(rest, g)
			}
		}
		if len(records) < s.groupSize {
			return
		}

		var folded []GameRecord
		for i := 0; i < len(records); i += s.groupSize {
			end := i + s.groupSize
			if end > len(records) {
				folded = append(folded, records[i:]...)
				break
			}
			folded = append(folded, fold(records[i:end], level+1))
		}
		s.Games = append(rest, folded...)
	}
}

func fold(group []GameRecord, level int) GameRecord {
	out := GameRecord{
		StartTime:        group[0].StartTime,
		EndTime:          group[0].EndTime,
		CompressionIndex: level,
		MaxScore:         group[0].MaxScore,
		MinScore:         group[0].MinScore,
		MaxDuration:      group[0].MaxDuration,
		MinDuration:      group[0].MinDuration,
	}

	var totalScore, totalMoves, totalDuration float64
	var medians []float64
	for _, g := range group {
		out.MaxScore = max(out.MaxScore, g.MaxScore)
		out.MinScore = min(out.MinScore, g.MinScore)
		out.MaxDuration = max(out.MaxDuration, g.MaxDuration)
		out.MinDuration = min(out.MinDuration, g.MinDuration)
		if g.StartTime.Before(out.StartTime) {
			out.StartTime = g.StartTime
		}
		if g.EndTime.After(out.EndTime) {
			out.EndTime = g.EndTime
		}
		n := float64(g.GamesCount)
		totalScore += g.AverageScore * n
		totalMoves += g.AverageMoves * n
		totalDuration += g.AverageDuration * n
		out.GamesCount += g.GamesCount
		for i := 0; i < g.GamesCount; i++ {
			medians = append(medians, g.MedianScore)
		}
	}

	n := float64(out.GamesCount)
	out.AverageScore = totalScore / n
	out.AverageMoves = totalMoves / n
	out.AverageDuration = totalDuration / n
	out.MedianScore = median(medians)
	return out
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sort.Float64s(values)
	mid := len(values) / 2
	if len(values)%2 == 0 {
		return (values[mid-1] + values[mid]) / 2
	}
	return values[mid]
}

// Records returns a copy of the current records
func (s *GameStats) Records() []GameRecord {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]GameRecord, len(s.Games))
	copy(out, s.Games)
	return out
}

func (s *GameStats) weighted(value func(GameRecord) float64) float64 {
	var total float64
	var games int
	for _, g := range s.Games {
		total += value(g) * float64(g.GamesCount)
		games += g.GamesCount
	}
	if games == 0 {
		return 0
	}
	return total / float64(games)
}

func (s *GameStats) AverageScore() float64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.weighted(func(g GameRecord) float64 { return g.AverageScore })
}

func (s *GameStats) AverageMoves() float64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.weighted(func(g GameRecord) float64 { return g.AverageMoves })
}

// AverageDuration is in seconds
func (s *GameStats) AverageDuration() float64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.weighted(func(g GameRecord) float64 { return g.AverageDuration })
}

// MedianScore weights each record's median by its game count
func (s *GameStats) MedianScore() float64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var all []float64
	for _, g := range s.Games {
		for i := 0; i < g.GamesCount; i++ {
			all = append(all, g.MedianScore)
		}
	}
	return median(all)
}

func (s *GameStats) MaxScore() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	best := 0
	for _, g := range s.Games {
		best = max(best, g.MaxScore)
	}
	return best
}

func (s *GameStats) GamesPlayed() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	total := 0
	for _, g := range s.Games {
		total += g.GamesCount
	}
	return total
}

// Save writes the records as JSON
func (s *GameStats) Save(path string) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	data, err := json.Marshal(s.Games)
	if err != nil {
		return fmt.Errorf("failed to marshal stats data: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write stats file: %w", err)
	}
	return nil
}

// Load replaces the records with the saved ones. A missing file leaves the
// stats empty.
func (s *GameStats) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read stats file: %w", err)
	}

	var games []GameRecord
	if err := json.Unmarshal(data, &games); err != nil {
		return fmt.Errorf("failed to parse stats file: %w", err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.Games = games
	return nil
}
