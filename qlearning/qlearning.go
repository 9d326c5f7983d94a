package qlearning

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"snake-sim/game/rng"
)

const (
	DataDir     = "data"
	QTableFile  = DataDir + "/qtable.json"
	WeightsFile = DataDir + "/dqn_weights.gob"

	// Number of buckets each feature is quantized into for the table key
	stateBuckets = 4
)

// Learner is the contract shared by the tabular agent and the DQN
type Learner interface {
	Act(state []float64, numActions int) int
	Learn(state []float64, action int, reward float64, next []float64, done bool, numActions int)
	IncrementEpisode()
	Epsilon() float64
	Save(path string) error
	Load(path string) error
}

// QTable stores Q-values per state-action pair
type QTable map[string][]float64

// Agent is a tabular Q-learning agent with epsilon-greedy exploration
type Agent struct {
	QTable          QTable  `json:"qtable"`
	LearningRate    float64 `json:"learning_rate"`
	Discount        float64 `json:"discount"`
	Eps             float64 `json:"epsilon"`
	InitialEpsilon  float64 `json:"initial_epsilon"`
	MinEpsilon      float64 `json:"min_epsilon"`
	EpsilonDecay    float64 `json:"epsilon_decay"`
	TrainingEpisode int     `json:"training_episode"`

	rng *rng.RNG
}

// NewAgent creates a tabular agent. seed drives exploration so a training
// session can be replayed.
func NewAgent(learningRate, discount float64, seed uint64) *Agent {
	return &Agent{
		QTable:         make(QTable),
		LearningRate:   learningRate,
		Discount:       discount,
		Eps:            0.9,
		InitialEpsilon: 0.9,
		MinEpsilon:     0.1,
		EpsilonDecay:   0.999,
		rng:            rng.New(seed),
	}
}

// StateKey quantizes a feature vector into a table key
func StateKey(state []float64) string {
	var b strings.Builder
	for i, v := range state {
		if i > 0 {
			b.WriteByte(',')
		}
		bucket := int(v * stateBuckets)
		if bucket >= stateBuckets {
			bucket = stateBuckets - 1
		}
		b.WriteString(strconv.Itoa(bucket))
	}
	return b.String()
}

func (a *Agent) Epsilon() float64 {
	return a.Eps
}

// Act picks an action with an epsilon-greedy policy
func (a *Agent) Act(state []float64, numActions int) int {
	if a.rng.Float64() < a.Eps {
		return a.rng.Intn(numActions)
	}
	return a.bestAction(StateKey(state), numActions)
}

func (a *Agent) bestAction(key string, numActions int) int {
	values, ok := a.QTable[key]
	if !ok {
		return a.rng.Intn(numActions)
	}
	best := 0
	for i := 1; i < numActions && i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}

func (a *Agent) values(key string, numActions int) []float64 {
	v, ok := a.QTable[key]
	if !ok {
		v = make([]float64, numActions)
		a.QTable[key] = v
	}
	return v
}

// Learn applies the Q-learning update rule
func (a *Agent) Learn(state []float64, action int, reward float64, next []float64, done bool, numActions int) {
	current := a.values(StateKey(state), numActions)

	target := reward
	if !done {
		nextValues := a.values(StateKey(next), numActions)
		maxNext := math.Inf(-1)
		for _, q := range nextValues {
			if q > maxNext {
				maxNext = q
			}
		}
		target += a.Discount * maxNext
	}

	current[action] += a.LearningRate * (target - current[action])
}

// IncrementEpisode advances the episode counter and decays epsilon
func (a *Agent) IncrementEpisode() {
	a.TrainingEpisode++
	a.Eps = a.InitialEpsilon * math.Pow(a.EpsilonDecay, float64(a.TrainingEpisode))
	if a.Eps < a.MinEpsilon {
		a.Eps = a.MinEpsilon
	}
}

// Save writes the agent as JSON
func (a *Agent) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal q-table: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write q-table: %w", err)
	}
	return nil
}

// Load replaces the table and training progress with the saved ones. A missing
// file is not an error.
func (a *Agent) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read q-table: %w", err)
	}

	var saved Agent
	if err := json.Unmarshal(data, &saved); err != nil {
		return fmt.Errorf("failed to parse q-table: %w", err)
	}
	if saved.QTable == nil {
		saved.QTable = make(QTable)
	}
	a.QTable = saved.QTable
	a.Eps = saved.Eps
	a.TrainingEpisode = saved.TrainingEpisode
	return nil
}
