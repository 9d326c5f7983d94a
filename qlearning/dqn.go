package qlearning

import (
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"snake-sim/game/rng"
)

func init() {
	gob.Register(&tensor.Dense{})
	gob.Register(map[string]*tensor.Dense{})
}

const (
	DQNLearningRate  = 0.005
	DQNGamma         = 0.95
	BatchSize        = 32
	ReplayBufferSize = 5000
	HiddenLayerSize  = 24
	InputFeatures    = 24 // walls, self and food closeness for 8 relative headings
	OutputActions    = 3
	GradientClip     = 0.5

	// Soft update rate of the target network
	tau = 0.01
)

// Transition is a single environment step
type Transition struct {
	State     []float64
	Action    int
	Reward    float64
	NextState []float64
	Done      bool
}

// ReplayBuffer is a ring buffer of past transitions
type ReplayBuffer struct {
	buffer   []Transition
	maxSize  int
	position int
	size     int
}

func NewReplayBuffer(maxSize int) *ReplayBuffer {
	return &ReplayBuffer{
		buffer:  make([]Transition, maxSize),
		maxSize: maxSize,
	}
}

func (b *ReplayBuffer) Add(t Transition) {
	b.buffer[b.position] = t
	b.position = (b.position + 1) % b.maxSize
	if b.size < b.maxSize {
		b.size++
	}
}

func (b *ReplayBuffer) Len() int {
	return b.size
}

// Sample draws batchSize transitions with replacement
func (b *ReplayBuffer) Sample(r *rng.RNG, batchSize int) []Transition {
	batch := make([]Transition, batchSize)
	for i := range batch {
		batch[i] = b.buffer[r.Intn(b.size)]
	}
	return batch
}

// network is a two layer perceptron compiled once for a fixed batch size
type network struct {
	g      *gorgonia.ExprGraph
	x      *gorgonia.Node
	w1, b1 *gorgonia.Node
	w2, b2 *gorgonia.Node
	pred   *gorgonia.Node
	batch  int
}

func newNetwork(batch int) *network {
	g := gorgonia.NewGraph()
	n := &network{g: g, batch: batch}

	n.x = gorgonia.NewMatrix(g, tensor.Float64, gorgonia.WithShape(batch, InputFeatures), gorgonia.WithName("x"))
	n.w1 = gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(InputFeatures, HiddenLayerSize),
		gorgonia.WithName("w1"),
		gorgonia.WithInit(gorgonia.GlorotU(1.0)))
	n.b1 = gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(1, HiddenLayerSize),
		gorgonia.WithName("b1"),
		gorgonia.WithInit(gorgonia.Zeroes()))
	n.w2 = gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(HiddenLayerSize, OutputActions),
		gorgonia.WithName("w2"),
		gorgonia.WithInit(gorgonia.GlorotU(1.0)))
	n.b2 = gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(1, OutputActions),
		gorgonia.WithName("b2"),
		gorgonia.WithInit(gorgonia.Zeroes()))

	// (batch,1) x (1,n) spreads a bias row over the batch
	ones := gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(batch, 1),
		gorgonia.WithName("ones"),
		gorgonia.WithInit(gorgonia.Ones()))

	h := gorgonia.Must(gorgonia.Mul(n.x, n.w1))
	h = gorgonia.Must(gorgonia.Add(h, gorgonia.Must(gorgonia.Mul(ones, n.b1))))
	h = gorgonia.Must(gorgonia.Rectify(h))

	out := gorgonia.Must(gorgonia.Mul(h, n.w2))
	n.pred = gorgonia.Must(gorgonia.Add(out, gorgonia.Must(gorgonia.Mul(ones, n.b2))))
	return n
}

func (n *network) learnables() gorgonia.Nodes {
	return gorgonia.Nodes{n.w1, n.b1, n.w2, n.b2}
}

func (n *network) weights() map[string]*tensor.Dense {
	return map[string]*tensor.Dense{
		"w1": n.w1.Value().(*tensor.Dense),
		"b1": n.b1.Value().(*tensor.Dense),
		"w2": n.w2.Value().(*tensor.Dense),
		"b2": n.b2.Value().(*tensor.Dense),
	}
}

// blend moves the weights of n towards source. rate 1 is a hard copy.
func (n *network) blend(source *network, rate float64) {
	src := source.weights()
	for name, dst := range n.weights() {
		blendTensor(dst, src[name], rate)
	}
}

func blendTensor(target, source *tensor.Dense, rate float64) {
	targetData := target.Data().([]float64)
	sourceData := source.Data().([]float64)
	for i := range targetData {
		targetData[i] = rate*sourceData[i] + (1-rate)*targetData[i]
	}
}

func (n *network) input(states [][]float64) *tensor.Dense {
	backing := make([]float64, n.batch*InputFeatures)
	for i, s := range states {
		copy(backing[i*InputFeatures:(i+1)*InputFeatures], s)
	}
	return tensor.New(tensor.WithShape(n.batch, InputFeatures), tensor.WithBacking(backing))
}

// forward runs the graph on vm and returns one row of Q-values per batch row
func (n *network) forward(vm gorgonia.VM, states [][]float64) ([]float64, error) {
	defer vm.Reset()
	if err := gorgonia.Let(n.x, n.input(states)); err != nil {
		return nil, fmt.Errorf("failed to bind input: %w", err)
	}
	if err := vm.RunAll(); err != nil {
		return nil, fmt.Errorf("forward pass error: %w", err)
	}
	predTensor, ok := n.pred.Value().(*tensor.Dense)
	if !ok {
		return nil, fmt.Errorf("invalid prediction tensor type")
	}
	q := make([]float64, n.batch*OutputActions)
	copy(q, predTensor.Data().([]float64))
	return q, nil
}

// DQN is a deep Q-network learner with experience replay and a soft updated
// target network. The online network trains on batches; a single row copy of
// it picks actions.
type DQN struct {
	online   *network
	target   *network
	policy   *network
	targetQ  *gorgonia.Node
	mask     *gorgonia.Node
	loss     *gorgonia.Node
	trainVM  gorgonia.VM
	targetVM gorgonia.VM
	policyVM gorgonia.VM
	solver   gorgonia.Solver

	replay  *ReplayBuffer
	rng     *rng.RNG
	lastErr error

	Discount        float64
	Eps             float64
	InitialEpsilon  float64
	MinEpsilon      float64
	TrainingEpisode int
}

// NewDQN builds the three graphs and compiles their machines
func NewDQN(seed uint64) (*DQN, error) {
	d := &DQN{
		online:         newNetwork(BatchSize),
		target:         newNetwork(BatchSize),
		policy:         newNetwork(1),
		replay:         NewReplayBuffer(ReplayBufferSize),
		rng:            rng.New(seed),
		Discount:       DQNGamma,
		Eps:            1.0,
		InitialEpsilon: 1.0,
		MinEpsilon:     0.05,
	}

	g := d.online.g
	d.targetQ = gorgonia.NewMatrix(g, tensor.Float64, gorgonia.WithShape(BatchSize, OutputActions), gorgonia.WithName("target"))
	d.mask = gorgonia.NewMatrix(g, tensor.Float64, gorgonia.WithShape(BatchSize, OutputActions), gorgonia.WithName("mask"))

	diff := gorgonia.Must(gorgonia.Sub(d.online.pred, d.targetQ))
	masked := gorgonia.Must(gorgonia.HadamardProd(diff, d.mask))
	d.loss = gorgonia.Must(gorgonia.Mean(gorgonia.Must(gorgonia.Square(masked))))

	if _, err := gorgonia.Grad(d.loss, d.online.learnables()...); err != nil {
		return nil, fmt.Errorf("failed to build gradients: %w", err)
	}

	d.trainVM = gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(d.online.learnables()...))
	d.targetVM = gorgonia.NewTapeMachine(d.target.g)
	d.policyVM = gorgonia.NewTapeMachine(d.policy.g)
	d.solver = gorgonia.NewAdamSolver(
		gorgonia.WithLearnRate(DQNLearningRate),
		gorgonia.WithL2Reg(1e-6),
		gorgonia.WithClip(GradientClip),
	)

	d.target.blend(d.online, 1)
	d.policy.blend(d.online, 1)
	return d, nil
}

func (d *DQN) Epsilon() float64 {
	return d.Eps
}

// QValues returns the policy network's estimate for one state
func (d *DQN) QValues(state []float64) ([]float64, error) {
	return d.policy.forward(d.policyVM, [][]float64{state})
}

// Act picks an action with an epsilon-greedy policy
func (d *DQN) Act(state []float64, numActions int) int {
	if d.rng.Float64() < d.Eps {
		return d.rng.Intn(numActions)
	}
	q, err := d.QValues(state)
	if err != nil {
		return d.rng.Intn(numActions)
	}
	best := 0
	for i := 1; i < numActions && i < len(q); i++ {
		if q[i] > q[best] {
			best = i
		}
	}
	return best
}

// Learn stores the transition and trains on a replayed batch once enough
// transitions are buffered
func (d *DQN) Learn(state []float64, action int, reward float64, next []float64, done bool, numActions int) {
	d.replay.Add(Transition{State: state, Action: action, Reward: reward, NextState: next, Done: done})
	if d.replay.Len() < BatchSize {
		return
	}
	if err := d.trainOnBatch(d.replay.Sample(d.rng, BatchSize)); err != nil {
		d.lastErr = err
	}
}

// Err returns the last training failure, if any
func (d *DQN) Err() error {
	return d.lastErr
}

func (d *DQN) trainOnBatch(batch []Transition) error {
	states := make([][]float64, len(batch))
	nexts := make([][]float64, len(batch))
	for i, t := range batch {
		states[i] = t.State
		nexts[i] = t.NextState
	}

	nextQ, err := d.target.forward(d.targetVM, nexts)
	if err != nil {
		return err
	}

	targets := make([]float64, BatchSize*OutputActions)
	mask := make([]float64, BatchSize*OutputActions)
	for i, t := range batch {
		y := t.Reward
		if !t.Done {
			maxQ := math.Inf(-1)
			for j := 0; j < OutputActions; j++ {
				maxQ = math.Max(maxQ, nextQ[i*OutputActions+j])
			}
			y += d.Discount * maxQ
		}
		targets[i*OutputActions+t.Action] = y
		mask[i*OutputActions+t.Action] = 1
	}

	defer d.trainVM.Reset()
	if err := gorgonia.Let(d.online.x, d.online.input(states)); err != nil {
		return err
	}
	if err := gorgonia.Let(d.targetQ, tensor.New(tensor.WithShape(BatchSize, OutputActions), tensor.WithBacking(targets))); err != nil {
		return err
	}
	if err := gorgonia.Let(d.mask, tensor.New(tensor.WithShape(BatchSize, OutputActions), tensor.WithBacking(mask))); err != nil {
		return err
	}
	if err := d.trainVM.RunAll(); err != nil {
		return fmt.Errorf("error during backprop: %w", err)
	}
	if err := d.solver.Step(gorgonia.NodesToValueGrads(d.online.learnables())); err != nil {
		return fmt.Errorf("solver step failed: %w", err)
	}

	d.target.blend(d.online, tau)
	d.policy.blend(d.online, 1)
	return nil
}

// IncrementEpisode advances the episode counter and decays epsilon
func (d *DQN) IncrementEpisode() {
	d.TrainingEpisode++
	d.Eps = math.Max(d.MinEpsilon, d.InitialEpsilon*math.Exp(-float64(d.TrainingEpisode)/500))
}

type savedDQN struct {
	Weights         map[string]*tensor.Dense
	Epsilon         float64
	TrainingEpisode int
}

// Save writes the online weights and training progress as gob
func (d *DQN) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create weights file: %w", err)
	}
	defer f.Close()

	saved := savedDQN{Weights: d.online.weights(), Epsilon: d.Eps, TrainingEpisode: d.TrainingEpisode}
	if err := gob.NewEncoder(f).Encode(saved); err != nil {
		return fmt.Errorf("failed to encode weights: %w", err)
	}
	return nil
}

// Load restores weights into all three networks. A missing file is not an
// error.
func (d *DQN) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open weights file: %w", err)
	}
	defer f.Close()

	var saved savedDQN
	if err := gob.NewDecoder(f).Decode(&saved); err != nil {
		return fmt.Errorf("failed to decode weights: %w", err)
	}

	for name, dst := range d.online.weights() {
		src, ok := saved.Weights[name]
		if !ok {
			continue
		}
		if !src.Shape().Eq(dst.Shape()) {
			return fmt.Errorf("weights %s: shape %v does not match %v", name, src.Shape(), dst.Shape())
		}
		copy(dst.Data().([]float64), src.Data().([]float64))
	}
	d.target.blend(d.online, 1)
	d.policy.blend(d.online, 1)
	d.Eps = saved.Epsilon
	d.TrainingEpisode = saved.TrainingEpisode
	return nil
}
