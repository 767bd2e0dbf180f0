// Package hashctx is a small trainable character model used to exercise the
// training machinery end to end. Each batch slot keeps the last few symbols
// as its recurrent state; the state is hashed into a prime sized table whose
// rows are the logits of the next symbol.
package hashctx

import "bytes"
import "encoding/gob"
import "math"
import "math/rand"

import "github.com/pkg/errors"
import "gonum.org/v1/gonum/floats"
import "gonum.org/v1/gonum/mat"

import "github.com/junosan/char-lm/datasets"
import "github.com/junosan/char-lm/hash"
import "github.com/junosan/char-lm/parallel"

// Model implements net.Model and net.Stepper.
type Model struct {
	opts    Options
	buckets int

	params []float64 // w followed by b
	w      *mat.Dense
	b      *mat.VecDense
	opt    *optimizer

	// recurrent state of each batch slot, valid when carried
	states  []hash.Context
	carried bool

	// sparse gradient: one row per touched bucket, plus the bias
	gradIndex  map[int]int
	gradRows   [][]float64
	gradBucket []int
	gradBias   []float64
	gradFrames int

	// backward scratch, [slot][fresh row]
	dlogits  []float64
	dbuckets []int

	steps map[int32]hash.Context
}

// New creates a model with weights drawn from rng.
func New(o Options, rng *rand.Rand) (*Model, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	m := &Model{opts: o}
	m.alloc(int(hash.PrimeAtLeast(uint64(o.Buckets))))
	for i := range m.params {
		m.params[i] = rng.NormFloat64() * o.InitScale
	}
	return m, nil
}

// Load creates a model from a MarshalBinary blob using default optimizer
// settings.
func Load(blob []byte) (*Model, error) {
	m := &Model{opts: DefaultOptions()}
	if err := m.UnmarshalBinary(blob); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Model) alloc(buckets int) {
	m.buckets = buckets
	n := buckets*datasets.Classes + datasets.Classes
	m.params = make([]float64, n)
	m.w = mat.NewDense(buckets, datasets.Classes, m.params[:buckets*datasets.Classes])
	m.b = mat.NewVecDense(datasets.Classes, m.params[buckets*datasets.Classes:])
	m.opt = newOptimizer(m.opts, n)
	m.gradIndex = make(map[int]int)
	m.gradBias = make([]float64, datasets.Classes)
	m.gradRows = nil
	m.gradBucket = nil
	m.gradFrames = 0
	m.states = nil
	m.carried = false
	m.steps = make(map[int32]hash.Context)
}

// Options returns the model settings.
func (m *Model) Options() Options {
	return m.opts
}

// Buckets returns the context table size.
func (m *Model) Buckets() int {
	return m.buckets
}

func (m *Model) Dimensions() (input, target int) {
	return datasets.Classes, datasets.Classes
}

func (m *Model) NWeights() int {
	return len(m.params)
}

func (m *Model) ResetStates() {
	for i := range m.states {
		m.states[i] = 0
	}
	m.carried = false
}

func (m *Model) InitializeOptimizer() {
	m.opt.reset()
}

func (m *Model) workers() int {
	if m.opts.Workers > 0 {
		return m.opts.Workers
	}
	return parallel.Workers()
}

func (m *Model) bucket(c hash.Context) int {
	return int(c.Bucket(m.opts.Salt, uint32(m.buckets)))
}

// logits writes the unnormalized scores of context c into dst.
func (m *Model) logits(dst []float64, c hash.Context) {
	copy(dst, m.w.RawRowView(m.bucket(c)))
	floats.Add(dst, m.b.RawVector().Data)
}

func (m *Model) FwdBwdPropagate(w datasets.Window) (float64, error) {
	return m.propagate(w, true)
}

func (m *Model) FwdPropagate(w datasets.Window) (float64, error) {
	return m.propagate(w, false)
}

func checkWindow(w datasets.Window) error {
	if w.Size() == 0 || len(w.Input[0]) == 0 {
		return errors.New("empty window")
	}
	if w.Step < 1 || w.Step > w.Size() || w.Valid < w.Step || w.Valid > w.Size() {
		return errors.Errorf("inconsistent window: size %d step %d valid %d", w.Size(), w.Step, w.Valid)
	}
	for t := w.Start(); t < w.Size(); t++ {
		for i := range w.Input[t] {
			if uint32(w.Input[t][i]) >= datasets.Classes || uint32(w.Target[t][i]) >= datasets.Classes {
				return errors.Wrapf(datasets.ErrBadSymbol, "row %d slot %d", t, i)
			}
		}
	}
	return nil
}

func (m *Model) propagate(w datasets.Window, backward bool) (float64, error) {
	if err := checkWindow(w); err != nil {
		return 0, err
	}
	batch := len(w.Input[0])
	if len(m.states) != batch {
		m.states = make([]hash.Context, batch)
		m.carried = false
	}
	carry := w.Full() && m.carried
	start := w.Start()
	if carry {
		start = 0
	}
	lo, hi := w.Fresh()
	step := hi - lo

	if backward {
		if n := batch * step * datasets.Classes; cap(m.dlogits) < n {
			m.dlogits = make([]float64, n)
		}
		if n := batch * step; cap(m.dbuckets) < n {
			m.dbuckets = make([]int, n)
		}
	}
	losses := make([]float64, batch)
	order := m.opts.Order

	parallel.ForEachChunk(batch, m.workers(), func(first, last int) {
		for i := first; i < last; i++ {
			var scratch [datasets.Classes]float64
			var ctx, next hash.Context
			if carry {
				ctx = m.states[i]
			}
			var loss float64
			for t := start; t < hi; t++ {
				ctx = ctx.Push(byte(w.Input[t][i]), order)
				if t == w.Step-1 {
					next = ctx
				}
				if t < lo {
					continue
				}
				l := scratch[:]
				m.logits(l, ctx)
				lse := floats.LogSumExp(l)
				tgt := w.Target[t][i]
				loss += lse - l[tgt]
				if !backward {
					continue
				}
				k := i*step + t - lo
				m.dbuckets[k] = m.bucket(ctx)
				d := m.dlogits[k*datasets.Classes : (k+1)*datasets.Classes]
				for c := range d {
					d[c] = math.Exp(l[c] - lse)
				}
				d[tgt] -= 1
			}
			losses[i] = loss
			m.states[i] = next
		}
	})
	m.carried = true

	if backward {
		for k := 0; k < batch*step; k++ {
			d := m.dlogits[k*datasets.Classes : (k+1)*datasets.Classes]
			floats.Add(m.gradRow(m.dbuckets[k]), d)
			floats.Add(m.gradBias, d)
		}
		m.gradFrames += batch * step
	}
	return floats.Sum(losses), nil
}

func (m *Model) gradRow(bucket int) []float64 {
	if i, ok := m.gradIndex[bucket]; ok {
		return m.gradRows[i]
	}
	m.gradIndex[bucket] = len(m.gradRows)
	if len(m.gradRows) < cap(m.gradRows) {
		m.gradRows = m.gradRows[:len(m.gradRows)+1]
		row := m.gradRows[len(m.gradRows)-1]
		if row == nil {
			row = make([]float64, datasets.Classes)
			m.gradRows[len(m.gradRows)-1] = row
		}
		m.gradBucket = append(m.gradBucket, bucket)
		return row
	}
	row := make([]float64, datasets.Classes)
	m.gradRows = append(m.gradRows, row)
	m.gradBucket = append(m.gradBucket, bucket)
	return row
}

// UpdateParams applies the mean gradient of the frames seen since the
// previous update and clears it.
func (m *Model) UpdateParams(lr float64) {
	if m.gradFrames == 0 {
		return
	}
	scale := 1 / float64(m.gradFrames)
	if clip := m.opts.GradNormClip; clip > 0 {
		norm := floats.Dot(m.gradBias, m.gradBias)
		for _, row := range m.gradRows {
			norm += floats.Dot(row, row)
		}
		norm = math.Sqrt(norm) * scale
		if norm > clip {
			scale *= clip / norm
		}
	}

	m.opt.begin()
	for i, row := range m.gradRows {
		off := m.gradBucket[i] * datasets.Classes
		m.opt.apply(m.w.RawRowView(m.gradBucket[i]), row, off, scale, lr)
	}
	m.opt.apply(m.b.RawVector().Data, m.gradBias, m.buckets*datasets.Classes, scale, lr)

	for _, row := range m.gradRows {
		floats.Scale(0, row)
	}
	floats.Scale(0, m.gradBias)
	m.gradRows = m.gradRows[:0]
	m.gradBucket = m.gradBucket[:0]
	clear(m.gradIndex)
	m.gradFrames = 0
}

type snapshot struct {
	Order   int
	Buckets int
	Salt    uint32
	Params  []float64
}

// MarshalBinary encodes the model parameters. Optimizer state is not kept.
func (m *Model) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(snapshot{
		Order:   m.opts.Order,
		Buckets: m.buckets,
		Salt:    m.opts.Salt,
		Params:  m.params,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode hashctx model")
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary replaces the parameters, adopting the stored table size
// and context order. Recurrent and optimizer state are cleared.
func (m *Model) UnmarshalBinary(blob []byte) error {
	var s snapshot
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&s); err != nil {
		return errors.Wrap(err, "decode hashctx model")
	}
	if s.Order < 1 || s.Order > hash.MaxOrder || s.Buckets < 1 {
		return errors.Errorf("corrupt hashctx model: order %d buckets %d", s.Order, s.Buckets)
	}
	if len(s.Params) != (s.Buckets+1)*datasets.Classes {
		return errors.Errorf("corrupt hashctx model: %d params for %d buckets", len(s.Params), s.Buckets)
	}
	m.opts.Order = s.Order
	m.opts.Salt = s.Salt
	m.opts.Buckets = s.Buckets
	if m.params == nil || s.Buckets != m.buckets {
		m.alloc(s.Buckets)
	} else {
		m.opt.reset()
		m.ResetStates()
		clear(m.steps)
	}
	copy(m.params, s.Params)
	return nil
}
