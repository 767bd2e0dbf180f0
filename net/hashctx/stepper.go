package hashctx

import "math"

import "github.com/pkg/errors"
import "gonum.org/v1/gonum/floats"

import "github.com/junosan/char-lm/datasets"
import "github.com/junosan/char-lm/hash"

// Step implements net.Stepper. Each input row is a score vector over the
// symbols, usually one-hot; its argmax is the symbol consumed. Output rows
// are next symbol probabilities. State is kept per id and cleared at t == 0.
//
// Step must not be called concurrently on the same Model.
func (m *Model) Step(input []float32, t int32, ids []int32, output []float32) error {
	const k = datasets.Classes
	if len(input) != len(ids)*k || len(output) != len(ids)*k {
		return errors.Errorf("step: %d ids need %d inputs and outputs, have %d and %d",
			len(ids), len(ids)*k, len(input), len(output))
	}
	if t == 0 {
		clear(m.steps)
	}
	var l [k]float64
	for r, id := range ids {
		ctx := m.steps[id].Push(argmax(input[r*k:(r+1)*k]), m.opts.Order)
		m.steps[id] = ctx
		m.logits(l[:], ctx)
		lse := floats.LogSumExp(l[:])
		for c := range l {
			output[r*k+c] = float32(math.Exp(l[c] - lse))
		}
	}
	return nil
}

func argmax(v []float32) byte {
	best := 0
	for i := range v {
		if v[i] > v[best] {
			best = i
		}
	}
	return byte(best)
}

// OneHot writes the one-hot encoding of sym into dst.
func OneHot(dst []float32, sym byte) {
	for i := range dst {
		dst[i] = 0
	}
	dst[sym] = 1
}

// Context returns the state currently kept for id.
func (m *Model) Context(id int32) hash.Context {
	return m.steps[id]
}
