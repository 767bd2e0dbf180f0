// Package ensemble forward propagates several pretrained models side by side,
// one time step per call. Every model receives its own slice of the input and
// its own batch order, so the models need not see the same data.
package ensemble

import "github.com/pkg/errors"

import "github.com/junosan/char-lm/net"
import "github.com/junosan/char-lm/parallel"
import "github.com/junosan/char-lm/workspace"

// Ensemble runs distinct Steppers in lock step. It is not safe for
// concurrent use.
type Ensemble struct {
	nets      []net.Stepper
	batchSize int
	indices   [][]int32
	inputDim  int
	targetDim int
	time      int32
	errs      []error
}

// New checks that every net agrees on dimensions and that indices holds one
// list of batchSize state ids per net.
func New(nets []net.Stepper, batchSize int, indices [][]int32) (*Ensemble, error) {
	if len(nets) == 0 {
		return nil, errors.New("ensemble needs at least one net")
	}
	if batchSize <= 0 {
		return nil, errors.Errorf("batch size must be positive (%d)", batchSize)
	}
	if len(indices) != len(nets) {
		return nil, errors.Errorf("%d index lists for %d nets", len(indices), len(nets))
	}
	e := &Ensemble{
		nets:      nets,
		batchSize: batchSize,
		indices:   make([][]int32, len(indices)),
		errs:      make([]error, len(nets)),
	}
	for i, idx := range indices {
		if len(idx) != batchSize {
			return nil, errors.Errorf("index list %d has %d ids, want %d", i, len(idx), batchSize)
		}
		e.indices[i] = append([]int32(nil), idx...)
	}
	e.inputDim, e.targetDim = nets[0].Dimensions()
	for i, n := range nets[1:] {
		in, tgt := n.Dimensions()
		if in != e.inputDim || tgt != e.targetDim {
			return nil, errors.Errorf("net %d has dimensions %d/%d, net 0 has %d/%d", i+1, in, tgt, e.inputDim, e.targetDim)
		}
	}
	return e, nil
}

// Open loads the best checkpoint of every workspace with load.
func Open(workspaces []string, batchSize int, indices [][]int32, load func([]byte) (net.Stepper, error)) (*Ensemble, error) {
	nets := make([]net.Stepper, len(workspaces))
	for i, location := range workspaces {
		store, err := workspace.Open(location)
		if err != nil {
			return nil, err
		}
		blob, err := store.Load("best")
		store.Close()
		if err != nil {
			return nil, err
		}
		if nets[i], err = load(blob); err != nil {
			return nil, errors.Wrapf(err, "net %d from %s", i, location)
		}
	}
	return New(nets, batchSize, indices)
}

// Reset rewinds to t = 0.
func (e *Ensemble) Reset() {
	e.time = 0
}

func (e *Ensemble) Time() int32 {
	return e.time
}

func (e *Ensemble) Len() int {
	return len(e.nets)
}

func (e *Ensemble) Dimensions() (input, target int) {
	return e.inputDim, e.targetDim
}

// RunOneStep feeds in, flattened [nets][batch][input dim], and returns the
// outputs flattened [nets][batch][target dim]. Time advances by one.
func (e *Ensemble) RunOneStep(in []float32) ([]float32, error) {
	inLen := e.batchSize * e.inputDim
	outLen := e.batchSize * e.targetDim
	if len(in) != len(e.nets)*inLen {
		return nil, errors.Errorf("input has %d values, want %d", len(in), len(e.nets)*inLen)
	}
	out := make([]float32, len(e.nets)*outLen)
	parallel.ForEach(len(e.nets), parallel.Workers(), func(i int) {
		e.errs[i] = e.nets[i].Step(in[i*inLen:(i+1)*inLen], e.time, e.indices[i], out[i*outLen:(i+1)*outLen])
	})
	for i, err := range e.errs {
		if err != nil {
			return nil, errors.Wrapf(err, "net %d at t=%d", i, e.time)
		}
	}
	e.time++
	return out, nil
}

// Average returns the mean over nets of out, as returned by RunOneStep,
// flattened [batch][target dim].
func (e *Ensemble) Average(out []float32) []float32 {
	n := e.batchSize * e.targetDim
	avg := make([]float32, n)
	for i := range e.nets {
		for j, v := range out[i*n : (i+1)*n] {
			avg[j] += v
		}
	}
	scale := 1 / float32(len(e.nets))
	for j := range avg {
		avg[j] *= scale
	}
	return avg
}
