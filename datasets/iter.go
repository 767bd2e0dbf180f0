package datasets

import "math/rand"

import "github.com/pkg/errors"

// ErrWindowSize is returned when the step size does not fit the window.
var ErrWindowSize = errors.New("step size must be in [1, window size]")

// Window is one BPTT(window; step) slice of the input stream, stored time
// major: Input[t][b] is the symbol at time t of batch slot b and Target[t][b]
// is the symbol that follows it in the corpus.
type Window struct {
	Input  [][]int32
	Target [][]int32

	// Step is the number of rows that were read by the call which
	// produced this window; they are the last Step rows.
	Step int

	// Valid is the number of trailing rows holding real data. Leading rows
	// beyond it are zero fill from initialization, which is distinct from
	// the blank symbol 0.
	Valid int
}

// Size returns the number of rows.
func (w Window) Size() int {
	return len(w.Input)
}

// Full reports whether every row holds real data.
func (w Window) Full() bool {
	return w.Valid >= len(w.Input)
}

// Start returns the first row holding real data.
func (w Window) Start() int {
	return len(w.Input) - w.Valid
}

// Fresh returns the row range [lo, hi) read by the latest call.
func (w Window) Fresh() (lo, hi int) {
	return len(w.Input) - w.Step, len(w.Input)
}

// Clone returns a deep copy which stays valid across DataIter calls.
func (w Window) Clone() Window {
	c := w
	c.Input = cloneRows(w.Input)
	c.Target = cloneRows(w.Target)
	return c
}

func cloneRows(rows [][]int32) [][]int32 {
	if len(rows) == 0 {
		return nil
	}
	width := len(rows[0])
	flat := make([]int32, len(rows)*width)
	out := make([][]int32, len(rows))
	for t, row := range rows {
		out[t] = flat[t*width : (t+1)*width : (t+1)*width]
		copy(out[t], row)
	}
	return out
}

// DataIter presents an unbounded stream of overlapping windows. Each call to
// Next shifts the window left by the step size and fills the freed rows with
// fresh data from the underlying TextBatcher.
//
// DataIter is not safe for concurrent use.
type DataIter struct {
	data   *TextBatcher
	window int
	step   int
	valid  int

	input  [][]int32
	target [][]int32
}

// NewDataIter creates a TextBatcher over c and wraps it.
func NewDataIter(c Corpus, window, step, batch int, rng *rand.Rand) (*DataIter, error) {
	if step < 1 || window < step {
		return nil, errors.Wrapf(ErrWindowSize, "window %d step %d", window, step)
	}
	b, err := NewTextBatcher(c, batch, rng)
	if err != nil {
		return nil, err
	}
	return NewDataIterFrom(b, window, step)
}

// NewDataIterFrom wraps an existing batcher. The buffers start zero filled.
func NewDataIterFrom(b *TextBatcher, window, step int) (*DataIter, error) {
	if step < 1 || window < step {
		return nil, errors.Wrapf(ErrWindowSize, "window %d step %d", window, step)
	}
	return &DataIter{
		data:   b,
		window: window,
		step:   step,
		input:  makeRows(window, b.BatchSize()),
		target: makeRows(window, b.BatchSize()),
	}, nil
}

func makeRows(rows, width int) [][]int32 {
	flat := make([]int32, rows*width)
	out := make([][]int32, rows)
	for t := range out {
		out[t] = flat[t*width : (t+1)*width : (t+1)*width]
	}
	return out
}

// SetStepSize changes the advance per call. Use step < window for training
// (overlapping windows) and step == window for inference.
func (d *DataIter) SetStepSize(step int) error {
	if step < 1 || step > d.window {
		return errors.Wrapf(ErrWindowSize, "window %d step %d", d.window, step)
	}
	d.step = step
	return nil
}

func (d *DataIter) StepSize() int   { return d.step }
func (d *DataIter) WindowSize() int { return d.window }
func (d *DataIter) BatchSize() int  { return d.data.BatchSize() }

// Size returns the corpus length.
func (d *DataIter) Size() int {
	return d.data.Size()
}

// Batcher exposes the underlying TextBatcher.
func (d *DataIter) Batcher() *TextBatcher {
	return d.data
}

// Next advances the stream by one step and returns the whole window.
//
// The returned Window aliases the iterator's buffers: it is overwritten by the
// following call. Use Window.Clone to keep it longer.
func (d *DataIter) Next() Window {
	s := d.step
	w := d.window
	if s < w {
		// rows share one flat backing array, so shift values not headers
		for t := 0; t < w-s; t++ {
			copy(d.input[t], d.input[t+s])
			copy(d.target[t], d.target[t+s])
		}
	}
	d.data.NextInto(d.input[w-s:], d.target[w-s:])

	d.valid += s
	if d.valid > w {
		d.valid = w
	}
	return Window{
		Input:  d.input,
		Target: d.target,
		Step:   s,
		Valid:  d.valid,
	}
}
