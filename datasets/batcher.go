package datasets

import "math/rand"

import "github.com/pkg/errors"

// TextBatcher reads fixed length contiguous slices out of a Corpus, one per
// batch slot, each slot advancing its own cursor and wrapping around the end
// of the corpus.
//
// Seed the rng before constructing a TextBatcher to make runs repeatable.
type TextBatcher struct {
	data    Corpus
	cursors []int
	buf     []byte
}

// NewTextBatcher creates a batcher with batchSize cursors placed uniformly at
// random in the corpus. Corpora not built by NewCorpus are checked again.
func NewTextBatcher(c Corpus, batchSize int, rng *rand.Rand) (*TextBatcher, error) {
	if len(c) == 0 {
		return nil, ErrEmptyCorpus
	}
	for i, s := range c {
		if s >= Classes {
			return nil, errors.Wrapf(ErrBadSymbol, "symbol %d at offset %d", s, i)
		}
	}
	if batchSize <= 0 {
		return nil, errors.Errorf("batch size must be positive (%d)", batchSize)
	}
	if rng == nil {
		return nil, errors.New("nil random source")
	}
	b := &TextBatcher{
		data:    c,
		cursors: make([]int, batchSize),
	}
	for i := range b.cursors {
		b.cursors[i] = rng.Intn(len(c))
	}
	return b, nil
}

// Size returns the corpus length.
func (b *TextBatcher) Size() int {
	return len(b.data)
}

// BatchSize returns the number of cursors.
func (b *TextBatcher) BatchSize() int {
	return len(b.cursors)
}

// Cursor returns the read position of a batch slot.
func (b *TextBatcher) Cursor(slot int) int {
	return b.cursors[slot]
}

// SetCursor moves a batch slot to pos mod Size.
func (b *TextBatcher) SetCursor(slot, pos int) error {
	if slot < 0 || slot >= len(b.cursors) {
		return errors.Errorf("slot %d out of range [0, %d)", slot, len(b.cursors))
	}
	if pos < 0 {
		return errors.Errorf("negative cursor position %d", pos)
	}
	b.cursors[slot] = pos % len(b.data)
	return nil
}

// Next returns freshly allocated input and target slices of shape
// [step][batch], target being input one frame ahead.
func (b *TextBatcher) Next(step int) (input, target [][]int32) {
	input = make([][]int32, step)
	target = make([][]int32, step)
	for t := range input {
		input[t] = make([]int32, len(b.cursors))
		target[t] = make([]int32, len(b.cursors))
	}
	b.NextInto(input, target)
	return
}

// NextInto is Next writing into caller owned rows. The step is len(input);
// every row must hold at least BatchSize values.
func (b *TextBatcher) NextInto(input, target [][]int32) {
	step := len(input)
	if step < 1 || len(target) != step {
		panic("datasets: NextInto needs step >= 1 and equal input/target rows")
	}
	if cap(b.buf) < step+1 {
		b.buf = make([]byte, step+1)
	}
	seq := b.buf[:step+1]
	n := len(b.data)
	for i, idx := range b.cursors {
		b.read(seq, idx)
		for t := 0; t < step; t++ {
			input[t][i] = int32(seq[t])
			target[t][i] = int32(seq[t+1])
		}
		b.cursors[i] = (idx + step) % n
	}
}

// read fills dst with the symbols starting at idx, wrapping as often as
// needed; each pass resumes exactly where the previous one stopped.
func (b *TextBatcher) read(dst []byte, idx int) {
	for len(dst) > 0 {
		k := copy(dst, b.data[idx:])
		dst = dst[k:]
		idx = 0
	}
}
