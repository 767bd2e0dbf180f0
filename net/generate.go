package net

import "math/rand"

import "github.com/pkg/errors"

// Sample draws an index with probability proportional to p. Rounding that
// makes p sum to slightly more or less than one is tolerated.
func Sample(p []float32, rng *rand.Rand) int {
	var total float64
	for _, v := range p {
		if v > 0 {
			total += float64(v)
		}
	}
	u := rng.Float64() * total
	last := 0
	for i, v := range p {
		if v <= 0 {
			continue
		}
		last = i
		u -= float64(v)
		if u < 0 {
			return i
		}
	}
	return last
}

// Generate primes s with the symbols of prime, fed one per time step, then
// samples n further symbols, each fed back as the next input.
func Generate(s Stepper, prime []byte, n int, rng *rand.Rand) ([]byte, error) {
	if len(prime) == 0 {
		return nil, errors.New("generate: empty priming text")
	}
	inDim, tgtDim := s.Dimensions()
	in := make([]float32, inDim)
	out := make([]float32, tgtDim)
	ids := []int32{0}

	var t int32
	feed := func(sym byte) error {
		if int(sym) >= inDim {
			return errors.Errorf("generate: symbol %d outside input dimension %d", sym, inDim)
		}
		for i := range in {
			in[i] = 0
		}
		in[sym] = 1
		err := s.Step(in, t, ids, out)
		t++
		return err
	}

	for _, sym := range prime {
		if err := feed(sym); err != nil {
			return nil, err
		}
	}
	gen := make([]byte, 0, n)
	for len(gen) < n {
		sym := byte(Sample(out, rng))
		gen = append(gen, sym)
		if err := feed(sym); err != nil {
			return gen, err
		}
	}
	return gen, nil
}
