package hashctx

import "math"
import "math/rand"
import "strings"
import "testing"

import "github.com/junosan/char-lm/datasets"

func testModel(t testing.TB, mutate func(*Options)) *Model {
	o := DefaultOptions()
	o.Buckets = 257
	o.Workers = 2
	if mutate != nil {
		mutate(&o)
	}
	m, err := New(o, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func testCorpus(t testing.TB, s string) datasets.Corpus {
	c, err := datasets.NewCorpus([]byte(s))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestOptionsValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*Options)
	}{
		{"order zero", func(o *Options) { o.Order = 0 }},
		{"order too long", func(o *Options) { o.Order = 7 }},
		{"no buckets", func(o *Options) { o.Buckets = 0 }},
		{"update type", func(o *Options) { o.UpdateType = "lbfgs" }},
		{"force type", func(o *Options) { o.ForceType = "none" }},
		{"mu", func(o *Options) { o.UpdateMu = 1 }},
		{"decay", func(o *Options) { o.ForceMsDecay = 0 }},
		{"clip", func(o *Options) { o.GradNormClip = -1 }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			o := DefaultOptions()
			tc.mutate(&o)
			if err := o.Validate(); err == nil {
				t.Error("expected error")
			}
		})
	}
	if err := DefaultOptions().Validate(); err != nil {
		t.Error(err)
	}
}

func TestNewPrimeBuckets(t *testing.T) {
	m := testModel(t, func(o *Options) { o.Buckets = 1000 })
	if m.Buckets() != 1009 {
		t.Errorf("buckets: got %d, want 1009", m.Buckets())
	}
	if m.NWeights() != 1010*datasets.Classes {
		t.Errorf("weights: got %d", m.NWeights())
	}
}

// Losses reported over successive training windows must equal the losses
// of feeding the same stream one symbol at a time.
func TestWindowMatchesStepping(t *testing.T) {
	corpus := testCorpus(t, "now is the time for all good men to come to the aid")
	for _, tc := range []struct {
		window, step int
	}{
		{6, 2}, {5, 5}, {8, 3}, {4, 1},
	} {
		m := testModel(t, func(o *Options) { o.Order = 3 })
		b, _ := datasets.NewTextBatcher(corpus, 1, rand.New(rand.NewSource(1)))
		b.SetCursor(0, 0)
		d, err := datasets.NewDataIterFrom(b, tc.window, tc.step)
		if err != nil {
			t.Fatal(err)
		}
		const calls = 12
		var got float64
		for k := 0; k < calls; k++ {
			loss, err := m.FwdPropagate(d.Next())
			if err != nil {
				t.Fatal(err)
			}
			got += loss
		}

		var want float64
		in := make([]float32, datasets.Classes)
		out := make([]float32, datasets.Classes)
		n := corpus.Len()
		for k := 0; k < calls*tc.step; k++ {
			OneHot(in, corpus[k%n])
			if err := m.Step(in, int32(k), []int32{0}, out); err != nil {
				t.Fatal(err)
			}
			want -= math.Log(float64(out[corpus[(k+1)%n]]))
		}
		if math.Abs(got-want) > 1e-4*math.Abs(want) {
			t.Errorf("window %d step %d: windowed loss %g, stepped loss %g", tc.window, tc.step, got, want)
		}
	}
}

func TestTrainingReducesLoss(t *testing.T) {
	corpus := testCorpus(t, strings.Repeat("abc ", 64))
	for _, tc := range []struct {
		update, force string
		lr            float64
	}{
		{UpdateSGD, ForceVanilla, 1},
		{UpdateMomentum, ForceVanilla, 0.2},
		{UpdateNesterov, ForceRMSProp, 0.01},
		{UpdateNesterov, ForceAdam, 0.01},
		{UpdateSGD, ForceAdadelta, 1},
	} {
		t.Run(tc.update+"/"+tc.force, func(t *testing.T) {
			m := testModel(t, func(o *Options) {
				o.UpdateType = tc.update
				o.ForceType = tc.force
				o.GradNormClip = 5
			})
			d, _ := datasets.NewDataIter(corpus, 8, 4, 4, rand.New(rand.NewSource(2)))
			d.Next()
			probe := d.Next().Clone()

			eval := func() float64 {
				m.ResetStates()
				loss, err := m.FwdPropagate(probe)
				if err != nil {
					t.Fatal(err)
				}
				return loss
			}
			before := eval()
			m.ResetStates()
			for i := 0; i < 100; i++ {
				if _, err := m.FwdBwdPropagate(d.Next()); err != nil {
					t.Fatal(err)
				}
				m.UpdateParams(tc.lr)
			}
			if after := eval(); !(after < before) {
				t.Errorf("loss did not drop: before %g after %g", before, after)
			}
		})
	}
}

func TestInitializeOptimizer(t *testing.T) {
	m := testModel(t, nil)
	d, _ := datasets.NewDataIter(testCorpus(t, "hello world"), 4, 2, 2, rand.New(rand.NewSource(1)))
	for i := 0; i < 3; i++ {
		m.FwdBwdPropagate(d.Next())
		m.UpdateParams(0.1)
	}
	m.InitializeOptimizer()
	for _, acc := range [][]float64{m.opt.vel, m.opt.ms, m.opt.ds} {
		for i, v := range acc {
			if v != 0 {
				t.Fatalf("accumulator %d not cleared: %g", i, v)
			}
		}
	}
	if m.opt.steps != 0 {
		t.Error("step count not cleared")
	}
}

func TestUpdateWithoutGradient(t *testing.T) {
	m := testModel(t, nil)
	before := append([]float64(nil), m.params...)
	m.UpdateParams(1)
	for i := range before {
		if m.params[i] != before[i] {
			t.Fatal("parameters changed without a gradient")
		}
	}
}

func TestMarshalBinary(t *testing.T) {
	m := testModel(t, func(o *Options) { o.Order = 5 })
	blob, err := m.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	other, err := Load(blob)
	if err != nil {
		t.Fatal(err)
	}
	if other.Buckets() != m.Buckets() || other.Options().Order != 5 || other.Options().Salt != m.Options().Salt {
		t.Error("dimensions not restored")
	}
	for i := range m.params {
		if other.params[i] != m.params[i] {
			t.Fatalf("param %d differs", i)
		}
	}
	if _, err := Load([]byte("garbage")); err == nil {
		t.Error("expected decode error")
	}
}

func TestStepErrors(t *testing.T) {
	m := testModel(t, nil)
	if err := m.Step(make([]float32, 27), 0, []int32{0, 1}, make([]float32, 54)); err == nil {
		t.Error("expected size error")
	}
	in := make([]float32, 27)
	out := make([]float32, 27)
	OneHot(in, 3)
	m.Step(in, 0, []int32{7}, out)
	m.Step(in, 1, []int32{7}, out)
	if m.Context(7) == 0 {
		t.Fatal("state not kept")
	}
	m.Step(in, 0, []int32{8}, out)
	if m.Context(7) != 0 {
		t.Error("state not cleared at t == 0")
	}
	var sum float32
	for _, p := range out {
		sum += p
	}
	if math.Abs(float64(sum)-1) > 1e-4 {
		t.Errorf("probabilities sum to %g", sum)
	}
}

func TestBadWindow(t *testing.T) {
	m := testModel(t, nil)
	w := datasets.Window{
		Input:  [][]int32{{1}, {30}},
		Target: [][]int32{{2}, {3}},
		Step:   2,
		Valid:  2,
	}
	if _, err := m.FwdPropagate(w); err == nil {
		t.Error("expected bad symbol error")
	}
	if _, err := m.FwdPropagate(datasets.Window{}); err == nil {
		t.Error("expected empty window error")
	}
}

func BenchmarkFwdBwdPropagate(b *testing.B) {
	raw := make([]byte, 1<<14)
	for i := range raw {
		raw[i] = 'a' + byte(i*7%26)
	}
	corpus, _ := datasets.NewCorpus(raw)
	m := testModel(b, nil)
	d, _ := datasets.NewDataIter(corpus, 128, 64, 32, rand.New(rand.NewSource(1)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.FwdBwdPropagate(d.Next())
		m.UpdateParams(1e-3)
	}
}
