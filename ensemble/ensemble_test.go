package ensemble

import "math/rand"
import "path/filepath"
import "testing"

import "github.com/pkg/errors"

import "github.com/junosan/char-lm/net"
import "github.com/junosan/char-lm/net/hashctx"
import "github.com/junosan/char-lm/workspace"

// echo copies its input scaled by gain and records the times it saw.
type echo struct {
	dim   int
	gain  float32
	times []int32
	ids   []int32
	fail  bool
}

func (e *echo) Dimensions() (int, int) { return e.dim, e.dim }

func (e *echo) Step(in []float32, t int32, ids []int32, out []float32) error {
	if e.fail {
		return errors.New("broken net")
	}
	e.times = append(e.times, t)
	e.ids = ids
	for i := range in {
		out[i] = in[i] * e.gain
	}
	return nil
}

func TestNewErrors(t *testing.T) {
	a := &echo{dim: 2, gain: 1}
	b := &echo{dim: 3, gain: 1}
	for _, tc := range []struct {
		name    string
		nets    []net.Stepper
		batch   int
		indices [][]int32
	}{
		{"no nets", nil, 1, nil},
		{"no batch", []net.Stepper{a}, 0, [][]int32{{}}},
		{"index count", []net.Stepper{a}, 1, nil},
		{"index length", []net.Stepper{a}, 2, [][]int32{{0}}},
		{"dimensions", []net.Stepper{a, b}, 1, [][]int32{{0}, {0}}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.nets, tc.batch, tc.indices); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRunOneStep(t *testing.T) {
	a := &echo{dim: 2, gain: 1}
	b := &echo{dim: 2, gain: 3}
	e, err := New([]net.Stepper{a, b}, 2, [][]int32{{0, 1}, {1, 0}})
	if err != nil {
		t.Fatal(err)
	}
	in := []float32{1, 2, 3, 4, 5, 6, 7, 8}
	for step := 0; step < 3; step++ {
		out, err := e.RunOneStep(in)
		if err != nil {
			t.Fatal(err)
		}
		want := []float32{1, 2, 3, 4, 15, 18, 21, 24}
		for i := range want {
			if out[i] != want[i] {
				t.Fatalf("out[%d] = %g, want %g", i, out[i], want[i])
			}
		}
		if step == 0 {
			avg := e.Average(out)
			wantAvg := []float32{8, 10, 12, 14}
			for i := range wantAvg {
				if avg[i] != wantAvg[i] {
					t.Errorf("avg[%d] = %g, want %g", i, avg[i], wantAvg[i])
				}
			}
		}
	}
	if e.Time() != 3 {
		t.Errorf("time %d", e.Time())
	}
	if len(a.times) != 3 || a.times[2] != 2 || b.ids[0] != 1 {
		t.Errorf("nets saw times %v ids %v", a.times, b.ids)
	}
	e.Reset()
	e.RunOneStep(in)
	if a.times[3] != 0 {
		t.Errorf("time after reset %d", a.times[3])
	}

	if _, err := e.RunOneStep(in[:3]); err == nil {
		t.Error("short input accepted")
	}
	b.fail = true
	if _, err := e.RunOneStep(in); err == nil {
		t.Error("net failure not reported")
	}
	if e.Time() != 1 {
		t.Errorf("time advanced on failure: %d", e.Time())
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	var locations []string
	for i := 0; i < 2; i++ {
		o := hashctx.DefaultOptions()
		o.Buckets = 31
		m, err := hashctx.New(o, rand.New(rand.NewSource(int64(i))))
		if err != nil {
			t.Fatal(err)
		}
		loc := filepath.Join(dir, "ws"+string(rune('a'+i)))
		store, _ := workspace.Open(loc)
		if err := net.SaveTo(store, "best", m); err != nil {
			t.Fatal(err)
		}
		store.Close()
		locations = append(locations, loc)
	}
	load := func(blob []byte) (net.Stepper, error) {
		return hashctx.Load(blob)
	}
	e, err := Open(locations, 1, [][]int32{{0}, {0}}, load)
	if err != nil {
		t.Fatal(err)
	}
	in := make([]float32, 2*27)
	hashctx.OneHot(in[:27], 1)
	hashctx.OneHot(in[27:], 2)
	out, err := e.RunOneStep(in)
	if err != nil {
		t.Fatal(err)
	}
	var sum float32
	for _, p := range e.Average(out) {
		sum += p
	}
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("averaged probabilities sum to %g", sum)
	}

	if _, err := Open([]string{filepath.Join(dir, "missing")}, 1, [][]int32{{0}}, load); errors.Cause(err) != workspace.ErrNotFound {
		t.Errorf("missing workspace: %v", err)
	}
}
