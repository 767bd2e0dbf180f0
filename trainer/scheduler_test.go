package trainer

import "io"
import "math"
import "math/rand"
import "testing"

import "github.com/pkg/errors"
import "github.com/sirupsen/logrus"

// fakeModel stands in for a network: its weights are the epoch that last
// trained it.
type fakeModel struct {
	weights int
	saved   map[string]int
	resets  int
	failOn  string
}

func newFakeModel() *fakeModel {
	return &fakeModel{saved: make(map[string]int)}
}

func (f *fakeModel) Save(name string) error {
	if name == f.failOn {
		return errors.New("disk full")
	}
	f.saved[name] = f.weights
	return nil
}

func (f *fakeModel) Load(name string) error {
	w, ok := f.saved[name]
	if !ok {
		return errors.Errorf("no checkpoint %q", name)
	}
	f.weights = w
	return nil
}

func (f *fakeModel) Remove(name string) error {
	if _, ok := f.saved[name]; !ok {
		return errors.Errorf("no checkpoint %q", name)
	}
	delete(f.saved, name)
	return nil
}

func (f *fakeModel) reset() error {
	f.resets++
	return nil
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

const perEpoch = 1000

func newTestScheduler(t *testing.T, f *fakeModel, mutate func(*Options)) *Scheduler {
	o := DefaultOptions()
	o.LRInitVal = 1
	o.LRLowerBound = 0.1
	if mutate != nil {
		mutate(&o)
	}
	s, err := NewScheduler(o, perEpoch, f, f.reset, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	return s
}

// epoch trains one epoch on the fake model and observes the given loss.
func epoch(t *testing.T, s *Scheduler, f *fakeModel, loss float64) Decision {
	f.weights = s.Stats().Epoch + 1
	s.Evaluate()
	d, err := s.Observe(loss, loss)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestSchedulerStart(t *testing.T) {
	f := newFakeModel()
	s := newTestScheduler(t, f, nil)
	if _, ok := f.saved["1"]; !ok {
		t.Error("prev not saved")
	}
	if _, ok := f.saved["best"]; !ok {
		t.Error("best not saved")
	}
	if f.resets != 1 {
		t.Errorf("optimizer initialized %d times", f.resets)
	}
	if s.State() != Training {
		t.Errorf("state %v", s.State())
	}
	if err := s.Start(); err == nil {
		t.Error("second start accepted")
	}
}

func TestSchedulerRollback(t *testing.T) {
	f := newFakeModel()
	s := newTestScheduler(t, f, func(o *Options) { o.MaxRetry = 2 })

	steps := []struct {
		loss  float64
		state State
		best  bool
		retry int
	}{
		{1.0, Decide, true, 0},
		{0.9, Decide, true, 0},
		{1.0, Retry, false, 1},
		{1.1, Retry, false, 2},
		{1.2, Rollback, false, 0},
	}
	for i, st := range steps {
		d := epoch(t, s, f, st.loss)
		if d.State != st.state || d.Best != st.best || d.Retry != st.retry {
			t.Fatalf("epoch %d: got %v best=%v retry=%d", i+1, d.State, d.Best, d.Retry)
		}
	}

	st := s.Stats()
	if st.LR != 0.5 {
		t.Errorf("lr %g, want 0.5", st.LR)
	}
	if st.TrainedFrames != perEpoch || st.DiscardedFrames != 4*perEpoch {
		t.Errorf("frames: trained %d discarded %d", st.TrainedFrames, st.DiscardedFrames)
	}
	if f.weights != 1 {
		t.Errorf("rolled back to weights of epoch %d, want 1", f.weights)
	}
	if f.saved[s.Name(Prev)] != 1 {
		t.Errorf("prev holds epoch %d", f.saved[s.Name(Prev)])
	}
	if st.LossPrev != 1.0 || st.LossBest != 0.9 {
		t.Errorf("losses: prev %g best %g", st.LossPrev, st.LossBest)
	}
	if f.resets != 2 {
		t.Errorf("optimizer initialized %d times, want 2", f.resets)
	}
	if s.State() != Training {
		t.Errorf("state after rollback %v", s.State())
	}
}

func TestSchedulerRollbackToStart(t *testing.T) {
	f := newFakeModel()
	s := newTestScheduler(t, f, func(o *Options) { o.MaxRetry = 1 })
	epoch(t, s, f, 2.0)
	epoch(t, s, f, 2.5)
	if d := epoch(t, s, f, 2.6); d.State != Rollback || s.Stats().TrainedFrames != 0 {
		t.Fatalf("rollback to the first pivot: %+v trained %d", d, s.Stats().TrainedFrames)
	}
	for i, loss := range []float64{1.5, 1.4, 1.3, 1.2, 1.1, 1.0, 0.9, 0.8} {
		d := epoch(t, s, f, loss)
		if d.State != Decide || !d.Best || d.LR != 0.5 {
			t.Fatalf("improving epoch %d after rollback: %+v", i+1, d)
		}
	}
	st := s.Stats()
	if st.TrainedFrames != 8*perEpoch || st.LossPrev != 0.8 {
		t.Errorf("trained %d prev %g", st.TrainedFrames, st.LossPrev)
	}
}

func TestSchedulerTerminates(t *testing.T) {
	f := newFakeModel()
	s := newTestScheduler(t, f, func(o *Options) {
		o.MaxRetry = 0
		o.LRLowerBound = 0.3
	})
	epoch(t, s, f, 2.0)
	epoch(t, s, f, 1.0)
	// ties make no progress
	if d := epoch(t, s, f, 1.0); d.State != Rollback || d.LR != 0.5 {
		t.Fatalf("first decay: %+v", d)
	}
	if d := epoch(t, s, f, 2.5); d.State != Terminated || d.Retry != 0 || d.LR != 0.25 {
		t.Fatalf("second decay: %+v", d)
	}
	if s.State() != Terminated {
		t.Fatalf("state %v", s.State())
	}
	if _, err := s.Observe(1, 1); err == nil {
		t.Error("observe after termination accepted")
	}

	if err := s.Finish(); err != nil {
		t.Fatal(err)
	}
	if f.weights != 2 {
		t.Errorf("final weights from epoch %d, want 2", f.weights)
	}
	if len(f.saved) != 1 {
		t.Errorf("checkpoints left: %v", f.saved)
	}
	st := s.Stats()
	if st.TrainedFrames != 2*perEpoch {
		t.Errorf("trained %d", st.TrainedFrames)
	}
	// the best epoch was counted before the rollback; only the rollback
	// discarded frames
	if st.DiscardedFrames != 2*perEpoch {
		t.Errorf("discarded %d", st.DiscardedFrames)
	}
}

func TestSchedulerNaN(t *testing.T) {
	f := newFakeModel()
	s := newTestScheduler(t, f, nil)
	if d := epoch(t, s, f, math.NaN()); !d.Best || !math.IsInf(d.Loss, 1) {
		t.Fatalf("nan first epoch: %+v", d)
	}
	if d := epoch(t, s, f, 2); !d.Best || d.State != Decide {
		t.Fatalf("recovery: %+v", d)
	}
	if d := epoch(t, s, f, math.NaN()); d.Best || d.State != Retry {
		t.Fatalf("nan later: %+v", d)
	}
}

func TestSchedulerInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	for run := 0; run < 20; run++ {
		f := newFakeModel()
		s := newTestScheduler(t, f, func(o *Options) {
			o.MaxRetry = rng.Intn(3)
			o.LRLowerBound = 0.01
		})
		best := math.Inf(1)
		for s.State() != Terminated {
			before := s.Stats()
			d := epoch(t, s, f, 1+rng.Float64())
			after := s.Stats()
			if after.LossBest > best {
				t.Fatalf("run %d epoch %d: best rose from %g to %g", run, d.Epoch, best, after.LossBest)
			}
			best = after.LossBest
			switch d.State {
			case Rollback:
				if after.TrainedFrames != before.TrainedFramesAtPivot {
					t.Fatalf("rollback to %d, pivot at %d", after.TrainedFrames, before.TrainedFramesAtPivot)
				}
				if after.DiscardedFrames-before.DiscardedFrames != before.TrainedFrames+perEpoch-before.TrainedFramesAtPivot {
					t.Fatal("discarded frame count mismatch")
				}
			default:
				if after.TrainedFrames != before.TrainedFrames+perEpoch {
					t.Fatalf("trained %d after %d", after.TrainedFrames, before.TrainedFrames)
				}
			}
			if after.TrainedFrames+after.DiscardedFrames != int64(after.Epoch)*perEpoch {
				t.Fatal("frames lost")
			}
		}
		if err := s.Finish(); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSchedulerCheckpointFailure(t *testing.T) {
	f := newFakeModel()
	s := newTestScheduler(t, f, nil)
	f.failOn = "best"
	f.weights = 1
	if _, err := s.Observe(1, 1); err == nil {
		t.Fatal("expected save error")
	}
	if s.State() != Terminated {
		t.Errorf("state %v after failure", s.State())
	}
}

func TestSchedulerFinishBeforeFirstEpoch(t *testing.T) {
	f := newFakeModel()
	s := newTestScheduler(t, f, nil)
	if err := s.Finish(); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.saved["best"]; !ok || len(f.saved) != 1 {
		t.Errorf("checkpoints left: %v", f.saved)
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{Training: "training", Rollback: "rollback", Terminated: "terminated", State(42): "unknown"} {
		if s.String() != want {
			t.Errorf("%d: got %q", int(s), s.String())
		}
	}
}
