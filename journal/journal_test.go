package journal

import "math"
import "path/filepath"
import "testing"
import "time"

import "github.com/junosan/char-lm/trainer"

func TestJournal(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "runs.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	if err := j.BeginRun("run-a", trainer.DefaultOptions(), 42); err != nil {
		t.Fatal(err)
	}
	records := []trainer.EpochRecord{
		{Epoch: 1, TrainLoss: 2.5, EvalLoss: 2.4, TrainedFrames: 100, LR: 1e-5, Best: true, State: trainer.Decide},
		{Epoch: 2, TrainLoss: 2.0, EvalLoss: trainer.Loss(math.Inf(1)), TrainedFrames: 200, LR: 1e-5, State: trainer.Retry, Time: time.Now()},
	}
	for _, r := range records {
		if err := j.ObserveEpoch(r); err != nil {
			t.Fatal(err)
		}
	}
	if err := j.ObserveFinal(trainer.FinalRecord{Train: 2, Dev: 2.4, Test: 2.5}); err != nil {
		t.Fatal(err)
	}
	// one final per run
	if err := j.ObserveFinal(trainer.FinalRecord{}); err == nil {
		t.Error("second final accepted")
	}

	epochs, err := j.Epochs("run-a")
	if err != nil {
		t.Fatal(err)
	}
	if len(epochs) != 2 {
		t.Fatalf("got %d epochs", len(epochs))
	}
	if e := epochs[0]; e.EvalLoss != 2.4 || !e.Best || e.State != "decide" || e.TrainedFrames != 100 {
		t.Errorf("epoch 1: %+v", e)
	}
	if e := epochs[1]; !math.IsInf(e.EvalLoss, 1) || e.Best || e.State != "retry" {
		t.Errorf("epoch 2: %+v", e)
	}

	if err := j.BeginRun("run-b", nil, 1); err != nil {
		t.Fatal(err)
	}
	runs, err := j.Runs()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0] != "run-a" {
		t.Errorf("runs %v", runs)
	}
	if err := j.BeginRun("run-a", nil, 1); err == nil {
		t.Error("duplicate run accepted")
	}
}
