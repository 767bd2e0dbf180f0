package trainer

import "context"
import "time"

import "github.com/pkg/errors"
import "github.com/sirupsen/logrus"

import "github.com/junosan/char-lm/datasets"
import "github.com/junosan/char-lm/net"
import "github.com/junosan/char-lm/workspace"

// Trainer runs the whole annealing schedule for one model.
type Trainer struct {
	Options Options
	Model   net.Model

	// Train, Dev and Test must have been built with Options.BatchSize and
	// Options.WindowSize.
	Train, Dev, Test *datasets.DataIter

	// Store receives the pivot, prev and best checkpoints.
	Store workspace.Store

	RunID     string
	Log       logrus.FieldLogger
	Observers []Observer
}

// Run trains until the learning rate falls below its lower bound, restores
// the best weights and reports their losses on all three sets.
//
// When ctx is cancelled between windows, the best weights so far are restored
// and the context error is returned without a final evaluation.
func (t *Trainer) Run(ctx context.Context) (FinalRecord, error) {
	o := t.Options
	log := t.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("run_id", t.RunID)

	if err := o.Validate(); err != nil {
		return FinalRecord{}, err
	}
	for _, d := range []*datasets.DataIter{t.Train, t.Dev, t.Test} {
		if d.BatchSize() != o.BatchSize || d.WindowSize() != o.WindowSize {
			return FinalRecord{}, errors.Errorf("data iterator batch %d window %d, options batch %d window %d",
				d.BatchSize(), d.WindowSize(), o.BatchSize, o.WindowSize)
		}
	}

	reset := func() error {
		t.Model.InitializeOptimizer()
		return nil
	}
	sched, err := NewScheduler(o, o.TrainedFramesPerEpoch(), NewCheckpointer(t.Store, t.Model), reset, log)
	if err != nil {
		return FinalRecord{}, err
	}
	if err := sched.Start(); err != nil {
		return FinalRecord{}, err
	}

	interrupted := t.loop(ctx, sched, log)
	if interrupted != nil && errors.Cause(interrupted) != context.Canceled && errors.Cause(interrupted) != context.DeadlineExceeded {
		return FinalRecord{}, interrupted
	}

	if err := sched.Finish(); err != nil {
		return FinalRecord{}, err
	}
	st := sched.Stats()
	log.WithFields(logrus.Fields{
		"trained_frames":   st.TrainedFrames,
		"discarded_frames": st.DiscardedFrames,
	}).Info("restored best network")
	if interrupted != nil {
		log.WithError(interrupted).Warn("training interrupted")
		return FinalRecord{}, interrupted
	}

	final := FinalRecord{
		RunID:           t.RunID,
		TrainedFrames:   st.TrainedFrames,
		DiscardedFrames: st.DiscardedFrames,
	}
	for _, set := range []struct {
		loss *Loss
		data *datasets.DataIter
	}{
		{&final.Train, t.Train},
		{&final.Dev, t.Dev},
		{&final.Test, t.Test},
	} {
		loss, err := Evaluate(ctx, t.Model, set.data, o)
		if err != nil {
			return final, err
		}
		*set.loss = Loss(loss)
	}
	final.Time = time.Now()
	log.WithFields(final.Fields()).Info("final")
	for _, obs := range t.Observers {
		if err := obs.ObserveFinal(final); err != nil {
			log.WithError(err).Warn("observer failed")
		}
	}
	return final, nil
}

// loop runs epochs until the schedule terminates. It returns the error that
// stopped it early, if any.
func (t *Trainer) loop(ctx context.Context, sched *Scheduler, log logrus.FieldLogger) error {
	for sched.State() != Terminated {
		lr := sched.LR()
		start := time.Now()
		trainLoss, err := RunEpoch(ctx, t.Model, t.Train, t.Options, &lr)
		if err != nil {
			return errors.Wrap(err, "training epoch")
		}
		trainSec := time.Since(start).Seconds()

		sched.Evaluate()
		start = time.Now()
		evalLoss, err := Evaluate(ctx, t.Model, t.Dev, t.Options)
		if err != nil {
			return errors.Wrap(err, "evaluation epoch")
		}
		evalSec := time.Since(start).Seconds()

		d, err := sched.Observe(trainLoss, evalLoss)
		if err != nil {
			return err
		}
		st := sched.Stats()
		rec := EpochRecord{
			RunID:           t.RunID,
			Epoch:           d.Epoch,
			TrainLoss:       Loss(trainLoss),
			EvalLoss:        Loss(d.Loss),
			TrainedFrames:   st.TrainedFrames,
			DiscardedFrames: st.DiscardedFrames,
			LR:              d.LR,
			Best:            d.Best,
			Retry:           d.Retry,
			State:           d.State,
			TrainSec:        trainSec,
			EvalSec:         evalSec,
			Time:            time.Now(),
		}
		log.WithFields(rec.Fields()).Info("epoch")
		for _, obs := range t.Observers {
			if err := obs.ObserveEpoch(rec); err != nil {
				log.WithError(err).Warn("observer failed")
			}
		}
	}
	return nil
}
