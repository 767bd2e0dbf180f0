package trainer

import "math"

import "github.com/pkg/errors"
import "github.com/sirupsen/logrus"

// State is a phase of the learning rate schedule.
type State int

const (
	Training State = iota
	Evaluating
	Decide
	Retry
	Decay
	Rollback
	Terminated
)

var stateNames = [...]string{"training", "evaluating", "decide", "retry", "decay", "rollback", "terminated"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText renders the state by name in JSON logs and records.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return errors.Errorf("unknown state %q", text)
}

// Slot identifies one of the three checkpoints kept by the scheduler.
type Slot int

const (
	Pivot Slot = iota
	Prev
	Best
)

func (s Slot) String() string {
	switch s {
	case Pivot:
		return "pivot"
	case Prev:
		return "prev"
	case Best:
		return "best"
	}
	return "unknown"
}

// Checkpointer persists the current model weights under a name.
type Checkpointer interface {
	Save(name string) error
	Load(name string) error
	Remove(name string) error
}

// Decision describes what the scheduler did with one epoch.
type Decision struct {
	Epoch int
	// State is Decide for a stable step, then Retry, Rollback or Terminated.
	State State
	Best  bool
	Retry int
	// Discarded is the number of frames thrown away by a rollback.
	Discarded int64
	LR        float64
	Loss      float64
}

// Stats is a snapshot of the scheduler counters.
type Stats struct {
	State                State
	Epoch                int
	LR                   float64
	Retry                int
	TrainedFrames        int64
	TrainedFramesAtPivot int64
	TrainedFramesAtBest  int64
	DiscardedFrames      int64
	LossPivot            float64
	LossPrev             float64
	LossBest             float64
}

// Scheduler anneals the learning rate with patience. After every epoch the
// evaluation loss is compared with the previous epoch; MaxRetry consecutive
// epochs without progress decay the learning rate and roll the weights back
// to the pivot, the last checkpoint before the run of regressions began.
// Training ends when the learning rate drops below LRLowerBound.
//
// Scheduler is not safe for concurrent use.
type Scheduler struct {
	opts     Options
	perEpoch int64
	ckpt     Checkpointer
	reset    func() error
	log      logrus.FieldLogger

	names [3]string

	state   State
	started bool
	epoch   int
	lr      float64
	retry   int

	trained   int64
	atPivot   int64
	atBest    int64
	discarded int64

	lossPivot float64
	lossPrev  float64
	lossBest  float64
}

// NewScheduler creates a scheduler counting framesPerEpoch trained frames per
// epoch. reset reinitializes the optimizer.
func NewScheduler(o Options, framesPerEpoch int64, ckpt Checkpointer, reset func() error, log logrus.FieldLogger) (*Scheduler, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if framesPerEpoch <= 0 {
		return nil, errors.Errorf("frames per epoch must be positive (%d)", framesPerEpoch)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{
		opts:     o,
		perEpoch: framesPerEpoch,
		ckpt:     ckpt,
		reset:    reset,
		log:      log,
		names:    [3]string{Pivot: "0", Prev: "1", Best: "best"},
		lr:       o.LRInitVal,
	}, nil
}

// Name resolves a slot to its current checkpoint name.
func (s *Scheduler) Name(slot Slot) string {
	return s.names[slot]
}

func (s *Scheduler) LR() float64  { return s.lr }
func (s *Scheduler) State() State { return s.state }

func (s *Scheduler) Stats() Stats {
	return Stats{
		State:                s.state,
		Epoch:                s.epoch,
		LR:                   s.lr,
		Retry:                s.retry,
		TrainedFrames:        s.trained,
		TrainedFramesAtPivot: s.atPivot,
		TrainedFramesAtBest:  s.atBest,
		DiscardedFrames:      s.discarded,
		LossPivot:            s.lossPivot,
		LossPrev:             s.lossPrev,
		LossBest:             s.lossBest,
	}
}

// fail terminates the schedule on a checkpoint error.
func (s *Scheduler) fail(err error, what string) error {
	s.state = Terminated
	return errors.Wrap(err, what)
}

func (s *Scheduler) save(slot Slot) error {
	if err := s.ckpt.Save(s.names[slot]); err != nil {
		return s.fail(err, "saving "+slot.String()+" checkpoint")
	}
	return nil
}

// Start initializes the optimizer and saves the initial weights as prev and
// best.
func (s *Scheduler) Start() error {
	if s.started {
		return errors.New("scheduler already started")
	}
	s.started = true
	if err := s.reset(); err != nil {
		return s.fail(err, "initializing optimizer")
	}
	if err := s.save(Prev); err != nil {
		return err
	}
	if err := s.save(Best); err != nil {
		return err
	}
	s.state = Training
	return nil
}

// Evaluate marks the end of the training half of an epoch.
func (s *Scheduler) Evaluate() {
	if s.state == Training {
		s.state = Evaluating
	}
}

// Observe feeds the losses of one epoch and applies the schedule. A NaN
// evaluation loss counts as +Inf.
func (s *Scheduler) Observe(trainLoss, evalLoss float64) (Decision, error) {
	if !s.started {
		return Decision{}, errors.New("scheduler not started")
	}
	if s.state != Training && s.state != Evaluating {
		return Decision{}, errors.Errorf("cannot observe an epoch in state %v", s.state)
	}
	s.state = Decide
	s.epoch++
	s.trained += s.perEpoch

	if math.IsNaN(evalLoss) {
		evalLoss = math.Inf(1)
	}
	first := s.epoch == 1
	d := Decision{Epoch: s.epoch, Loss: evalLoss}

	log := s.log.WithFields(logrus.Fields{
		"epoch":      s.epoch,
		"train_loss": trainLoss,
		"eval_loss":  evalLoss,
	})

	if first || evalLoss < s.lossBest {
		s.atBest = s.trained
		s.lossBest = evalLoss
		if err := s.save(Best); err != nil {
			return d, err
		}
		d.Best = true
	}

	// A retry needs a previous epoch trained since the pivot; right after a
	// rollback to frame 0 there is none and lossPrev holds no real loss.
	if s.trained > s.perEpoch && evalLoss >= s.lossPrev {
		s.state = Retry
		s.retry++
		if s.retry <= s.opts.MaxRetry {
			log.WithField("retry", s.retry).Debugf("retry %d / %d", s.retry, s.opts.MaxRetry)
			return s.decided(d), nil
		}
		s.retry = 0

		s.state = Decay
		s.lr *= s.opts.LRDecayRate
		if s.lr < s.opts.LRLowerBound {
			log.WithField("lr", s.lr).Info("learning rate below lower bound")
			s.state = Terminated
			return s.stamp(d), nil
		}

		s.state = Rollback
		discard := s.trained - s.atPivot
		s.discarded += discard
		s.trained = s.atPivot
		if err := s.ckpt.Load(s.names[Pivot]); err != nil {
			return d, s.fail(err, "loading pivot checkpoint")
		}
		if err := s.reset(); err != nil {
			return d, s.fail(err, "initializing optimizer")
		}
		s.lossPrev = s.lossPivot
		if err := s.save(Prev); err != nil {
			return d, err
		}
		d.Discarded = discard
		log.WithFields(logrus.Fields{
			"discarded": discard,
			"lr":        s.lr,
		}).Info("rolled back to pivot")
		return s.decided(d), nil
	}

	s.retry = 0
	s.atPivot = s.trained - s.perEpoch
	s.lossPivot, s.lossPrev = s.lossPrev, evalLoss
	s.names[Pivot], s.names[Prev] = s.names[Prev], s.names[Pivot]
	if err := s.save(Prev); err != nil {
		return d, err
	}
	return s.decided(d), nil
}

// stamp records the phase reached, the retry count and the rate in d.
func (s *Scheduler) stamp(d Decision) Decision {
	d.State = s.state
	d.Retry = s.retry
	d.LR = s.lr
	return d
}

// decided stamps d and returns to Training.
func (s *Scheduler) decided(d Decision) Decision {
	d = s.stamp(d)
	s.state = Training
	return d
}

// Finish restores the best weights and drops the pivot and prev
// checkpoints. Frames trained after the best epoch count as discarded.
func (s *Scheduler) Finish() error {
	if !s.started {
		return errors.New("scheduler not started")
	}
	s.state = Terminated
	s.discarded += s.trained - s.atBest
	s.trained = s.atBest
	if err := s.ckpt.Load(s.names[Best]); err != nil {
		return errors.Wrap(err, "loading best checkpoint")
	}
	slots := []Slot{Pivot, Prev}
	if s.epoch == 0 {
		// the pivot is first written by the stable step of epoch 1
		slots = slots[1:]
	}
	for _, slot := range slots {
		if err := s.ckpt.Remove(s.names[slot]); err != nil {
			return errors.Wrapf(err, "removing %v checkpoint", slot)
		}
	}
	return nil
}
