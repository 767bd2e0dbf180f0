package trainer

import "encoding/json"
import "math"
import "strconv"
import "time"

import "github.com/sirupsen/logrus"

// Loss is a loss value that survives JSON: +Inf and NaN, which plain
// float64 fields cannot encode, are written as strings.
type Loss float64

func (l Loss) MarshalJSON() ([]byte, error) {
	f := float64(l)
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return json.Marshal(strconv.FormatFloat(f, 'g', -1, 64))
	}
	return json.Marshal(f)
}

func (l *Loss) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*l = Loss(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*l = Loss(f)
	return nil
}

// EpochRecord is what gets logged, journaled and broadcast after an epoch.
type EpochRecord struct {
	RunID           string    `json:"run_id"`
	Epoch           int       `json:"epoch"`
	TrainLoss       Loss      `json:"train_loss"`
	EvalLoss        Loss      `json:"eval_loss"`
	TrainedFrames   int64     `json:"trained_frames"`
	DiscardedFrames int64     `json:"discarded_frames"`
	LR              float64   `json:"lr"`
	Best            bool      `json:"best"`
	Retry           int       `json:"retry"`
	State           State     `json:"state"`
	TrainSec        float64   `json:"train_sec"`
	EvalSec         float64   `json:"eval_sec"`
	Time            time.Time `json:"time"`
}

// Fields renders the record for logrus. The keys are the ones the
// learncurve package parses.
func (r EpochRecord) Fields() logrus.Fields {
	return logrus.Fields{
		"epoch":            r.Epoch,
		"train_loss":       r.TrainLoss,
		"eval_loss":        r.EvalLoss,
		"trained_frames":   r.TrainedFrames,
		"discarded_frames": r.DiscardedFrames,
		"lr":               r.LR,
		"best":             r.Best,
		"retry":            r.Retry,
		"state":            r.State.String(),
		"train_sec":        r.TrainSec,
		"eval_sec":         r.EvalSec,
	}
}

// FinalRecord holds the losses of the best network.
type FinalRecord struct {
	RunID           string    `json:"run_id"`
	TrainedFrames   int64     `json:"trained_frames"`
	DiscardedFrames int64     `json:"discarded_frames"`
	Train           Loss      `json:"train"`
	Dev             Loss      `json:"dev"`
	Test            Loss      `json:"test"`
	Time            time.Time `json:"time"`
}

func (r FinalRecord) Fields() logrus.Fields {
	return logrus.Fields{
		"trained_frames":   r.TrainedFrames,
		"discarded_frames": r.DiscardedFrames,
		"train":            r.Train,
		"dev":              r.Dev,
		"test":             r.Test,
	}
}

// Observer receives the records of a run, e.g. a journal or a monitor.
type Observer interface {
	ObserveEpoch(EpochRecord) error
	ObserveFinal(FinalRecord) error
}
