package trainer

import "encoding/json"
import "os"

import "github.com/pkg/errors"
import "github.com/sirupsen/logrus"

// Options controls the epoch loop and the learning rate schedule.
type Options struct {
	BatchSize  int `json:"batch_size"`
	WindowSize int `json:"window_size"`
	StepSize   int `json:"step_size"`

	FramesPerEpoch int     `json:"frames_per_epoch"`
	LRInitVal      float64 `json:"lr_init_val"`
	LRLowerBound   float64 `json:"lr_lower_bound"`
	LRDecayRate    float64 `json:"lr_decay_rate"`
	MaxRetry       int     `json:"max_retry"`
}

// DefaultOptions returns the settings used for the published models.
func DefaultOptions() Options {
	return Options{
		BatchSize:      128,
		WindowSize:     128,
		StepSize:       64,
		FramesPerEpoch: 2 * 1024 * 1024,
		LRInitVal:      1e-5,
		LRLowerBound:   1e-7,
		LRDecayRate:    0.5,
		MaxRetry:       5,
	}
}

// LoadOptions reads a JSON file over the defaults. Keys missing from the
// file keep their default value.
func LoadOptions(name string) (Options, error) {
	o := DefaultOptions()
	data, err := os.ReadFile(name)
	if err != nil {
		return o, errors.Wrapf(err, "reading options %q", name)
	}
	if err := json.Unmarshal(data, &o); err != nil {
		return o, errors.Wrapf(err, "parsing options %q", name)
	}
	return o, nil
}

// Validate reports the first inconsistent setting.
func (o Options) Validate() error {
	switch {
	case o.BatchSize < 1:
		return errors.Errorf("batch_size must be positive (%d)", o.BatchSize)
	case o.StepSize < 1 || o.WindowSize < o.StepSize:
		return errors.Errorf("need 1 <= step_size (%d) <= window_size (%d)", o.StepSize, o.WindowSize)
	case o.FramesPerEpoch < o.ChunkSize():
		return errors.Errorf("frames_per_epoch %d is less than one chunk of %d frames", o.FramesPerEpoch, o.ChunkSize())
	case !(o.LRInitVal > 0):
		return errors.Errorf("lr_init_val must be positive (%g)", o.LRInitVal)
	case !(o.LRLowerBound > 0) || o.LRLowerBound > o.LRInitVal:
		return errors.Errorf("lr_lower_bound %g outside (0, lr_init_val]", o.LRLowerBound)
	case !(o.LRDecayRate > 0 && o.LRDecayRate < 1):
		return errors.Errorf("lr_decay_rate %g outside (0, 1)", o.LRDecayRate)
	case o.MaxRetry < 0:
		return errors.Errorf("negative max_retry %d", o.MaxRetry)
	}
	return nil
}

// ChunkSize is the number of frames trained by one window.
func (o Options) ChunkSize() int {
	return o.StepSize * o.BatchSize
}

// TrainedFramesPerEpoch rounds FramesPerEpoch down to whole chunks.
func (o Options) TrainedFramesPerEpoch() int64 {
	chunk := int64(o.ChunkSize())
	return int64(o.FramesPerEpoch) / chunk * chunk
}

// Fields renders the options for a log header.
func (o Options) Fields() logrus.Fields {
	return logrus.Fields{
		"batch_size":       o.BatchSize,
		"window_size":      o.WindowSize,
		"step_size":        o.StepSize,
		"frames_per_epoch": o.FramesPerEpoch,
		"lr_init_val":      o.LRInitVal,
		"lr_lower_bound":   o.LRLowerBound,
		"lr_decay_rate":    o.LRDecayRate,
		"max_retry":        o.MaxRetry,
	}
}
