package trainer

import "context"

import "github.com/pkg/errors"

import "github.com/junosan/char-lm/datasets"
import "github.com/junosan/char-lm/net"

// RunEpoch runs windows from d through m until TrainedFramesPerEpoch frames
// have been seen and returns the mean loss per frame.
//
// A non-nil lr selects training: BPTT(window; step) with a parameter update
// after every window. A nil lr selects inference with non-overlapping
// windows. The model's recurrent state is reset first.
func RunEpoch(ctx context.Context, m net.Model, d *datasets.DataIter, o Options, lr *float64) (float64, error) {
	training := lr != nil
	step := o.WindowSize
	if training {
		step = o.StepSize
	}
	if err := d.SetStepSize(step); err != nil {
		return 0, err
	}
	framesPerStep := int64(step * d.BatchSize())
	epochFrames := o.TrainedFramesPerEpoch()

	m.ResetStates()
	var lossSum float64
	var framesSeen int64
	for framesSeen < epochFrames {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		w := d.Next()
		var loss float64
		var err error
		if training {
			loss, err = m.FwdBwdPropagate(w)
		} else {
			loss, err = m.FwdPropagate(w)
		}
		if err != nil {
			return 0, errors.Wrapf(err, "window at frame %d", framesSeen)
		}
		lossSum += loss
		framesSeen += framesPerStep
		if training {
			m.UpdateParams(*lr)
		}
	}
	return lossSum / float64(framesSeen), nil
}
