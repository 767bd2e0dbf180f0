package hashctx

import "github.com/pkg/errors"

import "github.com/junosan/char-lm/hash"

// Update rules.
const (
	UpdateSGD      = "sgd"
	UpdateMomentum = "momentum"
	UpdateNesterov = "nesterov"
)

// Force (gradient preconditioning) rules.
const (
	ForceVanilla  = "vanilla"
	ForceRMSProp  = "rmsprop"
	ForceAdadelta = "adadelta"
	ForceAdam     = "adam"
)

// Options configures the reference model and its optimizer.
type Options struct {
	// Order is the number of most recent symbols forming the context.
	Order int `json:"order"`
	// Buckets is the minimum context table size; it is rounded up to a prime.
	Buckets int    `json:"buckets"`
	Salt    uint32 `json:"salt"`
	// InitScale is the standard deviation of the initial weights.
	InitScale float64 `json:"init_scale"`

	UpdateType   string  `json:"update_type"`
	UpdateMu     float64 `json:"update_mu"`
	ForceType    string  `json:"force_type"`
	ForceMsDecay float64 `json:"force_ms_decay"`
	// GradNormClip rescales the gradient when its norm exceeds it; 0 disables.
	GradNormClip float64 `json:"grad_norm_clip"`

	// Workers bounds the goroutines used per window; 0 picks parallel.Workers.
	Workers int `json:"workers"`
}

// DefaultOptions returns the optimizer settings the trainer has always used.
func DefaultOptions() Options {
	return Options{
		Order:        4,
		Buckets:      1 << 16,
		Salt:         0x2545f491,
		InitScale:    0.01,
		UpdateType:   UpdateNesterov,
		UpdateMu:     0.9,
		ForceType:    ForceAdadelta,
		ForceMsDecay: 0.99,
	}
}

// Validate reports the first inconsistent setting.
func (o Options) Validate() error {
	if o.Order < 1 || o.Order > hash.MaxOrder {
		return errors.Errorf("order %d out of range [1, %d]", o.Order, hash.MaxOrder)
	}
	if o.Buckets < 1 {
		return errors.Errorf("buckets must be positive (%d)", o.Buckets)
	}
	if o.InitScale < 0 {
		return errors.Errorf("negative init scale %g", o.InitScale)
	}
	switch o.UpdateType {
	case UpdateSGD, UpdateMomentum, UpdateNesterov:
	default:
		return errors.Errorf("unknown update type %q", o.UpdateType)
	}
	if o.UpdateMu < 0 || o.UpdateMu >= 1 {
		return errors.Errorf("update mu %g out of range [0, 1)", o.UpdateMu)
	}
	switch o.ForceType {
	case ForceVanilla, ForceRMSProp, ForceAdadelta, ForceAdam:
	default:
		return errors.Errorf("unknown force type %q", o.ForceType)
	}
	if o.ForceMsDecay <= 0 || o.ForceMsDecay >= 1 {
		if o.ForceType != ForceVanilla {
			return errors.Errorf("force ms decay %g out of range (0, 1)", o.ForceMsDecay)
		}
	}
	if o.GradNormClip < 0 {
		return errors.Errorf("negative grad norm clip %g", o.GradNormClip)
	}
	return nil
}
