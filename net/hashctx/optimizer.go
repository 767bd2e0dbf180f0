package hashctx

import "math"

const epsilon = 1e-6

// adamBeta1 is the first moment decay of the adam force.
const adamBeta1 = 0.9

// optimizer keeps per parameter accumulators over a flat parameter vector.
// Updates are lazy: only parameters with a gradient in the current update
// have their accumulators advanced.
type optimizer struct {
	update string
	mu     float64
	force  string
	decay  float64

	vel []float64 // momentum
	ms  []float64 // mean square gradient
	ds  []float64 // adadelta mean square step, adam first moment

	steps int
}

func newOptimizer(o Options, n int) *optimizer {
	opt := &optimizer{
		update: o.UpdateType,
		mu:     o.UpdateMu,
		force:  o.ForceType,
		decay:  o.ForceMsDecay,
	}
	if opt.update != UpdateSGD {
		opt.vel = make([]float64, n)
	}
	if opt.force != ForceVanilla {
		opt.ms = make([]float64, n)
	}
	if opt.force == ForceAdadelta || opt.force == ForceAdam {
		opt.ds = make([]float64, n)
	}
	return opt
}

func (o *optimizer) reset() {
	for _, acc := range [][]float64{o.vel, o.ms, o.ds} {
		for i := range acc {
			acc[i] = 0
		}
	}
	o.steps = 0
}

// begin marks the start of one parameter update.
func (o *optimizer) begin() {
	o.steps++
}

// apply updates params p, which live at offset off of the flat vector, with
// gradient g scaled by scale.
func (o *optimizer) apply(p, g []float64, off int, scale, lr float64) {
	d := o.decay
	for j := range g {
		k := off + j
		gi := g[j] * scale

		var f float64
		switch o.force {
		case ForceRMSProp:
			o.ms[k] = d*o.ms[k] + (1-d)*gi*gi
			f = gi / math.Sqrt(o.ms[k]+epsilon)
		case ForceAdadelta:
			o.ms[k] = d*o.ms[k] + (1-d)*gi*gi
			f = gi * math.Sqrt(o.ds[k]+epsilon) / math.Sqrt(o.ms[k]+epsilon)
			o.ds[k] = d*o.ds[k] + (1-d)*f*f
		case ForceAdam:
			o.ds[k] = adamBeta1*o.ds[k] + (1-adamBeta1)*gi
			o.ms[k] = d*o.ms[k] + (1-d)*gi*gi
			m := o.ds[k] / (1 - math.Pow(adamBeta1, float64(o.steps)))
			v := o.ms[k] / (1 - math.Pow(d, float64(o.steps)))
			f = m / (math.Sqrt(v) + epsilon)
		default:
			f = gi
		}

		switch o.update {
		case UpdateMomentum:
			o.vel[k] = o.mu*o.vel[k] - lr*f
			p[j] += o.vel[k]
		case UpdateNesterov:
			prev := o.vel[k]
			o.vel[k] = o.mu*o.vel[k] - lr*f
			p[j] += -o.mu*prev + (1+o.mu)*o.vel[k]
		default:
			p[j] -= lr * f
		}
	}
}
