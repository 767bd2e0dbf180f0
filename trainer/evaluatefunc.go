package trainer

import "context"
import "math"

import "github.com/junosan/char-lm/datasets"
import "github.com/junosan/char-lm/net"

// Evaluate runs one inference epoch. A NaN loss is reported as +Inf so that
// it compares as worse than any finite loss.
func Evaluate(ctx context.Context, m net.Model, d *datasets.DataIter, o Options) (float64, error) {
	loss, err := RunEpoch(ctx, m, d, o, nil)
	if err != nil {
		return loss, err
	}
	if math.IsNaN(loss) {
		loss = math.Inf(1)
	}
	return loss, nil
}

// NewEvaluateFunc binds Evaluate to one data set.
func NewEvaluateFunc(m net.Model, d *datasets.DataIter, o Options) func(context.Context) (float64, error) {
	return func(ctx context.Context) (float64, error) {
		return Evaluate(ctx, m, d, o)
	}
}
