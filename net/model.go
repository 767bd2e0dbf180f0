// Package net declares the services a language model provides to the
// training driver, the ensemble runner and the text generator. The network
// itself is opaque: anything able to consume a Window and report a loss can
// be trained.
package net

import "encoding"

import "github.com/junosan/char-lm/datasets"

// Model is a trainable recurrent model over datasets.Window values.
//
// Loss values are summed over the fresh rows of the window (the newest
// Window.Step rows) and all batch slots; the caller divides by the frame count.
// Implementations carry recurrent state from one window to the next and must
// reset it, rather than carry it, while the window is not Full.
type Model interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler

	// Dimensions returns the input and target vector sizes.
	Dimensions() (input, target int)

	// NWeights returns the number of trainable parameters.
	NWeights() int

	// ResetStates forgets the recurrent state of every batch slot.
	ResetStates()

	// FwdBwdPropagate runs forward and backward propagation and
	// accumulates gradients until the next UpdateParams.
	FwdBwdPropagate(w datasets.Window) (float64, error)

	// FwdPropagate runs forward propagation only.
	FwdPropagate(w datasets.Window) (float64, error)

	// UpdateParams applies the accumulated gradients with learning rate lr.
	UpdateParams(lr float64)

	// InitializeOptimizer clears all optimizer accumulators.
	InitializeOptimizer()
}

// Stepper advances a model by one time step for externally ordered
// sequences, as used by the ensemble runner and the text generator.
type Stepper interface {
	// Dimensions returns the input and target vector sizes.
	Dimensions() (input, target int)

	// Step consumes input, flattened [len(ids)][input dim], at time t and
	// writes predictions, flattened [len(ids)][target dim], into output.
	// ids selects the recurrent state slot of each row; t == 0 starts
	// every sequence afresh.
	Step(input []float32, t int32, ids []int32, output []float32) error
}
