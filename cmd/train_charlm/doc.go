// Package main trains a character level language model on the train, dev and
// test files of a data directory. The learning rate is annealed by patience:
// an epoch that does not improve the validation loss is retried from the
// previous checkpoint, and once the retries are used up the rate is decayed.
// Training ends when the rate falls below its lower bound, after which the
// best weights are evaluated on all three sets.
//
// The log is written to stdout, one JSON object per line by default, and can
// be turned into learning curves with plot_log.
package main
