// Package main turns a train_charlm JSON log into learning curves, either as
// CSV rows of cumulative time, training loss and validation loss, or as an
// SVG or PNG figure.
package main
