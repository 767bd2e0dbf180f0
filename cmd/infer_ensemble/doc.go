// Package main evaluates an ensemble of trained character models on a text
// file. Every model is stepped over the same streams, each with its own state
// ordering, and the cross entropy of the averaged prediction is reported next
// to that of every single model.
package main
