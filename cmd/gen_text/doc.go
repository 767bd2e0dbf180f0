// Package main samples text from a trained character model. The priming text
// is fed one character at a time, then each sampled character is fed back as
// the next input.
//
// Usage:
//
//	gen_text -model ws/ -chars 200 "the quick brown fox"
package main
