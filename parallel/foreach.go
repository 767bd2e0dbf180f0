// Package parallel contains the bounded parallel ForEach used to fan out work
// over batch slots and ensemble members.
package parallel

import "runtime"
import "sync"

import "github.com/klauspost/cpuid/v2"

// Workers reports a sensible default concurrency for ForEach: the number of
// logical cores detected by cpuid, falling back to GOMAXPROCS.
func Workers() int {
	if n := cpuid.CPU.LogicalCores; n > 0 {
		if max := runtime.GOMAXPROCS(0); n > max {
			return max
		}
		return n
	}
	return runtime.GOMAXPROCS(0)
}

// ForEach executes body for every integer in [0, length) with at most limit
// goroutines running at once. It returns when all calls have finished.
func ForEach(length, limit int, body func(i int)) {
	if limit <= 0 {
		limit = 1
	}
	if length <= 0 {
		return
	}
	if limit == 1 || length == 1 {
		for i := 0; i < length; i++ {
			body(i)
		}
		return
	}

	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	wg.Add(length)

	for i := 0; i < length; i++ {
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			body(i)
		}(i)
	}

	wg.Wait()
}

// ForEachChunk splits [0, length) into at most limit contiguous chunks and
// runs body(lo, hi) for each one concurrently.
func ForEachChunk(length, limit int, body func(lo, hi int)) {
	if length <= 0 {
		return
	}
	if limit <= 0 {
		limit = 1
	}
	if limit > length {
		limit = length
	}
	size := (length + limit - 1) / limit
	chunks := (length + size - 1) / size
	ForEach(chunks, limit, func(c int) {
		lo := c * size
		hi := lo + size
		if hi > length {
			hi = length
		}
		body(lo, hi)
	})
}
