// Package parallel splits row loops of the CPU backend across goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls how a loop is split.
type Config struct {
	Workers  int // goroutines per loop; 1 or less runs sequentially
	MinChunk int // minimum iterations handed to one goroutine
}

// DefaultConfig uses one worker per CPU.
func DefaultConfig() Config {
	return Config{
		Workers:  runtime.NumCPU(),
		MinChunk: 64,
	}
}

// Sequential runs every loop on the calling goroutine.
func Sequential() Config {
	return Config{Workers: 1}
}

// WithMinChunk returns c with a different minimum chunk, for loops whose
// iterations are expensive.
func (c Config) WithMinChunk(n int) Config {
	c.MinChunk = n
	return c
}

// Range calls f on disjoint [start, end) chunks covering [0, n) and returns
// when all have finished. Loops shorter than two chunks run inline.
func (c Config) Range(n int, f func(start, end int)) {
	minChunk := max(c.MinChunk, 1)
	if c.Workers <= 1 || n < 2*minChunk {
		if n > 0 {
			f(0, n)
		}
		return
	}

	chunk := max((n+c.Workers-1)/c.Workers, minChunk)
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(start, end)
		}()
	}
	wg.Wait()
}
