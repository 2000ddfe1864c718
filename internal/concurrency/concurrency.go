package concurrency

import (
	"github.com/sourcegraph/conc/pool"
)

// NewPool returns a new pool of at most maxGoroutines workers. Go blocks while every
// worker is busy. A failing task does not cancel the others; Wait returns the first
// error seen once every task has finished.
func NewPool(maxGoroutines int) *pool.ErrorPool {
	return pool.New().
		WithErrors().
		WithFirstError().
		WithMaxGoroutines(maxGoroutines)
}
