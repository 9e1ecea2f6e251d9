// Package workpool runs the fan-out half of "advance by one interval" on a
// bounded set of goroutines and joins before returning.
package workpool

import (
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
)

// Pool bounds concurrent work to Size goroutines
type Pool struct {
	size int
}

// New returns a pool of n workers; n < 1 means one worker
func New(n int) *Pool {
	if n < 1 {
		n = 1
	}
	return &Pool{size: n}
}

// Size is the worker bound
func (p *Pool) Size() int {
	if p == nil {
		return 1
	}
	return p.size
}

// Run calls fn(i) for every i in [0, tasks) with at most Size calls in
// flight, and returns once all have finished. A panicking task is reported as
// an error rather than crashing the caller. A nil pool runs serially.
func (p *Pool) Run(tasks int, fn func(i int) error) error {
	if tasks <= 0 {
		return nil
	}
	if p.Size() == 1 || tasks == 1 {
		for i := 0; i < tasks; i++ {
			if err := try(i, fn); err != nil {
				return err
			}
		}
		return nil
	}

	wp := pool.New().WithErrors().WithMaxGoroutines(p.Size())
	for i := 0; i < tasks; i++ {
		i := i
		wp.Go(func() error {
			return try(i, fn)
		})
	}
	return wp.Wait()
}

func try(i int, fn func(i int) error) error {
	var pc panics.Catcher
	var err error
	pc.Try(func() { err = fn(i) })
	if r := pc.Recovered(); r != nil {
		return r.AsError()
	}
	return err
}

// Cache hands out a pool sized to the last requested thread count and
// rebuilds it only when the count changes.
type Cache struct {
	p *Pool
}

// Get returns a pool with n workers
func (c *Cache) Get(n int) *Pool {
	if n < 1 {
		n = 1
	}
	if c.p == nil || c.p.size != n {
		c.p = New(n)
	}
	return c.p
}
