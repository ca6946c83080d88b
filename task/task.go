/*
Package task runs epaperify operations as abortable units of work.

Cancellation is coarse: a context is checked before a unit starts and
between units, never inside one. A unit that has started always runs to
completion.
*/
package task

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Func is a unit of work. It must own every buffer it touches.
type Func func() ([]byte, error)

// Result is the outcome of a unit of work.
type Result struct {
	Data []byte
	Err  error
}

// Run runs fn on the calling goroutine unless ctx is already done.
func Run(ctx context.Context, fn Func) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return fn()
}

// Spawn runs fn on a new goroutine and delivers its result on the returned
// channel, which is closed afterwards. If ctx is done before fn starts, the
// result carries ctx's error and fn never runs.
func Spawn(ctx context.Context, fn Func) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		data, err := Run(ctx, fn)
		out <- Result{Data: data, Err: err}
	}()
	return out
}

// Wait waits for a spawned result or for ctx to be done, whichever comes
// first. An abandoned unit still finishes in the background.
func Wait(ctx context.Context, ch <-chan Result) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.Data, r.Err
	}
}

// Pool runs independent units on a bounded number of goroutines.
type Pool struct {
	Workers int
}

// Run runs every unit and returns their results in submission order. A
// failing unit does not stop the others; once ctx is done, units that have
// not started yet are skipped and report ctx's error.
func (p *Pool) Run(ctx context.Context, fns []Func) []Result {
	results := make([]Result, len(fns))

	workers := p.Workers
	if workers < 1 {
		workers = 1
	}

	var g errgroup.Group
	g.SetLimit(workers)

	for i, fn := range fns {
		i, fn := i, fn
		g.Go(func() error {
			data, err := Run(ctx, fn)
			results[i] = Result{Data: data, Err: err}
			return nil
		})
	}
	g.Wait()

	return results
}
