// Package group runs a set of goroutines which share a lifetime.
package group

import (
	"context"
	"errors"
	"sync"
)

// A G runs goroutines from a common context. When any goroutine returns,
// the context is canceled and the rest are expected to wind down.
type G struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	errs []error
}

// New returns a new group derived from ctx.
func New(ctx context.Context) *G {
	ctx, cancel := context.WithCancel(ctx)
	return &G{
		ctx:    ctx,
		cancel: cancel,
	}
}

// AddContext runs fn on a new goroutine with the group's context.
func (g *G) AddContext(fn func(context.Context) error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer g.cancel()
		if err := fn(g.ctx); err != nil {
			g.mu.Lock()
			g.errs = append(g.errs, err)
			g.mu.Unlock()
		}
	}()
}

// Wait blocks until every goroutine has returned. The errors they
// returned are joined in the order they were returned.
func (g *G) Wait() error {
	g.wg.Wait()
	g.cancel()
	g.mu.Lock()
	defer g.mu.Unlock()
	return errors.Join(g.errs...)
}
