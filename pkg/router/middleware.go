package router

import (
	"context"
	"sync"
)

// Guard decides whether a navigation may proceed. prev is the context of
// the page currently shown (nil before the first navigation). Returning
// false or an error rejects the navigation.
type Guard interface {
	Allow(ctx context.Context, path string, state any, prev *Context) (bool, error)
}

// GuardFunc adapts a function to the Guard interface.
type GuardFunc func(ctx context.Context, path string, state any, prev *Context) (bool, error)

// Allow implements Guard.
func (f GuardFunc) Allow(ctx context.Context, path string, state any, prev *Context) (bool, error) {
	return f(ctx, path, state, prev)
}

// Pipeline is an ordered list of guards. The zero value is ready to use.
type Pipeline struct {
	mu     sync.RWMutex
	guards []Guard
}

// Use appends guards to the pipeline.
func (p *Pipeline) Use(guards ...Guard) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.guards = append(p.guards, guards...)
}

// Len returns the number of guards.
func (p *Pipeline) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.guards)
}

// Run evaluates the guards in registration order and stops at the first
// one that rejects. The error, if any, is the rejecting guard's.
func (p *Pipeline) Run(ctx context.Context, path string, state any, prev *Context) (bool, error) {
	p.mu.RLock()
	guards := p.guards
	p.mu.RUnlock()

	return runGuards(ctx, guards, path, state, prev)
}

func runGuards(ctx context.Context, guards []Guard, path string, state any, prev *Context) (bool, error) {
	for _, g := range guards {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		ok, err := g.Allow(ctx, path, state, prev)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// Chain combines guards into one that allows only if all of them do.
func Chain(guards ...Guard) Guard {
	return GuardFunc(func(ctx context.Context, path string, state any, prev *Context) (bool, error) {
		return runGuards(ctx, guards, path, state, prev)
	})
}

// When runs g only if condition holds for the target path; otherwise the
// navigation is allowed.
func When(condition func(path string) bool, g Guard) Guard {
	return GuardFunc(func(ctx context.Context, path string, state any, prev *Context) (bool, error) {
		if !condition(path) {
			return true, nil
		}
		return g.Allow(ctx, path, state, prev)
	})
}

// Unless skips g when condition holds for the target path.
func Unless(condition func(path string) bool, g Guard) Guard {
	return GuardFunc(func(ctx context.Context, path string, state any, prev *Context) (bool, error) {
		if condition(path) {
			return true, nil
		}
		return g.Allow(ctx, path, state, prev)
	})
}
