// Package history models the browser history stack the router writes to.
//
// Stack is the browser-like primitive (push, replace, back, forward and a
// pop listener). Memory is an in-process Stack; remote DOM adapters
// provide Stacks backed by a real browser. Bridge layers the router's
// entry state (caller state plus saved scroll offset) on top of a Stack.
package history

import (
	"errors"
	"maps"
	"slices"
	"sync"
)

// ErrNoEntry is returned by Back and Forward at either end of the stack.
var ErrNoEntry = errors.New("history: no entry in that direction")

// State is the router state stored with every history entry.
type State struct {
	// Caller is the opaque state passed to Push or Replace.
	Caller any `json:"caller,omitempty"`

	// ScrollY is the vertical scroll offset saved before leaving the entry.
	ScrollY float64 `json:"scrollY"`
}

// Entry is one history entry. URL is the address-bar form (base prefix
// included).
type Entry struct {
	URL   string `json:"url"`
	State State  `json:"state"`
}

// Stack is a browser-like history stack.
type Stack interface {
	Push(url string, state State) error
	Replace(url string, state State) error
	Back() error
	Forward() error
	Current() (Entry, bool)
	Len() int

	// OnPop registers fn to be called with the entry that becomes current
	// after Back or Forward. The returned func unregisters it.
	OnPop(fn func(Entry)) (unsubscribe func())
}

// Listeners is a registry of pop callbacks for Stack implementations.
// The zero value is ready to use.
type Listeners struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(Entry)
}

// Add registers fn and returns its unsubscribe func.
func (l *Listeners) Add(fn func(Entry)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func(Entry))
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.fns, id)
	}
}

// Notify calls the registered listeners in registration order, outside
// the registry lock.
func (l *Listeners) Notify(e Entry) {
	l.mu.Lock()
	ids := slices.Sorted(maps.Keys(l.fns))
	fns := make([]func(Entry), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, l.fns[id])
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
}
