package history

import "sync"

// Memory is an in-process Stack. Like a browser, pushing drops every
// entry after the current one.
type Memory struct {
	mu       sync.Mutex
	entries  []Entry
	index    int
	pushes   int
	replaces int

	pops Listeners
}

// NewMemory creates a stack whose only entry is url.
func NewMemory(url string) *Memory {
	return &Memory{entries: []Entry{{URL: url}}}
}

// Push implements Stack.
func (m *Memory) Push(url string, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries[:m.index+1], Entry{URL: url, State: state})
	m.index = len(m.entries) - 1
	m.pushes++
	return nil
}

// Replace implements Stack.
func (m *Memory) Replace(url string, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[m.index] = Entry{URL: url, State: state}
	m.replaces++
	return nil
}

// Back implements Stack. Pop listeners run synchronously.
func (m *Memory) Back() error { return m.move(-1) }

// Forward implements Stack. Pop listeners run synchronously.
func (m *Memory) Forward() error { return m.move(1) }

// Go moves delta entries, like history.go(delta).
func (m *Memory) Go(delta int) error { return m.move(delta) }

func (m *Memory) move(delta int) error {
	m.mu.Lock()
	target := m.index + delta
	if delta == 0 || target < 0 || target >= len(m.entries) {
		m.mu.Unlock()
		return ErrNoEntry
	}
	m.index = target
	e := m.entries[target]
	m.mu.Unlock()

	m.pops.Notify(e)
	return nil
}

// Current implements Stack.
func (m *Memory) Current() (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[m.index], true
}

// Len implements Stack.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Index returns the position of the current entry.
func (m *Memory) Index() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index
}

// Entries returns a copy of the stack.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

// Pushes returns how many times Push was called.
func (m *Memory) Pushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pushes
}

// Replaces returns how many times Replace was called.
func (m *Memory) Replaces() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replaces
}

// OnPop implements Stack.
func (m *Memory) OnPop(fn func(Entry)) func() { return m.pops.Add(fn) }
