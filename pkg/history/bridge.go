package history

// Bridge writes router entries to a Stack. Paths handed to the Bridge are
// normalized; href turns them back into address-bar URLs.
type Bridge struct {
	stack Stack
	href  func(path string) string
}

// NewBridge wraps stack. A nil href leaves paths unchanged.
func NewBridge(stack Stack, href func(path string) string) *Bridge {
	if href == nil {
		href = func(p string) string { return p }
	}
	return &Bridge{stack: stack, href: href}
}

// Stack returns the wrapped stack.
func (b *Bridge) Stack() Stack { return b.stack }

// Push adds an entry for path carrying the caller's state.
func (b *Bridge) Push(path string, caller any) error {
	return b.stack.Push(b.href(path), State{Caller: caller})
}

// Replace rewrites the current entry with path and the caller's state.
func (b *Bridge) Replace(path string, caller any) error {
	return b.stack.Replace(b.href(path), State{Caller: caller})
}

// SaveScroll records y in the current entry, keeping its URL and caller
// state, so a later pop back to it can restore the offset.
func (b *Bridge) SaveScroll(y float64) error {
	cur, ok := b.stack.Current()
	if !ok {
		return nil
	}
	cur.State.ScrollY = y
	return b.stack.Replace(cur.URL, cur.State)
}

// Back moves one entry back.
func (b *Bridge) Back() error { return b.stack.Back() }

// Forward moves one entry forward.
func (b *Bridge) Forward() error { return b.stack.Forward() }

// Current returns the current entry.
func (b *Bridge) Current() (Entry, bool) { return b.stack.Current() }

// Len returns the number of entries.
func (b *Bridge) Len() int { return b.stack.Len() }

// CanGoBack reports whether there is more than one entry.
func (b *Bridge) CanGoBack() bool { return b.stack.Len() > 1 }

// OnPop registers a pop listener on the wrapped stack.
func (b *Bridge) OnPop(fn func(Entry)) func() { return b.stack.OnPop(fn) }
