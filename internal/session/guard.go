// Package session holds per-dashboard-session state: the loaded
// visit, its fiber lookup tables, the caches, and the update guard
// that keeps bidirectionally wired widgets from chasing each other.
//
// A session's state belongs to the UI loop; only the caches inside it
// are shared with background work.
package session

// Guard is a scoped reentrancy guard for programmatic widget updates.
//
// A handler that is about to push a value into its counterpart widget
// enters the guard first; the counterpart's handler sees the guard
// held and returns without echoing the update back. Enter from within
// a held guard fails, which is exactly the echo being suppressed.
//
// Guard is not a mutex: it serializes nothing and must only be used
// from the UI loop goroutine.
type Guard struct {
	held bool
}

// Enter acquires the guard. On success the caller must invoke release
// on every exit path, typically via defer. When the guard is already
// held, ok is false and release is a no-op.
func (g *Guard) Enter() (release func(), ok bool) {
	if g.held {
		return func() {}, false
	}
	g.held = true
	return func() { g.held = false }, true
}

// Held reports whether the guard is currently held.
func (g *Guard) Held() bool { return g.held }
