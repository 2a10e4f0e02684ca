package run

import "sync"

// Guard tracks which groups currently have a run in flight so a slow run
// cannot overlap with the next tick of its own cadence. State is held
// per process; the worker is the single consumer of scheduled runs.
type Guard struct {
	mu      sync.Mutex
	running map[string]struct{}
}

// NewGuard creates an empty guard.
func NewGuard() *Guard {
	return &Guard{running: make(map[string]struct{})}
}

// TryAcquire marks the group as running. It returns false when a run for
// the group is already in flight, in which case the caller must skip.
func (g *Guard) TryAcquire(groupKey string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.running[groupKey]; ok {
		return false
	}
	g.running[groupKey] = struct{}{}
	return true
}

// Release marks the group as idle again. Safe to call on every exit path;
// releasing an idle group is a no-op.
func (g *Guard) Release(groupKey string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, groupKey)
}
