package pager

import (
	"sync"
	"sync/atomic"
)

// Watcher reports when an observed node becomes visible
type Watcher interface {
	Observe(node string, onVisible func())
	Disconnect()
}

// Viewport stands in for the browser's intersection observer. Renderers call
// Show when a node scrolls into view; every connected watcher observing that
// node fires once.
type Viewport struct {
	mu       sync.Mutex
	watchers map[*viewportWatcher]struct{}
}

func NewViewport() *Viewport {
	return &Viewport{watchers: make(map[*viewportWatcher]struct{})}
}

// NewWatcher returns a watcher bound to this viewport
func (v *Viewport) NewWatcher() Watcher {
	w := &viewportWatcher{viewport: v, nodes: make(map[string]func())}
	v.mu.Lock()
	v.watchers[w] = struct{}{}
	v.mu.Unlock()
	return w
}

// Show fires the callbacks observing node and returns how many fired.
// Callbacks run without the viewport lock held.
func (v *Viewport) Show(node string) int {
	v.mu.Lock()
	type pending struct {
		w  *viewportWatcher
		fn func()
	}
	var fire []pending
	for w := range v.watchers {
		w.mu.Lock()
		if fn, ok := w.nodes[node]; ok {
			fire = append(fire, pending{w: w, fn: fn})
		}
		w.mu.Unlock()
	}
	v.mu.Unlock()

	fired := 0
	for _, p := range fire {
		if p.w.disconnected.Load() {
			continue
		}
		p.fn()
		fired++
	}
	return fired
}

// Active returns the number of connected watchers
func (v *Viewport) Active() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.watchers)
}

type viewportWatcher struct {
	viewport     *Viewport
	mu           sync.Mutex
	nodes        map[string]func()
	disconnected atomic.Bool
}

func (w *viewportWatcher) Observe(node string, onVisible func()) {
	if w.disconnected.Load() {
		return
	}
	w.mu.Lock()
	w.nodes[node] = onVisible
	w.mu.Unlock()
}

func (w *viewportWatcher) Disconnect() {
	if w.disconnected.Swap(true) {
		return
	}
	w.viewport.mu.Lock()
	delete(w.viewport.watchers, w)
	w.viewport.mu.Unlock()

	w.mu.Lock()
	w.nodes = make(map[string]func())
	w.mu.Unlock()
}

var _ Watcher = (*viewportWatcher)(nil)
