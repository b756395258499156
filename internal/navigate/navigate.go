package navigate

import (
	"errors"
	"fmt"
	log "log/slog"
	"sync"
	"time"
)

// Router moves the client to path inside the running application.
type Router interface {
	Navigate(path string) error
}

// Locator performs a full location assignment. It is the fallback used when
// no Router is available or the Router fails.
type Locator interface {
	Assign(path string) error
}

// RouterFunc adapts a function to Router.
type RouterFunc func(path string) error

func (f RouterFunc) Navigate(path string) error { return f(path) }

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(path string) error

func (f LocatorFunc) Assign(path string) error { return f(path) }

var ErrNoRoute = errors.New("no router or locator available")

// Handle is a pending navigation.
type Handle struct {
	Path string

	e     *Effector
	timer *time.Timer
}

// Cancel stops the navigation. It reports whether the navigation was still
// pending.
func (h *Handle) Cancel() bool {
	if h == nil {
		return false
	}
	h.e.mu.Lock()
	defer h.e.mu.Unlock()
	return h.e.cancelLocked(h)
}

// Effector performs delayed redirects. At most one is pending at a time: a new
// Schedule supersedes the previous one.
type Effector struct {
	mu      sync.Mutex
	router  Router
	locator Locator
	pending *Handle
	closed  bool
}

func NewEffector(router Router, locator Locator) *Effector {
	return &Effector{router: router, locator: locator}
}

// SetRouter replaces the router, e.g. once a client announces one.
func (e *Effector) SetRouter(r Router) {
	e.mu.Lock()
	e.router = r
	e.mu.Unlock()
}

// Schedule fires a redirect to path after delay unless cancelled first.
func (e *Effector) Schedule(path string, delay time.Duration) *Handle {
	e.mu.Lock()
	defer e.mu.Unlock()

	h := &Handle{Path: path, e: e}
	if e.closed {
		return h
	}
	if e.pending != nil {
		log.Debug("Superseding navigation", "old", e.pending.Path, "new", path)
		e.cancelLocked(e.pending)
	}

	e.pending = h
	h.timer = time.AfterFunc(delay, func() { e.fire(h) })
	return h
}

// Close cancels any pending navigation. Later Schedule calls never fire.
func (e *Effector) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	if e.pending != nil {
		e.cancelLocked(e.pending)
	}
}

func (e *Effector) cancelLocked(h *Handle) bool {
	if e.pending != h {
		return false
	}
	e.pending = nil
	h.timer.Stop()
	return true
}

func (e *Effector) fire(h *Handle) {
	e.mu.Lock()
	if e.pending != h {
		e.mu.Unlock()
		return
	}
	e.pending = nil
	router, locator := e.router, e.locator
	e.mu.Unlock()

	if err := Go(router, locator, h.Path); err != nil {
		log.Error("Failed to navigate", "path", h.Path, "err", err)
	}
}

// Go navigates immediately through router, falling back to locator.
func Go(router Router, locator Locator, path string) error {
	if router != nil {
		err := router.Navigate(path)
		if err == nil {
			log.Info("Navigated", "path", path)
			return nil
		}
		log.Warn("Router failed, using location fallback", "path", path, "err", err)
	}
	if locator == nil {
		return ErrNoRoute
	}
	if err := locator.Assign(path); err != nil {
		return fmt.Errorf("assign location: %w", err)
	}
	log.Info("Assigned location", "path", path)
	return nil
}
