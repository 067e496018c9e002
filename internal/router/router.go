// devtools-protocol - a Go CDP pipe-transport broker.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See https://www.gnu.org/licenses/ for details.

// Package router implements the subscription router: per-session pattern
// tables matched against event method names, with exact and
// trailing-wildcard matching and one-shot subscriptions (spec §4.4).
package router

import (
	"strings"
	"sync"

	"github.com/ayjayt/devtools-protocol/wire"
)

// Handler is the single capability subscriptions dispatch to, per spec §9
// ("Dynamic dispatch over callback signatures"): a plain function taking
// the matched event. Handlers are invoked in their own goroutine and are
// not joined by dispatch.
type Handler func(event *wire.Message)

type subscription struct {
	handler   Handler
	repeating bool
}

// Router is a single session's subscription table. One Router exists per
// Session; the broker looks it up by session ID.
type Router struct {
	mu   sync.Mutex
	subs map[string]subscription
	// order preserves insertion order so that dispatch starts the handler
	// goroutines in a deterministic order, matching spec §5's "matching
	// order among multiple patterns is insertion order." The goroutines
	// themselves may run in any order.
	order []string
}

// New returns an empty Router.
func New() *Router {
	return &Router{subs: make(map[string]subscription)}
}

// Subscribe registers handler under pattern, replacing any prior
// subscription with the same pattern. repeating=false makes it a one-shot
// subscription: it is removed after it first fires.
func (r *Router) Subscribe(pattern string, handler Handler, repeating bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.subs[pattern]; !exists {
		r.order = append(r.order, pattern)
	}
	r.subs[pattern] = subscription{handler: handler, repeating: repeating}
}

// Unsubscribe removes pattern. It is a no-op if pattern is not present.
func (r *Router) Unsubscribe(pattern string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.subs[pattern]; !exists {
		return
	}
	delete(r.subs, pattern)
	r.removeFromOrder(pattern)
}

func (r *Router) removeFromOrder(pattern string) {
	for i, p := range r.order {
		if p == pattern {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

// Future is returned by SubscribeOnce: it resolves to the first event
// matching pattern.
type Future struct {
	ch chan *wire.Message
}

// Wait blocks until the future resolves.
func (f *Future) Wait() *wire.Message {
	return <-f.ch
}

// SubscribeOnce registers a non-repeating subscription whose body
// fulfills the returned Future with the first matching event.
func (r *Router) SubscribeOnce(pattern string) *Future {
	future := &Future{ch: make(chan *wire.Message, 1)}
	r.Subscribe(pattern, func(event *wire.Message) {
		future.ch <- event
	}, false)
	return future
}

// Dispatch matches event.Method against every registered pattern and
// invokes every matching handler, each in its own goroutine, then removes
// any non-repeating entries that fired. Iteration is over a snapshot, so
// concurrent Subscribe/Unsubscribe calls from within a handler are safe
// (spec §4.4, "iteration MUST tolerate concurrent unsubscription").
func (r *Router) Dispatch(event *wire.Message) {
	r.mu.Lock()
	snapshot := make([]string, len(r.order))
	copy(snapshot, r.order)
	r.mu.Unlock()

	var fired []string
	for _, pattern := range snapshot {
		r.mu.Lock()
		sub, ok := r.subs[pattern]
		r.mu.Unlock()
		if !ok || !matches(pattern, event.Method) {
			continue
		}
		go sub.handler(event)
		if !sub.repeating {
			fired = append(fired, pattern)
		}
	}

	if len(fired) == 0 {
		return
	}
	r.mu.Lock()
	for _, pattern := range fired {
		delete(r.subs, pattern)
		r.removeFromOrder(pattern)
	}
	r.mu.Unlock()
}

// matches implements spec §3's two pattern modes: exact equality, or a
// trailing "*" wildcard matched as a prefix.
func matches(pattern, method string) bool {
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(method, pattern[:len(pattern)-1])
	}
	return pattern == method
}
