// devtools-protocol - a Go CDP pipe-transport broker.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See https://www.gnu.org/licenses/ for details.

// Package registry implements the broker's message registry: the mapping
// from outstanding request keys to single-use pending-result slots (spec
// §4.3).
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ayjayt/devtools-protocol/wire"
)

// ErrDuplicateKey is returned by Reserve when the caller asks for a key
// that already has a pending slot. The spec calls this "a bug; the caller
// MUST choose unique IDs", so it is never expected in normal operation.
var ErrDuplicateKey = errors.New("registry: duplicate message key")

// Slot is a single-use result receptacle: it is fulfilled exactly once,
// either by Resolve or by Drain.
type Slot struct {
	ch chan *wire.Message
}

// Wait blocks until the slot is fulfilled.
func (s *Slot) Wait() *wire.Message {
	return <-s.ch
}

// C exposes the underlying channel so callers can select on it alongside
// a context's Done channel (the cooperative shape, spec §5).
func (s *Slot) C() <-chan *wire.Message {
	return s.ch
}

// Registry maintains the pending map described in spec §3 ("Broker
// state"). It is safe for concurrent use: Registry keeps its own lock,
// separate from the broker's mutex that guards the target and session
// maps, and the broker calls it without holding that mutex.
type Registry struct {
	mu      sync.Mutex
	pending map[wire.Key]*Slot
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{pending: make(map[wire.Key]*Slot)}
}

// Reserve inserts a fresh pending slot for key and returns it.
func (r *Registry) Reserve(key wire.Key) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pending[key]; exists {
		return nil, fmt.Errorf("%w: %+v", ErrDuplicateKey, key)
	}
	slot := &Slot{ch: make(chan *wire.Message, 1)}
	r.pending[key] = slot
	return slot, nil
}

// Resolve moves the slot for key from pending to completed, delivering
// msg to its unique waiter. An unknown key is not an error: the spec
// treats it as "a warning, not an error" and Resolve reports it via its
// bool return so the caller can log it.
func (r *Registry) Resolve(key wire.Key, msg *wire.Message) (found bool) {
	r.mu.Lock()
	slot, ok := r.pending[key]
	if ok {
		delete(r.pending, key)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	slot.ch <- msg
	return true
}

// Drain resolves every outstanding slot with a synthetic error message
// carrying reason, used on broker shutdown.
func (r *Registry) Drain(reason error) {
	r.mu.Lock()
	pending := r.pending
	r.pending = make(map[wire.Key]*Slot)
	r.mu.Unlock()

	for key, slot := range pending {
		slot.ch <- &wire.Message{
			ID:        key.ID,
			SessionID: key.SessionID,
			Error:     &wire.Error{Code: -1, Message: reason.Error()},
		}
	}
}

// DrainSession resolves every outstanding slot belonging to sessionID
// with a synthetic error carrying reason, used when a single session is
// torn down (e.g. Target.detachedFromTarget) without closing the whole
// broker.
func (r *Registry) DrainSession(sessionID string, reason error) {
	r.mu.Lock()
	var keys []wire.Key
	for key := range r.pending {
		if key.SessionID == sessionID {
			keys = append(keys, key)
		}
	}
	slots := make([]*Slot, len(keys))
	for i, key := range keys {
		slots[i] = r.pending[key]
		delete(r.pending, key)
	}
	r.mu.Unlock()

	for i, key := range keys {
		slots[i].ch <- &wire.Message{
			ID:        key.ID,
			SessionID: key.SessionID,
			Error:     &wire.Error{Code: -1, Message: reason.Error()},
		}
	}
}

// Pending reports the number of outstanding slots. Exposed for tests and
// for shutdown logging.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
