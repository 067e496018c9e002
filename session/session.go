// devtools-protocol - a Go CDP pipe-transport broker.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See https://www.gnu.org/licenses/ for details.

// Package session implements the user-facing Session & Target facade
// (spec §4.6). Per spec §9's "Cyclic back-references" design note,
// Session and Target are lightweight handles holding only an ID and a
// reference to the broker that owns the real state; every call resolves
// into the broker's arena.
package session

import (
	"context"

	"github.com/ayjayt/devtools-protocol/broker"
	"github.com/ayjayt/devtools-protocol/internal/router"
	"github.com/ayjayt/devtools-protocol/wire"
)

// Session is a handle to an attached CDP conversation with a Target.
type Session struct {
	id string
	b  *broker.Broker
}

// NewSession wraps sessionID as a Session handle backed by b. Callers
// normally obtain a Session from Target.CreateSession; this constructor
// exists for sessions the broker already registered by a path other than
// Target.attachToTarget (e.g. Broker.AttachBrowserSession).
func NewSession(b *broker.Broker, sessionID string) *Session {
	return &Session{id: sessionID, b: b}
}

// ID returns the session's sessionId. The empty string denotes the
// implicit browser-level session.
func (s *Session) ID() string { return s.id }

// SendCommand is the blocking façade: it suspends until the response
// arrives or ctx is done (spec §5, "Suspension points").
func (s *Session) SendCommand(ctx context.Context, method string, params interface{}) (*wire.Message, error) {
	return s.b.SendCommand(ctx, s.id, method, params)
}

// SendCommandAsync is the cooperative façade: it returns immediately with
// a Future the caller can await alongside other work.
func (s *Session) SendCommandAsync(ctx context.Context, method string, params interface{}) (*broker.Future, error) {
	return s.b.Send(ctx, s.id, method, params)
}

// Subscribe registers a repeating handler for pattern on this session.
func (s *Session) Subscribe(pattern string, handler router.Handler) error {
	return s.b.Subscribe(s.id, pattern, handler, true)
}

// Unsubscribe removes pattern from this session.
func (s *Session) Unsubscribe(pattern string) error {
	return s.b.Unsubscribe(s.id, pattern)
}

// SubscribeOnce registers a one-shot subscription for pattern and returns
// a future resolved by the first matching event.
func (s *Session) SubscribeOnce(pattern string) (*router.Future, error) {
	return s.b.SubscribeOnce(s.id, pattern)
}
