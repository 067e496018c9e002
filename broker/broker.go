// devtools-protocol - a Go CDP pipe-transport broker.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See https://www.gnu.org/licenses/ for details.

// Package broker implements the central actor described in spec §4.5: it
// drains the transport's read side, classifies each message as a
// response, an event, or a protocol error, and routes it to the message
// registry or the subscription router. It also owns the target/session
// arena (spec §9, "Cyclic back-references" design note): sessions and
// targets are stored here by ID, and the session package's Session/
// Target types are lightweight handles that resolve into this state on
// every call.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ayjayt/devtools-protocol/internal/log"
	"github.com/ayjayt/devtools-protocol/internal/registry"
	"github.com/ayjayt/devtools-protocol/internal/router"
	"github.com/ayjayt/devtools-protocol/internal/transport"
	"github.com/ayjayt/devtools-protocol/wire"
)

// sizeCeiling is the default maximum encoded message size (spec §4.5).
const sizeCeiling = 16 * 1024 * 1024

// browserTargetID is the pseudo-target ID denoting the browser itself
// (spec §3, "Target").
const browserTargetID = "0"

// ErrBrowserClosed is returned by any operation attempted after Close.
var ErrBrowserClosed = errors.New("broker: browser closed")

// MessageTypeError reports an invalid command argument, e.g. a non-string
// method. It is raised synchronously, before any frame is written.
type MessageTypeError struct{ Msg string }

func (e *MessageTypeError) Error() string { return "broker: " + e.Msg }

// MissingKeyError reports a command missing a required field.
type MissingKeyError struct{ Key string }

func (e *MissingKeyError) Error() string { return fmt.Sprintf("broker: missing required key %q", e.Key) }

// DevtoolsProtocolError wraps a response-level wire.Error (spec §7):
// delivered inside a resolved response, never raised by Send itself.
type DevtoolsProtocolError struct{ *wire.Error }

func (e *DevtoolsProtocolError) Unwrap() error { return e.Error }

// targetState is the broker's record of a Target (spec §3).
type targetState struct {
	id string
	// sessionOrder preserves insertion order; sessionOrder[0] is primary.
	sessionOrder []string
}

// sessionState is the broker's record of a Session (spec §3).
type sessionState struct {
	id            string
	targetID      string
	nextMessageID int64
	router        *router.Router
}

// DebugFrameFunc, if set, is called for every raw frame written or read,
// reimplementing the Python original's run_output_thread as a callback
// rather than a side-channel goroutine (SPEC_FULL.md "Supplemented
// features" #3), since the ambient Logger already owns the output path.
type DebugFrameFunc func(direction string, raw []byte)

// Broker is the message broker described in spec §4.5.
type Broker struct {
	transport transport.Transport
	logger    log.Logger
	tracer    trace.Tracer
	debug     DebugFrameFunc

	reg *registry.Registry

	mu       sync.Mutex
	sessions map[string]*sessionState
	targets  map[string]*targetState
	closed   bool

	readDone chan struct{}
}

// Option configures a Broker at construction time.
type Option func(*Broker)

// WithDebugFrame installs a callback invoked for every raw frame crossing
// the transport, in either direction.
func WithDebugFrame(fn DebugFrameFunc) Option {
	return func(b *Broker) { b.debug = fn }
}

// New constructs a Broker over t and starts its read loop. The
// browser-level session ("") is pre-registered, matching spec §3's
// "the empty string denotes the implicit browser-level session."
func New(t transport.Transport, logger log.Logger, opts ...Option) *Broker {
	b := &Broker{
		transport: t,
		logger:    logger,
		tracer:    otel.Tracer("github.com/ayjayt/devtools-protocol/broker"),
		reg:       registry.New(),
		sessions:  make(map[string]*sessionState),
		targets:   make(map[string]*targetState, 1),
		readDone:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.targets[browserTargetID] = &targetState{id: browserTargetID, sessionOrder: []string{""}}
	b.sessions[""] = &sessionState{id: "", targetID: browserTargetID, router: router.New()}

	go b.readLoop()
	return b
}

// Future is the pending result of a Send call (spec's "pending slot").
type Future struct {
	slot *registry.Slot
}

// Wait blocks until the future resolves or ctx is done.
func (f *Future) Wait(ctx context.Context) (*wire.Message, error) {
	select {
	case msg := <-f.slot.C():
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Send allocates the next message ID for sessionID, builds the outbound
// message, records a pending slot, writes the frame, and returns a
// Future. This is the broker's one entry point for every outbound
// command; Session.SendCommand/SendCommandAsync are thin wrappers over
// it.
func (b *Broker) Send(ctx context.Context, sessionID, method string, params interface{}) (*Future, error) {
	if method == "" {
		return nil, &MessageTypeError{Msg: "method must be a non-empty string"}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBrowserClosed
	}
	sess, ok := b.sessions[sessionID]
	if !ok {
		b.mu.Unlock()
		return nil, fmt.Errorf("broker: unknown session %q", sessionID)
	}
	sess.nextMessageID++
	id := sess.nextMessageID
	b.mu.Unlock()

	var raw []byte
	if params != nil {
		var err error
		raw, err = json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("broker: encode params: %w", err)
		}
	}

	msg := &wire.Message{ID: id, SessionID: sessionID, Method: method, Params: raw}
	frame, err := wire.Encode(msg)
	if err != nil {
		return nil, err
	}
	if len(frame) > sizeCeiling {
		return nil, fmt.Errorf("broker: encoded message of %d bytes exceeds the %d byte ceiling", len(frame), sizeCeiling)
	}

	_, span := b.tracer.Start(ctx, "broker.Send", trace.WithAttributes(
		attribute.String("cdp.method", method),
		attribute.String("cdp.session_id", sessionID),
		attribute.Int64("cdp.message_id", id),
	))
	defer span.End()

	key := msg.Key()
	slot, err := b.reg.Reserve(key)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if b.debug != nil {
		b.debug("write", frame)
	}
	if err := b.transport.WriteFrame(frame); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &Future{slot: slot}, nil
}

// SendCommand is the blocking convenience form: Send followed by Wait.
func (b *Broker) SendCommand(ctx context.Context, sessionID, method string, params interface{}) (*wire.Message, error) {
	future, err := b.Send(ctx, sessionID, method, params)
	if err != nil {
		return nil, err
	}
	return future.Wait(ctx)
}

// readLoop implements the read-loop contract of spec §4.5 as an explicit
// state machine consuming one frame at a time (spec §9, "Coroutine-based
// control flow" design note): classify, then route.
func (b *Broker) readLoop() {
	defer close(b.readDone)
	for {
		raw, err := b.transport.ReadFrame()
		if err != nil {
			b.shutdown(ErrBrowserClosed)
			return
		}
		if b.debug != nil {
			b.debug("read", raw)
		}
		if wire.IsBye(raw) {
			continue
		}

		msg, err := wire.Decode(raw)
		if err != nil {
			b.logger.Warnf("broker", "dropping malformed frame: %v", err)
			continue
		}

		switch {
		case msg.IsResponse():
			if found := b.reg.Resolve(msg.Key(), msg); !found {
				b.logger.Warnf("broker", "response for unknown key %+v", msg.Key())
			}
		case msg.IsEvent():
			b.dispatchEvent(msg)
		case msg.IsProtocolError():
			b.logger.Errorf("broker", "fatal protocol error: %v", msg.Error)
			b.shutdown(msg.Error)
			return
		default:
			b.logger.Warnf("broker", "dropping frame with no id, method, or error: %+v", msg)
		}
	}
}

func (b *Broker) dispatchEvent(msg *wire.Message) {
	b.mu.Lock()
	sess, ok := b.sessions[msg.SessionID]
	b.mu.Unlock()
	if !ok {
		b.logger.Warnf("broker", "event %q for unknown session %q", msg.Method, msg.SessionID)
		return
	}

	switch msg.Method {
	case eventTargetAttachedToTarget, eventTargetDetachedFromTarget, eventTargetTargetDestroyed:
		b.handleTargetLifecycleEvent(msg)
	}
	sess.router.Dispatch(msg)
}

// Close transitions the broker to closed, drains every pending slot with
// ErrBrowserClosed, and waits for the read loop to stop (spec §3,
// "Broker state" invariants).
func (b *Broker) Close() error {
	b.shutdown(ErrBrowserClosed)
	err := b.transport.Close()
	<-b.readDone
	return err
}

func (b *Broker) shutdown(reason error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.reg.Drain(reason)
}

// Logger exposes the broker's logger for callers (e.g. the session
// package) that want to share it rather than constructing their own.
func (b *Broker) Logger() log.Logger { return b.logger }
