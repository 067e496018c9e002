// devtools-protocol - a Go CDP pipe-transport broker.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See https://www.gnu.org/licenses/ for details.

package transport

import (
	"sync"

	"github.com/ayjayt/devtools-protocol/wire"
)

// Handler scripts a Fake transport's responses to an inbound command,
// adapted from tests/ws/server.go's WithCDPHandler: instead of a
// WebSocket connection it is handed a decoded wire.Message and a write
// callback, and it decides what (if anything) to write back.
type Handler func(msg *wire.Message, write func(*wire.Message))

// Fake is an in-process Transport double used by broker/session/
// browser tests in place of a real child process and OS pipe pair.
// It never touches the filesystem or a subprocess.
type Fake struct {
	handler Handler

	mu      sync.Mutex
	closed  bool
	inbox   chan []byte
	written []*wire.Message
}

// NewFake returns a Fake transport that invokes handler for every frame
// written to it (i.e. every outbound command) and delivers whatever the
// handler writes back as the next ReadFrame result.
func NewFake(handler Handler) *Fake {
	return &Fake{handler: handler, inbox: make(chan []byte, 64)}
}

func (f *Fake) WriteFrame(raw []byte) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return wire.ErrPipeClosed
	}
	f.mu.Unlock()

	msg, err := wire.Decode(raw)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.written = append(f.written, msg)
	f.mu.Unlock()

	if f.handler != nil {
		f.handler(msg, f.Push)
	}
	return nil
}

// Push injects a frame as if it had arrived from the child, for handlers
// and tests that want to emit events asynchronously (e.g. simulating
// Target.attachedToTarget before the attach command's own response).
func (f *Fake) Push(msg *wire.Message) {
	raw, err := wire.Encode(msg)
	if err != nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.inbox <- raw
}

func (f *Fake) ReadFrame() ([]byte, error) {
	raw, ok := <-f.inbox
	if !ok {
		return nil, wire.ErrPipeClosed
	}
	return raw, nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	close(f.inbox)
	return nil
}

// WrittenMessages returns every message handed to WriteFrame so far, for
// test assertions.
func (f *Fake) WrittenMessages() []*wire.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*wire.Message, len(f.written))
	copy(out, f.written)
	return out
}
