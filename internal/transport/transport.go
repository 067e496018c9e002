// devtools-protocol - a Go CDP pipe-transport broker.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See https://www.gnu.org/licenses/ for details.

// Package transport implements the CDP pipe transport (spec §4.1): a pair
// of OS handles used to write frames to, and read frames from, the child
// browser process's fds 3 and 4.
package transport

import (
	"bufio"
	"io"
	"sync"

	"github.com/ayjayt/devtools-protocol/wire"
)

// Transport is the narrow interface the broker depends on. The real
// implementation (Pipe) wraps a pair of *os.File; tests use Fake (see
// fake.go), an in-memory channel-backed double grounded on
// tests/ws/server.go's scripted-response test double.
type Transport interface {
	// WriteFrame writes raw followed by the NUL delimiter. Partial writes
	// are retried internally until the frame is complete or the pipe
	// reports closed.
	WriteFrame(raw []byte) error
	// ReadFrame blocks for the next complete frame. It returns
	// wire.ErrPipeClosed once the peer has closed and every buffered
	// frame has been drained.
	ReadFrame() (raw []byte, err error)
	// Close closes both handles. Idempotent.
	Close() error
}

// Pipe is the real OS-handle transport: w is the parent's write end
// (child reads on fd 3), r is the parent's read end (child writes on fd
// 4).
type Pipe struct {
	writeMu sync.Mutex
	w       io.WriteCloser
	r       io.ReadCloser

	scanner *bufio.Scanner

	closeMu sync.Mutex
	closed  bool
}

// NewPipe wraps an already-connected read/write handle pair.
func NewPipe(w io.WriteCloser, r io.ReadCloser) *Pipe {
	scanner := bufio.NewScanner(r)
	scanner.Split(wire.ScanFrames)
	// CDP frames (screenshots, large DOM snapshots) routinely exceed
	// bufio's 64KiB default token size; grow to the broker's own size
	// ceiling (spec §4.5).
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &Pipe{w: w, r: r, scanner: scanner}
}

func (p *Pipe) WriteFrame(raw []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	frame := make([]byte, 0, len(raw)+1)
	frame = append(frame, raw...)
	frame = append(frame, 0x00)

	for len(frame) > 0 {
		n, err := p.w.Write(frame)
		if err != nil {
			return wire.ErrPipeClosed
		}
		frame = frame[n:]
	}
	return nil
}

func (p *Pipe) ReadFrame() ([]byte, error) {
	if p.scanner.Scan() {
		frame := p.scanner.Bytes()
		out := make([]byte, len(frame))
		copy(out, frame)
		return out, nil
	}
	return nil, wire.ErrPipeClosed
}

func (p *Pipe) Close() error {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	werr := p.w.Close()
	rerr := p.r.Close()
	if werr != nil {
		return werr
	}
	return rerr
}
