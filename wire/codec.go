// devtools-protocol - a Go CDP pipe-transport broker.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See https://www.gnu.org/licenses/ for details.

package wire

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// delimiter is the null byte CDP's pipe transport uses to terminate a frame.
const delimiter = 0x00

// byeSentinel is the literal, non-JSON final frame the child-launch shim
// emits before exiting (spec §6, "Child-wrapper sentinel").
const byeSentinel = "{bye}"

// ErrPipeClosed is returned by the transport once the other end of the
// pipe has closed and every complete frame has been drained.
var ErrPipeClosed = errors.New("wire: pipe closed")

// MalformedFrameError reports a frame that failed to decode as a JSON
// object: a JSON syntax error, or a well-formed JSON value whose root is
// not an object (spec §4.2).
type MalformedFrameError struct {
	Frame []byte
	Err   error
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("wire: malformed frame: %v", e.Err)
}

func (e *MalformedFrameError) Unwrap() error { return e.Err }

// IsBye reports whether raw is the child-wrapper's end-of-stream sentinel.
// The broker's read loop skips it and treats the EOF that follows it, like
// any EOF, as a clean close (ErrBrowserClosed); the transport does not
// inspect it.
func IsBye(raw []byte) bool {
	return string(bytes.TrimSpace(raw)) == byeSentinel
}

// Encode JSON-encodes msg and forbids embedded NUL bytes in the result,
// since those would be indistinguishable from the frame delimiter on the
// wire (spec §4.2).
func Encode(msg *Message) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("wire: encode: %w", err)
	}
	if bytes.IndexByte(b, delimiter) >= 0 {
		return nil, fmt.Errorf("wire: encode: message contains an embedded NUL byte")
	}
	return b, nil
}

// Decode parses a single raw frame into a Message. It rejects as
// malformed an empty frame (ScanFrames passes empty frames through) and
// any frame whose JSON root is not an object.
func Decode(raw []byte) (*Message, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &MalformedFrameError{Frame: raw, Err: errors.New("frame root is not a JSON object")}
	}
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, &MalformedFrameError{Frame: raw, Err: err}
	}
	return &msg, nil
}

// ScanFrames is a bufio.SplitFunc that splits a byte stream on the NUL
// frame delimiter, retaining any trailing partial frame for the next read
// (spec §4.1, read_frames). It is the stdlib-idiomatic way to express a
// custom-delimiter scanner; see DESIGN.md for why this isn't pulled from a
// library.
func ScanFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, delimiter); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		// Trailing bytes with no delimiter: the pipe closed mid-frame.
		return len(data), data, bufio.ErrFinalToken
	}
	return 0, nil, nil
}
