// devtools-protocol - a Go CDP pipe-transport broker.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See https://www.gnu.org/licenses/ for details.

// Package wire defines the CDP wire message shape and the null-delimited
// frame codec used to move it across the pipe transport.
package wire

import (
	"fmt"

	"github.com/mailru/easyjson"
)

// Message is a single CDP frame, decoded from or destined for the wire.
// Its JSON shape mirrors github.com/chromedp/cdproto.Message: Params,
// Result and the error's Data field are kept as raw JSON (easyjson.
// RawMessage) since the broker never needs to interpret command/event
// payloads, only route them.
type Message struct {
	ID        int64               `json:"id,omitempty"`
	SessionID string              `json:"sessionId,omitempty"`
	Method    string              `json:"method,omitempty"`
	Params    easyjson.RawMessage `json:"params,omitempty"`
	Result    easyjson.RawMessage `json:"result,omitempty"`
	Error     *Error              `json:"error,omitempty"`
}

// Error mirrors cdproto.Error's wire shape.
type Error struct {
	Code    int64               `json:"code"`
	Message string              `json:"message"`
	Data    easyjson.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("devtools protocol error %d: %s", e.Code, e.Message)
}

// Key is the (sessionId, id) pair used to correlate a response with its
// outbound command. The empty sessionId denotes the browser-level session.
type Key struct {
	SessionID string
	ID        int64
}

// IsResponse reports whether m carries an id, i.e. it is a reply to an
// outbound command rather than an event or a broker-level protocol error.
func (m *Message) IsResponse() bool {
	return m.ID != 0
}

// IsEvent reports whether m is a CDP event: it has a method and no id.
func (m *Message) IsEvent() bool {
	return m.ID == 0 && m.Method != ""
}

// IsProtocolError reports whether m is a broker-level protocol error: it
// carries an error but neither an id nor a method, per spec §3.
func (m *Message) IsProtocolError() bool {
	return m.ID == 0 && m.Method == "" && m.Error != nil
}

// Key returns the message key used to correlate this message with its
// outstanding command, per spec §3 ("Message key").
func (m *Message) Key() Key {
	return Key{SessionID: m.SessionID, ID: m.ID}
}
