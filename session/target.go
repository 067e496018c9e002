// devtools-protocol - a Go CDP pipe-transport broker.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See https://www.gnu.org/licenses/ for details.

package session

import (
	"context"

	"github.com/ayjayt/devtools-protocol/broker"
	"github.com/ayjayt/devtools-protocol/wire"
)

// Target is a handle to a debuggable entity (tab, worker, the browser
// itself), identified by a targetId. The pseudo-ID "0" denotes the
// browser itself (spec §3).
type Target struct {
	id string
	b  *broker.Broker
}

// New wraps targetID as a Target handle backed by b. It does not itself
// create or discover the target; callers obtain targetIDs from
// broker.GetTargets or broker.CreateTarget.
func New(b *broker.Broker, targetID string) *Target {
	return &Target{id: targetID, b: b}
}

// ID returns the target's targetId.
func (t *Target) ID() string { return t.id }

// CreateSession attaches a new session to this target (Target.
// attachToTarget with flatten=true, spec §4.6) and returns a Session
// handle.
func (t *Target) CreateSession(ctx context.Context) (*Session, error) {
	sessionID, err := t.b.CreateSession(ctx, t.id)
	if err != nil {
		return nil, err
	}
	return &Session{id: sessionID, b: t.b}, nil
}

// CloseSession detaches sessionID from this target.
func (t *Target) CloseSession(ctx context.Context, sess *Session) error {
	return t.b.CloseSession(ctx, sess.id)
}

// PrimarySession returns the first-inserted session attached to this
// target, failing with broker.ErrNoPrimarySession if none is attached
// (spec §4.6).
func (t *Target) PrimarySession() (*Session, error) {
	sessionID, err := t.b.PrimarySessionID(t.id)
	if err != nil {
		return nil, err
	}
	return &Session{id: sessionID, b: t.b}, nil
}

// SendCommand routes to the target's primary session, failing if none is
// attached.
func (t *Target) SendCommand(ctx context.Context, method string, params interface{}) (*wire.Message, error) {
	sess, err := t.PrimarySession()
	if err != nil {
		return nil, err
	}
	return sess.SendCommand(ctx, method, params)
}
