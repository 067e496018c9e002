package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayjayt/devtools-protocol/broker"
	"github.com/ayjayt/devtools-protocol/internal/log"
	"github.com/ayjayt/devtools-protocol/internal/transport"
	"github.com/ayjayt/devtools-protocol/wire"
)

const (
	methodAttach = "Target.attachToTarget"
	methodDetach = "Target.detachFromTarget"
)

func newTestBroker(handler transport.Handler) *broker.Broker {
	return broker.New(transport.NewFake(handler), log.NopLogger())
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	b := newTestBroker(func(msg *wire.Message, write func(*wire.Message)) {
		switch msg.Method {
		case methodAttach:
			write(&wire.Message{ID: msg.ID, Result: []byte(`{"sessionId":"s1"}`)})
		case methodDetach:
			write(&wire.Message{ID: msg.ID, Result: []byte(`{}`)})
		}
	})
	t.Cleanup(func() { _ = b.Close() })

	target := New(b, "t1")
	ctx := context.Background()

	sess, err := target.CreateSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s1", sess.ID())

	primary, err := target.PrimarySession()
	require.NoError(t, err)
	assert.Equal(t, sess.ID(), primary.ID())

	require.NoError(t, target.CloseSession(ctx, sess))
	_, err = target.PrimarySession()
	assert.ErrorIs(t, err, broker.ErrNoPrimarySession)
}

func TestSendCommandBlocking(t *testing.T) {
	t.Parallel()

	b := newTestBroker(func(msg *wire.Message, write func(*wire.Message)) {
		write(&wire.Message{ID: msg.ID, SessionID: msg.SessionID, Result: []byte(`{"ok":true}`)})
	})
	t.Cleanup(func() { _ = b.Close() })

	sess := &Session{id: "", b: b}
	msg, err := sess.SendCommand(context.Background(), "Page.enable", nil)
	require.NoError(t, err)
	assert.Nil(t, msg.Error)
}

func TestSendCommandAsync(t *testing.T) {
	t.Parallel()

	b := newTestBroker(func(msg *wire.Message, write func(*wire.Message)) {
		write(&wire.Message{ID: msg.ID, SessionID: msg.SessionID, Result: []byte(`{}`)})
	})
	t.Cleanup(func() { _ = b.Close() })

	sess := &Session{id: "", b: b}
	future, err := sess.SendCommandAsync(context.Background(), "Page.enable", nil)
	require.NoError(t, err)

	msg, err := future.Wait(context.Background())
	require.NoError(t, err)
	assert.Nil(t, msg.Error)
}
