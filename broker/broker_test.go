package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayjayt/devtools-protocol/internal/log"
	"github.com/ayjayt/devtools-protocol/internal/router"
	"github.com/ayjayt/devtools-protocol/internal/transport"
	"github.com/ayjayt/devtools-protocol/wire"
)

func echoHandler(result string) transport.Handler {
	return func(msg *wire.Message, write func(*wire.Message)) {
		write(&wire.Message{ID: msg.ID, SessionID: msg.SessionID, Result: []byte(result)})
	}
}

func TestSendAndAwait(t *testing.T) {
	t.Parallel()

	fake := transport.NewFake(echoHandler(`{"targetInfos":[{"targetId":"t1","type":"page"}]}`))
	b := New(fake, log.NopLogger())
	t.Cleanup(func() { _ = b.Close() })

	infos, err := b.GetTargets(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "t1", infos[0].TargetID)
	assert.Equal(t, "page", infos[0].Type)
}

func TestUniqueKeysPerSession(t *testing.T) {
	t.Parallel()

	fake := transport.NewFake(echoHandler(`{}`))
	b := New(fake, log.NopLogger())
	t.Cleanup(func() { _ = b.Close() })

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := b.SendCommand(ctx, "", "Page.enable", nil)
		require.NoError(t, err)
	}

	seen := map[int64]bool{}
	for _, msg := range fake.WrittenMessages() {
		assert.False(t, seen[msg.ID], "duplicate id %d", msg.ID)
		seen[msg.ID] = true
	}
}

func TestInvalidMethodTypeRejectedBeforeWrite(t *testing.T) {
	t.Parallel()

	fake := transport.NewFake(echoHandler(`{}`))
	b := New(fake, log.NopLogger())
	t.Cleanup(func() { _ = b.Close() })

	_, err := b.Send(context.Background(), "", "", nil)
	require.Error(t, err)
	var typeErr *MessageTypeError
	require.ErrorAs(t, err, &typeErr)
	assert.Empty(t, fake.WrittenMessages())
}

func TestUnknownMethodResolvesWithNegativeErrorCode(t *testing.T) {
	t.Parallel()

	fake := transport.NewFake(func(msg *wire.Message, write func(*wire.Message)) {
		write(&wire.Message{ID: msg.ID, SessionID: msg.SessionID, Error: &wire.Error{Code: -32601, Message: "unknown method"}})
	})
	b := New(fake, log.NopLogger())
	t.Cleanup(func() { _ = b.Close() })

	msg, err := b.SendCommand(context.Background(), "", "dkadklqwmd", struct{}{})
	require.NoError(t, err)
	require.NotNil(t, msg.Error)
	assert.Less(t, msg.Error.Code, int64(0))
}

func TestCloseResolvesPendingWithBrowserClosed(t *testing.T) {
	t.Parallel()

	// Handler never responds, so Send's future is still pending at Close.
	fake := transport.NewFake(func(*wire.Message, func(*wire.Message)) {})
	b := New(fake, log.NopLogger())

	future, err := b.Send(context.Background(), "", "Page.enable", nil)
	require.NoError(t, err)

	require.NoError(t, b.Close())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := future.Wait(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg.Error)
}

func TestFatalProtocolErrorClosesBrokerAndDrainsPending(t *testing.T) {
	t.Parallel()

	fake := transport.NewFake(func(*wire.Message, func(*wire.Message)) {})
	b := New(fake, log.NopLogger())

	future, err := b.Send(context.Background(), "", "Page.enable", nil)
	require.NoError(t, err)

	fake.Push(&wire.Message{Error: &wire.Error{Code: -1, Message: "fatal"}})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := future.Wait(ctx)
	require.NoError(t, err)
	require.NotNil(t, msg.Error)

	_, err = b.Send(context.Background(), "", "Page.enable", nil)
	require.ErrorIs(t, err, ErrBrowserClosed)
}

func TestCreateSessionAndCloseSession(t *testing.T) {
	t.Parallel()

	fake := transport.NewFake(func(msg *wire.Message, write func(*wire.Message)) {
		switch msg.Method {
		case methodTargetAttachToTarget:
			write(&wire.Message{ID: msg.ID, Result: []byte(`{"sessionId":"s1"}`)})
		case methodTargetDetachFromTarget:
			write(&wire.Message{ID: msg.ID, Result: []byte(`{}`)})
		}
	})
	b := New(fake, log.NopLogger())
	t.Cleanup(func() { _ = b.Close() })

	ctx := context.Background()
	sessionID, err := b.CreateSession(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "s1", sessionID)

	primary, err := b.PrimarySessionID("t1")
	require.NoError(t, err)
	assert.Equal(t, "s1", primary)

	require.NoError(t, b.CloseSession(ctx, sessionID))
	_, err = b.PrimarySessionID("t1")
	require.ErrorIs(t, err, ErrNoPrimarySession)
}

func TestSessionIsolation(t *testing.T) {
	t.Parallel()

	fake := transport.NewFake(func(msg *wire.Message, write func(*wire.Message)) {
		if msg.Method == methodTargetAttachToTarget {
			write(&wire.Message{ID: msg.ID, Result: []byte(`{"sessionId":"` + msg.SessionID + `a}"}`)})
		}
	})
	b := New(fake, log.NopLogger())
	t.Cleanup(func() { _ = b.Close() })

	b.mu.Lock()
	b.sessions["A"] = &sessionState{id: "A", router: router.New()}
	b.sessions["B"] = &sessionState{id: "B", router: router.New()}
	b.mu.Unlock()

	var gotA, gotB int
	require.NoError(t, b.Subscribe("A", "Page.*", func(*wire.Message) { gotA++ }, true))
	require.NoError(t, b.Subscribe("B", "Page.*", func(*wire.Message) { gotB++ }, true))

	b.dispatchEvent(&wire.Message{SessionID: "A", Method: "Page.loadEventFired"})

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, gotA)
	assert.Equal(t, 0, gotB)
}
