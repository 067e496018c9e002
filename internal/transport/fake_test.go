package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayjayt/devtools-protocol/wire"
)

func TestFakeEchoesResponse(t *testing.T) {
	t.Parallel()

	f := NewFake(func(msg *wire.Message, write func(*wire.Message)) {
		write(&wire.Message{ID: msg.ID, SessionID: msg.SessionID, Result: []byte(`{}`)})
	})

	raw, err := wire.Encode(&wire.Message{ID: 7, Method: "Target.getTargets"})
	require.NoError(t, err)
	require.NoError(t, f.WriteFrame(raw))

	select {
	case got := <-readOne(t, f):
		assert.Equal(t, int64(7), got.ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for response")
	}

	assert.Len(t, f.WrittenMessages(), 1)
}

func TestFakeWriteAfterCloseFails(t *testing.T) {
	t.Parallel()

	f := NewFake(nil)
	require.NoError(t, f.Close())

	raw, err := wire.Encode(&wire.Message{ID: 1, Method: "Page.enable"})
	require.NoError(t, err)
	require.ErrorIs(t, f.WriteFrame(raw), wire.ErrPipeClosed)
}

func readOne(t *testing.T, f *Fake) <-chan *wire.Message {
	t.Helper()
	out := make(chan *wire.Message, 1)
	go func() {
		raw, err := f.ReadFrame()
		if err != nil {
			return
		}
		msg, err := wire.Decode(raw)
		if err != nil {
			return
		}
		out <- msg
	}()
	return out
}
