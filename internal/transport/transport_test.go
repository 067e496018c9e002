package transport

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayjayt/devtools-protocol/wire"
)

func TestPipeWriteReadRoundTrip(t *testing.T) {
	t.Parallel()

	ar, aw := io.Pipe()
	br, bw := io.Pipe()
	parent := NewPipe(aw, br)
	child := NewPipe(bw, ar)
	t.Cleanup(func() { _ = parent.Close(); _ = child.Close() })

	done := make(chan struct{})
	go func() {
		defer close(done)
		raw, err := child.ReadFrame()
		require.NoError(t, err)
		var msg wire.Message
		require.NoError(t, decodeInto(raw, &msg))
		assert.Equal(t, "Target.getTargets", msg.Method)
	}()

	raw, err := wire.Encode(&wire.Message{ID: 1, Method: "Target.getTargets"})
	require.NoError(t, err)
	require.NoError(t, parent.WriteFrame(raw))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestPipeReadFrameReturnsPipeClosedOnEOF(t *testing.T) {
	t.Parallel()

	r, w := io.Pipe()
	p := NewPipe(w, r)
	require.NoError(t, w.Close())

	_, err := p.ReadFrame()
	assert.ErrorIs(t, err, wire.ErrPipeClosed)
}

func TestPipeCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	r, w := io.Pipe()
	p := NewPipe(w, r)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
}

func decodeInto(raw []byte, msg *wire.Message) error {
	got, err := wire.Decode(raw)
	if err != nil {
		return err
	}
	*msg = *got
	return nil
}
