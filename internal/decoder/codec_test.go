package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryBuiltins(t *testing.T) {
	assert.Subset(t, Codecs(), []string{CodecRaw, CodecRawNV12})

	c, err := Open(CodecRawNV12)
	require.NoError(t, err)
	_, ok := c.(HardwareCodec)
	assert.True(t, ok)

	_, err = Open("h265-magic")
	assert.ErrorIs(t, err, ErrUnknownCodec)
}

func TestRegisterDuplicatePanics(t *testing.T) {
	assert.Panics(t, func() {
		Register(CodecRaw, func() (Codec, error) { return newRawCodec(FormatI420), nil })
	})
	assert.Panics(t, func() { Register("nil-factory", nil) })
}

func TestRawCodecAgain(t *testing.T) {
	c := newRawCodec(FormatI420)
	payload := EncodeRaw(NewI420Frame(2, 2))

	for i := 0; i < rawQueueDepth; i++ {
		require.NoError(t, c.SendPacket(payload))
	}
	assert.ErrorIs(t, c.SendPacket(payload), ErrAgain)

	_, err := c.ReceiveFrame()
	require.NoError(t, err)
	require.NoError(t, c.SendPacket(payload))

	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.SendPacket(payload), ErrClosed)
	_, err = c.ReceiveFrame()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRawCodecBadPayload(t *testing.T) {
	c := newRawCodec(FormatI420)
	assert.Error(t, c.SendPacket([]byte{1, 2}))
	assert.Error(t, c.SendPacket([]byte{0, 2, 0, 2, 0}))

	_, err := c.ReceiveFrame()
	assert.ErrorIs(t, err, ErrAgain)
}

func TestEncodeRawOddSize(t *testing.T) {
	f := NewI420Frame(3, 3)
	payload := EncodeRaw(f)
	assert.Len(t, payload, RawHeaderSize+9+2*4)

	c := newRawCodec(FormatI420)
	require.NoError(t, c.SendPacket(payload))
	out, err := c.ReceiveFrame()
	require.NoError(t, err)
	assert.Equal(t, 3, out.Width)
	assert.Equal(t, 2, out.Strides[1])
}

func TestImageRequiresI420(t *testing.T) {
	_, err := NewNV12Frame(2, 2).Image()
	assert.Error(t, err)

	var empty *Frame
	_, err = empty.Image()
	assert.Error(t, err)
}
