package decoder

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zalo/remoteplay/internal/errs"
)

func testFrame(width, height int, luma byte) *Frame {
	f := NewI420Frame(width, height)
	for i := range f.Planes[0] {
		f.Planes[0][i] = luma
	}
	for i := range f.Planes[1] {
		f.Planes[1][i] = 0x40
		f.Planes[2][i] = 0xc0
	}
	return f
}

func newRawPipeline(t *testing.T, engine Engine, name string, opts ...Option) *Pipeline {
	codec, err := Open(name)
	require.NoError(t, err)

	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	p, err := New(engine, codec, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestPipelinePullLatest(t *testing.T) {
	p := newRawPipeline(t, EngineSoftware, CodecRaw)

	p.PushFrame(EncodeRaw(testFrame(4, 2, 1)))
	p.PushFrame(EncodeRaw(testFrame(4, 2, 2)))
	p.PushFrame(EncodeRaw(testFrame(4, 2, 3)))

	f := p.PullFrame()
	require.NotNil(t, f)
	assert.Equal(t, FormatI420, f.Format)
	assert.Equal(t, byte(3), f.Planes[0][0])
	assert.Equal(t, uint64(2), f.PTS)

	assert.Nil(t, p.PullFrame(), "second pull without push returns nil")
}

func TestPipelinePushWhenFull(t *testing.T) {
	p := newRawPipeline(t, EngineSoftware, CodecRaw)

	for i := 0; i < rawQueueDepth+3; i++ {
		p.PushFrame(EncodeRaw(testFrame(2, 2, byte(i))))
	}

	f := p.PullFrame()
	require.NotNil(t, f)
	assert.Equal(t, byte(rawQueueDepth+2), f.Planes[0][0])
}

func TestPipelineFramesAvailableOutsideLock(t *testing.T) {
	var (
		p      *Pipeline
		pulled []*Frame
	)
	p = newRawPipeline(t, EngineSoftware, CodecRaw, WithFramesAvailable(func() {
		// pulling here would deadlock if the callback ran under the lock
		pulled = append(pulled, p.PullFrame())
	}))

	p.PushFrame(EncodeRaw(testFrame(2, 2, 9)))
	require.Len(t, pulled, 1)
	require.NotNil(t, pulled[0])
	assert.Equal(t, byte(9), pulled[0].Planes[0][0])
}

func TestPipelineRejectedFrameNoNotify(t *testing.T) {
	calls := 0
	p := newRawPipeline(t, EngineSoftware, CodecRaw, WithFramesAvailable(func() { calls++ }))

	assert.False(t, p.PushFrame([]byte{0x00, 0x02}))
	assert.False(t, p.PushFrame([]byte{0x00, 0x02, 0x00, 0x02, 0x01}))
	assert.Equal(t, 0, calls)
	assert.Nil(t, p.PullFrame())
}

func TestPipelineHardwareConverts(t *testing.T) {
	p := newRawPipeline(t, EngineHardware, CodecRawNV12)
	assert.Equal(t, EngineHardware, p.Engine())

	src := NewNV12Frame(4, 2)
	for i := range src.Planes[0] {
		src.Planes[0][i] = byte(i)
	}
	copy(src.Planes[1], []byte{10, 20, 11, 21})

	p.PushFrame(EncodeRaw(src))
	f := p.PullFrame()
	require.NotNil(t, f)
	assert.Equal(t, FormatI420, f.Format)
	assert.Equal(t, src.Planes[0], f.Planes[0])
	assert.Equal(t, []byte{10, 11}, f.Planes[1])
	assert.Equal(t, []byte{20, 21}, f.Planes[2])

	img, err := f.Image()
	require.NoError(t, err)
	assert.Equal(t, 4, img.Rect.Dx())
	assert.Equal(t, 2, img.Rect.Dy())
}

func TestPipelineZeroSizeFrameIsNil(t *testing.T) {
	p := newRawPipeline(t, EngineHardware, CodecRawNV12)

	p.PushFrame(EncodeRaw(NewNV12Frame(2, 2)))
	p.PushFrame(EncodeRaw(NewNV12Frame(0, 0)))
	assert.Nil(t, p.PullFrame(), "an empty newest frame is not replaced by an older one")
}

func TestPipelineHardwareNeedsTransfer(t *testing.T) {
	codec, err := Open(CodecRaw)
	require.NoError(t, err)

	_, err = New(EngineHardware, codec)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.Construction))

	_, err = New(EngineSoftware, nil)
	assert.True(t, errs.IsKind(err, errs.Construction))
}

func TestPipelineClose(t *testing.T) {
	p := newRawPipeline(t, EngineSoftware, CodecRaw)
	p.PushFrame(EncodeRaw(testFrame(2, 2, 1)))

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Nil(t, p.PullFrame())
	assert.False(t, p.PushFrame(EncodeRaw(testFrame(2, 2, 1))))
}

type stubCodec struct {
	sendErrs []error
	frames   []*Frame
	sent     int
	received int
}

func (c *stubCodec) SendPacket([]byte) error {
	c.sent++
	if len(c.sendErrs) == 0 {
		return nil
	}
	err := c.sendErrs[0]
	c.sendErrs = c.sendErrs[1:]
	return err
}

func (c *stubCodec) ReceiveFrame() (*Frame, error) {
	if len(c.frames) == 0 {
		return nil, ErrAgain
	}
	c.received++
	f := c.frames[0]
	c.frames = c.frames[1:]
	return f, nil
}

func (c *stubCodec) Close() error { return nil }

func TestPipelineRetryAfterAgain(t *testing.T) {
	codec := &stubCodec{
		sendErrs: []error{ErrAgain},
		frames:   []*Frame{testFrame(2, 2, 1)},
	}
	calls := 0
	p, err := New(EngineSoftware, codec, WithFramesAvailable(func() { calls++ }))
	require.NoError(t, err)

	assert.True(t, p.PushFrame([]byte{1}))
	assert.Equal(t, 2, codec.sent)
	assert.Equal(t, 1, codec.received, "one frame is drained before the retry")
	assert.Equal(t, 1, calls)
}

func TestPipelineSendFailureDropsFrame(t *testing.T) {
	codec := &stubCodec{sendErrs: []error{errors.New("corrupt")}}
	calls := 0
	p, err := New(EngineSoftware, codec, WithFramesAvailable(func() { calls++ }))
	require.NoError(t, err)

	assert.False(t, p.PushFrame([]byte{1}))
	assert.Equal(t, 1, codec.sent)
	assert.Equal(t, 0, calls)
}

func TestParseEngine(t *testing.T) {
	assert.Equal(t, EngineSoftware, ParseEngine(""))
	assert.Equal(t, EngineSoftware, ParseEngine("none"))
	assert.Equal(t, EngineHardware, ParseEngine("vaapi"))
}
