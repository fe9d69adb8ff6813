package audio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zalo/remoteplay/internal/errs"
)

type fakeSink struct {
	written [][]int16
	closed  bool
	err     error
}

func (s *fakeSink) Write(pcm []int16) error {
	if s.err != nil {
		return s.err
	}
	s.written = append(s.written, pcm)
	return nil
}

func (s *fakeSink) Close() error {
	s.closed = true
	return nil
}

type fakeDevice struct {
	sinks  []*fakeSink
	reject map[uint32]bool
}

func (d *fakeDevice) Open(channels, rate uint32) (Sink, error) {
	if d.reject[rate] {
		return nil, errors.New("format not supported")
	}
	s := &fakeSink{}
	d.sinks = append(d.sinks, s)
	return s, nil
}

func TestBridgeDropsBeforeNegotiation(t *testing.T) {
	dev := &fakeDevice{}
	b := NewBridge(dev, zaptest.NewLogger(t), nil)

	b.PushSamples([]int16{1, 2})
	assert.Empty(t, dev.sinks)

	ch, rate := b.Format()
	assert.Zero(t, ch)
	assert.Zero(t, rate)
}

func TestBridgeRenegotiate(t *testing.T) {
	dev := &fakeDevice{}
	b := NewBridge(dev, zaptest.NewLogger(t), nil)

	require.NoError(t, b.Negotiate(2, 48000))
	b.PushSamples([]int16{1, 2})

	require.NoError(t, b.Negotiate(1, 44100))
	b.PushSamples([]int16{3})

	require.Len(t, dev.sinks, 2)
	assert.True(t, dev.sinks[0].closed, "old sink is closed before the new one opens")
	assert.Equal(t, [][]int16{{1, 2}}, dev.sinks[0].written)
	assert.Equal(t, [][]int16{{3}}, dev.sinks[1].written)

	ch, rate := b.Format()
	assert.Equal(t, uint32(1), ch)
	assert.Equal(t, uint32(44100), rate)

	require.NoError(t, b.Close())
	assert.True(t, dev.sinks[1].closed)
}

func TestBridgeUnsupportedDisables(t *testing.T) {
	dev := &fakeDevice{reject: map[uint32]bool{96000: true}}
	b := NewBridge(dev, zaptest.NewLogger(t), nil)

	require.NoError(t, b.Negotiate(2, 48000))

	err := b.Negotiate(2, 96000)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.Device))
	assert.True(t, dev.sinks[0].closed)

	b.PushSamples([]int16{1})
	assert.Empty(t, dev.sinks[0].written)

	err = b.Negotiate(2, 48000)
	assert.ErrorIs(t, err, ErrDisabled)
	assert.Len(t, dev.sinks, 1)
}

func TestBridgeZeroFormat(t *testing.T) {
	dev := &fakeDevice{}
	b := NewBridge(dev, zaptest.NewLogger(t), nil)

	err := b.Negotiate(0, 48000)
	assert.True(t, errs.IsKind(err, errs.Device))
	assert.Empty(t, dev.sinks)
}

func TestBridgeWriteErrorKeepsSink(t *testing.T) {
	dev := &fakeDevice{}
	b := NewBridge(dev, zaptest.NewLogger(t), nil)
	require.NoError(t, b.Negotiate(2, 48000))

	dev.sinks[0].err = errors.New("underrun")
	b.PushSamples([]int16{1, 2})

	dev.sinks[0].err = nil
	b.PushSamples([]int16{3, 4})
	assert.Equal(t, [][]int16{{3, 4}}, dev.sinks[0].written)
}

func TestBridgeNilDevice(t *testing.T) {
	b := NewBridge(nil, nil, nil)
	assert.ErrorIs(t, b.Negotiate(2, 48000), ErrDisabled)
	b.PushSamples([]int16{1})
}
