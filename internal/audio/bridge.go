// Package audio plays the session's PCM stream on a local output device.
package audio

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/zalo/remoteplay/internal/errs"
	"github.com/zalo/remoteplay/internal/metrics"
)

// ErrDisabled is returned after a device rejected a format
var ErrDisabled = errors.New("audio disabled")

// Device opens output sinks for signed 16-bit interleaved PCM
type Device interface {
	Open(channels, rate uint32) (Sink, error)
}

// Sink plays PCM samples
type Sink interface {
	Write(pcm []int16) error
	Close() error
}

// Bridge routes PCM from the network to the current sink and reopens the
// sink whenever the stream format changes.
type Bridge struct {
	device  Device
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	sink     Sink
	channels uint32
	rate     uint32
	disabled bool
}

// NewBridge creates a bridge that opens sinks on device. A nil device keeps
// audio disabled.
func NewBridge(device Device, logger *zap.Logger, m *metrics.Metrics) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		device:   device,
		logger:   logger.Named("audio"),
		metrics:  m,
		disabled: device == nil,
	}
}

// Negotiate closes the current sink and opens one for the new format. When
// the device rejects it, audio stays off for the rest of the session.
func (b *Bridge) Negotiate(channels, rate uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closeSink()

	if b.disabled {
		return errs.E(errs.Device, "audio negotiate", ErrDisabled)
	}

	if channels == 0 || rate == 0 {
		return b.disable(fmt.Errorf("unsupported format: %d channels at %d Hz", channels, rate))
	}

	sink, err := b.device.Open(channels, rate)
	if err != nil {
		return b.disable(fmt.Errorf("open %d channels at %d Hz: %w", channels, rate, err))
	}

	b.sink = sink
	b.channels, b.rate = channels, rate
	b.metrics.RecordNegotiation(true)
	b.logger.Info("Audio format negotiated",
		zap.Uint32("channels", channels),
		zap.Uint32("rate", rate))
	return nil
}

func (b *Bridge) disable(err error) error {
	b.disabled = true
	b.metrics.RecordNegotiation(false)
	err = errs.E(errs.Device, "audio negotiate", err)
	b.logger.Error("Audio disabled", zap.Error(err))
	return err
}

// Format returns the negotiated format, zero when no sink is open.
func (b *Bridge) Format() (channels, rate uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sink == nil {
		return 0, 0
	}
	return b.channels, b.rate
}

// PushSamples plays pcm when a sink is open and drops it otherwise.
func (b *Bridge) PushSamples(pcm []int16) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sink == nil {
		b.metrics.RecordAudio(len(pcm), false)
		return
	}

	if err := b.sink.Write(pcm); err != nil {
		b.logger.Warn("Failed to write audio", zap.Int("samples", len(pcm)), zap.Error(err))
		b.metrics.RecordAudio(len(pcm), false)
		return
	}
	b.metrics.RecordAudio(len(pcm), true)
}

// Close releases the sink.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeSink()
	return nil
}

func (b *Bridge) closeSink() {
	if b.sink == nil {
		return
	}
	if err := b.sink.Close(); err != nil {
		b.logger.Warn("Failed to close audio sink", zap.Error(err))
	}
	b.sink = nil
}
