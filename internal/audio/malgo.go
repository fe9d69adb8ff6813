package audio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"go.uber.org/zap"
)

// DefaultBufferSize is the playback queue size in bytes
const DefaultBufferSize = 9600

// MalgoDevice plays audio through miniaudio
type MalgoDevice struct {
	// BufferSize bounds the queued PCM in bytes.
	BufferSize int
	Logger     *zap.Logger
}

// Open starts a playback device for the format.
func (d *MalgoDevice) Open(channels, rate uint32) (Sink, error) {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("malgo")

	size := d.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	samples := size / 2
	if floor := int(channels) * 256; samples < floor {
		samples = floor
	}
	ring := newPCMRing(samples)

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug(message)
	})
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = channels
	cfg.SampleRate = rate
	cfg.Alsa.NoMMap = 1

	sink := &malgoSink{ctx: ctx, ring: ring, logger: logger}

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, frameCount uint32) {
			ring.readInto(pOutput)
		},
		Stop: func() {
			logger.Debug("Playback device stopped")
		},
	}

	dev, err := malgo.InitDevice(ctx.Context, cfg, callbacks)
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("init playback device: %w", err)
	}

	if err := dev.Start(); err != nil {
		dev.Uninit()
		ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("start playback device: %w", err)
	}
	sink.dev = dev

	logger.Info("Playback device started",
		zap.Uint32("channels", channels),
		zap.Uint32("rate", rate),
		zap.Int("buffer_samples", samples))
	return sink, nil
}

type malgoSink struct {
	dev    *malgo.Device
	ctx    *malgo.AllocatedContext
	ring   *pcmRing
	logger *zap.Logger
	once   sync.Once
}

func (s *malgoSink) Write(pcm []int16) error {
	if dropped := s.ring.write(pcm); dropped > 0 {
		s.logger.Debug("Audio buffer overrun", zap.Int("dropped", dropped))
	}
	return nil
}

func (s *malgoSink) Close() error {
	s.once.Do(func() {
		if s.dev != nil {
			_ = s.dev.Stop()
			s.dev.Uninit()
		}
		if s.ctx != nil {
			_ = s.ctx.Uninit()
			s.ctx.Free()
		}
		s.ring.reset()
	})
	return nil
}
