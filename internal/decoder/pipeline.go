// Package decoder turns compressed video frames into displayable pictures.
//
// A Pipeline wraps one codec backend. The network goroutine pushes frames,
// the display goroutine pulls the newest decoded picture.
package decoder

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zalo/remoteplay/internal/errs"
	"github.com/zalo/remoteplay/internal/metrics"
)

// Engine selects where decoding happens
type Engine uint8

const (
	EngineSoftware Engine = iota
	EngineHardware
)

func (e Engine) String() string {
	if e == EngineHardware {
		return "hardware"
	}
	return "software"
}

// ParseEngine maps a configured engine name to an Engine. An empty name or
// "none" selects software decoding.
func ParseEngine(name string) Engine {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none", "software":
		return EngineSoftware
	default:
		return EngineHardware
	}
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithMetrics records decode counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithFramesAvailable sets the callback run after a frame was accepted.
// It is called without any pipeline lock held.
func WithFramesAvailable(fn func()) Option {
	return func(p *Pipeline) {
		p.framesAvailable = fn
	}
}

// Pipeline serializes access to a codec between pushing and pulling
type Pipeline struct {
	engine  Engine
	logger  *zap.Logger
	metrics *metrics.Metrics

	framesAvailable func()

	mu       sync.Mutex
	codec    Codec
	retrieve func(*Frame) (*Frame, error)
	conv     *converter
	closed   bool
}

// New creates a pipeline around codec. The hardware engine needs a
// HardwareCodec.
func New(engine Engine, codec Codec, opts ...Option) (*Pipeline, error) {
	if codec == nil {
		return nil, errs.E(errs.Construction, "decoder.New", errors.New("nil codec"))
	}

	p := &Pipeline{
		engine: engine,
		logger: zap.NewNop(),
		codec:  codec,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("decoder")

	switch engine {
	case EngineSoftware:
		p.retrieve = func(f *Frame) (*Frame, error) { return f, nil }
	case EngineHardware:
		hw, ok := codec.(HardwareCodec)
		if !ok {
			return nil, errs.E(errs.Construction, "decoder.New",
				fmt.Errorf("codec %T cannot transfer frames for hardware decoding", codec))
		}
		p.conv = &converter{logger: p.logger}
		p.retrieve = func(f *Frame) (*Frame, error) {
			sw, err := hw.TransferFrame(f)
			if err != nil {
				return nil, fmt.Errorf("transfer frame: %w", err)
			}
			return p.conv.convert(sw)
		}
	default:
		return nil, errs.E(errs.Construction, "decoder.New", fmt.Errorf("unknown engine %d", engine))
	}

	p.logger.Info("Decoder ready", zap.Stringer("engine", engine), zap.String("codec", fmt.Sprintf("%T", codec)))
	return p, nil
}

// Engine returns the engine fixed at construction.
func (p *Pipeline) Engine() Engine {
	return p.engine
}

// PushFrame submits one compressed frame and reports whether the codec took
// it. When the codec is full one decoded frame is discarded to make room.
// Failures are logged and the frame is lost.
func (p *Pipeline) PushFrame(data []byte) bool {
	if !p.push(data) {
		return false
	}
	if p.framesAvailable != nil {
		p.framesAvailable()
	}
	return true
}

func (p *Pipeline) push(data []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}

	err := p.codec.SendPacket(data)
	if errors.Is(err, ErrAgain) {
		if _, rerr := p.codec.ReceiveFrame(); rerr != nil {
			p.logger.Debug("Failed to drain decoder", zap.Error(rerr))
		} else {
			p.metrics.RecordFramesDropped(1)
		}
		err = p.codec.SendPacket(data)
	}
	if err != nil {
		p.logger.Warn("Failed to push frame to decoder", zap.Int("size", len(data)), zap.Error(err))
		p.metrics.RecordDecodeError()
		return false
	}

	p.metrics.RecordFrameSubmitted()
	return true
}

// PullFrame drains the codec and returns the newest frame as I420, or nil
// when nothing new was decoded. Older frames from the same drain are dropped.
func (p *Pipeline) PullFrame() *Frame {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	start := time.Now()
	var (
		latest   *Frame
		received int
	)
	for {
		f, err := p.codec.ReceiveFrame()
		if err != nil {
			if !errors.Is(err, ErrAgain) {
				p.logger.Warn("Failed to receive frame", zap.Error(err))
			}
			break
		}
		received++

		latest, err = p.retrieve(f)
		if err != nil {
			p.logger.Warn("Failed to retrieve frame", zap.Error(err))
			latest = nil
		}
	}

	if latest.Empty() {
		latest = nil
	}

	dropped := received
	if latest != nil {
		dropped--
	}
	p.metrics.RecordPull(time.Since(start), latest != nil, dropped)
	return latest
}

// Close releases the codec and converter. Further pushes and pulls are no-ops.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.conv != nil {
		p.conv.close()
	}
	return p.codec.Close()
}
