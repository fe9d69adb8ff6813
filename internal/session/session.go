// Package session drives one remote play connection: its lifecycle, the
// routing of inbound media and the merging of local controller input.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zalo/remoteplay/internal/event"
	"github.com/zalo/remoteplay/internal/feedback"
	"github.com/zalo/remoteplay/internal/metrics"
)

// ErrInvalidState is returned by operations not allowed in the current state
var ErrInvalidState = errors.New("invalid session state")

// eventQueueSize bounds events waiting for the dispatcher
const eventQueueSize = 256

// Transport is the network side of a session
type Transport interface {
	// Start connects and runs the handshake. Afterwards events are posted to
	// sink until exactly one event.Quit.
	Start(ctx context.Context, sink event.Sink) error
	Stop() error
	RequestSleep() error
	// Join blocks until the transport's goroutines have exited.
	Join() error
	Close() error
	SetControllerState(state feedback.ControllerState) error
	SetLoginPIN(pin []byte) error
}

// VideoSink decodes compressed frames. PushFrame reports whether the frame
// was accepted.
type VideoSink interface {
	PushFrame(data []byte) bool
	Close() error
}

// AudioSink plays PCM and follows format changes
type AudioSink interface {
	Negotiate(channels, rate uint32) error
	PushSamples(pcm []int16)
	Close() error
}

// Handlers are the host notifications. They run on the dispatcher
// goroutine and must not call Close.
type Handlers struct {
	FramesAvailable   func()
	Quit              func(reason event.QuitReason, text string)
	LoginPINRequested func(incorrect bool)
	// VideoSample sees every compressed frame before decoding.
	VideoSample func(data []byte)
}

// Deps are the components a session drives
type Deps struct {
	Transport Transport
	Video     VideoSink
	Audio     AudioSink
	Handlers  Handlers
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

type envelope struct {
	ev   event.Event
	done chan struct{}
}

// Session is one connection to a console
type Session struct {
	ID        string
	CreatedAt time.Time

	info      ConnectInfo
	transport Transport
	video     VideoSink
	audio     AudioSink
	handlers  Handlers
	logger    *zap.Logger
	metrics   *metrics.Metrics

	mu        sync.Mutex
	state     State
	connected bool

	// inputMu makes merging and sending one step
	inputMu  sync.Mutex
	merger   *inputMerger
	keyboard *keyboardState
	touch    *touchTracker

	queue        chan envelope
	closing      chan struct{}
	dispatchDone chan struct{}
	closeOnce    sync.Once
	releaseOnce  sync.Once
}

// New creates a session for info. Nothing touches the network until Start.
func New(info ConnectInfo, deps Deps) (*Session, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}
	if deps.Transport == nil {
		return nil, fmt.Errorf("session needs a transport")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Session{
		ID:           uuid.New().String(),
		CreatedAt:    time.Now(),
		info:         info,
		transport:    deps.Transport,
		video:        deps.Video,
		audio:        deps.Audio,
		handlers:     deps.Handlers,
		metrics:      deps.Metrics,
		state:        StateConstructed,
		merger:       newInputMerger(),
		keyboard:     newKeyboardState(info.KeyMap),
		touch:        newTouchTracker(),
		queue:        make(chan envelope, eventQueueSize),
		closing:      make(chan struct{}),
		dispatchDone: make(chan struct{}),
	}
	s.logger = logger.Named("session").With(zap.String("session", s.ID), zap.String("host", info.Host))
	s.recordState(StateConstructed)

	go s.dispatch()
	return s, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected reports whether the handshake completed and no quit arrived yet.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Info returns the connect info the session was created with.
func (s *Session) Info() ConnectInfo {
	return s.info
}

func (s *Session) setState(state State) {
	s.logger.Debug("Session state", zap.Stringer("from", s.state), zap.Stringer("to", state))
	s.state = state
	s.recordState(state)
}

func (s *Session) recordState(state State) {
	if s.metrics == nil {
		return
	}
	s.metrics.SetSessionState(state.String(), stateNames)
}

// Start runs the handshake. On failure the session is Failed, its decoder
// and audio are released and a new session is needed to retry.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateConstructed {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: start in %s", ErrInvalidState, state)
	}
	s.setState(StateHandshaking)
	s.mu.Unlock()

	s.logger.Info("Starting session",
		zap.Uint16("width", s.info.Video.Width),
		zap.Uint16("height", s.info.Video.Height),
		zap.Uint16("fps", s.info.Video.MaxFPS))

	if err := s.transport.Start(ctx, s); err != nil {
		s.mu.Lock()
		s.setState(StateFailed)
		s.mu.Unlock()

		s.logger.Error("Session failed to start", zap.Error(err))
		s.release()
		return err
	}

	s.mu.Lock()
	if s.state == StateHandshaking {
		s.setState(StateStreaming)
		s.connected = true
	}
	s.mu.Unlock()
	return nil
}

// Stop ends the session gracefully. Safe to call repeatedly.
func (s *Session) Stop() error {
	return s.stop(false)
}

// RequestSleep asks the console to enter rest mode and stops the session.
func (s *Session) RequestSleep() error {
	return s.stop(true)
}

func (s *Session) stop(sleep bool) error {
	s.mu.Lock()
	if s.state == StateStreaming {
		s.setState(StateStopping)
	}
	s.mu.Unlock()

	if sleep {
		s.logger.Info("Requesting console sleep")
		return s.transport.RequestSleep()
	}
	return s.transport.Stop()
}

// SetLoginPIN answers a login PIN request. It may be called again after an
// incorrect attempt.
func (s *Session) SetLoginPIN(pin string) error {
	return s.transport.SetLoginPIN([]byte(pin))
}

// Post queues an inbound event for the dispatcher. AudioFormat events block
// until the audio output has been renegotiated.
func (s *Session) Post(ev event.Event) {
	env := envelope{ev: ev}
	if _, ok := ev.(event.AudioFormat); ok {
		env.done = make(chan struct{})
	}

	select {
	case s.queue <- env:
	case <-s.closing:
		return
	}

	if env.done == nil {
		return
	}
	select {
	case <-env.done:
	case <-s.closing:
	}
}

func (s *Session) dispatch() {
	defer close(s.dispatchDone)

	for {
		select {
		case env := <-s.queue:
			s.deliver(env)
		case <-s.closing:
			s.drain()
			return
		}
	}
}

// drain handles what is still queued once closing fires. The transport has
// joined by then, so nothing new arrives.
func (s *Session) drain() {
	for {
		select {
		case env := <-s.queue:
			s.deliver(env)
		default:
			return
		}
	}
}

func (s *Session) deliver(env envelope) {
	s.handle(env.ev)
	if env.done != nil {
		close(env.done)
	}
}

func (s *Session) handle(ev event.Event) {
	switch ev := ev.(type) {
	case event.AudioFormat:
		if s.audio == nil {
			return
		}
		if err := s.audio.Negotiate(ev.Channels, ev.Rate); err != nil {
			s.logger.Warn("Audio negotiation failed", zap.Error(err))
		}

	case event.AudioSamples:
		if s.audio != nil {
			s.audio.PushSamples(ev.PCM)
		}

	case event.VideoSample:
		if s.handlers.VideoSample != nil {
			s.handlers.VideoSample(ev.Data)
		}
		if s.video != nil && s.video.PushFrame(ev.Data) && s.handlers.FramesAvailable != nil {
			s.handlers.FramesAvailable()
		}

	case event.LoginPINRequest:
		s.logger.Info("Login PIN requested", zap.Bool("incorrect", ev.Incorrect))
		if s.handlers.LoginPINRequested != nil {
			s.handlers.LoginPINRequested(ev.Incorrect)
		}

	case event.Quit:
		s.mu.Lock()
		if s.state == StateHandshaking || s.state == StateStreaming {
			s.setState(StateStopping)
		}
		s.connected = false
		s.mu.Unlock()

		if ev.Reason.IsError() {
			s.logger.Warn("Session quit", zap.Stringer("reason", ev.Reason), zap.String("text", ev.Text))
		} else {
			s.logger.Info("Session quit", zap.Stringer("reason", ev.Reason))
		}
		if s.metrics != nil {
			s.metrics.RecordQuit(ev.Reason.String())
		}
		if s.handlers.Quit != nil {
			s.handlers.Quit(ev.Reason, ev.Text)
		}

	default:
		s.logger.Debug("Ignoring event", zap.String("type", fmt.Sprintf("%T", ev)))
	}
}

// Close stops the session, waits for the network side to finish and
// releases every component. Close blocks as long as the transport does.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.Stop()
		if err := s.transport.Join(); err != nil {
			s.logger.Warn("Failed to join transport", zap.Error(err))
		}

		close(s.closing)
		<-s.dispatchDone

		s.release()
		if err := s.transport.Close(); err != nil {
			s.logger.Warn("Failed to close transport", zap.Error(err))
		}

		s.mu.Lock()
		s.info.zero()
		s.connected = false
		if s.state != StateFailed {
			s.setState(StateTerminated)
		}
		s.mu.Unlock()

		s.logger.Info("Session closed")
	})
	return nil
}

// release closes the decoder and the audio output.
func (s *Session) release() {
	s.releaseOnce.Do(func() {
		if s.video != nil {
			if err := s.video.Close(); err != nil {
				s.logger.Warn("Failed to close decoder", zap.Error(err))
			}
		}
		if s.audio != nil {
			if err := s.audio.Close(); err != nil {
				s.logger.Warn("Failed to close audio", zap.Error(err))
			}
		}
	})
}

// HandleKey applies a key press or release through the key map. Unbound
// keys are ignored.
func (s *Session) HandleKey(key string, down bool) {
	s.inputMu.Lock()
	defer s.inputMu.Unlock()

	if !s.keyboard.handle(key, down) {
		return
	}
	s.merger.setState(sourceKeyboard, s.keyboard.state())
	s.sendInput()
}

// HandleMouseButton applies a mouse button bound as "mouse_<button>".
func (s *Session) HandleMouseButton(button string, down bool) {
	s.HandleKey(MouseKey(button), down)
}

// SetGamepadState replaces the gamepad's contribution to the controller state.
func (s *Session) SetGamepadState(state feedback.ControllerState) {
	s.inputMu.Lock()
	defer s.inputMu.Unlock()

	s.merger.setState(sourceGamepad, state)
	s.sendInput()
}

// HandleTouch applies a touchpad contact of pointer at 12-bit coordinates.
func (s *Session) HandleTouch(pointer int, x, y uint16, down bool) {
	s.inputMu.Lock()
	defer s.inputMu.Unlock()

	slot := s.touch.handle(pointer, x, y, down)
	if slot < 0 {
		return
	}
	s.merger.setTouch(sourceTouch, slot, s.touch.touches[slot])
	s.sendInput()
}

// ControllerState returns the merged state last handed to the transport.
func (s *Session) ControllerState() feedback.ControllerState {
	s.inputMu.Lock()
	defer s.inputMu.Unlock()
	return s.merger.merged()
}

// sendInput sends the merged state. Called with inputMu held.
func (s *Session) sendInput() {
	if err := s.transport.SetControllerState(s.merger.merged()); err != nil {
		s.logger.Debug("Controller state not sent", zap.Error(err))
	}
}
