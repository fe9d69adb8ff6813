package feedback

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zalo/remoteplay/internal/metrics"
)

// Sender cadence
const (
	DefaultMinInterval = 8 * time.Millisecond
	DefaultHeartbeat   = 200 * time.Millisecond
)

// Writer delivers encoded feedback records to the console
type Writer interface {
	WriteState(seq uint16, record [StateSize]byte) error
	WriteHistory(seq uint16, events []byte) error
}

// SenderOption configures a Sender
type SenderOption func(*Sender)

// WithInterval overrides the minimum send interval and the heartbeat.
func WithInterval(minInterval, heartbeat time.Duration) SenderOption {
	return func(s *Sender) {
		s.minInterval = minInterval
		s.heartbeat = heartbeat
	}
}

// WithMetrics counts sent records.
func WithMetrics(m *metrics.Metrics) SenderOption {
	return func(s *Sender) {
		s.metrics = m
	}
}

// Sender turns controller state changes into state and history records.
// State records go out on every change, rate limited, and as a heartbeat.
type Sender struct {
	w       Writer
	logger  *zap.Logger
	metrics *metrics.Metrics

	minInterval time.Duration
	heartbeat   time.Duration

	mu           sync.Mutex
	state        ControllerState
	history      *HistoryBuffer
	historyDirty bool
	stateSeq     uint16
	historySeq   uint16

	wake chan struct{}
}

// NewSender creates a sender writing to w.
func NewSender(w Writer, logger *zap.Logger, opts ...SenderOption) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sender{
		w:           w,
		logger:      logger.Named("feedback"),
		minInterval: DefaultMinInterval,
		heartbeat:   DefaultHeartbeat,
		state:       NewControllerState(),
		history:     NewHistoryBuffer(HistoryCapacity),
		wake:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetState records the new state and schedules a send.
func (s *Sender) SetState(state ControllerState) {
	s.mu.Lock()
	changed := state != s.state
	if changed {
		s.pushChanges(s.state, state)
		s.state = state
	}
	s.mu.Unlock()

	if !changed {
		return
	}

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run sends records until ctx is done.
func (s *Sender) Run(ctx context.Context) {
	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	var (
		last   time.Time
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	send := func() {
		s.flush()
		last = time.Now()
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-s.wake:
			wait := s.minInterval - time.Since(last)
			if wait <= 0 {
				send()
				continue
			}
			if timerC == nil {
				timer = time.NewTimer(wait)
				timerC = timer.C
			}

		case <-timerC:
			timerC = nil
			send()

		case <-heartbeat.C:
			send()
		}
	}
}

func (s *Sender) flush() {
	s.mu.Lock()
	record := FormatState(s.state)
	stateSeq := s.stateSeq
	s.stateSeq++

	var (
		history    []byte
		historySeq uint16
	)
	if s.historyDirty {
		buf := make([]byte, HistoryFormatSize)
		n, err := s.history.Format(buf)
		if err != nil {
			s.logger.Warn("Failed to format history", zap.Error(err))
		} else {
			history = buf[:n]
			historySeq = s.historySeq
			s.historySeq++
		}
		s.historyDirty = false
	}
	s.mu.Unlock()

	if err := s.w.WriteState(stateSeq, record); err != nil {
		s.logger.Debug("Failed to send feedback state", zap.Error(err))
	} else {
		s.metrics.RecordFeedbackState()
	}

	if history == nil {
		return
	}
	if err := s.w.WriteHistory(historySeq, history); err != nil {
		s.logger.Debug("Failed to send feedback history", zap.Error(err))
	} else {
		s.metrics.RecordFeedbackHistory()
	}
}

// pushChanges queues history events for every edge between prev and next.
// Called with mu held.
func (s *Sender) pushChanges(prev, next ControllerState) {
	const triggers = ButtonL2 | ButtonR2

	changed := (prev.Buttons ^ next.Buttons) &^ triggers
	for i := 0; i < ButtonCount; i++ {
		b := Button(1) << i
		if changed&b == 0 {
			continue
		}
		s.pushButton(b, next.Buttons&b != 0)
	}

	if (prev.L2 == 0) != (next.L2 == 0) {
		s.pushButton(ButtonL2, next.L2 != 0)
	}
	if (prev.R2 == 0) != (next.R2 == 0) {
		s.pushButton(ButtonR2, next.R2 != 0)
	}

	for i := range next.Touches {
		p, n := prev.Touches[i], next.Touches[i]
		if p.ID == n.ID {
			continue
		}
		if p.Active() {
			s.pushTouch(false, p)
		}
		if n.Active() {
			s.pushTouch(true, n)
		}
	}
}

func (s *Sender) pushButton(b Button, pressed bool) {
	var ev HistoryEvent
	if err := ev.SetButton(b, pressed); err != nil {
		s.logger.Debug("Skipping button event", zap.Stringer("button", b), zap.Error(err))
		return
	}
	s.history.Push(ev)
	s.historyDirty = true
}

func (s *Sender) pushTouch(down bool, t Touch) {
	var ev HistoryEvent
	ev.SetTouch(down, uint8(t.ID), t.X, t.Y)
	s.history.Push(ev)
	s.historyDirty = true
}
