package feedback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingWriter struct {
	mu        sync.Mutex
	states    [][StateSize]byte
	stateSeqs []uint16
	history   [][]byte
	stateAt   []time.Time
}

func (w *recordingWriter) WriteState(seq uint16, record [StateSize]byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.states = append(w.states, record)
	w.stateSeqs = append(w.stateSeqs, seq)
	w.stateAt = append(w.stateAt, time.Now())
	return nil
}

func (w *recordingWriter) WriteHistory(seq uint16, events []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.history = append(w.history, append([]byte(nil), events...))
	return nil
}

func (w *recordingWriter) stateCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.states)
}

func (w *recordingWriter) lastHistory() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.history) == 0 {
		return nil
	}
	return w.history[len(w.history)-1]
}

func runSender(t *testing.T, s *Sender) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestSenderButtonEdges(t *testing.T) {
	w := &recordingWriter{}
	s := NewSender(w, zaptest.NewLogger(t), WithInterval(time.Millisecond, time.Hour))
	runSender(t, s)

	state := NewControllerState()
	state.Buttons = ButtonCross
	s.SetState(state)

	require.Eventually(t, func() bool {
		return len(w.lastHistory()) == 2
	}, time.Second, time.Millisecond)
	assert.Equal(t, []byte{0x80, 0x88}, w.lastHistory())

	state.Buttons = 0
	state.L2 = 0x40
	s.SetState(state)

	require.Eventually(t, func() bool {
		return len(w.lastHistory()) == 6
	}, time.Second, time.Millisecond)

	events, err := ParseHistory(w.lastHistory())
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, ButtonCross, events[0].Button)
	assert.Equal(t, ButtonCross, events[1].Button)
	assert.Equal(t, ButtonL2, events[2].Button)
}

func TestSenderTouchEdges(t *testing.T) {
	w := &recordingWriter{}
	s := NewSender(w, zaptest.NewLogger(t), WithInterval(time.Millisecond, time.Hour))
	runSender(t, s)

	state := NewControllerState()
	state.Touches[0] = Touch{ID: 5, X: 4095, Y: 0}
	s.SetState(state)

	require.Eventually(t, func() bool {
		return len(w.lastHistory()) == 5
	}, time.Second, time.Millisecond)
	assert.Equal(t, []byte{0xd0, 0x05, 0xff, 0xf0, 0x00}, w.lastHistory())

	// moving an existing contact produces no event
	state.Touches[0].X = 100
	s.SetState(state)

	state.Touches[0].ID = TouchNone
	s.SetState(state)

	require.Eventually(t, func() bool {
		return len(w.lastHistory()) == 10
	}, time.Second, time.Millisecond)
	assert.Equal(t, []byte{0xc0, 0x05, 0x06, 0x40, 0x00}, w.lastHistory()[5:])
}

func TestSenderRateLimit(t *testing.T) {
	const interval = 50 * time.Millisecond

	w := &recordingWriter{}
	s := NewSender(w, zaptest.NewLogger(t), WithInterval(interval, time.Hour))
	runSender(t, s)

	state := NewControllerState()
	state.LeftX = 1
	s.SetState(state)
	require.Eventually(t, func() bool { return w.stateCount() == 1 }, time.Second, time.Millisecond)

	state.LeftX = 2
	s.SetState(state)
	state.LeftX = 3
	s.SetState(state)

	require.Eventually(t, func() bool { return w.stateCount() == 2 }, time.Second, time.Millisecond)

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.GreaterOrEqual(t, w.stateAt[1].Sub(w.stateAt[0]), interval-5*time.Millisecond)
	assert.Equal(t, []byte{0x00, 0x03}, w.states[1][0x11:0x13], "coalesced send carries the latest state")
	assert.Equal(t, []uint16{0, 1}, w.stateSeqs)
}

func TestSenderHeartbeat(t *testing.T) {
	w := &recordingWriter{}
	s := NewSender(w, zaptest.NewLogger(t), WithInterval(time.Millisecond, 5*time.Millisecond))
	runSender(t, s)

	require.Eventually(t, func() bool { return w.stateCount() >= 3 }, time.Second, time.Millisecond)
	assert.Nil(t, w.lastHistory(), "heartbeat without changes sends no history")
}

func TestSenderUnchangedStateIgnored(t *testing.T) {
	w := &recordingWriter{}
	s := NewSender(w, zaptest.NewLogger(t), WithInterval(time.Millisecond, time.Hour))

	s.SetState(NewControllerState())
	assert.Len(t, s.wake, 0)
	assert.Equal(t, 0, s.history.Len())
}
