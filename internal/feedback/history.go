package feedback

import (
	"sync"

	"github.com/zalo/remoteplay/internal/errs"
)

// HistoryCapacity is the number of events the console replays
const HistoryCapacity = 0x10

// HistoryFormatSize is large enough for a full history buffer
const HistoryFormatSize = HistoryCapacity * HistoryEventMaxSize

// HistoryBuffer keeps the most recent history events in a fixed ring.
// Pushing moves the start index backwards so the physical order runs from
// newest to oldest.
type HistoryBuffer struct {
	mu sync.Mutex

	events []HistoryEvent
	begin  int
	len    int
}

// NewHistoryBuffer creates a buffer holding up to capacity events.
func NewHistoryBuffer(capacity int) *HistoryBuffer {
	if capacity <= 0 {
		capacity = HistoryCapacity
	}
	return &HistoryBuffer{
		events: make([]HistoryEvent, capacity),
	}
}

// Push adds an event, evicting the oldest one when full.
func (h *HistoryBuffer) Push(ev HistoryEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	capacity := len(h.events)
	h.begin = (h.begin + capacity - 1) % capacity
	h.events[h.begin] = ev
	if h.len < capacity {
		h.len++
	}
}

// Len returns the number of queued events.
func (h *HistoryBuffer) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.len
}

// Cap returns the ring capacity.
func (h *HistoryBuffer) Cap() int {
	return len(h.events)
}

// Size returns the number of bytes Format would write.
func (h *HistoryBuffer) Size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size()
}

func (h *HistoryBuffer) size() int {
	n := 0
	for i := 0; i < h.len; i++ {
		n += h.events[(h.begin+i)%len(h.events)].len
	}
	return n
}

// Format writes every queued event into dst, oldest first, and returns the
// number of bytes written. When dst is too small nothing is written.
func (h *HistoryBuffer) Format(dst []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if need := h.size(); need > len(dst) {
		return 0, errs.E(errs.BufferTooSmall, "format history", ErrBufferTooSmall)
	}

	capacity := len(h.events)
	n := 0
	for i := 0; i < h.len; i++ {
		ev := &h.events[(h.begin+h.len-1-i)%capacity]
		n += copy(dst[n:], ev.Bytes())
	}
	return n, nil
}
