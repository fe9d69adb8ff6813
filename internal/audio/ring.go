package audio

import "sync"

// pcmRing is a bounded sample queue. Writing into a full ring drops the
// oldest samples so playback latency stays bounded.
type pcmRing struct {
	mu    sync.Mutex
	buf   []int16
	start int
	len   int
}

func newPCMRing(capacity int) *pcmRing {
	return &pcmRing{buf: make([]int16, capacity)}
}

// write queues pcm and returns the number of samples dropped.
func (r *pcmRing) write(pcm []int16) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	capacity := len(r.buf)
	dropped := 0
	if len(pcm) > capacity {
		dropped += len(pcm) - capacity
		pcm = pcm[len(pcm)-capacity:]
	}
	if over := r.len + len(pcm) - capacity; over > 0 {
		r.start = (r.start + over) % capacity
		r.len -= over
		dropped += over
	}

	end := (r.start + r.len) % capacity
	n := copy(r.buf[end:], pcm)
	copy(r.buf, pcm[n:])
	r.len += len(pcm)
	return dropped
}

// readInto fills out with queued samples as little-endian bytes and pads
// the rest with silence. It returns the number of samples taken.
func (r *pcmRing) readInto(out []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := len(out) / 2
	n := want
	if n > r.len {
		n = r.len
	}

	capacity := len(r.buf)
	for i := 0; i < n; i++ {
		v := r.buf[(r.start+i)%capacity]
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	for i := 2 * n; i < len(out); i++ {
		out[i] = 0
	}

	r.start = (r.start + n) % capacity
	r.len -= n
	return n
}

func (r *pcmRing) buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.len
}

func (r *pcmRing) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.start, r.len = 0, 0
}
