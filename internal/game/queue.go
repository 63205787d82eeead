package game

import "sync"

// inputRing is the bounded input queue between connection goroutines and
// the match loop. Overflow drops the oldest input so a flooding client
// stalls itself, not the tick.
type inputRing struct {
	mu   sync.Mutex
	buf  []Input
	head int
	n    int
}

func newInputRing(capacity int) *inputRing {
	if capacity < 1 {
		capacity = 1
	}
	return &inputRing{buf: make([]Input, capacity)}
}

// Push enqueues an input, reporting whether the oldest entry was dropped
// to make room.
func (r *inputRing) Push(in Input) (dropped bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.n == len(r.buf) {
		r.head = (r.head + 1) % len(r.buf)
		r.n--
		dropped = true
	}
	r.buf[(r.head+r.n)%len(r.buf)] = in
	r.n++
	return dropped
}

// Drain removes every queued input in FIFO order.
func (r *inputRing) Drain(dst []Input) []Input {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.n > 0 {
		dst = append(dst, r.buf[r.head])
		r.buf[r.head] = Input{}
		r.head = (r.head + 1) % len(r.buf)
		r.n--
	}
	return dst
}

// Len returns the number of queued inputs.
func (r *inputRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}
