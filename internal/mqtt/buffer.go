package mqtt

import "github.com/rs/zerolog/log"

// bufferedMsg is a publish held back while the broker is unreachable.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer keeps the most recent publishes in FIFO order, overwriting the
// oldest once full. Callers synchronize access.
type ringBuffer struct {
	buf     []bufferedMsg
	start   int // oldest entry
	count   int
	dropped int // overwritten since the last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{buf: make([]bufferedMsg, capacity)}
}

func (r *ringBuffer) push(msg bufferedMsg) {
	capacity := len(r.buf)
	if r.count < capacity {
		r.buf[(r.start+r.count)%capacity] = msg
		r.count++
		return
	}
	if r.dropped == 0 {
		log.Warn().Int("capacity", capacity).Msg("mqtt offline buffer full, dropping oldest")
	}
	r.dropped++
	r.buf[r.start] = msg
	r.start = (r.start + 1) % capacity
}

// drainAll returns the buffered publishes oldest first and empties the buffer.
func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		return nil
	}
	out := make([]bufferedMsg, r.count)
	for i := range out {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
		r.buf[(r.start+i)%len(r.buf)] = bufferedMsg{}
	}
	if r.dropped > 0 {
		log.Info().Int("dropped", r.dropped).Int("replayed", r.count).Msg("mqtt offline buffer drained")
	}
	r.start, r.count, r.dropped = 0, 0, 0
	return out
}

func (r *ringBuffer) len() int {
	return r.count
}
