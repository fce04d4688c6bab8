package ctrd

import "sync"

const defaultLogBufferBytes = 256 * 1024

// captureSet holds one bounded log buffer per container. containerd does
// not persist task output, so stdout and stderr are captured into the
// same buffer in arrival order while the task runs.
type captureSet struct {
	mu   sync.Mutex
	size int
	bufs map[string]*ringBuffer
}

func newCaptureSet(size int) *captureSet {
	if size <= 0 {
		size = defaultLogBufferBytes
	}
	return &captureSet{size: size, bufs: make(map[string]*ringBuffer)}
}

func (c *captureSet) ensure(id string) *ringBuffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if buf, ok := c.bufs[id]; ok {
		return buf
	}
	buf := newRingBuffer(c.size)
	c.bufs[id] = buf
	return buf
}

func (c *captureSet) get(id string) *ringBuffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bufs[id]
}

func (c *captureSet) clear(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.bufs, id)
}

// ringBuffer keeps the most recent size bytes written to it.
type ringBuffer struct {
	mu     sync.Mutex
	buf    []byte
	size   int
	start  int
	length int
}

func newRingBuffer(size int) *ringBuffer {
	if size < 0 {
		size = 0
	}
	return &ringBuffer{size: size}
}

func (r *ringBuffer) Write(p []byte) (int, error) {
	if r.size == 0 {
		return len(p), nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.buf == nil {
		r.buf = make([]byte, r.size)
	}
	if len(p) >= r.size {
		copy(r.buf, p[len(p)-r.size:])
		r.start = 0
		r.length = r.size
		return len(p), nil
	}
	for _, b := range p {
		if r.length < r.size {
			r.buf[(r.start+r.length)%r.size] = b
			r.length++
		} else {
			r.buf[r.start] = b
			r.start = (r.start + 1) % r.size
		}
	}
	return len(p), nil
}

func (r *ringBuffer) Snapshot() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.length == 0 {
		return nil
	}
	out := make([]byte, r.length)
	if r.start+r.length <= r.size {
		copy(out, r.buf[r.start:r.start+r.length])
		return out
	}
	n := r.size - r.start
	copy(out, r.buf[r.start:])
	copy(out[n:], r.buf[:r.length-n])
	return out
}
