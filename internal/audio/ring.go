package audio

import (
	"sync"
)

// CaptureRing is a thread-safe ring buffer sitting between the capture
// ingress (WebSocket reader) and the session event loop. It is deliberately
// small: when the consumer falls behind, new audio is dropped rather than
// queued, trading lost samples for bounded memory and latency.
type CaptureRing struct {
	buffer  []byte
	size    int
	read    int
	write   int
	dropped int64
	mu      sync.Mutex
}

// NewCaptureRing creates a ring buffer with the specified capacity in bytes.
func NewCaptureRing(size int) *CaptureRing {
	return &CaptureRing{
		buffer: make([]byte, size),
		size:   size,
	}
}

// Write appends data, dropping whatever does not fit. Returns the number of
// bytes actually stored.
func (r *CaptureRing) Write(data []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	written := 0
	for _, b := range data {
		if (r.write+1)%r.size == r.read {
			break // full
		}
		r.buffer[r.write] = b
		r.write = (r.write + 1) % r.size
		written++
	}
	r.dropped += int64(len(data) - written)
	return written
}

// Read drains up to len(data) bytes. Returns the number of bytes read.
func (r *CaptureRing) Read(data []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	read := 0
	for i := range data {
		if r.read == r.write {
			break // empty
		}
		data[i] = r.buffer[r.read]
		r.read = (r.read + 1) % r.size
		read++
	}
	return read
}

// ReadFrame drains exactly frameBytes bytes if that much is buffered, or
// nothing. Keeps downstream frames at a fixed size without partial reads.
func (r *CaptureRing) ReadFrame(frameBytes int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.available() < frameBytes {
		return nil
	}
	out := make([]byte, frameBytes)
	for i := 0; i < frameBytes; i++ {
		out[i] = r.buffer[r.read]
		r.read = (r.read + 1) % r.size
	}
	return out
}

// Available returns the number of buffered bytes.
func (r *CaptureRing) Available() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.available()
}

func (r *CaptureRing) available() int {
	if r.write >= r.read {
		return r.write - r.read
	}
	return r.size - r.read + r.write
}

// Dropped returns the total bytes discarded due to backpressure.
func (r *CaptureRing) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Clear empties the buffer.
func (r *CaptureRing) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.read = 0
	r.write = 0
}
