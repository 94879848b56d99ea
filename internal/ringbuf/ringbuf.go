// Package ringbuf provides the fixed-capacity sample store between capture and VAD.
package ringbuf

import "fmt"

// Buffer is a fixed-capacity FIFO of float32 samples.
//
// Pushing past capacity overwrites the oldest samples and advances the read
// boundary; the number of discarded samples is reported by Overruns. Get and
// Pop panic when asked for more than Size samples: that is a drain-loop bug,
// not a runtime condition.
//
// Buffer is not safe for concurrent use.
type Buffer struct {
	buf        []float32
	head, tail int64
	overruns   int64
}

// New creates a Buffer holding at most capacity samples.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		panic(fmt.Sprintf("ringbuf: capacity must be > 0, got %d", capacity))
	}
	return &Buffer{buf: make([]float32, capacity)}
}

// Cap returns the fixed capacity.
func (b *Buffer) Cap() int {
	return len(b.buf)
}

// Size returns the number of buffered samples.
func (b *Buffer) Size() int {
	return int(b.tail - b.head)
}

// Head returns the absolute index of the oldest buffered sample.
func (b *Buffer) Head() int64 {
	return b.head
}

// Overruns returns the total number of samples overwritten before being read.
func (b *Buffer) Overruns() int64 {
	return b.overruns
}

// Push appends samples, overwriting the oldest ones when capacity is exceeded.
func (b *Buffer) Push(samples []float32) {
	if len(samples) == 0 {
		return
	}

	size := int64(len(b.buf))

	// Only the newest len(buf) samples can survive.
	if int64(len(samples)) > size {
		skipped := int64(len(samples)) - size
		b.overruns += skipped
		b.tail += skipped
		b.head += skipped
		samples = samples[skipped:]
	}

	n := int64(len(samples))
	if excess := b.tail + n - b.head - size; excess > 0 {
		b.head += excess
		b.overruns += excess
	}

	tail := int(b.tail % size)
	copied := copy(b.buf[tail:], samples)
	copy(b.buf, samples[copied:])
	b.tail += n
	if b.head < b.tail-size {
		b.head = b.tail - size
	}
}

// Get copies n samples starting offset samples past the read boundary.
func (b *Buffer) Get(offset, n int) []float32 {
	if offset < 0 || n < 0 || offset+n > b.Size() {
		panic(fmt.Sprintf("ringbuf: get(offset=%d, n=%d) exceeds size %d", offset, n, b.Size()))
	}

	out := make([]float32, n)
	if n == 0 {
		return out
	}

	size := int64(len(b.buf))
	start := int((b.head + int64(offset)) % size)
	copied := copy(out, b.buf[start:])
	copy(out[copied:], b.buf[:n-copied])
	return out
}

// Pop discards n samples from the read boundary.
func (b *Buffer) Pop(n int) {
	if n < 0 || n > b.Size() {
		panic(fmt.Sprintf("ringbuf: pop(%d) exceeds size %d", n, b.Size()))
	}
	b.head += int64(n)
}

// Reset discards all samples and counters.
func (b *Buffer) Reset() {
	b.head = 0
	b.tail = 0
	b.overruns = 0
}
