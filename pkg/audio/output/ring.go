// ABOUTME: Byte ring buffer between the audio driver and device callbacks
// ABOUTME: Fixed capacity FIFO with silence fill on short reads
package output

// Ring is a fixed capacity byte FIFO. It is not safe for concurrent use; outputs
// guard it with their own mutex.
type Ring struct {
	buf   []byte
	read  int
	write int
	count int
}

// NewRing creates a ring buffer with given capacity in bytes
func NewRing(capacity int) *Ring {
	return &Ring{buf: make([]byte, capacity)}
}

// Write appends as much of p as fits and returns the number of bytes stored
func (r *Ring) Write(p []byte) int {
	n := len(p)
	if free := len(r.buf) - r.count; n > free {
		n = free
	}
	written := 0
	for written < n {
		end := r.write + (n - written)
		if end > len(r.buf) {
			end = len(r.buf)
		}
		c := copy(r.buf[r.write:end], p[written:])
		r.write = (r.write + c) % len(r.buf)
		written += c
	}
	r.count += written
	return written
}

// Read fills p from the buffer and pads any shortfall with fill. It returns the
// number of real bytes read.
func (r *Ring) Read(p []byte, fill byte) int {
	n := len(p)
	if n > r.count {
		n = r.count
	}
	read := 0
	for read < n {
		end := r.read + (n - read)
		if end > len(r.buf) {
			end = len(r.buf)
		}
		c := copy(p[read:], r.buf[r.read:end])
		r.read = (r.read + c) % len(r.buf)
		read += c
	}
	r.count -= read

	for i := read; i < len(p); i++ {
		p[i] = fill
	}
	return read
}

// Len returns the number of bytes available to read
func (r *Ring) Len() int {
	return r.count
}

// Free returns the number of bytes that can be written
func (r *Ring) Free() int {
	return len(r.buf) - r.count
}

// Cap returns the total capacity
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Reset discards all buffered bytes
func (r *Ring) Reset() {
	r.read, r.write, r.count = 0, 0, 0
}
