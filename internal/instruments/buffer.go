package instruments

import "sync"

// Buffer is a thread-safe circular buffer for instruments output
type Buffer struct {
	data []byte
	size int
	head int
	tail int
	full bool
	mu   sync.RWMutex
}

// NewBuffer creates a new circular buffer
func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = 64 * 1024
	}
	return &Buffer{
		data: make([]byte, size),
		size: size,
	}
}

// Write writes data to the buffer, overwriting the oldest bytes when full
func (b *Buffer) Write(p []byte) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, c := range p {
		b.data[b.tail] = c
		b.tail = (b.tail + 1) % b.size

		if b.full {
			b.head = b.tail
		} else if b.tail == b.head {
			b.full = true
		}
	}

	return len(p), nil
}

// Bytes returns a copy of the buffered data without consuming it
func (b *Buffer) Bytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.full && b.head == b.tail {
		return []byte{}
	}

	if b.tail > b.head {
		out := make([]byte, b.tail-b.head)
		copy(out, b.data[b.head:b.tail])
		return out
	}

	// Wrapped around
	out := make([]byte, 0, b.size)
	out = append(out, b.data[b.head:]...)
	out = append(out, b.data[:b.tail]...)
	return out
}

// Len returns the number of buffered bytes
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	switch {
	case b.full:
		return b.size
	case b.tail >= b.head:
		return b.tail - b.head
	default:
		return b.size - b.head + b.tail
	}
}
