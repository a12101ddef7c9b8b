package runner

import (
	"sync"
)

const defaultStderrTailBytes = 1024 * 1024 // 1MB kept in memory per invocation

// tailBuffer keeps only the last N bytes written to it so a runaway tool
// cannot blow up memory through stderr; the end of the stream is where the
// error message lives anyway.
type tailBuffer struct {
	maxBytes int

	mu       sync.Mutex
	total    int64
	contents []byte
	overflow bool
}

func newTailBuffer(maxBytes int) *tailBuffer {
	if maxBytes <= 0 {
		maxBytes = defaultStderrTailBytes
	}
	return &tailBuffer{
		maxBytes: maxBytes,
	}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total += int64(len(p))
	b.contents = append(b.contents, p...)
	if len(b.contents) > b.maxBytes {
		b.contents = b.contents[len(b.contents)-b.maxBytes:]
		b.overflow = true
	}
	return len(p), nil
}

// String returns the retained tail, prefixed with a marker when the head
// was dropped.
func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.overflow {
		return "...[truncated]...\n" + string(b.contents)
	}
	return string(b.contents)
}

func (b *tailBuffer) TotalBytes() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

func (b *tailBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overflow
}
