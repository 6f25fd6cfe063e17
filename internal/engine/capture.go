package engine

import (
	"bytes"
	"sync"
)

// truncationMarker is appended exactly once when the capture ceiling is hit.
const truncationMarker = "\n[output truncated]"

// captureBuffer records everything the snippet prints, up to a fixed
// ceiling. Overflow is marked explicitly instead of silently dropped, and
// writes past the ceiling still report success so the snippet keeps running.
type captureBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	max       int
	truncated bool
}

func newCaptureBuffer(max int) *captureBuffer {
	return &captureBuffer{max: max}
}

func (b *captureBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.truncated {
		return len(p), nil
	}
	room := b.max - b.buf.Len()
	if room >= len(p) {
		b.buf.Write(p)
		return len(p), nil
	}
	if room > 0 {
		b.buf.Write(p[:room])
	}
	b.buf.WriteString(truncationMarker)
	b.truncated = true
	return len(p), nil
}

func (b *captureBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *captureBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}
