package runner

import (
	"strings"
	"sync"

	"github.com/acarl005/stripansi"
)

const (
	defaultStdoutTailBytes = 1024 * 1024 // 1MB kept in memory per test
	defaultSnippetBytes    = 4 * 1024
)

// tailBuffer keeps only the last N bytes written to it, so a failure message can carry
// the end of a long log without retaining the whole log in memory.
type tailBuffer struct {
	maxBytes int

	mu       sync.Mutex
	total    int64
	contents []byte
}

func newTailBuffer(maxBytes int) *tailBuffer {
	if maxBytes <= 0 {
		maxBytes = defaultStdoutTailBytes
	}
	return &tailBuffer{maxBytes: maxBytes}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total += int64(len(p))
	if len(p) >= b.maxBytes {
		b.contents = append(b.contents[:0], p[len(p)-b.maxBytes:]...)
		return len(p), nil
	}
	b.contents = append(b.contents, p...)
	if over := len(b.contents) - b.maxBytes; over > 0 {
		b.contents = append(b.contents[:0], b.contents[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := make([]byte, len(b.contents))
	copy(cp, b.contents)
	return cp
}

func (b *tailBuffer) TotalBytes() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

func (b *tailBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.contents)) < b.total
}

// Snippet returns at most maxBytes of the most recent output with ANSI escapes removed
func (b *tailBuffer) Snippet(maxBytes int) string {
	return snippet(string(b.Bytes()), maxBytes, b.Truncated())
}

func snippet(s string, maxBytes int, truncated bool) string {
	s = strings.TrimSpace(stripansi.Strip(s))
	if maxBytes > 0 && len(s) > maxBytes {
		s = s[len(s)-maxBytes:]
		truncated = true
	}
	if truncated && s != "" {
		s = "...\n" + s
	}
	return s
}
