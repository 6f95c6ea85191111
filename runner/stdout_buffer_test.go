package runner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTailBuffer(t *testing.T) {
	b := newTailBuffer(8)

	_, _ = b.Write([]byte("abcd"))
	assert.Equal(t, "abcd", string(b.Bytes()))
	assert.False(t, b.Truncated())

	_, _ = b.Write([]byte("efghij"))
	assert.Equal(t, "cdefghij", string(b.Bytes()))
	assert.True(t, b.Truncated())
	assert.EqualValues(t, 10, b.TotalBytes())

	_, _ = b.Write([]byte("0123456789xyz"))
	assert.Equal(t, "56789xyz", string(b.Bytes()))
	assert.EqualValues(t, 23, b.TotalBytes())
}

func TestSnippet(t *testing.T) {
	b := newTailBuffer(0)
	_, _ = b.Write([]byte("\x1b[32mok\x1b[0m\n" + strings.Repeat("x", 20) + "\n"))

	assert.Equal(t, "ok\n"+strings.Repeat("x", 20), b.Snippet(100))
	assert.Equal(t, "...\n"+strings.Repeat("x", 5), b.Snippet(5))
	assert.Equal(t, "", newTailBuffer(0).Snippet(10))
}
