package cmd

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exactly-ten", truncate("exactly-ten", 11))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijk", 10))

	// Multibyte messages must be cut on rune boundaries.
	long := "переменная не используется в этой функции"
	got := truncate(long, 20)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, string([]rune(long)[:17])+"...", got)
	assert.Len(t, []rune(got), 20)
}
