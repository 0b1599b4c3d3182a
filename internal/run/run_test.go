package run

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "fatal: repository not found",
		FirstLine([]byte("fatal: repository not found\nhint: try again\n")))
	assert.Equal(t, "one line", FirstLine([]byte("  one line  \n")))
	assert.Equal(t, "no output", FirstLine(nil))
	assert.Equal(t, "no output", FirstLine([]byte("\n\n")))

	long := strings.Repeat("x", 500)
	assert.Len(t, FirstLine([]byte(long)), 200)
}
