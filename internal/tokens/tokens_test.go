package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate(t *testing.T) {
	assert.Equal(t, uint64(0), Estimate())
	assert.Equal(t, uint64(0), Estimate("", ""))

	one := Estimate("hello world")
	assert.Greater(t, one, uint64(0))
	assert.Equal(t, one*2, Estimate("hello world", "hello world"))
}
