package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceIDGenerator(t *testing.T) {
	gen := NewSequenceIDGenerator("task")
	assert.Equal(t, "task-1", gen.Generate())
	assert.Equal(t, "task-2", gen.Generate())

	assert.Equal(t, "id-1", NewSequenceIDGenerator("").Generate())
}

func TestFixedIDGenerator(t *testing.T) {
	gen := NewFixedIDGenerator("thread-a")
	assert.Equal(t, "thread-a", gen.Generate())
	assert.Equal(t, "thread-a", gen.Generate())

	assert.Equal(t, "test-id-default", NewFixedIDGenerator("").Generate())
}
