package repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoinColumns(t *testing.T) {
	assert.Equal(t, "a, b, c", joinColumns([]string{"a", "b", "c"}))
	assert.Equal(t, "", joinColumns(nil))
}

func TestIndexOf(t *testing.T) {
	assert.Equal(t, 1, indexOf([]string{"a", "b", "c"}, "b"))
	assert.Equal(t, -1, indexOf([]string{"a", "b"}, "z"))
}
