package moderation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLabelSet(t *testing.T) {
	assert := assert.New(t)

	s := NewLabelSet()
	assert.Equal(0, s.Len())
	assert.Equal([]string{}, s.Sorted())
	s.Add("b", "a", "b")
	s.Add("c")
	assert.Equal(3, s.Len())
	assert.True(s.Has("a"))
	assert.False(s.Has("z"))
	assert.Equal([]string{"a", "b", "c"}, s.Sorted())
}
