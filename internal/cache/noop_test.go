package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoopCache_AlwaysMisses(t *testing.T) {
	c := NewNoopCache[string, int]()
	c.Set("a", 1)
	c.SetNegative("b")

	_, res := c.Get("a")
	assert.Equal(t, Miss, res)
	_, res = c.Get("b")
	assert.Equal(t, Miss, res)
	assert.Equal(t, 0, c.Len())
}
