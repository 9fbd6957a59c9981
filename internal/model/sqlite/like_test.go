package sqlite

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeLike_EscapesWildcardsAndBackslash(t *testing.T) {
	assert.Equal(t, `100\%`, escapeLike("100%"))
	assert.Equal(t, `a\_b`, escapeLike("a_b"))
	assert.Equal(t, `a\\b`, escapeLike(`a\b`))
}

func TestEscapeLike_PlainStringUnchanged(t *testing.T) {
	assert.Equal(t, "device-01", escapeLike("device-01"))
}

func TestLikePattern_WrapsInWildcardsAfterEscaping(t *testing.T) {
	assert.Equal(t, `%100\%%`, likePattern("100%"))
	assert.Equal(t, "%device%", likePattern("device"))
}
