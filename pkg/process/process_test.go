package process

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlive(t *testing.T) {
	assert.True(t, Alive(os.Getpid()))
	assert.False(t, Alive(0))
	assert.False(t, Alive(-1))
	// A pid far above any real pid_max.
	assert.False(t, Alive(99999999))
}
