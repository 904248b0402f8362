package cache

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResultLabel(t *testing.T) {
	assert.Equal(t, "ok", resultLabel(nil))
	assert.Equal(t, "miss", resultLabel(fmt.Errorf("key 'k': %w", ErrCacheMiss)))
	assert.Equal(t, "error", resultLabel(errors.New("i/o timeout")))
}
