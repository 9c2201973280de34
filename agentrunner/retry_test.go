package agentrunner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextDelayIncrementsThenCaps(t *testing.T) {
	assert.Equal(t, 30*time.Second, NextDelay(1))
	assert.Equal(t, 60*time.Second, NextDelay(2))
	assert.Equal(t, 90*time.Second, NextDelay(3))
	assert.Equal(t, 10*time.Minute, NextDelay(30))
}

func TestDecideNonRetryableExhaustsImmediately(t *testing.T) {
	d := Decide(1, false)
	assert.True(t, d.Exhausted)
	assert.False(t, d.Retry)
}

func TestDecideRetryableExhaustsAtMaxAttempt(t *testing.T) {
	d := Decide(7, true)
	assert.True(t, d.Exhausted)

	d = Decide(6, true)
	assert.True(t, d.Retry)
	assert.Equal(t, 180*time.Second, d.After)
}
