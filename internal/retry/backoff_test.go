package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialBackoff_DeterministicWithoutJitter(t *testing.T) {
	b := NewExponentialBackoff(time.Second, 30*time.Second, 2.0, 0)

	assert.Equal(t, 1*time.Second, b.Next(0))
	assert.Equal(t, 2*time.Second, b.Next(1))
	assert.Equal(t, 4*time.Second, b.Next(2))
	assert.Equal(t, 8*time.Second, b.Next(3))
}

func TestExponentialBackoff_CappedAtMax(t *testing.T) {
	b := NewExponentialBackoff(time.Second, 5*time.Second, 2.0, 0)

	assert.Equal(t, 4*time.Second, b.Next(2))
	assert.Equal(t, 5*time.Second, b.Next(3))
	assert.Equal(t, 5*time.Second, b.Next(10))
}

func TestExponentialBackoff_NegativeAttempt(t *testing.T) {
	b := NewExponentialBackoff(time.Second, 30*time.Second, 2.0, 0)

	assert.Equal(t, time.Second, b.Next(-1))
}

func TestExponentialBackoff_JitterStaysWithinBounds(t *testing.T) {
	b := NewExponentialBackoff(time.Second, 30*time.Second, 2.0, 0.5)

	for i := 0; i < 100; i++ {
		d := b.Next(1)
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.LessOrEqual(t, d, 3*time.Second)
	}
}

func TestExponentialBackoff_InvalidFactorFallsBack(t *testing.T) {
	b := NewExponentialBackoff(time.Second, 30*time.Second, 0.5, 0)

	assert.Equal(t, 2*time.Second, b.Next(1))
}

func TestConstantBackoff(t *testing.T) {
	b := NewConstantBackoff(3 * time.Second)

	assert.Equal(t, 3*time.Second, b.Next(0))
	assert.Equal(t, 3*time.Second, b.Next(7))
}
