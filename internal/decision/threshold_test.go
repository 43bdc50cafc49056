package decision

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecideBoundary(t *testing.T) {
	assert.False(t, Decide(25.0))
	assert.True(t, Decide(25.0000001))
	assert.False(t, Decide(24.9999999))
}

func TestDecideSmallestStepAboveThreshold(t *testing.T) {
	assert.True(t, Decide(math.Nextafter(25.0, math.Inf(1))))
	assert.False(t, Decide(math.Nextafter(25.0, math.Inf(-1))))
}

func TestDecideRange(t *testing.T) {
	assert.False(t, Decide(20.0))
	assert.True(t, Decide(30.0))
	assert.False(t, Decide(math.Inf(-1)))
	assert.True(t, Decide(math.Inf(1)))
	assert.False(t, Decide(math.NaN()))
}

func TestDeciderCustomThreshold(t *testing.T) {
	d := NewDecider(18.5)
	assert.False(t, d.Decide(18.5))
	assert.True(t, d.Decide(18.6))

	assert.Equal(t, Decide(25.0), NewDecider(DefaultThreshold).Decide(25.0))
}
