package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStaticLoadPattern_ConstantUntilDuration(t *testing.T) {
	p := NewStaticLoadPattern(100, time.Second)
	assert.Equal(t, 100.0, p.TargetTPS(0))
	assert.Equal(t, 100.0, p.TargetTPS(999*time.Millisecond))
	assert.Equal(t, 0.0, p.TargetTPS(time.Second))
	assert.False(t, p.SupportsWarmupCooldown())
	assert.True(t, p.ShouldRecordMetrics(500*time.Millisecond))
}

func TestRampUpLoadPattern_InterpolatesLinearly(t *testing.T) {
	p := NewRampUpLoadPattern(0, 200, 500*time.Millisecond, 500*time.Millisecond)
	assert.Equal(t, 0.0, p.TargetTPS(0))
	assert.InDelta(t, 100.0, p.TargetTPS(250*time.Millisecond), 1e-6)
	assert.InDelta(t, 0.0, p.TargetTPS(500*time.Millisecond), 1e-6)
	assert.Equal(t, 0.0, p.TargetTPS(500*time.Millisecond+1))
}

func TestRampUpSustainLoadPattern_TrapezoidShape(t *testing.T) {
	p := NewRampUpSustainLoadPattern(0, 200, 500*time.Millisecond, 500*time.Millisecond)
	assert.InDelta(t, 100.0, p.TargetTPS(250*time.Millisecond), 1e-6)
	assert.InDelta(t, 200.0, p.TargetTPS(600*time.Millisecond), 1e-6)
	assert.Equal(t, time.Second, p.TotalDuration())
	assert.Equal(t, 0.0, p.TargetTPS(time.Second))
}

func TestWarmupCooldownLoadPattern_DiscardsWarmupAndCooldown(t *testing.T) {
	p := NewWarmupCooldownLoadPattern(100*time.Millisecond, 50, 300*time.Millisecond, 100*time.Millisecond)
	assert.True(t, p.SupportsWarmupCooldown())

	assert.False(t, p.ShouldRecordMetrics(50*time.Millisecond))
	assert.True(t, p.ShouldRecordMetrics(200*time.Millisecond))
	assert.False(t, p.ShouldRecordMetrics(450*time.Millisecond))

	assert.Equal(t, 50.0, p.TargetTPS(50*time.Millisecond))
	assert.Equal(t, 0.0, p.TargetTPS(500*time.Millisecond))
}
