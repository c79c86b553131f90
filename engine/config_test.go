package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePercentiles_SortsDedupsAndRounds(t *testing.T) {
	out := normalizePercentiles([]float64{0.99, 0.5, 0.9001, 0.9002, 0.5})
	require.Len(t, out, 3)
	assert.Equal(t, []float64{0.5, 0.9, 0.99}, out)
	for i := 1; i < len(out); i++ {
		assert.LessOrEqual(t, out[i-1], out[i])
	}
}

func TestNormalizePercentiles_EmptyFallsBackToDefaults(t *testing.T) {
	out := normalizePercentiles(nil)
	assert.Equal(t, []float64{0.5, 0.9, 0.99}, out)
}

func TestConfig_ValidateRequiresTaskAndPattern(t *testing.T) {
	c := Defaults()
	err := c.validate()
	assert.ErrorIs(t, err, ErrValidation)

	c.Task = noopTask{}
	err = c.validate()
	assert.ErrorIs(t, err, ErrValidation)

	c.Pattern = NewStaticLoadPattern(10, 0)
	assert.NoError(t, c.validate())
}

type noopTask struct{}

func (noopTask) Init(ctx context.Context) error { return nil }
func (noopTask) Execute(ctx context.Context, iteration int64) TaskResult {
	return Success(time.Millisecond)
}
func (noopTask) Teardown(ctx context.Context) {}
