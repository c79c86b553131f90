package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProviderAdapter_CachesWithinTTL(t *testing.T) {
	c := NewCollector("run-1", []float64{0.5}, time.Second)
	a := NewProviderAdapter(c, 50*time.Millisecond)

	c.RecordSuccess(time.Millisecond)
	first := a.TotalExecutions()

	c.RecordSuccess(time.Millisecond)
	second := a.TotalExecutions()

	assert.Equal(t, first, second, "reads within TTL must observe the same cached snapshot")
}

func TestProviderAdapter_RefreshesAfterTTL(t *testing.T) {
	c := NewCollector("run-1", []float64{0.5}, time.Second)
	a := NewProviderAdapter(c, 10*time.Millisecond)

	c.RecordSuccess(time.Millisecond)
	_ = a.TotalExecutions()

	time.Sleep(20 * time.Millisecond)
	c.RecordSuccess(time.Millisecond)

	assert.Equal(t, int64(2), a.TotalExecutions())
}
