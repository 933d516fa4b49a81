package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_ObserveUnit(t *testing.T) {
	c := NewCollector()

	c.ObserveUnit("1H", "ok", 2*time.Second)
	c.ObserveUnit("4H", "ok", time.Second)
	c.ObserveUnit("4H", "failed", time.Second)
	c.Combos.Add(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Units.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Units.WithLabelValues("failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.Combos))

	n, err := testutil.GatherAndCount(c.Registry(), "ofilab_unit_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNewCollector_Independent(t *testing.T) {
	a := NewCollector()
	b := NewCollector()

	a.Trades.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.Trades))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Trades))
}
