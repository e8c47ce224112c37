package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	c.RefreshCompleted(OutcomeAuthenticated, 10*time.Millisecond)
	c.RefreshCompleted(OutcomeStale, 0)
	c.QueryCompleted(OutcomeNotConfigured, 0)
	c.QueryCompleted(OutcomeOK, 5*time.Millisecond)
	c.QueryCompleted(OutcomeOK, 5*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.refreshTotal.WithLabelValues(OutcomeAuthenticated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.refreshTotal.WithLabelValues(OutcomeStale)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.queryTotal.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.queryTotal.WithLabelValues(OutcomeNotConfigured)))

	count, err := testutil.GatherAndCount(reg, "appbridge_query_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

func TestNilCollectors(t *testing.T) {
	var c *Collectors
	assert.NotPanics(t, func() {
		c.RefreshCompleted(OutcomeFailed, time.Second)
		c.QueryCompleted(OutcomeTransportError, time.Second)
	})
}
