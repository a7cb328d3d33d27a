package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterIncrements(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPrometheusCollector(reg)

	labels := map[string]string{"repository": "acme/api", "type": "new_pr"}
	c.IncrementCounter("pr_changes_total", labels)
	c.IncrementCounter("pr_changes_total", labels)

	got := testutil.ToFloat64(c.counters["pr_changes_total"].With(labels))
	assert.Equal(t, 2.0, got)
}

func TestMismatchedLabelsAreIgnored(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPrometheusCollector(reg)

	require.NotPanics(t, func() {
		c.IncrementCounter("pr_changes_total", map[string]string{"repository": "acme/api"})
		c.RecordDuration("review_duration_seconds", 1.5, map[string]string{"bogus": "x"})
		c.SetGauge("does_not_exist", 1, nil)
	})
}

func TestGaugeWithoutLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPrometheusCollector(reg)

	c.SetGauge("tracked_pull_requests", 7, nil)
	assert.Equal(t, 7.0, testutil.ToFloat64(c.gauges["tracked_pull_requests"].With(nil)))
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	require.NotPanics(t, func() {
		NewPrometheusCollector(prometheus.NewRegistry())
		NewPrometheusCollector(prometheus.NewRegistry())
	})
}
