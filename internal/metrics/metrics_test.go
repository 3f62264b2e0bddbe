package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_ObserveRequest(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRequest("search", "200", 40*time.Millisecond)
	m.ObserveRequest("search", "200", 10*time.Millisecond)
	m.ObserveRequest("login", "401", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.apiRequests.WithLabelValues("search", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.apiRequests.WithLabelValues("login", "401")))
}

func TestMetrics_ObserveTruncationOnlyCountsDrops(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveTruncation(150, 100)
	m.ObserveTruncation(100, 100)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.hydrateTruncated))
}

func TestMetrics_PipelineAndStale(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.PipelineFinished("ok")
	m.StaleDiscarded("search")
	m.StaleDiscarded("search")
	m.UpdateHandled("command")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.pipelines.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.staleResponses.WithLabelValues("search")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.updates.WithLabelValues("command")))
}
