package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncSubmitted("3")
	m.IncSubmitted("3")
	m.IncDecision("approve", "ok")
	m.IncNotifyFailure()
	m.ObserveTurn("continue", 5*time.Millisecond)
	m.SetLiveSessions(4)
	m.AddEvicted(2)
	m.AddEvicted(0)
	m.AddExpired(1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Submitted.WithLabelValues("3")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues("approve", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotifyFailures))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.LiveSessions))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionsEvicted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsExpired))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncSubmitted("1")
		m.IncDecision("reject", "ok")
		m.IncNotifyFailure()
		m.ObserveTurn("retry", time.Second)
		m.SetLiveSessions(1)
		m.AddEvicted(1)
		m.AddExpired(1)
	})
}
