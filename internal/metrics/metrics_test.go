package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordVote("answer", "added")
		m.RecordAccept("accepted")
		m.RecordJobRun("reconcile_votes", nil)
		m.SetNotificationQueueDepth(3)
	})
}

func TestBusinessCounters(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry(), nil)

	m.RecordVote("answer", "added")
	m.RecordVote("answer", "added")
	m.RecordVote("comment", "removed")
	m.RecordAccept("accepted")
	m.RecordNotification("accept", "stored")
	m.AddVoteCountsReconciled(4)
	m.RecordJobRun("prune_views", errors.New("boom"))
	m.SetNotificationQueueDepth(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.VotesTotal.WithLabelValues("answer", "added")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VotesTotal.WithLabelValues("comment", "removed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AcceptsTotal.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("accept", "stored")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.VoteCountsReconciled))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobRunsTotal.WithLabelValues("prune_views", "error")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.NotificationQueueDepth))
}

func TestRecordHTTPRequest(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry(), nil)
	m.RecordHTTPRequest("POST", "/api/answers/:id/vote", "200", 15*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/answers/:id/vote", "200")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.HTTPRequestDuration))
}
