package metrics

import "time"

func (m *Metrics) RecordVote(target, outcome string) {
	m.safeExecute("RecordVote", func() {
		m.VotesTotal.WithLabelValues(target, outcome).Inc()
	})
}

func (m *Metrics) RecordAccept(outcome string) {
	m.safeExecute("RecordAccept", func() {
		m.AcceptsTotal.WithLabelValues(outcome).Inc()
	})
}

func (m *Metrics) RecordComment(operation string) {
	m.safeExecute("RecordComment", func() {
		m.CommentsTotal.WithLabelValues(operation).Inc()
	})
}

func (m *Metrics) RecordNotification(notificationType, result string) {
	m.safeExecute("RecordNotification", func() {
		m.NotificationsTotal.WithLabelValues(notificationType, result).Inc()
	})
}

func (m *Metrics) SetNotificationQueueDepth(depth int) {
	m.safeExecute("SetNotificationQueueDepth", func() {
		m.NotificationQueueDepth.Set(float64(depth))
	})
}

func (m *Metrics) AddVoteCountsReconciled(n int) {
	m.safeExecute("AddVoteCountsReconciled", func() {
		m.VoteCountsReconciled.Add(float64(n))
	})
}

func (m *Metrics) RecordJobRun(job string, err error) {
	m.safeExecute("RecordJobRun", func() {
		result := "success"
		if err != nil {
			result = "error"
		}
		m.JobRunsTotal.WithLabelValues(job, result).Inc()
	})
}

func (m *Metrics) RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	m.safeExecute("RecordHTTPRequest", func() {
		m.HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	})
}
