package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentbridge/jobboard/internal/pkg/jobqueue"
)

func TestCollectorRecords(t *testing.T) {
	c := New()
	c.RecordWebhook("subscription.charged", "processed")
	c.RecordWebhook("subscription.charged", "processed")
	c.RecordCheckout("monthly", "created")
	c.RecordConsumed("numberOfViews", 1)
	c.RecordConsumed("numberOfViews", 0)
	c.RecordJobsClosed(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.WebhookEvents.WithLabelValues("subscription.charged", "processed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Checkouts.WithLabelValues("monthly", "created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.EntitlementConsumed.WithLabelValues("numberOfViews")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.JobsClosed))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordWebhook("order.paid", "processed")
		c.RecordCheckout("yearly", "failed")
		c.RecordConsumed("numberOfJobs", 2)
		c.RecordJobsClosed(1)
		c.RecordQueue(jobqueue.Snapshot{Pending: 1})
	})
}

func TestRecordQueue(t *testing.T) {
	c := New()
	c.RecordQueue(jobqueue.Snapshot{
		Pending: 4,
		Delayed: 2,
		Dead:    1,
		Lifetime: map[jobqueue.JobStatus]int64{
			jobqueue.JobStatusPending:   10,
			jobqueue.JobStatusCompleted: 6,
		},
	})

	assert.Equal(t, 4.0, testutil.ToFloat64(c.QueueDepth.WithLabelValues("pending")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.QueueDepth.WithLabelValues("delayed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.QueueDepth.WithLabelValues("dead")))
	assert.Equal(t, 6.0, testutil.ToFloat64(c.QueueLifetime.WithLabelValues("completed")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := New()
	c.RecordCheckout("yearly", "created")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics/prometheus", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `jobboard_checkouts_total{outcome="created",plan_type="yearly"} 1`)
}
