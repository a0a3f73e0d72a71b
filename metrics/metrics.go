package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	createdSchedulesCounter    prometheus.Counter
	claimsCounter              prometheus.Counter
	claimedAmountCounter       prometheus.Counter
	revocationsCounter         prometheus.Counter
	returnedAmountCounter      prometheus.Counter
	rejectedOperationsCounter  *prometheus.CounterVec
	failedNotificationsCounter prometheus.Counter
	indexedEventsCounter       prometheus.Counter
	lastIndexedEventTimeGauge  prometheus.Gauge
}

func NewMetrics(namespace string) *Metrics {
	m := Metrics{
		// schedule lifecycle
		createdSchedulesCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_created_schedules_count", namespace),
			Help: "The total number of created vesting schedules",
		}),
		claimsCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_claims_count", namespace),
			Help: "The total number of successful claims",
		}),
		claimedAmountCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_claimed_amount_total", namespace),
			Help: "The total amount of units released to beneficiaries",
		}),
		revocationsCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_revocations_count", namespace),
			Help: "The total number of revoked schedules",
		}),
		returnedAmountCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_returned_amount_total", namespace),
			Help: "The total amount of units returned to creators on revocation",
		}),
		rejectedOperationsCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_rejected_operations_count", namespace),
			Help: "The total number of rejected operations by operation and reason",
		}, []string{"operation", "reason"}),
		failedNotificationsCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_failed_notifications_count", namespace),
			Help: "The total number of events that could not be published",
		}),
		// event indexing
		indexedEventsCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_indexed_events_count", namespace),
			Help: "The total number of indexed vesting events",
		}),
		lastIndexedEventTimeGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_last_indexed_event_time", namespace),
			Help: "The timestamp of the latest indexed vesting event",
		}),
	}
	return &m
}

func (metrics *Metrics) IncScheduleCreated() {
	metrics.createdSchedulesCounter.Inc()
}

func (metrics *Metrics) AddClaim(amount uint64) {
	metrics.claimsCounter.Inc()
	metrics.claimedAmountCounter.Add(float64(amount))
}

func (metrics *Metrics) AddRevocation(returned uint64) {
	metrics.revocationsCounter.Inc()
	metrics.returnedAmountCounter.Add(float64(returned))
}

func (metrics *Metrics) IncRejected(operation, reason string) {
	metrics.rejectedOperationsCounter.WithLabelValues(operation, reason).Inc()
}

func (metrics *Metrics) AddFailedNotifications(count int) {
	metrics.failedNotificationsCounter.Add(float64(count))
}

func (metrics *Metrics) AddIndexedEvents(count int, lastTimestamp int64) {
	metrics.indexedEventsCounter.Add(float64(count))
	if lastTimestamp > 0 {
		metrics.lastIndexedEventTimeGauge.Set(float64(lastTimestamp))
	}
}
