package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studieplekken_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "studieplekken_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	ReservationsAdmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studieplekken_reservations_admitted_total",
			Help: "Total number of admitted seat reservations",
		},
		[]string{"path"},
	)

	ReservationsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studieplekken_reservations_rejected_total",
			Help: "Total number of rejected seat reservations",
		},
		[]string{"path", "reason"},
	)

	ReservationCancellationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studieplekken_reservation_cancellations_total",
			Help: "Total number of cancelled reservations",
		},
	)

	TimeslotsGeneratedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studieplekken_timeslots_generated_total",
			Help: "Total number of timeslots generated from calendar periods",
		},
	)

	PoolQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "studieplekken_pool_queue_length",
			Help: "Current length of the pending reservation queue",
		},
	)

	NoShowSweepsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studieplekken_no_show_sweeps_total",
			Help: "Total number of unknown-attendance sweeps executed",
		},
	)

	MailsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studieplekken_mails_sent_total",
			Help: "Total number of mails sent",
		},
		[]string{"type", "status"},
	)

	MailQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "studieplekken_mail_queue_length",
			Help: "Current length of the mail queue",
		},
	)
)

// Path labels distinguish the synchronous request path from the background
// pool processor.
const (
	PathSync = "sync"
	PathPool = "pool"
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordAdmission(path string) {
	ReservationsAdmittedTotal.WithLabelValues(path).Inc()
}

func RecordRejection(path, reason string) {
	ReservationsRejectedTotal.WithLabelValues(path, reason).Inc()
}

func RecordCancellation() {
	ReservationCancellationsTotal.Inc()
}

func RecordTimeslotsGenerated(n int) {
	TimeslotsGeneratedTotal.Add(float64(n))
}

func RecordMail(mailType, status string) {
	MailsSentTotal.WithLabelValues(mailType, status).Inc()
}
