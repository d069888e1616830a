package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of the send pipeline. All methods
// are safe to call on a nil *Metrics, which records nothing.
type Metrics struct {
	// Delivery counters, labelled by recipient mail domain
	EmailsSentTotal      *prometheus.CounterVec
	EmailsFailedTotal    *prometheus.CounterVec
	EmailsDeferredTotal  *prometheus.CounterVec
	EmailsAbandonedTotal *prometheus.CounterVec
	DuplicateSendsTotal  prometheus.Counter
	SendDurationSeconds  *prometheus.HistogramVec

	// Dispatch
	JobsEnqueuedTotal       prometheus.Counter
	RecipientsSkippedTotal  prometheus.Counter
	DispatchFailuresTotal   prometheus.Counter
	CampaignsCompletedTotal prometheus.Counter

	// Queue gauges, refreshed by the poller
	QueueReady    prometheus.Gauge
	QueueInFlight prometheus.Gauge
	DeadLetters   prometheus.Gauge

	AuditWriteFailuresTotal prometheus.Counter

	registry *prometheus.Registry
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		EmailsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailer_emails_sent_total",
				Help: "Total number of emails accepted by the transport",
			},
			[]string{"domain"},
		),
		EmailsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailer_emails_failed_total",
				Help: "Total number of failed send attempts",
			},
			[]string{"domain", "kind"},
		),
		EmailsDeferredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailer_emails_deferred_total",
				Help: "Total number of jobs put back without consuming an attempt",
			},
			[]string{"domain", "reason"},
		),
		EmailsAbandonedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailer_emails_abandoned_total",
				Help: "Total number of jobs moved to the dead-letter list",
			},
			[]string{"domain"},
		),
		DuplicateSendsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mailer_duplicate_sends_total",
				Help: "Sends that lost the race to mark their recipient as sent",
			},
		),
		SendDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailer_send_duration_seconds",
				Help:    "Transport send latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		JobsEnqueuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mailer_jobs_enqueued_total",
				Help: "Total number of delivery jobs enqueued",
			},
		),
		RecipientsSkippedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mailer_recipients_suppressed_total",
				Help: "Recipients skipped at dispatch because they are suppressed",
			},
		),
		DispatchFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mailer_dispatch_failures_total",
				Help: "Dispatch passes that moved their campaign to FAILED",
			},
		),
		CampaignsCompletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mailer_campaigns_completed_total",
				Help: "Campaigns moved to SENT by the reconciler",
			},
		),
		QueueReady: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailer_queue_ready",
				Help: "Jobs waiting in the ready set, including delayed retries",
			},
		),
		QueueInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailer_queue_in_flight",
				Help: "Jobs currently leased by a worker",
			},
		),
		DeadLetters: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailer_dead_letters",
				Help: "Entries on the dead-letter list",
			},
		),
		AuditWriteFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mailer_audit_write_failures_total",
				Help: "Campaign log entries that could not be stored",
			},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.EmailsSentTotal,
		m.EmailsFailedTotal,
		m.EmailsDeferredTotal,
		m.EmailsAbandonedTotal,
		m.DuplicateSendsTotal,
		m.SendDurationSeconds,
		m.JobsEnqueuedTotal,
		m.RecipientsSkippedTotal,
		m.DispatchFailuresTotal,
		m.CampaignsCompletedTotal,
		m.QueueReady,
		m.QueueInFlight,
		m.DeadLetters,
		m.AuditWriteFailuresTotal,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) IncSent(domain string, seconds float64) {
	if m == nil {
		return
	}
	m.EmailsSentTotal.WithLabelValues(domain).Inc()
	m.SendDurationSeconds.WithLabelValues("sent").Observe(seconds)
}

func (m *Metrics) IncFailed(domain string, permanent bool, seconds float64) {
	if m == nil {
		return
	}
	kind := "transient"
	if permanent {
		kind = "permanent"
	}
	m.EmailsFailedTotal.WithLabelValues(domain, kind).Inc()
	m.SendDurationSeconds.WithLabelValues("failed").Observe(seconds)
}

func (m *Metrics) IncDeferred(domain, reason string) {
	if m == nil {
		return
	}
	m.EmailsDeferredTotal.WithLabelValues(domain, reason).Inc()
}

func (m *Metrics) IncAbandoned(domain string) {
	if m == nil {
		return
	}
	m.EmailsAbandonedTotal.WithLabelValues(domain).Inc()
}

func (m *Metrics) IncDuplicate() {
	if m == nil {
		return
	}
	m.DuplicateSendsTotal.Inc()
}

func (m *Metrics) AddEnqueued(n int) {
	if m == nil {
		return
	}
	m.JobsEnqueuedTotal.Add(float64(n))
}

func (m *Metrics) AddSuppressed(n int) {
	if m == nil {
		return
	}
	m.RecipientsSkippedTotal.Add(float64(n))
}

func (m *Metrics) IncDispatchFailure() {
	if m == nil {
		return
	}
	m.DispatchFailuresTotal.Inc()
}

func (m *Metrics) IncCompleted() {
	if m == nil {
		return
	}
	m.CampaignsCompletedTotal.Inc()
}

func (m *Metrics) IncAuditFailure() {
	if m == nil {
		return
	}
	m.AuditWriteFailuresTotal.Inc()
}

func (m *Metrics) SetQueue(ready, inFlight, deadLetters int64) {
	if m == nil {
		return
	}
	m.QueueReady.Set(float64(ready))
	m.QueueInFlight.Set(float64(inFlight))
	m.DeadLetters.Set(float64(deadLetters))
}
