// Package metrics expone en Prometheus la salud de las corridas de facturación.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jhoicas/facturacion-suscripciones/internal/application/billing"
)

const namespace = "facturacion"

// Resultados por suscripción, en el mismo orden que RunSummary.
const (
	OutcomeInvoiced      = "invoiced"
	OutcomePending       = "pending_authorization"
	OutcomeRejected      = "rejected"
	OutcomeAlreadyBilled = "already_billed"
	OutcomeNotDue        = "not_due"
	OutcomeSkipped       = "skipped"
	OutcomeLookupError   = "lookup_error"
	OutcomeFailed        = "failed"
)

// BillingMetrics implementa billing.RunObserver.
type BillingMetrics struct {
	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	subscriptions *prometheus.CounterVec
	lastSuccess   prometheus.Gauge
	overdue       prometheus.Counter
	overdueErrors prometheus.Counter
}

var _ billing.RunObserver = (*BillingMetrics)(nil)

// NewRegistry registro propio con los collectors de runtime y proceso.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewBillingMetrics registra las métricas en registerer. Con nil usa el registro global.
func NewBillingMetrics(registerer prometheus.Registerer) *BillingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &BillingMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_runs_total",
			Help:      "Corridas de facturación por resultado (ok | error).",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "billing_run_duration_seconds",
			Help:      "Duración de las corridas completas.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		subscriptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_subscriptions_total",
			Help:      "Suscripciones procesadas por resultado.",
		}, []string{"outcome"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "billing_last_success_timestamp_seconds",
			Help:      "Fin de la última corrida que pudo enumerar suscripciones.",
		}),
		overdue: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoices_marked_overdue_total",
			Help:      "Facturas pasadas a OVERDUE.",
		}),
		overdueErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overdue_errors_total",
			Help:      "Fallos del job de vencimientos.",
		}),
	}
	registerer.MustRegister(m.runs, m.runDuration, m.subscriptions, m.lastSuccess, m.overdue, m.overdueErrors)
	return m
}

// ObserveRun acumula el resumen de una corrida.
func (m *BillingMetrics) ObserveRun(summary *billing.RunSummary, err error) {
	if err != nil || summary == nil {
		m.runs.WithLabelValues("error").Inc()
		return
	}
	m.runs.WithLabelValues("ok").Inc()
	m.runDuration.Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	m.lastSuccess.Set(float64(summary.FinishedAt.Unix()))

	for outcome, n := range map[string]int{
		OutcomeInvoiced:      summary.Invoiced,
		OutcomePending:       summary.Pending,
		OutcomeRejected:      summary.Rejected,
		OutcomeAlreadyBilled: summary.AlreadyBilled,
		OutcomeNotDue:        summary.NotDue,
		OutcomeSkipped:       summary.Skipped,
		OutcomeLookupError:   summary.LookupErrors,
		OutcomeFailed:        summary.Failed,
	} {
		// Add(0) igual crea la serie, así los paneles no quedan vacíos.
		m.subscriptions.WithLabelValues(outcome).Add(float64(n))
	}
}

// ObserveOverdue acumula el resultado del job de vencimientos.
func (m *BillingMetrics) ObserveOverdue(marked int64, err error) {
	if err != nil {
		m.overdueErrors.Inc()
		return
	}
	m.overdue.Add(float64(marked))
}
