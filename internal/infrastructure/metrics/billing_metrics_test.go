package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturacion-suscripciones/internal/application/billing"
	"github.com/jhoicas/facturacion-suscripciones/internal/infrastructure/metrics"
)

func TestObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewBillingMetrics(reg)

	start := time.Date(2026, 10, 1, 3, 1, 0, 0, time.UTC)
	m.ObserveRun(&billing.RunSummary{
		StartedAt:    start,
		FinishedAt:   start.Add(42 * time.Second),
		Total:        6,
		Invoiced:     3,
		Pending:      1,
		LookupErrors: 1,
		Failed:       1,
	}, nil)
	m.ObserveRun(nil, errors.New("listar suscripciones activas: conexión rechazada"))

	count, err := testutil.GatherAndCount(reg, "facturacion_billing_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "una serie por resultado")

	mfs, err := reg.Gather()
	require.NoError(t, err)
	byOutcome := map[string]float64{}
	var lastSuccess float64
	for _, mf := range mfs {
		switch mf.GetName() {
		case "facturacion_billing_subscriptions_total":
			for _, metric := range mf.GetMetric() {
				byOutcome[metric.GetLabel()[0].GetValue()] = metric.GetCounter().GetValue()
			}
		case "facturacion_billing_last_success_timestamp_seconds":
			lastSuccess = mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	assert.Equal(t, 3.0, byOutcome[metrics.OutcomeInvoiced])
	assert.Equal(t, 1.0, byOutcome[metrics.OutcomePending])
	assert.Equal(t, 1.0, byOutcome[metrics.OutcomeFailed])
	assert.Equal(t, 1.0, byOutcome[metrics.OutcomeLookupError], "las lecturas fallidas no se suman a failed")
	assert.Contains(t, byOutcome, metrics.OutcomeRejected, "los resultados en cero también se exportan")
	assert.Equal(t, float64(start.Add(42*time.Second).Unix()), lastSuccess)
}

func TestObserveOverdue(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewBillingMetrics(reg)

	m.ObserveOverdue(4, nil)
	m.ObserveOverdue(0, errors.New("timeout"))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range mfs {
		if len(mf.GetMetric()) == 1 && mf.GetMetric()[0].GetCounter() != nil {
			values[mf.GetName()] = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, 4.0, values["facturacion_invoices_marked_overdue_total"])
	assert.Equal(t, 1.0, values["facturacion_overdue_errors_total"])
}

func TestNewRegistry_IncluyeRuntime(t *testing.T) {
	reg := metrics.NewRegistry()
	count, err := testutil.GatherAndCount(reg, "go_goroutines")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
