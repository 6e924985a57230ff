package http_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturacion-suscripciones/internal/application/billing"
	"github.com/jhoicas/facturacion-suscripciones/internal/infrastructure/metrics"
	apphttp "github.com/jhoicas/facturacion-suscripciones/internal/interfaces/http"
)

func TestMetrics_Publico(t *testing.T) {
	reg := metrics.NewRegistry()
	m := metrics.NewBillingMetrics(reg)
	m.ObserveRun(&billing.RunSummary{Invoiced: 2}, nil)

	app := fiber.New()
	apphttp.Router(app, apphttp.RouterDeps{Metrics: reg, JWTSecret: testJWTSecret})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "el scrape no pide token")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `facturacion_billing_subscriptions_total{outcome="invoiced"} 2`)
}

func TestMetrics_SinRegistroNoSeExpone(t *testing.T) {
	app := fiber.New()
	apphttp.Router(app, apphttp.RouterDeps{JWTSecret: testJWTSecret})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
