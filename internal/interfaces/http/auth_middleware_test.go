package http_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturacion-suscripciones/internal/domain/entity"
	apphttp "github.com/jhoicas/facturacion-suscripciones/internal/interfaces/http"
	pkgjwt "github.com/jhoicas/facturacion-suscripciones/pkg/jwt"
)

const (
	testJWTSecret = "test-secret-key-for-unit-tests"
	testIssuer    = "facturacion-test"
	testOperator  = "ops@facturacion.test"
	testExpMin    = 60
)

// tokenForRole firma un token del operador de prueba con el rol indicado.
func tokenForRole(t *testing.T, role string) string {
	t.Helper()
	return "Bearer " + signToken(t, testJWTSecret, role, testIssuer, testExpMin)
}

func signToken(t *testing.T, secret, role, issuer string, expMin int) string {
	t.Helper()
	tok, err := pkgjwt.Generate(secret, testOperator, role, issuer, expMin)
	require.NoError(t, err)
	return tok
}

// callAs pega contra la API de facturación con el header Authorization dado ("" = sin header).
func callAs(t *testing.T, app *fiber.App, method, path, auth string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestAuth_RutasDeFacturacion(t *testing.T) {
	f := newFixture(t)
	f.run(t)
	invoice := "/api/invoices/" + f.onlyInvoiceID(t)

	cases := []struct {
		name   string
		method string
		path   string
		auth   string
		status int
		code   string
	}{
		{"admin consulta factura", http.MethodGet, invoice, tokenForRole(t, "admin"), http.StatusOK, ""},
		{"admin dispara corrida", http.MethodPost, "/api/billing/runs", tokenForRole(t, "admin"), http.StatusOK, ""},
		{"rol en mayúsculas", http.MethodGet, invoice, tokenForRole(t, "ADMIN"), http.StatusOK, ""},
		{"soporte no dispara corridas", http.MethodPost, "/api/billing/runs", tokenForRole(t, "soporte"), http.StatusForbidden, "FORBIDDEN"},
		{"soporte no ve facturas", http.MethodGet, invoice, tokenForRole(t, "soporte"), http.StatusForbidden, "FORBIDDEN"},
		{"soporte no reautoriza", http.MethodPost, invoice + "/authorize", tokenForRole(t, "soporte"), http.StatusForbidden, "FORBIDDEN"},
		{"sin header", http.MethodGet, invoice, "", http.StatusUnauthorized, "MISSING_TOKEN"},
		{"esquema Basic", http.MethodGet, invoice, "Basic b3BzOmNsYXZl", http.StatusUnauthorized, "INVALID_TOKEN"},
		{"token malformado", http.MethodGet, invoice, "Bearer token.invalido.aqui", http.StatusUnauthorized, "INVALID_TOKEN"},
		{"otro emisor", http.MethodPost, "/api/billing/runs", "Bearer " + signToken(t, testJWTSecret, "admin", "otro-emisor", testExpMin), http.StatusUnauthorized, "INVALID_TOKEN"},
		{"otra clave", http.MethodPost, "/api/billing/runs", "Bearer " + signToken(t, "otra-clave", "admin", testIssuer, testExpMin), http.StatusUnauthorized, "INVALID_TOKEN"},
		{"token vencido", http.MethodGet, invoice, "Bearer " + signToken(t, testJWTSecret, "admin", testIssuer, -5), http.StatusUnauthorized, "INVALID_TOKEN"},
		{"token sin rol", http.MethodGet, invoice, "Bearer " + signToken(t, testJWTSecret, "", testIssuer, testExpMin), http.StatusUnauthorized, "MISSING_ROLE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := callAs(t, f.app, tc.method, tc.path, tc.auth)
			assert.Equal(t, tc.status, status, body)
			if tc.code != "" {
				assert.Contains(t, body, tc.code)
			}
		})
	}
}

// Un cobro rechazado por rol no toca la factura.
func TestAuth_SoporteNoRegistraCobros(t *testing.T) {
	f := newFixture(t)
	f.run(t)
	id := f.onlyInvoiceID(t)

	req := httptest.NewRequest(http.MethodPost, "/api/invoices/"+id+"/payments", nil)
	req.Header.Set("Authorization", tokenForRole(t, "soporte"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	assert.Equal(t, entity.InvoiceStatusPending, f.store.invoices[id].Status)
	assert.Empty(t, f.store.invoices[id].PaymentID)
}

// Los handlers ven al operador y su rol tal como vienen en el token.
func TestAuthMiddleware_CargaOperadorYRol(t *testing.T) {
	app := fiber.New()
	app.Get("/api/whoami",
		apphttp.AuthMiddleware(testJWTSecret, testIssuer),
		apphttp.RequireRole(apphttp.RoleAdmin),
		func(c *fiber.Ctx) error {
			return c.SendString(apphttp.GetUserID(c) + "|" + apphttp.GetRole(c))
		})

	status, body := callAs(t, app, http.MethodGet, "/api/whoami", tokenForRole(t, apphttp.RoleAdmin))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, testOperator+"|admin", body)
}
