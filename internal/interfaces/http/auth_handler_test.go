package http_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jhoicas/facturacion-suscripciones/internal/application/auth"
	"github.com/jhoicas/facturacion-suscripciones/internal/application/dto"
	apphttp "github.com/jhoicas/facturacion-suscripciones/internal/interfaces/http"
	"github.com/jhoicas/facturacion-suscripciones/pkg/jwt"
)

func loginApp(t *testing.T, operators []auth.Operator) *fiber.App {
	t.Helper()
	app := fiber.New()
	apphttp.Router(app, apphttp.RouterDeps{
		AuthUC:    auth.NewAuthUseCase(operators, auth.JWTConfig{Secret: testJWTSecret, ExpMinutes: 15, Issuer: testIssuer}),
		JWTSecret: testJWTSecret,
		JWTIssuer: testIssuer,
	})
	return app
}

func postLogin(t *testing.T, app *fiber.App, body string) (*http.Response, []byte) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func TestLogin_EmiteTokenAdmin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("clave-segura"), bcrypt.MinCost)
	require.NoError(t, err)
	app := loginApp(t, []auth.Operator{{Email: "ops@marketplace.com", PasswordHash: string(hash), Role: apphttp.RoleAdmin}})

	resp, raw := postLogin(t, app, `{"email":"ops@marketplace.com","password":"clave-segura"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var out dto.LoginResponse
	require.NoError(t, json.Unmarshal(raw, &out))
	_, role, err := jwt.Parse(testJWTSecret, testIssuer, out.Token)
	require.NoError(t, err)
	assert.Equal(t, apphttp.RoleAdmin, role)
	assert.Equal(t, 900, out.ExpiresIn)

	resp, _ = postLogin(t, app, `{"email":"ops@marketplace.com","password":"otra"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = postLogin(t, app, `{"email":"ops@marketplace.com"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogin_DeshabilitadoSinOperadores(t *testing.T) {
	app := loginApp(t, nil)
	resp, _ := postLogin(t, app, `{"email":"ops@marketplace.com","password":"clave-segura"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "sin operadores la ruta queda bajo el grupo protegido")
}
