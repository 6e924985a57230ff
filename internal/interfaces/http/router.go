package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jhoicas/facturacion-suscripciones/internal/application/auth"
	"github.com/jhoicas/facturacion-suscripciones/internal/application/billing"
	"github.com/jhoicas/facturacion-suscripciones/pkg/logger"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	InvoiceUC   *billing.InvoiceUseCase
	InvoicePDF  *billing.PDFUseCase
	AuthUC      *auth.AuthUseCase // nil o sin operadores = sin login local
	Metrics     prometheus.Gatherer
	Log         *logger.Logger
	ServiceName string
	JWTSecret   string
	JWTIssuer   string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": deps.ServiceName})
	})

	// Scrape de Prometheus, público como /health.
	if deps.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api")

	// Login público; debe registrarse antes del grupo protegido.
	if deps.AuthUC != nil && deps.AuthUC.Enabled() {
		authHandler := NewAuthHandler(deps.AuthUC)
		api.Post("/auth/login", authHandler.Login)
	}

	// El resto de /api requiere Bearer Token con rol admin.
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret, deps.JWTIssuer), RequireRole(RoleAdmin))
	h := NewBillingHandler(deps.InvoiceUC, deps.InvoicePDF, deps.Log)

	protected.Post("/billing/runs", h.RunNow)

	subs := protected.Group("/subscriptions")
	subs.Get("/:id/invoices", h.ListSubscriptionInvoices)
	subs.Get("/:id/billing-cycle", h.GetBillingCycle)

	invoices := protected.Group("/invoices")
	invoices.Get("/:id", h.GetInvoice)
	invoices.Get("/:id/pdf", h.DownloadPDF)
	invoices.Post("/:id/authorize", h.Authorize)
	invoices.Post("/:id/payments", h.RegisterPayment)
}
