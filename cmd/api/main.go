// @title        Facturación de Suscripciones API
// @version      1.0
// @description  Facturación recurrente de suscripciones de proveedores con autorización AFIP (WSFEv1).
// @BasePath     /
// @securityDefinitions.apikey  Bearer
// @in                          header
// @name                        Authorization
// @description                 Bearer <token JWT con rol admin>
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	_ "github.com/jhoicas/facturacion-suscripciones/docs"
	"github.com/jhoicas/facturacion-suscripciones/internal/application/auth"
	"github.com/jhoicas/facturacion-suscripciones/internal/bootstrap"
	"github.com/jhoicas/facturacion-suscripciones/internal/infrastructure/postgres"
	httpRouter "github.com/jhoicas/facturacion-suscripciones/internal/interfaces/http"
	"github.com/jhoicas/facturacion-suscripciones/pkg/config"
	"github.com/jhoicas/facturacion-suscripciones/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("afip_env", cfg.AFIP.Env).
		Msg("iniciando aplicación")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB, cfg.Billing.Workers)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	applied, err := postgres.Migrate(ctx, pool)
	if err != nil {
		log.Fatal().Err(err).Msg("migraciones")
	}
	if len(applied) > 0 {
		log.Info().Strs("migrations", applied).Msg("migraciones aplicadas")
	}

	b, err := bootstrap.Build(ctx, cfg, pool, log)
	if err != nil {
		log.Fatal().Err(err).Msg("armado de facturación")
	}

	// Scheduler diario (00:01). Las corridas perdidas con el proceso caído no se recuperan;
	// la siguiente corrida factura todo lo vencido.
	var handle interface{ Stop() context.Context }
	if cfg.Billing.Enabled {
		h, err := b.Scheduler.Start()
		if err != nil {
			log.Fatal().Err(err).Msg("scheduler de facturación")
		}
		handle = h
	} else {
		log.Warn().Msg("scheduler deshabilitado (BILLING_ENABLED=false): solo corridas manuales")
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Minute * 5, // POST /api/billing/runs es síncrono
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "Facturación de Suscripciones API",
	}))

	authUC := auth.NewAuthUseCase([]auth.Operator{{
		Email:        cfg.Auth.AdminEmail,
		PasswordHash: cfg.Auth.AdminPasswordHash,
		Role:         httpRouter.RoleAdmin,
	}}, auth.JWTConfig{
		Secret:     cfg.JWT.Secret,
		ExpMinutes: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		InvoiceUC:   b.InvoiceUC,
		InvoicePDF:  b.PDFUC,
		AuthUC:      authUC,
		Metrics:     b.Registry,
		Log:         log,
		ServiceName: cfg.App.Name,
		JWTSecret:   cfg.JWT.Secret,
		JWTIssuer:   cfg.JWT.Issuer,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	// Stop deja de despachar suscripciones; las que están en proceso terminan dentro de
	// SubscriptionTimeout y guardan su CAE antes de cerrar el pool.
	if handle != nil {
		stopped := handle.Stop()
		select {
		case <-stopped.Done():
		case <-time.After(cfg.Billing.SubscriptionTimeout):
			log.Warn().Msg("la corrida de facturación no terminó a tiempo; se reanuda en la próxima")
		}
	}

	log.Info().Msg("aplicación detenida")
}
