// Package bootstrap arma el grafo de dependencias de la facturación a partir de la
// configuración. Lo comparten la API y el CLI de corrida única.
package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jhoicas/facturacion-suscripciones/internal/application/billing"
	"github.com/jhoicas/facturacion-suscripciones/internal/domain/entity"
	"github.com/jhoicas/facturacion-suscripciones/internal/domain/repository"
	infraafip "github.com/jhoicas/facturacion-suscripciones/internal/infrastructure/afip"
	"github.com/jhoicas/facturacion-suscripciones/internal/infrastructure/metrics"
	infrapdf "github.com/jhoicas/facturacion-suscripciones/internal/infrastructure/pdf"
	"github.com/jhoicas/facturacion-suscripciones/internal/infrastructure/postgres"
	"github.com/jhoicas/facturacion-suscripciones/pkg/afip"
	"github.com/jhoicas/facturacion-suscripciones/pkg/config"
	"github.com/jhoicas/facturacion-suscripciones/pkg/logger"
)

// Billing componentes listos para usar.
type Billing struct {
	Scheduler *billing.Scheduler
	Generator *billing.Generator
	InvoiceUC *billing.InvoiceUseCase
	PDFUC     *billing.PDFUseCase
	Tax       billing.TaxAuthority
	Issuer    billing.Issuer
	Registry  *prometheus.Registry
}

// NewTaxAuthority devuelve el simulador en dev o el cliente WSFEv1 en homo/prod.
func NewTaxAuthority(cfg config.AFIPConfig) (billing.TaxAuthority, error) {
	if cfg.Env == "" || cfg.Env == infraafip.EnvDev {
		return infraafip.NewSimulator(), nil
	}
	url, err := infraafip.URLFor(cfg.Env)
	if err != nil {
		return nil, err
	}
	if cfg.Token == "" || cfg.Sign == "" {
		return nil, fmt.Errorf("AFIP_TOKEN y AFIP_SIGN son obligatorios en ambiente %s", cfg.Env)
	}
	if err := afip.ValidateCUIT(cfg.CUIT); err != nil {
		return nil, fmt.Errorf("AFIP_CUIT: %w", err)
	}
	return infraafip.NewWSFEClient(url, infraafip.Credentials{Token: cfg.Token, Sign: cfg.Sign, CUIT: cfg.CUIT}, cfg.Timeout), nil
}

// IssuerFrom datos del emisor para QR y PDF.
func IssuerFrom(cfg config.AFIPConfig) billing.Issuer {
	return billing.Issuer{
		CUIT:              cfg.CUIT,
		RazonSocial:       cfg.RazonSocial,
		CondicionIVA:      cfg.CondicionIVA,
		Domicilio:         cfg.Domicilio,
		InicioActividades: cfg.InicioActividades,
	}
}

// SyncNumbering registra el punto de venta configurado y, si se pide, alinea su
// próximo número con el último autorizado en AFIP. Nunca baja la numeración.
func SyncNumbering(ctx context.Context, points repository.BillingPointRepository, tax billing.TaxAuthority, cfg config.AFIPConfig, log *logger.Logger) error {
	if err := points.Ensure(ctx, &entity.BillingPoint{
		PuntoVenta:      cfg.PuntoVenta,
		TipoComprobante: cfg.TipoComprobante,
		NextNumber:      1,
		Description:     fmt.Sprintf("Suscripciones - %s", strings.TrimSpace(afip.VoucherTypeNames[cfg.TipoComprobante])),
		IsActive:        true,
	}); err != nil {
		return err
	}
	if !cfg.SyncNumbering {
		return nil
	}
	last, err := tax.LastAuthorized(ctx, cfg.PuntoVenta, cfg.TipoComprobante)
	if err != nil {
		return fmt.Errorf("consultar último autorizado: %w", err)
	}
	if err := points.SyncNextNumber(ctx, cfg.PuntoVenta, cfg.TipoComprobante, last); err != nil {
		return err
	}
	log.Info().
		Int("punto_venta", cfg.PuntoVenta).
		Int("tipo_comprobante", cfg.TipoComprobante).
		Int64("last_authorized", last).
		Msg("numeración sincronizada con AFIP")
	return nil
}

// Build conecta repositorios PostgreSQL, AFIP y casos de uso.
func Build(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, log *logger.Logger) (*Billing, error) {
	loc, err := cfg.Billing.Location()
	if err != nil {
		return nil, fmt.Errorf("BILLING_TIMEZONE: %w", err)
	}
	tax, err := NewTaxAuthority(cfg.AFIP)
	if err != nil {
		return nil, err
	}

	subsRepo := postgres.NewSubscriptionRepository(pool)
	invoiceRepo := postgres.NewInvoiceRepository(pool)
	cycleRepo := postgres.NewBillingCycleRepository(pool)
	pointRepo := postgres.NewBillingPointRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	if err := SyncNumbering(ctx, pointRepo, tax, cfg.AFIP, log); err != nil {
		return nil, fmt.Errorf("punto de venta: %w", err)
	}

	evaluator := billing.NewEvaluator(cycleRepo, nil, log)
	generator := billing.NewGenerator(txRunner, invoiceRepo, cycleRepo, tax, billing.GeneratorConfig{
		Policy:               billing.AdvancePolicy(cfg.Billing.AdvancePolicy),
		PuntoVenta:           cfg.AFIP.PuntoVenta,
		TipoComprobante:      cfg.AFIP.TipoComprobante,
		AliquotID:            cfg.AFIP.AlicuotaIVAID,
		DueDays:              cfg.Billing.DueDays,
		DefaultPaymentMethod: cfg.Billing.DefaultPaymentMethod,
		AuthTimeout:          cfg.AFIP.Timeout,
	}, nil, log)
	scheduler := billing.NewScheduler(subsRepo, invoiceRepo, evaluator, generator, billing.SchedulerConfig{
		Spec:                cfg.Billing.Cron,
		OverdueSpec:         cfg.Billing.OverdueCron,
		Location:            loc,
		Workers:             cfg.Billing.Workers,
		SubscriptionTimeout: cfg.Billing.SubscriptionTimeout,
	}, nil, log)
	registry := metrics.NewRegistry()
	scheduler.SetObserver(metrics.NewBillingMetrics(registry))

	issuer := IssuerFrom(cfg.AFIP)
	return &Billing{
		Scheduler: scheduler,
		Generator: generator,
		InvoiceUC: billing.NewInvoiceUseCase(invoiceRepo, cycleRepo, generator, scheduler, nil),
		PDFUC:     billing.NewPDFUseCase(invoiceRepo, infrapdf.NewMarotoPDFGenerator(), issuer),
		Tax:       tax,
		Issuer:    issuer,
		Registry:  registry,
	}, nil
}
