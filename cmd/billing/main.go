// billing ejecuta una corrida de facturación fuera del scheduler (cron del sistema,
// recuperación tras una caída, pruebas en homologación).
//
// Uso:
//
//	go run ./cmd/billing               # una corrida completa
//	go run ./cmd/billing -mark-overdue # además marca facturas vencidas
//	go run ./cmd/billing -timeout 30m
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jhoicas/facturacion-suscripciones/internal/bootstrap"
	"github.com/jhoicas/facturacion-suscripciones/internal/infrastructure/postgres"
	"github.com/jhoicas/facturacion-suscripciones/pkg/config"
	"github.com/jhoicas/facturacion-suscripciones/pkg/logger"
)

func main() {
	markOverdue := flag.Bool("mark-overdue", false, "marcar como vencidas las facturas impagas con vencimiento cumplido")
	timeout := flag.Duration("timeout", time.Hour, "tiempo máximo de la corrida")
	flag.Parse()

	if err := run(*markOverdue, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "billing: %v\n", err)
		os.Exit(1)
	}
}

func run(markOverdue bool, timeout time.Duration) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("cargar configuración: %w", err)
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.DB, cfg.Billing.Workers)
	if err != nil {
		return err
	}
	defer pool.Close()

	if _, err := postgres.Migrate(ctx, pool); err != nil {
		return err
	}

	b, err := bootstrap.Build(ctx, cfg, pool, log)
	if err != nil {
		return err
	}

	summary, err := b.Scheduler.RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("corrida %s: total=%d facturadas=%d pendientes=%d rechazadas=%d ya_facturadas=%d al_dia=%d omitidas=%d sin_ciclo=%d errores=%d\n",
		summary.RunID, summary.Total, summary.Invoiced, summary.Pending, summary.Rejected,
		summary.AlreadyBilled, summary.NotDue, summary.Skipped, summary.LookupErrors, summary.Failed)

	if markOverdue {
		n, err := b.Scheduler.MarkOverdue(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("facturas vencidas: %d\n", n)
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%d suscripciones con error", summary.Failed)
	}
	return nil
}
