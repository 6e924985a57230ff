package billing

import (
	"context"
	"time"

	"github.com/jhoicas/facturacion-suscripciones/internal/domain/entity"
	"github.com/jhoicas/facturacion-suscripciones/internal/domain/repository"
	"github.com/jhoicas/facturacion-suscripciones/pkg/logger"
)

// Motivos de la decisión del evaluador (se registran en el log y en el resumen).
const (
	ReasonInvalidSubscription = "invalid_subscription"
	ReasonFirstInvoice        = "first_invoice"
	ReasonPeriodElapsed       = "period_elapsed"
	ReasonNotDue              = "not_due"
	ReasonCycleCancelled      = "cycle_cancelled"
	ReasonLookupError         = "lookup_error"
)

// Decision resultado de evaluar una suscripción.
type Decision struct {
	Due     bool
	Skipped bool // suscripción inválida: no se factura ni se reintenta hasta que se corrija
	Reason  string
	Cycle   *entity.BillingCycle // nil si la suscripción nunca fue facturada
	Err     error                // solo con ReasonLookupError
}

// Evaluator decide si una suscripción debe facturarse ahora. No escribe nada.
type Evaluator struct {
	cycles repository.BillingCycleRepository
	now    Clock
	log    *logger.Logger
}

// NewEvaluator construye el evaluador. now puede ser nil (usa time.Now).
func NewEvaluator(cycles repository.BillingCycleRepository, now Clock, log *logger.Logger) *Evaluator {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Evaluator{cycles: cycles, now: now, log: log}
}

// Evaluate aplica las reglas de período:
//   - suscripción inválida: se omite con warning
//   - sin ciclo previo: corresponde la primera factura
//   - con ciclo: corresponde si now >= nextBillingDate
//
// Un error de lectura del ciclo no se propaga: la suscripción no se factura y se reintenta en la próxima corrida.
func (e *Evaluator) Evaluate(ctx context.Context, sub *entity.Subscription) Decision {
	if err := sub.Validate(); err != nil {
		ev := e.log.Warn().Err(err)
		if sub != nil {
			ev = ev.Str("subscription_id", sub.ID).Str("provider_id", sub.ProviderID)
		}
		ev.Msg("suscripción inválida, se omite")
		return Decision{Skipped: true, Reason: ReasonInvalidSubscription}
	}

	cycle, err := e.cycles.GetBySubscriptionID(ctx, sub.ID)
	if err != nil {
		e.log.Error().Err(err).
			Str("subscription_id", sub.ID).
			Str("provider_id", sub.ProviderID).
			Msg("no se pudo leer el ciclo de facturación")
		return Decision{Reason: ReasonLookupError, Err: err}
	}
	if cycle == nil {
		return Decision{Due: true, Reason: ReasonFirstInvoice}
	}
	if cycle.Status == entity.CycleStatusCancelled {
		return Decision{Reason: ReasonCycleCancelled, Cycle: cycle}
	}
	if cycle.IsDue(e.now()) {
		return Decision{Due: true, Reason: ReasonPeriodElapsed, Cycle: cycle}
	}
	return Decision{Reason: ReasonNotDue, Cycle: cycle}
}
