package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jhoicas/facturacion-suscripciones/internal/domain"
	"github.com/jhoicas/facturacion-suscripciones/internal/domain/entity"
	"github.com/jhoicas/facturacion-suscripciones/internal/domain/repository"
	"github.com/jhoicas/facturacion-suscripciones/pkg/afip"
	"github.com/jhoicas/facturacion-suscripciones/pkg/logger"
)

// AdvancePolicy define cuándo avanza el ciclo tras emitir una factura.
type AdvancePolicy string

const (
	// AdvanceOnAuthorized avanza solo con CAE; si AFIP falla la suscripción sigue vencida
	// y la misma factura (mismo número) se reintenta en la próxima corrida.
	AdvanceOnAuthorized AdvancePolicy = "on_authorized"
	// AdvanceOnAttempt avanza siempre y deja el resultado en el estado del ciclo.
	AdvanceOnAttempt AdvancePolicy = "on_attempt"
)

// Outcome resultado de procesar una suscripción vencida.
type Outcome string

const (
	OutcomeAuthorized    Outcome = "authorized"
	OutcomePending       Outcome = "pending_authorization"
	OutcomeRejected      Outcome = "rejected"
	OutcomeAlreadyBilled Outcome = "already_billed"
)

// GenerateResult factura emitida (o existente) y cómo terminó.
type GenerateResult struct {
	Invoice *entity.Invoice
	Cycle   *entity.BillingCycle // ciclo tal como quedó guardado; nil si no se tocó
	Outcome Outcome
}

// GeneratorConfig parámetros de emisión.
type GeneratorConfig struct {
	Policy               AdvancePolicy
	PuntoVenta           int
	TipoComprobante      int
	AliquotID            int
	DueDays              int
	DefaultPaymentMethod string
	AuthTimeout          time.Duration
}

func (c GeneratorConfig) withDefaults() GeneratorConfig {
	if c.Policy == "" {
		c.Policy = AdvanceOnAuthorized
	}
	if c.PuntoVenta == 0 {
		c.PuntoVenta = 1
	}
	if c.TipoComprobante == 0 {
		c.TipoComprobante = afip.CbteFacturaB
	}
	if c.AliquotID == 0 {
		c.AliquotID = afip.AlicuotaIVA21
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = 30 * time.Second
	}
	return c
}

// Generator emite la factura de un período, la autoriza en AFIP y avanza el ciclo.
type Generator struct {
	tx       BillingTxRunner
	invoices repository.InvoiceRepository
	cycles   repository.BillingCycleRepository
	tax      TaxAuthority
	cfg      GeneratorConfig
	now      Clock
	log      *logger.Logger
}

// NewGenerator construye el generador. invoices y cycles se usan para lecturas fuera de transacción.
func NewGenerator(
	tx BillingTxRunner,
	invoices repository.InvoiceRepository,
	cycles repository.BillingCycleRepository,
	tax TaxAuthority,
	cfg GeneratorConfig,
	now Clock,
	log *logger.Logger,
) *Generator {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Generator{
		tx:       tx,
		invoices: invoices,
		cycles:   cycles,
		tax:      tax,
		cfg:      cfg.withDefaults(),
		now:      now,
		log:      log,
	}
}

// CadenceMismatch indica si la frecuencia guardada en el ciclo difiere de la del plan.
func CadenceMismatch(cycle *entity.BillingCycle, plan *entity.Plan) bool {
	if cycle == nil || plan == nil || cycle.Frequency == "" {
		return false
	}
	return cycle.Frequency.Normalize() != plan.Frequency.Normalize()
}

// Generate factura el próximo período de sub. cycle es el ciclo vigente (nil en la primera factura).
//
// Si la suscripción tiene una factura sin CAE del mismo período se reintenta esa misma
// factura; no se reserva otro número.
func (g *Generator) Generate(ctx context.Context, sub *entity.Subscription, cycle *entity.BillingCycle) (*GenerateResult, error) {
	if sub.Plan == nil {
		return nil, fmt.Errorf("suscripción %s (proveedor %s): %w: sin plan", sub.ID, sub.ProviderID, domain.ErrInvalidSubscription)
	}
	log := g.log.With().
		Str("subscription_id", sub.ID).
		Str("provider_id", sub.ProviderID).
		Logger()

	if CadenceMismatch(cycle, sub.Plan) {
		log.Warn().
			Str("cycle_frequency", string(cycle.Frequency)).
			Str("plan_frequency", string(sub.Plan.Frequency.Normalize())).
			Msg("cadence_mismatch: se usa la frecuencia del plan")
	}
	target := entity.NextCycleNumber(cycle)

	// ── 1. Reanudar factura abierta (sin CAE) ─────────────────────────────────
	open, err := g.invoices.FindOpenBySubscription(ctx, sub.ID)
	if err != nil {
		return nil, g.wrap(sub, "buscar factura abierta", err)
	}
	if open != nil {
		if open.CycleNumber >= target {
			log.Info().Str("invoice_id", open.ID).Int("cycle_number", open.CycleNumber).
				Msg("reintentando autorización de factura existente del período")
			res, err := g.settle(ctx, open, cycle)
			if err != nil {
				return nil, g.wrap(sub, "reautorizar factura", err)
			}
			return res, nil
		}
		// Factura de un período anterior que quedó sin CAE (avance por intento).
		if _, err := g.settle(ctx, open, cycle); err != nil {
			log.Error().Err(err).Str("invoice_id", open.ID).
				Msg("no se pudo reautorizar factura de un período anterior")
		}
	}

	// ── 2. Armar y persistir la factura en DRAFT ──────────────────────────────
	inv, err := g.buildInvoice(sub, target)
	if err != nil {
		return nil, g.wrap(sub, "armar factura", err)
	}
	err = g.createDraft(ctx, inv)
	if errors.Is(err, domain.ErrDuplicate) {
		return g.alreadyBilled(ctx, sub, cycle, target)
	}
	if err != nil {
		return nil, g.wrap(sub, "guardar factura", err)
	}
	log.Info().
		Str("invoice_id", inv.ID).
		Str("numero", inv.FullNumber()).
		Int("cycle_number", inv.CycleNumber).
		Str("total", inv.Amount.StringFixed(2)).
		Msg("factura creada")

	// ── 3. Autorizar y avanzar ciclo ──────────────────────────────────────────
	res, err := g.settle(ctx, inv, cycle)
	if err != nil {
		return nil, g.wrap(sub, "autorizar factura", err)
	}
	return res, nil
}

// maxNumberingRetries veces que se adelanta la numeración ante un número ya usado.
const maxNumberingRetries = 3

// createDraft reserva número y guarda inv en una transacción. Si el número ya lo tiene
// otra factura (punto de venta atrasado respecto de invoices) adelanta el punto y reintenta.
func (g *Generator) createDraft(ctx context.Context, inv *entity.Invoice) error {
	for attempt := 0; ; attempt++ {
		err := g.tx.RunBilling(ctx, func(
			invoiceRepo repository.InvoiceRepository,
			_ repository.BillingCycleRepository,
			pointRepo repository.BillingPointRepository,
		) error {
			numero, err := pointRepo.ReserveNumber(ctx, inv.PuntoVenta, inv.TipoComprobante)
			if err != nil {
				return fmt.Errorf("reservar número: %w", err)
			}
			inv.Numero = numero
			return invoiceRepo.Create(ctx, inv)
		})
		if !errors.Is(err, domain.ErrNumberTaken) {
			return err
		}

		taken := inv.Numero
		g.log.Warn().Err(err).
			Str("subscription_id", inv.SubscriptionID).
			Int("punto_venta", inv.PuntoVenta).
			Int("tipo_comprobante", inv.TipoComprobante).
			Int64("numero", taken).
			Int("attempt", attempt+1).
			Msg("número de comprobante ya usado, se adelanta la numeración")
		if attempt >= maxNumberingRetries {
			return fmt.Errorf("%w: numeración del punto %d tipo %d ocupada: %w",
				domain.ErrConflict, inv.PuntoVenta, inv.TipoComprobante, err)
		}
		err = g.tx.RunBilling(ctx, func(_ repository.InvoiceRepository, _ repository.BillingCycleRepository, pointRepo repository.BillingPointRepository) error {
			return pointRepo.SyncNextNumber(ctx, inv.PuntoVenta, inv.TipoComprobante, taken)
		})
		if err != nil {
			return fmt.Errorf("adelantar numeración: %w", err)
		}
	}
}

// Reauthorize reintenta manualmente la autorización de una factura sin CAE.
func (g *Generator) Reauthorize(ctx context.Context, invoiceID string) (*GenerateResult, error) {
	inv, err := g.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("obtener factura: %w", err)
	}
	if inv == nil {
		return nil, domain.ErrNotFound
	}
	if inv.IsAuthorized() {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvoiceAuthorized, inv.FullNumber())
	}
	cycle, err := g.cycles.GetBySubscriptionID(ctx, inv.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("obtener ciclo: %w", err)
	}
	return g.settle(ctx, inv, cycle)
}

// buildInvoice arma la factura del período target a partir del plan vigente.
func (g *Generator) buildInvoice(sub *entity.Subscription, target int) (*entity.Invoice, error) {
	now := g.now()
	plan := entity.SnapshotOf(sub.Plan)
	amounts, err := afip.ComputeAmounts(plan.Price, g.cfg.AliquotID, g.cfg.TipoComprobante)
	if err != nil {
		return nil, err
	}
	currency := plan.Currency
	if currency == "" {
		currency = afip.MonedaPesos
	}
	method := sub.PaymentMethod
	if method == "" {
		method = g.cfg.DefaultPaymentMethod
	}
	docTipo, docNro := buyerDocument(sub.ProviderTaxID)

	return &entity.Invoice{
		ID:              uuid.New().String(),
		PuntoVenta:      g.cfg.PuntoVenta,
		TipoComprobante: g.cfg.TipoComprobante,
		ProviderID:      sub.ProviderID,
		SubscriptionID:  sub.ID,
		CycleNumber:     target,
		Plan:            plan,
		NetAmount:       amounts.Net,
		VATAmount:       amounts.VAT,
		Amount:          amounts.Total,
		Currency:        currency,
		Status:          entity.InvoiceStatusPending,
		FiscalStatus:    entity.FiscalStatusDraft,
		BillingPeriod: entity.BillingPeriod{
			StartDate: now,
			EndDate:   now.Add(plan.Frequency.Period()),
		},
		IssueDate:      now,
		DueDate:        now.AddDate(0, 0, g.cfg.DueDays),
		PaymentMethod:  method,
		BuyerDocType:   docTipo,
		BuyerDocNumber: docNro,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// buyerDocument devuelve DocTipo/DocNro: CUIT si es válido, si no consumidor final.
func buyerDocument(taxID string) (int, string) {
	if taxID != "" && afip.ValidateCUIT(taxID) == nil {
		return afip.DocTipoCUIT, afip.NormalizeCUIT(taxID)
	}
	return afip.DocTipoConsumidorFinal, "0"
}

// settle autoriza inv en AFIP (fuera de transacción) y persiste el resultado junto con el
// ciclo en una sola transacción. El ciclo solo se toca si inv es la factura del período a facturar.
func (g *Generator) settle(ctx context.Context, inv *entity.Invoice, cycle *entity.BillingCycle) (*GenerateResult, error) {
	now := g.now()
	log := g.log.With().
		Str("invoice_id", inv.ID).
		Str("subscription_id", inv.SubscriptionID).
		Str("provider_id", inv.ProviderID).
		Logger()

	inv.IssueDate = now
	inv.AuthAttempts++

	actx, cancel := context.WithTimeout(ctx, g.cfg.AuthTimeout)
	res, authErr := g.tax.Authorize(actx, g.requestFor(inv))
	cancel()

	var outcome Outcome
	var cycleStatus entity.CycleStatus
	switch {
	case authErr != nil:
		outcome, cycleStatus = OutcomePending, entity.CycleStatusPending
		msgs := []afip.Message{{Code: 0, Msg: authErr.Error()}}
		if err := inv.MarkAuthorizationFailed(entity.FiscalStatusAuthorizationPending, messagesJSON(msgs), now); err != nil {
			return nil, err
		}
		log.Warn().Err(authErr).Msg("AFIP no respondió, la factura queda pendiente de autorización")
	case res == nil || !res.Approved:
		outcome, cycleStatus = OutcomeRejected, entity.CycleStatusFailed
		var msgs []afip.Message
		if res != nil {
			msgs = append(append(msgs, res.Errors...), res.Observations...)
		}
		if err := inv.MarkAuthorizationFailed(entity.FiscalStatusRejected, messagesJSON(msgs), now); err != nil {
			return nil, err
		}
		log.Warn().Str("afip_errors", inv.AFIPErrors).Msg("AFIP rechazó la factura")
	default:
		outcome, cycleStatus = OutcomeAuthorized, entity.CycleStatusActive
		if err := inv.ApplyAuthorization(res.CAE, res.CAEExpiration, now); err != nil {
			return nil, err
		}
		if len(res.Observations) > 0 {
			inv.AFIPErrors = messagesJSON(res.Observations)
		}
	}

	nextCycle, err := g.nextCycle(inv, cycle, outcome, cycleStatus, now)
	if err != nil {
		return nil, err
	}

	err = g.tx.RunBilling(ctx, func(
		invoiceRepo repository.InvoiceRepository,
		cycleRepo repository.BillingCycleRepository,
		_ repository.BillingPointRepository,
	) error {
		if err := invoiceRepo.UpdateAuthorization(ctx, inv); err != nil {
			return err
		}
		if nextCycle != nil {
			return cycleRepo.Save(ctx, nextCycle)
		}
		return nil
	})
	if errors.Is(err, domain.ErrInvoiceAuthorized) {
		log.Warn().Msg("la factura ya fue autorizada por otra ejecución")
		return &GenerateResult{Invoice: inv, Outcome: OutcomeAlreadyBilled}, nil
	}
	if err != nil {
		if outcome == OutcomeAuthorized {
			// CAE otorgado pero no guardado: queda en el log para conciliar.
			log.Error().Err(err).Str("cae", inv.CAE).Str("numero", inv.FullNumber()).
				Msg("CAE obtenido pero no se pudo persistir")
		}
		return nil, fmt.Errorf("guardar autorización: %w", err)
	}

	level := zerolog.InfoLevel
	if outcome != OutcomeAuthorized {
		level = zerolog.WarnLevel
	}
	log.WithLevel(level).
		Str("numero", inv.FullNumber()).
		Str("outcome", string(outcome)).
		Str("fiscal_status", string(inv.FiscalStatus)).
		Str("cae", inv.CAE).
		Int("attempts", inv.AuthAttempts).
		Msg("resultado de autorización")

	return &GenerateResult{Invoice: inv, Cycle: nextCycle, Outcome: outcome}, nil
}

// nextCycle calcula el ciclo a guardar según la política. Devuelve nil si no hay que escribirlo.
func (g *Generator) nextCycle(
	inv *entity.Invoice,
	cycle *entity.BillingCycle,
	outcome Outcome,
	status entity.CycleStatus,
	now time.Time,
) (*entity.BillingCycle, error) {
	if inv.CycleNumber < entity.NextCycleNumber(cycle) {
		// Reintento de un período que el ciclo ya cubre.
		return nil, nil
	}
	advance := outcome == OutcomeAuthorized || g.cfg.Policy == AdvanceOnAttempt
	if !advance {
		if cycle == nil {
			// Primera factura sin CAE: sin ciclo la suscripción sigue vencida.
			return nil, nil
		}
		next := *cycle
		next.Status = status
		next.UpdatedAt = now
		return &next, nil
	}

	var next entity.BillingCycle
	if cycle != nil {
		next = *cycle
	} else {
		next = entity.BillingCycle{
			ID:             uuid.New().String(),
			SubscriptionID: inv.SubscriptionID,
			CreatedAt:      now,
		}
	}
	// El período del ciclo es el de la factura, aunque se autorice días después.
	if err := next.Advance(inv.BillingPeriod.StartDate, inv.Plan.Frequency, inv.CycleNumber, inv.ID, status); err != nil {
		return nil, err
	}
	next.UpdatedAt = now
	return &next, nil
}

// alreadyBilled resuelve una colisión de unicidad: el período ya tiene factura.
// Si esa factura tiene CAE y el ciclo quedó atrás, se repara el ciclo.
func (g *Generator) alreadyBilled(ctx context.Context, sub *entity.Subscription, cycle *entity.BillingCycle, target int) (*GenerateResult, error) {
	existing, err := g.invoices.FindBySubscriptionCycle(ctx, sub.ID, target)
	if err != nil {
		return nil, g.wrap(sub, "buscar factura existente", err)
	}
	if existing == nil {
		// Colisión sin factura del período: no es un duplicado.
		return nil, g.wrap(sub, "buscar factura existente",
			fmt.Errorf("%w: colisión de unicidad sin factura del período %d", domain.ErrConflict, target))
	}
	g.log.Info().
		Str("subscription_id", sub.ID).
		Str("provider_id", sub.ProviderID).
		Int("cycle_number", target).
		Msg("el período ya estaba facturado")
	if !existing.IsAuthorized() {
		return &GenerateResult{Invoice: existing, Outcome: OutcomeAlreadyBilled}, nil
	}

	now := g.now()
	repaired, err := g.nextCycle(existing, cycle, OutcomeAuthorized, entity.CycleStatusActive, now)
	if err != nil || repaired == nil {
		return &GenerateResult{Invoice: existing, Outcome: OutcomeAlreadyBilled}, err
	}
	err = g.tx.RunBilling(ctx, func(_ repository.InvoiceRepository, cycleRepo repository.BillingCycleRepository, _ repository.BillingPointRepository) error {
		return cycleRepo.Save(ctx, repaired)
	})
	if err != nil {
		return nil, g.wrap(sub, "reparar ciclo", err)
	}
	g.log.Warn().Str("subscription_id", sub.ID).Int("cycle_number", repaired.CycleNumber).
		Msg("ciclo reparado a partir de factura autorizada existente")
	return &GenerateResult{Invoice: existing, Cycle: repaired, Outcome: OutcomeAlreadyBilled}, nil
}

func (g *Generator) requestFor(inv *entity.Invoice) AuthorizationRequest {
	aliquot := g.cfg.AliquotID
	if afip.IsTypeC(inv.TipoComprobante) {
		aliquot = 0
	}
	return AuthorizationRequest{
		PuntoVenta:  inv.PuntoVenta,
		CbteTipo:    inv.TipoComprobante,
		Numero:      inv.Numero,
		Concepto:    afip.ConceptoServicios,
		DocTipo:     inv.BuyerDocType,
		DocNro:      inv.BuyerDocNumber,
		IssueDate:   inv.IssueDate,
		ServiceFrom: inv.BillingPeriod.StartDate,
		ServiceTo:   inv.BillingPeriod.EndDate,
		PaymentDue:  inv.DueDate,
		Net:         inv.NetAmount,
		VAT:         inv.VATAmount,
		Total:       inv.Amount,
		AliquotID:   aliquot,
		Currency:    inv.Currency,
	}
}

func (g *Generator) wrap(sub *entity.Subscription, step string, err error) error {
	return fmt.Errorf("suscripción %s (proveedor %s): %s: %w", sub.ID, sub.ProviderID, step, err)
}

func messagesJSON(msgs []afip.Message) string {
	if len(msgs) == 0 {
		return ""
	}
	b, err := json.Marshal(msgs)
	if err != nil {
		return ""
	}
	return string(b)
}
