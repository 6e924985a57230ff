package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/facturacion-suscripciones/internal/domain/entity"
	"github.com/jhoicas/facturacion-suscripciones/internal/domain/repository"
	"github.com/jhoicas/facturacion-suscripciones/pkg/logger"
)

// ErrRunInProgress se devuelve cuando se pide una corrida mientras otra sigue activa.
var ErrRunInProgress = errors.New("ya hay una corrida de facturación en curso")

// SchedulerConfig configuración del disparo diario.
type SchedulerConfig struct {
	Spec                string // cron estándar de 5 campos
	OverdueSpec         string // vacío = sin job de vencimientos
	Location            *time.Location
	Workers             int
	SubscriptionTimeout time.Duration
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.Spec == "" {
		c.Spec = "1 0 * * *"
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.SubscriptionTimeout <= 0 {
		c.SubscriptionTimeout = 60 * time.Second
	}
	return c
}

// RunSummary resultado de una corrida.
type RunSummary struct {
	RunID         string
	StartedAt     time.Time
	FinishedAt    time.Time
	Total         int
	Skipped       int
	NotDue        int
	Invoiced      int // autorizadas
	Pending       int
	Rejected      int
	AlreadyBilled int
	LookupErrors  int // no se pudo leer el ciclo; se reevalúa en la próxima corrida
	Failed        int
}

// Scheduler recorre las suscripciones activas una vez por día y factura las vencidas.
type Scheduler struct {
	subs      repository.SubscriptionRepository
	invoices  repository.InvoiceRepository
	evaluator *Evaluator
	generator *Generator
	cfg       SchedulerConfig
	now       Clock
	log       *logger.Logger
	observer  RunObserver

	running sync.Mutex
}

// NewScheduler construye el scheduler. No arranca nada hasta Start.
func NewScheduler(
	subs repository.SubscriptionRepository,
	invoices repository.InvoiceRepository,
	evaluator *Evaluator,
	generator *Generator,
	cfg SchedulerConfig,
	now Clock,
	log *logger.Logger,
) *Scheduler {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Scheduler{
		subs:      subs,
		invoices:  invoices,
		evaluator: evaluator,
		generator: generator,
		cfg:       cfg.withDefaults(),
		now:       now,
		log:       log,
	}
}

// SetObserver registra quién recibe los resúmenes (métricas). Llamar antes de Start.
func (s *Scheduler) SetObserver(o RunObserver) {
	s.observer = o
}

// Handle controla un scheduler arrancado.
type Handle struct {
	cron   *cron.Cron
	cancel context.CancelFunc
}

// Stop detiene los disparos futuros y cancela el contexto de la corrida en curso: no se
// despachan más suscripciones, pero las que ya están en proceso terminan de facturarse
// (autorización y guardado del CAE). El contexto devuelto termina cuando eso ocurre.
func (h *Handle) Stop() context.Context {
	stopped := h.cron.Stop()
	h.cancel()
	return stopped
}

// Start registra los jobs y arranca el cron. Las corridas perdidas (proceso caído) no se recuperan.
func (s *Scheduler) Start() (*Handle, error) {
	cl := s.log.Cron()
	runCtx, cancel := context.WithCancel(context.Background())
	c := cron.New(
		cron.WithLocation(s.cfg.Location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(s.cfg.Spec, func() { s.runScheduled(runCtx) }); err != nil {
		cancel()
		return nil, fmt.Errorf("billing: spec cron inválido %q: %w", s.cfg.Spec, err)
	}
	if s.cfg.OverdueSpec != "" {
		if _, err := c.AddFunc(s.cfg.OverdueSpec, func() { s.runOverdue(runCtx) }); err != nil {
			cancel()
			return nil, fmt.Errorf("billing: spec cron de vencimientos inválido %q: %w", s.cfg.OverdueSpec, err)
		}
	}
	c.Start()
	s.log.Info().
		Str("spec", s.cfg.Spec).
		Str("timezone", s.cfg.Location.String()).
		Int("workers", s.cfg.Workers).
		Msg("scheduler de facturación iniciado")
	return &Handle{cron: c, cancel: cancel}, nil
}

func (s *Scheduler) runScheduled(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		if errors.Is(err, ErrRunInProgress) {
			s.log.Warn().Msg("disparo omitido: la corrida anterior sigue en curso")
			return
		}
		s.log.Error().Err(err).Msg("corrida de facturación fallida, se reintenta en el próximo disparo")
	}
}

func (s *Scheduler) runOverdue(ctx context.Context) {
	if _, err := s.MarkOverdue(ctx); err != nil {
		s.log.Error().Err(err).Msg("no se pudieron marcar facturas vencidas")
	}
}

// RunOnce ejecuta una corrida completa. Solo devuelve error si no se pudo enumerar
// las suscripciones o si ya hay otra corrida en curso; los fallos por suscripción
// quedan en el resumen. Cancelar ctx deja de despachar suscripciones; las que ya
// empezaron terminan (cada una acotada por SubscriptionTimeout).
func (s *Scheduler) RunOnce(ctx context.Context) (*RunSummary, error) {
	if !s.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.running.Unlock()

	summary := &RunSummary{RunID: uuid.New().String(), StartedAt: s.now()}
	log := s.log.With().Str("run_id", summary.RunID).Logger()

	subs, err := s.subs.ListActive(ctx)
	if err != nil {
		log.Error().Err(err).Msg("no se pudieron listar las suscripciones activas")
		err = fmt.Errorf("listar suscripciones activas: %w", err)
		if s.observer != nil {
			s.observer.ObserveRun(nil, err)
		}
		return nil, err
	}
	summary.Total = len(subs)
	log.Info().Int("subscriptions", len(subs)).Msg("corrida de facturación iniciada")

	if len(subs) > 0 {
		var mu sync.Mutex
		g := new(errgroup.Group)
		g.SetLimit(s.cfg.Workers)
		for _, sub := range subs {
			sub := sub
			if ctx.Err() != nil {
				log.Warn().Err(ctx.Err()).Msg("corrida interrumpida, quedan suscripciones sin procesar")
				break
			}
			g.Go(func() error {
				if ctx.Err() != nil {
					// Cancelada mientras esperaba un worker libre.
					return nil
				}
				step := s.processOne(ctx, sub)
				mu.Lock()
				summary.count(step)
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}

	summary.FinishedAt = s.now()
	log.Info().
		Int("total", summary.Total).
		Int("skipped", summary.Skipped).
		Int("not_due", summary.NotDue).
		Int("invoiced", summary.Invoiced).
		Int("pending", summary.Pending).
		Int("rejected", summary.Rejected).
		Int("already_billed", summary.AlreadyBilled).
		Int("lookup_errors", summary.LookupErrors).
		Int("failed", summary.Failed).
		Dur("duration", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("corrida de facturación finalizada")
	if s.observer != nil {
		s.observer.ObserveRun(summary, nil)
	}
	return summary, nil
}

// stepResult clasificación de una suscripción dentro del resumen.
type stepResult int

const (
	stepSkipped stepResult = iota
	stepNotDue
	stepInvoiced
	stepPending
	stepRejected
	stepAlreadyBilled
	stepLookupError
	stepFailed
)

func (r *RunSummary) count(step stepResult) {
	switch step {
	case stepSkipped:
		r.Skipped++
	case stepNotDue:
		r.NotDue++
	case stepInvoiced:
		r.Invoiced++
	case stepPending:
		r.Pending++
	case stepRejected:
		r.Rejected++
	case stepAlreadyBilled:
		r.AlreadyBilled++
	case stepLookupError:
		r.LookupErrors++
	default:
		r.Failed++
	}
}

// processOne evalúa y, si corresponde, factura una suscripción. Nada de lo que pase
// acá interrumpe a las demás.
func (s *Scheduler) processOne(parent context.Context, sub *entity.Subscription) (step stepResult) {
	defer func() {
		if r := recover(); r != nil {
			ev := s.log.Error().Interface("panic", r)
			if sub != nil {
				ev = ev.Str("subscription_id", sub.ID).Str("provider_id", sub.ProviderID)
			}
			ev.Msg("panic procesando suscripción")
			step = stepFailed
		}
	}()

	// Una suscripción empezada no se corta con la corrida: cortarla entre la respuesta de
	// AFIP y el guardado dejaría un CAE sin registrar.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.cfg.SubscriptionTimeout)
	defer cancel()

	decision := s.evaluator.Evaluate(ctx, sub)
	switch {
	case decision.Skipped:
		return stepSkipped
	case decision.Err != nil:
		// El evaluador ya lo registró; la suscripción no se facturó ni falló al facturar.
		return stepLookupError
	case !decision.Due:
		s.log.Debug().Str("subscription_id", sub.ID).Str("reason", decision.Reason).Msg("suscripción al día")
		return stepNotDue
	}

	res, err := s.generator.Generate(ctx, sub, decision.Cycle)
	if err != nil {
		s.log.Error().Err(err).
			Str("subscription_id", sub.ID).
			Str("provider_id", sub.ProviderID).
			Str("reason", decision.Reason).
			Msg("error facturando suscripción")
		return stepFailed
	}
	switch res.Outcome {
	case OutcomeAuthorized:
		return stepInvoiced
	case OutcomePending:
		return stepPending
	case OutcomeRejected:
		return stepRejected
	default:
		return stepAlreadyBilled
	}
}

// MarkOverdue pasa a OVERDUE las facturas pendientes de cobro con vencimiento cumplido.
func (s *Scheduler) MarkOverdue(ctx context.Context) (int64, error) {
	n, err := s.invoices.MarkOverdue(ctx, s.now())
	if s.observer != nil {
		s.observer.ObserveOverdue(n, err)
	}
	if err != nil {
		return 0, fmt.Errorf("marcar vencidas: %w", err)
	}
	if n > 0 {
		s.log.Info().Int64("invoices", n).Msg("facturas marcadas como vencidas")
	}
	return n, nil
}
