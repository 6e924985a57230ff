package billing_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/facturacion-suscripciones/internal/application/billing"
	"github.com/jhoicas/facturacion-suscripciones/internal/domain"
	"github.com/jhoicas/facturacion-suscripciones/internal/domain/entity"
	"github.com/jhoicas/facturacion-suscripciones/internal/domain/repository"
)

// ──────────────────────────────────────────────────────────────────────────────
// Reloj
// ──────────────────────────────────────────────────────────────────────────────

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t.UTC()} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ──────────────────────────────────────────────────────────────────────────────
// Store en memoria: facturas, ciclos y puntos de venta + runner transaccional
// ──────────────────────────────────────────────────────────────────────────────

type memStore struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	invoices map[string]entity.Invoice
	cycles   map[string]entity.BillingCycle // por subscription_id
	points   map[string]entity.BillingPoint // por "pv/tipo"

	cycleErr    error // error forzado en GetBySubscriptionID
	reserved    int   // cantidad de números reservados
	cycleWrites int
}

func newMemStore() *memStore {
	return &memStore{
		invoices: map[string]entity.Invoice{},
		cycles:   map[string]entity.BillingCycle{},
		points:   map[string]entity.BillingPoint{},
	}
}

func pointKey(pv, tipo int) string { return fmt.Sprintf("%d/%d", pv, tipo) }

func (s *memStore) addPoint(pv, tipo int, next int64) {
	s.points[pointKey(pv, tipo)] = entity.BillingPoint{ID: pointKey(pv, tipo), PuntoVenta: pv, TipoComprobante: tipo, NextNumber: next, IsActive: true}
}

// RunBilling serializa las "transacciones" y restaura el estado si fn falla.
func (s *memStore) RunBilling(ctx context.Context, fn func(
	invoiceRepo repository.InvoiceRepository,
	cycleRepo repository.BillingCycleRepository,
	pointRepo repository.BillingPointRepository,
) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	// Como pgx: una transacción no empieza con el contexto cancelado.
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	invs := copyMap(s.invoices)
	cycles := copyMap(s.cycles)
	points := copyMap(s.points)
	s.mu.Unlock()

	if err := fn(s, s, s); err != nil {
		s.mu.Lock()
		s.invoices, s.cycles, s.points = invs, cycles, points
		s.mu.Unlock()
		return err
	}
	return nil
}

func copyMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// InvoiceRepository

func (s *memStore) Create(_ context.Context, inv *entity.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.invoices {
		if other.Numero == inv.Numero && other.PuntoVenta == inv.PuntoVenta && other.TipoComprobante == inv.TipoComprobante {
			return fmt.Errorf("ux_invoices_numbering: %w", domain.ErrNumberTaken)
		}
		if other.SubscriptionID == inv.SubscriptionID && other.CycleNumber == inv.CycleNumber {
			return fmt.Errorf("ux_invoices_subscription_cycle: %w", domain.ErrDuplicate)
		}
	}
	s.invoices[inv.ID] = *inv
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*entity.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, nil
	}
	return &inv, nil
}

func (s *memStore) FindBySubscriptionCycle(_ context.Context, subscriptionID string, cycleNumber int) (*entity.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.invoices {
		if inv.SubscriptionID == subscriptionID && inv.CycleNumber == cycleNumber {
			out := inv
			return &out, nil
		}
	}
	return nil, nil
}

func (s *memStore) FindOpenBySubscription(_ context.Context, subscriptionID string) (*entity.Invoice, error) {
	list := s.bySubscription(subscriptionID)
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].CAE == "" && list[i].FiscalStatus.IsOpen() {
			return list[i], nil
		}
	}
	return nil, nil
}

func (s *memStore) ListBySubscription(_ context.Context, subscriptionID string, limit, offset int) ([]*entity.Invoice, error) {
	list := s.bySubscription(subscriptionID)
	if offset >= len(list) {
		return nil, nil
	}
	list = list[offset:]
	if len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// bySubscription devuelve las facturas de la suscripción, la más reciente primero.
func (s *memStore) bySubscription(subscriptionID string) []*entity.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.Invoice
	for _, inv := range s.invoices {
		if inv.SubscriptionID == subscriptionID {
			cp := inv
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CycleNumber > out[j].CycleNumber })
	return out
}

func (s *memStore) UpdateAuthorization(_ context.Context, inv *entity.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.invoices[inv.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.CAE != "" {
		return domain.ErrInvoiceAuthorized
	}
	cur.FiscalStatus = inv.FiscalStatus
	cur.CAE = inv.CAE
	cur.CAEExpiration = inv.CAEExpiration
	cur.AFIPErrors = inv.AFIPErrors
	cur.AuthAttempts = inv.AuthAttempts
	cur.IssueDate = inv.IssueDate
	cur.UpdatedAt = inv.UpdatedAt
	s.invoices[inv.ID] = cur
	return nil
}

func (s *memStore) UpdatePayment(_ context.Context, inv *entity.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.invoices[inv.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.CAE == "" {
		return domain.ErrConflict
	}
	cur.Status, cur.PaidAt, cur.PaymentID, cur.UpdatedAt = inv.Status, inv.PaidAt, inv.PaymentID, inv.UpdatedAt
	s.invoices[inv.ID] = cur
	return nil
}

func (s *memStore) MarkOverdue(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, inv := range s.invoices {
		if inv.Status == entity.InvoiceStatusPending && inv.CAE != "" && inv.DueDate.Before(now) {
			inv.Status = entity.InvoiceStatusOverdue
			s.invoices[id] = inv
			n++
		}
	}
	return n, nil
}

// BillingCycleRepository

func (s *memStore) GetBySubscriptionID(_ context.Context, subscriptionID string) (*entity.BillingCycle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cycleErr != nil {
		return nil, s.cycleErr
	}
	c, ok := s.cycles[subscriptionID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *memStore) Save(_ context.Context, c *entity.BillingCycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.cycles[c.SubscriptionID]; ok && c.NextBillingDate.Before(cur.NextBillingDate) {
		return domain.ErrCycleRewind
	}
	s.cycles[c.SubscriptionID] = *c
	s.cycleWrites++
	return nil
}

// BillingPointRepository

func (s *memStore) Ensure(_ context.Context, p *entity.BillingPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.points[pointKey(p.PuntoVenta, p.TipoComprobante)]; !ok {
		s.points[pointKey(p.PuntoVenta, p.TipoComprobante)] = *p
	}
	return nil
}

func (s *memStore) GetByPoint(_ context.Context, pv, tipo int) (*entity.BillingPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.points[pointKey(pv, tipo)]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *memStore) ReserveNumber(_ context.Context, pv, tipo int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.points[pointKey(pv, tipo)]
	if !ok || !p.IsActive {
		return 0, domain.ErrNotFound
	}
	n := p.NextNumber
	p.NextNumber++
	s.points[pointKey(pv, tipo)] = p
	s.reserved++
	return n, nil
}

func (s *memStore) SyncNextNumber(_ context.Context, pv, tipo int, last int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.points[pointKey(pv, tipo)]
	if p.NextNumber < last+1 {
		p.NextNumber = last + 1
	}
	s.points[pointKey(pv, tipo)] = p
	return nil
}

func (s *memStore) allInvoices() []entity.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.Invoice, 0, len(s.invoices))
	for _, inv := range s.invoices {
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Numero < out[j].Numero })
	return out
}

func (s *memStore) cycle(subscriptionID string) *entity.BillingCycle {
	c, _ := s.GetBySubscriptionID(context.Background(), subscriptionID)
	return c
}

// ──────────────────────────────────────────────────────────────────────────────
// Suscripciones y AFIP
// ──────────────────────────────────────────────────────────────────────────────

type fakeSubs struct {
	list []*entity.Subscription
	err  error
}

func (f *fakeSubs) ListActive(context.Context) ([]*entity.Subscription, error) {
	return f.list, f.err
}

func (f *fakeSubs) GetByID(_ context.Context, id string) (*entity.Subscription, error) {
	for _, s := range f.list {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, nil
}

type fakeTax struct {
	mu    sync.Mutex
	calls []billing.AuthorizationRequest
	fn    func(req billing.AuthorizationRequest) (*billing.AuthorizationResult, error)
}

func approveAll() *fakeTax {
	return &fakeTax{}
}

func (f *fakeTax) Authorize(ctx context.Context, req billing.AuthorizationRequest) (*billing.AuthorizationResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	fn := f.fn
	f.mu.Unlock()
	if fn != nil {
		res, err := fn(req)
		if ctxErr := ctx.Err(); ctxErr != nil {
			// La respuesta llegó tarde: el cliente SOAP ya abandonó la llamada.
			return nil, ctxErr
		}
		return res, err
	}
	return &billing.AuthorizationResult{
		Approved:      true,
		CAE:           fmt.Sprintf("7%013d", req.Numero),
		CAEExpiration: req.IssueDate.AddDate(0, 0, 10),
	}, nil
}

func (f *fakeTax) LastAuthorized(context.Context, int, int) (int64, error) { return 0, nil }

func (f *fakeTax) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// ──────────────────────────────────────────────────────────────────────────────
// Armado
// ──────────────────────────────────────────────────────────────────────────────

var t0 = time.Date(2025, 3, 1, 3, 1, 0, 0, time.UTC) // 00:01 en Buenos Aires

func goldPlan() *entity.Plan {
	return &entity.Plan{
		ID: "plan-gold", Type: "gold", Name: "Gold",
		Price: decimal.NewFromInt(1000), Currency: "PES", Frequency: entity.FrequencyMonthly,
	}
}

func validSub(id, provider string) *entity.Subscription {
	return &entity.Subscription{
		ID: id, ProviderID: provider, ProviderName: "Proveedor " + provider,
		PlanType: "gold", IsActive: true, Plan: goldPlan(),
	}
}

type harness struct {
	store     *memStore
	clock     *fakeClock
	tax       *fakeTax
	subs      *fakeSubs
	evaluator *billing.Evaluator
	generator *billing.Generator
	scheduler *billing.Scheduler
}

func newHarness(policy billing.AdvancePolicy, workers int, subs ...*entity.Subscription) *harness {
	store := newMemStore()
	store.addPoint(3, 6, 1)
	clock := newFakeClock(t0)
	tax := approveAll()
	fs := &fakeSubs{list: subs}
	ev := billing.NewEvaluator(store, clock.Now, nil)
	gen := billing.NewGenerator(store, store, store, tax, billing.GeneratorConfig{
		Policy:               policy,
		PuntoVenta:           3,
		TipoComprobante:      6,
		AliquotID:            5,
		DueDays:              10,
		DefaultPaymentMethod: "transferencia",
		AuthTimeout:          time.Second,
	}, clock.Now, nil)
	sch := billing.NewScheduler(fs, store, ev, gen, billing.SchedulerConfig{Workers: workers, SubscriptionTimeout: 5 * time.Second}, clock.Now, nil)
	return &harness{store: store, clock: clock, tax: tax, subs: fs, evaluator: ev, generator: gen, scheduler: sch}
}
