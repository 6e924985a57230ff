package afip

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jhoicas/facturacion-suscripciones/internal/application/billing"
	"github.com/jhoicas/facturacion-suscripciones/pkg/afip"
)

// Simulator reemplaza a AFIP en APP_ENV=dev. Aprueba todo comprobante con número
// mayor al último autorizado y devuelve un CAE determinístico de 14 dígitos.
type Simulator struct {
	mu   sync.Mutex
	last map[[2]int]int64
}

var _ billing.TaxAuthority = (*Simulator)(nil)

// NewSimulator crea el simulador sin comprobantes autorizados.
func NewSimulator() *Simulator {
	return &Simulator{last: make(map[[2]int]int64)}
}

// Authorize aprueba el comprobante salvo número repetido o importes negativos.
func (s *Simulator) Authorize(ctx context.Context, req billing.AuthorizationRequest) (*billing.AuthorizationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := [2]int{req.PuntoVenta, req.CbteTipo}
	if req.Numero <= s.last[key] {
		return &billing.AuthorizationResult{Errors: []afip.Message{{
			Code: 10016,
			Msg:  fmt.Sprintf("El numero o fecha del comprobante no se corresponde con el proximo a autorizar. Consultar metodo FECompUltimoAutorizado (%d).", s.last[key]),
		}}}, nil
	}
	if req.Total.IsNegative() || req.Net.IsNegative() {
		return &billing.AuthorizationResult{Errors: []afip.Message{{Code: 10048, Msg: "Importes negativos"}}}, nil
	}
	s.last[key] = req.Numero

	return &billing.AuthorizationResult{
		Approved:      true,
		CAE:           fmt.Sprintf("7%s%05d%02d", req.IssueDate.Format("060102"), req.Numero%100000, req.PuntoVenta%100),
		CAEExpiration: req.IssueDate.Add(10 * 24 * time.Hour),
		Observations:  []afip.Message{{Code: 0, Msg: "comprobante simulado, sin validez fiscal"}},
	}, nil
}

// LastAuthorized devuelve el último número aprobado por el simulador.
func (s *Simulator) LastAuthorized(ctx context.Context, puntoVenta, cbteTipo int) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last[[2]int{puntoVenta, cbteTipo}], nil
}
