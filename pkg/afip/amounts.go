package afip

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var aliquotRates = map[int]decimal.Decimal{
	AlicuotaIVA0:    decimal.Zero,
	AlicuotaIVA10_5: decimal.RequireFromString("0.105"),
	AlicuotaIVA21:   decimal.RequireFromString("0.21"),
	AlicuotaIVA27:   decimal.RequireFromString("0.27"),
	AlicuotaIVA5:    decimal.RequireFromString("0.05"),
	AlicuotaIVA2_5:  decimal.RequireFromString("0.025"),
}

// Amounts importes de un comprobante, redondeados a 2 decimales.
type Amounts struct {
	Net       decimal.Decimal // ImpNeto
	VAT       decimal.Decimal // ImpIVA
	Total     decimal.Decimal // ImpTotal
	AliquotID int             // 0 si el comprobante no discrimina IVA
}

// AliquotRate devuelve la tasa de la alícuota (0.21 para el Id 5).
func AliquotRate(aliquotID int) (decimal.Decimal, bool) {
	r, ok := aliquotRates[aliquotID]
	return r, ok
}

// ComputeAmounts calcula neto, IVA y total a partir del precio neto del plan.
// Los comprobantes C no discriminan IVA: el total es el neto.
func ComputeAmounts(net decimal.Decimal, aliquotID, cbteTipo int) (Amounts, error) {
	if net.IsNegative() {
		return Amounts{}, fmt.Errorf("afip: importe neto negativo: %s", net.String())
	}
	net = net.Round(2)
	if IsTypeC(cbteTipo) {
		return Amounts{Net: net, VAT: decimal.Zero, Total: net}, nil
	}
	rate, ok := AliquotRate(aliquotID)
	if !ok {
		return Amounts{}, fmt.Errorf("afip: alícuota de IVA desconocida: %d", aliquotID)
	}
	vat := net.Mul(rate).Round(2)
	return Amounts{Net: net, VAT: vat, Total: net.Add(vat), AliquotID: aliquotID}, nil
}
