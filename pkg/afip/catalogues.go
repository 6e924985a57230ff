// Package afip contiene catálogos y cálculos alineados al web service de factura
// electrónica WSFEv1 de AFIP (Argentina).
package afip

// =============================================================================
// Tipos de comprobante (FEParamGetTiposCbte)
// =============================================================================

const (
	CbteFacturaA     = 1
	CbteNotaCreditoA = 3
	CbteFacturaB     = 6
	CbteNotaCreditoB = 8
	CbteFacturaC     = 11
	CbteNotaCreditoC = 13
)

// VoucherTypeNames descripción impresa de cada tipo de comprobante.
var VoucherTypeNames = map[int]string{
	CbteFacturaA:     "FACTURA A",
	CbteNotaCreditoA: "NOTA DE CRÉDITO A",
	CbteFacturaB:     "FACTURA B",
	CbteNotaCreditoB: "NOTA DE CRÉDITO B",
	CbteFacturaC:     "FACTURA C",
	CbteNotaCreditoC: "NOTA DE CRÉDITO C",
}

// VoucherLetter devuelve la letra (A, B, C) del tipo de comprobante.
func VoucherLetter(cbteTipo int) string {
	switch cbteTipo {
	case CbteFacturaA, CbteNotaCreditoA:
		return "A"
	case CbteFacturaB, CbteNotaCreditoB:
		return "B"
	case CbteFacturaC, CbteNotaCreditoC:
		return "C"
	default:
		return ""
	}
}

// IsTypeC indica comprobantes de monotributistas: no discriminan IVA.
func IsTypeC(cbteTipo int) bool {
	return VoucherLetter(cbteTipo) == "C"
}

// =============================================================================
// Tipos de documento del receptor (FEParamGetTiposDoc)
// =============================================================================

const (
	DocTipoCUIT            = 80
	DocTipoCUIL            = 86
	DocTipoDNI             = 96
	DocTipoConsumidorFinal = 99
)

// =============================================================================
// Conceptos (FEParamGetTiposConcepto)
// =============================================================================

const (
	ConceptoProductos          = 1
	ConceptoServicios          = 2 // exige FchServDesde, FchServHasta y FchVtoPago
	ConceptoProductosServicios = 3
)

// =============================================================================
// Alícuotas de IVA (FEParamGetTiposIva)
// =============================================================================

const (
	AlicuotaIVA0    = 3
	AlicuotaIVA10_5 = 4
	AlicuotaIVA21   = 5
	AlicuotaIVA27   = 6
	AlicuotaIVA5    = 8
	AlicuotaIVA2_5  = 9
)

// MonedaPesos código de moneda AFIP para pesos argentinos.
const MonedaPesos = "PES"

// Resultados de FECAESolicitar.
const (
	ResultadoAprobado  = "A"
	ResultadoRechazado = "R"
	ResultadoParcial   = "P"
)

// Message error u observación devuelta por AFIP.
type Message struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}
