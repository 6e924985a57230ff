// Package pdf implementa la representación impresa de la factura electrónica AFIP
// (RG 4892: código QR obligatorio).
//
// Layout de la página A4:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  EMISOR: Razón social + CUIT │  LETRA │  N° + Fecha         │
//	│  ─────────────────────────────────────────────────────────  │
//	│  Domicilio / Condición IVA / Inicio de actividades           │
//	│  RECEPTOR: proveedor + documento                            │
//	│  PERÍODO: desde / hasta / vencimiento de pago               │
//	│  ─────────────────────────────────────────────────────────  │
//	│  DETALLE: plan | período | neto | IVA | total               │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TOTALES: Neto / IVA / TOTAL                                 │
//	│  ─────────────────────────────────────────────────────────  │
//	│  FOOTER AFIP: QR + CAE + vencimiento del CAE                 │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"context"
	"fmt"
	"strings"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/facturacion-suscripciones/internal/application/billing"
	"github.com/jhoicas/facturacion-suscripciones/internal/domain/entity"
	"github.com/jhoicas/facturacion-suscripciones/pkg/afip"
)

// ── Paleta de colores ─────────────────────────────────────────────────────────

var (
	colorPrimary = &props.Color{Red: 0, Green: 70, Blue: 127}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
	colorWhite   = &props.Color{Red: 255, Green: 255, Blue: 255}
)

const dateLayout = "02/01/2006"

// ── Generator ─────────────────────────────────────────────────────────────────

// MarotoPDFGenerator implementa billing.InvoicePDFGenerator usando Maroto v2.
type MarotoPDFGenerator struct{}

var _ billing.InvoicePDFGenerator = (*MarotoPDFGenerator)(nil)

// NewMarotoPDFGenerator construye el generador.
func NewMarotoPDFGenerator() *MarotoPDFGenerator { return &MarotoPDFGenerator{} }

// GenerateInvoicePDF genera el PDF y devuelve sus bytes. La factura debe tener CAE.
func (g *MarotoPDFGenerator) GenerateInvoicePDF(_ context.Context, inv *entity.Invoice, issuer billing.Issuer) ([]byte, error) {
	if inv == nil || !inv.IsAuthorized() {
		return nil, fmt.Errorf("pdf: la factura no tiene CAE")
	}
	qrURL, err := afip.BuildQRURL(afip.QRInput{
		IssueDate:      inv.IssueDate,
		IssuerCUIT:     issuer.CUIT,
		PuntoVenta:     inv.PuntoVenta,
		CbteTipo:       inv.TipoComprobante,
		Numero:         inv.Numero,
		Total:          inv.Amount,
		Currency:       inv.Currency,
		BuyerDocType:   inv.BuyerDocType,
		BuyerDocNumber: inv.BuyerDocNumber,
		CAE:            inv.CAE,
	})
	if err != nil {
		return nil, fmt.Errorf("pdf: armar QR: %w", err)
	}

	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle("Factura "+inv.FullNumber(), true).
		WithAuthor(issuer.RazonSocial, true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(headerRow(inv, issuer))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(issuerRow(issuer))
	m.AddRows(buyerRow(inv))
	m.AddRows(periodRow(inv))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))

	m.AddRows(tableHeaderRow())
	m.AddRows(detailRow(inv))

	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	m.AddRows(totalsRow(inv))

	m.AddRows(line.NewRow(3))
	m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
	m.AddRows(afipFooterRows(inv, qrURL)...)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generar documento: %w", err)
	}
	return doc.GetBytes(), nil
}

// ── Secciones ─────────────────────────────────────────────────────────────────

// headerRow: razón social + CUIT (izq), letra del comprobante (centro), número y fecha (der).
func headerRow(inv *entity.Invoice, issuer billing.Issuer) core.Row {
	return row.New(20).Add(
		col.New(5).Add(
			text.New(issuer.RazonSocial, props.Text{
				Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1,
			}),
			text.New("CUIT: "+formatCUIT(issuer.CUIT), props.Text{
				Size: 9, Top: 9, Color: colorGray,
			}),
		),
		col.New(2).Add(
			text.New(nonEmpty(afip.VoucherLetter(inv.TipoComprobante), "?"), props.Text{
				Style: fontstyle.Bold, Size: 24, Align: align.Center, Top: 1,
			}),
			text.New(fmt.Sprintf("COD. %02d", inv.TipoComprobante), props.Text{
				Size: 7, Align: align.Center, Top: 13, Color: colorGray,
			}),
		),
		col.New(5).Add(
			text.New(nonEmpty(afip.VoucherTypeNames[inv.TipoComprobante], "COMPROBANTE"), props.Text{
				Style: fontstyle.Bold, Size: 8, Align: align.Right, Color: colorPrimary, Top: 1,
			}),
			text.New("N° "+inv.FullNumber(), props.Text{
				Style: fontstyle.Bold, Size: 12, Align: align.Right, Top: 7,
			}),
			text.New("Fecha de emisión: "+inv.IssueDate.Format(dateLayout), props.Text{
				Size: 8, Align: align.Right, Top: 14, Color: colorGray,
			}),
		),
	)
}

// issuerRow: domicilio, condición frente al IVA e inicio de actividades.
func issuerRow(issuer billing.Issuer) core.Row {
	return row.New(12).Add(
		col.New(12).Add(
			text.New("DATOS DEL EMISOR", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
			text.New(fmt.Sprintf("Domicilio: %s   |   Condición IVA: %s   |   Inicio de actividades: %s",
				nonEmpty(issuer.Domicilio, "-"),
				nonEmpty(issuer.CondicionIVA, "-"),
				nonEmpty(issuer.InicioActividades, "-"),
			), props.Text{Size: 8, Top: 7, Color: colorGray}),
		),
	)
}

// buyerRow: proveedor del marketplace que recibe la factura.
func buyerRow(inv *entity.Invoice) core.Row {
	doc := "Consumidor final"
	if inv.BuyerDocType == afip.DocTipoCUIT {
		doc = "CUIT: " + formatCUIT(inv.BuyerDocNumber)
	} else if inv.BuyerDocNumber != "" && inv.BuyerDocNumber != "0" {
		doc = fmt.Sprintf("Doc. (%d): %s", inv.BuyerDocType, inv.BuyerDocNumber)
	}
	return row.New(14).Add(
		col.New(12).Add(
			text.New("RECEPTOR", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
			text.New("Proveedor "+inv.ProviderID, props.Text{
				Style: fontstyle.Bold, Size: 10, Top: 6,
			}),
			text.New(fmt.Sprintf("%s   |   Suscripción: %s   |   Forma de pago: %s",
				doc, inv.SubscriptionID, nonEmpty(inv.PaymentMethod, "-"),
			), props.Text{Size: 8, Top: 12, Color: colorGray}),
		),
	)
}

// periodRow: período de servicio facturado y vencimiento de pago.
func periodRow(inv *entity.Invoice) core.Row {
	return row.New(8).Add(
		col.New(12).Add(
			text.New(fmt.Sprintf("Período facturado desde: %s   hasta: %s   |   Vto. para el pago: %s",
				inv.BillingPeriod.StartDate.Format(dateLayout),
				inv.BillingPeriod.EndDate.Format(dateLayout),
				inv.DueDate.Format(dateLayout),
			), props.Text{Size: 8, Top: 2}),
		),
	)
}

// tableHeaderRow: cabecera de la tabla de detalle.
func tableHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 8, Align: a,
			Color: colorWhite, Top: 2, Left: 1, Right: 1,
		}))
	}
	return row.New(8).WithStyle(&props.Cell{BackgroundColor: colorPrimary}).Add(
		h("Cant.", 1, align.Center),
		h("Descripción", 5, align.Left),
		h("Neto", 2, align.Right),
		h("IVA", 2, align.Right),
		h("Subtotal", 2, align.Right),
	)
}

// detailRow: una sola línea, el plan del período.
func detailRow(inv *entity.Invoice) core.Row {
	desc := fmt.Sprintf("Suscripción %s (%s) - período %d",
		nonEmpty(inv.Plan.Name, inv.Plan.Type), inv.Plan.Frequency, inv.CycleNumber)
	return row.New(7).Add(
		col.New(1).Add(text.New("1", props.Text{Size: 8, Align: align.Center, Top: 1})),
		col.New(5).Add(text.New(desc, props.Text{Size: 8, Align: align.Left, Top: 1, Left: 1})),
		col.New(2).Add(text.New(formatMoney(inv.NetAmount), props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1})),
		col.New(2).Add(text.New(formatMoney(inv.VATAmount), props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1})),
		col.New(2).Add(text.New(formatMoney(inv.Amount), props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1})),
	)
}

// totalsRow: bloque de totales alineado a la derecha. Los comprobantes C no discriminan IVA.
func totalsRow(inv *entity.Invoice) core.Row {
	label := func(s string, top float64) core.Component {
		return text.New(s, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right, Right: 2, Top: top})
	}
	value := func(s string, top float64) core.Component {
		return text.New(s, props.Text{Size: 9, Align: align.Right, Right: 1, Top: top})
	}
	grand := func(s string, top float64) core.Component {
		return text.New(s, props.Text{Style: fontstyle.Bold, Size: 10, Align: align.Right, Color: colorPrimary, Right: 1, Top: top})
	}

	labels := col.New(3)
	values := col.New(3)
	if afip.IsTypeC(inv.TipoComprobante) {
		labels.Add(label("Subtotal:", 2), grand("TOTAL:", 9))
		values.Add(value(formatMoney(inv.Amount), 2), grand(formatMoney(inv.Amount), 9))
	} else {
		labels.Add(label("Importe neto gravado:", 2), label("IVA 21%:", 8), grand("TOTAL:", 15))
		values.Add(value(formatMoney(inv.NetAmount), 2), value(formatMoney(inv.VATAmount), 8), grand(formatMoney(inv.Amount), 15))
	}
	return row.New(24).Add(col.New(6), labels, values)
}

// afipFooterRows: QR de AFIP, CAE y su vencimiento.
func afipFooterRows(inv *entity.Invoice, qrURL string) []core.Row {
	caeVto := "-"
	if inv.CAEExpiration != nil {
		caeVto = inv.CAEExpiration.Format(dateLayout)
	}
	return []core.Row{
		row.New(40).Add(
			col.New(3).Add(code.NewQr(qrURL, props.Rect{Percent: 95, Center: true})),
			col.New(9).Add(
				text.New("Comprobante autorizado", props.Text{
					Style: fontstyle.Bold, Size: 10, Top: 4, Left: 3, Color: colorPrimary,
				}),
				text.New("CAE N°: "+inv.CAE, props.Text{
					Style: fontstyle.Bold, Size: 9, Top: 12, Left: 3,
				}),
				text.New("Fecha de Vto. de CAE: "+caeVto, props.Text{
					Size: 9, Top: 18, Left: 3,
				}),
				text.New("Esta factura puede verificarse escaneando el código QR en el sitio de AFIP.", props.Text{
					Size: 7, Top: 28, Left: 3, Color: colorGray,
				}),
			),
		),
	}
}

// ── helpers ───────────────────────────────────────────────────────────────────

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

// formatMoney formatea con separador de miles "." y decimales ",".
// Ej: 1210.5 → "$ 1.210,50"
func formatMoney(d decimal.Decimal) string {
	s := d.StringFixed(2)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, _ := strings.Cut(s, ".")
	n := len(intPart)
	buf := make([]byte, 0, n+n/3)
	for i, c := range []byte(intPart) {
		if i > 0 && (n-i)%3 == 0 {
			buf = append(buf, '.')
		}
		buf = append(buf, c)
	}
	return "$ " + sign + string(buf) + "," + frac
}

// formatCUIT lleva un CUIT de 11 dígitos a XX-XXXXXXXX-X.
func formatCUIT(s string) string {
	var d []byte
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			d = append(d, s[i])
		}
	}
	if len(d) != 11 {
		return s
	}
	return string(d[:2]) + "-" + string(d[2:10]) + "-" + string(d[10:])
}
