// Package afip implementa el cliente SOAP del web service de factura electrónica
// WSFEv1 de AFIP y un simulador para desarrollo local.
package afip

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"golang.org/x/text/encoding/charmap"

	"github.com/jhoicas/facturacion-suscripciones/internal/application/billing"
	"github.com/jhoicas/facturacion-suscripciones/pkg/afip"
)

// ── Constantes de entorno ──────────────────────────────────────────────────────

const (
	// EnvDev no llama a AFIP: se usa el Simulator.
	EnvDev = "dev"
	// EnvHomo es el ambiente de homologación de AFIP.
	EnvHomo = "homo"
	// EnvProd es el ambiente de producción de AFIP.
	EnvProd = "prod"

	wsfeURLHomo = "https://wswhomo.afip.gov.ar/wsfev1/service.asmx"
	wsfeURLProd = "https://servicios1.afip.gov.ar/wsfev1/service.asmx"

	soapNS = "http://schemas.xmlsoap.org/soap/envelope/"
	wsfeNS = "http://ar.gov.afip.dif.FEV1/"

	afipDate = "20060102"
)

// URLFor devuelve el endpoint WSFEv1 del ambiente.
func URLFor(env string) (string, error) {
	switch env {
	case EnvHomo:
		return wsfeURLHomo, nil
	case EnvProd:
		return wsfeURLProd, nil
	default:
		return "", fmt.Errorf("wsfe: ambiente desconocido %q (usar 'homo' o 'prod')", env)
	}
}

// Credentials ticket de acceso obtenido del WSAA para el servicio wsfe.
type Credentials struct {
	Token string
	Sign  string
	CUIT  string
}

// WSFEClient implementa billing.TaxAuthority contra el WS SOAP de AFIP.
type WSFEClient struct {
	url        string
	creds      Credentials
	httpClient *http.Client
}

var _ billing.TaxAuthority = (*WSFEClient)(nil)

// NewWSFEClient construye el cliente. timeout acota cada llamada HTTP; el contexto
// de cada operación puede acotarla aún más.
func NewWSFEClient(url string, creds Credentials, timeout time.Duration) *WSFEClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &WSFEClient{
		url:        url,
		creds:      creds,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ── Envelope ──────────────────────────────────────────────────────────────────

// newEnvelope arma soap:Envelope/soap:Body/ar:<operation> con el bloque Auth.
func (c *WSFEClient) newEnvelope(operation string) (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	env := doc.CreateElement("soap:Envelope")
	env.CreateAttr("xmlns:soap", soapNS)
	env.CreateAttr("xmlns:ar", wsfeNS)
	env.CreateElement("soap:Header")
	op := env.CreateElement("soap:Body").CreateElement("ar:" + operation)

	auth := op.CreateElement("ar:Auth")
	auth.CreateElement("ar:Token").SetText(c.creds.Token)
	auth.CreateElement("ar:Sign").SetText(c.creds.Sign)
	auth.CreateElement("ar:Cuit").SetText(digitsOnly(c.creds.CUIT))
	return doc, op
}

func text(parent *etree.Element, tag, value string) {
	parent.CreateElement("ar:" + tag).SetText(value)
}

// buildCAERequest arma FECAESolicitar con un único detalle.
func (c *WSFEClient) buildCAERequest(req billing.AuthorizationRequest) *etree.Document {
	doc, op := c.newEnvelope("FECAESolicitar")
	feReq := op.CreateElement("ar:FeCAEReq")

	cab := feReq.CreateElement("ar:FeCabReq")
	text(cab, "CantReg", "1")
	text(cab, "PtoVta", strconv.Itoa(req.PuntoVenta))
	text(cab, "CbteTipo", strconv.Itoa(req.CbteTipo))

	det := feReq.CreateElement("ar:FeDetReq").CreateElement("ar:FECAEDetRequest")
	numero := strconv.FormatInt(req.Numero, 10)
	text(det, "Concepto", strconv.Itoa(req.Concepto))
	text(det, "DocTipo", strconv.Itoa(req.DocTipo))
	text(det, "DocNro", docNumber(req.DocNro))
	text(det, "CbteDesde", numero)
	text(det, "CbteHasta", numero)
	text(det, "CbteFch", req.IssueDate.Format(afipDate))
	text(det, "ImpTotal", req.Total.StringFixed(2))
	text(det, "ImpTotConc", "0.00")
	text(det, "ImpNeto", req.Net.StringFixed(2))
	text(det, "ImpOpEx", "0.00")
	text(det, "ImpTrib", "0.00")
	text(det, "ImpIVA", req.VAT.StringFixed(2))
	if req.Concepto != afip.ConceptoProductos {
		text(det, "FchServDesde", req.ServiceFrom.Format(afipDate))
		text(det, "FchServHasta", req.ServiceTo.Format(afipDate))
		text(det, "FchVtoPago", req.PaymentDue.Format(afipDate))
	}
	currency := req.Currency
	if currency == "" {
		currency = afip.MonedaPesos
	}
	text(det, "MonId", currency)
	text(det, "MonCotiz", "1")

	// Los comprobantes C no informan alícuotas.
	if req.AliquotID != 0 {
		alic := det.CreateElement("ar:Iva").CreateElement("ar:AlicIva")
		text(alic, "Id", strconv.Itoa(req.AliquotID))
		text(alic, "BaseImp", req.Net.StringFixed(2))
		text(alic, "Importe", req.VAT.StringFixed(2))
	}
	return doc
}

// ── Operaciones ───────────────────────────────────────────────────────────────

// Authorize solicita el CAE (FECAESolicitar). Un rechazo de AFIP no es error.
func (c *WSFEClient) Authorize(ctx context.Context, req billing.AuthorizationRequest) (*billing.AuthorizationResult, error) {
	root, err := c.call(ctx, "FECAESolicitar", c.buildCAERequest(req))
	if err != nil {
		return nil, err
	}
	result := root.FindElement("//FECAESolicitarResult")
	if result == nil {
		return nil, fmt.Errorf("wsfe: respuesta sin FECAESolicitarResult")
	}

	out := &billing.AuthorizationResult{Errors: messages(result, "Errors", "Err")}
	det := result.FindElement("FeDetResp/FECAEDetResponse")
	if det == nil {
		// Error de cabecera: AFIP no llegó a evaluar el detalle.
		if len(out.Errors) == 0 {
			return nil, fmt.Errorf("wsfe: respuesta sin detalle ni errores")
		}
		return out, nil
	}
	out.Observations = messages(det, "Observaciones", "Obs")

	if childText(det, "Resultado") != afip.ResultadoAprobado {
		return out, nil
	}
	out.CAE = childText(det, "CAE")
	if out.CAE == "" {
		return nil, fmt.Errorf("wsfe: comprobante aprobado sin CAE")
	}
	exp, err := time.ParseInLocation(afipDate, childText(det, "CAEFchVto"), req.IssueDate.Location())
	if err != nil {
		return nil, fmt.Errorf("wsfe: CAEFchVto inválido: %w", err)
	}
	out.Approved = true
	out.CAEExpiration = exp
	return out, nil
}

// LastAuthorized consulta el último número autorizado (FECompUltimoAutorizado).
func (c *WSFEClient) LastAuthorized(ctx context.Context, puntoVenta, cbteTipo int) (int64, error) {
	doc, op := c.newEnvelope("FECompUltimoAutorizado")
	text(op, "PtoVta", strconv.Itoa(puntoVenta))
	text(op, "CbteTipo", strconv.Itoa(cbteTipo))

	root, err := c.call(ctx, "FECompUltimoAutorizado", doc)
	if err != nil {
		return 0, err
	}
	result := root.FindElement("//FECompUltimoAutorizadoResult")
	if result == nil {
		return 0, fmt.Errorf("wsfe: respuesta sin FECompUltimoAutorizadoResult")
	}
	if errs := messages(result, "Errors", "Err"); len(errs) > 0 {
		return 0, fmt.Errorf("wsfe: FECompUltimoAutorizado: %s", joinMessages(errs))
	}
	n, err := strconv.ParseInt(childText(result, "CbteNro"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("wsfe: CbteNro inválido: %w", err)
	}
	return n, nil
}

// PointOfSale punto de venta habilitado (FEParamGetPtosVenta).
type PointOfSale struct {
	Number      int
	EmisionType string
	Blocked     bool
	Deactivated bool
}

// PointsOfSale lista los puntos de venta del CUIT emisor.
func (c *WSFEClient) PointsOfSale(ctx context.Context) ([]PointOfSale, error) {
	doc, _ := c.newEnvelope("FEParamGetPtosVenta")
	root, err := c.call(ctx, "FEParamGetPtosVenta", doc)
	if err != nil {
		return nil, err
	}
	return ParsePointsOfSale(root)
}

// ParsePointsOfSale interpreta la respuesta de FEParamGetPtosVenta. AFIP responde
// con error 602 cuando el CUIT no tiene puntos de venta: se devuelve lista vacía.
func ParsePointsOfSale(root *etree.Element) ([]PointOfSale, error) {
	result := root.FindElement("//FEParamGetPtosVentaResult")
	if result == nil {
		return nil, fmt.Errorf("wsfe: respuesta sin FEParamGetPtosVentaResult")
	}
	if errs := messages(result, "Errors", "Err"); len(errs) > 0 {
		if len(errs) == 1 && errs[0].Code == 602 {
			return nil, nil
		}
		return nil, fmt.Errorf("wsfe: FEParamGetPtosVenta: %s", joinMessages(errs))
	}
	var out []PointOfSale
	for _, pv := range result.FindElements("ResultGet/PtoVenta") {
		n, err := strconv.Atoi(childText(pv, "Nro"))
		if err != nil {
			return nil, fmt.Errorf("wsfe: número de punto de venta inválido: %w", err)
		}
		out = append(out, PointOfSale{
			Number:      n,
			EmisionType: childText(pv, "EmisionTipo"),
			Blocked:     childText(pv, "Bloqueado") == "S",
			Deactivated: childText(pv, "FchBaja") != "" && childText(pv, "FchBaja") != "NULL",
		})
	}
	return out, nil
}

// ── Transporte ────────────────────────────────────────────────────────────────

// call envía el envelope y devuelve la raíz de la respuesta. Un SOAP Fault es error.
func (c *WSFEClient) call(ctx context.Context, operation string, doc *etree.Document) (*etree.Element, error) {
	payload, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("wsfe: serializar envelope: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("wsfe: crear request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "text/xml; charset=utf-8")
	httpReq.Header.Set("SOAPAction", wsfeNS+operation)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("wsfe: timeout o cancelación: %w", ctx.Err())
		}
		return nil, fmt.Errorf("wsfe: llamada HTTP fallida: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // max 1 MB
	if err != nil {
		return nil, fmt.Errorf("wsfe: leer respuesta: %w", err)
	}

	root, err := ParseResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("wsfe: %s (HTTP %d): %w", operation, resp.StatusCode, err)
	}
	return root, nil
}

// ParseResponse parsea un envelope de respuesta y detecta SOAP Fault.
func ParseResponse(raw []byte) (*etree.Element, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charsetReader
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("respuesta SOAP ilegible: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("respuesta SOAP vacía")
	}
	if fault := root.FindElement("//Fault"); fault != nil {
		return nil, fmt.Errorf("SOAP Fault [%s]: %s", childText(fault, "faultcode"), childText(fault, "faultstring"))
	}
	return root, nil
}

// charsetReader acepta respuestas en ISO-8859-1, habituales en los servicios de AFIP.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(label) {
	case "", "utf-8", "utf8":
		return input, nil
	case "iso-8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1.NewDecoder().Reader(input), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(input), nil
	default:
		return nil, fmt.Errorf("charset no soportado: %s", label)
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func childText(e *etree.Element, tag string) string {
	if c := e.SelectElement(tag); c != nil {
		return strings.TrimSpace(c.Text())
	}
	return ""
}

// messages lee listas Errors/Err u Observaciones/Obs con Code y Msg.
func messages(parent *etree.Element, list, item string) []afip.Message {
	l := parent.SelectElement(list)
	if l == nil {
		return nil
	}
	var out []afip.Message
	for _, e := range l.SelectElements(item) {
		code, _ := strconv.Atoi(childText(e, "Code"))
		out = append(out, afip.Message{Code: code, Msg: childText(e, "Msg")})
	}
	return out
}

func joinMessages(msgs []afip.Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, fmt.Sprintf("[%d] %s", m.Code, m.Msg))
	}
	return strings.Join(parts, "; ")
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// docNumber normaliza el documento del receptor; consumidor final se informa como 0.
func docNumber(s string) string {
	d := digitsOnly(s)
	if d == "" {
		return "0"
	}
	return d
}
