package afip_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturacion-suscripciones/internal/application/billing"
	afipws "github.com/jhoicas/facturacion-suscripciones/internal/infrastructure/afip"
	"github.com/jhoicas/facturacion-suscripciones/pkg/afip"
)

const caeAprobado = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <FECAESolicitarResponse xmlns="http://ar.gov.afip.dif.FEV1/">
      <FECAESolicitarResult>
        <FeCabResp><Cuit>30712345671</Cuit><PtoVta>3</PtoVta><CbteTipo>6</CbteTipo><Resultado>A</Resultado></FeCabResp>
        <FeDetResp>
          <FECAEDetResponse>
            <Concepto>2</Concepto><DocTipo>80</DocTipo><DocNro>20409378472</DocNro>
            <CbteDesde>42</CbteDesde><CbteHasta>42</CbteHasta>
            <Resultado>A</Resultado>
            <CAE>76123456789012</CAE>
            <CAEFchVto>20261011</CAEFchVto>
          </FECAEDetResponse>
        </FeDetResp>
      </FECAESolicitarResult>
    </FECAESolicitarResponse>
  </soap:Body>
</soap:Envelope>`

const caeRechazado = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <FECAESolicitarResponse xmlns="http://ar.gov.afip.dif.FEV1/">
      <FECAESolicitarResult>
        <FeCabResp><Resultado>R</Resultado></FeCabResp>
        <FeDetResp>
          <FECAEDetResponse>
            <Resultado>R</Resultado>
            <CAE></CAE>
            <Observaciones>
              <Obs><Code>10015</Code><Msg>El campo DocNro es invalido</Msg></Obs>
            </Observaciones>
          </FECAEDetResponse>
        </FeDetResp>
      </FECAESolicitarResult>
    </FECAESolicitarResponse>
  </soap:Body>
</soap:Envelope>`

const errorCabecera = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <FECAESolicitarResponse xmlns="http://ar.gov.afip.dif.FEV1/">
      <FECAESolicitarResult>
        <Errors><Err><Code>600</Code><Msg>ValidacionDeToken: No validaron las firmas digitales</Msg></Err></Errors>
      </FECAESolicitarResult>
    </FECAESolicitarResponse>
  </soap:Body>
</soap:Envelope>`

const soapFault = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <soap:Fault><faultcode>soap:Server</faultcode><faultstring>Server was unable to process request</faultstring></soap:Fault>
  </soap:Body>
</soap:Envelope>`

const ultimoAutorizado = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <FECompUltimoAutorizadoResponse xmlns="http://ar.gov.afip.dif.FEV1/">
      <FECompUltimoAutorizadoResult><PtoVta>3</PtoVta><CbteTipo>6</CbteTipo><CbteNro>41</CbteNro></FECompUltimoAutorizadoResult>
    </FECompUltimoAutorizadoResponse>
  </soap:Body>
</soap:Envelope>`

type captured struct {
	action string
	body   string
}

func newServer(t *testing.T, status int, response string) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got.action = r.Header.Get("SOAPAction")
		got.body = string(b)
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func newClient(url string) *afipws.WSFEClient {
	return afipws.NewWSFEClient(url, afipws.Credentials{Token: "TKN", Sign: "SGN", CUIT: "30-71234567-1"}, 5*time.Second)
}

func sampleRequest() billing.AuthorizationRequest {
	day := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	return billing.AuthorizationRequest{
		PuntoVenta:  3,
		CbteTipo:    afip.CbteFacturaB,
		Numero:      42,
		Concepto:    afip.ConceptoServicios,
		DocTipo:     afip.DocTipoCUIT,
		DocNro:      "20-40937847-2",
		IssueDate:   day,
		ServiceFrom: day,
		ServiceTo:   day.AddDate(0, 0, 30),
		PaymentDue:  day.AddDate(0, 0, 10),
		Net:         decimal.NewFromInt(1000),
		VAT:         decimal.NewFromInt(210),
		Total:       decimal.NewFromInt(1210),
		AliquotID:   afip.AlicuotaIVA21,
		Currency:    afip.MonedaPesos,
	}
}

func TestAuthorize_Aprobado(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, caeAprobado)

	res, err := newClient(srv.URL).Authorize(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.True(t, res.Approved)
	assert.Equal(t, "76123456789012", res.CAE)
	assert.Equal(t, time.Date(2026, 10, 11, 0, 0, 0, 0, time.UTC), res.CAEExpiration)

	assert.Equal(t, "http://ar.gov.afip.dif.FEV1/FECAESolicitar", got.action)
	for _, frag := range []string{
		"<ar:Token>TKN</ar:Token>",
		"<ar:Cuit>30712345671</ar:Cuit>",
		"<ar:PtoVta>3</ar:PtoVta>",
		"<ar:CbteTipo>6</ar:CbteTipo>",
		"<ar:CbteDesde>42</ar:CbteDesde>",
		"<ar:DocNro>20409378472</ar:DocNro>",
		"<ar:CbteFch>20261001</ar:CbteFch>",
		"<ar:FchServHasta>20261031</ar:FchServHasta>",
		"<ar:ImpTotal>1210.00</ar:ImpTotal>",
		"<ar:ImpIVA>210.00</ar:ImpIVA>",
		"<ar:Id>5</ar:Id>",
		"<ar:MonId>PES</ar:MonId>",
	} {
		assert.Contains(t, got.body, frag, "el envelope debe incluir %s", frag)
	}
}

func TestAuthorize_FacturaCSinAlicuotas(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, caeAprobado)
	req := sampleRequest()
	req.CbteTipo = afip.CbteFacturaC
	req.AliquotID = 0
	req.VAT = decimal.Zero

	_, err := newClient(srv.URL).Authorize(context.Background(), req)
	require.NoError(t, err)
	assert.NotContains(t, got.body, "AlicIva", "los comprobantes C no informan IVA")
}

func TestAuthorize_RechazoNoEsError(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, caeRechazado)

	res, err := newClient(srv.URL).Authorize(context.Background(), sampleRequest())
	require.NoError(t, err, "un rechazo es una respuesta válida")
	assert.False(t, res.Approved)
	assert.Empty(t, res.CAE)
	require.Len(t, res.Observations, 1)
	assert.Equal(t, 10015, res.Observations[0].Code)
}

func TestAuthorize_ErrorDeCabecera(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, errorCabecera)

	res, err := newClient(srv.URL).Authorize(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.False(t, res.Approved)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 600, res.Errors[0].Code)
}

func TestAuthorize_SOAPFaultEsError(t *testing.T) {
	srv, _ := newServer(t, http.StatusInternalServerError, soapFault)

	_, err := newClient(srv.URL).Authorize(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Server was unable to process request")
}

func TestAuthorize_RespuestaIlegible(t *testing.T) {
	srv, _ := newServer(t, http.StatusBadGateway, "<html>bad gateway")

	_, err := newClient(srv.URL).Authorize(context.Background(), sampleRequest())
	assert.Error(t, err)
}

func TestAuthorize_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() { close(release); srv.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := newClient(srv.URL).Authorize(ctx, sampleRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestLastAuthorized(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, ultimoAutorizado)

	n, err := newClient(srv.URL).LastAuthorized(context.Background(), 3, afip.CbteFacturaB)
	require.NoError(t, err)
	assert.Equal(t, int64(41), n)
	assert.True(t, strings.HasSuffix(got.action, "FECompUltimoAutorizado"))
	assert.Contains(t, got.body, "<ar:PtoVta>3</ar:PtoVta>")
}

func TestParsePointsOfSale_ISO88591(t *testing.T) {
	raw := []byte("<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>" +
		`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>` +
		`<FEParamGetPtosVentaResponse xmlns="http://ar.gov.afip.dif.FEV1/"><FEParamGetPtosVentaResult><ResultGet>` +
		`<PtoVenta><Nro>3</Nro><EmisionTipo>CAE - Suscripci` + "\xf3" + `n</EmisionTipo><Bloqueado>N</Bloqueado><FchBaja>NULL</FchBaja></PtoVenta>` +
		`<PtoVenta><Nro>4</Nro><EmisionTipo>CAEA</EmisionTipo><Bloqueado>S</Bloqueado><FchBaja>20240101</FchBaja></PtoVenta>` +
		`</ResultGet></FEParamGetPtosVentaResult></FEParamGetPtosVentaResponse></soap:Body></soap:Envelope>`)

	root, err := afipws.ParseResponse(raw)
	require.NoError(t, err)
	pts, err := afipws.ParsePointsOfSale(root)
	require.NoError(t, err)
	require.Len(t, pts, 2)
	assert.Equal(t, 3, pts[0].Number)
	assert.Equal(t, "CAE - Suscripción", pts[0].EmisionType, "el texto se decodifica desde ISO-8859-1")
	assert.False(t, pts[0].Blocked)
	assert.False(t, pts[0].Deactivated)
	assert.True(t, pts[1].Blocked)
	assert.True(t, pts[1].Deactivated)
}

func TestURLFor(t *testing.T) {
	u, err := afipws.URLFor(afipws.EnvHomo)
	require.NoError(t, err)
	assert.Contains(t, u, "wswhomo")

	_, err = afipws.URLFor("staging")
	assert.Error(t, err)
}

func TestSimulator(t *testing.T) {
	sim := afipws.NewSimulator()
	req := sampleRequest()
	req.Numero = 1

	res, err := sim.Authorize(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Approved)
	assert.Len(t, res.CAE, 14)
	assert.Equal(t, req.IssueDate.Add(10*24*time.Hour), res.CAEExpiration)

	again, err := sim.Authorize(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, again.Approved, "un número ya autorizado se rechaza")

	last, err := sim.LastAuthorized(context.Background(), req.PuntoVenta, req.CbteTipo)
	require.NoError(t, err)
	assert.Equal(t, int64(1), last)
}
