package afip

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// QRBaseURL prefijo del código QR obligatorio en la representación impresa (RG 4892/2020).
const QRBaseURL = "https://www.afip.gob.ar/fe/qr/?p="

// QRData campos del JSON codificado en el QR.
type QRData struct {
	Ver        int     `json:"ver"`
	Fecha      string  `json:"fecha"`
	Cuit       int64   `json:"cuit"`
	PtoVta     int     `json:"ptoVta"`
	TipoCmp    int     `json:"tipoCmp"`
	NroCmp     int64   `json:"nroCmp"`
	Importe    float64 `json:"importe"`
	Moneda     string  `json:"moneda"`
	Ctz        float64 `json:"ctz"`
	TipoDocRec int     `json:"tipoDocRec,omitempty"`
	NroDocRec  int64   `json:"nroDocRec,omitempty"`
	TipoCodAut string  `json:"tipoCodAut"`
	CodAut     int64   `json:"codAut"`
}

// QRInput datos de la factura necesarios para el QR.
type QRInput struct {
	IssueDate      time.Time
	IssuerCUIT     string
	PuntoVenta     int
	CbteTipo       int
	Numero         int64
	Total          decimal.Decimal
	Currency       string
	BuyerDocType   int
	BuyerDocNumber string
	CAE            string
}

// BuildQRURL arma la URL del QR: base + base64(JSON).
func BuildQRURL(in QRInput) (string, error) {
	cuit, err := strconv.ParseInt(NormalizeCUIT(in.IssuerCUIT), 10, 64)
	if err != nil {
		return "", fmt.Errorf("afip qr: CUIT emisor inválido: %w", err)
	}
	codAut, err := strconv.ParseInt(in.CAE, 10, 64)
	if err != nil {
		return "", fmt.Errorf("afip qr: CAE inválido: %w", err)
	}
	currency := in.Currency
	if currency == "" {
		currency = MonedaPesos
	}
	data := QRData{
		Ver:        1,
		Fecha:      in.IssueDate.Format("2006-01-02"),
		Cuit:       cuit,
		PtoVta:     in.PuntoVenta,
		TipoCmp:    in.CbteTipo,
		NroCmp:     in.Numero,
		Importe:    in.Total.Round(2).InexactFloat64(),
		Moneda:     currency,
		Ctz:        1,
		TipoCodAut: "E",
		CodAut:     codAut,
	}
	if in.BuyerDocType != 0 && in.BuyerDocType != DocTipoConsumidorFinal {
		data.TipoDocRec = in.BuyerDocType
		if n, err := strconv.ParseInt(NormalizeCUIT(in.BuyerDocNumber), 10, 64); err == nil {
			data.NroDocRec = n
		}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("afip qr: serializar: %w", err)
	}
	return QRBaseURL + base64.StdEncoding.EncodeToString(raw), nil
}
