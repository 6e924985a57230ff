// seed_afip genera el script SQL que da de alta en billing_points los puntos de venta
// habilitados en AFIP, a partir de la respuesta guardada de FEParamGetPtosVenta.
//
// Uso: go run ./cmd/seed_afip [-tipos 6,11] [-desc "Suscripciones"] [ruta/PtosVenta.xml]
// Por defecto lee PtosVenta.xml del directorio actual.
// Escribe: internal/infrastructure/postgres/migrations/002_seed_billing_points.sql
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	infraafip "github.com/jhoicas/facturacion-suscripciones/internal/infrastructure/afip"
	"github.com/jhoicas/facturacion-suscripciones/pkg/afip"
)

func main() {
	tipos := flag.String("tipos", "6", "tipos de comprobante separados por coma (1=A, 6=B, 11=C)")
	desc := flag.String("desc", "Suscripciones", "prefijo de la descripción")
	outName := flag.String("out", "002_seed_billing_points.sql", "nombre del script dentro de migrations/")
	flag.Parse()

	xmlPath := "PtosVenta.xml"
	if flag.NArg() > 0 {
		xmlPath = flag.Arg(0)
	}
	raw, err := os.ReadFile(xmlPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Leer XML: %v\n", err)
		os.Exit(1)
	}

	// ParseResponse resuelve ISO-8859-1 y Windows-1252 declarados en el prólogo.
	root, err := infraafip.ParseResponse(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Decodificar XML: %v\n", err)
		os.Exit(1)
	}
	points, err := infraafip.ParsePointsOfSale(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Puntos de venta: %v\n", err)
		os.Exit(1)
	}

	cbteTipos, err := parseTipos(*tipos)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Tipos: %v\n", err)
		os.Exit(1)
	}

	var active []infraafip.PointOfSale
	for _, p := range points {
		if p.Blocked || p.Deactivated {
			continue
		}
		active = append(active, p)
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Number < active[j].Number })

	moduleRoot := findModuleRoot()
	outPath := filepath.Join(moduleRoot, "internal", "infrastructure", "postgres", "migrations", *outName)
	out, err := os.Create(outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Crear archivo: %v\n", err)
		os.Exit(1)
	}
	defer out.Close()

	out.WriteString("-- Puntos de venta habilitados (AFIP FEParamGetPtosVenta)\n")
	fmt.Fprintf(out, "-- Generado desde %s\n\n", filepath.Base(xmlPath))

	// next_number queda en 1: la API lo alinea con FECompUltimoAutorizado (AFIP_SYNC_NUMBERING).
	rows := 0
	for _, p := range active {
		for _, t := range cbteTipos {
			d := escapeSQL(fmt.Sprintf("%s - %s (%s)", *desc, afip.VoucherTypeNames[t], p.EmisionType))
			out.WriteString("INSERT INTO billing_points (id, punto_venta, tipo_comprobante, next_number, description, is_active)\n")
			fmt.Fprintf(out, "VALUES ('%s', %d, %d, 1, '%s', true)\n", uuid.New(), p.Number, t, d)
			out.WriteString("ON CONFLICT (punto_venta, tipo_comprobante) DO UPDATE SET description = EXCLUDED.description, is_active = true;\n")
			rows++
		}
	}

	fmt.Printf("Generado %s: %d puntos de venta activos (%d omitidos), %d filas\n",
		outPath, len(active), len(points)-len(active), rows)
}

func parseTipos(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("%q no es un número", part)
		}
		if _, ok := afip.VoucherTypeNames[n]; !ok {
			return nil, fmt.Errorf("tipo de comprobante %d desconocido", n)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("ningún tipo de comprobante")
	}
	return out, nil
}

func escapeSQL(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func findModuleRoot() string {
	dir, _ := os.Getwd()
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
