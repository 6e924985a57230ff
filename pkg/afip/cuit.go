package afip

import (
	"fmt"
	"unicode"
)

// pesos para el dígito verificador del CUIT (módulo 11), sobre los 10 primeros dígitos.
var cuitWeights = [10]int{5, 4, 3, 2, 7, 6, 5, 4, 3, 2}

// ValidateCUIT valida longitud y dígito verificador. Acepta "20-40937847-2" o "20409378472".
func ValidateCUIT(cuit string) error {
	digits := extractDigits(cuit)
	if len(digits) != 11 {
		return fmt.Errorf("afip: el CUIT debe tener 11 dígitos, se encontraron %d", len(digits))
	}
	expected, err := ComputeCUITVerificationDigit(string(digits[:10]))
	if err != nil {
		return err
	}
	if digits[10] != expected {
		return fmt.Errorf("afip: dígito verificador del CUIT inválido: esperado %c, recibido %c", expected, digits[10])
	}
	return nil
}

// ComputeCUITVerificationDigit calcula el dígito verificador para los 10 primeros dígitos.
func ComputeCUITVerificationDigit(base string) (byte, error) {
	digits := extractDigits(base)
	if len(digits) < 10 {
		return 0, fmt.Errorf("afip: se requieren 10 dígitos para calcular el verificador, se encontraron %d", len(digits))
	}
	var sum int
	for i, d := range digits[:10] {
		sum += int(d-'0') * cuitWeights[i]
	}
	v := 11 - sum%11
	switch v {
	case 11:
		return '0', nil
	case 10:
		return '9', nil
	default:
		return byte('0' + v), nil
	}
}

// NormalizeCUIT devuelve solo los dígitos del CUIT.
func NormalizeCUIT(cuit string) string {
	return string(extractDigits(cuit))
}

func extractDigits(s string) []byte {
	var out []byte
	for _, r := range s {
		if unicode.IsDigit(r) {
			out = append(out, byte(r))
		}
	}
	return out
}
