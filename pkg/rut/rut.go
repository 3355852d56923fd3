// Package rut contiene utilidades para el RUT chileno (formato NNNNNNNN-D,
// opcionalmente con puntos separadores de miles).
package rut

import (
	"fmt"
	"strings"
	"unicode"
)

// Dividir separa un RUT en su parte numérica y su dígito verificador.
// Acepta "76.543.210-K" o "76543210-K"; los puntos se descartan.
// Es la validación dura previa al workflow: un RUT que no divide en
// exactamente dos partes no vacías es un error de entrada, no recuperable.
func Dividir(s string) (base, dv string, err error) {
	limpio := strings.ReplaceAll(strings.TrimSpace(s), ".", "")
	partes := strings.Split(limpio, "-")
	if len(partes) != 2 || partes[0] == "" || partes[1] == "" {
		return "", "", fmt.Errorf("rut: formato inválido %q (se espera NNNNNNNN-D)", s)
	}
	for _, r := range partes[0] {
		if !unicode.IsDigit(r) {
			return "", "", fmt.Errorf("rut: parte numérica inválida %q", partes[0])
		}
	}
	return partes[0], partes[1], nil
}

// Normalizar devuelve el RUT en la forma usada para nombres de archivo:
// puntos eliminados y guion reemplazado por guion bajo ("76.543.210-K" -> "76543210_K").
func Normalizar(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, ".", ""), "-", "_")
}

// CalcularDV calcula el dígito verificador módulo 11 para la parte numérica
// de un RUT. Los pesos 2..7 se aplican cíclicamente desde el dígito menos
// significativo. Resto 11 -> '0', resto 10 -> 'K'.
func CalcularDV(base string) (byte, error) {
	if base == "" {
		return 0, fmt.Errorf("rut: parte numérica vacía")
	}
	suma := 0
	peso := 2
	for i := len(base) - 1; i >= 0; i-- {
		c := base[i]
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("rut: dígito inválido %q", string(c))
		}
		suma += int(c-'0') * peso
		peso++
		if peso > 7 {
			peso = 2
		}
	}
	switch resto := 11 - (suma % 11); resto {
	case 11:
		return '0', nil
	case 10:
		return 'K', nil
	default:
		return byte('0' + resto), nil
	}
}

// ValidarDV verifica el dígito verificador de un RUT completo.
// Acepta 'k' minúscula como equivalente de 'K'.
func ValidarDV(s string) error {
	base, dv, err := Dividir(s)
	if err != nil {
		return err
	}
	if len(dv) != 1 {
		return fmt.Errorf("rut: dígito verificador inválido %q", dv)
	}
	esperado, err := CalcularDV(base)
	if err != nil {
		return err
	}
	recibido := dv[0]
	if recibido == 'k' {
		recibido = 'K'
	}
	if recibido != esperado {
		return fmt.Errorf("rut: dígito verificador incorrecto para %s: esperado %c, recibido %c",
			base, esperado, dv[0])
	}
	return nil
}
