package domain

import "fmt"

// RangoFolios es el rango inclusivo de folios a solicitar junto con el
// tipo de documento tributario electrónico.
type RangoFolios struct {
	Inicial int
	Final   int
	TipoDte string
}

// Validar verifica las invariantes del rango antes de tocar la red.
func (r RangoFolios) Validar() error {
	if r.Inicial <= 0 {
		return fmt.Errorf("%w: folioInicial debe ser positivo", ErrInvalidInput)
	}
	if r.Final < r.Inicial {
		return fmt.Errorf("%w: folioFinal (%d) debe ser >= folioInicial (%d)",
			ErrInvalidInput, r.Final, r.Inicial)
	}
	if r.TipoDte == "" {
		return fmt.Errorf("%w: tipoDte requerido", ErrInvalidInput)
	}
	return nil
}

// CantidadDocumentos calcula cuántos folios abarca el rango. Es la única
// fuente del valor CANT_DOCTOS: los pasos de confirmación y generación la
// llaman por separado para que ambos envíen exactamente el mismo número.
func CantidadDocumentos(inicial, final int) int {
	return final - inicial + 1
}

// Empresa es la identidad de la empresa dividida en parte numérica y
// dígito verificador, derivada una sola vez del RUT formateado.
type Empresa struct {
	Rut string // parte numérica, sin puntos
	Dv  string // dígito verificador
}

// Artefacto es el CAF descargado: bytes crudos del XML más el nombre de
// archivo generado y la ruta donde quedó persistido.
type Artefacto struct {
	Contenido []byte
	Filename  string
	Ruta      string
}
