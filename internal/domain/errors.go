package domain

import "errors"

// Errores de dominio (sin dependencias externas).
var (
	ErrInvalidInput = errors.New("entrada inválida")
	ErrCredencial   = errors.New("credencial inválida")
	ErrServidor     = errors.New("servidor SII desconocido")
)

// Códigos de paso del workflow de folios. Identifican en qué paso del
// portal SII ocurrió una falla.
const (
	PasoLogin          = "login"
	PasoSolicitaFolios = "of_solicita_folios"
	PasoConfirmaFolio  = "of_confirma_folio"
	PasoGeneraFolio    = "of_genera_folio"
	PasoGeneraArchivo  = "of_genera_archivo"
	// CodigoTimeout se usa en lugar del código de paso cuando el request
	// excedió el timeout configurado.
	CodigoTimeout = "timeout"
)

// StepError es el resultado de falla de un paso del workflow: qué paso
// falló (Code) y el mensaje extraído de la respuesta del portal (Message).
// Reemplaza el uso de excepciones para control de flujo: cada paso retorna
// un *StepError nil en caso de éxito.
type StepError struct {
	Code    string
	Message string
	Err     error // causa subyacente (red, timeout), puede ser nil
}

func (e *StepError) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

// Unwrap expone la causa subyacente para errors.Is/As.
func (e *StepError) Unwrap() error { return e.Err }
