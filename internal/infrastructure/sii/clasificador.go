// Clasificación heurística de las respuestas HTML del portal SII.
//
// El portal no ofrece un contrato estructurado: el éxito o fracaso de cada
// paso se infiere buscando marcadores en HTML semiestructurado. Las
// heurísticas de este archivo se preservan tal cual fueron observadas contra
// el portal real y no deben "mejorarse" sin validarlas en vivo: un falso
// positivo conocido es cualquier página legítima que contenga la palabra
// "Error"/"error" en su contenido.
package sii

import (
	"regexp"
	"strings"
)

// Mensajes por defecto del clasificador.
const (
	MensajeErrorNoEspecificado = "Error no especificado"
	MensajeSesionExpirada      = "La sesión ha expirado"
)

// Expresiones para extraer un mensaje legible de una página de error.
// Se intenta en orden: primer encabezado h1..h6, primer párrafo, primer div.
// Non-greedy y sin DOTALL: el mensaje no cruza saltos de línea.
var (
	reEncabezado = regexp.MustCompile(`<[h][1-6]>(.+?)</[h][1-6]>`)
	reParrafo    = regexp.MustCompile(`<p[^>]*>(.+?)</p>`)
	reDiv        = regexp.MustCompile(`<div[^>]*>(.+?)</div>`)
)

// Frases con que el portal anuncia una sesión vencida.
var frasesSesionExpirada = []string{
	"sesión ha expirado",
	"sesion ha expirado",
	"ha finalizado su sesión",
}

// Clasificacion es el resultado de inspeccionar una respuesta HTML.
type Clasificacion struct {
	Exito   bool
	Mensaje string
}

// Clasificar inspecciona el HTML decodificado de una respuesta y decide si
// el paso fue exitoso. Primer criterio que calza gana:
//
//  1. contiene "Error" o "error" -> falla, con mensaje extraído del primer
//     h1-h6 / p / div, o "Error no especificado";
//  2. contiene alguna frase de sesión vencida -> falla "La sesión ha expirado";
//  3. en cualquier otro caso -> éxito.
func Clasificar(html string) Clasificacion {
	if strings.Contains(html, "Error") || strings.Contains(html, "error") {
		return Clasificacion{Exito: false, Mensaje: extraerMensaje(html)}
	}

	for _, frase := range frasesSesionExpirada {
		if strings.Contains(html, frase) {
			return Clasificacion{Exito: false, Mensaje: MensajeSesionExpirada}
		}
	}

	return Clasificacion{Exito: true}
}

func extraerMensaje(html string) string {
	for _, re := range []*regexp.Regexp{reEncabezado, reParrafo, reDiv} {
		if m := re.FindStringSubmatch(html); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return MensajeErrorNoEspecificado
}
