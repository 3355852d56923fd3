package sii

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DebugSink persiste snapshots HTML de cada paso para revisión humana.
// Cada ejecución del workflow recibe un id de sesión propio; los archivos
// quedan como <sessionID>_<n>_<paso>.html con un comentario inicial que
// describe la solicitud. Deshabilitado es un no-op; los errores de escritura
// se registran y nunca interrumpen el workflow.
type DebugSink struct {
	dir       string
	sessionID string
	enabled   bool
	log       zerolog.Logger
}

// NewDebugSink construye el sink. El id de sesión tiene la forma
// YYYYMMDD_HHMMSS_<6 hex> para que los snapshots de una misma corrida
// queden agrupados y ordenados.
func NewDebugSink(dir string, enabled bool, log zerolog.Logger) *DebugSink {
	id := time.Now().Format("20060102_150405") + "_" +
		strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return &DebugSink{dir: dir, sessionID: id, enabled: enabled, log: log}
}

// SessionID devuelve el identificador de esta corrida.
func (d *DebugSink) SessionID() string { return d.sessionID }

// Guardar escribe el snapshot de un paso. info lleva metadatos de la
// solicitud (URL, método, código de respuesta, parámetros).
func (d *DebugSink) Guardar(paso string, html []byte, info map[string]string) {
	if d == nil || !d.enabled {
		return
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		d.log.Warn().Err(err).Msg("crear directorio de debug")
		return
	}

	var sb strings.Builder
	sb.WriteString("<!--\n")
	fmt.Fprintf(&sb, "Fecha: %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "Paso: %s\n", paso)
	claves := make([]string, 0, len(info))
	for k := range info {
		claves = append(claves, k)
	}
	sort.Strings(claves)
	for _, k := range claves {
		fmt.Fprintf(&sb, "%s: %s\n", k, info[k])
	}
	sb.WriteString("-->\n")

	ruta := filepath.Join(d.dir, fmt.Sprintf("%s_%s.html", d.sessionID, paso))
	if err := os.WriteFile(ruta, append([]byte(sb.String()), html...), 0o644); err != nil {
		d.log.Warn().Err(err).Str("paso", paso).Msg("guardar snapshot HTML")
		return
	}
	d.log.Debug().Str("paso", paso).Str("archivo", ruta).Msg("snapshot HTML guardado")
}
