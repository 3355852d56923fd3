// Package storage persiste los CAF descargados en el directorio de folios.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jhoicas/sii-folios-api/internal/domain"
	"github.com/jhoicas/sii-folios-api/pkg/rut"
)

// EscritorCAF escribe cada CAF exactamente una vez bajo un nombre
// determinístico y libre de colisiones (incluye RUT, tipo, rango y timestamp).
type EscritorCAF struct {
	dir string
}

// NuevoEscritorCAF construye el escritor sobre el directorio de folios.
func NuevoEscritorCAF(dir string) *EscritorCAF {
	return &EscritorCAF{dir: dir}
}

// NombreArchivoCAF genera el nombre del archivo. Es una función pura: mismos
// argumentos y mismo timestamp producen siempre el mismo nombre.
func NombreArchivoCAF(rutEmpresa string, r domain.RangoFolios, ts time.Time) string {
	return fmt.Sprintf("CAF_%s_TIPO%s_DESDE%d_HASTA%d_%s.xml",
		rut.Normalizar(rutEmpresa), r.TipoDte, r.Inicial, r.Final,
		ts.Format("20060102_150405"))
}

// Guardar persiste el contenido y devuelve la ruta absoluta del archivo.
// Crea el directorio si no existe.
func (e *EscritorCAF) Guardar(contenido []byte, rutEmpresa string, r domain.RangoFolios, ts time.Time) (ruta, filename string, err error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", "", fmt.Errorf("storage: crear directorio de folios: %w", err)
	}

	filename = NombreArchivoCAF(rutEmpresa, r, ts)
	ruta = filepath.Join(e.dir, filename)
	if err := os.WriteFile(ruta, contenido, 0o644); err != nil {
		return "", "", fmt.Errorf("storage: guardar CAF: %w", err)
	}

	abs, err := filepath.Abs(ruta)
	if err == nil {
		ruta = abs
	}
	return ruta, filename, nil
}
