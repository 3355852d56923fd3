// Package folios implementa el caso de uso de obtención de folios: valida
// la entrada, arma la credencial, ejecuta el workflow contra el portal SII
// y persiste el CAF resultante.
package folios

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/sii-folios-api/internal/domain"
	"github.com/jhoicas/sii-folios-api/internal/infrastructure/sii"
	"github.com/jhoicas/sii-folios-api/internal/infrastructure/storage"
	"github.com/jhoicas/sii-folios-api/pkg/caf"
	"github.com/jhoicas/sii-folios-api/pkg/config"
	"github.com/jhoicas/sii-folios-api/pkg/logger"
	"github.com/jhoicas/sii-folios-api/pkg/rut"
)

// Params es la solicitud ya desempaquetada por el boundary HTTP. CertPath
// apunta al PEM preparado por el llamador (archivo temporal de una sola
// corrida; su limpieza es responsabilidad de quien lo preparó).
type Params struct {
	Rango        domain.RangoFolios
	RutCert      string
	RutEmpresa   string
	CertPath     string
	CertPassword string

	Servidor        string // override opcional del ambiente configurado
	EnableLogging   *bool  // override opcional: silencia el log de esta corrida
	EnableHTMLDebug *bool  // override opcional del toggle configurado
}

// Resultado de una corrida exitosa.
type Resultado struct {
	domain.Artefacto
}

// UseCase orquesta una corrida completa. Cada llamada construye su propio
// cliente SII (cookie jar y credencial propios): corridas concurrentes son
// independientes entre sí.
type UseCase struct {
	cfg      *config.Config
	escritor *storage.EscritorCAF
	log      *logger.Logger
}

// NewUseCase construye el caso de uso.
func NewUseCase(cfg *config.Config, log *logger.Logger) *UseCase {
	return &UseCase{
		cfg:      cfg,
		escritor: storage.NuevoEscritorCAF(cfg.Storage.FoliosPath),
		log:      log,
	}
}

// ObtenerFolios ejecuta el flujo completo y devuelve el CAF persistido.
// Las fallas de validación se reportan antes de cualquier llamada de red.
func (uc *UseCase) ObtenerFolios(ctx context.Context, p Params) (*Resultado, error) {
	zl := uc.log.Zerolog()
	if p.EnableLogging != nil && !*p.EnableLogging {
		zl = zerolog.Nop()
	}

	// Validación dura de entrada: rango y ambos RUT.
	if err := p.Rango.Validar(); err != nil {
		return nil, err
	}
	certBase, certDv, err := rut.Dividir(p.RutCert)
	if err != nil {
		return nil, fmt.Errorf("%w: rutCert: %v", domain.ErrInvalidInput, err)
	}
	empBase, empDv, err := rut.Dividir(p.RutEmpresa)
	if err != nil {
		return nil, fmt.Errorf("%w: rutEmpresa: %v", domain.ErrInvalidInput, err)
	}
	// El dígito verificador no es bloqueante: el portal es quien decide.
	if err := rut.ValidarDV(p.RutEmpresa); err != nil {
		zl.Warn().Err(err).Msg("dígito verificador de rutEmpresa no cuadra")
	}

	servidor := p.Servidor
	if servidor == "" {
		servidor = uc.cfg.SII.Servidor
	}
	if err := (config.SIIConfig{Servidor: servidor}).Validate(); err != nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrServidor, servidor)
	}

	pemBytes, err := os.ReadFile(p.CertPath)
	if err != nil {
		return nil, fmt.Errorf("%w: leer certificado: %v", domain.ErrCredencial, err)
	}
	cred, err := sii.CargarCredencial(pemBytes, p.CertPassword)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCredencial, err)
	}
	nombre := sii.NombreCertificado(pemBytes, p.CertPassword, zl)
	if nombre != "" {
		zl.Info().Str("nombre", nombre).Msg("nombre extraído del certificado")
	}

	debugHabilitado := uc.cfg.Storage.EnableHTMLDebug
	if p.EnableHTMLDebug != nil {
		debugHabilitado = *p.EnableHTMLDebug
	}
	debug := sii.NewDebugSink(uc.cfg.Storage.DebugPath, debugHabilitado, zl)

	cli, err := sii.NuevoCliente(cred, sii.Config{
		Servidor: servidor,
		BaseURL:  uc.cfg.SII.BaseURL,
		LoginURL: uc.cfg.SII.LoginURL,
		Timeout:  uc.cfg.SII.Timeout,
	}, debug, zl.With().Str("sesion", debug.SessionID()).Logger())
	if err != nil {
		return nil, err
	}

	zl.Info().
		Str("sesion", debug.SessionID()).
		Str("servidor", servidor).
		Int("folio_inicial", p.Rango.Inicial).
		Int("folio_final", p.Rango.Final).
		Str("tipo_dte", p.Rango.TipoDte).
		Msg("iniciando obtención de folios")

	contenido, serr := cli.ObtenerFolios(ctx, sii.Solicitud{
		RutCert:    certBase + "-" + certDv,
		Empresa:    domain.Empresa{Rut: empBase, Dv: empDv},
		Rango:      p.Rango,
		NombreCert: nombre,
	})
	if serr != nil {
		return nil, serr
	}

	uc.inspeccionarCAF(zl, contenido, p.Rango)

	ruta, filename, err := uc.escritor.Guardar(contenido, p.RutEmpresa, p.Rango, time.Now())
	if err != nil {
		return nil, err
	}
	zl.Info().Str("archivo", ruta).Msg("CAF guardado")

	return &Resultado{Artefacto: domain.Artefacto{
		Contenido: contenido,
		Filename:  filename,
		Ruta:      ruta,
	}}, nil
}

// inspeccionarCAF registra los metadatos de lo autorizado y advierte si no
// corresponde a lo pedido. Solo diagnóstico: el CAF es opaco por contrato y
// un parseo fallido nunca invalida la corrida.
func (uc *UseCase) inspeccionarCAF(zl zerolog.Logger, contenido []byte, r domain.RangoFolios) {
	info, err := caf.Parse(contenido)
	if err != nil {
		zl.Warn().Err(err).Msg("el CAF descargado no pudo inspeccionarse")
		return
	}
	evt := zl.Info().
		Str("rut_emisor", info.RutEmisor).
		Str("tipo_dte", info.TipoDte).
		Int("desde", info.Desde).
		Int("hasta", info.Hasta).
		Bool("firmado", info.Firmado)
	evt.Msg("CAF autorizado")

	if !info.Coincide(r.TipoDte, r.Inicial, r.Final) {
		zl.Warn().
			Str("pedido", fmt.Sprintf("tipo %s, %d-%d", r.TipoDte, r.Inicial, r.Final)).
			Str("autorizado", fmt.Sprintf("tipo %s, %d-%d", info.TipoDte, info.Desde, info.Hasta)).
			Msg("lo autorizado no coincide con lo pedido")
	}
}
