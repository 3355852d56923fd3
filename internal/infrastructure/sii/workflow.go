package sii

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/sii-folios-api/internal/domain"
)

// Rutas del portal. El login y el logout viven en el host de autenticación;
// los pasos de folios en el host del ambiente configurado (maullin/palena).
const (
	loginURLDefault = "https://herculesr.sii.cl/cgi_AUT2000/CAutInicio.cgi?http://www.sii.cl"

	rutaSolicitaFolios = "/cvc_cgi/dte/of_solicita_folios"
	rutaConfirmaFolio  = "/cvc_cgi/dte/of_confirma_folio"
	rutaGeneraFolio    = "/cvc_cgi/dte/of_genera_folio"
	rutaGeneraArchivo  = "/cvc_cgi/dte/of_genera_archivo"
	rutaLogout         = "/cgi_AUT2000/CAutLogout.cgi?http://www.sii.cl/"
)

// Headers observados del cliente original contra el portal.
var (
	headersJSON = map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json, text/plain, */*",
	}
	headersArchivo = map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
		"Accept":       "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	}
)

// Config parametriza un cliente del portal. BaseURL y LoginURL existen para
// los tests; en producción se derivan del servidor.
type Config struct {
	Servidor string
	BaseURL  string
	LoginURL string
	Timeout  time.Duration
	Ahora    func() time.Time // reloj inyectable; nil -> time.Now
}

// Solicitud reúne todo lo que el workflow necesita para una corrida.
type Solicitud struct {
	RutCert    string // RUT del certificado, formato NNNNNNNN-D (sin puntos)
	Empresa    domain.Empresa
	Rango      domain.RangoFolios
	NombreCert string // nombre extraído del certificado; puede ser vacío
}

// Cliente ejecuta el workflow de obtención de folios contra el portal SII.
// Un Cliente sirve exactamente una corrida: posee la sesión (cookie jar +
// TLS mutuo) que los pasos van mutando en secuencia estricta.
type Cliente struct {
	cfg   Config
	ses   *sesion
	debug *DebugSink
	log   zerolog.Logger
}

// NuevoCliente construye el cliente para una corrida con la credencial dada.
func NuevoCliente(cred tls.Certificate, cfg Config, debug *DebugSink, log zerolog.Logger) (*Cliente, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://" + cfg.Servidor + ".sii.cl"
	}
	if cfg.LoginURL == "" {
		cfg.LoginURL = loginURLDefault
	}
	if cfg.Ahora == nil {
		cfg.Ahora = time.Now
	}
	ses, err := nuevaSesion(cred, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return &Cliente{cfg: cfg, ses: ses, debug: debug, log: log}, nil
}

// ObtenerFolios ejecuta la secuencia completa:
//
//	login -> solicitar -> confirmar -> generar -> generar archivo -> logout
//
// Corta en la primera falla y siempre intenta el logout, incluyendo pánicos
// y cancelación del contexto (el logout corre sobre un contexto propio).
// En éxito devuelve los bytes crudos del CAF.
func (c *Cliente) ObtenerFolios(ctx context.Context, sol Solicitud) (contenido []byte, serr *domain.StepError) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Msg("falla no controlada en el workflow")
			serr = &domain.StepError{
				Code:    "unknown",
				Message: "Error al solicitar folios",
				Err:     fmt.Errorf("%v", r),
			}
		}
		c.cerrarSesion()
	}()

	if serr = c.login(ctx, sol); serr != nil {
		return nil, serr
	}
	if serr = c.solicitarFolios(ctx, sol.Empresa); serr != nil {
		return nil, serr
	}
	if serr = c.confirmarFolios(ctx, sol.Empresa, sol.Rango); serr != nil {
		return nil, serr
	}
	if serr = c.generarFolios(ctx, sol); serr != nil {
		return nil, serr
	}
	return c.generarArchivo(ctx, sol.Empresa, sol.Rango)
}

// login autentica con el certificado en el host de autenticación.
func (c *Cliente) login(ctx context.Context, sol Solicitud) *domain.StepError {
	partes := strings.SplitN(sol.RutCert, "-", 2)
	if len(partes) != 2 {
		return &domain.StepError{Code: domain.PasoLogin, Message: "RUT del certificado inválido"}
	}
	query := url.Values{
		"rutcntr":    {sol.RutCert},
		"rut":        {partes[0]},
		"dv":         {partes[1]},
		"referencia": {"https://www.sii.cl"},
	}

	c.log.Info().Str("rut", sol.RutCert).Msg("iniciando sesión en SII")
	resp, err := c.ses.get(ctx, c.cfg.LoginURL, query, nil)
	if err != nil {
		return errPaso(domain.PasoLogin, err)
	}

	c.debug.Guardar("1_login", resp.Body, map[string]string{
		"URL":    c.cfg.LoginURL,
		"Método": "GET",
		"Código": strconv.Itoa(resp.StatusCode),
		"RUT":    sol.RutCert,
	})

	return c.evaluar(domain.PasoLogin, resp, "Error al intentar loguearse")
}

// solicitarFolios inicia la solicitud de folios para la empresa.
func (c *Cliente) solicitarFolios(ctx context.Context, emp domain.Empresa) *domain.StepError {
	campos := url.Values{
		"RUT_EMP": {emp.Rut},
		"DV_EMP":  {emp.Dv},
		"ACEPTAR": {"Continuar"},
	}

	c.log.Info().Str("rut_empresa", emp.Rut+"-"+emp.Dv).Msg("solicitando folios")
	resp, err := c.ses.postForm(ctx, c.cfg.BaseURL+rutaSolicitaFolios, campos, campos, headersJSON)
	if err != nil {
		return errPaso(domain.PasoSolicitaFolios, err)
	}

	c.guardarPaso("2_solicitar_folios", rutaSolicitaFolios, resp, campos)
	return c.evaluar(domain.PasoSolicitaFolios, resp, "Error al solicitar folios")
}

// confirmarFolios confirma el rango solicitado. CANT_DOCTOS se calcula aquí,
// con la misma función pura que usa el paso de generación.
func (c *Cliente) confirmarFolios(ctx context.Context, emp domain.Empresa, r domain.RangoFolios) *domain.StepError {
	campos := url.Values{
		"RUT_EMP":       {emp.Rut},
		"DV_EMP":        {emp.Dv},
		"FOLIO_INICIAL": {strconv.Itoa(r.Inicial)},
		"COD_DOCTO":     {r.TipoDte},
		"AFECTO_IVA":    {"S"},
		"CON_CREDITO":   {"0"},
		"CON_AJUSTE":    {"0"},
		"FACTOR":        {""},
		"CANT_DOCTOS":   {strconv.Itoa(domain.CantidadDocumentos(r.Inicial, r.Final))},
		"ACEPTAR":       {"(unable to decode value)"},
	}

	c.log.Info().
		Int("folio_inicial", r.Inicial).
		Int("folio_final", r.Final).
		Str("tipo_dte", r.TipoDte).
		Msg("confirmando folios")
	resp, err := c.ses.postForm(ctx, c.cfg.BaseURL+rutaConfirmaFolio, campos, campos, headersJSON)
	if err != nil {
		return errPaso(domain.PasoConfirmaFolio, err)
	}

	c.guardarPaso("3_confirmar_folios", rutaConfirmaFolio, resp, campos)
	return c.evaluar(domain.PasoConfirmaFolio, resp, "Error al confirmar folios")
}

// generarFolios ejecuta la generación, incluyendo fecha/hora actuales y el
// nombre del certificado en mayúsculas.
func (c *Cliente) generarFolios(ctx context.Context, sol Solicitud) *domain.StepError {
	r := sol.Rango
	ahora := c.cfg.Ahora()
	campos := url.Values{
		"NOMUSU":      {strings.ToUpper(sol.NombreCert)},
		"CON_CREDITO": {"0"},
		"CON_AJUSTE":  {"0"},
		"FOLIO_INI":   {strconv.Itoa(r.Inicial)},
		"FOLIO_FIN":   {strconv.Itoa(r.Final)},
		"DIA":         {ahora.Format("02")},
		"MES":         {ahora.Format("01")},
		"ANO":         {ahora.Format("2006")},
		"HORA":        {ahora.Format("15")},
		"MINUTO":      {ahora.Format("04")},
		"RUT_EMP":     {sol.Empresa.Rut},
		"DV_EMP":      {sol.Empresa.Dv},
		"COD_DOCTO":   {r.TipoDte},
		"CANT_DOCTOS": {strconv.Itoa(domain.CantidadDocumentos(r.Inicial, r.Final))},
		"ACEPTAR":     {"Obtener Folios"},
	}

	c.log.Info().Msg("generando folios")
	resp, err := c.ses.postForm(ctx, c.cfg.BaseURL+rutaGeneraFolio, campos, campos, headersJSON)
	if err != nil {
		return errPaso(domain.PasoGeneraFolio, err)
	}

	c.guardarPaso("4_generar_folios", rutaGeneraFolio, resp, campos)
	return c.evaluar(domain.PasoGeneraFolio, resp, "Error al generar folios")
}

// generarArchivo descarga el CAF. El cuerpo se devuelve crudo: el XML es
// opaco para este sistema y no debe recodificarse.
func (c *Cliente) generarArchivo(ctx context.Context, emp domain.Empresa, r domain.RangoFolios) ([]byte, *domain.StepError) {
	campos := url.Values{
		"RUT_EMP":   {emp.Rut},
		"DV_EMP":    {emp.Dv},
		"COD_DOCTO": {r.TipoDte},
		"FOLIO_INI": {strconv.Itoa(r.Inicial)},
		"FOLIO_FIN": {strconv.Itoa(r.Final)},
		"FECHA":     {c.cfg.Ahora().Format("2006-01-02")},
		"ACEPTAR":   {"AQUI"},
	}

	c.log.Info().Msg("generando archivo de folios")
	resp, err := c.ses.postForm(ctx, c.cfg.BaseURL+rutaGeneraArchivo, campos, campos, headersArchivo)
	if err != nil {
		return nil, errPaso(domain.PasoGeneraArchivo, err)
	}

	if serr := c.evaluar(domain.PasoGeneraArchivo, resp, "Error al generar archivo de folios"); serr != nil {
		return nil, serr
	}

	c.log.Info().Int("bytes", len(resp.Body)).Msg("archivo de folios generado")
	return resp.Body, nil
}

// cerrarSesion intenta el logout con mejor esfuerzo. Corre sobre un contexto
// propio con timeout corto para que también se ejecute cuando el contexto
// del llamador ya fue cancelado. Sus fallas se registran, nunca se propagan.
func (c *Cliente) cerrarSesion() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	c.log.Info().Msg("cerrando sesión en SII")
	if _, err := c.ses.get(ctx, c.cfg.BaseURL+rutaLogout, nil, nil); err != nil {
		c.log.Warn().Err(err).Msg("cierre de sesión SII falló")
		return
	}
	c.log.Info().Msg("sesión SII cerrada")
}

// evaluar clasifica una respuesta y la traduce a resultado de paso: falla
// si el HTTP status no es 200 o el clasificador detecta error.
func (c *Cliente) evaluar(paso string, resp *Respuesta, fallback string) *domain.StepError {
	cls := Clasificar(resp.Texto)
	if resp.StatusCode != 200 || !cls.Exito {
		msg := cls.Mensaje
		if msg == "" {
			msg = fallback
		}
		c.log.Warn().Str("paso", paso).Int("status", resp.StatusCode).Str("mensaje", msg).
			Msg("paso del workflow fallido")
		return &domain.StepError{Code: paso, Message: msg}
	}
	return nil
}

func (c *Cliente) guardarPaso(nombre, ruta string, resp *Respuesta, campos url.Values) {
	c.debug.Guardar(nombre, resp.Body, map[string]string{
		"URL":        c.cfg.BaseURL + ruta,
		"Método":     "POST",
		"Código":     strconv.Itoa(resp.StatusCode),
		"Parámetros": campos.Encode(),
	})
}

// errPaso traduce un error de transporte a StepError. Los timeouts reciben
// un código propio, distinguible de los cinco códigos de paso.
func errPaso(paso string, err error) *domain.StepError {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return &domain.StepError{
			Code:    domain.CodigoTimeout,
			Message: "Tiempo de espera agotado en " + paso,
			Err:     err,
		}
	}
	return &domain.StepError{Code: paso, Message: "Error de conexión con el SII", Err: err}
}
