package sii_test

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/sii-folios-api/internal/domain"
	"github.com/jhoicas/sii-folios-api/internal/infrastructure/sii"
)

const (
	htmlBenigno = `<html><body><h1>Bienvenido</h1>Operacion completada</body></html>`
	cafEjemplo  = `<AUTORIZACION><CAF version="1.0"><DA><RE>76543210-3</RE><TD>33</TD>` +
		`<RNG><D>100</D><H>104</H></RNG><FA>2026-08-31</FA></DA><FRMA algoritmo="SHA1withRSA">xx</FRMA></CAF></AUTORIZACION>`
)

// portalFalso simula el portal SII: registra los hits por ruta, los valores
// de formulario recibidos y si la cookie de sesión llegó en cada paso.
type portalFalso struct {
	mu          sync.Mutex
	hits        map[string]int
	cantDoctos  map[string]string // ruta -> CANT_DOCTOS recibido
	conCookie   map[string]bool
	respuestas  map[string]func(w http.ResponseWriter) // overrides por ruta
	servidor    *httptest.Server
}

func nuevoPortalFalso(t *testing.T) *portalFalso {
	t.Helper()
	p := &portalFalso{
		hits:       map[string]int{},
		cantDoctos: map[string]string{},
		conCookie:  map[string]bool{},
		respuestas: map[string]func(w http.ResponseWriter){},
	}

	mux := http.NewServeMux()
	registrar := func(ruta string, porDefecto func(w http.ResponseWriter)) {
		mux.HandleFunc(ruta, func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			p.mu.Lock()
			p.hits[ruta]++
			if v := r.FormValue("CANT_DOCTOS"); v != "" {
				p.cantDoctos[ruta] = v
			}
			if _, err := r.Cookie("TOKEN"); err == nil {
				p.conCookie[ruta] = true
			}
			override := p.respuestas[ruta]
			p.mu.Unlock()

			if override != nil {
				override(w)
				return
			}
			porDefecto(w)
		})
	}

	ok := func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(htmlBenigno))
	}
	registrar("/cgi_AUT2000/CAutInicio.cgi", func(w http.ResponseWriter) {
		// El login establece la cookie de sesión que heredan los pasos siguientes.
		http.SetCookie(w, &http.Cookie{Name: "TOKEN", Value: "abc123"})
		ok(w)
	})
	registrar("/cvc_cgi/dte/of_solicita_folios", ok)
	registrar("/cvc_cgi/dte/of_confirma_folio", ok)
	registrar("/cvc_cgi/dte/of_genera_folio", ok)
	registrar("/cvc_cgi/dte/of_genera_archivo", func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(cafEjemplo))
	})
	registrar("/cgi_AUT2000/CAutLogout.cgi", ok)

	p.servidor = httptest.NewServer(mux)
	t.Cleanup(p.servidor.Close)
	return p
}

func (p *portalFalso) cliente(t *testing.T, timeout time.Duration) *sii.Cliente {
	t.Helper()
	cli, err := sii.NuevoCliente(tls.Certificate{}, sii.Config{
		BaseURL:  p.servidor.URL,
		LoginURL: p.servidor.URL + "/cgi_AUT2000/CAutInicio.cgi?http://www.sii.cl",
		Timeout:  timeout,
		Ahora:    func() time.Time { return time.Date(2026, 8, 31, 14, 30, 0, 0, time.UTC) },
	}, sii.NewDebugSink(t.TempDir(), false, zerolog.Nop()), zerolog.Nop())
	require.NoError(t, err)
	return cli
}

func (p *portalFalso) hitsDe(ruta string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits[ruta]
}

func solicitudDePrueba() sii.Solicitud {
	return sii.Solicitud{
		RutCert:    "11111111-1",
		Empresa:    domain.Empresa{Rut: "76543210", Dv: "3"},
		Rango:      domain.RangoFolios{Inicial: 100, Final: 104, TipoDte: "33"},
		NombreCert: "Juan Pérez",
	}
}

func TestObtenerFolios_FlujoCompleto(t *testing.T) {
	portal := nuevoPortalFalso(t)
	cli := portal.cliente(t, 5*time.Second)

	contenido, serr := cli.ObtenerFolios(context.Background(), solicitudDePrueba())
	require.Nil(t, serr, "el flujo completo no debe fallar")
	assert.Equal(t, cafEjemplo, string(contenido), "el CAF debe devolverse byte a byte")

	for _, ruta := range []string{
		"/cgi_AUT2000/CAutInicio.cgi",
		"/cvc_cgi/dte/of_solicita_folios",
		"/cvc_cgi/dte/of_confirma_folio",
		"/cvc_cgi/dte/of_genera_folio",
		"/cvc_cgi/dte/of_genera_archivo",
		"/cgi_AUT2000/CAutLogout.cgi",
	} {
		assert.Equal(t, 1, portal.hitsDe(ruta), "cada paso debe ejecutarse exactamente una vez: %s", ruta)
	}

	portal.mu.Lock()
	defer portal.mu.Unlock()
	// La cookie del login debe heredarse en todos los pasos posteriores.
	for _, ruta := range []string{
		"/cvc_cgi/dte/of_solicita_folios",
		"/cvc_cgi/dte/of_confirma_folio",
		"/cvc_cgi/dte/of_genera_folio",
		"/cvc_cgi/dte/of_genera_archivo",
		"/cgi_AUT2000/CAutLogout.cgi",
	} {
		assert.True(t, portal.conCookie[ruta], "la cookie de sesión debe llegar a %s", ruta)
	}
	// CANT_DOCTOS recalculado de forma idéntica en confirmación y generación.
	assert.Equal(t, "5", portal.cantDoctos["/cvc_cgi/dte/of_confirma_folio"])
	assert.Equal(t, portal.cantDoctos["/cvc_cgi/dte/of_confirma_folio"],
		portal.cantDoctos["/cvc_cgi/dte/of_genera_folio"],
		"CANT_DOCTOS debe ser idéntico en confirmación y generación")
}

func TestObtenerFolios_LoginFalla(t *testing.T) {
	portal := nuevoPortalFalso(t)
	portal.respuestas["/cgi_AUT2000/CAutInicio.cgi"] = func(w http.ResponseWriter) {
		_, _ = w.Write([]byte(`<html>Error<p>Certificado inválido</p></html>`))
	}
	cli := portal.cliente(t, 5*time.Second)

	contenido, serr := cli.ObtenerFolios(context.Background(), solicitudDePrueba())
	require.NotNil(t, serr)
	assert.Nil(t, contenido)
	assert.Equal(t, domain.PasoLogin, serr.Code)
	assert.Equal(t, "Certificado inválido", serr.Message)

	assert.Equal(t, 0, portal.hitsDe("/cvc_cgi/dte/of_solicita_folios"),
		"tras fallar el login no debe ejecutarse ningún paso posterior")
	assert.Equal(t, 1, portal.hitsDe("/cgi_AUT2000/CAutLogout.cgi"),
		"el logout se intenta igualmente")
}

func TestObtenerFolios_ConfirmacionFalla_CortaElFlujo(t *testing.T) {
	portal := nuevoPortalFalso(t)
	portal.respuestas["/cvc_cgi/dte/of_confirma_folio"] = func(w http.ResponseWriter) {
		_, _ = w.Write([]byte(`<html><h2>Error de sesión</h2></html>`))
	}
	cli := portal.cliente(t, 5*time.Second)

	_, serr := cli.ObtenerFolios(context.Background(), solicitudDePrueba())
	require.NotNil(t, serr)
	assert.Equal(t, domain.PasoConfirmaFolio, serr.Code)
	assert.Equal(t, "Error de sesión", serr.Message)

	assert.Equal(t, 0, portal.hitsDe("/cvc_cgi/dte/of_genera_folio"),
		"la generación no debe ejecutarse si la confirmación falló")
	assert.Equal(t, 0, portal.hitsDe("/cvc_cgi/dte/of_genera_archivo"))
	assert.Equal(t, 1, portal.hitsDe("/cgi_AUT2000/CAutLogout.cgi"),
		"el logout debe invocarse exactamente una vez")
}

func TestObtenerFolios_StatusNo200(t *testing.T) {
	portal := nuevoPortalFalso(t)
	portal.respuestas["/cvc_cgi/dte/of_solicita_folios"] = func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(htmlBenigno))
	}
	cli := portal.cliente(t, 5*time.Second)

	_, serr := cli.ObtenerFolios(context.Background(), solicitudDePrueba())
	require.NotNil(t, serr)
	assert.Equal(t, domain.PasoSolicitaFolios, serr.Code)
	assert.Equal(t, "Error al solicitar folios", serr.Message,
		"con HTML benigno y status != 200 se usa el mensaje por defecto del paso")
}

func TestObtenerFolios_SesionExpirada(t *testing.T) {
	portal := nuevoPortalFalso(t)
	portal.respuestas["/cvc_cgi/dte/of_genera_folio"] = func(w http.ResponseWriter) {
		_, _ = w.Write([]byte(`<html>su sesión ha expirado</html>`))
	}
	cli := portal.cliente(t, 5*time.Second)

	_, serr := cli.ObtenerFolios(context.Background(), solicitudDePrueba())
	require.NotNil(t, serr)
	assert.Equal(t, domain.PasoGeneraFolio, serr.Code)
	assert.Equal(t, sii.MensajeSesionExpirada, serr.Message)
	assert.Equal(t, 0, portal.hitsDe("/cvc_cgi/dte/of_genera_archivo"))
}

func TestObtenerFolios_Timeout(t *testing.T) {
	portal := nuevoPortalFalso(t)
	portal.respuestas["/cvc_cgi/dte/of_confirma_folio"] = func(w http.ResponseWriter) {
		time.Sleep(400 * time.Millisecond)
		_, _ = w.Write([]byte(htmlBenigno))
	}
	cli := portal.cliente(t, 100*time.Millisecond)

	_, serr := cli.ObtenerFolios(context.Background(), solicitudDePrueba())
	require.NotNil(t, serr)
	assert.Equal(t, domain.CodigoTimeout, serr.Code,
		"un timeout debe reportarse con código propio, distinto del código de paso")
	assert.Contains(t, serr.Message, domain.PasoConfirmaFolio,
		"el mensaje debe identificar el paso que expiró")
}
