package sii

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Respuesta captura lo relevante de una respuesta del portal: código de
// estado, cuerpo crudo (el CAF no debe recodificarse) y el cuerpo decodificado
// a UTF-8 para la clasificación heurística (las páginas del SII suelen venir
// en ISO-8859-1).
type Respuesta struct {
	StatusCode int
	Body       []byte
	Texto      string
}

// sesion envuelve un http.Client con cookie jar compartido y TLS mutuo,
// con alcance de una sola ejecución del workflow. No sigue redirects: en el
// portal un redirect es señal, no ruido.
type sesion struct {
	client  *http.Client
	timeout time.Duration
}

const maxRespuesta = 8 << 20 // 8 MB

func nuevaSesion(cred tls.Certificate, timeout time.Duration) (*sesion, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("sii: crear cookie jar: %w", err)
	}

	tlsCfg := &tls.Config{}
	if len(cred.Certificate) > 0 {
		tlsCfg.Certificates = []tls.Certificate{cred}
	}

	return &sesion{
		client: &http.Client{
			Jar: jar,
			Transport: &http.Transport{
				TLSClientConfig: tlsCfg,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		timeout: timeout,
	}, nil
}

// get ejecuta un GET. query se agrega a la URL respetando un query string
// ya presente (el portal usa URLs de la forma ".cgi?http://www.sii.cl").
func (s *sesion) get(ctx context.Context, rawURL string, query url.Values, hdr map[string]string) (*Respuesta, error) {
	return s.do(ctx, http.MethodGet, conQuery(rawURL, query), nil, hdr)
}

// postForm ejecuta un POST con cuerpo application/x-www-form-urlencoded.
// Los mismos campos viajan también como query string, reproduciendo el
// comportamiento observado del cliente original contra el CGI legado.
func (s *sesion) postForm(ctx context.Context, rawURL string, query, form url.Values, hdr map[string]string) (*Respuesta, error) {
	body := strings.NewReader(form.Encode())
	return s.do(ctx, http.MethodPost, conQuery(rawURL, query), body, hdr)
}

func (s *sesion) do(ctx context.Context, method, rawURL string, body io.Reader, hdr map[string]string) (*Respuesta, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("sii: crear request %s %s: %w", method, rawURL, err)
	}
	if method == http.MethodPost && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sii: %s %s: %w", method, rawURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxRespuesta))
	if err != nil {
		return nil, fmt.Errorf("sii: leer respuesta de %s: %w", rawURL, err)
	}

	return &Respuesta{
		StatusCode: resp.StatusCode,
		Body:       raw,
		Texto:      decodificar(raw, resp.Header.Get("Content-Type")),
	}, nil
}

// conQuery agrega query a rawURL con '&' si esta ya trae query string.
func conQuery(rawURL string, query url.Values) string {
	if len(query) == 0 {
		return rawURL
	}
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + query.Encode()
}

// decodificar convierte el cuerpo a UTF-8. Se decodifica desde Latin-1 cuando
// el Content-Type lo declara o cuando los bytes no son UTF-8 válido; en
// cualquier otro caso se devuelve el cuerpo tal cual.
func decodificar(body []byte, contentType string) string {
	if strings.Contains(strings.ToLower(contentType), "iso-8859-1") || !utf8.Valid(body) {
		if out, err := charmap.ISO8859_1.NewDecoder().Bytes(body); err == nil {
			return string(out)
		}
	}
	return string(body)
}
