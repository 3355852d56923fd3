package caf_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/sii-folios-api/pkg/caf"
)

const cafEjemplo = `<AUTORIZACION>
  <CAF version="1.0">
    <DA>
      <RE>76543210-3</RE>
      <RS>EMPRESA DE PRUEBA SPA</RS>
      <TD>33</TD>
      <RNG><D>100</D><H>104</H></RNG>
      <FA>2026-08-31</FA>
      <IDK>100</IDK>
    </DA>
    <FRMA algoritmo="SHA1withRSA">dGVzdA==</FRMA>
  </CAF>
</AUTORIZACION>`

func TestParse_ExtraeMetadatos(t *testing.T) {
	info, err := caf.Parse([]byte(cafEjemplo))
	require.NoError(t, err)

	assert.Equal(t, "76543210-3", info.RutEmisor)
	assert.Equal(t, "EMPRESA DE PRUEBA SPA", info.RazonSocial)
	assert.Equal(t, "33", info.TipoDte)
	assert.Equal(t, 100, info.Desde)
	assert.Equal(t, 104, info.Hasta)
	assert.Equal(t, "2026-08-31", info.FechaAutorizacion)
	assert.True(t, info.Firmado, "la presencia de FRMA con contenido marca el CAF como firmado")
}

func TestParse_NoXML(t *testing.T) {
	_, err := caf.Parse([]byte("<html>esto no es un CAF"))
	assert.Error(t, err)
}

func TestParse_SinDA(t *testing.T) {
	_, err := caf.Parse([]byte(`<AUTORIZACION><CAF version="1.0"></CAF></AUTORIZACION>`))
	assert.Error(t, err, "un XML sin CAF/DA debe reportarse como inválido")
}

func TestCoincide(t *testing.T) {
	info, err := caf.Parse([]byte(cafEjemplo))
	require.NoError(t, err)

	assert.True(t, info.Coincide("33", 100, 104))
	assert.False(t, info.Coincide("33", 100, 105), "rango distinto no coincide")
	assert.False(t, info.Coincide("34", 100, 104), "tipo distinto no coincide")
}
