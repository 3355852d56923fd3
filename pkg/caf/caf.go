// Package caf inspecciona el XML de un CAF (Código de Autorización de
// Folios) descargado del SII. El CAF es opaco por contrato: este paquete
// solo lee los metadatos de autorización para verificación y registro
// posteriores a la descarga, nunca modifica ni valida criptográficamente
// el archivo.
package caf

import (
	"fmt"
	"strconv"

	"github.com/beevik/etree"
)

// Info son los metadatos de autorización extraídos del elemento DA del CAF.
type Info struct {
	RutEmisor         string // DA/RE
	RazonSocial       string // DA/RS
	TipoDte           string // DA/TD
	Desde             int    // DA/RNG/D
	Hasta             int    // DA/RNG/H
	FechaAutorizacion string // DA/FA
	Firmado           bool   // presencia de CAF/FRMA con contenido
}

// Parse lee los metadatos del CAF. Devuelve error si el documento no parsea
// o no contiene la estructura AUTORIZACION/CAF/DA esperada.
func Parse(data []byte) (*Info, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("caf: parsear XML: %w", err)
	}

	da := doc.FindElement("//CAF/DA")
	if da == nil {
		return nil, fmt.Errorf("caf: el documento no contiene el elemento CAF/DA")
	}

	info := &Info{
		RutEmisor:         texto(da, "RE"),
		RazonSocial:       texto(da, "RS"),
		TipoDte:           texto(da, "TD"),
		FechaAutorizacion: texto(da, "FA"),
	}

	if rng := da.FindElement("RNG"); rng != nil {
		info.Desde, _ = strconv.Atoi(texto(rng, "D"))
		info.Hasta, _ = strconv.Atoi(texto(rng, "H"))
	}
	if frma := doc.FindElement("//CAF/FRMA"); frma != nil && frma.Text() != "" {
		info.Firmado = true
	}
	return info, nil
}

// Coincide verifica que lo autorizado corresponda a lo pedido.
func (i *Info) Coincide(tipoDte string, desde, hasta int) bool {
	return i.TipoDte == tipoDte && i.Desde == desde && i.Hasta == hasta
}

func texto(parent *etree.Element, tag string) string {
	if el := parent.FindElement(tag); el != nil {
		return el.Text()
	}
	return ""
}
