package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/jhoicas/sii-folios-api/internal/infrastructure/sii"
)

// Diagnóstico rápido de un certificado digital antes de usarlo contra el SII:
//
//	go run debug_cert.go <ruta al .pem o .p12> [password]
//
// Verifica que el archivo exista, que la credencial arme (llave incluida) y
// muestra el nombre que iría en el campo NOMUSU.
func main() {
	if len(os.Args) < 2 {
		fmt.Println("Uso: go run debug_cert.go <certificado.pem|.p12> [password]")
		os.Exit(1)
	}
	certPath := os.Args[1]
	certPass := ""
	if len(os.Args) > 2 {
		certPass = os.Args[2]
	}

	fmt.Println("🔍 DIAGNÓSTICO DE CERTIFICADO SII")
	fmt.Println("---------------------------------")
	fmt.Printf("📂 Intentando leer: %s\n", certPath)

	data, err := os.ReadFile(certPath)
	if err != nil {
		fmt.Println("\n❌ ERROR DE ARCHIVO:")
		fmt.Printf("   No se puede encontrar o abrir el archivo.\n")
		fmt.Printf("   Detalle técnico: %v\n", err)
		return
	}
	fmt.Printf("✅ Archivo encontrado. Tamaño: %d bytes\n", len(data))

	fmt.Println("\n🔐 Intentando armar la credencial TLS...")
	cred, err := sii.CargarCredencial(data, certPass)
	if err != nil {
		fmt.Println("\n❌ ERROR DE CONTRASEÑA O FORMATO:")
		fmt.Printf("   El archivo existe, pero la credencial no pudo armarse.\n")
		fmt.Printf("   Detalle técnico: %v\n", err)
		return
	}
	fmt.Printf("✅ Credencial armada. Certificados en la cadena: %d\n", len(cred.Certificate))

	nombre := sii.NombreCertificado(data, certPass, zerolog.Nop())
	if nombre == "" {
		fmt.Println("⚠️  No se pudo extraer un nombre del certificado (NOMUSU irá vacío).")
	} else {
		fmt.Printf("👤 Nombre del titular: %s\n", nombre)
	}

	if cred.Leaf != nil {
		fmt.Printf("📅 Válido desde %s hasta %s\n",
			cred.Leaf.NotBefore.Format("2006-01-02"), cred.Leaf.NotAfter.Format("2006-01-02"))
	}

	fmt.Println("\n✨ ¡ÉXITO! El certificado está listo para usarse contra el portal.")
}
