package sii

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/pkcs12"
)

// CargarCredencial arma una credencial TLS mutua a partir de los bytes del
// certificado. Acepta PEM (certificado + llave privada, esta última puede
// venir cifrada con password en formato legado DEK-Info) o, si los bytes no
// contienen bloques PEM, un contenedor PKCS#12.
func CargarCredencial(data []byte, password string) (tls.Certificate, error) {
	certs, key, err := decodificarPEM(data, password)
	if err != nil {
		return tls.Certificate{}, err
	}
	if len(certs) == 0 {
		// Sin bloques PEM utilizables: puede ser un .p12/.pfx
		return cargarP12(data, password)
	}
	if key == nil {
		return tls.Certificate{}, fmt.Errorf("sii: el PEM no contiene llave privada")
	}

	cred := tls.Certificate{PrivateKey: key}
	for _, c := range certs {
		cred.Certificate = append(cred.Certificate, c.Raw)
	}
	cred.Leaf = certs[0]
	return cred, nil
}

func cargarP12(data []byte, password string) (tls.Certificate, error) {
	key, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("sii: decodificar credencial: %w", err)
	}
	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  key,
		Leaf:        cert,
	}, nil
}

// decodificarPEM recorre los bloques PEM recolectando certificados y la
// primera llave privada. Bloques cifrados se descifran con password.
func decodificarPEM(data []byte, password string) ([]*x509.Certificate, crypto.PrivateKey, error) {
	var certs []*x509.Certificate
	var key crypto.PrivateKey

	for rest := data; ; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}

		switch {
		case block.Type == "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, nil, fmt.Errorf("sii: parsear certificado: %w", err)
			}
			certs = append(certs, cert)

		case strings.Contains(block.Type, "PRIVATE KEY") && key == nil:
			der := block.Bytes
			if x509.IsEncryptedPEMBlock(block) { //nolint:staticcheck // formato legado del portal
				var err error
				der, err = x509.DecryptPEMBlock(block, []byte(password)) //nolint:staticcheck
				if err != nil {
					return nil, nil, fmt.Errorf("sii: descifrar llave privada: %w", err)
				}
			}
			k, err := parsearLlave(der)
			if err != nil {
				return nil, nil, err
			}
			key = k
		}
	}
	return certs, key, nil
}

func parsearLlave(der []byte) (crypto.PrivateKey, error) {
	if k, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return k, nil
	}
	if k, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return k, nil
	}
	if k, err := x509.ParseECPrivateKey(der); err == nil {
		return k, nil
	}
	return nil, fmt.Errorf("sii: formato de llave privada no reconocido")
}

// NombreCertificado extrae un nombre legible del certificado para usarlo
// como valor de formulario (campo NOMUSU). Prioridad: CN del subject, luego
// O y OU del subject, luego CN y O del emisor. Cualquier error de parseo se
// registra y produce cadena vacía: el workflow continúa con el campo vacío.
func NombreCertificado(data []byte, password string, log zerolog.Logger) string {
	cert := primerCertificado(data, password)
	if cert == nil {
		log.Warn().Msg("no se pudo extraer el nombre del certificado")
		return ""
	}
	nombre := nombreDesdeCert(cert)
	if nombre == "" {
		log.Warn().Msg("certificado sin nombre disponible")
	}
	return nombre
}

func primerCertificado(data []byte, password string) *x509.Certificate {
	for rest := data; ; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		if cert, err := x509.ParseCertificate(block.Bytes); err == nil {
			return cert
		}
	}
	// Sin certificado PEM: intentar como PKCS#12
	if _, cert, err := pkcs12.Decode(data, password); err == nil {
		return cert
	}
	return nil
}

func nombreDesdeCert(cert *x509.Certificate) string {
	if cert.Subject.CommonName != "" {
		return cert.Subject.CommonName
	}
	if len(cert.Subject.Organization) > 0 && cert.Subject.Organization[0] != "" {
		return cert.Subject.Organization[0]
	}
	if len(cert.Subject.OrganizationalUnit) > 0 && cert.Subject.OrganizationalUnit[0] != "" {
		return cert.Subject.OrganizationalUnit[0]
	}
	if cert.Issuer.CommonName != "" {
		return cert.Issuer.CommonName
	}
	if len(cert.Issuer.Organization) > 0 {
		return cert.Issuer.Organization[0]
	}
	return ""
}
