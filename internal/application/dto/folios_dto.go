package dto

// SolicitudFolios es el cuerpo JSON del endpoint de obtención de folios.
// CertificadoPem viaja en Base64; Servidor y los toggles son overrides
// opcionales sobre la configuración del servicio.
type SolicitudFolios struct {
	FolioInicial        int    `json:"folioInicial" validate:"required,min=1"`
	FolioFinal          int    `json:"folioFinal" validate:"required,min=1"`
	TipoDte             string `json:"tipoDte" validate:"required"`
	RutCert             string `json:"rutCert" validate:"required"`
	RutEmpresa          string `json:"rutEmpresa" validate:"required"`
	CertificadoPem      string `json:"certificadoPem" validate:"required"`
	CertificadoPassword string `json:"certificadoPassword" validate:"required"`

	Servidor        string `json:"servidor,omitempty" validate:"omitempty,oneof=maullin palena"`
	ReturnXml       bool   `json:"returnXml,omitempty"`
	EnableLogging   *bool  `json:"enableLogging,omitempty"`
	EnableHtmlDebug *bool  `json:"enableHtmlDebug,omitempty"`
}

// RespuestaFolios envelope de éxito cuando no se pide el XML crudo.
type RespuestaFolios struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Filename string `json:"filename"`
	Xml      string `json:"xml"` // CAF en Base64
}

// RespuestaError envelope de falla.
type RespuestaError struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}
