package http

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/sii-folios-api/internal/application/dto"
	"github.com/jhoicas/sii-folios-api/internal/application/folios"
	"github.com/jhoicas/sii-folios-api/internal/domain"
	"github.com/jhoicas/sii-folios-api/pkg/logger"
)

// FoliosService es el puerto hacia el caso de uso; la implementación
// concreta es *folios.UseCase, para tests se puede inyectar un mock.
type FoliosService interface {
	ObtenerFolios(ctx context.Context, p folios.Params) (*folios.Resultado, error)
}

// FoliosHandler maneja las peticiones HTTP de obtención de folios.
type FoliosHandler struct {
	svc      FoliosService
	validate *validator.Validate
	log      *logger.Logger
}

// NewFoliosHandler construye el handler.
func NewFoliosHandler(svc FoliosService, log *logger.Logger) *FoliosHandler {
	return &FoliosHandler{
		svc:      svc,
		validate: validator.New(),
		log:      log,
	}
}

// Obtener solicita un rango de folios al SII y devuelve el CAF.
// POST /api/folios
func (h *FoliosHandler) Obtener(c *fiber.Ctx) error {
	var in dto.SolicitudFolios
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.RespuestaError{
			Message: "Cuerpo de petición inválido. Se espera JSON.",
			Code:    "input",
		})
	}
	if err := h.validate.Struct(in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.RespuestaError{
			Message: mensajeValidacion(err),
			Code:    "input",
		})
	}

	pemBytes, err := base64.StdEncoding.DecodeString(in.CertificadoPem)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.RespuestaError{
			Message: "Contenido del certificado PEM inválido. Debe estar en formato Base64.",
			Code:    "input",
		})
	}

	// Credencial con respaldo en archivo, con alcance de esta petición.
	// Se elimina en toda salida, incluyendo fallas y pánicos.
	tempDir, err := os.MkdirTemp("", "sii_temp_")
	if err != nil {
		return h.errorInterno(c, err)
	}
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			h.log.Warn().Err(err).Msg("limpiar directorio temporal del certificado")
		}
	}()
	certPath := filepath.Join(tempDir, "certificado.pem")
	if err := os.WriteFile(certPath, pemBytes, 0o600); err != nil {
		return h.errorInterno(c, err)
	}

	res, err := h.svc.ObtenerFolios(c.Context(), folios.Params{
		Rango: domain.RangoFolios{
			Inicial: in.FolioInicial,
			Final:   in.FolioFinal,
			TipoDte: in.TipoDte,
		},
		RutCert:         in.RutCert,
		RutEmpresa:      in.RutEmpresa,
		CertPath:        certPath,
		CertPassword:    in.CertificadoPassword,
		Servidor:        in.Servidor,
		EnableLogging:   in.EnableLogging,
		EnableHTMLDebug: in.EnableHtmlDebug,
	})
	if err != nil {
		return h.responderError(c, err)
	}

	if in.ReturnXml {
		c.Set(fiber.HeaderContentType, "application/xml")
		c.Set(fiber.HeaderContentDisposition,
			fmt.Sprintf(`attachment; filename="folios_%s_%d-%d.xml"`,
				in.TipoDte, in.FolioInicial, in.FolioFinal))
		return c.Send(res.Contenido)
	}

	return c.JSON(dto.RespuestaFolios{
		Success:  true,
		Message:  "Folios obtenidos correctamente",
		Filename: res.Filename,
		Xml:      base64.StdEncoding.EncodeToString(res.Contenido),
	})
}

// responderError traduce la taxonomía de errores del caso de uso a HTTP:
// fallas de paso y de entrada -> 400 con código; lo demás -> 500 genérico.
func (h *FoliosHandler) responderError(c *fiber.Ctx, err error) error {
	var serr *domain.StepError
	if errors.As(err, &serr) {
		resp := dto.RespuestaError{Message: serr.Message, Code: serr.Code}
		if serr.Err != nil {
			resp.Error = serr.Err.Error()
		}
		return c.Status(fiber.StatusBadRequest).JSON(resp)
	}
	if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrCredencial) || errors.Is(err, domain.ErrServidor) {
		return c.Status(fiber.StatusBadRequest).JSON(dto.RespuestaError{
			Message: err.Error(),
			Code:    "input",
		})
	}
	return h.errorInterno(c, err)
}

func (h *FoliosHandler) errorInterno(c *fiber.Ctx, err error) error {
	h.log.Error().Err(err).Msg("error no controlado en obtención de folios")
	return c.Status(fiber.StatusInternalServerError).JSON(dto.RespuestaError{
		Message: "Error interno del servidor",
		Error:   err.Error(),
	})
}

// mensajeValidacion produce un mensaje al estilo del contrato original:
// nombra el primer campo requerido faltante.
func mensajeValidacion(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		campo := verrs[0].Field()
		// Volver al nombre JSON (primera letra en minúscula)
		if campo != "" {
			campo = string(campo[0]|0x20) + campo[1:]
		}
		if verrs[0].Tag() == "required" {
			return fmt.Sprintf("Parámetro requerido '%s' no proporcionado o vacío.", campo)
		}
		return fmt.Sprintf("Parámetro '%s' inválido.", campo)
	}
	return "Parámetros incompletos."
}
