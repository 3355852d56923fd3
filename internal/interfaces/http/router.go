package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/sii-folios-api/pkg/logger"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	FoliosSvc FoliosService
	Log       *logger.Logger
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	foliosHandler := NewFoliosHandler(deps.FoliosSvc, deps.Log)
	api.Post("/folios", foliosHandler.Obtener)
}
