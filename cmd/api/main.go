package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/jhoicas/sii-folios-api/internal/application/folios"
	httpRouter "github.com/jhoicas/sii-folios-api/internal/interfaces/http"
	"github.com/jhoicas/sii-folios-api/pkg/config"
	"github.com/jhoicas/sii-folios-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	logPath := ""
	if cfg.Storage.EnableLogging {
		logPath = cfg.Storage.LogPath
	}
	log := logger.New(logger.Config{
		Env:      cfg.App.Env,
		Level:    "info",
		FilePath: logPath,
	})
	defer log.Close()

	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("servidor_sii", cfg.SII.Servidor).
		Msg("iniciando aplicación")

	foliosUC := folios.NewUseCase(cfg, log)

	app := fiber.New(fiber.Config{
		AppName: cfg.App.Name,
		// El workflow contra el portal es lento: cinco llamadas secuenciales
		// a un sistema legado sin SLA documentado.
		ReadTimeout:  time.Second * 30,
		WriteTimeout: time.Minute * 5,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowMethods: "POST, GET, OPTIONS",
		AllowHeaders: "Content-Type, Authorization",
	}))

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "SII Folios API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		FoliosSvc: foliosUC,
		Log:       log,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
