package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Servidores SII conocidos. Maullin es el ambiente de certificación/pruebas
// y Palena el de producción.
const (
	ServidorMaullin = "maullin"
	ServidorPalena  = "palena"
)

// Config agrupa la configuración de la aplicación (lectura vía Viper desde env y opcionalmente archivo).
type Config struct {
	App     AppConfig
	HTTP    HTTPConfig
	SII     SIIConfig
	Storage StorageConfig
}

// AppConfig configuración general de la aplicación.
type AppConfig struct {
	Env  string // development, staging, production
	Name string
}

// HTTPConfig configuración del servidor HTTP.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr devuelve la dirección de escucha (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SIIConfig configuración del portal SII.
type SIIConfig struct {
	Servidor string        // maullin (pruebas) o palena (producción)
	Timeout  time.Duration // timeout por request hacia el portal
	// BaseURL y LoginURL permiten apuntar a un portal alternativo
	// (tests de integración). Vacíos, se derivan del servidor.
	BaseURL  string
	LoginURL string
}

// Validate verifica que el servidor configurado sea uno de los conocidos.
func (c SIIConfig) Validate() error {
	if c.Servidor != ServidorMaullin && c.Servidor != ServidorPalena {
		return fmt.Errorf("config: servidor SII desconocido %q (usar %q o %q)",
			c.Servidor, ServidorMaullin, ServidorPalena)
	}
	return nil
}

// StorageConfig rutas de almacenamiento en disco y toggles de diagnóstico.
type StorageConfig struct {
	FoliosPath      string // directorio donde se guardan los CAF descargados
	LogPath         string // directorio del log plano (log.txt)
	DebugPath       string // directorio de snapshots HTML por sesión
	EnableLogging   bool
	EnableHTMLDebug bool
}

// Load lee la configuración desde variables de entorno (y opcionalmente desde archivo).
// Las env vars tienen prioridad. Nombres esperados: APP_ENV, SII_SERVIDOR, FOLIOS_PATH, etc.
func Load() (*Config, error) {
	v := viper.New()

	// Opcional: archivo de configuración (.env o config.env)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // ignoramos error si no existe

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig() // ignoramos error si no existe

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env:  getString(v, "APP_ENV", "development"),
			Name: getString(v, "APP_NAME", "sii-folios-api"),
		},
		HTTP: HTTPConfig{
			Host: getString(v, "HTTP_HOST", "0.0.0.0"),
			Port: getInt(v, "HTTP_PORT", 8080),
		},
		SII: SIIConfig{
			Servidor: getString(v, "SII_SERVIDOR", ServidorMaullin),
			Timeout:  time.Duration(getInt(v, "SII_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Storage: StorageConfig{
			FoliosPath:      getString(v, "FOLIOS_PATH", "./storage/folios"),
			LogPath:         getString(v, "LOG_PATH", "./storage/logs"),
			DebugPath:       getString(v, "DEBUG_PATH", "./storage/debug"),
			EnableLogging:   getBool(v, "ENABLE_LOGGING", true),
			EnableHTMLDebug: getBool(v, "ENABLE_HTML_DEBUG", true),
		},
	}

	if err := cfg.SII.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case int:
			return v.GetInt(key)
		case string:
			n, _ := strconv.Atoi(v.GetString(key))
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}

func getBool(v *viper.Viper, key string, def bool) bool {
	if v.IsSet(key) {
		switch val := v.Get(key).(type) {
		case bool:
			return val
		case string:
			b, err := strconv.ParseBool(val)
			if err != nil {
				return def
			}
			return b
		default:
			return v.GetBool(key)
		}
	}
	return def
}
