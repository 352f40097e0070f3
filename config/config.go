package config

import (
	"errors"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	ServiceName string
	LoggerLevel string

	StorageDriver  string
	SQLitePath     string
	MigrationsPath string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string

	TelegramBotToken string
	PollTimeout      time.Duration

	UserPassword  string
	AdminPassword string
	WakeMessage   string

	CameraDir string
	LogFile   string

	APIEnabled bool
	APIAddr    string
}

func Load() Config {
	_ = godotenv.Load(".env")

	cfg := Config{}

	cfg.ServiceName = cast.ToString(getOrReturnDefault("SERVICE_NAME", "oxbobot"))
	cfg.LoggerLevel = cast.ToString(getOrReturnDefault("LOGGER_LEVEL", "info"))

	cfg.StorageDriver = cast.ToString(getOrReturnDefault("STORAGE_DRIVER", DriverSQLite))
	cfg.SQLitePath = cast.ToString(getOrReturnDefault("SQLITE_PATH", "users.db"))
	cfg.MigrationsPath = cast.ToString(getOrReturnDefault("MIGRATIONS_PATH", ""))

	cfg.PostgresHost = cast.ToString(getOrReturnDefault("POSTGRES_HOST", "localhost"))
	cfg.PostgresPort = cast.ToString(getOrReturnDefault("POSTGRES_PORT", "5432"))
	cfg.PostgresUser = cast.ToString(getOrReturnDefault("POSTGRES_USER", "postgres"))
	cfg.PostgresPassword = cast.ToString(getOrReturnDefault("POSTGRES_PASSWORD", ""))
	cfg.PostgresDB = cast.ToString(getOrReturnDefault("POSTGRES_DB", "oxbobot"))

	cfg.TelegramBotToken = cast.ToString(getOrReturnDefault("TG_BOT_TOKEN", ""))
	cfg.PollTimeout = cast.ToDuration(getOrReturnDefault("TG_POLL_TIMEOUT", "10s"))

	cfg.UserPassword = cast.ToString(getOrReturnDefault("USER_PASSWORD", ""))
	cfg.AdminPassword = cast.ToString(getOrReturnDefault("ADMIN_PASSWORD", ""))
	cfg.WakeMessage = cast.ToString(getOrReturnDefault("WAKE_MESSAGE", "I am awake and ready to work."))

	cfg.CameraDir = cast.ToString(getOrReturnDefault("CAMERA_DIR", "snapshots"))
	cfg.LogFile = cast.ToString(getOrReturnDefault("LOG_FILE", ".envrc"))

	cfg.APIEnabled = cast.ToBool(getOrReturnDefault("API_ENABLED", false))
	cfg.APIAddr = cast.ToString(getOrReturnDefault("API_ADDR", "127.0.0.1:8080"))

	return cfg
}

// Validate reports the first setting that prevents the bot from starting.
func (c Config) Validate() error {
	if c.TelegramBotToken == "" {
		return errors.New("TG_BOT_TOKEN is required")
	}
	if c.UserPassword == "" || c.AdminPassword == "" {
		return errors.New("USER_PASSWORD and ADMIN_PASSWORD are required")
	}
	if c.UserPassword == c.AdminPassword {
		return errors.New("USER_PASSWORD and ADMIN_PASSWORD must differ")
	}
	switch c.StorageDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
	default:
		return errors.New("STORAGE_DRIVER must be sqlite or postgres")
	}
	return nil
}

func getOrReturnDefault(key string, defaultValue interface{}) interface{} {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}
