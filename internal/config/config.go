package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/bher20/ebill/internal/alerting"
	"github.com/bher20/ebill/internal/logging"
	"github.com/bher20/ebill/internal/notification"
	"github.com/bher20/ebill/internal/storage"
)

type Config struct {
	DBDriver       string
	DBDSN          string
	TariffFile     string
	Table          string
	ReloadSchedule string
	LogLevel       string
	LogFormat      string
	Mail           notification.Config
	Alert          alerting.AlertConfig
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// FromEnv builds a Config from environment variables, with sane defaults.
func FromEnv() Config {
	port, err := strconv.Atoi(getenv("EBILL_MAIL_PORT", "587"))
	if err != nil {
		port = 587
	}
	minFailures, err := strconv.Atoi(getenv("EBILL_ALERT_MIN_FAILURES", "1"))
	if err != nil || minFailures <= 0 {
		minFailures = 1
	}
	return Config{
		DBDriver:       getenv("EBILL_DB_DRIVER", "sqlite"),
		DBDSN:          getenv("EBILL_DB_DSN", "ebill.db"),
		TariffFile:     os.Getenv("EBILL_TARIFF_FILE"),
		Table:          getenv("EBILL_TABLE", "default"),
		ReloadSchedule: getenv("EBILL_RELOAD_SCHEDULE", "@every 5m"),
		LogLevel:       getenv("EBILL_LOG_LEVEL", "info"),
		LogFormat:      getenv("EBILL_LOG_FORMAT", "console"),
		Mail: notification.Config{
			Provider:    os.Getenv("EBILL_MAIL_PROVIDER"),
			Host:        os.Getenv("EBILL_MAIL_HOST"),
			Port:        port,
			Username:    os.Getenv("EBILL_MAIL_USERNAME"),
			Password:    os.Getenv("EBILL_MAIL_PASSWORD"),
			Encryption:  getenv("EBILL_MAIL_ENCRYPTION", "tls"),
			FromAddress: os.Getenv("EBILL_MAIL_FROM"),
			FromName:    getenv("EBILL_MAIL_FROM_NAME", "ebill"),
			APIKey:      os.Getenv("EBILL_SENDGRID_API_KEY"),
		},
		Alert: alerting.AlertConfig{
			WebhookURL:             os.Getenv("EBILL_ALERT_WEBHOOK_URL"),
			WebhookType:            os.Getenv("EBILL_ALERT_WEBHOOK_TYPE"),
			MinFailuresBeforeAlert: minFailures,
		},
	}
}

// LoadDotEnv loads variables from a .env file without overriding ones already
// set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// Storage returns the storage settings.
func (c Config) Storage() storage.Config {
	return storage.Config{Driver: c.DBDriver, DSN: c.DBDSN}
}

// Logging returns the logger settings.
func (c Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.LogLevel
	cfg.Format = c.LogFormat
	return cfg
}
