package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{"EBILL_DB_DRIVER", "EBILL_DB_DSN", "EBILL_TARIFF_FILE", "EBILL_TABLE", "EBILL_RELOAD_SCHEDULE", "EBILL_MAIL_PORT", "EBILL_MAIL_PROVIDER", "EBILL_ALERT_WEBHOOK_URL", "EBILL_ALERT_MIN_FAILURES"} {
		t.Setenv(key, "")
	}
	cfg := FromEnv()
	if cfg.DBDriver != "sqlite" || cfg.DBDSN != "ebill.db" || cfg.Table != "default" || cfg.ReloadSchedule != "@every 5m" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.TariffFile != "" {
		t.Fatalf("tariff file should be unset, got %q", cfg.TariffFile)
	}
	if cfg.Mail.Port != 587 || cfg.Mail.Enabled() {
		t.Fatalf("unexpected mail defaults: %+v", cfg.Mail)
	}
	if cfg.Alert.Enabled() || cfg.Alert.MinFailuresBeforeAlert != 1 {
		t.Fatalf("unexpected alert defaults: %+v", cfg.Alert)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("EBILL_DB_DRIVER", "postgres")
	t.Setenv("EBILL_DB_DSN", "postgres://db/ebill")
	t.Setenv("EBILL_TARIFF_FILE", "/etc/ebill/tariffs.yaml")
	t.Setenv("EBILL_RELOAD_SCHEDULE", "300")
	t.Setenv("EBILL_LOG_FORMAT", "json")
	t.Setenv("EBILL_MAIL_PROVIDER", "sendgrid")
	t.Setenv("EBILL_MAIL_FROM", "billing@utility.example")
	t.Setenv("EBILL_MAIL_PORT", "not-a-port")
	t.Setenv("EBILL_ALERT_WEBHOOK_URL", "https://hooks.slack.com/services/T/B/X")
	t.Setenv("EBILL_ALERT_MIN_FAILURES", "3")

	cfg := FromEnv()
	if cfg.Storage().Driver != "postgres" || cfg.Storage().DSN != "postgres://db/ebill" {
		t.Fatalf("unexpected storage config: %+v", cfg.Storage())
	}
	if cfg.TariffFile != "/etc/ebill/tariffs.yaml" || cfg.ReloadSchedule != "300" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Logging().Format != "json" {
		t.Fatalf("log format = %q", cfg.Logging().Format)
	}
	if !cfg.Mail.Enabled() || cfg.Mail.Port != 587 {
		t.Fatalf("unexpected mail config: %+v", cfg.Mail)
	}
	if !cfg.Alert.Enabled() || cfg.Alert.MinFailuresBeforeAlert != 3 {
		t.Fatalf("unexpected alert config: %+v", cfg.Alert)
	}
}

func TestLoadDotEnv(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing file should be ignored, got %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("EBILL_TABLE=summer\nEBILL_DB_DRIVER=memory\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("EBILL_TABLE", "")
	t.Setenv("EBILL_DB_DRIVER", "sqlite")
	os.Unsetenv("EBILL_TABLE")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	cfg := FromEnv()
	if cfg.Table != "summer" {
		t.Fatalf("table = %q, want summer from .env", cfg.Table)
	}
	if cfg.DBDriver != "sqlite" {
		t.Fatalf("existing variable was overridden: %q", cfg.DBDriver)
	}
}
