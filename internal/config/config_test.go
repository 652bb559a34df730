package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/emonklabs/emonk/internal/config"
	"github.com/emonklabs/emonk/internal/testutil"
)

func TestDefaults(t *testing.T) {
	cfg := config.Default()

	testutil.Equal(t, "0.0.0.0", cfg.Server.Host)
	testutil.Equal(t, 8080, cfg.Server.Port)
	testutil.Equal(t, "json", cfg.Storage.Backend)
	testutil.Equal(t, "./emonk_data", cfg.Storage.DataDir)
	testutil.Equal(t, "UTC", cfg.Scheduler.Timezone)
	testutil.Equal(t, 100, cfg.Scheduler.TickLimit)
	testutil.Equal(t, 8, cfg.Scheduler.Concurrency)
	testutil.Equal(t, 3, cfg.Scheduler.MaxAttemptsDefault)
	testutil.Equal(t, 60*time.Second, cfg.Scheduler.HandlerTimeout())
	testutil.Equal(t, 60*time.Second, cfg.Scheduler.TickTimeout())
	testutil.Equal(t, "script", cfg.LLM.Backend)
	testutil.Equal(t, 20, cfg.Assistant.HistoryLimit)
	testutil.Equal(t, "log", cfg.Email.Backend)
	testutil.Equal(t, "info", cfg.Logging.Level)
	testutil.Equal(t, "0.0.0.0:8080", cfg.Address())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("CRON_SECRET", "")
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"),
		map[string]string{"port": "9090"})
	// No auth configured fails validation; allow it through the env knob.
	testutil.ErrorContains(t, err, "cron_secret")

	t.Setenv("CRON_SECRET", "sekrit")
	cfg, err = config.Load(filepath.Join(t.TempDir(), "nope.toml"),
		map[string]string{"port": "9090"})
	testutil.NoError(t, err)
	testutil.Equal(t, 9090, cfg.Server.Port)
	testutil.Equal(t, "sekrit", cfg.Scheduler.CronSecret)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "emonk.toml")
	testutil.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTOMLFile(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 3000

[scheduler]
cron_secret = "file-secret"
timezone = "America/Chicago"
tick_limit = 50

[llm]
backend = "openai"
model = "gpt-4o"
api_key = "sk-test"
`)

	cfg, err := config.Load(path, nil)
	testutil.NoError(t, err)
	testutil.Equal(t, 3000, cfg.Server.Port)
	testutil.Equal(t, "file-secret", cfg.Scheduler.CronSecret)
	testutil.Equal(t, "America/Chicago", cfg.Scheduler.Timezone)
	testutil.Equal(t, 50, cfg.Scheduler.TickLimit)
	testutil.Equal(t, "openai", cfg.LLM.Backend)
	// Untouched sections keep their defaults.
	testutil.Equal(t, "json", cfg.Storage.Backend)
	testutil.Equal(t, 8, cfg.Scheduler.Concurrency)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[scheduler]
cron_secret = "file-secret"
timezone = "UTC"
`)
	t.Setenv("CRON_SECRET", "env-secret")
	t.Setenv("SCHEDULER_TIMEZONE", "Europe/Berlin")
	t.Setenv("SCHEDULER_STORAGE", "json")
	t.Setenv("HANDLER_TIMEOUT_SECONDS", "120")
	t.Setenv("LEASE_DURATION_SECONDS", "600")
	t.Setenv("MAX_ATTEMPTS_DEFAULT", "5")

	cfg, err := config.Load(path, nil)
	testutil.NoError(t, err)
	testutil.Equal(t, "env-secret", cfg.Scheduler.CronSecret)
	testutil.Equal(t, "Europe/Berlin", cfg.Scheduler.Timezone)
	testutil.Equal(t, 120, cfg.Scheduler.HandlerTimeoutSecs)
	testutil.Equal(t, 600, cfg.Scheduler.LeaseDurationSecs)
	testutil.Equal(t, 5, cfg.Scheduler.MaxAttemptsDefault)
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	t.Setenv("CRON_SECRET", "sekrit")
	t.Setenv("EMONK_SERVER_PORT", "3000")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"), map[string]string{
		"port":        "4000",
		"storage-url": "postgresql://localhost/emonk",
	})
	testutil.NoError(t, err)
	testutil.Equal(t, 4000, cfg.Server.Port)
	// The storage-url flag also flips the backend.
	testutil.Equal(t, "postgres", cfg.Storage.Backend)
	testutil.Equal(t, "postgresql://localhost/emonk", cfg.Storage.URL)
}

func TestLoadRejectsBadEnvInt(t *testing.T) {
	t.Setenv("CRON_SECRET", "sekrit")
	t.Setenv("EMONK_SERVER_PORT", "eighty")

	_, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"), nil)
	testutil.ErrorContains(t, err, "not an integer")
}

func TestValidate(t *testing.T) {
	base := func() *config.Config {
		cfg := config.Default()
		cfg.Scheduler.CronSecret = "sekrit"
		return cfg
	}

	testutil.NoError(t, base().Validate())

	cfg := base()
	cfg.Server.Port = 0
	testutil.ErrorContains(t, cfg.Validate(), "server.port")

	cfg = base()
	cfg.Storage.Backend = "sqlite"
	testutil.ErrorContains(t, cfg.Validate(), "storage.backend")

	cfg = base()
	cfg.Storage.Backend = "postgres"
	testutil.ErrorContains(t, cfg.Validate(), "storage.url")

	cfg = base()
	cfg.Scheduler.CronSecret = ""
	testutil.ErrorContains(t, cfg.Validate(), "cron_secret")

	cfg = base()
	cfg.Scheduler.CronSecret = ""
	cfg.Scheduler.AllowUnauthenticated = true
	testutil.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Scheduler.Timezone = "Mars/Olympus"
	testutil.ErrorContains(t, cfg.Validate(), "timezone")

	cfg = base()
	cfg.Scheduler.TickLimit = 0
	testutil.ErrorContains(t, cfg.Validate(), "tick_limit")

	cfg = base()
	cfg.LLM.Backend = "openai"
	cfg.LLM.APIKey = ""
	testutil.ErrorContains(t, cfg.Validate(), "llm.api_key")

	cfg = base()
	cfg.Email.Backend = "smtp"
	testutil.ErrorContains(t, cfg.Validate(), "email.host")

	cfg = base()
	cfg.Archive.Enabled = true
	testutil.ErrorContains(t, cfg.Validate(), "archive.s3_endpoint")

	cfg = base()
	cfg.Logging.Level = "verbose"
	testutil.ErrorContains(t, cfg.Validate(), "logging.level")
}

func TestGenerateDefaultIsLoadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emonk.toml")
	testutil.NoError(t, config.GenerateDefault(path))

	t.Setenv("CRON_SECRET", "sekrit")
	cfg, err := config.Load(path, nil)
	testutil.NoError(t, err)
	testutil.Equal(t, 8080, cfg.Server.Port)
	testutil.Equal(t, "json", cfg.Storage.Backend)
	testutil.Equal(t, "1m", cfg.Scheduler.CadenceNote)
}

func TestToTOMLRoundtrip(t *testing.T) {
	cfg := config.Default()
	cfg.Scheduler.CronSecret = "sekrit"
	out, err := cfg.ToTOML()
	testutil.NoError(t, err)
	testutil.Contains(t, out, "cron_secret = 'sekrit'")
	testutil.Contains(t, out, "[scheduler]")
}
