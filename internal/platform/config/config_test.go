package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  url: "file:/tmp/endurancy-test.db"
payment:
  confirm_url_template: "https://app.endurancy.com.br/pagamento/{token}"
  pending_order_ttl: 24h
email:
  smtp:
    host: smtp.example.com
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "file:/tmp/endurancy-test.db", cfg.Database.URL)
	assert.Equal(t, "https://app.endurancy.com.br/pagamento/{token}", cfg.Payment.ConfirmURLTemplate)
	assert.Equal(t, 24*time.Hour, cfg.Payment.PendingOrderTTL)
	assert.Equal(t, "smtp.example.com", cfg.Email.SMTP.Host)

	// defaults
	assert.Equal(t, "BRL", cfg.Payment.Currency)
	assert.Equal(t, 587, cfg.Email.SMTP.Port)
	assert.Equal(t, uint32(5), cfg.Email.Breaker.FailureThreshold)
	assert.Equal(t, time.Hour, cfg.Workers.ReconcileInterval)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("PAYMENT_CURRENCY", "USD")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "USD", cfg.Payment.Currency)
}

func TestLoad_RejectsTemplateWithoutToken(t *testing.T) {
	path := writeConfig(t, "payment:\n  confirm_url_template: \"https://example.com/confirm\"\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_SecretsFromEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("EMAIL_SMTP_PASSWORD", "hunter2")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "hunter2", cfg.Email.SMTP.Password)
}

func TestLoad_TrustedProxies(t *testing.T) {
	path := writeConfig(t, "rate_limit:\n  trusted_proxies:\n    - 10.0.0.0/8\n    - 172.16.0.0/12\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "172.16.0.0/12"}, cfg.RateLimit.TrustedProxies)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.RateLimit.TrustedProxies)
}
