package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Service.Port)
	assert.Equal(t, 5*time.Minute, cfg.QRLogin.SessionTTL)
	assert.Equal(t, 60*time.Second, cfg.QRLogin.SetupTimeout)
	assert.Equal(t, 5*time.Second, cfg.QRLogin.PollTimeout)
	assert.Equal(t, CookieBackendEnv, cfg.CookieStore.Backend)
	assert.Equal(t, cfg.Service.EnvFile, cfg.CookieStore.EnvPath)
	assert.Equal(t, []string{"sessionid", "s_v_web_id"}, cfg.Platform.RequiredCookies)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.False(t, cfg.Database.Enabled())
}

func TestLoad_FromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := "SERVICE_PORT=9100\nQR_SESSION_TTL=90s\nKAFKA_BROKERS=a:9092, b:9092\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("ENV_FILE", path)
	// godotenv.Load does not override variables that are already set,
	// so register cleanup for the ones the file introduces.
	t.Setenv("SERVICE_PORT", "")
	t.Setenv("QR_SESSION_TTL", "")
	t.Setenv("KAFKA_BROKERS", "")
	os.Unsetenv("SERVICE_PORT")
	os.Unsetenv("QR_SESSION_TTL")
	os.Unsetenv("KAFKA_BROKERS")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Service.Port)
	assert.Equal(t, 90*time.Second, cfg.QRLogin.SessionTTL)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, path, cfg.CookieStore.EnvPath)
}

func TestValidate_UnknownBackend(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("COOKIE_STORE_BACKEND", "s3")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COOKIE_STORE_BACKEND")
}

func TestGetDSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "auth", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=auth sslmode=disable", cfg.GetDSN())
}
