package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Port     int           `env:"TEST_CFG_PORT" envDefault:"5000"`
	Host     string        `env:"TEST_CFG_HOST" envDefault:"localhost"`
	Timeout  time.Duration `env:"TEST_CFG_TIMEOUT" envDefault:"5s"`
	Origins  []string      `env:"TEST_CFG_ORIGINS" envDefault:"http://localhost:5173" envSeparator:","`
	Insecure bool          `env:"TEST_CFG_INSECURE" envDefault:"false"`
}

func noEnvFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	var cfg testConfig
	err := Load(&cfg, noEnvFile(t))

	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Origins)
	assert.False(t, cfg.Insecure)
}

func TestLoad_FromEnvVars(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "9090")
	t.Setenv("TEST_CFG_TIMEOUT", "250ms")
	t.Setenv("TEST_CFG_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("TEST_CFG_INSECURE", "true")

	var cfg testConfig
	err := Load(&cfg, noEnvFile(t))

	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.Timeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Origins)
	assert.True(t, cfg.Insecure)
}

func TestLoad_ReadsDotenvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TEST_CFG_HOST=db.internal\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("TEST_CFG_HOST") })

	var cfg testConfig
	err := Load(&cfg, path)

	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Host)
}

func TestLoad_EnvironmentWinsOverDotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TEST_CFG_PORT=7000\n"), 0o600))
	t.Setenv("TEST_CFG_PORT", "8000")

	var cfg testConfig
	err := Load(&cfg, path)

	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Port)
}

type requiredConfig struct {
	APIKey string `env:"TEST_CFG_API_KEY,required"`
}

func TestLoad_RequiredFieldMissing(t *testing.T) {
	var cfg requiredConfig
	err := Load(&cfg, noEnvFile(t))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoad_InvalidType(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "not-a-number")

	var cfg testConfig
	err := Load(&cfg, noEnvFile(t))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}
