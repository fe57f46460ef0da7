package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SinaHo/community-gate-bot/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func TestLoadConfig_ShippedFile(t *testing.T) {
	cfg, err := config.LoadConfig(".")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Referral.Threshold)
	assert.Equal(t, config.DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, time.Minute, cfg.Diagnostics.Interval)
}

func TestLoadConfig_DefaultsWithoutFile(t *testing.T) {
	cfg, err := config.LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Referral.Threshold)
	assert.Equal(t, 16, cfg.Telegram.Workers)
	assert.Equal(t, "gatebot:", cfg.Redis.KeyPrefix)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	dir := writeConfig(t, "store:\n  driver: memory\nreferral:\n  threshold: 3\n")
	t.Setenv("REFERRAL_THRESHOLD", "5")
	t.Setenv("STORE_DRIVER", "redis")

	cfg, err := config.LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Referral.Threshold)
	assert.Equal(t, config.DriverRedis, cfg.Store.Driver)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"driver":      "store:\n  driver: sqlite\n",
		"threshold":   "referral:\n  threshold: 0\n",
		"workers":     "telegram:\n  workers: 0\n",
		"diagnostics": "diagnostics:\n  enabled: true\n  interval: 0s\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestPostgresConfig_DSN(t *testing.T) {
	p := config.PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "gate", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=gate sslmode=disable", p.DSN())
}
