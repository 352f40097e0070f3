package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TG_BOT_TOKEN", "token")
	t.Setenv("USER_PASSWORD", "batman")
	t.Setenv("ADMIN_PASSWORD", "superman")

	cfg := Load()

	assert.Equal(t, "oxbobot", cfg.ServiceName)
	assert.Equal(t, DriverSQLite, cfg.StorageDriver)
	assert.Equal(t, "users.db", cfg.SQLitePath)
	assert.Equal(t, 10*time.Second, cfg.PollTimeout)
	assert.False(t, cfg.APIEnabled)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("POSTGRES_PORT", "6543")
	t.Setenv("TG_POLL_TIMEOUT", "30s")
	t.Setenv("API_ENABLED", "true")

	cfg := Load()

	assert.Equal(t, DriverPostgres, cfg.StorageDriver)
	assert.Equal(t, "6543", cfg.PostgresPort)
	assert.Equal(t, 30*time.Second, cfg.PollTimeout)
	assert.True(t, cfg.APIEnabled)
}

func TestValidate(t *testing.T) {
	valid := Config{
		TelegramBotToken: "token",
		UserPassword:     "batman",
		AdminPassword:    "superman",
		StorageDriver:    DriverSQLite,
		SQLitePath:       "users.db",
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing token", func(c *Config) { c.TelegramBotToken = "" }},
		{"missing user secret", func(c *Config) { c.UserPassword = "" }},
		{"same secrets", func(c *Config) { c.AdminPassword = c.UserPassword }},
		{"unknown driver", func(c *Config) { c.StorageDriver = "mysql" }},
		{"missing sqlite path", func(c *Config) { c.SQLitePath = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
