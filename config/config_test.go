package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_SECRET", "access")
	t.Setenv("REFRESH_TOKEN_SECRET", "refresh")
	t.Setenv("PORT", "")
	t.Setenv("SERVER_PORT", "")

	cfg := LoadConfig()

	assert.Equal(t, 3000, cfg.ServerPort)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, time.Hour, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTokenTTL)
	assert.Equal(t, 10, cfg.Auth.BcryptCost)
	assert.Equal(t, BackendNone, cfg.MQ.Backend)
	assert.Equal(t, BackendNone, cfg.Storage.Backend)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigPortPrecedence(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("SERVER_PORT", "8081")
	assert.Equal(t, 8081, LoadConfig().ServerPort)

	t.Setenv("PORT", "9090")
	assert.Equal(t, 9090, LoadConfig().ServerPort)
}

func TestLoadConfigParsesTypedValues(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL", "15m")
	t.Setenv("REFRESH_TOKEN_TTL", "not-a-duration")
	t.Setenv("DB_USE_SSL", "true")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,,")
	t.Setenv("TRACING_SAMPLE_RATE", "0.25")
	t.Setenv("DB_PORT", "abc")

	cfg := LoadConfig()

	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTokenTTL)
	assert.True(t, cfg.Database.UseSSL)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.MQ.Kafka.Brokers)
	assert.InDelta(t, 0.25, cfg.Tracing.SampleRate, 1e-9)
	assert.Equal(t, 5432, cfg.Database.Port)
}

func TestValidate(t *testing.T) {
	valid := Config{
		Database: DatabaseConfig{Driver: DriverSQLite},
		Auth:     AuthConfig{AccessTokenSecret: "a", RefreshTokenSecret: "b"},
		MQ:       MQConfig{Backend: BackendNone},
		Storage:  StorageConfig{Backend: BackendNone},
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "missing access secret",
			mutate: func(c *Config) { c.Auth.AccessTokenSecret = "" },
			want:   "ACCESS_TOKEN_SECRET is required",
		},
		{
			name:   "missing refresh secret",
			mutate: func(c *Config) { c.Auth.RefreshTokenSecret = "" },
			want:   "REFRESH_TOKEN_SECRET is required",
		},
		{
			name:   "shared secret",
			mutate: func(c *Config) { c.Auth.RefreshTokenSecret = c.Auth.AccessTokenSecret },
			want:   "must differ",
		},
		{
			name:   "unknown driver",
			mutate: func(c *Config) { c.Database.Driver = "mysql" },
			want:   "unsupported DB_DRIVER",
		},
		{
			name:   "unknown mq backend",
			mutate: func(c *Config) { c.MQ.Backend = "nats" },
			want:   "unsupported MQ_BACKEND",
		},
		{
			name:   "unknown storage backend",
			mutate: func(c *Config) { c.Storage.Backend = "s3" },
			want:   "unsupported STORAGE_BACKEND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
