package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithEnvOverride(t *testing.T) {
	originalDir, err := os.Getwd()
	require.NoError(t, err)
	defer os.Chdir(originalDir)
	require.NoError(t, os.Chdir(t.TempDir()))

	t.Setenv("CHAT_AUTH_JWT_SECRET", "s3cret")
	t.Setenv("CHAT_HTTP_PORT", "9090")
	t.Setenv("CHAT_REALTIME_SEND_LIMIT", "5")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.HTTP.Port)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "jwt", cfg.Auth.Mode)
	assert.Equal(t, 256, cfg.Realtime.SendBuffer)
	assert.Equal(t, 5, cfg.Realtime.SendLimit)
	assert.Equal(t, time.Minute, cfg.Realtime.SendWindow)
	assert.Equal(t, 5*time.Minute, cfg.Redis.ProfileTTL)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chat.yaml")
	content := []byte(`
service: chat-test
auth:
  mode: grpc
  grpc_addr: auth:9000
redis:
  addr: localhost:6379
log:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "chat-test", cfg.Service)
	assert.Equal(t, "grpc", cfg.Auth.Mode)
	assert.Equal(t, "auth:9000", cfg.Auth.GRPCAddr)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestValidate(t *testing.T) {
	var cfg Config
	cfg.Auth.Mode = "jwt"
	cfg.Realtime.SendBuffer = 1
	assert.Error(t, cfg.Validate(), "jwt mode without a secret")

	cfg.Auth.JWTSecret = "x"
	assert.NoError(t, cfg.Validate())

	cfg.Auth.Mode = "ldap"
	assert.Error(t, cfg.Validate())

	cfg.Auth.Mode = "jwt"
	cfg.Realtime.SendLimit = 3
	assert.Error(t, cfg.Validate(), "limit without window")
}
