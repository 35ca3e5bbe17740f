package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
database:
  redis:
    host: localhost
    port: 6379
routing:
  hint_rules:
    - name: music
      expression: 'type.startsWith("PLAY_")'
      requires_real_time: true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Dedup.Store)
	assert.Equal(t, 5*time.Minute, cfg.Dedup.RetentionWindow)
	assert.Equal(t, 30*time.Second, cfg.Processor.DefaultTimeout)
	assert.Equal(t, "command_requests", cfg.Broker.Kafka.InputTopic)
	require.Len(t, cfg.Routing.HintRules, 1)
	assert.True(t, cfg.Routing.HintRules[0].RequiresRealTime)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DATABASE_REDIS_ADDRS", "r1:6379, r2:6379,")

	cfg, err := LoadConfig(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"r1:6379", "r2:6379"}, cfg.Database.Redis.Addrs)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_InvalidRejected(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, minimalYAML+"dedup:\n  on_store_error: maybe\n"))
	require.Error(t, err)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "dedup.on_store_error", ve.Field)
}

func TestValidateRedis(t *testing.T) {
	tests := []struct {
		name  string
		cfg   RedisConfig
		field string
	}{
		{name: "host and port", cfg: RedisConfig{Host: "localhost", Port: 6379}},
		{name: "addrs", cfg: RedisConfig{Addrs: []string{"a:6379", "b:6379"}}},
		{name: "bad addr", cfg: RedisConfig{Addrs: []string{"a:6379", "nohost"}}, field: "database.redis.addrs[1]"},
		{name: "missing host", cfg: RedisConfig{Port: 6379}, field: "database.redis.host"},
		{name: "bad port", cfg: RedisConfig{Host: "localhost", Port: 70000}, field: "database.redis.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRedis(tt.cfg)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestValidateRouting(t *testing.T) {
	assert.NoError(t, validateRouting(RoutingConfig{HintRules: []HintRuleConfig{{Expression: "true", Priority: "high"}}}))
	assert.Error(t, validateRouting(RoutingConfig{HintRules: []HintRuleConfig{{Expression: " "}}}))
	assert.Error(t, validateRouting(RoutingConfig{HintRules: []HintRuleConfig{{Expression: "true", Priority: "urgent"}}}))
}
