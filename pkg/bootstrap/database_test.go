package bootstrap

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bubbles/internal/config"
	"bubbles/internal/logger"
)

func TestPostgresDSN(t *testing.T) {
	dsn := postgresDSN(config.PostgresConfig{
		Host:     "db",
		Port:     5432,
		User:     "bubbles",
		Password: "p@ss/word",
		DBName:   "audit",
	})
	assert.Equal(t, "postgres://bubbles:p%40ss%2Fword@db:5432/audit?sslmode=disable", dsn)
}

func TestRedisOptions(t *testing.T) {
	single := redisOptions(config.RedisConfig{Host: "cache", Port: 6379, DB: 2})
	assert.Equal(t, []string{"cache:6379"}, single.Addrs)
	assert.Equal(t, 2, single.DB)

	sentinel := redisOptions(config.RedisConfig{Addrs: []string{"s1:26379", "s2:26379"}, MasterName: "main"})
	assert.Equal(t, []string{"s1:26379", "s2:26379"}, sentinel.Addrs)
	assert.Equal(t, "main", sentinel.MasterName)
}

func TestInitRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := &config.Config{}
	cfg.Database.Redis.Addrs = []string{mr.Addr()}
	dc := NewDatabaseConnector(cfg, logger.NopLogger())

	rdb, err := dc.InitRedis(context.Background())
	require.NoError(t, err)
	require.NoError(t, rdb.Set(context.Background(), "k", "v", 0).Err())
	assert.Empty(t, dc.ShutdownDatabases(context.Background(), rdb, nil, nil))
}

func TestInitOptionalDatabasesSkippedWhenUnset(t *testing.T) {
	dc := NewDatabaseConnector(&config.Config{}, logger.NopLogger())

	db, err := dc.InitPostgreSQL(context.Background())
	require.NoError(t, err)
	assert.Nil(t, db)

	mc, err := dc.InitMongoDB(context.Background())
	require.NoError(t, err)
	assert.Nil(t, mc)
}
