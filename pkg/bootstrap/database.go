package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bubbles/internal/config"
	"bubbles/internal/constants"
	"bubbles/internal/logger"
	"bubbles/pkg/migrations"
)

const (
	postgresMaxOpenConns    = 10
	postgresMaxIdleConns    = 5
	postgresConnMaxLifetime = 30 * time.Minute
)

type DatabaseConnector struct {
	Config *config.Config
	Logger logger.Logger
}

func NewDatabaseConnector(cfg *config.Config, log logger.Logger) *DatabaseConnector {
	return &DatabaseConnector{
		Config: cfg,
		Logger: log,
	}
}

// InitRedis connects the dedup store, job queue and command state client.
// Addrs selects cluster or sentinel mode; otherwise Host/Port is used.
func (dc *DatabaseConnector) InitRedis(ctx context.Context) (redis.UniversalClient, error) {
	opts := redisOptions(dc.Config.Database.Redis)
	rdb := redis.NewUniversalClient(opts)

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	dc.Logger.Infow("Redis connected", "addrs", opts.Addrs, "master", opts.MasterName)
	return rdb, nil
}

func redisOptions(cfg config.RedisConfig) *redis.UniversalOptions {
	addrs := cfg.Addrs
	if len(addrs) == 0 {
		addrs = []string{net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))}
	}
	return &redis.UniversalOptions{
		Addrs:      addrs,
		MasterName: cfg.MasterName,
		Password:   cfg.Password,
		DB:         cfg.DB,
	}
}

// InitPostgreSQL connects the audit database. It returns nil when no host is
// configured, and applies the embedded migrations when enabled.
func (dc *DatabaseConnector) InitPostgreSQL(ctx context.Context) (*sql.DB, error) {
	pg := dc.Config.Database.Postgres
	if pg.Host == "" {
		return nil, nil
	}

	db, err := sql.Open("postgres", postgresDSN(pg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(postgresMaxOpenConns)
	db.SetMaxIdleConns(postgresMaxIdleConns)
	db.SetConnMaxLifetime(postgresConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if dc.Config.Database.RunMigrations {
		if err := migrations.RunPostgres(db); err != nil {
			db.Close()
			return nil, err
		}
		dc.Logger.Info("PostgreSQL migrations applied")
	}

	dc.Logger.Infow("PostgreSQL connected", "host", pg.Host, "database", pg.DBName)
	return db, nil
}

// postgresDSN escapes credentials so passwords may contain URL delimiters.
func postgresDSN(cfg config.PostgresConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.DBName,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}

// InitMongoDB connects the guild config database, or returns nil when no
// URI is configured.
func (dc *DatabaseConnector) InitMongoDB(ctx context.Context) (*mongo.Client, error) {
	if dc.Config.Database.MongoDB.URI == "" {
		return nil, nil
	}

	mongoOpts := options.Client().
		ApplyURI(dc.Config.Database.MongoDB.URI).
		SetAppName("bubbles")
	client, err := mongo.Connect(ctx, mongoOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	dc.Logger.Info("MongoDB connected")
	return client, nil
}

// MongoDatabase returns the configured database and makes sure its
// collections are indexed.
func (dc *DatabaseConnector) MongoDatabase(ctx context.Context, client *mongo.Client) (*mongo.Database, error) {
	name := dc.Config.Database.MongoDB.Database
	if name == "" {
		name = constants.DefaultMongoDBName
	}
	db := client.Database(name)
	if err := migrations.EnsureMongoCollection(ctx, db); err != nil {
		return nil, err
	}
	return db, nil
}

// ShutdownDatabases closes whichever clients were opened; nil ones are
// skipped.
func (dc *DatabaseConnector) ShutdownDatabases(ctx context.Context, rdb redis.UniversalClient, pg *sql.DB, mc *mongo.Client) []error {
	var errs []error

	if rdb != nil {
		if err := rdb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}
	if pg != nil {
		if err := pg.Close(); err != nil {
			errs = append(errs, fmt.Errorf("postgres close error: %w", err))
		}
	}
	if mc != nil {
		if err := mc.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongodb disconnect error: %w", err))
		}
	}

	return errs
}
