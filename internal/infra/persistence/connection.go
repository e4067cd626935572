package persistence

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chainproof-io/chainproof/internal/infra/config"
)

// NewConnectionPool creates the Postgres pool for the chain store.
// Production mode refuses to run without TLS: the audit chain is only
// as trustworthy as the link it is written over.
func NewConnectionPool(ctx context.Context, dbConfig config.DatabaseConfig, serverConfig config.ServerConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dbConfig.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse db config: %w", err)
	}

	if serverConfig.Mode == "production" && !dbConfig.TLS {
		return nil, fmt.Errorf("database connection must use TLS in production mode")
	}

	if dbConfig.TLS {
		poolConfig.ConnConfig.TLSConfig = &tls.Config{
			ServerName: poolConfig.ConnConfig.Host,
			MinVersion: tls.VersionTLS12,
		}
	}

	poolConfig.MaxConns = dbConfig.MaxConns
	poolConfig.MinConns = dbConfig.MinConns
	poolConfig.MaxConnIdleTime = dbConfig.MaxConnIdleTime
	poolConfig.MaxConnLifetime = dbConfig.MaxConnLifetime
	poolConfig.HealthCheckPeriod = dbConfig.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
