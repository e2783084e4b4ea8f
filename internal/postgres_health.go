package internal

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dsql/auth"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lychee-technology/datamodel"
	"go.uber.org/zap"
)

// PostgresDSN builds a connection URL for cfg. When cfg.UseIAM is set the password is replaced
// by a short-lived DSQL auth token for cfg.Region.
func PostgresDSN(ctx context.Context, cfg datamodel.DatabaseConfig) (string, error) {
	password := cfg.Password
	if cfg.UseIAM {
		awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
		if err != nil {
			return "", fmt.Errorf("load aws config: %w", err)
		}
		endpoint := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
		token, err := auth.GenerateDbConnectAuthToken(ctx, endpoint, awsCfg.Region, awsCfg.Credentials)
		if err != nil {
			return "", fmt.Errorf("generate dsql auth token: %w", err)
		}
		password = token
		zap.S().Infow("generated IAM auth token for schema store connection", "host", cfg.Host)
	}

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.Username, password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Database,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String(), nil
}

// NewPostgresPool opens a pool sized by cfg.MaxConnections and pings it.
func NewPostgresPool(ctx context.Context, cfg datamodel.DatabaseConfig) (*pgxpool.Pool, error) {
	dsn, err := PostgresDSN(ctx, cfg)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConnections)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return pool, nil
}

// PostgresHealthCheck verifies the database answers and the schema table is readable.
// timeout may be 0 to use a sensible default (5s).
func PostgresHealthCheck(ctx context.Context, cfg datamodel.DatabaseConfig, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	cfg.Timeout = timeout
	pool, err := NewPostgresPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	query := fmt.Sprintf("SELECT count(*) FROM %s WHERE namespace = $1", sanitizeIdentifier(cfg.SchemaTable))
	var count int64
	if err := pool.QueryRow(ctx, query, cfg.Namespace).Scan(&count); err != nil {
		return fmt.Errorf("schema table %s not readable: %w", cfg.SchemaTable, err)
	}
	zap.S().Debugw("postgres schema store healthy", "table", cfg.SchemaTable, "files", count)
	return nil
}
