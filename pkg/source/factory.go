package source

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/jackc/pgx/v5/pgxpool"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	_ "github.com/databricks/databricks-sql-go"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/marcboeker/go-duckdb"
	_ "github.com/microsoft/go-mssqldb"
	_ "github.com/sijms/go-ora/v2"
	_ "github.com/snowflakedb/gosnowflake"

	"github.com/setupranali/gateway/pkg/dialect"
)

// PoolConfig is per-source pool sizing, decrypted out of the credential
// vault and the catalog's source configuration.
type PoolConfig struct {
	Kind         dialect.Kind
	DSN          string
	GCPProjectID string // bigquery only
	PoolSize     int
	MaxWait      time.Duration
	IdleTimeout  time.Duration
}

// driverNames maps a Kind to its database/sql driver name, for every kind
// that ships one. Postgres-family kinds use pgxpool directly instead; the
// bigquery kind builds its own client instead of a database/sql DB.
var driverNames = map[dialect.Kind]string{
	dialect.MySQL:      "mysql",
	dialect.ClickHouse:  "clickhouse",
	dialect.DuckDB:      "duckdb",
	dialect.SQLServer:   "sqlserver",
	dialect.Oracle:      "oracle",
	dialect.Snowflake:   "snowflake",
	dialect.Databricks:  "databricks",
}

// Open builds a pool for cfg.Kind and returns it alongside a close func.
func Open(ctx context.Context, cfg PoolConfig) (*Entry, error) {
	d, ok := dialect.Get(cfg.Kind)
	if !ok {
		return nil, fmt.Errorf("source: unknown dialect kind %q", cfg.Kind)
	}

	switch cfg.Kind {
	case dialect.Postgres, dialect.CockroachDB, dialect.Redshift:
		return openPgx(ctx, cfg, d)
	case dialect.BigQuery:
		return openBigQuery(ctx, cfg, d)
	default:
		return openSQL(cfg, d)
	}
}

func openPgx(ctx context.Context, cfg PoolConfig, d dialect.Descriptor) (*Entry, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.PoolSize > 0 {
		poolCfg.MaxConns = int32(cfg.PoolSize)
	}
	if cfg.IdleTimeout > 0 {
		poolCfg.MaxConnIdleTime = cfg.IdleTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}

	adapter := NewPgxPool(pool, d, cfg.MaxWait)
	return &Entry{Kind: cfg.Kind, Descriptor: d, Pool: adapter, close: adapter.Close}, nil
}

func openSQL(cfg PoolConfig, d dialect.Descriptor) (*Entry, error) {
	driverName, ok := driverNames[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("source: no database/sql driver registered for kind %q", cfg.Kind)
	}

	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.PoolSize > 0 {
		db.SetMaxOpenConns(cfg.PoolSize)
		db.SetMaxIdleConns(cfg.PoolSize)
	}
	if cfg.IdleTimeout > 0 {
		db.SetConnMaxIdleTime(cfg.IdleTimeout)
	}

	adapter := NewSQLPool(db, d, cfg.MaxWait)
	return &Entry{Kind: cfg.Kind, Descriptor: d, Pool: adapter, close: adapter.Close}, nil
}

func openBigQuery(ctx context.Context, cfg PoolConfig, d dialect.Descriptor) (*Entry, error) {
	client, err := bigquery.NewClient(ctx, cfg.GCPProjectID)
	if err != nil {
		return nil, err
	}

	size := cfg.PoolSize
	if size <= 0 {
		size = 4 // HTTP-backed warehouses get a small pool, per spec.md §4.7
	}
	adapter := NewBigQueryPool(client, size, cfg.MaxWait)
	return &Entry{Kind: cfg.Kind, Descriptor: d, Pool: adapter, close: adapter.Close}, nil
}
