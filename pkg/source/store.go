package source

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/setupranali/gateway/pkg/dialect"
	"github.com/setupranali/gateway/pkg/vault"
)

const sourceColumns = `id, kind, credential_blob, pool_size, max_wait_ms, idle_timeout_ms, gcp_project_id, created_at`

// Config is one persisted source definition: its kind, its encrypted
// connection string (or, for BigQuery, project id), and its pool sizing.
// The decrypted DSN only ever exists in memory, for the duration of
// PgStore.Open.
type Config struct {
	ID             string
	Kind           dialect.Kind
	CredentialBlob []byte // vault-sealed DSN
	PoolSize       int
	MaxWait        time.Duration
	IdleTimeout    time.Duration
	GCPProjectID   string
	CreatedAt      time.Time
}

// PgStore persists source definitions in the control-plane database.
// Credentials are sealed with a Vault before INSERT and opened only at
// connection-open time, never logged or returned over the admin API.
type PgStore struct {
	pool  *pgxpool.Pool
	vault *vault.Vault
}

// NewPgStore creates a Store backed by the control-plane pool, sealing and
// opening credentials with v.
func NewPgStore(pool *pgxpool.Pool, v *vault.Vault) *PgStore {
	return &PgStore{pool: pool, vault: v}
}

func scanConfig(row pgx.Row) (Config, error) {
	var c Config
	var kind string
	var poolSize, maxWaitMS, idleTimeoutMS int
	if err := row.Scan(&c.ID, &kind, &c.CredentialBlob, &poolSize, &maxWaitMS, &idleTimeoutMS, &c.GCPProjectID, &c.CreatedAt); err != nil {
		return Config{}, err
	}
	c.Kind = dialect.Kind(kind)
	c.PoolSize = poolSize
	c.MaxWait = time.Duration(maxWaitMS) * time.Millisecond
	c.IdleTimeout = time.Duration(idleTimeoutMS) * time.Millisecond
	return c, nil
}

// List returns every persisted source definition, for registry warm-up on
// process start.
func (s *PgStore) List(ctx context.Context) ([]Config, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}
	defer rows.Close()

	var configs []Config
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning source row: %w", err)
		}
		configs = append(configs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating source rows: %w", err)
	}
	return configs, nil
}

// CreateParams is the admin-supplied shape for POST /v1/sources. DSN is the
// plaintext connection string; it is sealed before being persisted and
// never stored or logged in the clear.
type CreateParams struct {
	ID           string
	Kind         dialect.Kind
	DSN          string
	PoolSize     int
	MaxWait      time.Duration
	IdleTimeout  time.Duration
	GCPProjectID string
}

// Create seals p.DSN and persists a new source definition.
func (s *PgStore) Create(ctx context.Context, p CreateParams) (Config, error) {
	blob, err := s.vault.Seal([]byte(p.DSN))
	if err != nil {
		return Config{}, fmt.Errorf("sealing credential: %w", err)
	}

	query := `INSERT INTO sources (id, kind, credential_blob, pool_size, max_wait_ms, idle_timeout_ms, gcp_project_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + sourceColumns

	row := s.pool.QueryRow(ctx, query,
		p.ID, string(p.Kind), blob, p.PoolSize, p.MaxWait.Milliseconds(), p.IdleTimeout.Milliseconds(), p.GCPProjectID,
	)
	return scanConfig(row)
}

// Delete permanently removes a source definition by id.
func (s *PgStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Open decrypts c's credential blob and builds the live pool for it,
// via the source factory. The decrypted DSN never leaves this call.
func (s *PgStore) Open(ctx context.Context, c Config) (*Entry, error) {
	plaintext, err := s.vault.Open(c.CredentialBlob)
	if err != nil {
		return nil, fmt.Errorf("opening source %s credential: %w", c.ID, err)
	}

	entry, err := Open(ctx, PoolConfig{
		Kind:         c.Kind,
		DSN:          string(plaintext),
		GCPProjectID: c.GCPProjectID,
		PoolSize:     c.PoolSize,
		MaxWait:      c.MaxWait,
		IdleTimeout:  c.IdleTimeout,
	})
	if err != nil {
		return nil, err
	}
	entry.ID = c.ID
	return entry, nil
}
