package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const apiKeyColumns = `key_hash, key_prefix, tenant_id, role, rate_class`

// Row is the control-plane shape of one api_keys row.
type Row struct {
	KeyHash   string
	KeyPrefix string
	Tenant    string
	Role      Role
	RateClass string
	CreatedAt time.Time
	LastUsed  *time.Time
}

// PgStore is a pgx-backed Store. It never selects or returns a raw key: the
// api_keys table has no column for one, only key_hash and key_prefix.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a Store backed by the given control-plane pool.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func scanRecord(row pgx.Row) (Record, error) {
	var r Row
	if err := row.Scan(&r.KeyHash, &r.KeyPrefix, &r.Tenant, &r.Role, &r.RateClass); err != nil {
		return Record{}, err
	}
	return Record{
		KeyHash: r.KeyHash,
		Identity: Identity{
			KeyPrefix: r.KeyPrefix,
			Tenant:    r.Tenant,
			Role:      r.Role,
			RateClass: r.RateClass,
		},
	}, nil
}

// List returns every active API key, for Resolver.Refresh (run once at
// start-up).
func (s *PgStore) List(ctx context.Context) ([]Record, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE revoked_at IS NULL`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning api key row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating api key rows: %w", err)
	}
	return records, nil
}

// TouchLastUsed records the most recent use of a key. The write runs in its
// own goroutine and failures are logged, not returned, matching spec.md
// §4.1's "never on the request's critical path" requirement for this
// bookkeeping write.
func (s *PgStore) TouchLastUsed(ctx context.Context, keyHash string) {
	go func() {
		touchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if _, err := s.pool.Exec(touchCtx, `UPDATE api_keys SET last_used = now() WHERE key_hash = $1`, keyHash); err != nil {
			slog.Default().Warn("updating api key last_used failed", "error", err)
		}
	}()
}

// CreateParams holds the inputs for issuing a new API key. The raw key is
// never stored; only its hash and prefix are.
type CreateParams struct {
	Tenant    string
	Role      Role
	RateClass string
}

// Create issues a new key: it generates the raw key and hash, persists the
// hash, and returns the raw key to the caller exactly once. The caller must
// also call Resolver.Set(hash, identity) so the key is usable immediately,
// without waiting for the next Refresh.
func (s *PgStore) Create(ctx context.Context, p CreateParams) (rawKey string, rec Record, err error) {
	raw, hash, prefix := GenerateKey()

	query := `INSERT INTO api_keys (key_hash, key_prefix, tenant_id, role, rate_class)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.pool.Exec(ctx, query, hash, prefix, p.Tenant, p.Role, p.RateClass); err != nil {
		return "", Record{}, fmt.Errorf("creating api key: %w", err)
	}

	return raw, Record{
		KeyHash: hash,
		Identity: Identity{
			KeyPrefix: prefix,
			Tenant:    p.Tenant,
			Role:      p.Role,
			RateClass: p.RateClass,
		},
	}, nil
}

// Revoke marks a key as revoked by its hash. The caller must also call
// Resolver.Remove(hash) so the key stops authenticating immediately.
func (s *PgStore) Revoke(ctx context.Context, keyHash string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE api_keys SET revoked_at = now() WHERE key_hash = $1 AND revoked_at IS NULL`, keyHash)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
