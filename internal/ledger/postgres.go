package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/congo-pay/usage_billing/internal/infra"
)

const (
	entryColumns = `id, wallet_id, amount_cents, entry_type, source_type, source_id, idempotency_key, created_at`
	insertEntry  = `INSERT INTO ledger_entries (` + entryColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
)

// PostgresRepository persists ledger entries in PostgreSQL.
type PostgresRepository struct {
	db infra.DBTX
}

// NewPostgresRepository builds a repository on a pool or an open transaction.
func NewPostgresRepository(db infra.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Append inserts e, resolving key collisions with ON CONFLICT so the caller's
// transaction is not aborted by a unique violation.
func (r *PostgresRepository) Append(ctx context.Context, e Entry) (Entry, error) {
	e = withDefaults(e)
	if err := e.Validate(); err != nil {
		return Entry{}, err
	}
	args, err := entryArgs(e)
	if err != nil {
		return Entry{}, err
	}

	var inserted uuid.UUID
	err = r.db.QueryRow(ctx, insertEntry+`
        ON CONFLICT (wallet_id, idempotency_key) DO NOTHING RETURNING id`, args...).Scan(&inserted)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, fmt.Errorf("insert ledger entry: %w", err)
	}

	existing, err := r.FindByIdempotencyKey(ctx, e.WalletID, e.IdempotencyKey)
	if err != nil {
		return Entry{}, fmt.Errorf("load conflicting entry: %w", err)
	}
	if !existing.Matches(e) {
		return existing, ErrIdempotencyConflict
	}
	return existing, ErrDuplicateEntry
}

// AppendMany queues all inserts in one pgx batch.
func (r *PostgresRepository) AppendMany(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i := range entries {
		e := withDefaults(entries[i])
		if err := e.Validate(); err != nil {
			return err
		}
		args, err := entryArgs(e)
		if err != nil {
			return err
		}
		batch.Queue(insertEntry, args...)
	}

	results := r.db.SendBatch(ctx, batch)
	for range entries {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("insert ledger entries: %w", err)
		}
	}
	return results.Close()
}

func (r *PostgresRepository) FindByIdempotencyKey(ctx context.Context, walletID, key string) (Entry, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return Entry{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries
        WHERE wallet_id = $1 AND idempotency_key = $2`, id, key)
	return scanEntry(row)
}

func (r *PostgresRepository) ExistingKeys(ctx context.Context, walletID string, source SourceType, keys []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	if len(keys) == 0 {
		return out, nil
	}
	id, err := uuid.Parse(walletID)
	if err != nil {
		return nil, fmt.Errorf("parse wallet id: %w", err)
	}
	rows, err := r.db.Query(ctx, `SELECT idempotency_key FROM ledger_entries
        WHERE wallet_id = $1 AND source_type = $2 AND idempotency_key = ANY($3)`, id, string(source), keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		out[key] = struct{}{}
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Sum(ctx context.Context, walletID string) (int64, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return 0, fmt.Errorf("parse wallet id: %w", err)
	}
	var sum int64
	if err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount_cents), 0) FROM ledger_entries WHERE wallet_id = $1`, id).Scan(&sum); err != nil {
		return 0, err
	}
	return sum, nil
}

func (r *PostgresRepository) ListByWallet(ctx context.Context, walletID string, limit int) ([]Entry, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return nil, fmt.Errorf("parse wallet id: %w", err)
	}
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries
        WHERE wallet_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func withDefaults(e Entry) Entry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return e
}

func entryArgs(e Entry) ([]any, error) {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		return nil, fmt.Errorf("parse entry id: %w", err)
	}
	walletID, err := uuid.Parse(e.WalletID)
	if err != nil {
		return nil, fmt.Errorf("parse wallet id: %w", err)
	}
	var sourceID *uuid.UUID
	if e.SourceID != "" {
		parsed, err := uuid.Parse(e.SourceID)
		if err != nil {
			return nil, fmt.Errorf("parse source id: %w", err)
		}
		sourceID = &parsed
	}
	var key *string
	if e.IdempotencyKey != "" {
		key = &e.IdempotencyKey
	}
	return []any{id, walletID, e.AmountCents, string(e.EntryType), string(e.SourceType), sourceID, key, e.CreatedAt.UTC()}, nil
}

func scanEntry(row pgx.Row) (Entry, error) {
	var (
		e          Entry
		id         uuid.UUID
		walletID   uuid.UUID
		entryType  string
		sourceType string
		sourceID   *uuid.UUID
		key        *string
	)
	if err := row.Scan(&id, &walletID, &e.AmountCents, &entryType, &sourceType, &sourceID, &key, &e.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	e.ID = id.String()
	e.WalletID = walletID.String()
	e.EntryType = EntryType(entryType)
	e.SourceType = SourceType(sourceType)
	if sourceID != nil {
		e.SourceID = sourceID.String()
	}
	if key != nil {
		e.IdempotencyKey = *key
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}
