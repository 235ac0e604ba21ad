package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/congo-pay/usage_billing/internal/infra"
)

// PostgresRepository stores wallets in PostgreSQL.
type PostgresRepository struct {
	db infra.DBTX
}

// NewPostgresRepository builds a repository on a pool or an open transaction.
func NewPostgresRepository(db infra.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a wallet record.
func (r *PostgresRepository) Create(ctx context.Context, w Wallet) error {
	walletID, err := uuid.Parse(w.ID)
	if err != nil {
		return fmt.Errorf("parse wallet id: %w", err)
	}
	customerID, err := uuid.Parse(w.CustomerID)
	if err != nil {
		return fmt.Errorf("parse customer id: %w", err)
	}
	_, err = r.db.Exec(ctx, `INSERT INTO wallets (id, customer_id, balance_cents, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $4)`, walletID, customerID, w.BalanceCents, w.CreatedAt.UTC())
	return err
}

// GetByCustomer fetches the wallet owned by the customer.
func (r *PostgresRepository) GetByCustomer(ctx context.Context, customerID string) (Wallet, error) {
	id, err := uuid.Parse(customerID)
	if err != nil {
		return Wallet{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT id, customer_id, balance_cents, created_at, updated_at
        FROM wallets WHERE customer_id = $1`, id)
	var (
		w        Wallet
		idVal    uuid.UUID
		ownerVal uuid.UUID
	)
	if err := row.Scan(&idVal, &ownerVal, &w.BalanceCents, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrNotFound
		}
		return Wallet{}, err
	}
	w.ID = idVal.String()
	w.CustomerID = ownerVal.String()
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}

func (r *PostgresRepository) Increment(ctx context.Context, walletID string, delta int64) (int64, error) {
	return r.adjust(ctx, walletID, delta)
}

func (r *PostgresRepository) Decrement(ctx context.Context, walletID string, delta int64) (int64, error) {
	return r.adjust(ctx, walletID, -delta)
}

func (r *PostgresRepository) adjust(ctx context.Context, walletID string, delta int64) (int64, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return 0, ErrNotFound
	}
	var balance int64
	err = r.db.QueryRow(ctx, `UPDATE wallets SET balance_cents = balance_cents + $2, updated_at = now()
        WHERE id = $1 RETURNING balance_cents`, id, delta).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return balance, nil
}
