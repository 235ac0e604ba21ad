package customer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/congo-pay/usage_billing/internal/infra"
)

// PostgresRepository stores customers in PostgreSQL.
type PostgresRepository struct {
	db infra.DBTX
}

// NewPostgresRepository builds a repository on a pool or an open transaction.
func NewPostgresRepository(db infra.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, c Customer) error {
	id, err := uuid.Parse(c.ID)
	if err != nil {
		return fmt.Errorf("parse customer id: %w", err)
	}
	_, err = r.db.Exec(ctx, `INSERT INTO customers (id, name, created_at) VALUES ($1, $2, $3)`,
		id, c.Name, c.CreatedAt.UTC())
	return err
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Customer, error) {
	customerID, err := uuid.Parse(id)
	if err != nil {
		return Customer{}, ErrNotFound
	}
	var (
		c     Customer
		idVal uuid.UUID
	)
	err = r.db.QueryRow(ctx, `SELECT id, name, created_at FROM customers WHERE id = $1`, customerID).
		Scan(&idVal, &c.Name, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, ErrNotFound
		}
		return Customer{}, err
	}
	c.ID = idVal.String()
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}
