package product

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/congo-pay/usage_billing/internal/infra"
)

const productColumns = `id, name, unit_price_cents, created_at, updated_at`

// PostgresRepository stores products in PostgreSQL.
type PostgresRepository struct {
	db infra.DBTX
}

func NewPostgresRepository(db infra.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, p Product) error {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return fmt.Errorf("parse product id: %w", err)
	}
	_, err = r.db.Exec(ctx, `INSERT INTO products (id, name, unit_price_cents, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5)`, id, p.Name, p.UnitPriceCents, p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	return err
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Product, error) {
	productID, err := uuid.Parse(id)
	if err != nil {
		return Product{}, ErrNotFound
	}
	return scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, productID))
}

func (r *PostgresRepository) List(ctx context.Context) ([]Product, error) {
	rows, err := r.db.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) UpdatePrice(ctx context.Context, id string, unitPriceCents int64) (Product, error) {
	productID, err := uuid.Parse(id)
	if err != nil {
		return Product{}, ErrNotFound
	}
	return scanProduct(r.db.QueryRow(ctx, `UPDATE products SET unit_price_cents = $2, updated_at = $3
        WHERE id = $1 RETURNING `+productColumns, productID, unitPriceCents, time.Now().UTC()))
}

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p     Product
		idVal uuid.UUID
	)
	if err := row.Scan(&idVal, &p.Name, &p.UnitPriceCents, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, err
	}
	p.ID = idVal.String()
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}
