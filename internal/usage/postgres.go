package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/congo-pay/usage_billing/internal/infra"
)

const eventColumns = `id, customer_id, product_id, units, unit_price_cents, created_at, billed_at`

// PostgresRepository stores usage events in PostgreSQL.
type PostgresRepository struct {
	db infra.DBTX
}

func NewPostgresRepository(db infra.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, e Event) error {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		return fmt.Errorf("parse event id: %w", err)
	}
	customerID, err := uuid.Parse(e.CustomerID)
	if err != nil {
		return fmt.Errorf("parse customer id: %w", err)
	}
	productID, err := uuid.Parse(e.ProductID)
	if err != nil {
		return fmt.Errorf("parse product id: %w", err)
	}
	_, err = r.db.Exec(ctx, `INSERT INTO usage_events (`+eventColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, NULL)`, id, customerID, productID, e.Units, e.UnitPriceCents, e.CreatedAt.UTC())
	return err
}

func (r *PostgresRepository) PendingCustomerIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT customer_id FROM usage_events WHERE billed_at IS NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id.String())
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ListPending(ctx context.Context, customerID string) ([]Event, error) {
	id, err := uuid.Parse(customerID)
	if err != nil {
		return nil, fmt.Errorf("parse customer id: %w", err)
	}
	rows, err := r.db.Query(ctx, `SELECT `+eventColumns+` FROM usage_events
        WHERE customer_id = $1 AND billed_at IS NULL ORDER BY created_at ASC, id ASC`, id)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

func (r *PostgresRepository) MarkBilled(ctx context.Context, ids []string, billedAt time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	parsed := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		u, err := uuid.Parse(id)
		if err != nil {
			return 0, fmt.Errorf("parse event id: %w", err)
		}
		parsed = append(parsed, u)
	}
	tag, err := r.db.Exec(ctx, `UPDATE usage_events SET billed_at = $2
        WHERE id = ANY($1) AND billed_at IS NULL`, parsed, billedAt.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) ListByCustomer(ctx context.Context, customerID string) ([]Event, error) {
	id, err := uuid.Parse(customerID)
	if err != nil {
		return nil, fmt.Errorf("parse customer id: %w", err)
	}
	rows, err := r.db.Query(ctx, `SELECT `+eventColumns+` FROM usage_events
        WHERE customer_id = $1 ORDER BY created_at DESC, id DESC`, id)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

func collectEvents(rows pgx.Rows) ([]Event, error) {
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var (
			e          Event
			id         uuid.UUID
			customerID uuid.UUID
			productID  uuid.UUID
		)
		if err := rows.Scan(&id, &customerID, &productID, &e.Units, &e.UnitPriceCents, &e.CreatedAt, &e.BilledAt); err != nil {
			return nil, err
		}
		e.ID = id.String()
		e.CustomerID = customerID.String()
		e.ProductID = productID.String()
		e.CreatedAt = e.CreatedAt.UTC()
		if e.BilledAt != nil {
			t := e.BilledAt.UTC()
			e.BilledAt = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
