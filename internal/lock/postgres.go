package lock

import (
	"context"
	"fmt"

	"github.com/congo-pay/usage_billing/internal/infra"
)

// Postgres stores locks in cron_locks. Acquisition is a plain INSERT so the
// primary key decides the winner atomically.
type Postgres struct {
	db infra.DBTX
}

func NewPostgres(db infra.DBTX) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) TryAcquire(ctx context.Context, name, owner string) (bool, error) {
	_, err := p.db.Exec(ctx, `INSERT INTO cron_locks (name, locked_by) VALUES ($1, $2)`, name, owner)
	if err != nil {
		if infra.IsUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return true, nil
}

func (p *Postgres) Release(ctx context.Context, name, owner string) error {
	if _, err := p.db.Exec(ctx, `DELETE FROM cron_locks WHERE name = $1 AND locked_by = $2`, name, owner); err != nil {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}
