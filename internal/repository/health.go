package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type HealthRepository struct {
	db *pgxpool.Pool
}

func NewHealthRepository(db *pgxpool.Pool) *HealthRepository {
	return &HealthRepository{
		db: db,
	}
}

// Ping checks connectivity and that both schemas owned by the sync engine are
// migrated.
func (r *HealthRepository) Ping(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return err
	}

	const query = `
		SELECT to_regclass('sync.outbox_items') IS NOT NULL
		   AND to_regclass('sync.sync_metadata') IS NOT NULL
		   AND to_regclass('mentoring.mentors') IS NOT NULL;
	`

	var migrated bool
	if err := r.db.QueryRow(ctx, query).Scan(&migrated); err != nil {
		return err
	}

	if !migrated {
		return fmt.Errorf("sync schema is not migrated")
	}

	return nil
}
