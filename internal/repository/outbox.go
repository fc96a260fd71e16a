package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mentorsync/internal/apperrors"
	"mentorsync/internal/model"
)

const outboxColumns = `
	id, entity_type, entity_id, action, payload, status,
	attempts, last_error, created_at, updated_at, processed_at`

type OutboxRepository struct {
	db *pgxpool.Pool
}

func NewOutboxRepository(db *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{
		db: db,
	}
}

func (r *OutboxRepository) InsertItem(ctx context.Context, ext RepoExtension, item model.OutboxItem) error {
	if ext == nil {
		ext = r.db
	}

	const query = `
		INSERT INTO sync.outbox_items (id, entity_type, entity_id, action, payload, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		ON CONFLICT DO NOTHING;
	`

	_, err := ext.Exec(ctx, query, item.ID, item.EntityType, item.EntityID, string(item.Action), item.Payload)
	if err != nil {
		return err
	}

	return nil
}

// ClaimBatch moves up to limit pending items to processing and returns them
// oldest first. Rows locked by a concurrent claimer are skipped, so two
// claimers never receive the same item.
func (r *OutboxRepository) ClaimBatch(ctx context.Context, ext RepoExtension, limit int) ([]model.OutboxItem, error) {
	if ext == nil {
		ext = r.db
	}

	query := `
		WITH claimable AS (
			SELECT id
			FROM sync.outbox_items
			WHERE status = 'pending'
			ORDER BY created_at, id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE sync.outbox_items o
		SET status = 'processing',
		    attempts = o.attempts + 1,
		    updated_at = NOW()
		FROM claimable
		WHERE o.id = claimable.id
		RETURNING ` + prefixed("o.", outboxColumns) + `;`

	rows, err := ext.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	items, err := scanOutboxItems(rows)
	if err != nil {
		return nil, err
	}

	// UPDATE ... RETURNING does not preserve the subquery order.
	sortOutboxItems(items)

	return items, nil
}

// MarkCompleted settles an item claimed with the given attempt number. It
// returns apperrors.ErrOutboxItemNotOwned when the item was reclaimed or
// settled by someone else in the meantime.
func (r *OutboxRepository) MarkCompleted(ctx context.Context, ext RepoExtension, id uuid.UUID, attempt int) error {
	if ext == nil {
		ext = r.db
	}

	const query = `
		UPDATE sync.outbox_items
		SET status = 'completed',
		    last_error = NULL,
		    processed_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1
		  AND status = 'processing'
		  AND attempts = $2;
	`

	tag, err := ext.Exec(ctx, query, id, attempt)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return apperrors.ErrOutboxItemNotOwned
	}

	return nil
}

// MarkFailed has the same ownership rule as MarkCompleted.
func (r *OutboxRepository) MarkFailed(ctx context.Context, ext RepoExtension, id uuid.UUID, attempt int, reason string) error {
	if ext == nil {
		ext = r.db
	}

	const query = `
		UPDATE sync.outbox_items
		SET status = 'failed',
		    last_error = $3,
		    processed_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1
		  AND status = 'processing'
		  AND attempts = $2;
	`

	tag, err := ext.Exec(ctx, query, id, attempt, reason)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return apperrors.ErrOutboxItemNotOwned
	}

	return nil
}

// Requeue returns a failed item to pending so the next dispatch retries it.
func (r *OutboxRepository) Requeue(ctx context.Context, ext RepoExtension, id uuid.UUID) (*model.OutboxItem, error) {
	if ext == nil {
		ext = r.db
	}

	query := `
		UPDATE sync.outbox_items
		SET status = 'pending',
		    processed_at = NULL,
		    updated_at = NOW()
		WHERE id = $1
		  AND status = 'failed'
		RETURNING ` + outboxColumns + `;`

	rows, err := ext.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}

	items, err := scanOutboxItems(rows)
	if err != nil {
		return nil, err
	}

	if len(items) == 1 {
		return &items[0], nil
	}

	// Distinguish a missing item from one in the wrong state.
	if _, err := r.SelectByID(ctx, ext, id); err != nil {
		return nil, err
	}

	return nil, apperrors.ErrOutboxItemNotFailed
}

// FailStale marks items stuck in processing for longer than olderThan as
// failed. It returns the number of rows affected.
func (r *OutboxRepository) FailStale(ctx context.Context, ext RepoExtension, olderThan time.Duration) (int64, error) {
	if ext == nil {
		ext = r.db
	}

	const query = `
		UPDATE sync.outbox_items
		SET status = 'failed',
		    last_error = 'processing timed out',
		    processed_at = NOW(),
		    updated_at = NOW()
		WHERE status = 'processing'
		  AND updated_at < NOW() - make_interval(secs => $1);
	`

	tag, err := ext.Exec(ctx, query, olderThan.Seconds())
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}

func (r *OutboxRepository) SelectByID(ctx context.Context, ext RepoExtension, id uuid.UUID) (*model.OutboxItem, error) {
	if ext == nil {
		ext = r.db
	}

	query := `SELECT ` + outboxColumns + `
		FROM sync.outbox_items
		WHERE id = $1;`

	rows, err := ext.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}

	items, err := scanOutboxItems(rows)
	if err != nil {
		return nil, err
	}

	if len(items) == 0 {
		return nil, apperrors.ErrOutboxItemNotFound
	}

	return &items[0], nil
}

// List returns the newest items first, optionally filtered by status.
func (r *OutboxRepository) List(ctx context.Context, ext RepoExtension, status model.OutboxStatus, limit int) ([]model.OutboxItem, error) {
	if ext == nil {
		ext = r.db
	}

	query := `SELECT ` + outboxColumns + `
		FROM sync.outbox_items
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2;`

	rows, err := ext.Query(ctx, query, string(status), limit)
	if err != nil {
		return nil, err
	}

	return scanOutboxItems(rows)
}

// CountByStatus returns the number of items per status. Statuses with no
// items are absent from the map.
func (r *OutboxRepository) CountByStatus(ctx context.Context, ext RepoExtension) (map[model.OutboxStatus]int64, error) {
	if ext == nil {
		ext = r.db
	}

	const query = `
		SELECT status, count(*)
		FROM sync.outbox_items
		GROUP BY status;
	`

	rows, err := ext.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.OutboxStatus]int64)

	for rows.Next() {
		var (
			status string
			n      int64
		)

		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}

		counts[model.OutboxStatus(status)] = n
	}

	return counts, rows.Err()
}

func scanOutboxItems(rows pgx.Rows) ([]model.OutboxItem, error) {
	defer rows.Close()

	items := make([]model.OutboxItem, 0)

	for rows.Next() {
		var (
			item           model.OutboxItem
			action, status string
		)

		if err := rows.Scan(
			&item.ID,
			&item.EntityType,
			&item.EntityID,
			&action,
			&item.Payload,
			&status,
			&item.Attempts,
			&item.LastError,
			&item.CreatedAt,
			&item.UpdatedAt,
			&item.ProcessedAt,
		); err != nil {
			return nil, err
		}

		item.Action = model.OutboxAction(action)
		item.Status = model.OutboxStatus(status)

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return items, nil
		}

		return nil, err
	}

	return items, nil
}
