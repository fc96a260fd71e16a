package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"mentorsync/internal/apperrors"
	"mentorsync/internal/model"
)

const syncMetadataColumns = `
	entity_type, entity_id, external_record_id, last_synced_at,
	sync_version, created_at, updated_at`

type SyncMetadataRepository struct {
	db *pgxpool.Pool
}

func NewSyncMetadataRepository(db *pgxpool.Pool) *SyncMetadataRepository {
	return &SyncMetadataRepository{db: db}
}

// Select returns nil without error when the entity has never been synced.
func (r *SyncMetadataRepository) Select(ctx context.Context, ext RepoExtension, entityType string, entityID uuid.UUID) (*model.SyncMetadata, error) {
	if ext == nil {
		ext = r.db
	}

	query := `SELECT ` + syncMetadataColumns + `
		FROM sync.sync_metadata
		WHERE entity_type = $1 AND entity_id = $2;`

	return scanSyncMetadata(ext.QueryRow(ctx, query, entityType, entityID))
}

func (r *SyncMetadataRepository) SelectByExternalRecordID(ctx context.Context, ext RepoExtension, entityType, recordID string) (*model.SyncMetadata, error) {
	if ext == nil {
		ext = r.db
	}

	query := `SELECT ` + syncMetadataColumns + `
		FROM sync.sync_metadata
		WHERE entity_type = $1 AND external_record_id = $2;`

	return scanSyncMetadata(ext.QueryRow(ctx, query, entityType, recordID))
}

// Upsert records a successful sync. sync_version never moves backwards.
func (r *SyncMetadataRepository) Upsert(ctx context.Context, ext RepoExtension, meta model.SyncMetadata) error {
	if ext == nil {
		ext = r.db
	}

	const query = `
		INSERT INTO sync.sync_metadata (entity_type, entity_id, external_record_id, last_synced_at, sync_version)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (entity_type, entity_id) DO UPDATE
		SET external_record_id = EXCLUDED.external_record_id,
		    last_synced_at = EXCLUDED.last_synced_at,
		    sync_version = GREATEST(sync.sync_metadata.sync_version, EXCLUDED.sync_version),
		    updated_at = NOW();
	`

	_, err := ext.Exec(ctx, query, meta.EntityType, meta.EntityID, meta.ExternalRecordID, meta.LastSyncedAt, meta.SyncVersion)
	if err != nil {
		var pgErr *pgconn.PgError

		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrExternalRecordConflict
		}

		return err
	}

	return nil
}

func (r *SyncMetadataRepository) Delete(ctx context.Context, ext RepoExtension, entityType string, entityID uuid.UUID) error {
	if ext == nil {
		ext = r.db
	}

	const query = `
		DELETE FROM sync.sync_metadata
		WHERE entity_type = $1 AND entity_id = $2;
	`

	_, err := ext.Exec(ctx, query, entityType, entityID)
	if err != nil {
		return err
	}

	return nil
}

// LockEntity takes a transaction scoped advisory lock for one entity. ext must
// be a transaction; the lock is released on commit or rollback.
func (r *SyncMetadataRepository) LockEntity(ctx context.Context, ext RepoExtension, entityType string, entityID uuid.UUID) error {
	if ext == nil {
		return errors.New("entity lock requires a transaction")
	}

	const query = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0));`

	_, err := ext.Exec(ctx, query, entityType+":"+entityID.String())
	if err != nil {
		return err
	}

	return nil
}

func scanSyncMetadata(row pgx.Row) (*model.SyncMetadata, error) {
	var m model.SyncMetadata

	if err := row.Scan(
		&m.EntityType,
		&m.EntityID,
		&m.ExternalRecordID,
		&m.LastSyncedAt,
		&m.SyncVersion,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, err
	}

	return &m, nil
}
