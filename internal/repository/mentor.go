package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"mentorsync/internal/apperrors"
	"mentorsync/internal/model"
)

const mentorColumns = `
	id, headline, bio, company, title, industry, stage, timezone,
	expertise, active, external_record_id, sync_version, last_mutation_origin,
	created_at, updated_at`

type MentorRepository struct {
	db *pgxpool.Pool
}

func NewMentorRepository(db *pgxpool.Pool) *MentorRepository {
	return &MentorRepository{db: db}
}

func (r *MentorRepository) SelectByID(ctx context.Context, ext RepoExtension, id uuid.UUID) (*model.Mentor, error) {
	if ext == nil {
		ext = r.db
	}

	query := `SELECT ` + mentorColumns + `
		FROM mentoring.mentors
		WHERE id = $1;`

	return scanMentor(ext.QueryRow(ctx, query, id))
}

func (r *MentorRepository) SelectByExternalRecordID(ctx context.Context, ext RepoExtension, recordID string) (*model.Mentor, error) {
	if ext == nil {
		ext = r.db
	}

	query := `SELECT ` + mentorColumns + `
		FROM mentoring.mentors
		WHERE external_record_id = $1;`

	return scanMentor(ext.QueryRow(ctx, query, recordID))
}

// ApplyPatch writes the non-nil patch fields, bumps sync_version and records
// the mutation origin in one statement. It returns the new version.
func (r *MentorRepository) ApplyPatch(
	ctx context.Context,
	ext RepoExtension,
	id uuid.UUID,
	patch model.ProfilePatch,
	origin model.MutationOrigin,
) (int64, error) {
	if ext == nil {
		ext = r.db
	}

	if !origin.Valid() {
		return 0, fmt.Errorf("invalid mutation origin %q", origin)
	}

	assignments, args := patchAssignments(patch)
	assignments = append(assignments,
		"sync_version = sync_version + 1",
		"last_mutation_origin = @origin",
		"updated_at = NOW()",
	)

	args["id"] = id
	args["origin"] = string(origin)

	query := `UPDATE mentoring.mentors SET ` + strings.Join(assignments, ", ") + `
		WHERE id = @id
		RETURNING sync_version;`

	var version int64
	if err := ext.QueryRow(ctx, query, args).Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperrors.ErrMentorNotFound
		}

		return 0, fmt.Errorf("failed to update mentor: %w", err)
	}

	return version, nil
}

// SetExternalRecordID assigns the CRM id once; an already assigned id is kept.
func (r *MentorRepository) SetExternalRecordID(ctx context.Context, ext RepoExtension, id uuid.UUID, recordID string) error {
	if ext == nil {
		ext = r.db
	}

	const query = `
		UPDATE mentoring.mentors
		SET external_record_id = $2,
		    updated_at = NOW()
		WHERE id = $1
		  AND external_record_id IS NULL;
	`

	if _, err := ext.Exec(ctx, query, id, recordID); err != nil {
		var pgErr *pgconn.PgError

		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrExternalRecordConflict
		}

		return err
	}

	return nil
}

func patchAssignments(p model.ProfilePatch) ([]string, pgx.NamedArgs) {
	assignments := make([]string, 0, 9)
	args := pgx.NamedArgs{}

	text := func(column string, v *string) {
		if v == nil {
			return
		}

		assignments = append(assignments, fmt.Sprintf("%s = NULLIF(@%s, '')", column, column))
		args[column] = *v
	}

	text("headline", p.Headline)
	text("bio", p.Bio)
	text("company", p.Company)
	text("title", p.Title)
	text("industry", p.Industry)
	text("stage", p.Stage)
	text("timezone", p.Timezone)

	if p.Expertise != nil {
		expertise := *p.Expertise
		if expertise == nil {
			expertise = []model.Expertise{}
		}

		assignments = append(assignments, "expertise = @expertise")
		args["expertise"] = expertise
	}

	if p.Active != nil {
		assignments = append(assignments, "active = @active")
		args["active"] = *p.Active
	}

	return assignments, args
}

func scanMentor(row pgx.Row) (*model.Mentor, error) {
	var (
		m      model.Mentor
		origin string
	)

	if err := row.Scan(
		&m.ID,
		&m.Headline,
		&m.Bio,
		&m.Company,
		&m.Title,
		&m.Industry,
		&m.Stage,
		&m.Timezone,
		&m.Expertise,
		&m.Active,
		&m.ExternalRecordID,
		&m.SyncVersion,
		&origin,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrMentorNotFound
		}

		return nil, err
	}

	m.LastMutationOrigin = model.MutationOrigin(origin)

	return &m, nil
}
