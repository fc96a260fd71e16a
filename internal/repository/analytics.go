package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mentorsync/internal/model"
)

type AnalyticsRepository struct {
	db *pgxpool.Pool
}

func NewAnalyticsRepository(db *pgxpool.Pool) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// MentorStats computes booked share of offered slots over the last 30 days and
// the mean feedback rating over the last 90 days. Either figure is nil when
// there is nothing to compute it from.
func (r *AnalyticsRepository) MentorStats(ctx context.Context, ext RepoExtension, mentorID uuid.UUID) (model.MentorStats, error) {
	if ext == nil {
		ext = r.db
	}

	const query = `
		WITH slots AS (
			SELECT COUNT(*) AS offered,
			       COUNT(*) FILTER (WHERE booked) AS booked
			FROM mentoring.availability_slots
			WHERE mentor_id = $1
			  AND starts_at >= NOW() - INTERVAL '30 days'
			  AND starts_at < NOW()
		),
		feedback AS (
			SELECT AVG(f.rating)::float8 AS avg_rating
			FROM mentoring.session_feedback f
			JOIN mentoring.sessions s ON s.id = f.session_id
			WHERE s.mentor_id = $1
			  AND s.started_at >= NOW() - INTERVAL '90 days'
		)
		SELECT
			CASE WHEN slots.offered = 0 THEN NULL
			     ELSE ROUND(100.0 * slots.booked / slots.offered, 1)::float8
			END,
			feedback.avg_rating
		FROM slots, feedback;
	`

	var stats model.MentorStats

	err := ext.QueryRow(ctx, query, mentorID).Scan(&stats.UtilizationPct, &stats.AvgFeedback)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return model.MentorStats{}, err
	}

	return stats, nil
}
