package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mentorsync/internal/crm"
	"mentorsync/internal/fieldmap"
	"mentorsync/internal/model"
	"mentorsync/internal/repository"
)

type Transactor interface {
	WithinTx(ctx context.Context, fn func(ext repository.RepoExtension) error) error
}

type MentorRepository interface {
	SelectByID(ctx context.Context, ext repository.RepoExtension, id uuid.UUID) (*model.Mentor, error)
	SelectByExternalRecordID(ctx context.Context, ext repository.RepoExtension, recordID string) (*model.Mentor, error)
	ApplyPatch(ctx context.Context, ext repository.RepoExtension, id uuid.UUID, patch model.ProfilePatch, origin model.MutationOrigin) (int64, error)
	SetExternalRecordID(ctx context.Context, ext repository.RepoExtension, id uuid.UUID, recordID string) error
}

type SyncMetadataRepository interface {
	Select(ctx context.Context, ext repository.RepoExtension, entityType string, entityID uuid.UUID) (*model.SyncMetadata, error)
	SelectByExternalRecordID(ctx context.Context, ext repository.RepoExtension, entityType, recordID string) (*model.SyncMetadata, error)
	Upsert(ctx context.Context, ext repository.RepoExtension, meta model.SyncMetadata) error
	Delete(ctx context.Context, ext repository.RepoExtension, entityType string, entityID uuid.UUID) error
	LockEntity(ctx context.Context, ext repository.RepoExtension, entityType string, entityID uuid.UUID) error
}

type AnalyticsRepository interface {
	MentorStats(ctx context.Context, ext repository.RepoExtension, mentorID uuid.UUID) (model.MentorStats, error)
}

type CRMClient interface {
	Upsert(ctx context.Context, tableID, recordID string, fields model.ExternalFields) (string, error)
	GetRecord(ctx context.Context, tableID, recordID string) (*crm.Record, error)
	DeleteRecord(ctx context.Context, tableID, recordID string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event model.SyncEvent)
}

// SyncService pushes one mentor at a time to the CRM. Both the dispatcher and
// the immediate path go through Push, which serializes pushers per mentor with
// an advisory lock held for the whole transaction.
type SyncService struct {
	log       *zap.Logger
	tx        Transactor
	mentors   MentorRepository
	metadata  SyncMetadataRepository
	analytics AnalyticsRepository
	crm       CRMClient
	events    EventPublisher
	tableID   string
	now       func() time.Time
}

func NewSyncService(
	log *zap.Logger,
	tx Transactor,
	mentors MentorRepository,
	metadata SyncMetadataRepository,
	analytics AnalyticsRepository,
	crmClient CRMClient,
	events EventPublisher,
	tableID string,
) *SyncService {
	return &SyncService{
		log:       log,
		tx:        tx,
		mentors:   mentors,
		metadata:  metadata,
		analytics: analytics,
		crm:       crmClient,
		events:    events,
		tableID:   tableID,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Push writes the mentor's current state to the CRM, creating the record on
// first sync. It returns apperrors.ErrMentorNotFound when the mentor is gone.
func (s *SyncService) Push(ctx context.Context, mentorID uuid.UUID) (model.PushResult, error) {
	// Stats are read outside the transaction: a failing query would abort it.
	stats, err := s.analytics.MentorStats(ctx, nil, mentorID)
	if err != nil {
		s.log.Warn("failed to compute mentor stats, pushing without them",
			zap.String("mentor_id", mentorID.String()),
			zap.Error(err),
		)

		stats = model.MentorStats{}
	}

	var result model.PushResult

	err = s.tx.WithinTx(ctx, func(ext repository.RepoExtension) error {
		if err := s.metadata.LockEntity(ctx, ext, model.EntityTypeMentor, mentorID); err != nil {
			return fmt.Errorf("failed to lock mentor: %w", err)
		}

		mentor, err := s.mentors.SelectByID(ctx, ext, mentorID)
		if err != nil {
			return err
		}

		meta, err := s.metadata.Select(ctx, ext, model.EntityTypeMentor, mentorID)
		if err != nil {
			return fmt.Errorf("failed to get sync metadata: %w", err)
		}

		if meta.Covers(mentor.SyncVersion) {
			result = model.PushResult{
				Outcome:          model.PushUpToDate,
				ExternalRecordID: meta.ExternalRecordID,
				SyncVersion:      meta.SyncVersion,
			}

			return nil
		}

		recordID := knownRecordID(mentor, meta)
		syncedAt := s.now()

		newID, err := s.crm.Upsert(ctx, s.tableID, recordID, fieldmap.Outbound(mentor, stats, syncedAt))
		if err != nil {
			return fmt.Errorf("failed to upsert crm record: %w", err)
		}

		if err := s.metadata.Upsert(ctx, ext, model.SyncMetadata{
			EntityType:       model.EntityTypeMentor,
			EntityID:         mentorID,
			ExternalRecordID: newID,
			LastSyncedAt:     syncedAt,
			SyncVersion:      mentor.SyncVersion,
		}); err != nil {
			return fmt.Errorf("failed to save sync metadata: %w", err)
		}

		if mentor.ExternalRecordID == nil {
			if err := s.mentors.SetExternalRecordID(ctx, ext, mentorID, newID); err != nil {
				return fmt.Errorf("failed to save external record id: %w", err)
			}
		}

		result = model.PushResult{
			Outcome:          model.PushUpdated,
			ExternalRecordID: newID,
			SyncVersion:      mentor.SyncVersion,
		}

		if recordID == "" {
			result.Outcome = model.PushCreated
		}

		return nil
	})
	if err != nil {
		return model.PushResult{}, err
	}

	if result.Outcome != model.PushUpToDate {
		s.events.Publish(ctx, model.SyncEvent{
			Type:             model.EventMentorPushed,
			MentorID:         mentorID,
			ExternalRecordID: result.ExternalRecordID,
			SyncVersion:      result.SyncVersion,
			OccurredAt:       s.now(),
		})
	}

	return result, nil
}

// Remove deletes the mentor's CRM record, if one was ever created, and drops
// its sync metadata. The mentor itself is expected to be gone already.
func (s *SyncService) Remove(ctx context.Context, mentorID uuid.UUID) (model.PushResult, error) {
	var result model.PushResult

	err := s.tx.WithinTx(ctx, func(ext repository.RepoExtension) error {
		if err := s.metadata.LockEntity(ctx, ext, model.EntityTypeMentor, mentorID); err != nil {
			return fmt.Errorf("failed to lock mentor: %w", err)
		}

		meta, err := s.metadata.Select(ctx, ext, model.EntityTypeMentor, mentorID)
		if err != nil {
			return fmt.Errorf("failed to get sync metadata: %w", err)
		}

		if meta == nil || meta.ExternalRecordID == "" {
			result = model.PushResult{Outcome: model.PushUpToDate}
			return nil
		}

		if err := s.crm.DeleteRecord(ctx, s.tableID, meta.ExternalRecordID); err != nil {
			var apiErr *crm.APIError
			if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
				return fmt.Errorf("failed to delete crm record: %w", err)
			}
		}

		if err := s.metadata.Delete(ctx, ext, model.EntityTypeMentor, mentorID); err != nil {
			return fmt.Errorf("failed to delete sync metadata: %w", err)
		}

		result = model.PushResult{
			Outcome:          model.PushDeleted,
			ExternalRecordID: meta.ExternalRecordID,
			SyncVersion:      meta.SyncVersion,
		}

		return nil
	})
	if err != nil {
		return model.PushResult{}, err
	}

	if result.Outcome == model.PushDeleted {
		s.events.Publish(ctx, model.SyncEvent{
			Type:             model.EventMentorRemoved,
			MentorID:         mentorID,
			ExternalRecordID: result.ExternalRecordID,
			SyncVersion:      result.SyncVersion,
			OccurredAt:       s.now(),
		})
	}

	return result, nil
}

// SyncNow is the immediate path run after a local profile write. Failures are
// logged and never returned; the outbox item written with the profile change
// is what guarantees delivery.
func (s *SyncService) SyncNow(ctx context.Context, mentorID uuid.UUID) {
	result, err := s.Push(ctx, mentorID)
	if err != nil {
		s.log.Warn("immediate sync failed, leaving it to the dispatcher",
			zap.String("mentor_id", mentorID.String()),
			zap.Error(err),
		)

		return
	}

	s.log.Debug("immediate sync done",
		zap.String("mentor_id", mentorID.String()),
		zap.String("outcome", string(result.Outcome)),
		zap.Int64("sync_version", result.SyncVersion),
	)
}

// Inspect compares the local profile with its CRM record. Nothing is written.
func (s *SyncService) Inspect(ctx context.Context, mentorID uuid.UUID) (*model.SyncStatus, error) {
	mentor, err := s.mentors.SelectByID(ctx, nil, mentorID)
	if err != nil {
		return nil, err
	}

	meta, err := s.metadata.Select(ctx, nil, model.EntityTypeMentor, mentorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sync metadata: %w", err)
	}

	status := &model.SyncStatus{
		MentorID:         mentorID,
		LocalVersion:     mentor.SyncVersion,
		ExternalRecordID: knownRecordID(mentor, meta),
		UpToDate:         meta.Covers(mentor.SyncVersion),
		DriftFields:      make([]string, 0),
	}

	if meta != nil {
		status.SyncedVersion = meta.SyncVersion
		status.LastSyncedAt = &meta.LastSyncedAt
	}

	if status.ExternalRecordID == "" {
		return status, nil
	}

	rec, err := s.crm.GetRecord(ctx, s.tableID, status.ExternalRecordID)
	if err != nil {
		var apiErr *crm.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return status, nil
		}

		return nil, fmt.Errorf("failed to read crm record: %w", err)
	}

	status.RemoteFound = true
	status.RemoteFields = rec.Fields
	status.DriftFields = driftFields(mentor, rec.Fields, s.now())

	return status, nil
}

// driftFields normalises the remote record through the inbound mapper so
// that encoding differences (option objects, padding) do not count as drift.
func driftFields(local *model.Mentor, remote model.ExternalFields, at time.Time) []string {
	restored := &model.Mentor{ID: local.ID}
	restored.Apply(fieldmap.Inbound(remote))

	want := fieldmap.Outbound(local, model.MentorStats{}, at)
	got := fieldmap.Outbound(restored, model.MentorStats{}, at)

	drift := make([]string, 0)

	for _, name := range fieldmap.InboundFields {
		if !reflect.DeepEqual(want[name], got[name]) {
			drift = append(drift, name)
		}
	}

	return drift
}

func knownRecordID(m *model.Mentor, meta *model.SyncMetadata) string {
	if meta != nil && meta.ExternalRecordID != "" {
		return meta.ExternalRecordID
	}

	if m.ExternalRecordID != nil {
		return *m.ExternalRecordID
	}

	return ""
}
