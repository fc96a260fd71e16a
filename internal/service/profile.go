package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mentorsync/internal/apperrors"
	"mentorsync/internal/model"
	"mentorsync/internal/repository"
)

type ImmediateSyncer interface {
	SyncNow(ctx context.Context, mentorID uuid.UUID)
}

// ProfileService is the local write path for mentor profiles. Every write
// enqueues an outbox upsert in the same transaction and then tries an
// immediate push, so the dispatcher is the fallback rather than a second
// independent pusher.
type ProfileService struct {
	log       *zap.Logger
	tx        Transactor
	mentors   MentorRepository
	outbox    OutboxRepository
	immediate ImmediateSyncer
}

func NewProfileService(
	log *zap.Logger,
	tx Transactor,
	mentors MentorRepository,
	outbox OutboxRepository,
	immediate ImmediateSyncer,
) *ProfileService {
	return &ProfileService{
		log:       log,
		tx:        tx,
		mentors:   mentors,
		outbox:    outbox,
		immediate: immediate,
	}
}

func (s *ProfileService) UpdateProfile(ctx context.Context, id uuid.UUID, patch model.ProfilePatch) (*model.Mentor, error) {
	if patch.IsEmpty() {
		return nil, apperrors.ErrEmptyPatch
	}

	var mentor *model.Mentor

	err := s.tx.WithinTx(ctx, func(ext repository.RepoExtension) error {
		if _, err := s.mentors.ApplyPatch(ctx, ext, id, patch, model.OriginLocal); err != nil {
			return err
		}

		var err error

		mentor, err = s.mentors.SelectByID(ctx, ext, id)
		if err != nil {
			return err
		}

		payload, err := json.Marshal(mentor)
		if err != nil {
			return fmt.Errorf("failed to marshal mentor snapshot: %w", err)
		}

		return s.outbox.InsertItem(ctx, ext, model.OutboxItem{
			ID:         uuid.New(),
			EntityType: model.EntityTypeMentor,
			EntityID:   id,
			Action:     model.ActionUpsert,
			Payload:    payload,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update mentor profile: %w", err)
	}

	s.log.Info("mentor profile updated",
		zap.String("mentor_id", id.String()),
		zap.Int64("sync_version", mentor.SyncVersion),
	)

	s.immediate.SyncNow(ctx, id)

	return mentor, nil
}
