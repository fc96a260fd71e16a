package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mentorsync/internal/apperrors"
	"mentorsync/internal/model"
	"mentorsync/internal/repository"
)

type OutboxRepository interface {
	InsertItem(ctx context.Context, ext repository.RepoExtension, item model.OutboxItem) error
	ClaimBatch(ctx context.Context, ext repository.RepoExtension, limit int) ([]model.OutboxItem, error)
	MarkCompleted(ctx context.Context, ext repository.RepoExtension, id uuid.UUID, attempt int) error
	MarkFailed(ctx context.Context, ext repository.RepoExtension, id uuid.UUID, attempt int, reason string) error
	Requeue(ctx context.Context, ext repository.RepoExtension, id uuid.UUID) (*model.OutboxItem, error)
	FailStale(ctx context.Context, ext repository.RepoExtension, olderThan time.Duration) (int64, error)
	List(ctx context.Context, ext repository.RepoExtension, status model.OutboxStatus, limit int) ([]model.OutboxItem, error)
}

type Pusher interface {
	Push(ctx context.Context, mentorID uuid.UUID) (model.PushResult, error)
	Remove(ctx context.Context, mentorID uuid.UUID) (model.PushResult, error)
}

type DispatcherConfig struct {
	BatchSize       int
	MaxBatchSize    int
	ProcessingStale time.Duration
}

// Dispatcher drains the outbox. Items are processed one after another and a
// failure of one item never affects the others; failed items stay failed
// until they are replayed by hand.
type Dispatcher struct {
	log    *zap.Logger
	outbox OutboxRepository
	pusher Pusher
	cfg    DispatcherConfig
}

func NewDispatcher(log *zap.Logger, outbox OutboxRepository, pusher Pusher, cfg DispatcherConfig) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}

	if cfg.MaxBatchSize < cfg.BatchSize {
		cfg.MaxBatchSize = cfg.BatchSize
	}

	return &Dispatcher{
		log:    log,
		outbox: outbox,
		pusher: pusher,
		cfg:    cfg,
	}
}

// Dispatch claims up to limit pending items and pushes them. A non-positive
// limit means the configured batch size.
func (d *Dispatcher) Dispatch(ctx context.Context, limit int) model.DispatchResult {
	limit = d.clamp(limit)

	result := model.DispatchResult{
		Success: true,
		Errors:  make([]model.DispatchError, 0),
	}

	if d.cfg.ProcessingStale > 0 {
		n, err := d.outbox.FailStale(ctx, nil, d.cfg.ProcessingStale)
		if err != nil {
			d.log.Error("failed to fail stale outbox items", zap.Error(err))
		} else if n > 0 {
			d.log.Warn("outbox items stuck in processing marked failed", zap.Int64("count", n))
		}
	}

	items, err := d.outbox.ClaimBatch(ctx, nil, limit)
	if err != nil {
		d.log.Error("failed to claim outbox batch", zap.Error(err))

		result.Success = false
		result.Errors = append(result.Errors, model.DispatchError{
			ItemID: uuid.Nil,
			Error:  fmt.Sprintf("failed to claim outbox batch: %v", err),
		})

		return result
	}

	// Claimed items must be settled even if the trigger goes away mid batch.
	settleCtx := context.WithoutCancel(ctx)

	for _, item := range items {
		result.Processed++

		if reason := d.process(ctx, item); reason != "" {
			result.Failed++
			result.Errors = append(result.Errors, model.DispatchError{ItemID: item.ID, Error: reason})

			if err := d.outbox.MarkFailed(settleCtx, nil, item.ID, item.Attempts, reason); err != nil {
				d.log.Error("failed to mark outbox item failed",
					zap.String("item_id", item.ID.String()),
					zap.Int("attempt", item.Attempts),
					zap.Error(err),
				)
			}

			continue
		}

		if err := d.outbox.MarkCompleted(settleCtx, nil, item.ID, item.Attempts); err != nil {
			d.log.Error("failed to mark outbox item completed",
				zap.String("item_id", item.ID.String()),
				zap.Int("attempt", item.Attempts),
				zap.Error(err),
			)

			result.Failed++
			result.Errors = append(result.Errors, model.DispatchError{
				ItemID: item.ID,
				Error:  fmt.Sprintf("failed to mark completed: %v", err),
			})

			continue
		}

		result.Succeeded++
	}

	if result.Processed > 0 {
		d.log.Info("outbox dispatch finished",
			zap.Int("processed", result.Processed),
			zap.Int("succeeded", result.Succeeded),
			zap.Int("failed", result.Failed),
		)
	}

	return result
}

// process returns the failure reason, or "" on success.
func (d *Dispatcher) process(ctx context.Context, item model.OutboxItem) string {
	if item.EntityType != model.EntityTypeMentor {
		return fmt.Sprintf("unsupported entity type %q", item.EntityType)
	}

	var (
		res model.PushResult
		err error
	)

	switch item.Action {
	case model.ActionUpsert:
		res, err = d.pusher.Push(ctx, item.EntityID)
	case model.ActionDelete:
		res, err = d.pusher.Remove(ctx, item.EntityID)
	default:
		return fmt.Sprintf("unsupported action %q", item.Action)
	}

	if err != nil {
		d.log.Warn("outbox item failed",
			zap.String("item_id", item.ID.String()),
			zap.String("entity_id", item.EntityID.String()),
			zap.String("action", string(item.Action)),
			zap.Error(err),
		)

		if errors.Is(err, apperrors.ErrMentorNotFound) {
			return fmt.Sprintf("mentor %s not found", item.EntityID)
		}

		return err.Error()
	}

	d.log.Debug("outbox item pushed",
		zap.String("item_id", item.ID.String()),
		zap.String("outcome", string(res.Outcome)),
		zap.String("external_record_id", res.ExternalRecordID),
	)

	return ""
}

// Replay moves a failed item back to pending.
func (d *Dispatcher) Replay(ctx context.Context, id uuid.UUID) (*model.OutboxItem, error) {
	item, err := d.outbox.Requeue(ctx, nil, id)
	if err != nil {
		return nil, err
	}

	d.log.Info("outbox item requeued", zap.String("item_id", id.String()), zap.Int("attempts", item.Attempts))

	return item, nil
}

func (d *Dispatcher) List(ctx context.Context, status model.OutboxStatus, limit int) ([]model.OutboxItem, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrInvalidStatus, status)
	}

	items, err := d.outbox.List(ctx, nil, status, d.clamp(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list outbox items: %w", err)
	}

	return items, nil
}

func (d *Dispatcher) clamp(limit int) int {
	if limit <= 0 {
		return d.cfg.BatchSize
	}

	return min(limit, d.cfg.MaxBatchSize)
}
