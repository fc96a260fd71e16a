package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"mentorsync/internal/apperrors"
	"mentorsync/internal/fieldmap"
	"mentorsync/internal/model"
	"mentorsync/internal/repository"
	"mentorsync/pkg/signature"
)

type WebhookConfig struct {
	Secret  string
	TableID string
	// ReplayTTL is how long a fully processed delivery is remembered.
	ReplayTTL time.Duration
	// ClaimLease bounds how long an in-flight delivery blocks redeliveries.
	ClaimLease time.Duration
}

// WebhookService applies CRM change notifications to local profiles. It only
// updates mentors that are already linked to a CRM record and never schedules
// an outbound push for what it writes.
type WebhookService struct {
	log      *zap.Logger
	tx       Transactor
	mentors  MentorRepository
	metadata SyncMetadataRepository
	guard    ReplayGuard
	events   EventPublisher
	cfg      WebhookConfig
	now      func() time.Time
}

func NewWebhookService(
	log *zap.Logger,
	tx Transactor,
	mentors MentorRepository,
	metadata SyncMetadataRepository,
	guard ReplayGuard,
	events EventPublisher,
	cfg WebhookConfig,
) *WebhookService {
	if cfg.ReplayTTL <= 0 {
		cfg.ReplayTTL = 24 * time.Hour
	}

	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = 5 * time.Minute
	}

	return &WebhookService{
		log:      log,
		tx:       tx,
		mentors:  mentors,
		metadata: metadata,
		guard:    guard,
		events:   events,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Handle verifies the signature over the raw body before anything else. An
// error is returned only for a bad signature or an unparseable body; record
// level failures are reported in the result.
func (s *WebhookService) Handle(ctx context.Context, body []byte, sig string) (model.WebhookResult, error) {
	if err := signature.Verify(body, sig, s.cfg.Secret); err != nil {
		if errors.Is(err, signature.ErrMissingSecret) {
			s.log.Error("webhook secret is not configured, rejecting notification")
			return model.WebhookResult{}, fmt.Errorf("%w: %w", apperrors.ErrInvalidSignature, apperrors.ErrMissingSecret)
		}

		return model.WebhookResult{}, fmt.Errorf("%w: %w", apperrors.ErrInvalidSignature, err)
	}

	var notification model.WebhookNotification
	if err := json.Unmarshal(body, &notification); err != nil {
		return model.WebhookResult{}, fmt.Errorf("%w: %w", apperrors.ErrInvalidPayload, err)
	}

	result := model.WebhookResult{
		Success: true,
		Results: make([]model.RecordOutcome, 0),
	}

	key := deliveryKey(notification.Webhook.ID, body)

	claimed, err := s.guard.Claim(ctx, key, s.cfg.ClaimLease)
	if err != nil {
		s.log.Warn("replay guard unavailable, processing notification anyway", zap.Error(err))
	} else if !claimed {
		s.log.Info("duplicate webhook delivery ignored", zap.String("webhook_id", notification.Webhook.ID))

		result.Duplicate = true

		return result, nil
	}

	for _, tableID := range sortedKeys(notification.Event.Payload.ChangedTablesByID) {
		if s.cfg.TableID != "" && tableID != s.cfg.TableID {
			s.log.Debug("ignoring changes to unrelated table", zap.String("table_id", tableID))
			continue
		}

		records := notification.Event.Payload.ChangedTablesByID[tableID].ChangedRecordsByID

		for _, recordID := range sortedKeys(records) {
			outcome := s.applyRecord(ctx, recordID, records[recordID])

			result.Processed++
			result.Results = append(result.Results, outcome)
		}
	}

	if claimed {
		s.settleDelivery(ctx, key, result)
	}

	return result, nil
}

// settleDelivery remembers a delivery only when every record went through;
// otherwise the claim is dropped so the CRM's redelivery is applied.
func (s *WebhookService) settleDelivery(ctx context.Context, key string, result model.WebhookResult) {
	ctx = context.WithoutCancel(ctx)

	for _, outcome := range result.Results {
		if outcome.Status != model.RecordError {
			continue
		}

		if err := s.guard.Release(ctx, key); err != nil {
			s.log.Error("failed to release webhook delivery, redelivery waits for the lease to expire",
				zap.String("key", key),
				zap.Error(err),
			)
		}

		return
	}

	if err := s.guard.Complete(ctx, key, s.cfg.ReplayTTL); err != nil {
		s.log.Warn("failed to mark webhook delivery processed", zap.String("key", key), zap.Error(err))
	}
}

func (s *WebhookService) applyRecord(ctx context.Context, recordID string, change model.ChangedRecord) model.RecordOutcome {
	outcome := model.RecordOutcome{RecordID: recordID}
	patch := fieldmap.Inbound(change.Current.Fields)

	var (
		mentor  *model.Mentor
		version int64
	)

	err := s.tx.WithinTx(ctx, func(ext repository.RepoExtension) error {
		var err error

		mentor, err = s.findLinkedMentor(ctx, ext, recordID)
		if err != nil || mentor == nil {
			return err
		}

		if patch.IsEmpty() {
			return nil
		}

		if err := s.metadata.LockEntity(ctx, ext, model.EntityTypeMentor, mentor.ID); err != nil {
			return fmt.Errorf("failed to lock mentor: %w", err)
		}

		version, err = s.mentors.ApplyPatch(ctx, ext, mentor.ID, patch, model.OriginWebhook)
		if err != nil {
			return fmt.Errorf("failed to apply patch: %w", err)
		}

		if err := s.metadata.Upsert(ctx, ext, model.SyncMetadata{
			EntityType:       model.EntityTypeMentor,
			EntityID:         mentor.ID,
			ExternalRecordID: recordID,
			LastSyncedAt:     s.now(),
			SyncVersion:      version,
		}); err != nil {
			return fmt.Errorf("failed to save sync metadata: %w", err)
		}

		if mentor.ExternalRecordID == nil {
			if err := s.mentors.SetExternalRecordID(ctx, ext, mentor.ID, recordID); err != nil {
				return fmt.Errorf("failed to save external record id: %w", err)
			}
		}

		return nil
	})

	switch {
	case err != nil:
		s.log.Warn("failed to apply crm change",
			zap.String("record_id", recordID),
			zap.Error(err),
		)

		outcome.Status = model.RecordError
		outcome.Error = err.Error()
	case mentor == nil:
		s.log.Info("crm record is not linked to any mentor, skipping", zap.String("record_id", recordID))

		outcome.Status = model.RecordSkipped
	case version == 0:
		s.log.Debug("crm change touches no synced field, skipping", zap.String("record_id", recordID))

		outcome.Status = model.RecordSkipped
	default:
		outcome.Status = model.RecordUpdated

		s.events.Publish(ctx, model.SyncEvent{
			Type:             model.EventMentorPulled,
			MentorID:         mentor.ID,
			ExternalRecordID: recordID,
			SyncVersion:      version,
			OccurredAt:       s.now(),
		})
	}

	return outcome
}

// findLinkedMentor returns nil without error when the record is not linked.
func (s *WebhookService) findLinkedMentor(ctx context.Context, ext repository.RepoExtension, recordID string) (*model.Mentor, error) {
	mentor, err := s.mentors.SelectByExternalRecordID(ctx, ext, recordID)
	if err == nil {
		return mentor, nil
	}

	if !errors.Is(err, apperrors.ErrMentorNotFound) {
		return nil, fmt.Errorf("failed to find mentor: %w", err)
	}

	meta, err := s.metadata.SelectByExternalRecordID(ctx, ext, model.EntityTypeMentor, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to find sync metadata: %w", err)
	}

	if meta == nil {
		return nil, nil
	}

	mentor, err = s.mentors.SelectByID(ctx, ext, meta.EntityID)
	if err != nil {
		if errors.Is(err, apperrors.ErrMentorNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to find mentor: %w", err)
	}

	return mentor, nil
}

func deliveryKey(webhookID string, body []byte) string {
	sum := sha256.Sum256(body)

	return "webhook:" + webhookID + ":" + hex.EncodeToString(sum[:])
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}
