package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"mentorsync/internal/apperrors"
	"mentorsync/internal/crm"
	"mentorsync/internal/model"
	"mentorsync/internal/repository"
)

// store is an in-memory stand-in for the database shared by the fake
// repositories below.
type store struct {
	mu sync.Mutex

	mentors  map[uuid.UUID]*model.Mentor
	metadata map[uuid.UUID]*model.SyncMetadata
	outbox   []*model.OutboxItem

	writes    int
	txBegun   int
	clock     time.Time
	claimErr  error
	statsErr  error
	stats     model.MentorStats
	lockCalls int
}

func newStore() *store {
	return &store{
		mentors:  make(map[uuid.UUID]*model.Mentor),
		metadata: make(map[uuid.UUID]*model.SyncMetadata),
		clock:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *store) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *store) addMentor(m model.Mentor) *model.Mentor {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}

	if m.SyncVersion == 0 {
		m.SyncVersion = 1
	}

	if m.LastMutationOrigin == "" {
		m.LastMutationOrigin = model.OriginLocal
	}

	s.mentors[m.ID] = &m

	return &m
}

func (s *store) mentor(id uuid.UUID) model.Mentor {
	s.mu.Lock()
	defer s.mu.Unlock()

	return *s.mentors[id]
}

func (s *store) meta(id uuid.UUID) *model.SyncMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.metadata[id]
	if !ok {
		return nil
	}

	cp := *m

	return &cp
}

func (s *store) enqueue(entityID uuid.UUID, action model.OutboxAction) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := &model.OutboxItem{
		ID:         uuid.New(),
		EntityType: model.EntityTypeMentor,
		EntityID:   entityID,
		Action:     action,
		Payload:    []byte(`{}`),
		Status:     model.OutboxPending,
		CreatedAt:  s.tick(),
	}
	item.UpdatedAt = item.CreatedAt

	s.outbox = append(s.outbox, item)

	return item.ID
}

func (s *store) item(id uuid.UUID) model.OutboxItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, it := range s.outbox {
		if it.ID == id {
			return *it
		}
	}

	panic("no outbox item " + id.String())
}

func (s *store) countByStatus(status model.OutboxStatus) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0

	for _, it := range s.outbox {
		if it.Status == status {
			n++
		}
	}

	return n
}

func (s *store) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writes
}

type fakeTx struct{ s *store }

func (t fakeTx) WithinTx(_ context.Context, fn func(ext repository.RepoExtension) error) error {
	t.s.mu.Lock()
	t.s.txBegun++
	t.s.mu.Unlock()

	return fn(nil)
}

type fakeMentors struct{ s *store }

func (r fakeMentors) SelectByID(_ context.Context, _ repository.RepoExtension, id uuid.UUID) (*model.Mentor, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.mentors[id]
	if !ok {
		return nil, apperrors.ErrMentorNotFound
	}

	cp := *m

	return &cp, nil
}

func (r fakeMentors) SelectByExternalRecordID(_ context.Context, _ repository.RepoExtension, recordID string) (*model.Mentor, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, m := range r.s.mentors {
		if m.ExternalRecordID != nil && *m.ExternalRecordID == recordID {
			cp := *m
			return &cp, nil
		}
	}

	return nil, apperrors.ErrMentorNotFound
}

func (r fakeMentors) ApplyPatch(_ context.Context, _ repository.RepoExtension, id uuid.UUID, patch model.ProfilePatch, origin model.MutationOrigin) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.mentors[id]
	if !ok {
		return 0, apperrors.ErrMentorNotFound
	}

	m.Apply(patch)
	m.SyncVersion++
	m.LastMutationOrigin = origin
	m.UpdatedAt = r.s.tick()
	r.s.writes++

	return m.SyncVersion, nil
}

func (r fakeMentors) SetExternalRecordID(_ context.Context, _ repository.RepoExtension, id uuid.UUID, recordID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.mentors[id]
	if !ok || m.ExternalRecordID != nil {
		return nil
	}

	m.ExternalRecordID = &recordID
	r.s.writes++

	return nil
}

type fakeMetadata struct{ s *store }

func (r fakeMetadata) Select(_ context.Context, _ repository.RepoExtension, _ string, entityID uuid.UUID) (*model.SyncMetadata, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.metadata[entityID]
	if !ok {
		return nil, nil
	}

	cp := *m

	return &cp, nil
}

func (r fakeMetadata) SelectByExternalRecordID(_ context.Context, _ repository.RepoExtension, _ string, recordID string) (*model.SyncMetadata, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, m := range r.s.metadata {
		if m.ExternalRecordID == recordID {
			cp := *m
			return &cp, nil
		}
	}

	return nil, nil
}

func (r fakeMetadata) Upsert(_ context.Context, _ repository.RepoExtension, meta model.SyncMetadata) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if prev, ok := r.s.metadata[meta.EntityID]; ok {
		meta.SyncVersion = max(meta.SyncVersion, prev.SyncVersion)
		meta.CreatedAt = prev.CreatedAt
	} else {
		meta.CreatedAt = r.s.clock
	}

	meta.UpdatedAt = r.s.clock
	r.s.metadata[meta.EntityID] = &meta
	r.s.writes++

	return nil
}

func (r fakeMetadata) Delete(_ context.Context, _ repository.RepoExtension, _ string, entityID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	delete(r.s.metadata, entityID)
	r.s.writes++

	return nil
}

func (r fakeMetadata) LockEntity(context.Context, repository.RepoExtension, string, uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.lockCalls++

	return nil
}

type fakeAnalytics struct{ s *store }

func (r fakeAnalytics) MentorStats(context.Context, repository.RepoExtension, uuid.UUID) (model.MentorStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.s.statsErr != nil {
		return model.MentorStats{}, r.s.statsErr
	}

	return r.s.stats, nil
}

type fakeOutbox struct{ s *store }

func (r fakeOutbox) InsertItem(_ context.Context, _ repository.RepoExtension, item model.OutboxItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	item.Status = model.OutboxPending
	item.CreatedAt = r.s.tick()
	item.UpdatedAt = item.CreatedAt
	r.s.outbox = append(r.s.outbox, &item)
	r.s.writes++

	return nil
}

func (r fakeOutbox) ClaimBatch(_ context.Context, _ repository.RepoExtension, limit int) ([]model.OutboxItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.s.claimErr != nil {
		return nil, r.s.claimErr
	}

	pending := make([]*model.OutboxItem, 0)

	for _, it := range r.s.outbox {
		if it.Status == model.OutboxPending {
			pending = append(pending, it)
		}
	}

	slices.SortStableFunc(pending, func(a, b *model.OutboxItem) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	claimed := make([]model.OutboxItem, 0, limit)

	for _, it := range pending {
		if len(claimed) == limit {
			break
		}

		it.Status = model.OutboxProcessing
		it.Attempts++
		it.UpdatedAt = r.s.tick()
		claimed = append(claimed, *it)
	}

	return claimed, nil
}

func (r fakeOutbox) settle(id uuid.UUID, attempt int, status model.OutboxStatus, reason *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, it := range r.s.outbox {
		if it.ID != id {
			continue
		}

		if it.Status != model.OutboxProcessing || it.Attempts != attempt {
			return apperrors.ErrOutboxItemNotOwned
		}

		now := r.s.tick()
		it.Status = status
		it.LastError = reason
		it.ProcessedAt = &now
		it.UpdatedAt = now

		return nil
	}

	return apperrors.ErrOutboxItemNotOwned
}

func (r fakeOutbox) MarkCompleted(_ context.Context, _ repository.RepoExtension, id uuid.UUID, attempt int) error {
	return r.settle(id, attempt, model.OutboxCompleted, nil)
}

func (r fakeOutbox) MarkFailed(_ context.Context, _ repository.RepoExtension, id uuid.UUID, attempt int, reason string) error {
	return r.settle(id, attempt, model.OutboxFailed, &reason)
}

func (r fakeOutbox) Requeue(_ context.Context, _ repository.RepoExtension, id uuid.UUID) (*model.OutboxItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, it := range r.s.outbox {
		if it.ID != id {
			continue
		}

		if it.Status != model.OutboxFailed {
			return nil, apperrors.ErrOutboxItemNotFailed
		}

		it.Status = model.OutboxPending
		it.ProcessedAt = nil
		cp := *it

		return &cp, nil
	}

	return nil, apperrors.ErrOutboxItemNotFound
}

func (r fakeOutbox) FailStale(_ context.Context, _ repository.RepoExtension, olderThan time.Duration) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64

	for _, it := range r.s.outbox {
		if it.Status == model.OutboxProcessing && r.s.clock.Sub(it.UpdatedAt) > olderThan {
			reason := "processing timed out"
			it.Status = model.OutboxFailed
			it.LastError = &reason
			n++
		}
	}

	return n, nil
}

func (r fakeOutbox) List(_ context.Context, _ repository.RepoExtension, status model.OutboxStatus, limit int) ([]model.OutboxItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	items := make([]model.OutboxItem, 0)

	for i := len(r.s.outbox) - 1; i >= 0 && len(items) < limit; i-- {
		if status == "" || r.s.outbox[i].Status == status {
			items = append(items, *r.s.outbox[i])
		}
	}

	return items, nil
}

// fakeCRM keeps records in memory with partial update semantics.
type fakeCRM struct {
	mu      sync.Mutex
	records map[string]model.ExternalFields
	seq     int
	calls   int
	err     error
	deletes []string
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{records: make(map[string]model.ExternalFields)}
}

func (c *fakeCRM) Upsert(_ context.Context, _ string, recordID string, fields model.ExternalFields) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++

	if c.err != nil {
		return "", c.err
	}

	if recordID == "" {
		c.seq++
		recordID = fmt.Sprintf("rec%05d", c.seq)
		c.records[recordID] = model.ExternalFields{}
	}

	rec, ok := c.records[recordID]
	if !ok {
		return "", &crm.APIError{StatusCode: 404, Type: "NOT_FOUND", Message: "record not found"}
	}

	for k, v := range fields {
		rec[k] = v
	}

	return recordID, nil
}

func (c *fakeCRM) GetRecord(_ context.Context, _ string, recordID string) (*crm.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++

	if c.err != nil {
		return nil, c.err
	}

	rec, ok := c.records[recordID]
	if !ok {
		return nil, &crm.APIError{StatusCode: 404, Type: "NOT_FOUND", Message: "record not found"}
	}

	fields := make(model.ExternalFields, len(rec))
	for k, v := range rec {
		fields[k] = v
	}

	return &crm.Record{ID: recordID, Fields: fields}, nil
}

func (c *fakeCRM) DeleteRecord(_ context.Context, _ string, recordID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++

	if c.err != nil {
		return c.err
	}

	if _, ok := c.records[recordID]; !ok {
		return &crm.APIError{StatusCode: 404, Type: "NOT_FOUND", Message: "record not found"}
	}

	delete(c.records, recordID)
	c.deletes = append(c.deletes, recordID)

	return nil
}

func (c *fakeCRM) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.calls
}

func (c *fakeCRM) record(id string) model.ExternalFields {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.records[id]
}

type fakeEvents struct {
	mu     sync.Mutex
	events []model.SyncEvent
}

func (e *fakeEvents) Publish(_ context.Context, event model.SyncEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.events = append(e.events, event)
}

func (e *fakeEvents) types() []model.SyncEventType {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]model.SyncEventType, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Type)
	}

	return out
}

var errCRMDown = errors.New("crm unavailable")

func ptr[T any](v T) *T {
	return &v
}
