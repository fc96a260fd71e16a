package service

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

var fixedNow = time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

type harness struct {
	store      *store
	crm        *fakeCRM
	events     *fakeEvents
	sync       *SyncService
	dispatcher *Dispatcher
	profiles   *ProfileService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store:  newStore(),
		crm:    newFakeCRM(),
		events: &fakeEvents{},
	}

	log := zap.NewNop()

	h.sync = NewSyncService(
		log,
		fakeTx{h.store},
		fakeMentors{h.store},
		fakeMetadata{h.store},
		fakeAnalytics{h.store},
		h.crm,
		h.events,
		"tblMentors",
	)
	h.sync.now = func() time.Time { return fixedNow }

	h.dispatcher = NewDispatcher(log, fakeOutbox{h.store}, h.sync, DispatcherConfig{
		BatchSize:       10,
		MaxBatchSize:    50,
		ProcessingStale: 10 * time.Minute,
	})

	h.profiles = NewProfileService(log, fakeTx{h.store}, fakeMentors{h.store}, fakeOutbox{h.store}, h.sync)

	return h
}
