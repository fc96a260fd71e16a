package service

import (
	"context"

	"go.uber.org/zap"

	"mentorsync/internal/model"
	"mentorsync/internal/repository"
)

type HealthRepository interface {
	Ping(ctx context.Context) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type OutboxCounter interface {
	CountByStatus(ctx context.Context, ext repository.RepoExtension) (map[model.OutboxStatus]int64, error)
}

type HealthService struct {
	log        *zap.Logger
	healthRepo HealthRepository
	outbox     OutboxCounter
	optional   map[string]Pinger
}

// NewHealthService reports postgres as required. Entries in optional (redis,
// kafka) only degrade the report when they fail.
func NewHealthService(log *zap.Logger, healthRepo HealthRepository, outbox OutboxCounter, optional map[string]Pinger) *HealthService {
	return &HealthService{
		log:        log,
		healthRepo: healthRepo,
		outbox:     outbox,
		optional:   optional,
	}
}

func (s *HealthService) Check(ctx context.Context) model.HealthReport {
	report := model.HealthReport{
		Status:     model.HealthUp,
		Components: make(map[string]string, len(s.optional)+1),
	}

	if err := s.healthRepo.Ping(ctx); err != nil {
		s.log.Warn("postgres health check failed", zap.Error(err))

		report.Status = model.HealthDown
		report.Components["postgres"] = model.HealthDown

		return report
	}

	report.Components["postgres"] = model.HealthUp

	for name, p := range s.optional {
		if err := p.Ping(ctx); err != nil {
			s.log.Warn("health check failed", zap.String("component", name), zap.Error(err))

			report.Status = model.HealthDegraded
			report.Components[name] = model.HealthDown

			continue
		}

		report.Components[name] = model.HealthUp
	}

	counts, err := s.outbox.CountByStatus(ctx, nil)
	if err != nil {
		s.log.Warn("failed to count outbox items", zap.Error(err))
		return report
	}

	report.Outbox = make(map[string]int64, len(counts))
	for status, n := range counts {
		report.Outbox[string(status)] = n
	}

	return report
}
