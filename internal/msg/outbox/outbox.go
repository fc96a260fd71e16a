package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mentorsync/internal/model"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, limit int) model.DispatchResult
}

type Config struct {
	Name         string
	WorkerCount  int
	PollInterval time.Duration
	BatchSize    int
}

// Poller runs dispatch passes on a ticker. Each tick hands one pass to a free
// worker; ticks that find every worker busy are dropped.
type Poller struct {
	l          *zap.Logger
	cfg        Config
	dispatcher Dispatcher
}

func NewPoller(l *zap.Logger, cfg Config, dispatcher Dispatcher) *Poller {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}

	return &Poller{
		l:          l,
		cfg:        cfg,
		dispatcher: dispatcher,
	}
}

func (p *Poller) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ticks := make(chan struct{}, p.cfg.WorkerCount)

	for i := 0; i < p.cfg.WorkerCount; i++ {
		go p.worker(ctx, i, ticks)
	}

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.l.Info("Outbox poller stopped", zap.String("name", p.cfg.Name))
			close(ticks)

			return
		case <-ticker.C:
			select {
			case ticks <- struct{}{}:
			default:
				p.l.Debug("All outbox workers busy, skipping tick")
			}
		}
	}
}

func (p *Poller) worker(ctx context.Context, id int, ticks <-chan struct{}) {
	p.l.Info("Outbox worker started", zap.Int("id", id))

	for {
		select {
		case <-ctx.Done():
			p.l.Info("Worker stopping", zap.Int("id", id))

			return
		case _, ok := <-ticks:
			if !ok {
				p.l.Info("Tick channel closed", zap.Int("id", id))

				return
			}

			res := p.dispatcher.Dispatch(ctx, p.cfg.BatchSize)
			if !res.Success {
				p.l.Error("Dispatch pass failed", zap.Int("id", id), zap.Any("errors", res.Errors))
			}
		}
	}
}
