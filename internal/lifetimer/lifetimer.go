// Package lifetimer walks the index in the background so that expired entries,
// entries stale for too long and released tombstones do not wait for a read.
package lifetimer

import (
	"context"
	"github.com/Borislavv/go-hotkv/config"
	"github.com/Borislavv/go-hotkv/internal/cache"
	"github.com/Borislavv/go-hotkv/internal/shared/rate"
	"log/slog"
	"sync"
)

// Sweeper is the part of the data plane the lifetimer drives.
type Sweeper interface {
	NeedsSweep() bool
	Sweep(cursor, span int) (next int, res cache.SweepResult)
}

type Lifetimer interface {
	Metrics() (steps, scanned, expired, purged, refreshed int64)
	Close() error
}

type LifetimeWorker struct {
	ctx      context.Context
	cancel   context.CancelFunc
	cfg      *config.LifetimerCfg
	target   Sweeper
	logger   *slog.Logger
	jitter   *rate.Jitter
	counters *lifetimerCounters
	done     chan struct{}
}

// New starts a sweeper if anything in target ages. A nil cfg falls back to the
// default pacing.
func New(ctx context.Context, cfg *config.LifetimerCfg, logger *slog.Logger, target Sweeper) Lifetimer {
	if !target.NeedsSweep() {
		return NoOpLifetimer{}
	}
	if !cfg.Enabled() {
		cfg = config.DefaultLifetime()
	}

	ctx, cancel := context.WithCancel(ctx)
	return (&LifetimeWorker{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		target:   target,
		logger:   logger,
		jitter:   rate.NewJitter(ctx, cfg.Rate),
		counters: newLifetimerCounters(),
		done:     make(chan struct{}),
	}).run()
}

func (w *LifetimeWorker) Metrics() (steps, scanned, expired, purged, refreshed int64) {
	return w.counters.snapshot()
}

func (w *LifetimeWorker) Close() error {
	w.cancel()
	<-w.done
	return nil
}

func (w *LifetimeWorker) run() *LifetimeWorker {
	w.logger.Info("[lifetimer] running", "rate", w.jitter.Limit(), "buckets_per_sweep", w.cfg.BucketsPerSweep, "ttl", w.cfg.TTL)

	go func() {
		defer close(w.done)
		defer w.logger.Info("[lifetimer] stopped")
		var wg sync.WaitGroup
		wg.Go(w.sweeper)
		wg.Wait()
	}()

	return w
}

// sweeper advances one cursor over the index; a single walker keeps consecutive
// steps from visiting the same buckets.
func (w *LifetimeWorker) sweeper() {
	span := max(w.cfg.BucketsPerSweep, 1)
	cursor := 0
	for {
		select {
		case <-w.ctx.Done():
			return
		case _, ok := <-w.jitter.Chan():
			if !ok {
				return
			}
			var res cache.SweepResult
			cursor, res = w.target.Sweep(cursor, span)
			w.counters.add(res)
		}
	}
}
