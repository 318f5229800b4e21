// Package evictor brings the data plane back under its soft watermark in the background.
package evictor

import (
	"context"
	"errors"
	"github.com/Borislavv/go-hotkv/config"
	"github.com/Borislavv/go-hotkv/internal/shared/rate"
	"log/slog"
	"sync"
	"time"
)

var ErrEvictorNotResponded = errors.New("evictor not responded")

// Reclaimer is the part of the data plane the evictor drives.
type Reclaimer interface {
	SoftLimitExcess() bool
	ReclaimPressure() (freed int64, evicted int)
	// PressureSignal fires when a watermark is crossed, ahead of the next scheduled check.
	PressureSignal() <-chan struct{}
}

type Evictor interface {
	ForceCall(timeout time.Duration) error
	Metrics() (scans, hits, evictedItems, evictedBytes int64)
	Close() error
}

type EvictionWorker struct {
	ctx      context.Context
	cancel   context.CancelFunc
	cfg      *config.EvictionCfg
	logger   *slog.Logger
	target   Reclaimer
	jitter   *rate.Jitter
	counters *evictorCounters
	invokeCh chan struct{}
	done     chan struct{}
}

func New(ctx context.Context, cfg *config.EvictionCfg, logger *slog.Logger, target Reclaimer) Evictor {
	if !cfg.Enabled() {
		return NoOpEvictor{}
	}

	ctx, cancel := context.WithCancel(ctx)
	return (&EvictionWorker{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		logger:   logger,
		target:   target,
		jitter:   rate.NewJitter(ctx, int(cfg.CallsPerSec)),
		counters: newEvictorCounters(),
		invokeCh: make(chan struct{}),
		done:     make(chan struct{}),
	}).run()
}

// ForceCall requests an immediate reclamation pass, waiting at most timeout for
// the worker to pick it up.
func (w *EvictionWorker) ForceCall(timeout time.Duration) error {
	after := time.NewTimer(timeout)
	defer after.Stop()

	select {
	case <-w.ctx.Done():
	case w.invokeCh <- struct{}{}:
	case <-after.C:
		return ErrEvictorNotResponded
	}
	return nil
}

func (w *EvictionWorker) Metrics() (scans, hits, evictedItems, evictedBytes int64) {
	return w.counters.snapshot()
}

// Close stops the worker and waits for the pass in progress.
func (w *EvictionWorker) Close() error {
	w.cancel()
	<-w.done
	return nil
}

func (w *EvictionWorker) run() *EvictionWorker {
	w.logger.Info("[evictor] running", "calls_per_sec", w.cfg.CallsPerSec, "soft_limit", w.cfg.SoftMemoryLimitBytes)

	go func() {
		defer close(w.done)
		defer w.logger.Info("[evictor] stopped")
		var wg sync.WaitGroup
		wg.Go(w.consumer)
		wg.Go(w.provider)
		wg.Wait()
	}()

	return w
}

// provider wakes the consumer while charged memory is above the soft watermark,
// on every tick and on every pressure signal.
func (w *EvictionWorker) provider() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case _, ok := <-w.jitter.Chan():
			if !ok {
				return
			}
		case <-w.target.PressureSignal():
		}

		w.counters.scans.Add(1)
		if !w.target.SoftLimitExcess() {
			continue
		}
		select {
		case <-w.ctx.Done():
			return
		case w.invokeCh <- struct{}{}:
			w.counters.scanHits.Add(1)
		}
	}
}

// consumer is the only caller of ReclaimPressure, so two passes never race for the same excess.
func (w *EvictionWorker) consumer() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.invokeCh:
			freed, items := w.target.ReclaimPressure()
			if items > 0 || freed > 0 {
				w.counters.evictedItems.Add(int64(items))
				w.counters.evictedBytes.Add(freed)
			}
		}
	}
}
