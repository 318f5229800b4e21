// Package telemetry periodically logs what the data plane and its workers did
// during the last interval.
package telemetry

import (
	"context"
	"github.com/Borislavv/go-hotkv/config"
	"github.com/Borislavv/go-hotkv/internal/evictor"
	"github.com/Borislavv/go-hotkv/internal/lifetimer"
	"github.com/Borislavv/go-hotkv/internal/shared/bytes"
	"github.com/Borislavv/go-hotkv/model"
	"log/slog"
	"time"
)

type Logger interface {
	Interval() time.Duration
	Close() error
}

type Logs struct {
	ctx      context.Context
	cancel   context.CancelFunc
	cfg      *config.Cache
	logger   *slog.Logger
	sampler  sampler
	interval time.Duration
	done     chan struct{}
}

func New(
	ctx context.Context,
	cfg *config.Cache,
	logger *slog.Logger,
	source Source,
	evictor evictor.Evictor,
	lifetimer lifetimer.Lifetimer,
) *Logs {
	ctx, cancel := context.WithCancel(ctx)
	return (&Logs{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		logger:   logger,
		sampler:  newSampler(source, evictor, lifetimer),
		interval: cfg.DB.TelemetryLogsInterval,
		done:     make(chan struct{}),
	}).run()
}

func (l *Logs) Interval() time.Duration {
	return l.interval
}

func (l *Logs) Close() error {
	l.cancel()
	<-l.done
	return nil
}

func (l *Logs) run() *Logs {
	if !l.cfg.DB.IsTelemetryLogsEnabled || l.interval <= 0 {
		close(l.done)
		return l
	}
	go func() {
		defer close(l.done)
		l.loop()
	}()
	return l
}

func (l *Logs) loop() {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	var softLimit = "INF"
	if l.cfg.Eviction.Enabled() {
		softLimit = bytes.FmtMem(uint64(l.cfg.Eviction.SoftMemoryLimitBytes))
	}
	hardLimit := bytes.FmtMem(uint64(l.cfg.DB.SizeBytes))

	prev, _ := l.sampler.snapshot()
	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			cur, stats := l.sampler.snapshot()
			l.report(deltaSnapshot(prev, cur), stats, softLimit, hardLimit)
			prev = cur
		}
	}
}

func (l *Logs) report(d snapshot, st model.Stats, softLimit, hardLimit string) {
	common := []any{"interval", l.interval.String()}

	l.logger.Info("[telemetry] reads",
		append(common,
			"hits", d.hits,
			"misses", d.misses,
			"stale_hits", d.staleHits,
		)...,
	)

	l.logger.Info("[telemetry] promotions",
		append(common,
			"admitted", d.admitted,
			"rejected", d.rejected,
			"capacity_exceeded", d.capacityExceeded,
			"too_large", d.tooLarge,
			"lost_to_invalidate", d.lostToInvalidate,
			"invalidations", d.invalidations,
		)...,
	)

	if d.evictedItems > 0 || d.evictedBytes > 0 {
		l.logger.Info("[telemetry] evictions",
			append(common,
				"freed_items", d.evictedItems,
				"freed_bytes", bytes.FmtMem(d.evictedBytes),
			)...,
		)
	}

	if l.cfg.Eviction.Enabled() {
		l.logger.Info("[telemetry] soft_evictor",
			append(common,
				"scans", d.softScans,
				"hits", d.softHits,
				"freed_items", d.softEvictedItems,
				"freed_bytes", bytes.FmtMem(d.softEvictedBytes),
			)...,
		)
	}

	if d.sweepSteps > 0 {
		l.logger.Info("[telemetry] lifetime_manager",
			append(common,
				"steps", d.sweepSteps,
				"scanned", d.sweepScanned,
				"expired", d.sweepExpired,
				"purged", d.sweepPurged,
				"refreshed", d.sweepRefreshed,
			)...,
		)
	}

	if d.policyFaults > 0 || d.refreshRequests > 0 {
		l.logger.Warn("[telemetry] policies",
			append(common,
				"faults", d.policyFaults,
				"refresh_requests", d.refreshRequests,
			)...,
		)
	}

	l.logger.Info("[telemetry] storage",
		append(common,
			"size", bytes.FmtMem(uint64(max(st.UsedBytes, 0))),
			"entries", st.Entries,
			"soft_limit", softLimit,
			"hard_limit", hardLimit,
			"pressure", st.Pressure.String(),
			"slab_reserved", bytes.FmtMem(uint64(max(st.SlabReserved, 0))),
			"events_dropped", st.EventsDropped,
		)...,
	)

	for _, t := range st.Tenants {
		l.logger.Debug("[telemetry] tenant",
			"tenant", t.Tenant,
			"used", bytes.FmtMem(uint64(max(t.UsedBytes, 0))),
			"quota", bytes.FmtMem(uint64(max(t.QuotaBytes, 0))),
			"entries", t.Entries,
			"policy", t.Policy,
		)
	}
}
