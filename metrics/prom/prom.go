// Package prom exports data plane telemetry to Prometheus.
package prom

import (
	"context"
	"github.com/Borislavv/go-hotkv/model"
	"github.com/Borislavv/go-hotkv/transport"
	"github.com/prometheus/client_golang/prometheus"
	"strconv"
	"time"
)

// LatencyBuckets spans 1µs to 5ms, in seconds.
var LatencyBuckets = []float64{1e-6, 2e-6, 5e-6, 10e-6, 20e-6, 50e-6, 100e-6, 200e-6, 500e-6, 1e-3, 2e-3, 5e-3}

// Source provides point-in-time data plane statistics.
type Source interface {
	Stats() model.Stats
}

type counterDesc struct {
	desc  *prometheus.Desc
	value func(s *model.Stats) int64
}

// Collector reads counters from the data plane at scrape time, so there is
// no second copy of them to keep in sync.
type Collector struct {
	source Source

	counters []counterDesc
	gauges   []counterDesc

	evictions    *prometheus.Desc
	evictedBytes *prometheus.Desc
	pressure     *prometheus.Desc

	tenantUsed    *prometheus.Desc
	tenantQuota   *prometheus.Desc
	tenantEntries *prometheus.Desc

	latency *prometheus.HistogramVec
}

// New registers a collector for source on reg (prometheus.DefaultRegisterer when nil).
func New(reg prometheus.Registerer, ns string, source Source, constLabels prometheus.Labels) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(ns, "", name), help, labels, constLabels)
	}

	c := &Collector{
		source: source,
		counters: []counterDesc{
			{desc("hits_total", "Reads answered from the cache"), func(s *model.Stats) int64 { return s.Hits }},
			{desc("misses_total", "Reads not answered from the cache"), func(s *model.Stats) int64 { return s.Misses }},
			{desc("stale_hits_total", "Hits flagged stale"), func(s *model.Stats) int64 { return s.StaleHits }},
			{desc("admitted_total", "Promotions admitted"), func(s *model.Stats) int64 { return s.Admitted }},
			{desc("rejected_total", "Promotions rejected by the admission policy"), func(s *model.Stats) int64 { return s.Rejected }},
			{desc("capacity_exceeded_total", "Promotions refused for lack of quota or memory"), func(s *model.Stats) int64 { return s.CapacityExceeded }},
			{desc("too_large_total", "Promotions refused for size"), func(s *model.Stats) int64 { return s.TooLarge }},
			{desc("invalidations_total", "Invalidations applied"), func(s *model.Stats) int64 { return s.Invalidations }},
			{desc("refresh_requests_total", "Refresh requests raised"), func(s *model.Stats) int64 { return s.RefreshRequests }},
			{desc("policy_faults_total", "Policy plugins disabled after a violation"), func(s *model.Stats) int64 { return s.PolicyFaults }},
			{desc("events_published_total", "Events accepted by the bus"), func(s *model.Stats) int64 { return s.EventsPublished }},
			{desc("events_dropped_total", "Events lost to full queues"), func(s *model.Stats) int64 { return s.EventsDropped }},
		},
		gauges: []counterDesc{
			{desc("entries", "Resident entries"), func(s *model.Stats) int64 { return s.Entries }},
			{desc("used_bytes", "Bytes charged to tenants"), func(s *model.Stats) int64 { return s.UsedBytes }},
			{desc("hard_cap_bytes", "Global hard cap"), func(s *model.Stats) int64 { return s.HardCapBytes }},
			{desc("soft_cap_bytes", "Soft watermark"), func(s *model.Stats) int64 { return s.SoftCapBytes }},
			{desc("slab_reserved_bytes", "Bytes of chunk buffers reserved by the slab"), func(s *model.Stats) int64 { return s.SlabReserved }},
		},
		evictions:     desc("evictions_total", "Entries evicted by reason", "reason"),
		evictedBytes:  desc("evicted_bytes_total", "Bytes evicted by reason", "reason"),
		pressure:      desc("pressure_level", "Memory pressure: 0 none, 1 soft, 2 hard"),
		tenantUsed:    desc("tenant_used_bytes", "Bytes charged to the tenant", "tenant"),
		tenantQuota:   desc("tenant_quota_bytes", "Effective tenant quota", "tenant"),
		tenantEntries: desc("tenant_entries", "Resident entries of the tenant", "tenant"),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   ns,
			Name:        "command_duration_seconds",
			Help:        "Control command latency",
			Buckets:     LatencyBuckets,
			ConstLabels: constLabels,
		}, []string{"command"}),
	}
	reg.MustRegister(c, c.latency)
	return c
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.counters {
		ch <- d.desc
	}
	for _, d := range c.gauges {
		ch <- d.desc
	}
	ch <- c.evictions
	ch <- c.evictedBytes
	ch <- c.pressure
	ch <- c.tenantUsed
	ch <- c.tenantQuota
	ch <- c.tenantEntries
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Stats()
	for _, d := range c.counters {
		ch <- prometheus.MustNewConstMetric(d.desc, prometheus.CounterValue, float64(d.value(&s)))
	}
	for _, d := range c.gauges {
		ch <- prometheus.MustNewConstMetric(d.desc, prometheus.GaugeValue, float64(d.value(&s)))
	}
	for _, r := range model.EvictReasons() {
		reason := r.String()
		ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(s.Evictions[r]), reason)
		ch <- prometheus.MustNewConstMetric(c.evictedBytes, prometheus.CounterValue, float64(s.EvictedBytes[r]), reason)
	}
	ch <- prometheus.MustNewConstMetric(c.pressure, prometheus.GaugeValue, float64(s.Pressure))
	for _, t := range s.Tenants {
		tenant := strconv.FormatUint(uint64(t.Tenant), 10)
		ch <- prometheus.MustNewConstMetric(c.tenantUsed, prometheus.GaugeValue, float64(t.UsedBytes), tenant)
		ch <- prometheus.MustNewConstMetric(c.tenantQuota, prometheus.GaugeValue, float64(t.QuotaBytes), tenant)
		ch <- prometheus.MustNewConstMetric(c.tenantEntries, prometheus.GaugeValue, float64(t.Entries), tenant)
	}
}

// Observe records one command duration.
func (c *Collector) Observe(command string, d time.Duration) {
	c.latency.WithLabelValues(command).Observe(d.Seconds())
}

// Instrument wraps h so every command it serves is timed.
func (c *Collector) Instrument(h transport.Handler) transport.Handler {
	return &instrumented{h: h, c: c}
}

type instrumented struct {
	h transport.Handler
	c *Collector
}

func (i *instrumented) Read(ctx context.Context, req model.ReadRequest) (model.ReadResult, error) {
	defer i.observe("read", time.Now())
	return i.h.Read(ctx, req)
}

func (i *instrumented) Invalidate(ctx context.Context, tenant model.TenantID, key []byte) error {
	defer i.observe("invalidate", time.Now())
	return i.h.Invalidate(ctx, tenant, key)
}

func (i *instrumented) BatchPromote(ctx context.Context, items []model.PromoteItem) []model.PromoteResult {
	defer i.observe("batch_promote", time.Now())
	return i.h.BatchPromote(ctx, items)
}

func (i *instrumented) observe(command string, started time.Time) {
	i.c.Observe(command, time.Since(started))
}

var (
	_ prometheus.Collector = (*Collector)(nil)
	_ transport.Handler    = (*instrumented)(nil)
)
