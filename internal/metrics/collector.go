package metrics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/osvaldoandrade/autodeploy/internal/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
)

// CapabilityFunc reports which external credentials the process was started with.
type CapabilityFunc func() map[string]bool

type stateCollector struct {
	capabilities CapabilityFunc
	rdb          *redis.Client
	logger       *slog.Logger
	started      time.Time

	capabilityDesc *prometheus.Desc
	bucketsDesc    *prometheus.Desc
	uptimeDesc     *prometheus.Desc
}

func newStateCollector(capabilities CapabilityFunc, rdb *redis.Client, logger *slog.Logger) *stateCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &stateCollector{
		capabilities: capabilities,
		rdb:          rdb,
		logger:       logger,
		started:      time.Now(),
		capabilityDesc: prometheus.NewDesc(
			"autodeploy_capability_configured",
			"Whether a credential the pipeline depends on is configured (1) or missing (0).",
			[]string{"capability"},
			nil,
		),
		bucketsDesc: prometheus.NewDesc(
			"autodeploy_rate_limit_buckets",
			"Current number of live rate limit buckets by scope.",
			[]string{"scope"},
			nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"autodeploy_uptime_seconds",
			"Seconds since the process started.",
			nil,
			nil,
		),
	}
}

func (c *stateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.capabilityDesc
	ch <- c.bucketsDesc
	ch <- c.uptimeDesc
}

func (c *stateCollector) Collect(ch chan<- prometheus.Metric) {
	emitGauge(ch, c.uptimeDesc, time.Since(c.started).Seconds())

	if c.capabilities != nil {
		caps := c.capabilities()
		names := make([]string, 0, len(caps))
		for name := range caps {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			v := 0.0
			if caps[name] {
				v = 1
			}
			emitGauge(ch, c.capabilityDesc, v, name)
		}
	}

	if c.rdb == nil {
		return
	}

	// Keep Redis reads bounded so scrapes do not hang.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, scope := range []string{ratelimit.ScopeDeploy, ratelimit.ScopeCallback} {
		n, err := countKeys(ctx, c.rdb, ratelimit.KeyPattern(scope))
		if err != nil {
			c.logger.Warn("prometheus redis collector failed", "scope", scope, "err", err)
			return
		}
		emitGauge(ch, c.bucketsDesc, float64(n), scope)
	}
}

func countKeys(ctx context.Context, rdb *redis.Client, pattern string) (int, error) {
	n := 0
	iter := rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	return n, iter.Err()
}

func emitGauge(ch chan<- prometheus.Metric, desc *prometheus.Desc, v float64, labelValues ...string) {
	m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, v, labelValues...)
	if err != nil {
		return
	}
	ch <- m
}

var registerCollectorOnce sync.Once

// RegisterStateCollector exposes capability, uptime and (when rdb is set) rate limit bucket gauges.
func RegisterStateCollector(capabilities CapabilityFunc, rdb *redis.Client, logger *slog.Logger) {
	registerCollectorOnce.Do(func() {
		prometheus.MustRegister(newStateCollector(capabilities, rdb, logger))
	})
}
