// Package selftelemetry implements the exporter's self-observation
// job: process CPU%/RSS/start-time via gopsutil, plus a snapshot of
// the rate governor's remaining budget and key status, and a running
// total of provider requests. The scheduler records its own tick
// counters; this job does not touch them. Grounded on
// original_source/src/metrics/agent_metrics.rs (process CPU/memory via
// sysinfo), reimplemented against github.com/shirou/gopsutil/v4 since
// no direct sysinfo analogue is available in Go and gopsutil is the
// idiomatic replacement the retrieved example pack itself imports for
// process/host telemetry.
package selftelemetry

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/droxporter/droxporter/internal/config"
	"github.com/droxporter/droxporter/internal/ratelimit"
	"github.com/droxporter/droxporter/internal/store"
)

// governorObserver is the subset of *ratelimit.Pool this job needs.
type governorObserver interface {
	Observe() ratelimit.KeyObservation
}

// Job samples process resource usage and governor state into the
// metric store on each tick, gated by exporter-metrics.*.
type Job struct {
	cfg     config.ExporterConfig
	pool    governorObserver
	proc    *process.Process
	started float64

	cpuUsage        *prometheus.GaugeVec
	memoryUsage     *prometheus.GaugeVec
	startTime       *prometheus.GaugeVec
	remainingByKey  *prometheus.GaugeVec
	keysByStatus    *prometheus.GaugeVec
	providerRequests *prometheus.CounterVec
}

// New builds the self-telemetry job and registers its families
// against s. startedUnix is the process start time in seconds since
// epoch, sampled once at startup.
func New(cfg config.ExporterConfig, pool governorObserver, s *store.Store, startedUnix float64) (*Job, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("selftelemetry: resolve self process: %w", err)
	}

	return &Job{
		cfg:     cfg,
		pool:    pool,
		proc:    proc,
		started: startedUnix,

		cpuUsage:         s.NewGauge("self_cpu_usage_percents", "CPU usage percent of the exporter process", nil, false),
		memoryUsage:      s.NewGauge("self_memory_usage_bytes", "Resident memory usage in bytes of the exporter process", nil, false),
		startTime:        s.NewGauge("self_start_time_seconds", "Unix start time in seconds of the exporter process", nil, false),
		remainingByKey:   s.NewGauge("remaining_limits_by_key", "Remaining rate-limit budget per key group and timeframe", []string{"key_type", "timeframe"}, false),
		keysByStatus:     s.NewGauge("keys_by_status", "Count of keys per group by status (active/exceeded)", []string{"key_type", "status"}, false),
		providerRequests: s.NewCounter("provider_requests_total", "Count of provider HTTP requests issued", []string{"key_type"}),
	}, nil
}

func (j *Job) Name() string { return "self_telemetry" }

// timeframeLabel maps a ratelimit.Timeframe's internal bucket-map key
// to the externally-observable label text ("1 min", "1 hour").
func timeframeLabel(tf ratelimit.Timeframe) string {
	switch tf {
	case ratelimit.OneMinute:
		return "1 min"
	case ratelimit.OneHour:
		return "1 hour"
	default:
		return string(tf)
	}
}

// RecordProviderRequest increments the requests-per-group counter.
// Called by the provider client wrapper, or left untouched if the
// "requests" self-metric category is disabled.
func (j *Job) RecordProviderRequest(keyGroup string) {
	if !j.cfg.Enabled || !j.cfg.Wants("requests") {
		return
	}
	j.providerRequests.With(prometheus.Labels{"key_type": keyGroup}).Inc()
}

// Run samples every enabled self-metric category. Individual category
// failures (a gopsutil read error, say) are reported but don't stop
// the other categories from being recorded.
func (j *Job) Run(ctx context.Context) error {
	if !j.cfg.Enabled {
		return nil
	}

	var errs []error

	if j.cfg.Wants("cpu") {
		if pct, err := j.proc.CPUPercentWithContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("cpu: %w", err))
		} else {
			j.cpuUsage.With(prometheus.Labels{}).Set(pct)
		}
	}

	if j.cfg.Wants("memory") {
		if info, err := j.proc.MemoryInfoWithContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("memory: %w", err))
		} else {
			j.memoryUsage.With(prometheus.Labels{}).Set(float64(info.RSS))
		}
		j.startTime.With(prometheus.Labels{}).Set(j.started)
	}

	if j.cfg.Wants("limits") {
		obs := j.pool.Observe()
		for group, byTimeframe := range obs.RemainingByGroup {
			for tf, v := range byTimeframe {
				j.remainingByKey.With(prometheus.Labels{"key_type": group, "timeframe": timeframeLabel(tf)}).Set(v)
			}
		}
		for group, byStatus := range obs.StatusByGroup {
			for status, count := range byStatus {
				j.keysByStatus.With(prometheus.Labels{"key_type": group, "status": status}).Set(float64(count))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("self_telemetry: %v", errs)
	}
	return nil
}
