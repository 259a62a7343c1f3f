package jobs

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/droxporter/droxporter/internal/store"
)

// Families owns every GaugeVec/CounterVec the job set upserts into,
// registered once against the shared store at startup. Grounded on
// droplet_metrics_loader.rs's Metrics struct, which registers every
// family up front rather than lazily on first use.
type Families struct {
	MemorySettings *prometheus.GaugeVec
	VCPUSettings   *prometheus.GaugeVec
	DiskSettings   *prometheus.GaugeVec
	Status         *prometheus.GaugeVec

	Bandwidth  *prometheus.GaugeVec
	CPU        *prometheus.GaugeVec
	Filesystem *prometheus.GaugeVec
	Memory     *prometheus.GaugeVec
	Load       *prometheus.GaugeVec

	KeyErrors *prometheus.CounterVec
}

// NewFamilies registers every metric family this package can upsert
// into against s and returns the handles jobs use to write samples.
func NewFamilies(s *store.Store) *Families {
	return &Families{
		MemorySettings: s.NewGauge("droplet_memory_settings", "Configured memory in MB for the droplet", []string{"droplet"}, true),
		VCPUSettings:   s.NewGauge("droplet_vcpu_settings", "Configured vCPU count for the droplet", []string{"droplet"}, true),
		DiskSettings:   s.NewGauge("droplet_disk_settings", "Configured disk size in GB for the droplet", []string{"droplet"}, true),
		Status:         s.NewGauge("droplet_status", "1 for the droplet's current status; series for its earlier statuses are removed", []string{"droplet", "status"}, true),

		Bandwidth:  s.NewGauge("droplet_bandwidth", "Bandwidth of droplet", []string{"droplet", "interface", "direction"}, true),
		CPU:        s.NewGauge("droplet_cpu", "CPU usage of droplet", []string{"droplet", "mode"}, true),
		Filesystem: s.NewGauge("droplet_filesystem", "Filesystem usage of droplet", []string{"droplet", "metric_type", "device", "fstype", "mountpoint"}, true),
		Memory:     s.NewGauge("droplet_memory", "Memory usage of droplet", []string{"droplet", "metric_type"}, true),
		Load:       s.NewGauge("droplet_load", "Load average of droplet", []string{"droplet", "metric_type"}, true),

		KeyErrors: s.NewCounter("keys_errors", "Count of rate-governor reservation failures by group and error kind", []string{"key_type", "error"}),
	}
}
