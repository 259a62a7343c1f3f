package jobs

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/droxporter/droxporter/internal/config"
	"github.com/droxporter/droxporter/internal/domain"
	"github.com/droxporter/droxporter/internal/provider"
	"github.com/droxporter/droxporter/internal/registry"
)

// dropletLister is the subset of provider.Client this job needs. A
// narrow interface defined by the consumer, not the provider package,
// so tests can supply a fake without an explicit "implements"
// declaration — the same structural-typing pattern the original
// client's MockDigitalOceanClient stood in for.
type dropletLister interface {
	ListDroplets(ctx context.Context, keyGroup string) ([]domain.Droplet, []provider.InlineMetric, error)
}

// DropletListJob refreshes the shared registry from the provider and
// records the droplet-settings gauges (memory/vcpu/disk/status),
// gated individually by droplets.metrics. It also upserts any inline
// bandwidth/CPU samples the list response carried, so those families
// get a value on ticks where the dedicated family job hasn't run yet.
type DropletListJob struct {
	client   dropletLister
	registry *registry.Registry
	families *Families
	cfg      config.DropletsConfig
	keyGroup string
}

// NewDropletListJob constructs the registry-refresh job. keyGroup
// names the rate-governor group this job's calls draw from — normally
// "droplets", the group config.DropletsConfig.Keys populates.
func NewDropletListJob(client dropletLister, reg *registry.Registry, families *Families, cfg config.DropletsConfig, keyGroup string) *DropletListJob {
	return &DropletListJob{client: client, registry: reg, families: families, cfg: cfg, keyGroup: keyGroup}
}

func (j *DropletListJob) Name() string { return "droplet_list" }

// Run fetches the full droplet list, swaps it into the registry
// (which evicts stale per-droplet series through the store), and
// upserts the settings gauges and any inline metrics carried in the
// response.
func (j *DropletListJob) Run(ctx context.Context) error {
	droplets, inline, err := j.client.ListDroplets(ctx, j.keyGroup)
	if err != nil {
		if isKeyError(err) {
			j.recordKeyError(err)
		}
		return fmt.Errorf("droplet_list: %w", err)
	}

	j.registry.Replace(droplets)

	for _, d := range droplets {
		name := d.Name
		if j.cfg.Wants("memory") {
			j.families.MemorySettings.With(prometheus.Labels{"droplet": name}).Set(float64(d.MemoryMB))
		}
		if j.cfg.Wants("vcpu") {
			j.families.VCPUSettings.With(prometheus.Labels{"droplet": name}).Set(float64(d.VCPUCount))
		}
		if j.cfg.Wants("disk") {
			j.families.DiskSettings.With(prometheus.Labels{"droplet": name}).Set(float64(d.DiskGB))
		}
		if j.cfg.Wants("status") {
			j.families.Status.DeletePartialMatch(prometheus.Labels{"droplet": name})
			j.families.Status.With(prometheus.Labels{"droplet": name, "status": d.Status}).Set(1)
		}
	}

	for _, m := range inline {
		j.upsertInline(m)
	}

	return nil
}

func (j *DropletListJob) upsertInline(m provider.InlineMetric) {
	switch m.Family {
	case "droplet_bandwidth":
		j.families.Bandwidth.With(prometheus.Labels(m.Labels)).Set(m.Value)
	case "droplet_cpu":
		j.families.CPU.With(prometheus.Labels(m.Labels)).Set(m.Value)
	}
}

func (j *DropletListJob) recordKeyError(err error) {
	j.families.KeyErrors.With(prometheus.Labels{"key_type": j.keyGroup, "error": keyErrorLabel(err)}).Inc()
}
