package jobs

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/droxporter/droxporter/internal/config"
	"github.com/droxporter/droxporter/internal/domain"
	"github.com/droxporter/droxporter/internal/provider"
)

// CPUJob polls droplet_cpu. Unlike bandwidth/memory/load, a single
// call returns every mode (idle, system, user, ...) as separate
// series, so it uses metaSeriesFetcher rather than lastValueFetcher —
// the sub_type isn't chosen by a query parameter, it's read back out
// of each series' own metadata.
type CPUJob struct {
	client   metaSeriesFetcher
	registry dropletSnapshot
	families *Families
	cfg      config.FamilyConfig
	keyGroup string
	now      func() time.Time
}

func NewCPUJob(client metaSeriesFetcher, reg dropletSnapshot, families *Families, cfg config.FamilyConfig, keyGroup string) *CPUJob {
	return &CPUJob{client: client, registry: reg, families: families, cfg: cfg, keyGroup: keyGroup, now: timeNow}
}

func (j *CPUJob) Name() string { return "cpu" }

func (j *CPUJob) Run(ctx context.Context) error {
	droplets := j.registry.List()
	window := provider.NewWindow(j.now())

	ok := fanout(ctx, droplets, func(ctx context.Context, d domain.Droplet) error {
		points, err := j.client.FetchMetaSeries(ctx, "cpu", d.ID, url.Values{}, j.keyGroup, window)
		if err != nil {
			if isKeyError(err) {
				j.families.KeyErrors.With(prometheus.Labels{"key_type": j.keyGroup, "error": keyErrorLabel(err)}).Inc()
			}
			return err
		}
		for _, p := range points {
			mode := p.Meta["mode"]
			if mode == "" {
				mode = "unknown"
			}
			if len(j.cfg.Types) > 0 && !containsString(j.cfg.Types, mode) {
				continue
			}
			j.families.CPU.With(prometheus.Labels{"droplet": d.Name, "mode": mode}).Set(p.Value)
		}
		return nil
	})

	if !ok {
		return fmt.Errorf("cpu: one or more droplets failed")
	}
	return nil
}
