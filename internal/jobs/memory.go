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

var allMemoryTypes = []string{"free", "available", "cached", "total"}

// MemoryJob polls droplet_memory for each enabled sub_type. Each
// sub_type is a distinct provider query, and each query's response
// already narrows to a single series, so this uses lastValueFetcher.
type MemoryJob struct {
	client   lastValueFetcher
	registry dropletSnapshot
	families *Families
	cfg      config.FamilyConfig
	keyGroup string
	now      func() time.Time
}

func NewMemoryJob(client lastValueFetcher, reg dropletSnapshot, families *Families, cfg config.FamilyConfig, keyGroup string) *MemoryJob {
	return &MemoryJob{client: client, registry: reg, families: families, cfg: cfg, keyGroup: keyGroup, now: timeNow}
}

func (j *MemoryJob) Name() string { return "memory" }

func (j *MemoryJob) types() []string {
	if len(j.cfg.Types) == 0 {
		return allMemoryTypes
	}
	return j.cfg.Types
}

func (j *MemoryJob) Run(ctx context.Context) error {
	droplets := j.registry.List()
	types := j.types()
	window := provider.NewWindow(j.now())

	ok := fanout(ctx, droplets, func(ctx context.Context, d domain.Droplet) error {
		var lastErr error
		for _, memType := range types {
			v, err := j.client.FetchLastValue(ctx, "memory_"+memType, d.ID, url.Values{}, j.keyGroup, window)
			if err != nil {
				if isKeyError(err) {
					j.families.KeyErrors.With(prometheus.Labels{"key_type": j.keyGroup, "error": keyErrorLabel(err)}).Inc()
				}
				lastErr = err
				continue
			}
			j.families.Memory.With(prometheus.Labels{"droplet": d.Name, "metric_type": memType}).Set(v)
		}
		return lastErr
	})

	if !ok {
		return fmt.Errorf("memory: one or more droplets failed")
	}
	return nil
}
