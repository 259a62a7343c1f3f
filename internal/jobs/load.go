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

var allLoadTypes = []string{"load_1", "load_5", "load_15"}

// LoadJob polls droplet_load for each enabled sub_type, one
// single-series query per sub_type.
type LoadJob struct {
	client   lastValueFetcher
	registry dropletSnapshot
	families *Families
	cfg      config.FamilyConfig
	keyGroup string
	now      func() time.Time
}

func NewLoadJob(client lastValueFetcher, reg dropletSnapshot, families *Families, cfg config.FamilyConfig, keyGroup string) *LoadJob {
	return &LoadJob{client: client, registry: reg, families: families, cfg: cfg, keyGroup: keyGroup, now: timeNow}
}

func (j *LoadJob) Name() string { return "load" }

func (j *LoadJob) types() []string {
	if len(j.cfg.Types) == 0 {
		return allLoadTypes
	}
	return j.cfg.Types
}

func (j *LoadJob) Run(ctx context.Context) error {
	droplets := j.registry.List()
	types := j.types()
	window := provider.NewWindow(j.now())

	ok := fanout(ctx, droplets, func(ctx context.Context, d domain.Droplet) error {
		var lastErr error
		for _, loadType := range types {
			v, err := j.client.FetchLastValue(ctx, loadType, d.ID, url.Values{}, j.keyGroup, window)
			if err != nil {
				if isKeyError(err) {
					j.families.KeyErrors.With(prometheus.Labels{"key_type": j.keyGroup, "error": keyErrorLabel(err)}).Inc()
				}
				lastErr = err
				continue
			}
			j.families.Load.With(prometheus.Labels{"droplet": d.Name, "metric_type": loadType}).Set(v)
		}
		return lastErr
	})

	if !ok {
		return fmt.Errorf("load: one or more droplets failed")
	}
	return nil
}
