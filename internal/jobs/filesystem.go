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

var allFilesystemTypes = []string{"free", "size"}

// FilesystemJob polls droplet_filesystem for free/size, one call per
// droplet per sub_type, each returning one series per mounted
// device — hence metaSeriesFetcher rather than lastValueFetcher.
type FilesystemJob struct {
	client   metaSeriesFetcher
	registry dropletSnapshot
	families *Families
	cfg      config.FamilyConfig
	keyGroup string
	now      func() time.Time
}

func NewFilesystemJob(client metaSeriesFetcher, reg dropletSnapshot, families *Families, cfg config.FamilyConfig, keyGroup string) *FilesystemJob {
	return &FilesystemJob{client: client, registry: reg, families: families, cfg: cfg, keyGroup: keyGroup, now: timeNow}
}

func (j *FilesystemJob) Name() string { return "filesystem" }

func (j *FilesystemJob) types() []string {
	if len(j.cfg.Types) == 0 {
		return allFilesystemTypes
	}
	return j.cfg.Types
}

func (j *FilesystemJob) Run(ctx context.Context) error {
	droplets := j.registry.List()
	types := j.types()
	window := provider.NewWindow(j.now())

	ok := fanout(ctx, droplets, func(ctx context.Context, d domain.Droplet) error {
		var lastErr error
		for _, fsType := range types {
			points, err := j.client.FetchMetaSeries(ctx, "filesystem_"+fsType, d.ID, url.Values{}, j.keyGroup, window)
			if err != nil {
				if isKeyError(err) {
					j.families.KeyErrors.With(prometheus.Labels{"key_type": j.keyGroup, "error": keyErrorLabel(err)}).Inc()
				}
				lastErr = err
				continue
			}
			for _, p := range points {
				j.families.Filesystem.With(prometheus.Labels{
					"droplet":     d.Name,
					"metric_type": fsType,
					"device":      metaOr(p.Meta, "device"),
					"fstype":      metaOr(p.Meta, "fstype"),
					"mountpoint":  metaOr(p.Meta, "mountpoint"),
				}).Set(p.Value)
			}
		}
		return lastErr
	})

	if !ok {
		return fmt.Errorf("filesystem: one or more droplets failed")
	}
	return nil
}

func metaOr(meta map[string]string, key string) string {
	if v, ok := meta[key]; ok && v != "" {
		return v
	}
	return "unknown"
}
