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
	"github.com/droxporter/droxporter/internal/registry"
)

// lastValueFetcher is the subset of provider.Client every single-value
// family job needs.
type lastValueFetcher interface {
	FetchLastValue(ctx context.Context, kind string, dropletID int64, query url.Values, keyGroup string, window provider.Window) (float64, error)
}

// metaSeriesFetcher is the subset of provider.Client every
// metadata-labeled family job needs.
type metaSeriesFetcher interface {
	FetchMetaSeries(ctx context.Context, kind string, dropletID int64, query url.Values, keyGroup string, window provider.Window) ([]provider.MetaPoint, error)
}

// dropletSnapshot is what fanout jobs read: only the current snapshot, not
// a fresh fetch — the registry is the single source of truth for
// "which droplets exist right now".
type dropletSnapshot interface {
	List() []domain.Droplet
}

var _ dropletSnapshot = (*registry.Registry)(nil)

// bandwidthCombo is one (interface, direction) tuple this family can
// report, matching the provider's public/private x inbound/outbound
// sub_types.
type bandwidthCombo struct {
	iface     string
	direction string
}

var allBandwidthCombos = []bandwidthCombo{
	{"public", "inbound"},
	{"public", "outbound"},
	{"private", "inbound"},
	{"private", "outbound"},
}

// typeName is the config-file spelling for one combo, e.g.
// "public_inbound".
func (c bandwidthCombo) typeName() string { return c.iface + "_" + c.direction }

// BandwidthJob polls droplet_bandwidth for every enabled
// (interface, direction) combination.
type BandwidthJob struct {
	client   lastValueFetcher
	registry dropletSnapshot
	families *Families
	cfg      config.FamilyConfig
	keyGroup string
	now      func() time.Time
}

// NewBandwidthJob constructs the bandwidth family job. If cfg.Types is
// empty, every combination is polled.
func NewBandwidthJob(client lastValueFetcher, reg dropletSnapshot, families *Families, cfg config.FamilyConfig, keyGroup string) *BandwidthJob {
	return &BandwidthJob{client: client, registry: reg, families: families, cfg: cfg, keyGroup: keyGroup, now: timeNow}
}

func (j *BandwidthJob) Name() string { return "bandwidth" }

func (j *BandwidthJob) combos() []bandwidthCombo {
	if len(j.cfg.Types) == 0 {
		return allBandwidthCombos
	}
	var out []bandwidthCombo
	for _, c := range allBandwidthCombos {
		if containsString(j.cfg.Types, c.typeName()) {
			out = append(out, c)
		}
	}
	return out
}

func (j *BandwidthJob) Run(ctx context.Context) error {
	droplets := j.registry.List()
	combos := j.combos()
	window := provider.NewWindow(j.now())

	ok := fanout(ctx, droplets, func(ctx context.Context, d domain.Droplet) error {
		var lastErr error
		for _, c := range combos {
			query := url.Values{"interface": {c.iface}, "direction": {c.direction}}
			v, err := j.client.FetchLastValue(ctx, "bandwidth", d.ID, query, j.keyGroup, window)
			if err != nil {
				if isKeyError(err) {
					j.families.KeyErrors.With(prometheus.Labels{"key_type": j.keyGroup, "error": keyErrorLabel(err)}).Inc()
				}
				lastErr = err
				continue
			}
			j.families.Bandwidth.With(prometheus.Labels{
				"droplet":   d.Name,
				"interface": c.iface,
				"direction": c.direction,
			}).Set(v)
		}
		return lastErr
	})

	if !ok {
		return fmt.Errorf("bandwidth: one or more droplets failed")
	}
	return nil
}

func containsString(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
