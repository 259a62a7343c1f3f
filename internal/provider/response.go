package provider

import "sort"

// dropletListResponse mirrors the shape of GET /v2/droplets. Each
// droplet may carry an inline "metrics" sub-document; when present its
// bandwidth/CPU points are turned into InlineMetric values so a
// registry refresh can populate those families without a second
// round trip (see the S6 scenario).
type dropletListResponse struct {
	Droplets []dropletJSON `json:"droplets"`
	Links    struct {
		Pages struct {
			Next string `json:"next"`
		} `json:"pages"`
	} `json:"links"`
}

type dropletJSON struct {
	ID      int64          `json:"id"`
	Name    string         `json:"name"`
	Status  string         `json:"status"`
	Memory  uint32         `json:"memory"`
	Vcpus   uint32         `json:"vcpus"`
	Disk    uint32         `json:"disk"`
	Metrics *inlineMetrics `json:"metrics,omitempty"`
}

type inlineMetrics struct {
	Bandwidth []inlineBandwidthPoint `json:"bandwidth,omitempty"`
	CPU       []inlineCPUPoint       `json:"cpu,omitempty"`
}

type inlineBandwidthPoint struct {
	Interface string  `json:"interface"`
	Direction string  `json:"direction"`
	Value     float64 `json:"value"`
}

type inlineCPUPoint struct {
	Mode  string  `json:"mode"`
	Value float64 `json:"value"`
}

func (d dropletJSON) inlineMetrics() []InlineMetric {
	if d.Metrics == nil {
		return nil
	}
	var out []InlineMetric
	for _, b := range d.Metrics.Bandwidth {
		out = append(out, InlineMetric{
			Family: "droplet_bandwidth",
			Labels: map[string]string{
				"droplet":   d.Name,
				"interface": b.Interface,
				"direction": b.Direction,
			},
			Value: b.Value,
		})
	}
	for _, c := range d.Metrics.CPU {
		out = append(out, InlineMetric{
			Family: "droplet_cpu",
			Labels: map[string]string{
				"droplet": d.Name,
				"mode":    c.Mode,
			},
			Value: c.Value,
		})
	}
	return out
}

// metricSeriesResponse mirrors the Prometheus-shaped payload returned
// by /v2/monitoring/metrics/droplet/<kind>, following the response
// envelope the original client parsed (status/data/result/metric/values).
type metricSeriesResponse struct {
	Status string           `json:"status"`
	Data   metricSeriesData `json:"data"`
}

type metricSeriesData struct {
	Result []metricSeries `json:"result"`
}

type metricSeries struct {
	Metric map[string]string `json:"metric"`
	Values []metricPoint     `json:"values"`
}

// metricPoint is one (timestamp, value) sample. value arrives as a
// string in the provider's wire format, matching Prometheus's own
// query-range JSON encoding.
type metricPoint struct {
	Timestamp int64  `json:"timestamp"`
	Value     string `json:"value"`
}

// extractLastValue implements the last-point-extraction rule from the
// design notes: scan every value across every series for the sample
// with the maximal timestamp that parses as a finite float, right to
// left, never a blind index into the last element (that would surface
// a trailing NaN or gap). Returns 0 if no series has a usable point.
func extractLastValue(resp metricSeriesResponse) float64 {
	var points []metricPoint
	for _, series := range resp.Data.Result {
		points = append(points, series.Values...)
	}
	if v, ok := lastFinitePoint(points); ok {
		return v
	}
	return 0
}

// extractMetaWithLastValues returns one (metadata, value) pair per
// series, applying the same last-point rule within each series
// independently.
func extractMetaWithLastValues(resp metricSeriesResponse) []MetaPoint {
	out := make([]MetaPoint, 0, len(resp.Data.Result))
	for _, series := range resp.Data.Result {
		v, ok := lastFinitePoint(series.Values)
		if !ok {
			v = 0
		}
		out = append(out, MetaPoint{Meta: series.Metric, Value: v})
	}
	return out
}

// lastFinitePoint scans points by descending timestamp for the first
// value that parses as a finite float.
func lastFinitePoint(points []metricPoint) (float64, bool) {
	sorted := make([]metricPoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp > sorted[j].Timestamp })

	for _, p := range sorted {
		v, ok := parseFinite(p.Value)
		if ok {
			return v, true
		}
	}
	return 0, false
}
