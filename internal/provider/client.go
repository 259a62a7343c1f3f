// Package provider is the thin HTTP client for the DigitalOcean REST
// API: it lists droplets, fetches monitoring metric series, classifies
// every response into the exporter's small error taxonomy, and
// borrows a rate-limit credit from a ratelimit.Pool for every call it
// makes. It never touches the metric store directly — grounded on the
// teacher's provider/domain split (internal/providers/hetzner.go
// wraps the SDK and returns domain types; internal/domain/errors.go
// supplies the sentinel errors this package wraps HTTP failures into)
// generalized to a raw net/http client since no DigitalOcean SDK is
// available in the retrieved example pack.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/droxporter/droxporter/internal/domain"
	"github.com/droxporter/droxporter/internal/ratelimit"
)

const (
	defaultBaseURL    = "https://api.digitalocean.com"
	dropletsPerPage   = 100
	connectTimeout    = 5 * time.Second
	readTimeout       = 30 * time.Second
	userAgent         = "droxporter/1.0"
	metricWindow      = 5 * time.Minute
	metricsPathPrefix = "/v2/monitoring/metrics/droplet/"
)

// Client is the DigitalOcean API wrapper. One Client is shared by
// every job; its *http.Client keeps a pooled, thread-safe transport.
type Client struct {
	baseURL   string
	http      *http.Client
	pool      *ratelimit.Pool
	onRequest func(keyGroup string)
}

// New builds a Client. baseURL defaults to the production API and is
// overridable for tests. onRequest, if non-nil, is called with the key
// group of every request the Client issues — the self-telemetry job's
// provider_requests_total counter wires in through this hook. Pass nil
// when no telemetry observer is needed (as in tests).
func New(pool *ratelimit.Pool, baseURL string, onRequest func(keyGroup string)) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:   baseURL,
		pool:      pool,
		onRequest: onRequest,
		http: &http.Client{
			Timeout: readTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
		},
	}
}

// InlineMetric is a bandwidth or CPU sample embedded in the droplet
// list response, ready to upsert without a separate metrics call.
type InlineMetric struct {
	Family string
	Labels map[string]string
	Value  float64
}

// ListDroplets pages through /v2/droplets (100 per page), reserving
// one credit per page against keyGroup. It returns the flattened
// droplet records and any inline bandwidth/CPU samples embedded in
// the response, so the caller can upsert both without an extra round
// trip for metrics that already arrived.
func (c *Client) ListDroplets(ctx context.Context, keyGroup string) ([]domain.Droplet, []InlineMetric, error) {
	var droplets []domain.Droplet
	var inline []InlineMetric

	page := 1
	for {
		var resp dropletListResponse
		if err := c.getJSON(ctx, keyGroup, "/v2/droplets", url.Values{
			"page":     {strconv.Itoa(page)},
			"per_page": {strconv.Itoa(dropletsPerPage)},
		}, &resp); err != nil {
			return nil, nil, err
		}

		for _, d := range resp.Droplets {
			droplets = append(droplets, domain.Droplet{
				ID:        d.ID,
				Name:      d.Name,
				Status:    d.Status,
				MemoryMB:  d.Memory,
				VCPUCount: d.Vcpus,
				DiskGB:    d.Disk,
			})
			inline = append(inline, d.inlineMetrics()...)
		}

		if resp.Links.Pages.Next == "" || len(resp.Droplets) == 0 {
			break
		}
		page++
	}

	return droplets, inline, nil
}

// Window is the [start, end] range of a metrics query, always
// metricWindow wide ending at "now".
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow returns the fixed 5-minute lookback window ending at now.
func NewWindow(now time.Time) Window {
	return Window{Start: now.Add(-metricWindow), End: now}
}

// MetaPoint is one (metadata, last value) pair extracted from a
// multi-series response, used by families whose series carry their
// own distinguishing metadata (CPU's mode, filesystem's device).
type MetaPoint struct {
	Meta  map[string]string
	Value float64
}

// FetchLastValue calls the given metrics endpoint kind and returns
// the single last finite value across every series in the response,
// ignoring any per-series metadata. Used by families whose sub_type
// is already fully determined by the query parameters (bandwidth,
// memory, load).
func (c *Client) FetchLastValue(ctx context.Context, kind string, dropletID int64, query url.Values, keyGroup string, window Window) (float64, error) {
	resp, err := c.fetchMetrics(ctx, kind, dropletID, query, keyGroup, window)
	if err != nil {
		return 0, err
	}
	return extractLastValue(resp), nil
}

// FetchMetaSeries calls the given metrics endpoint kind and returns
// one MetaPoint per series in the response, each with its own last
// finite value. Used by families whose series carry distinguishing
// metadata (CPU's mode, filesystem's device/fstype/mountpoint).
func (c *Client) FetchMetaSeries(ctx context.Context, kind string, dropletID int64, query url.Values, keyGroup string, window Window) ([]MetaPoint, error) {
	resp, err := c.fetchMetrics(ctx, kind, dropletID, query, keyGroup, window)
	if err != nil {
		return nil, err
	}
	return extractMetaWithLastValues(resp), nil
}

func (c *Client) fetchMetrics(ctx context.Context, kind string, dropletID int64, query url.Values, keyGroup string, window Window) (metricSeriesResponse, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("host_id", strconv.FormatInt(dropletID, 10))
	query.Set("start", strconv.FormatInt(window.Start.Unix(), 10))
	query.Set("end", strconv.FormatInt(window.End.Unix(), 10))

	var resp metricSeriesResponse
	err := c.getJSON(ctx, keyGroup, metricsPathPrefix+kind, query, &resp)
	return resp, err
}

// getJSON reserves a credit, performs a GET, classifies the response,
// and decodes a successful body into out.
func (c *Client) getJSON(ctx context.Context, keyGroup string, path string, query url.Values, out interface{}) error {
	handle, err := c.pool.Reserve(keyGroup)
	if err != nil {
		return err
	}

	if c.onRequest != nil {
		c.onRequest(keyGroup)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("provider: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+handle.Token)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("provider: request %s: %w", path, wrapNetErr(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("provider: read response %s: %w", path, domain.ErrTransient)
	}

	if err := classifyStatus(resp.StatusCode); err != nil {
		return fmt.Errorf("provider: %s returned %d: %w", path, resp.StatusCode, err)
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("provider: decode %s: %w", path, domain.ErrPermanent)
		}
	}
	return nil
}

func wrapNetErr(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrTransient, err)
}

// classifyStatus implements the exporter's HTTP error taxonomy: 2xx is
// success (nil), 429 and 5xx are transient, any other non-2xx is
// permanent.
func classifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return domain.ErrTransient
	case code >= 500:
		return domain.ErrTransient
	default:
		return domain.ErrPermanent
	}
}
