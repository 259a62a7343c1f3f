package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/droxporter/droxporter/internal/domain"
	"github.com/droxporter/droxporter/internal/ratelimit"
)

func testPool() *ratelimit.Pool {
	return ratelimit.NewPool(map[string][]string{
		ratelimit.DefaultGroup: {"test-token"},
		"droplets":              {"test-token"},
	}, 250)
}

func TestListDropletsPaginates(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		page := r.URL.Query().Get("page")
		w.Header().Set("Content-Type", "application/json")
		if page == "1" {
			json.NewEncoder(w).Encode(map[string]any{
				"droplets": []map[string]any{{"id": 1, "name": "alpha", "status": "active", "memory": 1024, "vcpus": 1, "disk": 25}},
				"links":    map[string]any{"pages": map[string]any{"next": "http://x/v2/droplets?page=2"}},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"droplets": []map[string]any{{"id": 2, "name": "beta", "status": "active", "memory": 2048, "vcpus": 2, "disk": 50}},
			"links":    map[string]any{"pages": map[string]any{}},
		})
	}))
	defer srv.Close()

	c := New(testPool(), srv.URL, nil)
	droplets, _, err := c.ListDroplets(context.Background(), "droplets")
	if err != nil {
		t.Fatalf("list droplets: %v", err)
	}
	if len(droplets) != 2 {
		t.Fatalf("expected 2 droplets across pages, got %d", len(droplets))
	}
	if requests != 2 {
		t.Fatalf("expected 2 requests, got %d", requests)
	}
}

func TestGetJSONInvokesOnRequestHookPerCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"droplets": []map[string]any{},
			"links":    map[string]any{"pages": map[string]any{}},
		})
	}))
	defer srv.Close()

	var calls []string
	c := New(testPool(), srv.URL, func(keyGroup string) { calls = append(calls, keyGroup) })

	if _, _, err := c.ListDroplets(context.Background(), "droplets"); err != nil {
		t.Fatalf("list droplets: %v", err)
	}
	if len(calls) != 1 || calls[0] != "droplets" {
		t.Fatalf("expected one onRequest call for group droplets, got %v", calls)
	}
}

func TestListDropletsExtractsInlineMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"droplets": []map[string]any{{
				"id": 1, "name": "alpha", "status": "active", "memory": 1024, "vcpus": 1, "disk": 25,
				"metrics": map[string]any{
					"bandwidth": []map[string]any{{"interface": "public", "direction": "inbound", "value": 5.5}},
					"cpu":       []map[string]any{{"mode": "idle", "value": 90.0}},
				},
			}},
			"links": map[string]any{"pages": map[string]any{}},
		})
	}))
	defer srv.Close()

	c := New(testPool(), srv.URL, nil)
	_, inline, err := c.ListDroplets(context.Background(), "droplets")
	if err != nil {
		t.Fatalf("list droplets: %v", err)
	}
	if len(inline) != 2 {
		t.Fatalf("expected 2 inline metrics, got %d", len(inline))
	}
}

func TestFetchLastValueSkipsTrailingGap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data": map[string]any{
				"result": []map[string]any{{
					"metric": map[string]string{},
					"values": []map[string]any{
						{"timestamp": 100, "value": "95.5"},
						{"timestamp": 200, "value": "NaN"},
					},
				}},
			},
		})
	}))
	defer srv.Close()

	c := New(testPool(), srv.URL, nil)
	v, err := c.FetchLastValue(context.Background(), "cpu", 1, url.Values{}, "cpu", NewWindow(time.Now()))
	if err != nil {
		t.Fatalf("fetch last value: %v", err)
	}
	if v != 95.5 {
		t.Fatalf("expected last finite value 95.5 (skipping trailing NaN), got %v", v)
	}
}

func TestFetchMetaSeriesReturnsOnePerSeries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data": map[string]any{
				"result": []map[string]any{
					{"metric": map[string]string{"mode": "idle"}, "values": []map[string]any{{"timestamp": 1, "value": "10"}}},
					{"metric": map[string]string{"mode": "system"}, "values": []map[string]any{{"timestamp": 1, "value": "20"}}},
				},
			},
		})
	}))
	defer srv.Close()

	c := New(testPool(), srv.URL, nil)
	points, err := c.FetchMetaSeries(context.Background(), "cpu", 1, url.Values{}, "cpu", NewWindow(time.Now()))
	if err != nil {
		t.Fatalf("fetch meta series: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 meta points, got %d", len(points))
	}
}

func TestClassifyStatusTaxonomy(t *testing.T) {
	cases := []struct {
		code int
		want error
	}{
		{200, nil},
		{204, nil},
		{404, domain.ErrPermanent},
		{429, domain.ErrTransient},
		{500, domain.ErrTransient},
		{503, domain.ErrTransient},
	}
	for _, tc := range cases {
		got := classifyStatus(tc.code)
		if tc.want == nil && got != nil {
			t.Errorf("code %d: expected success, got %v", tc.code, got)
		}
		if tc.want != nil && !errors.Is(got, tc.want) {
			t.Errorf("code %d: expected %v, got %v", tc.code, tc.want, got)
		}
	}
}

func TestTransientErrorPropagatedOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(testPool(), srv.URL, nil)
	_, err := c.FetchLastValue(context.Background(), "cpu", 1, url.Values{}, "cpu", NewWindow(time.Now()))
	if !errors.Is(err, domain.ErrTransient) {
		t.Fatalf("expected ErrTransient for 503, got %v", err)
	}
}
