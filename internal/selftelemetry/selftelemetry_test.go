package selftelemetry

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/droxporter/droxporter/internal/config"
	"github.com/droxporter/droxporter/internal/ratelimit"
	"github.com/droxporter/droxporter/internal/store"
)

type fakeObserver struct {
	obs ratelimit.KeyObservation
}

func (f fakeObserver) Observe() ratelimit.KeyObservation { return f.obs }

func TestRunSkipsEntirelyWhenDisabled(t *testing.T) {
	s := store.New("", nil)
	job, err := New(config.ExporterConfig{Enabled: false}, fakeObserver{}, s, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("expected disabled job to no-op, got %v", err)
	}
}

func TestRunPopulatesLimitsWhenEnabled(t *testing.T) {
	s := store.New("", nil)
	obs := ratelimit.KeyObservation{
		RemainingByGroup: map[string]map[ratelimit.Timeframe]float64{
			"default": {ratelimit.OneMinute: 100, ratelimit.OneHour: 4000},
		},
		StatusByGroup: map[string]map[string]int{
			"default": {"active": 1, "exceeded": 0},
		},
	}
	job, err := New(config.ExporterConfig{Enabled: true, Metrics: []string{"limits"}}, fakeObserver{obs: obs}, s, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if v := testutil.ToFloat64(job.remainingByKey.With(map[string]string{"key_type": "default", "timeframe": "1 min"})); v != 100 {
		t.Fatalf("expected remaining 1 min = 100, got %v", v)
	}
	if v := testutil.ToFloat64(job.keysByStatus.With(map[string]string{"key_type": "default", "status": "active"})); v != 1 {
		t.Fatalf("expected active keys = 1, got %v", v)
	}
}

func TestRecordProviderRequestGatedByRequestsCategory(t *testing.T) {
	s := store.New("", nil)
	job, err := New(config.ExporterConfig{Enabled: true, Metrics: []string{"requests"}}, fakeObserver{}, s, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	job.RecordProviderRequest("droplets")
	if v := testutil.ToFloat64(job.providerRequests.With(map[string]string{"key_type": "droplets"})); v != 1 {
		t.Fatalf("expected 1 recorded request, got %v", v)
	}
}

func TestRecordProviderRequestNoOpWhenCategoryDisabled(t *testing.T) {
	s := store.New("", nil)
	job, err := New(config.ExporterConfig{Enabled: true, Metrics: []string{}}, fakeObserver{}, s, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	job.RecordProviderRequest("droplets")
	if v := testutil.ToFloat64(job.providerRequests.With(map[string]string{"key_type": "droplets"})); v != 0 {
		t.Fatalf("expected no recorded request when requests category disabled, got %v", v)
	}
}

func TestRecordProviderRequestNoOpWhenTelemetryDisabled(t *testing.T) {
	s := store.New("", nil)
	job, err := New(config.ExporterConfig{Enabled: false, Metrics: []string{"requests"}}, fakeObserver{}, s, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	job.RecordProviderRequest("droplets")
	if v := testutil.ToFloat64(job.providerRequests.With(map[string]string{"key_type": "droplets"})); v != 0 {
		t.Fatalf("expected no recorded request when self-telemetry is disabled entirely, got %v", v)
	}
}
