package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/droxporter/droxporter/internal/logging"
)

type countingJob struct {
	name  string
	calls atomic.Int64
	delay time.Duration
	err   error
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(ctx context.Context) error {
	j.calls.Add(1)
	if j.delay > 0 {
		time.Sleep(j.delay)
	}
	return j.err
}

type panicJob struct{}

func (panicJob) Name() string                   { return "panicky" }
func (panicJob) Run(ctx context.Context) error { panic("boom") }

func newTestScheduler() (*Scheduler, *prometheus.CounterVec, *prometheus.HistogramVec) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_jobs_counter"}, []string{"type", "result"})
	histogram := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "test_jobs_time_histogram_seconds"}, []string{"type"})
	return New(logging.New("test"), counter, histogram), counter, histogram
}

func TestSchedulerRunsJobRepeatedlyUntilCancelled(t *testing.T) {
	s, _, _ := newTestScheduler()
	job := &countingJob{name: "fast"}
	s.Register(job, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if job.calls.Load() < 2 {
		t.Fatalf("expected at least 2 ticks in 90ms at 20ms interval, got %d", job.calls.Load())
	}
}

func TestSchedulerSkipsTickWhenPreviousStillRunning(t *testing.T) {
	s, counter, _ := newTestScheduler()
	job := &countingJob{name: "slow", delay: 60 * time.Millisecond}
	s.Register(job, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 70*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	skipped := testutil.ToFloat64(counter.With(prometheus.Labels{"type": "slow", "result": "skipped"}))
	if skipped == 0 {
		t.Fatal("expected at least one skipped tick while the slow job was still running")
	}
}

func TestSchedulerRecordsFailureResult(t *testing.T) {
	s, counter, _ := newTestScheduler()
	job := &countingJob{name: "failing", err: context.DeadlineExceeded}
	s.Register(job, 15*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	fails := testutil.ToFloat64(counter.With(prometheus.Labels{"type": "failing", "result": "fail"}))
	if fails == 0 {
		t.Fatal("expected at least one fail result recorded")
	}
}

func TestSchedulerRecoversFromPanic(t *testing.T) {
	s, counter, _ := newTestScheduler()
	job := &panicJob{}
	s.Register(job, 15*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	fails := testutil.ToFloat64(counter.With(prometheus.Labels{"type": "panicky", "result": "fail"}))
	if fails == 0 {
		t.Fatal("expected panic to be recorded as a failure, not crash the test")
	}
}

func TestSchedulerZeroIntervalJobNeverTicks(t *testing.T) {
	s, _, _ := newTestScheduler()
	job := &countingJob{name: "disabled"}
	s.Register(job, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if job.calls.Load() != 0 {
		t.Fatalf("expected a zero-interval job to never run, got %d calls", job.calls.Load())
	}
}
