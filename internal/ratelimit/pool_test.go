package ratelimit

import (
	"errors"
	"testing"
	"time"

	"github.com/droxporter/droxporter/internal/domain"
)

func TestReserveAcrossGroups(t *testing.T) {
	groups := map[string][]string{
		DefaultGroup: {"default"},
		"cpu":        {"cpu-key"},
		"memory":     {"memory-key"},
	}
	pool := NewPool(groups, 250)

	h, err := pool.Reserve("cpu")
	if err != nil {
		t.Fatalf("reserve cpu: %v", err)
	}
	if h.Token != "cpu-key" {
		t.Fatalf("expected cpu-key, got %s", h.Token)
	}

	h, err = pool.Reserve("memory")
	if err != nil {
		t.Fatalf("reserve memory: %v", err)
	}
	if h.Token != "memory-key" {
		t.Fatalf("expected memory-key, got %s", h.Token)
	}

	h, err = pool.Reserve(DefaultGroup)
	if err != nil {
		t.Fatalf("reserve default: %v", err)
	}
	if h.Token != "default" {
		t.Fatalf("expected default, got %s", h.Token)
	}
}

func TestReserveFallsBackToDefaultWhenGroupEmpty(t *testing.T) {
	groups := map[string][]string{
		DefaultGroup: {"default"},
	}
	pool := NewPool(groups, 250)

	h, err := pool.Reserve("memory")
	if err != nil {
		t.Fatalf("reserve memory: %v", err)
	}
	if h.Token != "default" {
		t.Fatalf("expected fallback to default, got %s", h.Token)
	}
}

func TestReserveFailsWithKeyMissingWhenNoDefault(t *testing.T) {
	pool := NewPool(map[string][]string{}, 250)

	_, err := pool.Reserve("memory")
	if !errors.Is(err, domain.ErrKeyMissing) {
		t.Fatalf("expected ErrKeyMissing, got %v", err)
	}
}

// TestExhaustionThenFallback mirrors S3: a 1min bucket starting at a
// small prefill, fired past capacity within a group that has no
// default group to fall back to, exhausts and returns ErrKeyExhausted
// rather than ErrKeyMissing. The fallback to a populated default group
// is covered by TestReserveFallsBackToDefaultWhenGroupExhausted.
func TestExhaustionThenFallback(t *testing.T) {
	base := time.Now()
	pool := NewPoolAt(map[string][]string{
		"cpu": {"cpu-key"},
	}, 10, base)
	pool.SetClock(func() time.Time { return base })

	success := 0
	var lastErr error
	for i := 0; i < 15; i++ {
		_, err := pool.Reserve("cpu")
		if err == nil {
			success++
		} else {
			lastErr = err
		}
	}

	if success != 10 {
		t.Fatalf("expected 10 successful reservations before exhaustion, got %d", success)
	}
	if !errors.Is(lastErr, domain.ErrKeyExhausted) {
		t.Fatalf("expected ErrKeyExhausted after exhaustion, got %v", lastErr)
	}
}

// TestReserveFallsBackToDefaultWhenGroupExhausted covers the fallback
// branch TestExhaustionThenFallback doesn't: a non-default group whose
// only key is fully drained, with a fresh default group present, must
// still succeed by reserving from default rather than surfacing
// ErrKeyExhausted straight from the exhausted group.
func TestReserveFallsBackToDefaultWhenGroupExhausted(t *testing.T) {
	base := time.Now()
	pool := NewPoolAt(map[string][]string{
		DefaultGroup: {"d"},
		"cpu":        {"c"},
	}, 10, base)
	pool.SetClock(func() time.Time { return base })

	for i := 0; i < 10; i++ {
		if _, err := pool.Reserve("cpu"); err != nil {
			t.Fatalf("priming reservation %d: %v", i, err)
		}
	}

	h, err := pool.Reserve("cpu")
	if err != nil {
		t.Fatalf("expected fallback to default to succeed, got %v", err)
	}
	if h.Token != "d" {
		t.Fatalf("expected fallback token d, got %s", h.Token)
	}
}

func TestBestKeySelectionPrefersMostBudget(t *testing.T) {
	base := time.Now()
	pool := NewPoolAt(map[string][]string{
		"cpu": {"low", "high"},
	}, 250, base)
	pool.SetClock(func() time.Time { return base })

	// Both keys start equal. A tie goes to the first key in group order
	// ("low"); after that "low" holds one credit less, so the next
	// reservation must pick "high", and the choice keeps alternating.
	for i := 0; i < 100; i++ {
		h, err := pool.Reserve("cpu")
		if err != nil {
			t.Fatalf("reservation %d: %v", i, err)
		}
		want := "low"
		if i%2 == 1 {
			want = "high"
		}
		if h.Token != want {
			t.Fatalf("reservation %d: expected key with most budget %q, got %q", i, want, h.Token)
		}
	}

	// Each key has 200 credits left, so further reservations all succeed.
	for i := 0; i < 50; i++ {
		if _, err := pool.Reserve("cpu"); err != nil {
			t.Fatalf("follow-up reservation %d: %v", i, err)
		}
	}
}

func TestRemainingNeverNegativeOrOverCapacity(t *testing.T) {
	base := time.Now()
	pool := NewPoolAt(map[string][]string{"cpu": {"k"}}, 250, base)
	pool.SetClock(func() time.Time { return base })

	for i := 0; i < 1000; i++ {
		pool.Reserve("cpu")
	}

	obs := pool.Observe()
	for _, byTF := range obs.RemainingByGroup {
		for tf, v := range byTF {
			if v < 0 {
				t.Fatalf("timeframe %s went negative: %v", tf, v)
			}
			capacity := defaultParams[tf].capacity
			if v > capacity {
				t.Fatalf("timeframe %s exceeded capacity %v: %v", tf, capacity, v)
			}
		}
	}
}

func TestRefillIsMonotonicWithoutReservation(t *testing.T) {
	base := time.Now()
	pool := NewPoolAt(map[string][]string{"cpu": {"k"}}, 10, base)

	t1 := base.Add(time.Second)
	t2 := base.Add(2 * time.Second)
	pool.SetClock(func() time.Time { return t1 })
	first := pool.Observe()
	pool.SetClock(func() time.Time { return t2 })
	second := pool.Observe()

	for tf := range first.RemainingByGroup["cpu"] {
		if second.RemainingByGroup["cpu"][tf] < first.RemainingByGroup["cpu"][tf] {
			t.Fatalf("remaining decreased without reservation for %s: %v -> %v",
				tf, first.RemainingByGroup["cpu"][tf], second.RemainingByGroup["cpu"][tf])
		}
	}
}
