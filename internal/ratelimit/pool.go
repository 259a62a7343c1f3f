package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/droxporter/droxporter/internal/domain"
)

// DefaultGroup is the fallback key group name used when a specific
// group is empty or every key in it is exhausted.
const DefaultGroup = "default"

// Pool owns every known key's live bucket state and the group
// membership lists. A single token may be listed under several
// groups; the Pool stores one *key per distinct token so groups never
// duplicate bucket state.
type Pool struct {
	mu     sync.Mutex
	keys   map[string]*key            // token -> key
	groups map[string][]string        // group -> ordered token list
	now    func() time.Time
}

// Handle names the token chosen by a successful Reserve call. It never
// exposes the raw token to callers that don't need it for the
// Authorization header.
type Handle struct {
	Token string
}

// NewPool builds a Pool from a group->tokens membership map. prefill
// is the initial `remaining` value applied to every bucket of every
// key (capped to that bucket's capacity, so a value at or above every
// capacity pre-fills each bucket to full).
func NewPool(groups map[string][]string, prefill float64) *Pool {
	return NewPoolAt(groups, prefill, time.Now())
}

// NewPoolAt is NewPool with an injected reference time, for
// deterministic property and scenario tests. The returned Pool's
// internal clock still advances with real wall time on every
// subsequent call; only the initial bucket state is pinned.
func NewPoolAt(groups map[string][]string, prefill float64, now time.Time) *Pool {
	return newPoolAt(groups, prefill, now)
}

// SetClock overrides the pool's time source. Test-only.
func (p *Pool) SetClock(clock func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = clock
}

func (p *Pool) clockNow() time.Time {
	p.mu.Lock()
	clock := p.now
	p.mu.Unlock()
	return clock()
}

func newPoolAt(groups map[string][]string, prefill float64, now time.Time) *Pool {
	p := &Pool{
		keys:   make(map[string]*key),
		groups: make(map[string][]string, len(groups)),
		now:    time.Now,
	}
	for group, tokens := range groups {
		cp := make([]string, len(tokens))
		copy(cp, tokens)
		p.groups[group] = cp
		for _, tok := range tokens {
			if _, ok := p.keys[tok]; !ok {
				p.keys[tok] = newKey(tok, prefill, now)
			}
		}
	}
	return p
}

// Reserve selects the best key in group — the one whose minimum
// remaining across buckets is maximal — and deducts one credit from
// every bucket of that key. If no key in group can supply a credit,
// whether because the group is empty or because every key in it is
// exhausted, it falls back to DefaultGroup under the same rule.
// Returns domain.ErrKeyExhausted if group or DefaultGroup has keys but
// none can serve the request, or domain.ErrKeyMissing if group and
// DefaultGroup are both empty.
func (p *Pool) Reserve(group string) (Handle, error) {
	now := p.clockNow()

	h, groupErr := p.reserveWithin(group, now)
	if groupErr == nil {
		return h, nil
	} else if group == DefaultGroup {
		if groupErr == errGroupEmpty {
			return Handle{}, domain.ErrKeyMissing
		}
		return Handle{}, groupErr
	}

	h, err := p.reserveWithin(DefaultGroup, now)
	if err == errGroupEmpty {
		if groupErr == errGroupEmpty {
			return Handle{}, domain.ErrKeyMissing
		}
		return Handle{}, groupErr
	}
	return h, err
}

var errGroupEmpty = fmt.Errorf("key group empty")

// reserveWithin picks the best available key strictly inside group,
// without falling back. errGroupEmpty signals the caller should try
// the default group; domain.ErrKeyExhausted signals the group is
// non-empty but every key in it is out of budget.
func (p *Pool) reserveWithin(group string, now time.Time) (Handle, error) {
	p.mu.Lock()
	tokens := p.groups[group]
	keys := make([]*key, len(tokens))
	for i, tok := range tokens {
		keys[i] = p.keys[tok]
	}
	p.mu.Unlock()

	if len(keys) == 0 {
		return Handle{}, errGroupEmpty
	}

	best := bestKey(keys, now)
	if best == nil {
		return Handle{}, domain.ErrKeyExhausted
	}
	if !best.tryAcquire(now) {
		// Lost a race against another reserver between selection and
		// acquisition; the caller's next tick will pick a different key.
		return Handle{}, domain.ErrKeyExhausted
	}
	return Handle{Token: best.token}, nil
}

// bestKey returns the key whose minimum-across-buckets remaining is
// maximal, or nil if every key in the slice is exceeded (min < 1.0).
func bestKey(keys []*key, now time.Time) *key {
	var chosen *key
	var chosenMin float64
	for _, k := range keys {
		m := k.minRemaining(now)
		if m < 1.0 {
			continue
		}
		if chosen == nil || m > chosenMin {
			chosen = k
			chosenMin = m
		}
	}
	return chosen
}

// Observe returns, per group, each timeframe's remaining budget summed
// across the group's distinct keys (one value per key_type+timeframe,
// matching remaining_limits_by_key) and a count of keys whose
// min-remaining is below 1.0 ("exceeded") versus at or above it
// ("active"). This is read by the self-telemetry job.
func (p *Pool) Observe() KeyObservation {
	now := p.clockNow()
	p.mu.Lock()
	groups := make(map[string][]string, len(p.groups))
	for g, toks := range p.groups {
		cp := make([]string, len(toks))
		copy(cp, toks)
		groups[g] = cp
	}
	p.mu.Unlock()

	obs := KeyObservation{
		RemainingByGroup: make(map[string]map[Timeframe]float64),
		StatusByGroup:    make(map[string]map[string]int),
	}
	for group, tokens := range groups {
		seen := make(map[string]bool)
		remaining := make(map[Timeframe]float64)
		status := map[string]int{"active": 0, "exceeded": 0}
		for _, tok := range tokens {
			if seen[tok] {
				continue
			}
			seen[tok] = true
			p.mu.Lock()
			k := p.keys[tok]
			p.mu.Unlock()
			if k == nil {
				continue
			}
			for tf, v := range k.remainingByTimeframe(now) {
				remaining[tf] += v
			}
			if k.minRemaining(now) < 1.0 {
				status["exceeded"]++
			} else {
				status["active"]++
			}
		}
		obs.RemainingByGroup[group] = remaining
		obs.StatusByGroup[group] = status
	}
	return obs
}

// KeyObservation is the snapshot exposed to the self-telemetry job for
// the remaining_limits_by_key and keys_by_status self-metrics.
type KeyObservation struct {
	RemainingByGroup map[string]map[Timeframe]float64
	StatusByGroup    map[string]map[string]int
}
