package domain

import "errors"

// Sentinel errors for provider and governor failure classification.
// Callers wrap these with fmt.Errorf("...: %w", domain.ErrX) so the
// scheduler can branch on category with errors.Is without depending on
// the HTTP layer.
var (
	// ErrTransient marks a failure the caller should retry on the next
	// tick: network errors, 429, and 5xx responses.
	ErrTransient = errors.New("transient provider error")

	// ErrPermanent marks a failure that will not resolve by retrying:
	// any 4xx other than 429, and response bodies that fail to parse.
	ErrPermanent = errors.New("permanent provider error")

	// ErrKeyExhausted indicates the rate governor could not find a key
	// with budget remaining in the requested group or the default group.
	ErrKeyExhausted = errors.New("rate limit exceeded")

	// ErrKeyMissing indicates the requested key group and the default
	// group are both empty.
	ErrKeyMissing = errors.New("api key not found")
)
