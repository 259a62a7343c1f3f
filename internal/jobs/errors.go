package jobs

import (
	"errors"

	"github.com/droxporter/droxporter/internal/domain"
)

// isKeyError reports whether err originated from the rate governor
// rather than the provider itself — these increment keys_errors
// instead of (or in addition to) being logged as job failures.
func isKeyError(err error) bool {
	return errors.Is(err, domain.ErrKeyExhausted) || errors.Is(err, domain.ErrKeyMissing)
}

func keyErrorLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrKeyExhausted):
		return "limit exceeded"
	case errors.Is(err, domain.ErrKeyMissing):
		return "key not found"
	default:
		return "unknown"
	}
}
