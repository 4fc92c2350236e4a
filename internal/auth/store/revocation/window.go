package revocation

import (
	"fmt"
	"time"

	"gestionale/pkg/platform/sentinel"
)

// Window returns how long a token expiring at expiresAt must stay on the list.
// Token expiry has one-second resolution, so the window is rounded up to the
// next second. ok is false when the token has already expired.
func Window(expiresAt, now time.Time) (ttl time.Duration, ok bool) {
	remaining := expiresAt.Sub(now)
	if remaining <= 0 {
		return 0, false
	}
	if rem := remaining % time.Second; rem != 0 {
		remaining += time.Second - rem
	}
	return remaining, true
}

// checkRevocation reports whether jti should be stored. An empty jti names no
// token and is skipped; a non-positive ttl is a caller bug.
func checkRevocation(jti string, ttl time.Duration) (bool, error) {
	if jti == "" {
		return false, nil
	}
	if ttl <= 0 {
		return false, fmt.Errorf("revoke %s for %s: %w", jti, ttl, sentinel.ErrInvalidState)
	}
	return true, nil
}
