package cf

import (
	"errors"
	"fmt"
)

// ChallengeError is returned when a response turned out to be a Cloudflare
// challenge page instead of content. Err carries the caller's
// classification (the downloader sets it to its transient sentinel).
type ChallengeError struct {
	URL        string
	StatusCode int
	Indicators []string
	Err        error
}

func (e *ChallengeError) Error() string {
	return fmt.Sprintf("cloudflare challenge: status=%d url=%s", e.StatusCode, e.URL)
}

func (e *ChallengeError) Unwrap() error {
	return e.Err
}

// IsChallenge reports whether err wraps a ChallengeError.
func IsChallenge(err error) (*ChallengeError, bool) {
	var cfErr *ChallengeError
	if errors.As(err, &cfErr) {
		return cfErr, true
	}
	return nil, false
}
