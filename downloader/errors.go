package downloader

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransient covers timeouts, connection failures and 5xx answers.
	ErrTransient = errors.New("transient failure")
	// ErrRateLimited is returned once 429 answers outlast the retry cap.
	ErrRateLimited = errors.New("rate limited")
	// ErrNotFound means a 404 or that the expected page structure is absent.
	ErrNotFound = errors.New("not found")
	// ErrParse means markup or JSON was present but could not be read.
	ErrParse = errors.New("parse failure")
	// ErrIncompleteChapter means at least one page of a chapter failed.
	ErrIncompleteChapter = errors.New("chapter incomplete")
	// ErrUnsupportedSite means no adapter handles the URL.
	ErrUnsupportedSite = errors.New("unsupported site")
)

// HTTPError is a non-200 answer. It unwraps to the sentinel matching its
// status class.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.StatusCode, e.URL)
}

func (e *HTTPError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone:
		return ErrNotFound
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return ErrTransient
	}
}

// transportError marks a failed round trip (timeout, refused, reset) as
// transient while keeping the cause.
func transportError(target string, err error) error {
	return fmt.Errorf("request to %s failed: %w: %w", target, ErrTransient, err)
}

// NotFound reports an expected element that is missing from a page.
func NotFound(what, target string) error {
	return fmt.Errorf("%s missing on %s: %w", what, target, ErrNotFound)
}

// ParseError wraps a decode failure for target.
func ParseError(target string, err error) error {
	return fmt.Errorf("failed to parse %s: %w: %w", target, ErrParse, err)
}

// Kind names the category of err for logs and run summaries.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrIncompleteChapter):
		return "incomplete"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrUnsupportedSite):
		return "unsupported"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return "error"
	}
}
