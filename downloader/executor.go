package downloader

import (
	"context"
	"fmt"
	"log"
	"strings"

	"mangadl/cf"

	"github.com/PuerkitoBio/goquery"
)

// RequestExecutor fetches pages over plain HTTP first and falls back to a
// browser when the HTTP answer fails or lacks the element a script would
// have rendered.
type RequestExecutor struct {
	name    string
	http    Transport
	browser Transport
}

// NewRequestExecutor combines an HTTP transport with a browser fallback.
func NewRequestExecutor(name string, http, browser Transport) *RequestExecutor {
	return &RequestExecutor{name: name, http: http, browser: browser}
}

func (e *RequestExecutor) FetchHTML(ctx context.Context, target, waitSelector string) (string, error) {
	log.Printf("[Executor:%s] Fetching: %s", e.name, target)

	html, err := e.http.FetchHTML(ctx, target, waitSelector)
	if err == nil {
		if waitSelector == "" || hasSelector(html, waitSelector) {
			log.Printf("[Executor:%s] ✓ HTTP fetch successful", e.name)
			return html, nil
		}
		log.Printf("[Executor:%s] %q not in static page, rendering in browser", e.name, waitSelector)
	} else {
		if cfErr, ok := cf.IsChallenge(err); ok {
			log.Printf("[Executor:%s] CF challenge at %s needs a manual solve (mangadl cf import)", e.name, cfErr.URL)
			return "", err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		log.Printf("[Executor:%s] HTTP failed (%v), trying browser fallback...", e.name, err)
	}

	if e.browser == nil {
		if err != nil {
			return "", err
		}
		return "", NotFound(fmt.Sprintf("%q", waitSelector), target)
	}

	html, err = e.browser.FetchHTML(ctx, target, waitSelector)
	if err != nil {
		return "", err
	}
	log.Printf("[Executor:%s] ✓ Browser fetch successful", e.name)
	return html, nil
}

func hasSelector(html, selector string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	return doc.Find(selector).Length() > 0
}
