package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"mangadl/cf"
	"mangadl/parser"

	"golang.org/x/net/publicsuffix"
)

const (
	// DefaultUserAgent is sent when neither the site config nor stored
	// bypass data provide one.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	RequestTimeout    = 30 * time.Second
	RateLimitDelay    = 20 * time.Second
	RateLimitAttempts = 5
	DefaultRateLimit  = 500 * time.Millisecond
	DefaultBurst      = 2
)

// ClientOptions configures the HTTP and API clients of one adapter.
type ClientOptions struct {
	// Headers are added to every request unless the request sets them.
	Headers http.Header
	// RateLimit is the minimum spacing of requests per host. Zero
	// disables limiting.
	RateLimit time.Duration
	// RetryAttempts caps how often a 429 answer is tried in total.
	RetryAttempts int
	// RetryDelay is the fixed pause after a 429.
	RetryDelay time.Duration
	Timeout    time.Duration
	// Store holds Cloudflare bypass cookies. Nil disables bypass.
	Store *cf.Store
}

// DefaultClientOptions returns the production settings.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		RateLimit:     DefaultRateLimit,
		RetryAttempts: RateLimitAttempts,
		RetryDelay:    RateLimitDelay,
		Timeout:       RequestTimeout,
	}
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = RateLimitAttempts
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = RateLimitDelay
	}
	if o.Timeout <= 0 {
		o.Timeout = RequestTimeout
	}
	return o
}

// HTTPClient is the plain HTTP transport of an adapter. It rate limits per
// host, retries 429 answers, applies stored Cloudflare cookies, decodes
// gzip/brotli bodies and reports challenge pages.
type HTTPClient struct {
	name       string
	opts       ClientOptions
	httpClient *http.Client
	limiter    *parser.RateLimiter

	mu     sync.Mutex
	bypass map[string]*cf.BypassData // by host, nil entry = looked up, none usable
}

// NewHTTPClient creates a client for the adapter called name.
func NewHTTPClient(name string, opts ClientOptions) (*HTTPClient, error) {
	opts = opts.withDefaults()

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &HTTPClient{
		name:       name,
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout, Jar: jar},
		limiter:    parser.NewRateLimiter(opts.RateLimit, DefaultBurst),
		bypass:     make(map[string]*cf.BypassData),
	}, nil
}

// Name returns the adapter name the client logs under.
func (c *HTTPClient) Name() string {
	return c.name
}

// Get fetches target and returns the decoded body.
func (c *HTTPClient) Get(ctx context.Context, target string, headers http.Header) ([]byte, error) {
	return c.fetchBody(ctx, http.MethodGet, target, nil, headers)
}

// PostForm sends an url-encoded form and returns the decoded body.
func (c *HTTPClient) PostForm(ctx context.Context, target string, form url.Values, headers http.Header) ([]byte, error) {
	h := headers.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.fetchBody(ctx, http.MethodPost, target, []byte(form.Encode()), h)
}

// FetchHTML makes the client usable as a Transport.
func (c *HTTPClient) FetchHTML(ctx context.Context, target, _ string) (string, error) {
	body, err := c.Get(ctx, target, nil)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *HTTPClient) fetchBody(ctx context.Context, method, target string, payload []byte, headers http.Header) ([]byte, error) {
	var body []byte
	err := withRateLimitRetry(ctx, c.name, target, c.opts.RetryAttempts, c.opts.RetryDelay, func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		resp, err := c.do(ctx, method, target, reader, headers)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return transportError(target, err)
		}

		decoded, wasCompressed, err := cf.DecompressBody(raw, resp.Header.Get("Content-Encoding"))
		if err != nil {
			return fmt.Errorf("failed to decompress %s: %w", target, err)
		}
		if wasCompressed {
			log.Printf("[HTTPClient:%s] ✓ Decompressed response: %d → %d bytes", c.name, len(raw), len(decoded))
		}

		if isCF, info := cf.Detect(resp.StatusCode, resp.Header, decoded); isCF {
			return c.challenge(resp.Request.URL, info)
		}

		if resp.StatusCode != http.StatusOK {
			return &HTTPError{URL: target, StatusCode: resp.StatusCode}
		}

		body = decoded
		return nil
	})
	return body, err
}

// Open issues a GET and returns the live response for a 200 answer. The
// caller closes the body. 429 answers are retried like any other request.
func (c *HTTPClient) Open(ctx context.Context, target string, headers http.Header) (*http.Response, error) {
	var resp *http.Response
	err := withRateLimitRetry(ctx, c.name, target, c.opts.RetryAttempts, c.opts.RetryDelay, func() error {
		r, err := c.do(ctx, http.MethodGet, target, nil, headers)
		if err != nil {
			return err
		}
		if r.StatusCode != http.StatusOK {
			io.Copy(io.Discard, r.Body)
			r.Body.Close()
			return &HTTPError{URL: target, StatusCode: r.StatusCode}
		}
		resp = r
		return nil
	})
	return resp, err
}

// do performs one round trip after waiting for the host's rate limiter.
func (c *HTTPClient) do(ctx context.Context, method, target string, body io.Reader, headers http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if err := c.limiter.Wait(ctx, req.URL.Host); err != nil {
		return nil, err
	}

	data := c.bypassFor(req.URL)
	c.applyHeaders(req, headers, data)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, transportError(target, err)
	}
	return resp, nil
}

func (c *HTTPClient) applyHeaders(req *http.Request, headers http.Header, data *cf.BypassData) {
	for key, values := range c.opts.Headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	for key, values := range headers {
		req.Header.Del(key)
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	// cf_clearance is bound to the user agent that solved the challenge
	if data != nil && data.Entropy.UserAgent != "" {
		req.Header.Set("User-Agent", data.Entropy.UserAgent)
		if lang := data.Headers["acceptLanguage"]; lang != "" && req.Header.Get("Accept-Language") == "" {
			req.Header.Set("Accept-Language", lang)
		}
	} else if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", DefaultUserAgent)
	}
}

// bypassFor loads stored bypass data for u's host once and seeds the
// cookie jar with it.
func (c *HTTPClient) bypassFor(u *url.URL) *cf.BypassData {
	if c.opts.Store == nil {
		return nil
	}
	host := u.Hostname()

	c.mu.Lock()
	defer c.mu.Unlock()

	if data, seen := c.bypass[host]; seen {
		return data
	}
	c.bypass[host] = nil

	data, err := c.opts.Store.Lookup(host)
	if err != nil {
		if !errors.Is(err, cf.ErrNoData) {
			log.Printf("[HTTPClient:%s] Failed to load CF bypass for %s: %v", c.name, host, err)
		}
		return nil
	}
	if err := cf.Validate(data); err != nil {
		log.Printf("[HTTPClient:%s] CF bypass data for %s unusable: %v", c.name, host, err)
		return nil
	}

	c.httpClient.Jar.SetCookies(&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}, data.HTTPCookies())
	c.bypass[host] = data
	log.Printf("[HTTPClient:%s] ✓ Loaded CF bypass for %s", c.name, host)
	return data
}

// challenge turns a detected challenge page into an error and retires the
// stored cookies that failed to pass it.
func (c *HTTPClient) challenge(u *url.URL, info *cf.Info) error {
	host := u.Hostname()
	log.Printf("[HTTPClient:%s] ⚠️ Cloudflare challenge at %s (%s)", c.name, u, strings.Join(info.Indicators, ", "))

	c.mu.Lock()
	used := c.bypass[host] != nil
	delete(c.bypass, host)
	c.mu.Unlock()

	if used && c.opts.Store != nil {
		if err := c.opts.Store.MarkFailed(host); err != nil {
			cf.LogCFError("MarkFailed", host, err)
		}
	}

	return &cf.ChallengeError{
		URL:        u.String(),
		StatusCode: info.StatusCode,
		Indicators: info.Indicators,
		Err:        ErrTransient,
	}
}

// withRateLimitRetry runs fn until it returns something other than a rate
// limit error, pausing delay between tries, at most attempts times.
func withRateLimitRetry(ctx context.Context, name, target string, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, ErrRateLimited) {
			return err
		}
		if attempt == attempts {
			break
		}

		log.Printf("[%s] 429 from %s, retrying in %v (attempt %d/%d)", name, target, delay, attempt, attempts)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	log.Printf("[%s] ✗ Still rate limited after %d attempts: %s", name, attempts, target)
	return fmt.Errorf("gave up after %d attempts: %w", attempts, err)
}
