package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"

	"mangadl/cf"
	"mangadl/parser"

	"github.com/gocolly/colly"
)

// APIClient talks to JSON APIs and AJAX endpoints through colly.
//
// colly does not take a context, so cancellation is checked before each
// request and while waiting on the rate limiter; an in-flight request runs
// until the collector's timeout.
type APIClient struct {
	name    string
	opts    ClientOptions
	base    *colly.Collector
	limiter *parser.RateLimiter

	mu        sync.Mutex
	applied   map[string]bool
	userAgent string
}

// NewAPIClient creates a collector based client for the adapter called name.
func NewAPIClient(name string, opts ClientOptions) *APIClient {
	opts = opts.withDefaults()

	base := colly.NewCollector(colly.AllowURLRevisit())
	base.SetRequestTimeout(opts.Timeout)

	return &APIClient{
		name:      name,
		opts:      opts,
		base:      base,
		limiter:   parser.NewRateLimiter(opts.RateLimit, DefaultBurst),
		applied:   make(map[string]bool),
		userAgent: DefaultUserAgent,
	}
}

// FetchJSON GETs target and decodes the JSON answer into result.
func (c *APIClient) FetchJSON(ctx context.Context, target string, result any) error {
	body, err := c.FetchRaw(ctx, target)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, result); err != nil {
		return ParseError(target, err)
	}
	return nil
}

// FetchRaw GETs target and returns the body.
func (c *APIClient) FetchRaw(ctx context.Context, target string) ([]byte, error) {
	return c.request(ctx, target, nil, func(col *colly.Collector) error {
		return col.Visit(target)
	})
}

// PostForm POSTs form fields to target and returns the body.
func (c *APIClient) PostForm(ctx context.Context, target string, form map[string]string, headers http.Header) ([]byte, error) {
	if form == nil {
		form = map[string]string{}
	}
	return c.request(ctx, target, headers, func(col *colly.Collector) error {
		return col.Post(target, form)
	})
}

// PostJSON POSTs payload encoded as JSON and discards the answer body.
func (c *APIClient) PostJSON(ctx context.Context, target string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	headers := http.Header{"Content-Type": {"application/json"}}
	_, err = c.request(ctx, target, headers, func(col *colly.Collector) error {
		return col.PostRaw(target, data)
	})
	return err
}

func (c *APIClient) request(ctx context.Context, target string, headers http.Header, send func(*colly.Collector) error) ([]byte, error) {
	var body []byte
	err := withRateLimitRetry(ctx, c.name, target, c.opts.RetryAttempts, c.opts.RetryDelay, func() error {
		b, err := c.visit(ctx, target, headers, send)
		body = b
		return err
	})
	return body, err
}

func (c *APIClient) visit(ctx context.Context, target string, headers http.Header, send func(*colly.Collector) error) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if err := c.limiter.Wait(ctx, u.Host); err != nil {
		return nil, err
	}
	c.applyBypass(u)

	// A clone shares the transport and cookie jar but none of the
	// callbacks, so concurrent requests do not see each other's handlers.
	collector := c.base.Clone()
	c.mu.Lock()
	collector.UserAgent = c.userAgent
	c.mu.Unlock()

	var (
		responseData []byte
		fetchErr     error
	)

	collector.OnRequest(func(r *colly.Request) {
		for key, values := range c.opts.Headers {
			for _, v := range values {
				r.Headers.Set(key, v)
			}
		}
		for key, values := range headers {
			for _, v := range values {
				r.Headers.Set(key, v)
			}
		}
	})

	collector.OnResponse(func(r *colly.Response) {
		if _, err := cf.DecompressResponse(r, "[APIClient:"+c.name+"]"); err != nil {
			log.Printf("[APIClient:%s] Failed to decompress response: %v", c.name, err)
		}
		if isCF, info := cf.DetectFromColly(r); isCF {
			fetchErr = c.challenge(target, info)
			return
		}
		responseData = r.Body
	})

	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			if isCF, info := cf.DetectFromColly(r); isCF {
				fetchErr = c.challenge(target, info)
				return
			}
			fetchErr = &HTTPError{URL: target, StatusCode: r.StatusCode}
			return
		}
		fetchErr = transportError(target, err)
	})

	err = send(collector)
	collector.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}
	if err != nil {
		return nil, transportError(target, err)
	}
	return responseData, nil
}

// applyBypass copies stored cookies for u's host into the shared jar once.
func (c *APIClient) applyBypass(u *url.URL) {
	if c.opts.Store == nil {
		return
	}
	host := u.Hostname()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.applied[host] {
		return
	}
	c.applied[host] = true

	data, err := c.opts.Store.Lookup(host)
	if err != nil {
		if !errors.Is(err, cf.ErrNoData) {
			log.Printf("[APIClient:%s] Failed to load CF bypass for %s: %v", c.name, host, err)
		}
		return
	}
	if err := cf.Validate(data); err != nil {
		log.Printf("[APIClient:%s] CF bypass data for %s unusable: %v", c.name, host, err)
		return
	}

	if err := c.base.SetCookies(u.Scheme+"://"+u.Host+"/", data.HTTPCookies()); err != nil {
		log.Printf("[APIClient:%s] Failed to set cookies: %v", c.name, err)
		return
	}
	if data.Entropy.UserAgent != "" {
		c.userAgent = data.Entropy.UserAgent
	}
	log.Printf("[APIClient:%s] ✓ Applied CF bypass for %s", c.name, host)
}

func (c *APIClient) challenge(target string, info *cf.Info) error {
	log.Printf("[APIClient:%s] ⚠️ Cloudflare challenge at %s", c.name, target)
	if u, err := url.Parse(target); err == nil && c.opts.Store != nil {
		c.mu.Lock()
		used := c.applied[u.Hostname()]
		c.mu.Unlock()
		if used {
			c.opts.Store.MarkFailed(u.Hostname())
		}
	}
	return &cf.ChallengeError{
		URL:        target,
		StatusCode: info.StatusCode,
		Indicators: info.Indicators,
		Err:        ErrTransient,
	}
}
