package downloader

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"mangadl/cf"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// BrowserTimeout bounds one navigation including the selector wait.
const BrowserTimeout = 60 * time.Second

// BrowserSession is a headless Chrome tab with stored Cloudflare cookies
// injected before each navigation.
type BrowserSession struct {
	ctx    context.Context
	cancel context.CancelFunc
	name   string
	store  *cf.Store
}

// NewBrowserSession starts a headless browser bound to ctx.
func NewBrowserSession(ctx context.Context, name string, store *cf.Store) *BrowserSession {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(DefaultUserAgent),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-gpu", true),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	return &BrowserSession{
		ctx:    browserCtx,
		cancel: func() { cancelBrowser(); cancelAlloc() },
		name:   name,
		store:  store,
	}
}

// Navigate loads target, waits for waitSelector (or the body) and returns
// the rendered HTML. Cookie injection, navigation and the wait run in one
// chromedp.Run so the tab state stays consistent.
func (bs *BrowserSession) Navigate(ctx context.Context, target, waitSelector string) (string, error) {
	runCtx, cancel := context.WithTimeout(bs.ctx, BrowserTimeout)
	defer cancel()

	// stop the tab when the caller's context ends
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var tasks chromedp.Tasks

	if cookies := bs.cookiesFor(target); len(cookies) > 0 {
		log.Printf("[Browser:%s] Injecting %d CF cookies before navigation", bs.name, len(cookies))
		tasks = append(tasks, chromedp.ActionFunc(func(ctx context.Context) error {
			return network.SetCookies(cookies).Do(ctx)
		}))
	}

	tasks = append(tasks, chromedp.Navigate(target))
	if waitSelector != "" {
		tasks = append(tasks, chromedp.WaitVisible(waitSelector, chromedp.ByQuery))
	} else {
		tasks = append(tasks, chromedp.WaitReady("body"))
	}

	var html string
	tasks = append(tasks, chromedp.OuterHTML("html", &html))

	if err := chromedp.Run(runCtx, tasks); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("browser navigation to %s timed out: %w", target, ErrTransient)
		}
		return "", fmt.Errorf("browser navigation to %s failed: %w: %w", target, ErrTransient, err)
	}

	// chromedp does not expose the status code, the page content decides
	if isCF, info := cf.Detect(200, nil, []byte(html)); isCF {
		log.Printf("[Browser:%s] ⚠️ Cloudflare challenge detected in page %s", bs.name, target)
		if u, err := url.Parse(target); err == nil && bs.store != nil {
			bs.store.MarkFailed(u.Hostname())
		}
		return "", &cf.ChallengeError{URL: target, StatusCode: info.StatusCode, Indicators: info.Indicators, Err: ErrTransient}
	}

	log.Printf("[Browser:%s] ✓ Navigation successful: %s", bs.name, target)
	return html, nil
}

func (bs *BrowserSession) cookiesFor(target string) []*network.CookieParam {
	if bs.store == nil {
		return nil
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil
	}
	data, err := bs.store.Lookup(u.Hostname())
	if err != nil {
		return nil
	}

	var cookies []*network.CookieParam
	for _, c := range data.HTTPCookies() {
		if c.Name == "" {
			continue
		}
		domain := c.Domain
		if domain == "" {
			domain = u.Hostname()
		}
		cookies = append(cookies, &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
		})
	}
	return cookies
}

// Close shuts the browser down.
func (bs *BrowserSession) Close() {
	if bs.cancel != nil {
		bs.cancel()
	}
}

// BrowserTransport opens a fresh browser per page. It satisfies Transport.
type BrowserTransport struct {
	Name  string
	Store *cf.Store
}

func (t *BrowserTransport) FetchHTML(ctx context.Context, target, waitSelector string) (string, error) {
	session := NewBrowserSession(ctx, t.Name, t.Store)
	defer session.Close()
	return session.Navigate(ctx, target, waitSelector)
}
