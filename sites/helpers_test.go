package sites

import (
	"context"
	"sync/atomic"
	"time"

	"mangadl/downloader"
)

func testDeps() Deps {
	return Deps{
		Client: downloader.ClientOptions{
			RetryAttempts: 3,
			RetryDelay:    time.Millisecond,
			Timeout:       5 * time.Second,
		},
	}
}

// fakeBrowser stands in for the chromedp transport.
type fakeBrowser struct {
	html  string
	calls atomic.Int32
	wait  atomic.Value
}

func (f *fakeBrowser) FetchHTML(_ context.Context, _ string, waitSelector string) (string, error) {
	f.calls.Add(1)
	f.wait.Store(waitSelector)
	return f.html, nil
}
