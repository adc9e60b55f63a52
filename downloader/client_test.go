package downloader

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"mangadl/cf"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "site-value", r.Header.Get("X-Site"))
		assert.Equal(t, "call-value", r.Header.Get("X-Call"))
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		fmt.Fprint(w, "<html>ok</html>")
	}))
	defer srv.Close()

	opts := testOptions()
	opts.Headers = http.Header{"X-Site": {"site-value"}, "X-Call": {"overridden"}}
	client, err := NewHTTPClient("test", opts)
	require.NoError(t, err)

	body, err := client.Get(context.Background(), srv.URL, http.Header{"X-Call": {"call-value"}})
	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", string(body))

	html, err := client.FetchHTML(context.Background(), srv.URL, "")
	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", html)
}

func TestHTTPClient_StatusErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, ErrNotFound},
		{http.StatusInternalServerError, ErrTransient},
		{http.StatusBadGateway, ErrTransient},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := newTestClient(t).Get(context.Background(), srv.URL, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestHTTPClient_RateLimitRetryIsBounded(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(t).Get(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int32(3), hits.Load())
}

func TestHTTPClient_RateLimitRecovers(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, "finally")
	}))
	defer srv.Close()

	body, err := newTestClient(t).Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "finally", string(body))
	assert.Equal(t, int32(3), hits.Load())
}

func TestHTTPClient_RateLimitRetryStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	opts := testOptions()
	opts.RetryDelay = time.Hour
	client, err := NewHTTPClient("test", opts)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = client.Get(ctx, srv.URL, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestHTTPClient_DecodesGzipWhenAsked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		gw.Write([]byte("<p>compressed</p>"))
		gw.Close()
		w.Header().Set("Content-Encoding", "gzip")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	// an explicit Accept-Encoding turns off net/http's transparent gzip
	body, err := newTestClient(t).Get(context.Background(), srv.URL, http.Header{"Accept-Encoding": {"gzip, br"}})
	require.NoError(t, err)
	assert.Equal(t, "<p>compressed</p>", string(body))
}

func TestHTTPClient_Challenge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "cloudflare")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `<html><head><title>Just a moment...</title></head><form id="challenge-form"></form></html>`)
	}))
	defer srv.Close()

	_, err := newTestClient(t).Get(context.Background(), srv.URL+"/manga/x", nil)
	require.Error(t, err)

	cfErr, ok := cf.IsChallenge(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusForbidden, cfErr.StatusCode)
	assert.Equal(t, srv.URL+"/manga/x", cfErr.URL)
	assert.ErrorIs(t, err, ErrTransient)
}

func TestHTTPClient_AppliesStoredBypass(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("cf_clearance")
		if assert.NoError(t, err) {
			assert.Equal(t, "token", c.Value)
		}
		assert.Equal(t, "Captured UA", r.Header.Get("User-Agent"))
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	store := cf.NewStore(t.TempDir())
	require.NoError(t, store.Save(&cf.BypassData{
		Domain:            u.Hostname(),
		CapturedAt:        time.Now().Format(time.RFC3339),
		Entropy:           cf.Entropy{UserAgent: "Captured UA"},
		CfClearanceStruct: &cf.CfClearanceCookie{Name: "cf_clearance", Value: "token", Path: "/"},
	}))

	opts := testOptions()
	opts.Store = store
	client, err := NewHTTPClient("test", opts)
	require.NoError(t, err)

	body, err := client.Get(context.Background(), srv.URL+"/page", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}

func TestHTTPClient_PostForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "manga_get_chapters", r.PostForm.Get("action"))
		assert.Equal(t, "42", r.PostForm.Get("manga"))
		fmt.Fprint(w, "<ul></ul>")
	}))
	defer srv.Close()

	form := url.Values{"action": {"manga_get_chapters"}, "manga": {"42"}}
	body, err := newTestClient(t).PostForm(context.Background(), srv.URL, form, nil)
	require.NoError(t, err)
	assert.Equal(t, "<ul></ul>", string(body))
}

func TestHTTPClient_Open(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "missing") {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, "bytes")
	}))
	defer srv.Close()

	client := newTestClient(t)
	resp, err := client.Open(context.Background(), srv.URL+"/a.jpg", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, err = client.Open(context.Background(), srv.URL+"/missing", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}
