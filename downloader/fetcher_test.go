package downloader

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "missing"):
			http.NotFound(w, r)
		case strings.Contains(r.URL.Path, "busy"):
			w.WriteHeader(http.StatusTooManyRequests)
		case strings.Contains(r.URL.Path, "slow"):
			time.Sleep(200 * time.Millisecond)
			w.Write([]byte("late"))
		default:
			assert.Equal(t, "https://reader.example/", r.Header.Get("Referer"))
			w.Header().Set("X-Cache", "HIT from edge")
			w.Write([]byte("image:" + r.URL.Path))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

var readerHeaders = http.Header{"Referer": {"https://reader.example/"}}

func TestImageFetcher_Modes(t *testing.T) {
	srv := imageServer(t)
	fetcher := NewImageFetcher(newTestClient(t), nil)

	for _, mode := range []TransferMode{TransferWhole, TransferStream} {
		t.Run(mode.String(), func(t *testing.T) {
			dest := filepath.Join(t.TempDir(), "001.jpg")

			n, err := fetcher.Fetch(context.Background(), srv.URL+"/a.jpg", readerHeaders, dest, mode)
			require.NoError(t, err)

			data, err := os.ReadFile(dest)
			require.NoError(t, err)
			assert.Equal(t, "image:/a.jpg", string(data))
			assert.Equal(t, int64(len(data)), n)
			assert.NoFileExists(t, dest+".part")
		})
	}
}

func TestImageFetcher_FailureLeavesNoFile(t *testing.T) {
	srv := imageServer(t)
	fetcher := NewImageFetcher(newTestClient(t), nil)

	tests := []struct {
		path string
		want error
	}{
		{"/missing.jpg", ErrNotFound},
		{"/busy.jpg", ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			dest := filepath.Join(t.TempDir(), "002.jpg")
			_, err := fetcher.Fetch(context.Background(), srv.URL+tt.path, readerHeaders, dest, TransferWhole)
			assert.ErrorIs(t, err, tt.want)
			assert.NoFileExists(t, dest)
			assert.NoFileExists(t, dest+".part")
		})
	}
}

func TestImageFetcher_Timeout(t *testing.T) {
	srv := imageServer(t)
	opts := testOptions()
	opts.Timeout = 50 * time.Millisecond
	client, err := NewHTTPClient("test", opts)
	require.NoError(t, err)
	fetcher := NewImageFetcher(client, nil)

	dest := filepath.Join(t.TempDir(), "003.jpg")
	_, err = fetcher.Fetch(context.Background(), srv.URL+"/slow.jpg", readerHeaders, dest, TransferStream)
	assert.ErrorIs(t, err, ErrTransient)
	assert.NoFileExists(t, dest)
}

func TestImageFetcher_RateLimitWaitsOutlastTimeout(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	client, err := NewHTTPClient("test", ClientOptions{
		RetryAttempts: 5,
		RetryDelay:    20 * time.Millisecond,
		Timeout:       30 * time.Millisecond,
	})
	require.NoError(t, err)
	fetcher := NewImageFetcher(client, nil)

	dest := filepath.Join(t.TempDir(), "004.jpg")
	_, err = fetcher.Fetch(context.Background(), srv.URL+"/004.jpg", readerHeaders, dest, TransferWhole)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.NotErrorIs(t, err, ErrTransient)
	assert.Equal(t, int32(5), hits.Load())
	assert.NoFileExists(t, dest)
}

func TestImageFetcher_ReportsAtHomeDownloads(t *testing.T) {
	srv := imageServer(t)

	var (
		mu      sync.Mutex
		reports []AtHomeReport
	)
	reportSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var rep AtHomeReport
		assert.NoError(t, json.Unmarshal(data, &rep))
		mu.Lock()
		reports = append(reports, rep)
		mu.Unlock()
	}))
	defer reportSrv.Close()

	reporter := NewReporter(reportSrv.URL, NewAPIClient("report", testOptions()))
	fetcher := NewImageFetcher(newTestClient(t), reporter)
	dir := t.TempDir()

	atHome := srv.URL + "/data/0a1b2c/x1-abc.png"
	_, err := fetcher.Fetch(context.Background(), atHome, readerHeaders, filepath.Join(dir, "001.png"), TransferWhole)
	require.NoError(t, err)

	_, err = fetcher.Fetch(context.Background(), srv.URL+"/data/0a1b2c/missing.png", readerHeaders, filepath.Join(dir, "002.png"), TransferWhole)
	require.Error(t, err)

	// not an @Home URL, no report
	_, err = fetcher.Fetch(context.Background(), srv.URL+"/plain.png", readerHeaders, filepath.Join(dir, "003.png"), TransferWhole)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reports, 2)
	assert.Equal(t, atHome, reports[0].URL)
	assert.True(t, reports[0].Success)
	assert.True(t, reports[0].Cached)
	assert.Equal(t, int64(len("image:/data/0a1b2c/x1-abc.png")), reports[0].Bytes)
	assert.False(t, reports[1].Success)
}

func TestIsAtHomeURL(t *testing.T) {
	assert.True(t, IsAtHomeURL("https://uploads.mangadex.org/data/abc123/1-xyz.jpg"))
	assert.True(t, IsAtHomeURL("https://x.mangadex.network:443/token/data/abc/2.png?x=1"))
	assert.False(t, IsAtHomeURL("https://mangakakalot.com/chapter/abc/1.jpg"))
}
