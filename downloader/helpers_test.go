package downloader

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mangadl/archive"
	"mangadl/models"

	"github.com/stretchr/testify/require"
)

func testOptions() ClientOptions {
	return ClientOptions{
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
		Timeout:       5 * time.Second,
	}
}

func newTestClient(t *testing.T) *HTTPClient {
	t.Helper()
	client, err := NewHTTPClient("test", testOptions())
	require.NoError(t, err)
	return client
}

// fakeAdapter serves a fixed chapter list; image URLs point at an httptest
// server.
type fakeAdapter struct {
	title    string
	chapters []models.ChapterRef
	images   map[string][]string
	mode     TransferMode

	identifyErr error
	imageCalls  atomic.Int32
}

var _ SiteAdapter = (*fakeAdapter)(nil)

func (f *fakeAdapter) Name() string { return "fake" }

func (f *fakeAdapter) Identify(_ context.Context, ref string) (string, string, error) {
	if f.identifyErr != nil {
		return "", "", f.identifyErr
	}
	return ref, f.title, nil
}

func (f *fakeAdapter) ListChapters(context.Context, string) ([]models.ChapterRef, error) {
	return f.chapters, nil
}

func (f *fakeAdapter) ListImages(_ context.Context, chapterURL string) ([]string, error) {
	f.imageCalls.Add(1)
	imgs, ok := f.images[chapterURL]
	if !ok {
		return nil, NotFound("chapter", chapterURL)
	}
	return imgs, nil
}

func (f *fakeAdapter) Metadata(context.Context, string) ([]string, string, error) {
	return []string{"Action", "Fantasy"}, "A story", nil
}

func (f *fakeAdapter) ImageHeaders(referer string) http.Header {
	return http.Header{"Referer": {referer}}
}

func (f *fakeAdapter) TransferMode() TransferMode { return f.mode }

// chaptersOn builds n chapters with k images each on base. Images of
// chapter i are /img/<i>/<j>.jpg.
func chaptersOn(base string, n, k int) ([]models.ChapterRef, map[string][]string) {
	chapters := make([]models.ChapterRef, 0, n)
	images := make(map[string][]string, n)
	for i := 1; i <= n; i++ {
		chURL := fmt.Sprintf("%s/chapter-%d", base, i)
		chapters = append(chapters, models.ChapterRef{Number: models.ChapterNumber(i), URL: chURL})
		for j := 1; j <= k; j++ {
			images[chURL] = append(images[chURL], fmt.Sprintf("%s/img/%d/%d.jpg", base, i, j))
		}
	}
	return chapters, images
}

// cbzEntries returns the entry names of an archive in stored order.
func cbzEntries(t *testing.T, path string) []string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	return names
}

func cbzComicInfo(t *testing.T, path string) archive.ComicInfo {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	rc, err := r.Open(archive.ComicInfoName)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)

	var info archive.ComicInfo
	require.NoError(t, xml.Unmarshal(data, &info))
	return info
}

// webpPage is a small lossless WebP image.
func webpPage(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "page.webp"))
	require.NoError(t, err)
	return data
}

// recordingObserver keeps progress totals for assertions.
type recordingObserver struct {
	mu        sync.Mutex
	totals    map[string]int
	advanced  map[string]int
	completed map[string]error
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		totals:    map[string]int{},
		advanced:  map[string]int{},
		completed: map[string]error{},
	}
}

func (r *recordingObserver) TaskCreated(id, _ string, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totals[id] = total
}

func (r *recordingObserver) TaskAdvanced(id string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advanced[id] += n
}

func (r *recordingObserver) TaskCompleted(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed[id] = err
}
