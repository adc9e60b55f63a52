package downloader

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"mangadl/archive"
)

// MangaDexReportURL collects MangaDex@Home delivery statistics.
const MangaDexReportURL = "https://api.mangadex.network/report"

var atHomeRe = regexp.MustCompile(`/data/([^/]+)/([^/?]+)(?:\?.*)?$`)

// IsAtHomeURL reports whether u is a content-addressed MangaDex@Home page
// URL of the form .../data/<hash>/<file>.
func IsAtHomeURL(u string) bool {
	return atHomeRe.MatchString(u)
}

// ImageFetcher downloads single page images to disk.
type ImageFetcher struct {
	client   *HTTPClient
	reporter *Reporter
}

// NewImageFetcher creates a fetcher on client. A nil reporter disables
// MangaDex@Home reports.
func NewImageFetcher(client *HTTPClient, reporter *Reporter) *ImageFetcher {
	return &ImageFetcher{client: client, reporter: reporter}
}

// Fetch downloads imageURL into destPath and returns the byte count. The
// body goes to destPath+".part" first and is renamed on success, so a
// failed fetch never leaves a file at destPath.
func (f *ImageFetcher) Fetch(ctx context.Context, imageURL string, headers http.Header, destPath string, mode TransferMode) (int64, error) {
	start := time.Now()

	// The client timeout bounds each attempt, not the 429 waits between them
	n, cached, err := f.fetch(ctx, imageURL, headers, destPath, mode)
	if err != nil && ctx.Err() != nil {
		err = ctx.Err()
	}

	if f.reporter != nil && IsAtHomeURL(imageURL) {
		f.reporter.Report(ctx, AtHomeReport{
			URL:      imageURL,
			Success:  err == nil,
			Cached:   cached,
			Bytes:    n,
			Duration: time.Since(start).Milliseconds(),
		})
	}
	return n, err
}

func (f *ImageFetcher) fetch(ctx context.Context, imageURL string, headers http.Header, destPath string, mode TransferMode) (int64, bool, error) {
	resp, err := f.client.Open(ctx, imageURL, headers)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()

	cached := strings.HasPrefix(resp.Header.Get("X-Cache"), "HIT")
	partPath := destPath + archive.PartSuffix

	var n int64
	switch mode {
	case TransferStream:
		n, err = streamTo(partPath, resp.Body)
	default:
		n, err = writeWhole(partPath, resp.Body)
	}
	if err != nil {
		os.Remove(partPath)
		return 0, cached, err
	}

	if err := os.Rename(partPath, destPath); err != nil {
		os.Remove(partPath)
		return 0, cached, fmt.Errorf("failed to move %s into place: %w", destPath, err)
	}
	return n, cached, nil
}

func writeWhole(path string, body io.Reader) (int64, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return 0, fmt.Errorf("failed to read image body: %w: %w", ErrTransient, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return int64(len(data)), nil
}

func streamTo(path string, body io.Reader) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", path, err)
	}

	n, copyErr := io.Copy(file, body)
	closeErr := file.Close()
	if copyErr != nil {
		return 0, fmt.Errorf("failed to stream image body: %w: %w", ErrTransient, copyErr)
	}
	if closeErr != nil {
		return 0, fmt.Errorf("failed to close %s: %w", path, closeErr)
	}
	return n, nil
}

// AtHomeReport is the payload MangaDex@Home expects for each page fetch.
type AtHomeReport struct {
	URL      string `json:"url"`
	Success  bool   `json:"success"`
	Cached   bool   `json:"cached"`
	Bytes    int64  `json:"bytes"`
	Duration int64  `json:"duration"` // milliseconds
}

// Reporter posts AtHomeReports. Failures are only logged.
type Reporter struct {
	endpoint string
	api      *APIClient
}

// NewReporter posts to endpoint, MangaDexReportURL when empty.
func NewReporter(endpoint string, api *APIClient) *Reporter {
	if endpoint == "" {
		endpoint = MangaDexReportURL
	}
	return &Reporter{endpoint: endpoint, api: api}
}

func (r *Reporter) Report(ctx context.Context, report AtHomeReport) {
	if err := r.api.PostJSON(ctx, r.endpoint, report); err != nil {
		log.Printf("[Reporter] Failed to report download status to MangaDex: %v", err)
	}
}
