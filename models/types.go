package models

import (
	"fmt"
	"strconv"
)

// MangaSource identifies one remote manga across runs.
// It is built from a configured URL and never changes during a run.
type MangaSource struct {
	URL  string // Source URL as configured (trailing slash trimmed)
	Slug string // Identifying slug (last path segment or API id)
	Site string // Name of the adapter that handles this URL
}

// MangaDescriptor is produced once per manga per run.
// It only survives inside the ComicInfo.xml of each archive.
type MangaDescriptor struct {
	ID      string   // Canonical id or URL used by the adapter
	Title   string   // Display title (unsanitized)
	Genres  []string // Ordered genre tags
	Summary string   // Free text summary
}

// ChapterNumber supports sub-chapters like 10.5.
type ChapterNumber float64

// String renders whole chapters without a decimal part ("10") and
// sub-chapters with the shortest exact form ("10.5").
func (n ChapterNumber) String() string {
	f := float64(n)
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ChapterRef points at a chapter's reader page (or API id).
type ChapterRef struct {
	Number ChapterNumber
	URL    string
}

// ArchiveName is the file name (without extension) used on disk.
// The existence of "<ArchiveName>.cbz" is the idempotency key.
func (c ChapterRef) ArchiveName() string {
	return fmt.Sprintf("Ch. %s", c.Number)
}

// ImageRef is one page of a chapter. Index order defines page order.
type ImageRef struct {
	URL      string
	Index    int
	Filename string
}

// DownloadResult is the outcome of a single image fetch.
type DownloadResult struct {
	Bytes int64
	Err   error
}

// OK reports whether the fetch succeeded.
func (r DownloadResult) OK() bool {
	return r.Err == nil
}
