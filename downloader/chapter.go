package downloader

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"mangadl/archive"
	"mangadl/models"
	"mangadl/parser"
)

// ChapterOptions control where chapters are staged and written.
type ChapterOptions struct {
	SaveLocation string
	ConvertWebP  bool
	Language     string
}

// ChapterDownloader fetches every page of a chapter into a staging
// directory and folds it into an archive. A chapter is archived only when
// every page arrived.
type ChapterDownloader struct {
	fetcher  *ImageFetcher
	adapter  SiteAdapter
	opts     ChapterOptions
	observer ProgressObserver
}

func NewChapterDownloader(fetcher *ImageFetcher, adapter SiteAdapter, opts ChapterOptions, observer ProgressObserver) *ChapterDownloader {
	if observer == nil {
		observer = NopObserver{}
	}
	return &ChapterDownloader{fetcher: fetcher, adapter: adapter, opts: opts, observer: observer}
}

// StagingDir is <save>/tmp/<sanitized title>/Ch. <n>.
func StagingDir(saveLocation, title string, chapter models.ChapterRef) string {
	return filepath.Join(saveLocation, "tmp", parser.SanitizeTitle(title), chapter.ArchiveName())
}

// SeriesDir is <save>/<sanitized title>, where archives are written.
func SeriesDir(saveLocation, title string) string {
	return filepath.Join(saveLocation, parser.SanitizeTitle(title))
}

// ImageRefs names the pages of a chapter: 1-based zero padded index plus
// the extension of the source file.
func ImageRefs(images []string) []models.ImageRef {
	refs := make([]models.ImageRef, 0, len(images))
	for i, img := range images {
		refs = append(refs, models.ImageRef{
			URL:      img,
			Index:    i + 1,
			Filename: fmt.Sprintf("%03d%s", i+1, imageExt(img)),
		})
	}
	return refs
}

func imageExt(imageURL string) string {
	var base string
	if IsAtHomeURL(imageURL) {
		// content addressed names carry the hash and sometimes a query
		base = parser.SanitizeFilename(path.Base(imageURL))
	} else if u, err := url.Parse(imageURL); err == nil {
		base = path.Base(u.Path)
	}

	ext := strings.ToLower(path.Ext(base))
	if ext == "" || len(ext) > 5 {
		return ".jpg"
	}
	return ext
}

// DownloadChapter downloads images in order into the staging directory and
// archives them. It returns (false, ErrIncompleteChapter) when any page
// failed; the staging directory is then kept for the next run.
func (d *ChapterDownloader) DownloadChapter(ctx context.Context, manga models.MangaDescriptor, chapter models.ChapterRef, images []string) (bool, error) {
	name := chapter.ArchiveName()
	stagingDir := StagingDir(d.opts.SaveLocation, manga.Title, chapter)
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return false, fmt.Errorf("failed to create staging directory: %w", err)
	}

	taskID := manga.Title + " " + name
	d.observer.TaskCreated(taskID, taskID, len(images))

	headers := d.adapter.ImageHeaders(chapter.URL)
	mode := d.adapter.TransferMode()

	refs := ImageRefs(images)
	results := make([]models.DownloadResult, len(refs))
	failed := 0

	for i, ref := range refs {
		if ctx.Err() != nil {
			d.observer.TaskCompleted(taskID, ctx.Err())
			return false, ctx.Err()
		}

		dest := filepath.Join(stagingDir, ref.Filename)
		n, err := d.fetcher.Fetch(ctx, ref.URL, headers, dest, mode)
		results[i] = models.DownloadResult{Bytes: n, Err: err}

		if err != nil {
			failed++
			status := 0
			var httpErr *HTTPError
			if errors.As(err, &httpErr) {
				status = httpErr.StatusCode
			}
			log.Printf("[Downloader:%s] ✗ Unable to download page %d of %s from %s (status %d): %v",
				manga.Title, ref.Index, name, ref.URL, status, err)
		} else {
			log.Printf("[Downloader:%s] Downloaded %s image: %s", manga.Title, name, ref.Filename)
		}
		d.observer.TaskAdvanced(taskID, 1)
	}

	if failed > 0 {
		if ctx.Err() != nil {
			d.observer.TaskCompleted(taskID, ctx.Err())
			return false, ctx.Err()
		}
		log.Printf("[Downloader:%s] ✗ %s incomplete: %d/%d pages failed, keeping %s",
			manga.Title, name, failed, len(refs), stagingDir)
		err := fmt.Errorf("%s of %s: %d/%d pages failed: %w", name, manga.Title, failed, len(refs), ErrIncompleteChapter)
		d.observer.TaskCompleted(taskID, err)
		return false, err
	}

	if d.opts.ConvertWebP {
		for _, ref := range refs {
			if _, err := parser.ConvertToJPEG(filepath.Join(stagingDir, ref.Filename), false); err != nil {
				log.Printf("[Downloader:%s] Failed to convert %s: %v", manga.Title, ref.Filename, err)
			}
		}
	}

	info := archive.NewComicInfo(manga.Title, manga.Genres, manga.Summary, d.opts.Language)
	cbzPath, err := archive.Build(stagingDir, info, SeriesDir(d.opts.SaveLocation, manga.Title), name)
	if err != nil {
		d.observer.TaskCompleted(taskID, err)
		return false, err
	}

	var total int64
	for _, r := range results {
		total += r.Bytes
	}
	log.Printf("[Downloader:%s] ✓ Completed chapter %s (%d pages, %d bytes) → %s", manga.Title, name, len(refs), total, cbzPath)
	d.observer.TaskCompleted(taskID, nil)
	return true, nil
}
