package downloader

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"mangadl/models"
	"mangadl/parser"

	"golang.org/x/sync/errgroup"
)

// RunTaskID is the progress task that counts the sources of a run.
const RunTaskID = "run"

// Resolver picks the adapter for a configured source URL.
type Resolver func(rawURL string) (SiteAdapter, error)

// Options configure a run.
type Options struct {
	SaveLocation  string
	MultiThreaded bool
	Workers       int
	ConvertWebP   bool
	Language      string
}

// workers is the pool size: Workers when multi threaded, otherwise 1.
func (o Options) workers() int {
	if !o.MultiThreaded || o.Workers < 1 {
		return 1
	}
	return o.Workers
}

// Failure is one failed unit of a run. Chapter is empty when the whole
// source failed.
type Failure struct {
	Source  string
	Title   string
	Chapter string
	Err     error
}

// RunSummary counts the outcome of a run.
type RunSummary struct {
	Sources    int
	Downloaded int
	Skipped    int
	Failed     int
	Errors     []Failure
}

// Manager runs the configured sources: for each one it lists chapters,
// skips those already archived and downloads the rest on a bounded pool.
type Manager struct {
	opts     Options
	resolve  Resolver
	fetcher  *ImageFetcher
	observer ProgressObserver

	mu      sync.Mutex
	summary RunSummary
}

// NewManager creates a manager. A nil observer discards progress.
func NewManager(opts Options, resolve Resolver, fetcher *ImageFetcher, observer ProgressObserver) *Manager {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Manager{opts: opts, resolve: resolve, fetcher: fetcher, observer: observer}
}

// Run processes sources one after another. Failures of single chapters or
// sources are logged and counted; the returned error is only set when ctx
// was cancelled.
func (m *Manager) Run(ctx context.Context, sources []string) (RunSummary, error) {
	m.mu.Lock()
	m.summary = RunSummary{}
	m.mu.Unlock()

	m.observer.TaskCreated(RunTaskID, "Overall Progress", len(sources))
	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		m.mu.Lock()
		m.summary.Sources++
		m.mu.Unlock()

		if err := m.runSource(ctx, src); err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Printf("[Downloader] ✗ Source %s failed (%s): %v", src, Kind(err), err)
			m.record(Failure{Source: src, Err: err})
		}
		m.observer.TaskAdvanced(RunTaskID, 1)
	}
	m.observer.TaskCompleted(RunTaskID, ctx.Err())

	m.mu.Lock()
	summary := m.summary
	summary.Errors = append([]Failure(nil), m.summary.Errors...)
	m.mu.Unlock()

	log.Printf("[Downloader] Run finished: %d sources, %d downloaded, %d skipped, %d failed",
		summary.Sources, summary.Downloaded, summary.Skipped, summary.Failed)
	return summary, ctx.Err()
}

func (m *Manager) record(f Failure) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summary.Failed++
	m.summary.Errors = append(m.summary.Errors, f)
}

// API sites such as MangaDex address a manga by UUID.
var uuidRe = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

// Source builds the model of a configured URL.
func Source(rawURL, site string) models.MangaSource {
	rawURL = strings.TrimSuffix(strings.TrimSpace(rawURL), "/")
	slug := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		segments := strings.Split(strings.Trim(u.Path, "/"), "/")
		if last := segments[len(segments)-1]; last != "" {
			slug = last
		}
		if id := u.Query().Get("title_no"); id != "" {
			slug = id
		}
		if id := uuidRe.FindString(u.Path); id != "" {
			slug = strings.ToLower(id)
		}
	}
	return models.MangaSource{URL: rawURL, Slug: slug, Site: site}
}

func (m *Manager) runSource(ctx context.Context, rawURL string) error {
	adapter, err := m.resolve(rawURL)
	if err != nil {
		return err
	}
	source := Source(rawURL, adapter.Name())
	log.Printf("[Downloader] Starting %s (%s, slug %s)", source.URL, source.Site, source.Slug)

	id, title, err := adapter.Identify(ctx, source.URL)
	if err != nil {
		return fmt.Errorf("identify: %w", err)
	}

	chapters, err := adapter.ListChapters(ctx, id)
	if err != nil {
		return fmt.Errorf("list chapters of %s: %w", title, err)
	}

	genres, summary, err := adapter.Metadata(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("[Downloader:%s] Metadata unavailable, archiving without it: %v", title, err)
	}
	manga := models.MangaDescriptor{ID: id, Title: title, Genres: genres, Summary: summary}

	existing, err := parser.LocalChapterList(SeriesDir(m.opts.SaveLocation, title))
	if err != nil {
		return fmt.Errorf("list local chapters of %s: %w", title, err)
	}

	var pending []models.ChapterRef
	for _, ch := range chapters {
		if _, ok := existing[ch.ArchiveName()+".cbz"]; ok {
			continue
		}
		pending = append(pending, ch)
	}
	skipped := len(chapters) - len(pending)

	log.Printf("[Downloader:%s] Found %d chapters, %d already downloaded, %d to fetch",
		title, len(chapters), skipped, len(pending))

	m.observer.TaskCreated(source.URL, title, len(chapters))
	if skipped > 0 {
		m.observer.TaskAdvanced(source.URL, skipped)
	}
	m.mu.Lock()
	m.summary.Skipped += skipped
	m.mu.Unlock()

	chapterDL := NewChapterDownloader(m.fetcher, adapter, ChapterOptions{
		SaveLocation: m.opts.SaveLocation,
		ConvertWebP:  m.opts.ConvertWebP,
		Language:     m.opts.Language,
	}, m.observer)

	var g errgroup.Group
	g.SetLimit(m.opts.workers())

	for _, ch := range pending {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			err := m.runChapter(ctx, adapter, chapterDL, manga, ch)
			m.observer.TaskAdvanced(source.URL, 1)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Printf("[Downloader:%s] ✗ Failed to download %s (%s): %v", title, ch.ArchiveName(), Kind(err), err)
				m.record(Failure{Source: source.URL, Title: title, Chapter: ch.ArchiveName(), Err: err})
				return nil
			}
			m.mu.Lock()
			m.summary.Downloaded++
			m.mu.Unlock()
			return nil
		})
	}
	g.Wait()

	m.observer.TaskCompleted(source.URL, ctx.Err())
	if ctx.Err() != nil {
		return ctx.Err()
	}
	log.Printf("[Downloader] Download complete for %s", title)
	return nil
}

func (m *Manager) runChapter(ctx context.Context, adapter SiteAdapter, chapterDL *ChapterDownloader, manga models.MangaDescriptor, ch models.ChapterRef) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	images, err := adapter.ListImages(ctx, ch.URL)
	if err != nil {
		return fmt.Errorf("list images: %w", err)
	}
	log.Printf("[Downloader:%s] Found %d images for %s", manga.Title, len(images), ch.ArchiveName())

	ok, err := chapterDL.DownloadChapter(ctx, manga, ch, images)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("chapter not archived")
	}
	return nil
}
