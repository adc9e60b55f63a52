package sites

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"mangadl/downloader"
	"mangadl/models"
	"mangadl/parser"

	"github.com/PuerkitoBio/goquery"
)

const webtoonsReferer = "https://www.webtoons.com/"

var webtoonsHeaders = map[string]string{
	"Dnt":             "1",
	"Accept-Language": "en-US,en;q=0.9",
}

// Webtoons scrapes webtoons.com series. Episodes are numbered densely, so
// the chapter index is generated from the first and latest episode
// numbers instead of paging through the list.
type Webtoons struct {
	http  *downloader.HTTPClient
	pages pageCache
}

var _ downloader.SiteAdapter = (*Webtoons)(nil)

// NewWebtoons builds the webtoons.com adapter.
func NewWebtoons(deps Deps) (*Webtoons, error) {
	client, err := downloader.NewHTTPClient("webtoons", clientOptions(deps, webtoonsHeaders))
	if err != nil {
		return nil, err
	}
	return &Webtoons{http: client}, nil
}

func (w *Webtoons) Name() string {
	return "webtoons"
}

func (w *Webtoons) Identify(ctx context.Context, ref string) (string, string, error) {
	id := strings.TrimSpace(ref)
	doc, err := w.pages.get(ctx, w.http, id)
	if err != nil {
		return "", "", err
	}

	title := strings.NewReplacer("\n", "", "\t", "").Replace(doc.Find(".subj").First().Text())
	title = strings.TrimSpace(title)
	if title == "" {
		return "", "", downloader.NotFound("title", ref)
	}
	log.Printf("[Webtoons] Found title: %s", title)
	return id, title, nil
}

func (w *Webtoons) ListChapters(ctx context.Context, id string) ([]models.ChapterRef, error) {
	doc, err := w.pages.get(ctx, w.http, id)
	if err != nil {
		return nil, err
	}

	latestHref, ok := doc.Find("li._episodeItem a").First().Attr("href")
	if !ok {
		return nil, downloader.NotFound("episode list", id)
	}
	viewer := resolve(doc, latestHref)
	latest, err := episodeNo(viewer)
	if err != nil {
		return nil, downloader.ParseError(viewer, err)
	}

	first, err := w.firstEpisode(ctx, doc, id)
	if err != nil {
		return nil, err
	}
	if first > latest {
		return nil, downloader.ParseError(id, fmt.Errorf("first episode %d is after latest %d", first, latest))
	}
	log.Printf("[Webtoons] Episodes %d to %d", first, latest)

	chapters := make([]models.ChapterRef, 0, latest-first+1)
	for i := first; i <= latest; i++ {
		chapters = append(chapters, models.ChapterRef{
			Number: models.ChapterNumber(i),
			URL:    episodeURL(viewer, latest, i),
		})
	}
	return parser.SortChapters(chapters), nil
}

// firstEpisode reads the "first episode" button, falling back to the
// lowest episode on the last list page.
func (w *Webtoons) firstEpisode(ctx context.Context, doc *goquery.Document, id string) (int, error) {
	if href, ok := doc.Find("a#_btnEpisode").Attr("href"); ok {
		if n, err := episodeNo(resolve(doc, href)); err == nil {
			return n, nil
		}
	}

	lastPage := id + "&page=9999"
	if !strings.Contains(id, "?") {
		lastPage = id + "?page=9999"
	}
	last, err := fetchDocument(ctx, w.http, lastPage, "")
	if err != nil {
		return 0, err
	}

	first := -1
	last.Find("li._episodeItem[data-episode-no]").Each(func(_ int, s *goquery.Selection) {
		n, err := strconv.Atoi(strings.TrimSpace(s.AttrOr("data-episode-no", "")))
		if err == nil && (first < 0 || n < first) {
			first = n
		}
	})
	if first < 0 {
		return 0, downloader.NotFound("first episode", lastPage)
	}
	return first, nil
}

func episodeNo(viewerURL string) (int, error) {
	u, err := url.Parse(viewerURL)
	if err != nil {
		return 0, err
	}
	raw := u.Query().Get("episode_no")
	if raw == "" {
		return 0, fmt.Errorf("no episode_no in %s", viewerURL)
	}
	return strconv.Atoi(raw)
}

// episodeURL rewrites the viewer URL of episode from into episode to.
func episodeURL(viewer string, from, to int) string {
	return strings.NewReplacer(
		fmt.Sprintf("/episode-%d", from), fmt.Sprintf("/episode-%d", to),
		fmt.Sprintf("episode_no=%d", from), fmt.Sprintf("episode_no=%d", to),
	).Replace(viewer)
}

func (w *Webtoons) ListImages(ctx context.Context, chapterURL string) ([]string, error) {
	doc, err := fetchDocument(ctx, w.http, chapterURL, "")
	if err != nil {
		return nil, err
	}
	viewer := doc.Find("div.viewer_img._img_viewer_area")
	if viewer.Length() == 0 {
		return nil, downloader.NotFound("image viewer", chapterURL)
	}
	return imageSources(viewer.Find("img"), "data-url"), nil
}

func (w *Webtoons) Metadata(ctx context.Context, id string) ([]string, string, error) {
	doc, err := w.pages.get(ctx, w.http, id)
	if err != nil {
		return nil, "", err
	}
	genres := texts(doc.Find("div.info").First().Find("h2"))
	summary := text(doc.Find("p.summary"))
	return genres, summary, nil
}

func (w *Webtoons) ImageHeaders(string) http.Header {
	h := toHeader(webtoonsHeaders)
	h.Set("Referer", webtoonsReferer)
	return h
}

// TransferMode streams, as webtoon strips are tall and heavy.
func (w *Webtoons) TransferMode() downloader.TransferMode {
	return downloader.TransferStream
}
