package sites

import (
	"context"
	"log"
	"net/http"
	"strings"

	"mangadl/downloader"
	"mangadl/models"
	"mangadl/parser"
)

const mangakakalotReferer = "https://mangakakalot.com/"

// KakalotLayout holds the selectors of one Mangakakalot family page
// layout.
type KakalotLayout struct {
	Title    string
	Chapters string
}

var (
	kakalotLayout   = KakalotLayout{Title: "ul.manga-info-text h1", Chapters: "div.chapter-list div.row"}
	manganatoLayout = KakalotLayout{Title: "div.story-info-right h1", Chapters: "div.panel-story-chapter-list li.a-h"}
)

var mangakakalotHeaders = map[string]string{
	"Accept-Language":    "en-US,en;q=0.9,es-US;q=0.8,es;q=0.7,en-GB-oxendict;q=0.6",
	"Cache-Control":      "no-cache",
	"Pragma":             "no-cache",
	"Sec-Ch-Ua":          `"Chromium";v="118", "Google Chrome";v="118", "Not=A?Brand";v="99"`,
	"Sec-Ch-Ua-Mobile":   "?0",
	"Sec-Ch-Ua-Platform": `"Windows"`,
	"Sec-Fetch-Site":     "none",
}

// Mangakakalot scrapes mangakakalot.com and its manganato mirrors. The
// sites publish no usable genre or summary markup.
type Mangakakalot struct {
	layout KakalotLayout
	http   *downloader.HTTPClient
	pages  pageCache
}

var _ downloader.SiteAdapter = (*Mangakakalot)(nil)

// NewMangakakalot builds an adapter for one page layout.
func NewMangakakalot(layout KakalotLayout, deps Deps) (*Mangakakalot, error) {
	client, err := downloader.NewHTTPClient("mangakakalot", clientOptions(deps, mangakakalotHeaders))
	if err != nil {
		return nil, err
	}
	return &Mangakakalot{layout: layout, http: client}, nil
}

func (m *Mangakakalot) Name() string {
	return "mangakakalot"
}

func (m *Mangakakalot) Identify(ctx context.Context, ref string) (string, string, error) {
	id := strings.TrimSpace(ref)
	doc, err := m.pages.get(ctx, m.http, id)
	if err != nil {
		return "", "", err
	}
	title := text(doc.Find(m.layout.Title))
	if title == "" {
		return "", "", downloader.NotFound("title", ref)
	}
	log.Printf("[Mangakakalot] Found title: %s", title)
	return id, title, nil
}

func (m *Mangakakalot) ListChapters(ctx context.Context, id string) ([]models.ChapterRef, error) {
	doc, err := m.pages.get(ctx, m.http, id)
	if err != nil {
		return nil, err
	}

	var chapters []models.ChapterRef
	for _, href := range firstLinks(doc.Find(m.layout.Chapters)) {
		chURL := resolve(doc, href)
		num, err := parser.ChapterNumberFromURL(chURL)
		if err != nil {
			log.Printf("[Mangakakalot] Skipping chapter link %s: %v", chURL, err)
			continue
		}
		chapters = append(chapters, models.ChapterRef{Number: num, URL: chURL})
	}
	if len(chapters) == 0 {
		return nil, downloader.NotFound("chapter list", id)
	}
	return parser.SortChapters(chapters), nil
}

func (m *Mangakakalot) ListImages(ctx context.Context, chapterURL string) ([]string, error) {
	doc, err := fetchDocument(ctx, m.http, chapterURL, "")
	if err != nil {
		return nil, err
	}
	reader := doc.Find("div.container-chapter-reader")
	if reader.Length() == 0 {
		return nil, downloader.NotFound("chapter reader", chapterURL)
	}
	return imageSources(reader.Find("img"), "src"), nil
}

func (m *Mangakakalot) Metadata(context.Context, string) ([]string, string, error) {
	return nil, "", nil
}

func (m *Mangakakalot) ImageHeaders(string) http.Header {
	h := toHeader(mangakakalotHeaders)
	h.Set("Accept", "image/avif,image/webp,image/apng,image/svg+xml,image/*,*/*;q=0.8")
	h.Set("Referer", mangakakalotReferer)
	h.Set("Sec-Fetch-Dest", "image")
	h.Set("Sec-Fetch-Mode", "no-cors")
	h.Set("Sec-Fetch-Site", "same-site")
	return h
}

func (m *Mangakakalot) TransferMode() downloader.TransferMode {
	return downloader.TransferWhole
}
