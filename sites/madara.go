package sites

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"mangadl/downloader"
	"mangadl/models"
	"mangadl/parser"
)

// MadaraConfig describes one WordPress Madara theme site.
type MadaraConfig struct {
	Name string
	// Legacy sites publish their chapter list through admin-ajax.php,
	// keyed by the manga's data-id, instead of {url}/ajax/chapters.
	Legacy bool
	// Headers go out with every page request.
	Headers map[string]string
	// AjaxHeaders are added to the chapter list POST.
	AjaxHeaders map[string]string
	// ImageHeaders are sent with page images. A missing Referer is
	// filled with the chapter URL.
	ImageHeaders map[string]string
}

func madaraNew() MadaraConfig {
	return MadaraConfig{
		Name:    "madara",
		Headers: map[string]string{"Accept-Language": "en-US,en;q=0.9"},
		AjaxHeaders: map[string]string{
			"Accept":           "*/*",
			"X-Requested-With": "XMLHttpRequest",
		},
	}
}

func madaraOld() MadaraConfig {
	cfg := madaraNew()
	cfg.Name = "madara-old"
	cfg.Legacy = true
	return cfg
}

func manhuausConfig() MadaraConfig {
	base := map[string]string{
		"Authority":          "manhuaus.com",
		"Accept-Language":    "en-US,en;q=0.9,es-US;q=0.8,es;q=0.7,en-GB-oxendict;q=0.6",
		"Cache-Control":      "no-cache",
		"Pragma":             "no-cache",
		"Sec-Ch-Ua":          `"Chromium";v="118", "Google Chrome";v="118", "Not=A?Brand";v="99"`,
		"Sec-Ch-Ua-Mobile":   "?0",
		"Sec-Ch-Ua-Platform": `"Windows"`,
	}

	page := with(base, map[string]string{
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Sec-Fetch-User":            "?1",
		"Upgrade-Insecure-Requests": "1",
	})

	return MadaraConfig{
		Name:    "manhuaus",
		Headers: page,
		AjaxHeaders: map[string]string{
			"Accept":           "*/*",
			"Origin":           "https://manhuaus.com",
			"Sec-Fetch-Dest":   "empty",
			"Sec-Fetch-Mode":   "cors",
			"Sec-Fetch-Site":   "same-origin",
			"X-Requested-With": "XMLHttpRequest",
		},
		ImageHeaders: with(base, map[string]string{
			"Authority":      "cdn.manhuaus.org",
			"Accept":         "image/avif,image/webp,image/apng,image/svg+xml,image/*,*/*;q=0.8",
			"Referer":        "https://manhuaus.com/",
			"Sec-Fetch-Dest": "image",
			"Sec-Fetch-Mode": "no-cors",
			"Sec-Fetch-Site": "same-site",
		}),
	}
}

// with returns a copy of base overlaid with extra.
func with(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func toHeader(m map[string]string) http.Header {
	h := make(http.Header, len(m))
	for k, v := range m {
		h.Set(k, v)
	}
	return h
}

// Madara scrapes sites running the Madara WordPress theme.
type Madara struct {
	cfg   MadaraConfig
	http  *downloader.HTTPClient
	api   *downloader.APIClient
	pages pageCache
}

var _ downloader.SiteAdapter = (*Madara)(nil)

// NewMadara builds an adapter for one Madara site configuration.
func NewMadara(cfg MadaraConfig, deps Deps) (*Madara, error) {
	opts := clientOptions(deps, cfg.Headers)
	client, err := downloader.NewHTTPClient(cfg.Name, opts)
	if err != nil {
		return nil, err
	}
	return &Madara{
		cfg:  cfg,
		http: client,
		api:  downloader.NewAPIClient(cfg.Name, opts),
	}, nil
}

func (m *Madara) Name() string {
	return m.cfg.Name
}

// Identify uses the manga page URL without its trailing slash as id.
func (m *Madara) Identify(ctx context.Context, ref string) (string, string, error) {
	id := strings.TrimSuffix(strings.TrimSpace(ref), "/")
	doc, err := m.pages.get(ctx, m.http, landingPage(id))
	if err != nil {
		return "", "", err
	}

	title := text(doc.Find("div.post-title h1"))
	if title == "" {
		return "", "", downloader.NotFound("title", ref)
	}
	log.Printf("[%s] Found title: %s", m.cfg.Name, title)
	return id, title, nil
}

func (m *Madara) ListChapters(ctx context.Context, id string) ([]models.ChapterRef, error) {
	endpoint, form, err := m.chapterEndpoint(ctx, id)
	if err != nil {
		return nil, err
	}

	headers := toHeader(m.cfg.AjaxHeaders)
	headers.Set("Referer", landingPage(id))

	body, err := m.api.PostForm(ctx, endpoint, form, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to load chapter list: %w", err)
	}

	doc, err := parseDocument(endpoint, body)
	if err != nil {
		return nil, err
	}

	var chapters []models.ChapterRef
	for _, href := range firstLinks(doc.Find("li.wp-manga-chapter")) {
		chURL := resolve(doc, href)
		num, err := parser.ChapterNumberFromURL(chURL)
		if err != nil {
			log.Printf("[%s] Skipping chapter link %s: %v", m.cfg.Name, chURL, err)
			continue
		}
		chapters = append(chapters, models.ChapterRef{Number: num, URL: chURL})
	}
	if len(chapters) == 0 {
		return nil, downloader.NotFound("chapter list", endpoint)
	}

	log.Printf("[%s] Found %d chapters", m.cfg.Name, len(chapters))
	return parser.SortChapters(chapters), nil
}

// chapterEndpoint returns the AJAX URL and form of the chapter list.
func (m *Madara) chapterEndpoint(ctx context.Context, id string) (string, map[string]string, error) {
	if !m.cfg.Legacy {
		return id + "/ajax/chapters", nil, nil
	}

	doc, err := m.pages.get(ctx, m.http, landingPage(id))
	if err != nil {
		return "", nil, err
	}
	dataID, ok := doc.Find("div#manga-chapters-holder").Attr("data-id")
	if !ok || dataID == "" {
		return "", nil, downloader.NotFound("manga-chapters-holder data-id", id)
	}

	u, err := url.Parse(id)
	if err != nil {
		return "", nil, downloader.ParseError(id, err)
	}
	endpoint := fmt.Sprintf("%s://%s/wp-admin/admin-ajax.php", u.Scheme, u.Host)
	return endpoint, map[string]string{"action": "manga_get_chapters", "manga": dataID}, nil
}

func (m *Madara) ListImages(ctx context.Context, chapterURL string) ([]string, error) {
	doc, err := fetchDocument(ctx, m.http, chapterURL, "")
	if err != nil {
		return nil, err
	}

	content := doc.Find("div.reading-content")
	if content.Length() == 0 {
		return nil, downloader.NotFound("reading-content", chapterURL)
	}
	images := imageSources(content.Find("img"), "data-src", "src")
	for i, img := range images {
		images[i] = resolve(doc, img)
	}
	return images, nil
}

func (m *Madara) Metadata(ctx context.Context, id string) ([]string, string, error) {
	doc, err := m.pages.get(ctx, m.http, landingPage(id))
	if err != nil {
		return nil, "", err
	}
	genres := texts(doc.Find("div.genres-content").First().Find("a"))
	summary := text(doc.Find("div.summary__content.show-more p"))
	return genres, summary, nil
}

func (m *Madara) ImageHeaders(referer string) http.Header {
	h := toHeader(m.cfg.ImageHeaders)
	if h.Get("Referer") == "" {
		h.Set("Referer", referer)
	}
	return h
}

func (m *Madara) TransferMode() downloader.TransferMode {
	return downloader.TransferWhole
}

func landingPage(id string) string {
	return id + "/"
}
