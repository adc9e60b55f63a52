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

// Reader pages fill div#readerarea from script.
const kaiscansReaderImages = "div#readerarea img"

// Kaiscans scrapes kaiscans.com. Series pages are static; reader pages
// go through the executor, which renders them in a browser when the
// static HTML has no images.
type Kaiscans struct {
	http   *downloader.HTTPClient
	reader downloader.Transport
	pages  pageCache
}

var _ downloader.SiteAdapter = (*Kaiscans)(nil)

// NewKaiscans builds the kaiscans.com adapter. deps.Browser renders the
// reader pages.
func NewKaiscans(deps Deps) (*Kaiscans, error) {
	client, err := downloader.NewHTTPClient("kaiscans", clientOptions(deps, nil))
	if err != nil {
		return nil, err
	}
	return &Kaiscans{
		http:   client,
		reader: downloader.NewRequestExecutor("kaiscans", client, deps.Browser),
	}, nil
}

func (k *Kaiscans) Name() string {
	return "kaiscans"
}

func (k *Kaiscans) Identify(ctx context.Context, ref string) (string, string, error) {
	id := strings.TrimSpace(ref)
	doc, err := k.pages.get(ctx, k.http, id)
	if err != nil {
		return "", "", err
	}
	title := text(doc.Find("div#titlemove h1"))
	if title == "" {
		return "", "", downloader.NotFound("title", ref)
	}
	log.Printf("[Kaiscans] Found title: %s", title)
	return id, title, nil
}

func (k *Kaiscans) ListChapters(ctx context.Context, id string) ([]models.ChapterRef, error) {
	doc, err := k.pages.get(ctx, k.http, id)
	if err != nil {
		return nil, err
	}

	var chapters []models.ChapterRef
	items := doc.Find("div.eplister li[data-num]")
	for i := range items.Nodes {
		li := items.Eq(i)
		href, ok := li.Find("a[href]").First().Attr("href")
		if !ok {
			continue
		}
		num, err := parser.ParseChapterNumber(li.AttrOr("data-num", ""))
		if err != nil {
			log.Printf("[Kaiscans] Skipping chapter %s: %v", href, err)
			continue
		}
		chapters = append(chapters, models.ChapterRef{Number: num, URL: resolve(doc, href)})
	}
	if len(chapters) == 0 {
		return nil, downloader.NotFound("chapter list", id)
	}
	return parser.SortChapters(chapters), nil
}

func (k *Kaiscans) ListImages(ctx context.Context, chapterURL string) ([]string, error) {
	doc, err := fetchDocument(ctx, k.reader, chapterURL, kaiscansReaderImages)
	if err != nil {
		return nil, err
	}
	images := imageSources(doc.Find(kaiscansReaderImages), "data-src", "src")
	if len(images) == 0 {
		return nil, downloader.NotFound("reader images", chapterURL)
	}
	return images, nil
}

func (k *Kaiscans) Metadata(ctx context.Context, id string) ([]string, string, error) {
	doc, err := k.pages.get(ctx, k.http, id)
	if err != nil {
		return nil, "", err
	}
	genres := texts(doc.Find("div.wd-full").First().Find("a"))
	summary := text(doc.Find(`div[itemprop="description"] p`))
	return genres, summary, nil
}

func (k *Kaiscans) ImageHeaders(referer string) http.Header {
	return http.Header{"Referer": {referer}}
}

func (k *Kaiscans) TransferMode() downloader.TransferMode {
	return downloader.TransferWhole
}
