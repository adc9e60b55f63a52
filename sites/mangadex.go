package sites

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"mangadl/downloader"
	"mangadl/models"
	"mangadl/parser"

	"github.com/google/uuid"
)

const (
	mangadexAPIBase  = "https://api.mangadex.org"
	mangadexSiteBase = "https://mangadex.org"
	mangadexFeedSize = 500
)

var mangadexIDRe = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

var mangadexContentRatings = []string{"safe", "suggestive", "erotica", "pornographic"}

// MangaDex API response structures
type mangadexMangaResponse struct {
	Result string             `json:"result"`
	Data   mangadexMangaEntry `json:"data"`
}

type mangadexMangaEntry struct {
	ID         string                  `json:"id"`
	Attributes mangadexMangaAttributes `json:"attributes"`
}

type mangadexMangaAttributes struct {
	Title       map[string]string   `json:"title"`
	AltTitles   []map[string]string `json:"altTitles"`
	Description map[string]string   `json:"description"`
	Tags        []struct {
		Attributes struct {
			Name map[string]string `json:"name"`
		} `json:"attributes"`
	} `json:"tags"`
}

type mangadexChapterList struct {
	Result string            `json:"result"`
	Data   []mangadexChapter `json:"data"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
	Total  int               `json:"total"`
}

type mangadexChapter struct {
	ID         string `json:"id"`
	Attributes struct {
		Chapter            *string `json:"chapter"`
		TranslatedLanguage string  `json:"translatedLanguage"`
		Pages              int     `json:"pages"`
	} `json:"attributes"`
}

type mangadexAtHome struct {
	Result  string `json:"result"`
	BaseURL string `json:"baseUrl"`
	Chapter struct {
		Hash      string   `json:"hash"`
		Data      []string `json:"data"`
		DataSaver []string `json:"dataSaver"`
	} `json:"chapter"`
}

// MangaDex reads the public MangaDex API.
type MangaDex struct {
	api      *downloader.APIClient
	apiBase  string
	language string

	mu    sync.Mutex
	manga map[string]*mangadexMangaAttributes
}

var _ downloader.SiteAdapter = (*MangaDex)(nil)

// NewMangaDex builds the MangaDex adapter.
func NewMangaDex(deps Deps) *MangaDex {
	base := deps.MangaDexAPI
	if base == "" {
		base = mangadexAPIBase
	}
	lang := deps.Language
	if lang == "" {
		lang = "en"
	}
	return &MangaDex{
		api:      downloader.NewAPIClient("mangadex", deps.Client),
		apiBase:  strings.TrimSuffix(base, "/"),
		language: lang,
		manga:    make(map[string]*mangadexMangaAttributes),
	}
}

func (m *MangaDex) Name() string {
	return "mangadex"
}

// MangaID extracts and validates the manga UUID of a MangaDex URL.
func MangaID(ref string) (string, error) {
	raw := mangadexIDRe.FindString(ref)
	if raw == "" {
		return "", downloader.NotFound("manga id", ref)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", downloader.ParseError(ref, err)
	}
	return id.String(), nil
}

// Identify resolves the title from the manga endpoint. The shortest
// English alternative title wins over the main title.
func (m *MangaDex) Identify(ctx context.Context, ref string) (string, string, error) {
	id, err := MangaID(ref)
	if err != nil {
		return "", "", err
	}

	attrs, err := m.attributes(ctx, id)
	if err != nil {
		return "", "", err
	}

	title := preferredTitle(attrs)
	if title == "" {
		return "", "", downloader.NotFound("title", ref)
	}

	log.Printf("[MangaDex] Found title: %s (%s)", title, id)
	return id, title, nil
}

func preferredTitle(attrs *mangadexMangaAttributes) string {
	title := ""
	for _, alt := range attrs.AltTitles {
		if en := alt["en"]; en != "" && (title == "" || len(en) < len(title)) {
			title = en
		}
	}
	if title == "" {
		title = attrs.Title["en"]
	}
	return strings.TrimSpace(title)
}

func (m *MangaDex) attributes(ctx context.Context, id string) (*mangadexMangaAttributes, error) {
	m.mu.Lock()
	attrs, ok := m.manga[id]
	m.mu.Unlock()
	if ok {
		return attrs, nil
	}

	var resp mangadexMangaResponse
	if err := m.api.FetchJSON(ctx, fmt.Sprintf("%s/manga/%s", m.apiBase, id), &resp); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.manga[id] = &resp.Data.Attributes
	m.mu.Unlock()
	return &resp.Data.Attributes, nil
}

// ListChapters pages through the manga feed. Chapters without a number or
// without pages are skipped.
func (m *MangaDex) ListChapters(ctx context.Context, id string) ([]models.ChapterRef, error) {
	var chapters []models.ChapterRef
	offset := 0

	for {
		var feed mangadexChapterList
		if err := m.api.FetchJSON(ctx, m.feedURL(id, offset), &feed); err != nil {
			return nil, fmt.Errorf("failed to fetch chapters: %w", err)
		}
		log.Printf("[MangaDex] Retrieved %d chapters (offset %d, total %d)", len(feed.Data), offset, feed.Total)

		for _, ch := range feed.Data {
			if ch.Attributes.Chapter == nil {
				log.Printf("[MangaDex] Chapter %s has no number, skipping", ch.ID)
				continue
			}
			if ch.Attributes.Pages == 0 {
				log.Printf("[MangaDex] Chapter %s has 0 pages, skipping (ID: %s)", *ch.Attributes.Chapter, ch.ID)
				continue
			}
			num, err := parser.ParseChapterNumber(*ch.Attributes.Chapter)
			if err != nil {
				log.Printf("[MangaDex] Skipping chapter %q: %v", *ch.Attributes.Chapter, err)
				continue
			}
			chapters = append(chapters, models.ChapterRef{
				Number: num,
				URL:    mangadexSiteBase + "/chapter/" + ch.ID,
			})
		}

		offset += len(feed.Data)
		if len(feed.Data) == 0 || offset >= feed.Total {
			break
		}
	}

	return parser.SortChapters(chapters), nil
}

func (m *MangaDex) feedURL(id string, offset int) string {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(mangadexFeedSize))
	q.Set("offset", strconv.Itoa(offset))
	q.Add("translatedLanguage[]", m.language)
	for _, rating := range mangadexContentRatings {
		q.Add("contentRating[]", rating)
	}
	q.Set("includeFutureUpdates", "1")
	q.Set("order[chapter]", "asc")
	return fmt.Sprintf("%s/manga/%s/feed?%s", m.apiBase, id, q.Encode())
}

// ListImages asks MangaDex@Home for a server and builds the page URLs.
func (m *MangaDex) ListImages(ctx context.Context, chapterURL string) ([]string, error) {
	chapterID := mangadexIDRe.FindString(chapterURL)
	if chapterID == "" {
		return nil, downloader.NotFound("chapter id", chapterURL)
	}

	var server mangadexAtHome
	if err := m.api.FetchJSON(ctx, fmt.Sprintf("%s/at-home/server/%s", m.apiBase, chapterID), &server); err != nil {
		return nil, err
	}
	if server.BaseURL == "" || server.Chapter.Hash == "" {
		return nil, downloader.NotFound("at-home server", chapterURL)
	}

	images := make([]string, 0, len(server.Chapter.Data))
	for _, file := range server.Chapter.Data {
		images = append(images, fmt.Sprintf("%s/data/%s/%s", server.BaseURL, server.Chapter.Hash, file))
	}
	return images, nil
}

func (m *MangaDex) Metadata(ctx context.Context, id string) ([]string, string, error) {
	attrs, err := m.attributes(ctx, id)
	if err != nil {
		return nil, "", err
	}
	var genres []string
	for _, tag := range attrs.Tags {
		if name := tag.Attributes.Name["en"]; name != "" {
			genres = append(genres, name)
		}
	}
	return genres, strings.TrimSpace(attrs.Description["en"]), nil
}

func (m *MangaDex) ImageHeaders(string) http.Header {
	return http.Header{}
}

func (m *MangaDex) TransferMode() downloader.TransferMode {
	return downloader.TransferWhole
}
