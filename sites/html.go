package sites

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"sync"

	"mangadl/downloader"

	"github.com/PuerkitoBio/goquery"
)

// fetchDocument loads target through t and parses it.
func fetchDocument(ctx context.Context, t downloader.Transport, target, waitSelector string) (*goquery.Document, error) {
	html, err := t.FetchHTML(ctx, target, waitSelector)
	if err != nil {
		return nil, err
	}
	return parseDocument(target, []byte(html))
}

func parseDocument(target string, body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, downloader.ParseError(target, err)
	}
	if u, err := url.Parse(target); err == nil {
		doc.Url = u
	}
	return doc, nil
}

// text returns the trimmed text of the first match.
func text(sel *goquery.Selection) string {
	return strings.TrimSpace(sel.First().Text())
}

// texts returns the trimmed, non-empty text of every match.
func texts(sel *goquery.Selection) []string {
	var out []string
	sel.Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			out = append(out, t)
		}
	})
	return out
}

// imageSources reads the first non-empty attribute of attrs from every
// image, in document order.
func imageSources(sel *goquery.Selection, attrs ...string) []string {
	var out []string
	sel.Each(func(_ int, img *goquery.Selection) {
		for _, attr := range attrs {
			if v, ok := img.Attr(attr); ok && strings.TrimSpace(v) != "" {
				out = append(out, strings.TrimSpace(v))
				return
			}
		}
	})
	return out
}

// firstLinks returns the href of the first link inside each element of sel.
func firstLinks(sel *goquery.Selection) []string {
	var out []string
	sel.Each(func(_ int, s *goquery.Selection) {
		if href := strings.TrimSpace(s.Find("a[href]").First().AttrOr("href", "")); href != "" {
			out = append(out, href)
		}
	})
	return out
}

// resolve makes href absolute against the document's URL.
func resolve(doc *goquery.Document, href string) string {
	href = strings.TrimSpace(href)
	if doc.Url == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return doc.Url.ResolveReference(ref).String()
}

// pageCache keeps landing pages for the lifetime of an adapter, so
// Identify, ListChapters and Metadata share one request.
type pageCache struct {
	mu   sync.Mutex
	docs map[string]*goquery.Document
}

func (c *pageCache) get(ctx context.Context, t downloader.Transport, target string) (*goquery.Document, error) {
	c.mu.Lock()
	doc, ok := c.docs[target]
	c.mu.Unlock()
	if ok {
		return doc, nil
	}

	doc, err := fetchDocument(ctx, t, target, "")
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.docs == nil {
		c.docs = make(map[string]*goquery.Document)
	}
	c.docs[target] = doc
	c.mu.Unlock()
	return doc, nil
}
