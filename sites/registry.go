package sites

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"mangadl/downloader"
)

// Deps are the collaborators every adapter is built with.
type Deps struct {
	// Client configures each adapter's HTTP and API clients. Adapter
	// header sets are merged in by the constructors.
	Client downloader.ClientOptions
	// Browser renders script-driven pages. Nil disables the fallback.
	Browser downloader.Transport
	// MangaDexAPI overrides the MangaDex API base URL.
	MangaDexAPI string
	// Language is the MangaDex translation language. Defaults to "en".
	Language string
}

type constructor func(deps Deps) (downloader.SiteAdapter, error)

type registration struct {
	host    string
	adapter string
	build   constructor
}

// registry maps host suffixes to adapter constructors.
var registry = []registration{
	{"manhuaes.com", "madara-old", madara(madaraOld)},
	{"manhuaaz.com", "madara-old", madara(madaraOld)},

	{"manhuaus.com", "manhuaus", madara(manhuausConfig)},
	{"manhuaus.org", "manhuaus", madara(manhuausConfig)},
	{"mangaread.org", "madara", madara(madaraNew)},
	{"lhtranslation.net", "madara", madara(madaraNew)},
	{"topmanhua.com", "madara", madara(madaraNew)},
	{"ksgroupscans.com", "madara", madara(madaraNew)},
	{"gdscans.com", "madara", madara(madaraNew)},
	{"setsuscans.com", "madara", madara(madaraNew)},
	{"manhwaclan.com", "madara", madara(madaraNew)},

	{"webtoons.com", "webtoons", func(d Deps) (downloader.SiteAdapter, error) { return NewWebtoons(d) }},
	{"kaiscans.com", "kaiscans", func(d Deps) (downloader.SiteAdapter, error) { return NewKaiscans(d) }},
	{"mangadex.org", "mangadex", func(d Deps) (downloader.SiteAdapter, error) { return NewMangaDex(d), nil }},

	{"mangakakalot.com", "mangakakalot", kakalot(kakalotLayout)},
	{"chapmanganato.com", "mangakakalot", kakalot(manganatoLayout)},
	{"readmanganato.com", "mangakakalot", kakalot(manganatoLayout)},
	{"manganato.com", "mangakakalot", kakalot(manganatoLayout)},
	{"chapmanganato.to", "mangakakalot", kakalot(manganatoLayout)},
}

func madara(cfg func() MadaraConfig) constructor {
	return func(d Deps) (downloader.SiteAdapter, error) { return NewMadara(cfg(), d) }
}

func kakalot(layout KakalotLayout) constructor {
	return func(d Deps) (downloader.SiteAdapter, error) { return NewMangakakalot(layout, d) }
}

// ForURL returns a fresh adapter for the site rawURL belongs to.
func ForURL(rawURL string, deps Deps) (downloader.SiteAdapter, error) {
	reg, ok := lookup(rawURL)
	if !ok {
		return nil, fmt.Errorf("%s: %w", rawURL, downloader.ErrUnsupportedSite)
	}
	log.Printf("[Sites] %s → %s adapter", rawURL, reg.adapter)
	return reg.build(deps)
}

// Resolver binds deps into a downloader.Resolver.
func Resolver(deps Deps) downloader.Resolver {
	return func(rawURL string) (downloader.SiteAdapter, error) {
		return ForURL(rawURL, deps)
	}
}

// SiteName returns the adapter name for rawURL, or "" when unsupported.
func SiteName(rawURL string) string {
	reg, ok := lookup(rawURL)
	if !ok {
		return ""
	}
	return reg.adapter
}

func lookup(rawURL string) (registration, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return registration{}, false
	}
	host := strings.ToLower(u.Hostname())
	for _, reg := range registry {
		if host == reg.host || strings.HasSuffix(host, "."+reg.host) {
			return reg, true
		}
	}
	return registration{}, false
}

// Host is one row of the supported sites table.
type Host struct {
	Host    string
	Adapter string
}

// Hosts lists every supported host sorted by adapter, then host.
func Hosts() []Host {
	hosts := make([]Host, 0, len(registry))
	for _, reg := range registry {
		hosts = append(hosts, Host{Host: reg.host, Adapter: reg.adapter})
	}
	sort.Slice(hosts, func(i, j int) bool {
		if hosts[i].Adapter != hosts[j].Adapter {
			return hosts[i].Adapter < hosts[j].Adapter
		}
		return hosts[i].Host < hosts[j].Host
	})
	return hosts
}

// clientOptions returns deps.Client with headers merged under the
// caller's own.
func clientOptions(deps Deps, headers map[string]string) downloader.ClientOptions {
	opts := deps.Client
	merged := opts.Headers.Clone()
	if merged == nil {
		merged = http.Header{}
	}
	for k, v := range headers {
		if len(merged.Values(k)) == 0 {
			merged.Set(k, v)
		}
	}
	opts.Headers = merged
	return opts
}
