package sites

import (
	"errors"
	"testing"

	"mangadl/downloader"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://manhuaus.com/manga/solo/", "manhuaus"},
		{"https://www.manhuaus.org/manga/solo", "manhuaus"},
		{"https://manhuaes.com/manga/solo/", "madara-old"},
		{"https://manhuaaz.com/manga/solo/", "madara-old"},
		{"https://www.mangaread.org/manga/solo/", "madara"},
		{"https://manhwaclan.com/manga/solo/", "madara"},
		{"https://gdscans.com/manga/solo/", "madara"},
		{"https://www.webtoons.com/en/fantasy/tower/list?title_no=95", "webtoons"},
		{"https://kaiscans.com/manga/hero/", "kaiscans"},
		{"https://mangadex.org/title/32d76d19-8a05-4db0-9fc2-e0b0648fe9d0", "mangadex"},
		{"https://mangakakalot.com/manga/kakalot", "mangakakalot"},
		{"https://chapmanganato.com/manga-aa951409", "mangakakalot"},
		{"https://readmanganato.com/manga-aa951409", "mangakakalot"},
		{"https://manganato.com/manga-aa951409", "mangakakalot"},
		{"https://chapmanganato.to/manga-aa951409", "mangakakalot"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			adapter, err := ForURL(tt.url, testDeps())
			require.NoError(t, err)
			assert.Equal(t, tt.want, adapter.Name())
			assert.Equal(t, tt.want, SiteName(tt.url))
		})
	}
}

func TestForURL_Layouts(t *testing.T) {
	adapter, err := ForURL("https://chapmanganato.com/manga-aa951409", testDeps())
	require.NoError(t, err)
	assert.Equal(t, manganatoLayout, adapter.(*Mangakakalot).layout)

	for _, raw := range []string{"https://manganato.com/manga-aa951409", "https://chapmanganato.to/manga-aa951409"} {
		adapter, err = ForURL(raw, testDeps())
		require.NoError(t, err)
		assert.Equal(t, manganatoLayout, adapter.(*Mangakakalot).layout, raw)
	}

	adapter, err = ForURL("https://mangakakalot.com/manga/x", testDeps())
	require.NoError(t, err)
	assert.Equal(t, kakalotLayout, adapter.(*Mangakakalot).layout)
}

func TestForURL_Unsupported(t *testing.T) {
	for _, raw := range []string{
		"https://example.com/manga/solo",
		"https://notwebtoons.com/list",
		"not a url",
		"",
	} {
		_, err := ForURL(raw, testDeps())
		assert.True(t, errors.Is(err, downloader.ErrUnsupportedSite), "%q: got %v", raw, err)
		assert.Empty(t, SiteName(raw))
	}
}

func TestResolver(t *testing.T) {
	resolve := Resolver(testDeps())
	adapter, err := resolve("https://www.webtoons.com/en/x/list?title_no=1")
	require.NoError(t, err)
	assert.Equal(t, "webtoons", adapter.Name())
}

func TestHosts(t *testing.T) {
	hosts := Hosts()
	assert.Len(t, hosts, len(registry))

	for i := 1; i < len(hosts); i++ {
		prev, cur := hosts[i-1], hosts[i]
		assert.True(t, prev.Adapter < cur.Adapter || (prev.Adapter == cur.Adapter && prev.Host < cur.Host))
	}
	assert.Contains(t, hosts, Host{Host: "mangadex.org", Adapter: "mangadex"})
}
