package sites

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"mangadl/downloader"
	"mangadl/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const madaraLanding = `<html><body>
<div class="post-title"><h1>
  Solo Hero
</h1></div>
<div id="manga-chapters-holder" data-id="42"></div>
<div class="genres-content"><a href="/g/action">Action</a>, <a href="/g/fantasy">Fantasy</a></div>
<div class="summary__content show-more"><p>A hero rises.</p><p>Second paragraph.</p></div>
</body></html>`

func madaraChapterList(base string) string {
	return fmt.Sprintf(`<ul>
<li class="wp-manga-chapter"><a href="%[1]s/manga/solo/chapter-2/">Chapter 2</a></li>
<li class="wp-manga-chapter"><a href="%[1]s/manga/solo/chapter-10-5/">Chapter 10.5</a></li>
<li class="wp-manga-chapter"><a href="%[1]s/manga/solo/chapter-0/">Prologue</a></li>
<li class="wp-manga-chapter"><a href="%[1]s/manga/solo/chapter-1/">Chapter 1</a></li>
<li class="wp-manga-chapter"><a href="%[1]s/manga/solo/chapter-0-notice/">Notice</a></li>
<li class="wp-manga-chapter"><a href="%[1]s/manga/solo/announcement/">News</a></li>
</ul>`, base)
}

type madaraServer struct {
	*httptest.Server
	landingHits atomic.Int32
	ajaxHits    atomic.Int32
	form        atomic.Value
}

func newMadaraServer(t *testing.T) *madaraServer {
	t.Helper()
	s := &madaraServer{}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /manga/solo/{$}", func(w http.ResponseWriter, r *http.Request) {
		s.landingHits.Add(1)
		fmt.Fprint(w, madaraLanding)
	})
	mux.HandleFunc("POST /manga/solo/ajax/chapters", func(w http.ResponseWriter, r *http.Request) {
		s.ajaxHits.Add(1)
		assert.Equal(t, "XMLHttpRequest", r.Header.Get("X-Requested-With"))
		assert.Equal(t, s.URL+"/manga/solo/", r.Header.Get("Referer"))
		fmt.Fprint(w, madaraChapterList(s.URL))
	})
	mux.HandleFunc("POST /wp-admin/admin-ajax.php", func(w http.ResponseWriter, r *http.Request) {
		s.ajaxHits.Add(1)
		assert.NoError(t, r.ParseForm())
		s.form.Store(r.PostForm.Encode())
		fmt.Fprint(w, madaraChapterList(s.URL))
	})
	mux.HandleFunc("GET /manga/solo/chapter-1/{$}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<div class="reading-content">
<img data-src="
  %[1]s/img/001.jpg " src="/lazy.gif">
<img src="%[1]s/img/002.png">
<img src="">
<img data-src="/img/003.webp">
</div>`, s.URL)
	})
	mux.HandleFunc("GET /manga/empty/{$}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>nothing here</p></body></html>`)
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func chapterNumbers(chapters []models.ChapterRef) []string {
	out := make([]string, 0, len(chapters))
	for _, ch := range chapters {
		out = append(out, ch.Number.String())
	}
	return out
}

func TestMadara_NewLayout(t *testing.T) {
	srv := newMadaraServer(t)
	m, err := NewMadara(madaraNew(), testDeps())
	require.NoError(t, err)
	ctx := context.Background()

	id, title, err := m.Identify(ctx, srv.URL+"/manga/solo/")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/manga/solo", id)
	assert.Equal(t, "Solo Hero", title)

	chapters, err := m.ListChapters(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1", "2", "10.5"}, chapterNumbers(chapters))
	assert.Equal(t, srv.URL+"/manga/solo/chapter-0/", chapters[0].URL, "the first chapter 0 is kept")

	genres, summary, err := m.Metadata(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"Action", "Fantasy"}, genres)
	assert.Equal(t, "A hero rises.", summary)

	assert.Equal(t, int32(1), srv.landingHits.Load(), "landing page is fetched once")
	assert.Equal(t, int32(1), srv.ajaxHits.Load())
}

func TestMadara_LegacyLayout(t *testing.T) {
	srv := newMadaraServer(t)
	m, err := NewMadara(madaraOld(), testDeps())
	require.NoError(t, err)
	ctx := context.Background()

	id, _, err := m.Identify(ctx, srv.URL+"/manga/solo")
	require.NoError(t, err)

	chapters, err := m.ListChapters(ctx, id)
	require.NoError(t, err)
	assert.Len(t, chapters, 4)
	assert.Equal(t, "action=manga_get_chapters&manga=42", srv.form.Load())
	assert.Equal(t, int32(1), srv.landingHits.Load())
}

func TestMadara_ListImages(t *testing.T) {
	srv := newMadaraServer(t)
	m, err := NewMadara(madaraNew(), testDeps())
	require.NoError(t, err)

	images, err := m.ListImages(context.Background(), srv.URL+"/manga/solo/chapter-1/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		srv.URL + "/img/001.jpg",
		srv.URL + "/img/002.png",
		srv.URL + "/img/003.webp",
	}, images)
}

func TestMadara_MissingStructure(t *testing.T) {
	srv := newMadaraServer(t)
	ctx := context.Background()

	m, err := NewMadara(madaraNew(), testDeps())
	require.NoError(t, err)
	_, _, err = m.Identify(ctx, srv.URL+"/manga/empty/")
	assert.True(t, errors.Is(err, downloader.ErrNotFound), "got %v", err)

	_, err = m.ListImages(ctx, srv.URL+"/manga/empty/")
	assert.True(t, errors.Is(err, downloader.ErrNotFound), "got %v", err)

	_, err = m.ListImages(ctx, srv.URL+"/manga/solo/chapter-404/")
	assert.True(t, errors.Is(err, downloader.ErrNotFound), "got %v", err)

	legacy, err := NewMadara(madaraOld(), testDeps())
	require.NoError(t, err)
	_, err = legacy.ListChapters(ctx, srv.URL+"/manga/empty")
	assert.True(t, errors.Is(err, downloader.ErrNotFound), "got %v", err)
}

func TestMadara_ImageHeaders(t *testing.T) {
	m, err := NewMadara(madaraNew(), testDeps())
	require.NoError(t, err)
	assert.Equal(t, "https://site/chapter-1/", m.ImageHeaders("https://site/chapter-1/").Get("Referer"))
	assert.Equal(t, downloader.TransferWhole, m.TransferMode())

	us, err := NewMadara(manhuausConfig(), testDeps())
	require.NoError(t, err)
	h := us.ImageHeaders("https://manhuaus.com/manga/x/chapter-1/")
	assert.Equal(t, "https://manhuaus.com/", h.Get("Referer"))
	assert.Equal(t, "cdn.manhuaus.org", h.Get("Authority"))
	assert.Equal(t, "image", h.Get("Sec-Fetch-Dest"))
	assert.Equal(t, "manhuaus", us.Name())
}
