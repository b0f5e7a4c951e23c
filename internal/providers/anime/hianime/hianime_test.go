package hianime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	providerhttp "github.com/wakaranaidev/koware/internal/providers/http"
	"github.com/wakaranaidev/koware/pkg/types"
)

// stubExtractor returns canned links without touching the network.
type stubExtractor struct {
	links []types.StreamLink
	err   error

	gotEmbedURL string
}

func (s *stubExtractor) Extract(_ context.Context, embedURL string) ([]types.StreamLink, error) {
	s.gotEmbedURL = embedURL
	return s.links, s.err
}

func testClient() *providerhttp.Client {
	return providerhttp.NewClient(providerhttp.ClientConfig{
		Timeout:     2 * time.Second,
		MaxAttempts: 1,
	})
}

func testProvider(serverURL string, extractor *stubExtractor) *HiAnime {
	if extractor == nil {
		extractor = &stubExtractor{}
	}
	return New(Config{BaseURL: serverURL}, testClient(), extractor, nil)
}

func TestNormalizeSlug(t *testing.T) {
	tests := []struct {
		name     string
		href     string
		expected string
	}{
		{"watch prefix", "/watch/re-zero-123", "re-zero-123"},
		{"bare slug", "/re-zero-123", "re-zero-123"},
		{"query dropped", "/watch/re-zero-123?ep=5", "re-zero-123"},
		{"absolute url", "https://hianime.to/watch/frieren-456", "frieren-456"},
		{"no numeric id", "/genre/action", ""},
		{"nested path", "/people/some-actor-1/credits", ""},
		{"fragment link", "#top", ""},
		{"javascript link", "javascript:void(0)", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizeSlug(tt.href))
		})
	}
}

func TestSlugNumericID(t *testing.T) {
	assert.Equal(t, "123", slugNumericID("re-zero-123"))
	assert.Equal(t, "456", slugNumericID("mushoku-tensei-2-456"))
	assert.Equal(t, "", slugNumericID("no-digits-here"))
}

func TestSearch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ajax/search/suggest", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "XMLHttpRequest", r.Header.Get("X-Requested-With"))
		assert.Equal(t, "re zero", r.URL.Query().Get("keyword"))
		fmt.Fprint(w, `{"status":true,"html":"`+
			`<a href=\"/re-zero-123\" title=\"Re:Zero\"></a>`+
			`<a href=\"/re-zero-123?ref=search\" title=\"Re:Zero\"></a>`+
			`<a href=\"/genre/isekai\" title=\"Isekai\"></a>`+
			`<a href=\"/frieren-456\">Frieren</a>"}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	p := testProvider(server.URL, nil)
	results, err := p.Search(context.Background(), "re zero", types.SearchFilters{})

	require.NoError(t, err)
	// The duplicate slug and the non-detail link are dropped.
	require.Len(t, results, 2)
	assert.Equal(t, types.AnimeID("hianime:re-zero-123"), results[0].ID)
	assert.Equal(t, "Re:Zero", results[0].Title)
	assert.Equal(t, "Frieren", results[1].Title)
	assert.Equal(t, server.URL+"/watch/frieren-456", results[1].PageURL)
}

func TestSearchRespectsLimit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ajax/search/suggest", func(w http.ResponseWriter, r *http.Request) {
		html := ""
		for i := 1; i <= 10; i++ {
			html += fmt.Sprintf(`<a href="/show-%d" title="Show %d"></a>`, i, i)
		}
		fmt.Fprint(w, html)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	p := New(Config{BaseURL: server.URL, SearchLimit: 3}, testClient(), &stubExtractor{}, nil)
	results, err := p.Search(context.Background(), "show", types.SearchFilters{})

	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestSearchNotConfigured(t *testing.T) {
	p := New(Config{}, testClient(), &stubExtractor{}, nil)
	results, err := p.Search(context.Background(), "anything", types.SearchFilters{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBrowsePopular(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/home", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<div class="trending"><a href="/watch/one-piece-100" title="One Piece"></a></div>
		</body></html>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	p := testProvider(server.URL, nil)
	results, err := p.BrowsePopular(context.Background(), types.SearchFilters{})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, types.AnimeID("hianime:one-piece-100"), results[0].ID)
}

func TestGetEpisodes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ajax/v2/episode/list/123", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":true,"html":"`+
			`<a data-id=\"1003\" data-number=\"3\" title=\"Third\"></a>`+
			`<a data-id=\"1001\" data-number=\"1\" title=\"First\"></a>`+
			`<a data-id=\"1002\" data-number=\"2\" title=\"Second\"></a>`+
			`<a data-id=\"1002\" data-number=\"2\" title=\"Dup\"></a>`+
			`<a data-id=\"1004\" data-number=\"x\"></a>`+
			`<a data-number=\"5\"></a>"}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	p := testProvider(server.URL, nil)
	episodes, err := p.GetEpisodes(context.Background(), types.Anime{
		ID: types.NamespacedAnimeID(Name, "re-zero-123"),
	})

	require.NoError(t, err)
	require.Len(t, episodes, 3)
	for i, ep := range episodes {
		assert.Equal(t, i+1, ep.Number)
	}
	assert.Equal(t, types.EpisodeID("hianime:1001"), episodes[0].ID)
	assert.Equal(t, "First", episodes[0].Title)
	assert.Contains(t, episodes[0].PageURL, "/watch/re-zero-123?ep=1001")
}

func TestGetEpisodesNoNumericID(t *testing.T) {
	p := testProvider("https://hianime.example", nil)
	_, err := p.GetEpisodes(context.Background(), types.Anime{
		ID: types.NamespacedAnimeID(Name, "slug-without-digits"),
	})
	require.Error(t, err)
}

func TestSelectServer(t *testing.T) {
	servers := []server{
		{DataID: "10", Type: "dub", ServerID: "1", Label: "HD-1"},
		{DataID: "11", Type: "sub", ServerID: "4", Label: "HD-1"},
		{DataID: "12", Type: "sub", ServerID: "5", Label: "HD-2"},
	}

	tests := []struct {
		name      string
		preferred string
		wantID    string
	}{
		{"preferred label among subs", "HD-2", "12"},
		{"preferred server id", "4", "11"},
		{"unknown preference falls back to first sub", "HD-9", "11"},
		{"no preference picks first sub", "", "11"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(Config{BaseURL: "https://x", PreferredServer: tt.preferred}, testClient(), &stubExtractor{}, nil)
			assert.Equal(t, tt.wantID, p.selectServer(servers).DataID)
		})
	}
}

func TestSelectServerNoSubEntries(t *testing.T) {
	servers := []server{
		{DataID: "20", Type: "dub", Label: "HD-1"},
		{DataID: "21", Type: "dub", Label: "HD-2"},
	}
	p := testProvider("https://x", nil)
	assert.Equal(t, "20", p.selectServer(servers).DataID)
}

const serversHTML = `{"status":true,"html":"` +
	`<div class=\"server-item\" data-id=\"31\" data-type=\"sub\" data-server-id=\"4\"><a>HD-1</a></div>` +
	`<div class=\"server-item\" data-id=\"32\" data-type=\"dub\" data-server-id=\"4\"><a>HD-1</a></div>"}`

func TestGetStreamsDirectSources(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ajax/v2/episode/servers", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "9001", r.URL.Query().Get("episodeId"))
		fmt.Fprint(w, serversHTML)
	})
	mux.HandleFunc("/ajax/v2/episode/sources", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "31", r.URL.Query().Get("id"))
		fmt.Fprint(w, `{"sources":[
			{"file":"https://cdn.example/1080.m3u8","label":"1080p HD"},
			{"file":"https://cdn.example/720.m3u8","label":"720"}
		],"tracks":[
			{"file":"https://cdn.example/en.vtt","label":"English","kind":"captions","srclang":"en"},
			{"file":"https://cdn.example/thumbs.vtt","kind":"thumbnails"}
		]}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	p := testProvider(server.URL, nil)
	links, err := p.GetStreams(context.Background(), types.Episode{
		ID: types.NamespacedEpisodeID(Name, "9001"),
	})

	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "1080p", links[0].Quality)
	assert.Equal(t, "720p", links[1].Quality)
	assert.Equal(t, "HD-1", links[0].Source)
	// The thumbnails track is metadata, not a subtitle.
	require.Len(t, links[0].Subtitles, 1)
	assert.Equal(t, "English", links[0].Subtitles[0].Label)
}

func TestGetStreamsViaExtractor(t *testing.T) {
	extractor := &stubExtractor{links: []types.StreamLink{
		{URL: "https://cdn.example/hls/720.m3u8", Quality: "720p"},
		{URL: "https://cdn.example/hls/1080.m3u8", Quality: "1080p"},
	}}

	mux := http.NewServeMux()
	mux.HandleFunc("/ajax/v2/episode/servers", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, serversHTML)
	})
	mux.HandleFunc("/ajax/v2/episode/sources", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"type":"iframe","link":"https://megacloud.example/embed-2/v3/e-1/abcdef?k=1"}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	p := testProvider(server.URL, extractor)
	links, err := p.GetStreams(context.Background(), types.Episode{
		ID: types.NamespacedEpisodeID(Name, "9001"),
	})

	require.NoError(t, err)
	assert.Equal(t, "https://megacloud.example/embed-2/v3/e-1/abcdef?k=1", extractor.gotEmbedURL)
	require.Len(t, links, 2)
	// Ranked best-first and attributed to the chosen server.
	assert.Equal(t, "1080p", links[0].Quality)
	assert.Equal(t, "HD-1", links[0].Source)
}

func TestGetStreamsExtractorFailureFallsBackToEmbed(t *testing.T) {
	extractor := &stubExtractor{err: errors.New("no client key")}

	mux := http.NewServeMux()
	mux.HandleFunc("/ajax/v2/episode/servers", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, serversHTML)
	})
	mux.HandleFunc("/ajax/v2/episode/sources", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"link":"https://megacloud.example/embed-2/v3/e-1/abcdef"}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	p := testProvider(server.URL, extractor)
	links, err := p.GetStreams(context.Background(), types.Episode{
		ID: types.NamespacedEpisodeID(Name, "9001"),
	})

	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "https://megacloud.example/embed-2/v3/e-1/abcdef", links[0].URL)
	assert.Equal(t, "auto", links[0].Quality)
}

func TestGetStreamsNoServers(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ajax/v2/episode/servers", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":true,"html":"<div>nothing here</div>"}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	p := testProvider(server.URL, nil)
	links, err := p.GetStreams(context.Background(), types.Episode{
		ID: types.NamespacedEpisodeID(Name, "9001"),
	})

	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestUnwrapHTML(t *testing.T) {
	assert.Equal(t, "<div>x</div>", unwrapHTML([]byte(`{"status":true,"html":"<div>x</div>"}`)))
	assert.Equal(t, "<div>raw</div>", unwrapHTML([]byte("<div>raw</div>")))
}
