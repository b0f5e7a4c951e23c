package hianime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"

	"github.com/wakaranaidev/koware/internal/providers"
	providerhttp "github.com/wakaranaidev/koware/internal/providers/http"
	"github.com/wakaranaidev/koware/internal/providers/utils"
	"github.com/wakaranaidev/koware/pkg/extractors"
	"github.com/wakaranaidev/koware/pkg/types"
)

// Name is the provider name and id namespace for HiAnime-backed entries.
const Name = "hianime"

// Config holds the HiAnime provider settings.
type Config struct {
	BaseURL         string
	PreferredServer string // server name or data-server-id to prefer
	SearchLimit     int
}

// HiAnime is the HTML-scraping catalog provider. It talks to the site's
// AJAX endpoints and resolves streams through the MegaCloud extractor.
type HiAnime struct {
	cfg       Config
	client    *providerhttp.Client
	extractor extractors.Extractor
	logger    *slog.Logger
}

// New creates a HiAnime provider.
func New(cfg Config, client *providerhttp.Client, extractor extractors.Extractor, logger *slog.Logger) *HiAnime {
	if cfg.SearchLimit == 0 {
		cfg.SearchLimit = 30
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HiAnime{cfg: cfg, client: client, extractor: extractor, logger: logger}
}

func (h *HiAnime) Name() string { return Name }

// IsConfigured reports whether the site base URL is set.
func (h *HiAnime) IsConfigured() bool {
	return h.cfg.BaseURL != ""
}

// Search queries the site's suggest endpoint and scrapes the result anchors.
func (h *HiAnime) Search(ctx context.Context, query string, filters types.SearchFilters) ([]types.Anime, error) {
	if !h.IsConfigured() {
		h.logger.Warn("hianime provider not configured, skipping search")
		return []types.Anime{}, nil
	}
	if strings.TrimSpace(query) == "" && filters.IsZero() {
		return h.BrowsePopular(ctx, filters)
	}

	searchURL := fmt.Sprintf("%s/ajax/search/suggest?keyword=%s", h.cfg.BaseURL, url.QueryEscape(query))
	resp, err := h.client.Get(ctx, searchURL, h.ajaxHeaders())
	if err != nil {
		return nil, fmt.Errorf("hianime search: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("hianime search: status %d", resp.StatusCode())
	}

	return h.parseAnimeAnchors(unwrapHTML(resp.Body()))
}

// BrowsePopular scrapes the site's home page for its trending list.
func (h *HiAnime) BrowsePopular(ctx context.Context, _ types.SearchFilters) ([]types.Anime, error) {
	if !h.IsConfigured() {
		h.logger.Warn("hianime provider not configured, skipping browse")
		return []types.Anime{}, nil
	}

	resp, err := h.client.Get(ctx, h.cfg.BaseURL+"/home", nil)
	if err != nil {
		return nil, fmt.Errorf("hianime browse: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("hianime browse: status %d", resp.StatusCode())
	}

	return h.parseAnimeAnchors(unwrapHTML(resp.Body()))
}

// parseAnimeAnchors extracts anime entries from anchor tags, normalizing
// slugs and deduplicating them case-insensitively.
func (h *HiAnime) parseAnimeAnchors(html string) ([]types.Anime, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var results []types.Anime
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		slug := normalizeSlug(href)
		if slug == "" {
			return
		}

		title := utils.CleanText(s.AttrOr("title", ""))
		if title == "" {
			title = utils.CleanText(s.Text())
		}
		if title == "" {
			return
		}

		results = append(results, types.Anime{
			ID:      types.NamespacedAnimeID(Name, slug),
			Title:   title,
			PageURL: fmt.Sprintf("%s/watch/%s", h.cfg.BaseURL, slug),
		})
	})

	results = lo.UniqBy(results, func(a types.Anime) string {
		return strings.ToLower(a.ID.Raw())
	})
	if len(results) > h.cfg.SearchLimit {
		results = results[:h.cfg.SearchLimit]
	}
	return results, nil
}

var slugIDRe = regexp.MustCompile(`\d+`)

// normalizeSlug turns an anchor href into a canonical anime slug: leading
// slash and "watch/" prefix stripped, query string dropped. Hrefs without a
// trailing numeric id are not anime detail links and come back empty.
func normalizeSlug(href string) string {
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	if u, err := url.Parse(href); err == nil {
		href = u.Path
	}
	slug := strings.TrimPrefix(href, "/")
	slug = strings.TrimPrefix(slug, "watch/")
	if slug == "" || strings.Contains(slug, "/") {
		return ""
	}
	if slugNumericID(slug) == "" {
		return ""
	}
	return slug
}

// slugNumericID returns the last run of digits in a slug, the site's
// internal numeric id.
func slugNumericID(slug string) string {
	matches := slugIDRe.FindAllString(slug, -1)
	if len(matches) == 0 {
		return ""
	}
	return matches[len(matches)-1]
}

// GetEpisodes resolves the slug's numeric id and scrapes the AJAX episode
// list. Items missing a data-id or data-number are skipped.
func (h *HiAnime) GetEpisodes(ctx context.Context, anime types.Anime) ([]types.Episode, error) {
	if !h.IsConfigured() {
		h.logger.Warn("hianime provider not configured, skipping episodes")
		return []types.Episode{}, nil
	}

	slug := anime.ID.Raw()
	numericID := slugNumericID(slug)
	if numericID == "" {
		return nil, fmt.Errorf("no numeric id in slug %q", slug)
	}

	listURL := fmt.Sprintf("%s/ajax/v2/episode/list/%s", h.cfg.BaseURL, numericID)
	resp, err := h.client.Get(ctx, listURL, h.ajaxHeaders())
	if err != nil {
		return nil, fmt.Errorf("hianime episode list: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("hianime episode list: status %d", resp.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(unwrapHTML(resp.Body())))
	if err != nil {
		return nil, fmt.Errorf("parse episode list: %w", err)
	}

	seen := make(map[int]bool)
	var episodes []types.Episode
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		epID, okID := s.Attr("data-id")
		epNum, okNum := s.Attr("data-number")
		if !okID || !okNum || epID == "" {
			return
		}
		num := utils.ParseInt(epNum)
		if num < 1 || seen[num] {
			return
		}
		seen[num] = true
		episodes = append(episodes, types.Episode{
			ID:      types.NamespacedEpisodeID(Name, epID),
			Title:   utils.CleanText(s.AttrOr("title", "")),
			Number:  num,
			PageURL: fmt.Sprintf("%s/watch/%s?ep=%s", h.cfg.BaseURL, slug, epID),
		})
	})

	sort.Slice(episodes, func(i, j int) bool { return episodes[i].Number < episodes[j].Number })
	return episodes, nil
}

// server is one entry of the AJAX server list.
type server struct {
	DataID   string
	Type     string // "sub" or "dub"
	ServerID string
	Label    string
}

// GetStreams picks a server for the episode and resolves its sources,
// falling back to a bare embed link when extraction fails. Zero links is a
// valid outcome.
func (h *HiAnime) GetStreams(ctx context.Context, episode types.Episode) ([]types.StreamLink, error) {
	if !h.IsConfigured() {
		h.logger.Warn("hianime provider not configured, skipping streams")
		return []types.StreamLink{}, nil
	}

	servers, err := h.fetchServers(ctx, episode.ID.Raw())
	if err != nil {
		return nil, err
	}
	if len(servers) == 0 {
		return []types.StreamLink{}, nil
	}

	chosen := h.selectServer(servers)
	links, err := h.resolveServer(ctx, chosen)
	if err != nil {
		h.logger.Warn("hianime stream resolution failed", "server", chosen.Label, "error", err)
		return []types.StreamLink{}, nil
	}
	return providers.RankStreams(links), nil
}

func (h *HiAnime) fetchServers(ctx context.Context, episodeID string) ([]server, error) {
	serversURL := fmt.Sprintf("%s/ajax/v2/episode/servers?episodeId=%s", h.cfg.BaseURL, url.QueryEscape(episodeID))
	resp, err := h.client.Get(ctx, serversURL, h.ajaxHeaders())
	if err != nil {
		return nil, fmt.Errorf("hianime servers: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("hianime servers: status %d", resp.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(unwrapHTML(resp.Body())))
	if err != nil {
		return nil, fmt.Errorf("parse server list: %w", err)
	}

	var servers []server
	doc.Find(".server-item").Each(func(_ int, s *goquery.Selection) {
		dataID, ok := s.Attr("data-id")
		if !ok || dataID == "" {
			return
		}
		label := utils.CleanText(s.Find("a").First().Text())
		if label == "" {
			label = utils.CleanText(s.Text())
		}
		servers = append(servers, server{
			DataID:   dataID,
			Type:     strings.ToLower(strings.TrimSpace(s.AttrOr("data-type", ""))),
			ServerID: strings.TrimSpace(s.AttrOr("data-server-id", "")),
			Label:    label,
		})
	})
	return servers, nil
}

// selectServer applies the selection policy: the preferred server among sub
// entries, else the first sub entry, else the first entry of any type.
func (h *HiAnime) selectServer(servers []server) server {
	preferred := strings.ToLower(h.cfg.PreferredServer)
	var firstSub *server
	for i := range servers {
		s := &servers[i]
		if s.Type != "sub" {
			continue
		}
		if firstSub == nil {
			firstSub = s
		}
		if preferred != "" && (strings.ToLower(s.Label) == preferred || s.ServerID == h.cfg.PreferredServer) {
			return *s
		}
	}
	if firstSub != nil {
		return *firstSub
	}
	return servers[0]
}

type sourcesPayload struct {
	Type    string          `json:"type"`
	Link    string          `json:"link"`
	Sources json.RawMessage `json:"sources"`
	Tracks  []struct {
		File    string `json:"file"`
		URL     string `json:"url"`
		Label   string `json:"label"`
		Kind    string `json:"kind"`
		SrcLang string `json:"srclang"`
	} `json:"tracks"`
}

// resolveServer fetches the chosen server's sources payload. Clear sources
// arrays are used directly; an embed link goes through the MegaCloud
// extractor, with the embed URL itself as the last-resort "auto" stream.
func (h *HiAnime) resolveServer(ctx context.Context, srv server) ([]types.StreamLink, error) {
	sourcesURL := fmt.Sprintf("%s/ajax/v2/episode/sources?id=%s", h.cfg.BaseURL, url.QueryEscape(srv.DataID))
	resp, err := h.client.Get(ctx, sourcesURL, h.ajaxHeaders())
	if err != nil {
		return nil, fmt.Errorf("hianime sources: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("hianime sources: status %d", resp.StatusCode())
	}

	var payload sourcesPayload
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, fmt.Errorf("parse sources payload: %w", err)
	}

	if links := h.parseDirectSources(payload, srv); len(links) > 0 {
		return links, nil
	}

	if payload.Link == "" {
		return nil, fmt.Errorf("server %s returned neither sources nor an embed link", srv.Label)
	}

	links, err := h.extractor.Extract(ctx, payload.Link)
	if err != nil {
		h.logger.Debug("embed extraction failed, falling back to embed url", "embed", payload.Link, "error", err)
		links = nil
	}
	for i := range links {
		links[i].Source = srv.Label
		links[i].HostScore = providers.HostScore(links[i].URL)
	}
	if len(links) == 0 {
		links = []types.StreamLink{{
			URL:       payload.Link,
			Quality:   "auto",
			Source:    srv.Label,
			Referer:   h.cfg.BaseURL,
			HostScore: providers.HostScore(payload.Link),
		}}
	}
	return links, nil
}

// parseDirectSources handles payloads that already carry a clear sources
// array.
func (h *HiAnime) parseDirectSources(payload sourcesPayload, srv server) []types.StreamLink {
	if len(payload.Sources) == 0 {
		return nil
	}
	var entries []struct {
		File  string `json:"file"`
		URL   string `json:"url"`
		Type  string `json:"type"`
		Label string `json:"label"`
	}
	if err := json.Unmarshal(payload.Sources, &entries); err != nil {
		return nil
	}

	var subtitles []types.SubtitleTrack
	for _, t := range payload.Tracks {
		if t.Kind == "thumbnails" {
			continue
		}
		u := t.File
		if u == "" {
			u = t.URL
		}
		if u == "" {
			continue
		}
		label := t.Label
		if label == "" {
			label = t.Kind
		}
		subtitles = append(subtitles, types.SubtitleTrack{Label: label, URL: u, Lang: t.SrcLang})
	}

	var links []types.StreamLink
	for _, e := range entries {
		fileURL := e.File
		if fileURL == "" {
			fileURL = e.URL
		}
		if fileURL == "" {
			continue
		}
		links = append(links, types.StreamLink{
			URL:       fileURL,
			Quality:   guessQuality(e.Label),
			Source:    srv.Label,
			Referer:   h.cfg.BaseURL,
			Subtitles: subtitles,
			HostScore: providers.HostScore(fileURL),
		})
	}
	return links
}

// guessQuality labels a direct source by substring-matching the common
// heights; HLS-typed and unlabeled entries come back as "auto".
func guessQuality(label string) string {
	for _, q := range []string{"1080", "720", "480", "360"} {
		if strings.Contains(label, q) {
			return q + "p"
		}
	}
	return "auto"
}

// ajaxHeaders are the headers the site's AJAX endpoints expect.
func (h *HiAnime) ajaxHeaders() map[string]string {
	return map[string]string{
		"Referer":          h.cfg.BaseURL + "/",
		"X-Requested-With": "XMLHttpRequest",
	}
}

// unwrapHTML extracts the "html" field of a JSON-wrapped AJAX payload, or
// returns the payload as-is when it is plain HTML.
func unwrapHTML(body []byte) string {
	var wrapped struct {
		Status bool   `json:"status"`
		HTML   string `json:"html"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.HTML != "" {
		return wrapped.HTML
	}
	return string(body)
}
