package allanime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wakaranaidev/koware/internal/providers"
	providerhttp "github.com/wakaranaidev/koware/internal/providers/http"
	"github.com/wakaranaidev/koware/internal/providers/utils"
	"github.com/wakaranaidev/koware/pkg/types"
)

// Name is the provider name and id namespace for AllAnime-backed entries.
const Name = "allanime"

const (
	sourceTimeout   = 5 * time.Second
	manifestTimeout = 10 * time.Second
)

// Config holds the AllAnime provider settings.
type Config struct {
	BaseURL         string // site base, used as Referer and for page URLs
	APIURL          string // GraphQL API base
	SourceBaseURL   string // host that relative decoded source paths resolve against
	TranslationType string // "sub" or "dub"
	SearchLimit     int
}

// AllAnime is the GraphQL-backed catalog provider.
type AllAnime struct {
	cfg    Config
	client *providerhttp.Client
	logger *slog.Logger
}

// New creates an AllAnime provider.
func New(cfg Config, client *providerhttp.Client, logger *slog.Logger) *AllAnime {
	if cfg.TranslationType == "" {
		cfg.TranslationType = "sub"
	}
	if cfg.SearchLimit == 0 {
		cfg.SearchLimit = 40
	}
	if cfg.SourceBaseURL == "" {
		cfg.SourceBaseURL = "https://allanime.day"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AllAnime{cfg: cfg, client: client, logger: logger}
}

func (a *AllAnime) Name() string { return Name }

// IsConfigured reports whether both the site base and the API base are set.
func (a *AllAnime) IsConfigured() bool {
	return a.cfg.BaseURL != "" && a.cfg.APIURL != ""
}

const searchGQL = `query($search: SearchInput, $limit: Int, $page: Int, $translationType: VaildTranslationTypeEnumType, $countryOrigin: VaildCountryOriginEnumType) {
	shows(search: $search, limit: $limit, page: $page, translationType: $translationType, countryOrigin: $countryOrigin) {
		edges {
			_id
			name
		}
	}
}`

const episodesGQL = `query($showId: String!) {
	show(_id: $showId) {
		_id
		availableEpisodesDetail
	}
}`

const sourcesGQL = `query($showId: String!, $translationType: VaildTranslationTypeEnumType!, $episodeString: String!) {
	episode(showId: $showId, translationType: $translationType, episodeString: $episodeString) {
		episodeString
		sourceUrls
	}
}`

type searchResponse struct {
	Data struct {
		Shows struct {
			Edges []struct {
				ID   string `json:"_id"`
				Name string `json:"name"`
			} `json:"edges"`
		} `json:"shows"`
	} `json:"data"`
}

type episodesResponse struct {
	Data struct {
		Show struct {
			ID                      string         `json:"_id"`
			AvailableEpisodesDetail map[string]any `json:"availableEpisodesDetail"`
		} `json:"show"`
	} `json:"data"`
}

type sourcesResponse struct {
	Data struct {
		Episode struct {
			SourceUrls []struct {
				SourceName string `json:"sourceName"`
				SourceURL  string `json:"sourceUrl"`
			} `json:"sourceUrls"`
		} `json:"episode"`
	} `json:"data"`
}

// Search finds shows matching the query. An empty query with no filters
// behaves like BrowsePopular.
func (a *AllAnime) Search(ctx context.Context, query string, filters types.SearchFilters) ([]types.Anime, error) {
	if !a.IsConfigured() {
		a.logger.Warn("allanime provider not configured, skipping search")
		return []types.Anime{}, nil
	}
	if strings.TrimSpace(query) == "" && filters.IsZero() {
		return a.BrowsePopular(ctx, filters)
	}

	variables := a.searchVariables(query, filters)

	var resp searchResponse
	if err := a.gql(ctx, searchGQL, variables, &resp); err != nil {
		return nil, fmt.Errorf("allanime search: %w", err)
	}

	results := make([]types.Anime, 0, len(resp.Data.Shows.Edges))
	for _, edge := range resp.Data.Shows.Edges {
		if edge.ID == "" {
			continue
		}
		title := utils.CleanText(edge.Name)
		if title == "" {
			title = edge.ID
		}
		results = append(results, types.Anime{
			ID:      types.NamespacedAnimeID(Name, edge.ID),
			Title:   title,
			PageURL: fmt.Sprintf("%s/anime/%s", a.cfg.BaseURL, edge.ID),
		})
	}
	return results, nil
}

// BrowsePopular returns the provider's default listing, capped to the
// configured search limit.
func (a *AllAnime) BrowsePopular(ctx context.Context, filters types.SearchFilters) ([]types.Anime, error) {
	if !a.IsConfigured() {
		a.logger.Warn("allanime provider not configured, skipping browse")
		return []types.Anime{}, nil
	}

	variables := a.searchVariables("", filters)

	var resp searchResponse
	if err := a.gql(ctx, searchGQL, variables, &resp); err != nil {
		return nil, fmt.Errorf("allanime browse: %w", err)
	}

	results := make([]types.Anime, 0, len(resp.Data.Shows.Edges))
	for _, edge := range resp.Data.Shows.Edges {
		if edge.ID == "" {
			continue
		}
		if len(results) >= a.cfg.SearchLimit {
			break
		}
		title := utils.CleanText(edge.Name)
		if title == "" {
			title = edge.ID
		}
		results = append(results, types.Anime{
			ID:      types.NamespacedAnimeID(Name, edge.ID),
			Title:   title,
			PageURL: fmt.Sprintf("%s/anime/%s", a.cfg.BaseURL, edge.ID),
		})
	}
	return results, nil
}

// searchVariables maps the generic filters onto AllAnime's GraphQL enums.
func (a *AllAnime) searchVariables(query string, filters types.SearchFilters) map[string]any {
	search := map[string]any{
		"allowAdult":   false,
		"allowUnknown": false,
	}
	if strings.TrimSpace(query) != "" {
		search["query"] = query
	}
	if len(filters.Genres) > 0 {
		search["genres"] = filters.Genres
	}
	if filters.Year > 0 {
		search["year"] = filters.Year
	}
	switch filters.Status {
	case types.StatusOngoing:
		search["status"] = "Releasing"
	case types.StatusCompleted:
		search["status"] = "Finished"
	case types.StatusUpcoming:
		search["status"] = "Not Yet Released"
	}
	if filters.Sort != "" {
		search["sortBy"] = filters.Sort
	}

	country := strings.ToUpper(filters.CountryOrigin)
	switch country {
	case "JP", "KR", "CN":
	default:
		country = "ALL"
	}

	return map[string]any{
		"search":          search,
		"limit":           a.cfg.SearchLimit,
		"page":            1,
		"translationType": a.cfg.TranslationType,
		"countryOrigin":   country,
	}
}

// GetEpisodes lists the available episodes for the configured translation
// type, sorted ascending. Non-numeric or duplicate entries are skipped.
func (a *AllAnime) GetEpisodes(ctx context.Context, anime types.Anime) ([]types.Episode, error) {
	if !a.IsConfigured() {
		a.logger.Warn("allanime provider not configured, skipping episodes")
		return []types.Episode{}, nil
	}

	showID := anime.ID.Raw()
	var resp episodesResponse
	if err := a.gql(ctx, episodesGQL, map[string]string{"showId": showID}, &resp); err != nil {
		return nil, fmt.Errorf("allanime episodes: %w", err)
	}

	detail := findTranslationDetail(resp.Data.Show.AvailableEpisodesDetail, a.cfg.TranslationType)
	entries, ok := detail.([]any)
	if !ok {
		return []types.Episode{}, nil
	}

	seen := make(map[int]bool, len(entries))
	episodes := make([]types.Episode, 0, len(entries))
	for _, entry := range entries {
		s, ok := entry.(string)
		if !ok {
			continue
		}
		num := utils.ParseInt(s)
		if num < 1 || seen[num] {
			continue
		}
		seen[num] = true
		episodes = append(episodes, types.Episode{
			ID:      types.NamespacedEpisodeID(Name, fmt.Sprintf("%s:ep-%d", showID, num)),
			Title:   fmt.Sprintf("Episode %d", num),
			Number:  num,
			PageURL: fmt.Sprintf("%s/anime/%s", a.cfg.BaseURL, showID),
		})
	}

	sort.Slice(episodes, func(i, j int) bool { return episodes[i].Number < episodes[j].Number })
	return episodes, nil
}

// findTranslationDetail looks up the translation type case-insensitively in
// the availableEpisodesDetail map.
func findTranslationDetail(detail map[string]any, translationType string) any {
	for key, value := range detail {
		if strings.EqualFold(key, translationType) {
			return value
		}
	}
	return nil
}

type sourceRef struct {
	Name string
	URL  string
}

// GetStreams resolves every provider-reported source concurrently and
// returns the deduplicated, ranked links. A source that fails or times out
// is dropped without affecting the others; zero links is a valid outcome.
func (a *AllAnime) GetStreams(ctx context.Context, episode types.Episode) ([]types.StreamLink, error) {
	if !a.IsConfigured() {
		a.logger.Warn("allanime provider not configured, skipping streams")
		return []types.StreamLink{}, nil
	}

	showID, episodeStr, err := splitEpisodeID(episode.ID)
	if err != nil {
		return nil, err
	}

	variables := map[string]string{
		"showId":          showID,
		"translationType": a.cfg.TranslationType,
		"episodeString":   episodeStr,
	}
	var resp sourcesResponse
	if err := a.gql(ctx, sourcesGQL, variables, &resp); err != nil {
		return nil, fmt.Errorf("allanime sources: %w", err)
	}

	sources := make([]sourceRef, 0, len(resp.Data.Episode.SourceUrls))
	for _, s := range resp.Data.Episode.SourceUrls {
		decoded := decodeSourceURL(s.SourceURL)
		if decoded == "" {
			continue
		}
		if !strings.HasPrefix(decoded, "http://") && !strings.HasPrefix(decoded, "https://") {
			if !strings.HasPrefix(decoded, "/") {
				decoded = "/" + decoded
			}
			decoded = strings.TrimSuffix(a.cfg.SourceBaseURL, "/") + decoded
		}
		sources = append(sources, sourceRef{Name: s.SourceName, URL: decoded})
	}

	var (
		mu    sync.Mutex
		links []types.StreamLink
		wg    sync.WaitGroup
	)
	for _, src := range sources {
		wg.Add(1)
		go func(src sourceRef) {
			defer wg.Done()
			got := a.resolveSource(ctx, src)
			if len(got) == 0 {
				return
			}
			mu.Lock()
			links = append(links, got...)
			mu.Unlock()
		}(src)
	}
	wg.Wait()

	return providers.RankStreams(links), nil
}

// resolveSource fetches one source payload under its own timeout and turns
// it into stream links, expanding coarse HLS entries into per-quality
// variants.
func (a *AllAnime) resolveSource(ctx context.Context, src sourceRef) []types.StreamLink {
	srcCtx, cancel := context.WithTimeout(ctx, sourceTimeout)
	defer cancel()

	resp, err := a.client.Get(srcCtx, src.URL, map[string]string{"Referer": a.cfg.BaseURL})
	if err != nil {
		a.logger.Debug("allanime source fetch failed", "source", src.Name, "error", err)
		return nil
	}
	if resp.IsError() {
		a.logger.Debug("allanime source returned error status", "source", src.Name, "status", resp.StatusCode())
		return nil
	}

	var payload any
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		a.logger.Debug("allanime source payload unparseable", "source", src.Name, "error", err)
		return nil
	}

	extracted := extractPayloadLinks(payload)
	var links []types.StreamLink
	for _, raw := range extracted.Links {
		link := types.StreamLink{
			URL:       raw.URL,
			Quality:   raw.Quality,
			Source:    src.Name,
			Referer:   extracted.Referer,
			Subtitles: extracted.Subtitles,
			HostScore: providers.HostScore(raw.URL),
		}
		if needsHLSExpansion(link) {
			links = append(links, a.expandHLS(ctx, link)...)
		} else {
			links = append(links, link)
		}
	}
	return links
}

// needsHLSExpansion reports whether a link's quality is too coarse to rank
// and its URL points at an HLS manifest.
func needsHLSExpansion(link types.StreamLink) bool {
	switch strings.ToLower(link.Quality) {
	case "hls", "auto", "":
	default:
		return false
	}
	u, err := url.Parse(link.URL)
	if err != nil {
		return false
	}
	return strings.Contains(u.Path, ".m3u8")
}

// expandHLS fetches the master playlist behind link and replaces it with one
// link per variant. The manifest fetch has its own timeout, independent of
// the per-source budget. When nothing parses the original link is kept as a
// single "auto" stream.
func (a *AllAnime) expandHLS(ctx context.Context, link types.StreamLink) []types.StreamLink {
	fallback := link
	fallback.Quality = "auto"

	mCtx, cancel := context.WithTimeout(ctx, manifestTimeout)
	defer cancel()

	headers := map[string]string{"Referer": a.cfg.BaseURL}
	if link.Referer != "" {
		headers["Referer"] = link.Referer
	}
	resp, err := a.client.Get(mCtx, link.URL, headers)
	if err != nil || resp.IsError() {
		return []types.StreamLink{fallback}
	}

	variants, subs := parseMasterPlaylist(resp.String(), link.URL)
	if len(variants) == 0 {
		return []types.StreamLink{fallback}
	}

	tracks := link.Subtitles
	for _, s := range subs {
		tracks = append(tracks, types.SubtitleTrack{Label: s.Name, URL: s.URL, Lang: s.Lang})
	}

	links := make([]types.StreamLink, 0, len(variants))
	for _, v := range variants {
		quality := v.Quality
		if quality == "" {
			quality = "auto"
		}
		links = append(links, types.StreamLink{
			URL:       v.URL,
			Quality:   quality,
			Source:    link.Source,
			Referer:   link.Referer,
			Subtitles: tracks,
			HostScore: providers.HostScore(v.URL),
		})
	}
	return links
}

// splitEpisodeID reverses the "{showId}:ep-{number}" encoding used by
// GetEpisodes.
func splitEpisodeID(id types.EpisodeID) (showID, episodeStr string, err error) {
	raw := id.Raw()
	idx := strings.LastIndex(raw, ":ep-")
	if idx < 1 {
		return "", "", fmt.Errorf("malformed allanime episode id: %q", string(id))
	}
	return raw[:idx], raw[idx+len(":ep-"):], nil
}

// gql issues a GraphQL query as a GET request with the query and variables
// URL-encoded in the query string, the way the AllAnime API expects.
func (a *AllAnime) gql(ctx context.Context, query string, variables any, out any) error {
	variablesJSON, err := json.Marshal(variables)
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}

	reqURL := fmt.Sprintf("%s/api?variables=%s&query=%s",
		strings.TrimSuffix(a.cfg.APIURL, "/"),
		url.QueryEscape(string(variablesJSON)),
		url.QueryEscape(query))

	resp, err := a.client.Get(ctx, reqURL, map[string]string{"Referer": a.cfg.BaseURL})
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("api returned status %d", resp.StatusCode())
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("parse api response: %w", err)
	}
	return nil
}
