package types

// MediaStatus filters search results by airing status
type MediaStatus string

const (
	StatusAny       MediaStatus = ""
	StatusOngoing   MediaStatus = "ONGOING"
	StatusCompleted MediaStatus = "COMPLETED"
	StatusUpcoming  MediaStatus = "UPCOMING"
)

// SearchFilters narrows a catalog search. The zero value means "no filter"
// and must behave identically to passing no filters at all.
type SearchFilters struct {
	Genres        []string    `json:"genres,omitempty"`
	Year          int         `json:"year,omitempty"`
	Status        MediaStatus `json:"status,omitempty"`
	CountryOrigin string      `json:"country_origin,omitempty"` // JP, KR, CN or ALL
	Sort          string      `json:"sort,omitempty"`
}

// IsZero reports whether no filter field is set.
func (f SearchFilters) IsZero() bool {
	return len(f.Genres) == 0 && f.Year == 0 && f.Status == StatusAny &&
		f.CountryOrigin == "" && f.Sort == ""
}

// Anime is a single catalog entry. Episodes is always empty after a search;
// it is only populated by an explicit GetEpisodes call.
type Anime struct {
	ID       AnimeID   `json:"id"`
	Title    string    `json:"title"`
	Synopsis string    `json:"synopsis,omitempty"`
	CoverURL string    `json:"cover_url,omitempty"`
	PageURL  string    `json:"page_url,omitempty"`
	Episodes []Episode `json:"episodes,omitempty"`
}

// Episode is a single watchable episode. Number is 1-based and strictly
// positive; numbers are not guaranteed contiguous.
type Episode struct {
	ID      EpisodeID `json:"id"`
	Title   string    `json:"title,omitempty"`
	Number  int       `json:"number"`
	PageURL string    `json:"page_url,omitempty"`
}

// SubtitleTrack is one soft-subtitle track attached to a stream.
type SubtitleTrack struct {
	Label string `json:"label"`
	URL   string `json:"url"`
	Lang  string `json:"lang,omitempty"`
}

// StreamLink is a resolved, playable stream. Two links with the same URL are
// duplicates; dedup keeps the one with the higher HostScore.
type StreamLink struct {
	URL       string          `json:"url"`
	Quality   string          `json:"quality"` // "1080p", "auto", "hls", ...
	Source    string          `json:"source"`
	Referer   string          `json:"referer,omitempty"`
	Subtitles []SubtitleTrack `json:"subtitles,omitempty"`
	HostScore int             `json:"host_score"`
}

// NeedsSoftSubs reports whether the player must load external subtitle tracks.
func (s StreamLink) NeedsSoftSubs() bool {
	return len(s.Subtitles) > 0
}
