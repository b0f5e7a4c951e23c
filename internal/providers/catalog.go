package providers

import (
	"context"

	"github.com/wakaranaidev/koware/pkg/types"
)

// Catalog is the capability contract every content provider implements.
//
// Network failures during a search or browse surface as errors so callers can
// decide fallback semantics; an empty, non-nil result always means "nothing
// found" rather than "something broke". GetStreams returning zero links is a
// valid outcome (no sources resolvable) and is distinct from an error.
type Catalog interface {
	// Name is the stable provider name, also used as the id namespace.
	Name() string

	// IsConfigured reports whether the provider has enough configuration to
	// issue network calls. Unconfigured providers answer every operation
	// with an empty result.
	IsConfigured() bool

	// Search finds anime matching the query. An empty or whitespace query
	// with zero filters behaves like BrowsePopular.
	Search(ctx context.Context, query string, filters types.SearchFilters) ([]types.Anime, error)

	// BrowsePopular returns the provider's trending/home list, capped to the
	// provider's configured limit.
	BrowsePopular(ctx context.Context, filters types.SearchFilters) ([]types.Anime, error)

	// GetEpisodes lists the episodes of an anime, sorted ascending by
	// number. Malformed entries are skipped, not fatal.
	GetEpisodes(ctx context.Context, anime types.Anime) ([]types.Episode, error)

	// GetStreams resolves the playable stream links for an episode,
	// deduplicated and ranked best-first.
	GetStreams(ctx context.Context, episode types.Episode) ([]types.StreamLink, error)
}
