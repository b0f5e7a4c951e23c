package providers

import (
	"context"
	"log/slog"

	"github.com/wakaranaidev/koware/pkg/types"
)

// Composite wraps a primary and a secondary catalog and falls back from one
// to the other per operation. A provider failure is a fallback trigger, never
// a caller-visible error; the worst case is an empty result with a logged
// warning.
type Composite struct {
	primary   Catalog
	secondary Catalog
	enabled   map[string]bool
	logger    *slog.Logger
}

// NewComposite builds a composite catalog. The enabled map toggles providers
// by name; a provider missing from the map counts as enabled.
func NewComposite(primary, secondary Catalog, enabled map[string]bool, logger *slog.Logger) *Composite {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composite{
		primary:   primary,
		secondary: secondary,
		enabled:   enabled,
		logger:    logger,
	}
}

func (c *Composite) Name() string { return "composite" }

// IsConfigured reports whether at least one wrapped provider can serve calls.
func (c *Composite) IsConfigured() bool {
	return c.usable(c.primary) || c.usable(c.secondary)
}

func (c *Composite) usable(p Catalog) bool {
	if p == nil || !p.IsConfigured() {
		return false
	}
	if on, ok := c.enabled[p.Name()]; ok && !on {
		return false
	}
	return true
}

// Search tries the primary provider first and falls back to the secondary
// when the primary is disabled, fails, or comes back empty.
func (c *Composite) Search(ctx context.Context, query string, filters types.SearchFilters) ([]types.Anime, error) {
	run := func(p Catalog) []types.Anime {
		if !c.usable(p) {
			return nil
		}
		results, err := p.Search(ctx, query, filters)
		if err != nil {
			c.logger.Warn("provider search failed, falling back", "provider", p.Name(), "error", err)
			return nil
		}
		return results
	}

	if results := run(c.primary); len(results) > 0 {
		return results, nil
	}
	if results := run(c.secondary); len(results) > 0 {
		return results, nil
	}
	if !c.IsConfigured() {
		c.logger.Warn("no enabled providers for search")
	}
	return []types.Anime{}, nil
}

// BrowsePopular mirrors Search's fallback policy.
func (c *Composite) BrowsePopular(ctx context.Context, filters types.SearchFilters) ([]types.Anime, error) {
	run := func(p Catalog) []types.Anime {
		if !c.usable(p) {
			return nil
		}
		results, err := p.BrowsePopular(ctx, filters)
		if err != nil {
			c.logger.Warn("provider browse failed, falling back", "provider", p.Name(), "error", err)
			return nil
		}
		return results
	}

	if results := run(c.primary); len(results) > 0 {
		return results, nil
	}
	if results := run(c.secondary); len(results) > 0 {
		return results, nil
	}
	if !c.IsConfigured() {
		c.logger.Warn("no enabled providers for browse")
	}
	return []types.Anime{}, nil
}

// GetEpisodes routes by the anime id's namespace when it names a wrapped
// provider; otherwise it tries primary then secondary.
func (c *Composite) GetEpisodes(ctx context.Context, anime types.Anime) ([]types.Episode, error) {
	if owner := c.ownerOf(anime.ID.Namespace()); owner != nil {
		if !c.usable(owner) {
			c.logger.Warn("owning provider disabled", "provider", owner.Name(), "anime", anime.ID)
			return []types.Episode{}, nil
		}
		return owner.GetEpisodes(ctx, anime)
	}

	run := func(p Catalog) []types.Episode {
		if !c.usable(p) {
			return nil
		}
		eps, err := p.GetEpisodes(ctx, anime)
		if err != nil {
			c.logger.Warn("provider episodes failed, falling back", "provider", p.Name(), "error", err)
			return nil
		}
		return eps
	}

	if eps := run(c.primary); len(eps) > 0 {
		return eps, nil
	}
	if eps := run(c.secondary); len(eps) > 0 {
		return eps, nil
	}
	if !c.IsConfigured() {
		c.logger.Warn("no enabled providers for episodes")
	}
	return []types.Episode{}, nil
}

// GetStreams routes like GetEpisodes, keyed by the episode id's namespace.
func (c *Composite) GetStreams(ctx context.Context, episode types.Episode) ([]types.StreamLink, error) {
	if owner := c.ownerOf(episode.ID.Namespace()); owner != nil {
		if !c.usable(owner) {
			c.logger.Warn("owning provider disabled", "provider", owner.Name(), "episode", episode.ID)
			return []types.StreamLink{}, nil
		}
		return owner.GetStreams(ctx, episode)
	}

	run := func(p Catalog) []types.StreamLink {
		if !c.usable(p) {
			return nil
		}
		links, err := p.GetStreams(ctx, episode)
		if err != nil {
			c.logger.Warn("provider streams failed, falling back", "provider", p.Name(), "error", err)
			return nil
		}
		return links
	}

	if links := run(c.primary); len(links) > 0 {
		return links, nil
	}
	if links := run(c.secondary); len(links) > 0 {
		return links, nil
	}
	if !c.IsConfigured() {
		c.logger.Warn("no enabled providers for streams")
	}
	return []types.StreamLink{}, nil
}

// ownerOf maps an id namespace back to the wrapped provider that owns it.
func (c *Composite) ownerOf(namespace string) Catalog {
	if namespace == "" {
		return nil
	}
	if c.primary != nil && c.primary.Name() == namespace {
		return c.primary
	}
	if c.secondary != nil && c.secondary.Name() == namespace {
		return c.secondary
	}
	return nil
}
