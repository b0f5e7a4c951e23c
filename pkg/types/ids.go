package types

import "strings"

// AnimeID and EpisodeID are opaque identifiers. By convention they carry a
// provider namespace prefix ("allanime:...") so the composite catalog can
// route an id back to the provider that produced it. The prefix convention
// lives entirely in this file; call sites never split ids by hand.
type (
	AnimeID   string
	EpisodeID string
)

const namespaceSep = ":"

// NamespacedAnimeID builds an AnimeID tagged with its provider namespace.
func NamespacedAnimeID(provider, raw string) AnimeID {
	return AnimeID(provider + namespaceSep + raw)
}

// NamespacedEpisodeID builds an EpisodeID tagged with its provider namespace.
func NamespacedEpisodeID(provider, raw string) EpisodeID {
	return EpisodeID(provider + namespaceSep + raw)
}

// Namespace returns the provider namespace of the id, or "" if it has none.
func (id AnimeID) Namespace() string { return idNamespace(string(id)) }

// Raw returns the id without its provider namespace.
func (id AnimeID) Raw() string { return idRaw(string(id)) }

// Namespace returns the provider namespace of the id, or "" if it has none.
func (id EpisodeID) Namespace() string { return idNamespace(string(id)) }

// Raw returns the id without its provider namespace.
func (id EpisodeID) Raw() string { return idRaw(string(id)) }

func idNamespace(id string) string {
	ns, _, ok := strings.Cut(id, namespaceSep)
	if !ok {
		return ""
	}
	return ns
}

func idRaw(id string) string {
	_, rest, ok := strings.Cut(id, namespaceSep)
	if !ok {
		return id
	}
	return rest
}
