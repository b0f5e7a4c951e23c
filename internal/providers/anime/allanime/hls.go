package allanime

import (
	"fmt"
	"net/url"
	"strings"
)

// hlsVariant is one #EXT-X-STREAM-INF entry of a master playlist.
type hlsVariant struct {
	URL     string
	Quality string // "{height}p", or "" when the manifest has no resolution
}

// hlsSubtitle is one #EXT-X-MEDIA TYPE=SUBTITLES rendition.
type hlsSubtitle struct {
	Name string
	Lang string
	URL  string
}

// parseMasterPlaylist extracts the variant streams and subtitle renditions of
// an HLS master playlist. Relative URIs are resolved against manifestURL.
// An empty variant list means the manifest is not a master playlist (or is
// malformed); callers fall back to the manifest itself as a single "auto"
// stream.
func parseMasterPlaylist(manifest, manifestURL string) ([]hlsVariant, []hlsSubtitle) {
	var (
		variants  []hlsVariant
		subtitles []hlsSubtitle
		pending   *hlsVariant
	)

	for _, line := range strings.Split(manifest, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"):
			attrs := parseAttributeList(strings.TrimPrefix(line, "#EXT-X-STREAM-INF:"))
			v := hlsVariant{}
			if res := attrs["RESOLUTION"]; res != "" {
				if _, h, ok := strings.Cut(res, "x"); ok {
					v.Quality = fmt.Sprintf("%sp", strings.TrimSpace(h))
				}
			}
			pending = &v

		case strings.HasPrefix(line, "#EXT-X-MEDIA:"):
			attrs := parseAttributeList(strings.TrimPrefix(line, "#EXT-X-MEDIA:"))
			if !strings.EqualFold(attrs["TYPE"], "SUBTITLES") || attrs["URI"] == "" {
				continue
			}
			subtitles = append(subtitles, hlsSubtitle{
				Name: attrs["NAME"],
				Lang: attrs["LANGUAGE"],
				URL:  resolveAgainst(manifestURL, attrs["URI"]),
			})

		case strings.HasPrefix(line, "#"):
			// Unrelated tag; a pending STREAM-INF still waits for its URL line.

		default:
			if pending != nil {
				pending.URL = resolveAgainst(manifestURL, line)
				variants = append(variants, *pending)
				pending = nil
			}
		}
	}

	return variants, subtitles
}

// parseAttributeList parses an HLS attribute list (KEY=VALUE pairs separated
// by commas, values optionally quoted, quoted values may contain commas).
func parseAttributeList(s string) map[string]string {
	attrs := make(map[string]string)
	for len(s) > 0 {
		eq := strings.Index(s, "=")
		if eq < 0 {
			break
		}
		key := strings.TrimSpace(s[:eq])
		s = s[eq+1:]

		var value string
		if strings.HasPrefix(s, `"`) {
			end := strings.Index(s[1:], `"`)
			if end < 0 {
				value = s[1:]
				s = ""
			} else {
				value = s[1 : 1+end]
				s = s[end+2:]
			}
			s = strings.TrimPrefix(s, ",")
		} else if comma := strings.Index(s, ","); comma >= 0 {
			value = s[:comma]
			s = s[comma+1:]
		} else {
			value = s
			s = ""
		}
		attrs[key] = value
	}
	return attrs
}

// resolveAgainst resolves a possibly-relative ref against a base URL.
func resolveAgainst(base, ref string) string {
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if refURL.IsAbs() {
		return ref
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}
