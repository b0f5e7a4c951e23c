package allanime

import (
	"github.com/wakaranaidev/koware/pkg/types"
)

// rawLink is one link candidate pulled out of a source payload before
// ranking and HLS expansion.
type rawLink struct {
	URL     string
	Quality string
}

// payloadLinks is everything extractable from one decoded source payload.
type payloadLinks struct {
	Links     []rawLink
	Referer   string
	Subtitles []types.SubtitleTrack
}

// extractPayloadLinks walks a decoded JSON payload recursively, collecting
// every object that carries a "link" field (quality from the sibling
// "resolutionStr", default "auto") or a bare "url" field (quality "hls").
// The first "Referer" and "subtitles" fields found anywhere in the tree
// apply to all links from this payload.
func extractPayloadLinks(payload any) payloadLinks {
	var out payloadLinks
	walkPayload(payload, &out)
	return out
}

func walkPayload(v any, out *payloadLinks) {
	switch node := v.(type) {
	case map[string]any:
		if link, ok := node["link"].(string); ok && link != "" {
			quality := "auto"
			if res, ok := node["resolutionStr"].(string); ok && res != "" {
				quality = res
			}
			out.Links = append(out.Links, rawLink{URL: link, Quality: quality})
		} else if u, ok := node["url"].(string); ok && u != "" {
			out.Links = append(out.Links, rawLink{URL: u, Quality: "hls"})
		}

		if out.Referer == "" {
			if ref, ok := node["Referer"].(string); ok && ref != "" {
				out.Referer = ref
			}
		}
		if out.Subtitles == nil {
			if subs, ok := node["subtitles"].([]any); ok {
				out.Subtitles = parseSubtitleList(subs)
			}
		}

		for _, child := range node {
			walkPayload(child, out)
		}
	case []any:
		for _, child := range node {
			walkPayload(child, out)
		}
	}
}

func parseSubtitleList(entries []any) []types.SubtitleTrack {
	tracks := make([]types.SubtitleTrack, 0, len(entries))
	for _, e := range entries {
		entry, ok := e.(map[string]any)
		if !ok {
			continue
		}
		u := stringField(entry, "src", "file", "url")
		if u == "" {
			continue
		}
		label := stringField(entry, "label")
		lang := stringField(entry, "lang", "language")
		if label == "" {
			label = lang
		}
		tracks = append(tracks, types.SubtitleTrack{Label: label, URL: u, Lang: lang})
	}
	return tracks
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
