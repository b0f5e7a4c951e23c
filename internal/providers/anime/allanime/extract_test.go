package allanime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustUnmarshal(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestExtractPayloadLinks(t *testing.T) {
	payload := mustUnmarshal(t, `{
		"links": [
			{"link": "https://cdn.example/1080.mp4", "resolutionStr": "1080p"},
			{"link": "https://cdn.example/720.mp4", "resolutionStr": "720p"},
			{"link": "https://cdn.example/unlabeled.mp4"}
		]
	}`)

	out := extractPayloadLinks(payload)
	require.Len(t, out.Links, 3)
	assert.Equal(t, rawLink{URL: "https://cdn.example/1080.mp4", Quality: "1080p"}, out.Links[0])
	assert.Equal(t, rawLink{URL: "https://cdn.example/unlabeled.mp4", Quality: "auto"}, out.Links[2])
}

func TestExtractPayloadLinksNestedAndURLKey(t *testing.T) {
	payload := mustUnmarshal(t, `{
		"data": {
			"deeply": [
				{"nested": {"url": "https://cdn.example/stream.m3u8"}}
			]
		}
	}`)

	out := extractPayloadLinks(payload)
	require.Len(t, out.Links, 1)
	assert.Equal(t, rawLink{URL: "https://cdn.example/stream.m3u8", Quality: "hls"}, out.Links[0])
}

func TestExtractPayloadLinksRefererAndSubtitles(t *testing.T) {
	payload := mustUnmarshal(t, `{
		"headers": {"Referer": "https://embed.example/"},
		"links": [{"link": "https://cdn.example/v.mp4", "resolutionStr": "720p"}],
		"subtitles": [
			{"src": "https://cdn.example/en.vtt", "label": "English", "lang": "en"},
			{"file": "https://cdn.example/es.vtt", "lang": "es"},
			{"label": "broken, no url"}
		]
	}`)

	out := extractPayloadLinks(payload)
	assert.Equal(t, "https://embed.example/", out.Referer)
	require.Len(t, out.Subtitles, 2)
	assert.Equal(t, "English", out.Subtitles[0].Label)
	// A track without a label falls back to its language code.
	assert.Equal(t, "es", out.Subtitles[1].Label)
	assert.Equal(t, "https://cdn.example/es.vtt", out.Subtitles[1].URL)
}

func TestExtractPayloadLinksEmpty(t *testing.T) {
	out := extractPayloadLinks(mustUnmarshal(t, `{"status": "ok"}`))
	assert.Empty(t, out.Links)
	assert.Empty(t, out.Subtitles)
	assert.Equal(t, "", out.Referer)
}
