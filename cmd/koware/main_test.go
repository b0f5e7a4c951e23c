package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wakaranaidev/koware/internal/config"
	"github.com/wakaranaidev/koware/internal/database"
	"github.com/wakaranaidev/koware/internal/history"
	"github.com/wakaranaidev/koware/pkg/types"
)

func TestStreamsCommandRecordsWatchHistory(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	// "--174b574d4a5b5d1759" decodes to "/source/a".
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("query")
		assert.Contains(t, query, "episode(")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"episode": map[string]any{
					"episodeString": "2",
					"sourceUrls": []map[string]string{
						{"sourceName": "Default", "sourceUrl": "--174b574d4a5b5d1759"},
					},
				},
			},
		})
	})
	mux.HandleFunc("/source/a", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"links": []map[string]string{
				{"link": server.URL + "/v.mp4", "resolutionStr": "1080p"},
			},
		})
	})

	dbPath := filepath.Join(t.TempDir(), "history.db")
	cfg = &config.Config{
		HTTP: config.HTTPConfig{Timeout: 5 * time.Second, MaxAttempts: 1},
		Providers: config.ProvidersConfig{
			Primary: "allanime",
			AllAnime: config.AllAnimeConfig{
				Enabled:         true,
				BaseURL:         server.URL,
				APIURL:          server.URL,
				SourceBaseURL:   server.URL,
				TranslationType: "sub",
				SearchLimit:     40,
			},
		},
		Database: config.DatabaseConfig{Path: dbPath},
	}
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	require.NoError(t, streamsCmd.Flags().Set("id", "allanime:show1:ep-2"))
	require.NoError(t, streamsCmd.Flags().Set("title", "Re:Zero"))
	require.NoError(t, streamsCmd.RunE(streamsCmd, nil))

	db, err := database.Open(dbPath)
	require.NoError(t, err)
	entries, err := history.NewService(db).Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "allanime:show1:ep-2", entries[0].EpisodeID)
	assert.Equal(t, "allanime:show1", entries[0].AnimeID)
	assert.Equal(t, "Re:Zero", entries[0].Title)
	assert.Equal(t, 2, entries[0].EpisodeNum)
	assert.Equal(t, "allanime", entries[0].Provider)
	assert.Equal(t, "1080p", entries[0].Quality)
}

func TestStreamsCommandNoLinksRecordsNothing(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"episode": map[string]any{"sourceUrls": []any{}}},
		})
	})

	dbPath := filepath.Join(t.TempDir(), "history.db")
	cfg = &config.Config{
		HTTP: config.HTTPConfig{Timeout: 5 * time.Second, MaxAttempts: 1},
		Providers: config.ProvidersConfig{
			Primary: "allanime",
			AllAnime: config.AllAnimeConfig{
				Enabled: true,
				BaseURL: server.URL,
				APIURL:  server.URL,
			},
		},
		Database: config.DatabaseConfig{Path: dbPath},
	}
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	require.NoError(t, streamsCmd.Flags().Set("id", "allanime:show1:ep-5"))
	require.NoError(t, streamsCmd.Flags().Set("title", ""))
	require.NoError(t, streamsCmd.RunE(streamsCmd, nil))

	db, err := database.Open(dbPath)
	require.NoError(t, err)
	entries, err := history.NewService(db).Recent(10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWatchIDParsing(t *testing.T) {
	tests := []struct {
		id      types.EpisodeID
		animeID types.AnimeID
		number  int
	}{
		{"allanime:show1:ep-12", "allanime:show1", 12},
		{"hianime:9001", "", 0},
		{"", "", 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.id), func(t *testing.T) {
			assert.Equal(t, tt.animeID, watchAnimeID(tt.id))
			assert.Equal(t, tt.number, watchEpisodeNumber(tt.id))
		})
	}
}
