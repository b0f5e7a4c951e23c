package history

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wakaranaidev/koware/internal/database"
	"github.com/wakaranaidev/koware/pkg/types"
)

// Service persists and queries watch history.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// RecordWatch upserts a watch entry keyed by episode id. Re-watching an
// episode refreshes its timestamp instead of duplicating the row. The
// provider tag comes from the episode id's namespace; the anime id only
// fills in when the episode id is not namespaced.
func (s *Service) RecordWatch(anime types.Anime, episode types.Episode, quality string) error {
	provider := episode.ID.Namespace()
	if provider == "" {
		provider = anime.ID.Namespace()
	}
	entry := database.WatchEntry{
		AnimeID:    string(anime.ID),
		EpisodeID:  string(episode.ID),
		Title:      anime.Title,
		EpisodeNum: episode.Number,
		Provider:   provider,
		Quality:    quality,
		WatchedAt:  time.Now(),
	}

	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "episode_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"quality", "watched_at", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("record watch: %w", err)
	}
	return nil
}

// Recent returns the most recently watched entries, newest first.
func (s *Service) Recent(limit int) ([]database.WatchEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	var entries []database.WatchEntry
	err := s.db.Order("watched_at DESC").Limit(limit).Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return entries, nil
}

// ForAnime returns the watch entries for a single show, newest first.
func (s *Service) ForAnime(id types.AnimeID) ([]database.WatchEntry, error) {
	var entries []database.WatchEntry
	err := s.db.Where("anime_id = ?", string(id)).
		Order("watched_at DESC").Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list history for anime: %w", err)
	}
	return entries, nil
}
