package database

import "time"

// WatchEntry records a resolved playback in the local history store.
// AnimeID and EpisodeID are namespaced identifiers ("provider:raw"), so an
// entry always carries enough information to route back to its provider.
type WatchEntry struct {
	ID         uint   `gorm:"primaryKey"`
	AnimeID    string `gorm:"index;not null"`
	EpisodeID  string `gorm:"uniqueIndex;not null"`
	Title      string
	EpisodeNum int
	Provider   string `gorm:"index"`
	Quality    string
	WatchedAt  time.Time `gorm:"index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
