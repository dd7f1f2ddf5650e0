package domain

import (
	"strings"
	"time"
)

// DefaultUploaderName is stored when a guest leaves the name blank.
const DefaultUploaderName = "Anonymous"

// Photo is an accepted guest upload. It always belongs to exactly one Event.
type Photo struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	EventID      string    `gorm:"type:varchar(36);index:idx_photos_event_created,priority:1;not null" json:"eventId"`
	URL          string    `gorm:"size:1024;not null" json:"url"`
	ThumbnailURL string    `gorm:"size:1024" json:"thumbnailUrl"`
	PublicID     string    `gorm:"size:512;not null" json:"-"` // asset handle, resolvable by the asset store
	UploaderName string    `gorm:"size:100;not null;default:'Anonymous'" json:"uploaderName"`
	CreatedAt    time.Time `gorm:"index:idx_photos_event_created,priority:2;not null" json:"createdAt"`
}

// PhotoSummary is what listeners of an event room receive for a new photo.
type PhotoSummary struct {
	ID           string    `json:"id"`
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnailUrl"`
	UploaderName string    `json:"uploaderName"`
	CreatedAt    time.Time `json:"createdAt"`
	EventSlug    string    `json:"eventSlug"`
}

// Summary projects the photo for broadcast.
func (p *Photo) Summary(eventSlug string) PhotoSummary {
	return PhotoSummary{
		ID:           p.ID,
		URL:          p.URL,
		ThumbnailURL: p.ThumbnailURL,
		UploaderName: p.UploaderName,
		CreatedAt:    p.CreatedAt,
		EventSlug:    eventSlug,
	}
}

// NormalizeUploaderName trims the display name and falls back to
// DefaultUploaderName. Names longer than 100 runes are cut.
func NormalizeUploaderName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultUploaderName
	}
	if r := []rune(name); len(r) > 100 {
		name = string(r[:100])
	}
	return name
}
