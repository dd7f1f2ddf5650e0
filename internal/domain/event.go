package domain

import (
	"fmt"
	"strings"
	"time"
)

// EventType is the category an organizer picks when creating an event.
type EventType string

const (
	EventTypeWedding     EventType = "wedding"
	EventTypeQuinceanera EventType = "quinceanera"
	EventTypeBirthday    EventType = "birthday"
	EventTypeCorporate   EventType = "corporate"
	EventTypeParty       EventType = "party"
	EventTypeOther       EventType = "other"
)

// Valid reports whether t is one of the known categories.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeWedding, EventTypeQuinceanera, EventTypeBirthday, EventTypeCorporate, EventTypeParty, EventTypeOther:
		return true
	}
	return false
}

// DateLayout is the wire and storage format of Event.EventDate.
const DateLayout = "2006-01-02"

// Event is a time-boxed photo collection occasion created by an organizer.
type Event struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    uint      `gorm:"index;not null" json:"userId"` // owner
	Name      string    `gorm:"size:100;not null" json:"name"`
	Type      EventType `gorm:"size:20;not null" json:"type"`
	Slug      string    `gorm:"uniqueIndex;size:191;not null" json:"slug"` // public, immutable after creation
	EventDate time.Time `gorm:"type:date;not null" json:"eventDate"`
	IsActive  bool      `gorm:"not null;default:false" json:"isActive"`
	IsPaid    bool      `gorm:"not null;default:false" json:"isPaid"`
	QRCodeURL string    `gorm:"size:512" json:"qrCodeUrl,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// UploadDeadline returns the last instant at which guests may upload to the
// event: the end of the day that contains EventDate+grace, in loc. Whole days
// of grace are calendar days, so a DST change never shortens the window.
func (e *Event) UploadDeadline(grace time.Duration, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	if grace < 0 {
		grace = 0
	}
	days, rest := int(grace/(24*time.Hour)), grace%(24*time.Hour)
	d := e.EventDate
	day := time.Date(d.Year(), d.Month(), d.Day()+days, 0, 0, 0, 0, loc).Add(rest)
	return time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), loc)
}

// AcceptsUploadsAt reports whether an upload at now falls inside the window.
func (e *Event) AcceptsUploadsAt(now time.Time, grace time.Duration) bool {
	return !now.After(e.UploadDeadline(grace, now.Location()))
}

// ParseEventDate parses a YYYY-MM-DD date.
func ParseEventDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid event date %q: %w", s, err)
	}
	return t, nil
}
