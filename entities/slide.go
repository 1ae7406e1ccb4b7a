package entities

import (
	"github.com/google/uuid"
)

// Slide is one page of a session's deck. The deck is written exactly once by
// the slide conversion worker and is read-only afterwards.
type Slide struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	SessionId     uuid.UUID `json:"session_id" gorm:"type:uuid;not null;index:idx_slides_session_id"`
	PageIndex     int       `json:"page_index" gorm:"not null"`
	ImageUrl      string    `json:"image_url" gorm:"type:varchar(500);not null"`
	OffsetSeconds *int      `json:"offset_seconds" gorm:"type:integer"`
}

func (Slide) TableName() string {
	return "slides"
}
