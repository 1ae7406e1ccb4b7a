package entities

import (
	"time"

	"github.com/google/uuid"
	"veda-server/constant"
)

type LiveSession struct {
	ID          uuid.UUID              `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	PresenterId uuid.UUID              `json:"presenter_id" gorm:"type:uuid;not null;index:idx_live_sessions_presenter_id"`
	CourseId    uuid.UUID              `json:"course_id" gorm:"type:uuid;not null;index:idx_live_sessions_course_id"`
	Title       string                 `json:"title" gorm:"type:varchar(255);not null"`
	Description *string                `json:"description" gorm:"type:text"`
	Status      constant.SessionStatus `json:"status" gorm:"type:varchar(20);not null;default:'SCHEDULED';index:idx_live_sessions_status"`

	// RoomId is assigned once at creation and never updated.
	RoomId string `json:"room_id" gorm:"type:varchar(64);not null;uniqueIndex:unique_room_id"`

	StartTime time.Time  `json:"start_time" gorm:"type:timestamptz;not null"`
	EndTime   *time.Time `json:"end_time" gorm:"type:timestamptz"`

	SlideStatus constant.SlideStatus `json:"slide_status" gorm:"type:varchar(20);not null;default:'NOT_READY'"`
	Slides      []Slide              `json:"slides" gorm:"foreignKey:SessionId;references:ID"`

	RecordingStatus      constant.RecordingStatus `json:"recording_status" gorm:"type:varchar(20);default:'NOT_STARTED'"`
	FinalVideoObjectName *string                  `json:"final_video_object_name" gorm:"type:varchar(500)"`
	RecordingDuration    *int                     `json:"recording_duration" gorm:"type:integer"`
	TotalChunks          int                      `json:"total_chunks" gorm:"type:integer;default:0"`

	CreatedAt time.Time `json:"created_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
}

func (LiveSession) TableName() string {
	return "live_sessions"
}
