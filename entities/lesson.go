package entities

import (
	"time"

	"github.com/google/uuid"
	"veda-server/constant"
)

type Lesson struct {
	ID        uuid.UUID             `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CourseId  uuid.UUID             `json:"course_id" gorm:"type:uuid;not null;index:idx_lessons_course_id"`
	Title     string                `json:"title" gorm:"type:varchar(255);not null"`
	VideoUrl  string                `json:"video_url" gorm:"type:varchar(500)"`
	Status    constant.LessonStatus `json:"status" gorm:"type:varchar(20);not null;default:'UPLOADED'"`
	CreatedAt time.Time             `json:"created_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time             `json:"updated_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
}

func (Lesson) TableName() string {
	return "lessons"
}
