package entities

import (
	"time"

	"github.com/google/uuid"
	"veda-server/constant"
)

type Job struct {
	ID         uuid.UUID          `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	EntityId   uuid.UUID          `json:"entity_id" gorm:"type:uuid;not null"`
	EntityType string             `json:"entity_type" gorm:"type:varchar(50);not null"`
	Status     constant.JobStatus `json:"status" gorm:"type:varchar(20);not null"`
	JobType    constant.JobType   `json:"job_type" gorm:"type:varchar(50);not null"`
	CreatedAt  time.Time          `json:"created_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time          `json:"updated_at" gorm:"type:timestamptz;not null;default:CURRENT_TIMESTAMP"`
}

func (Job) TableName() string {
	return "jobs"
}
