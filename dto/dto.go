package dto

import (
	"time"

	"github.com/google/uuid"
	"veda-server/entities"
)

// Queue messages.

type TranscodeMessage struct {
	JobId      uuid.UUID `json:"jobId"`
	ObjectPath string    `json:"objectPath"`
	FileName   string    `json:"fileName"`
}

type SlideConvertMessage struct {
	JobId      uuid.UUID `json:"jobId"`
	SessionId  uuid.UUID `json:"sessionId"`
	ObjectPath string    `json:"objectPath"`
}

type RecordingMergeMessage struct {
	JobId         uuid.UUID `json:"jobId"`
	LiveSessionId uuid.UUID `json:"liveSessionId"`
}

// HTTP requests and responses.

type ScheduleSessionRequest struct {
	CourseId    uuid.UUID `json:"course_id" form:"course_id" binding:"required"`
	Title       string    `json:"title" form:"title" binding:"required"`
	Description *string   `json:"description" form:"description"`
	StartTime   time.Time `json:"start_time" form:"start_time" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
}

type SessionResponse struct {
	Success bool                  `json:"success"`
	Session *entities.LiveSession `json:"session"`
}

type SessionListResponse struct {
	Success  bool                    `json:"success"`
	Sessions []*entities.LiveSession `json:"sessions"`
}

// AccessResponse carries a room-scoped credential minted by start or join.
type AccessResponse struct {
	Success bool                  `json:"success"`
	Token   string                `json:"token"`
	RoomId  string                `json:"room_id"`
	Session *entities.LiveSession `json:"session"`
}

type LessonResponse struct {
	Success bool             `json:"success"`
	Lesson  *entities.Lesson `json:"lesson"`
}

type ChunkUploadResponse struct {
	Success    bool   `json:"success"`
	ChunkIndex int    `json:"chunk_index"`
	ObjectName string `json:"object_name"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}
