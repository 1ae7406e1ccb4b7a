package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"veda-server/constant"
	"veda-server/entities"
)

// ErrStateConflict is returned when a guarded update matched no row, i.e. the
// entity was not in the expected state anymore.
var ErrStateConflict = errors.New("state conflict")

type Repository interface {
	Transaction(ctx context.Context, callback func(ctx context.Context) error, opts ...*sql.TxOptions) error
	GetDB() *gorm.DB

	CreateSession(ctx context.Context, session *entities.LiveSession) error
	FindSessionById(ctx context.Context, id uuid.UUID) (*entities.LiveSession, error)
	ListSessionsByStatus(ctx context.Context, statuses ...constant.SessionStatus) ([]*entities.LiveSession, error)
	TransitionSessionStatus(ctx context.Context, id uuid.UUID, from, to constant.SessionStatus, updates map[string]interface{}) error
	SetSessionSlides(ctx context.Context, sessionId uuid.UUID, slides []entities.Slide) error
	UpdateSessionSlideStatus(ctx context.Context, sessionId uuid.UUID, status constant.SlideStatus) error
	UpdateSessionRecording(ctx context.Context, sessionId uuid.UUID, status constant.RecordingStatus, finalVideoObjectName string, durationSeconds int, totalChunks int) error

	CreateLesson(ctx context.Context, lesson *entities.Lesson) error
	FindLessonById(ctx context.Context, id uuid.UUID) (*entities.Lesson, error)
	UpdateLessonVideoURL(ctx context.Context, lessonId uuid.UUID, url string) error

	CreateJob(ctx context.Context, job *entities.Job) error
	FindJobById(ctx context.Context, id uuid.UUID) (*entities.Job, error)
	UpdateStatusJob(ctx context.Context, status constant.JobStatus, id uuid.UUID) error

	CreateRecordingChunk(ctx context.Context, chunk *entities.RecordingChunk) error
	GetRecordingChunksByLiveSessionId(ctx context.Context, liveSessionId uuid.UUID) ([]*entities.RecordingChunk, error)
	UpdateRecordingChunkStatus(ctx context.Context, chunkId uuid.UUID, status string) error
}

type repo struct {
	db *gorm.DB
}

func NewRepo(db *sql.DB) Repository {
	gormDB, _ := gorm.Open(postgres.New(postgres.Config{
		Conn: db}),
		&gorm.Config{
			Logger: logger.Default.LogMode(logger.Info),
		},
	)
	return &repo{
		db: gormDB,
	}
}

func (r *repo) GetDB() *gorm.DB {
	return r.db
}

func (r *repo) Transaction(ctx context.Context, callback func(ctx context.Context) error, opts ...*sql.TxOptions) error {
	return r.GetDB().Transaction(func(tx *gorm.DB) error {
		err := callback(ctx)
		if err != nil {
			return err
		}
		return nil
	}, opts...)
}

func (r *repo) CreateSession(ctx context.Context, session *entities.LiveSession) error {
	return r.GetDB().Create(session).Error
}

func (r *repo) FindSessionById(ctx context.Context, id uuid.UUID) (*entities.LiveSession, error) {
	session := &entities.LiveSession{}
	err := r.GetDB().Preload("Slides", func(db *gorm.DB) *gorm.DB {
		return db.Order("page_index ASC")
	}).First(session, "id = ?", id).Error
	if err != nil {
		return nil, err
	}

	return session, nil
}

func (r *repo) ListSessionsByStatus(ctx context.Context, statuses ...constant.SessionStatus) ([]*entities.LiveSession, error) {
	var sessions []*entities.LiveSession
	err := r.GetDB().Where("status IN ?", statuses).Order("start_time ASC").Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// TransitionSessionStatus performs the status change as a guarded update so two
// racing requests cannot both move the session. A transition from a state the
// session is no longer in matches zero rows and returns ErrStateConflict.
func (r *repo) TransitionSessionStatus(ctx context.Context, id uuid.UUID, from, to constant.SessionStatus, updates map[string]interface{}) error {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = to

	tx := r.GetDB().Model(&entities.LiveSession{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrStateConflict
	}
	return nil
}

// SetSessionSlides writes the deck exactly once: the slide rows and the READY
// flip happen in one transaction, guarded on slide_status still being NOT_READY.
func (r *repo) SetSessionSlides(ctx context.Context, sessionId uuid.UUID, slides []entities.Slide) error {
	return r.GetDB().Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&entities.LiveSession{}).
			Where("id = ? AND slide_status = ?", sessionId, constant.SlideStatusNotReady).
			Update("slide_status", constant.SlideStatusReady)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStateConflict
		}

		for i := range slides {
			slides[i].SessionId = sessionId
		}
		return tx.Create(&slides).Error
	})
}

func (r *repo) UpdateSessionSlideStatus(ctx context.Context, sessionId uuid.UUID, status constant.SlideStatus) error {
	return r.GetDB().Model(&entities.LiveSession{}).Where("id = ?", sessionId).Update("slide_status", status).Error
}

func (r *repo) UpdateSessionRecording(ctx context.Context, sessionId uuid.UUID, status constant.RecordingStatus, finalVideoObjectName string, durationSeconds int, totalChunks int) error {
	updates := map[string]interface{}{
		"recording_status":        status,
		"final_video_object_name": finalVideoObjectName,
		"recording_duration":      durationSeconds,
		"total_chunks":            totalChunks,
	}
	return r.GetDB().Model(&entities.LiveSession{}).Where("id = ?", sessionId).Updates(updates).Error
}

func (r *repo) CreateLesson(ctx context.Context, lesson *entities.Lesson) error {
	return r.GetDB().Create(lesson).Error
}

func (r *repo) FindLessonById(ctx context.Context, id uuid.UUID) (*entities.Lesson, error) {
	lesson := &entities.Lesson{}
	err := r.GetDB().First(lesson, "id = ?", id).Error
	if err != nil {
		return nil, err
	}

	return lesson, nil
}

func (r *repo) UpdateLessonVideoURL(ctx context.Context, lessonId uuid.UUID, url string) error {
	updates := map[string]interface{}{
		"video_url": url,
		"status":    constant.LessonStatusReady,
	}
	return r.GetDB().Model(&entities.Lesson{}).Where("id = ?", lessonId).Updates(updates).Error
}

func (r *repo) CreateJob(ctx context.Context, job *entities.Job) error {
	return r.GetDB().Create(job).Error
}

func (r *repo) FindJobById(ctx context.Context, id uuid.UUID) (*entities.Job, error) {
	job := &entities.Job{}
	err := r.GetDB().First(job, "id = ?", id).Error
	if err != nil {
		return nil, err
	}

	return job, nil
}

func (r *repo) UpdateStatusJob(ctx context.Context, status constant.JobStatus, id uuid.UUID) error {
	job := &entities.Job{}
	err := r.GetDB().First(job, "id = ?", id).Error
	if err != nil {
		return err
	}
	job.Status = status
	err = r.GetDB().Save(job).Error
	if err != nil {
		return err
	}
	return nil
}

func (r *repo) CreateRecordingChunk(ctx context.Context, chunk *entities.RecordingChunk) error {
	return r.GetDB().Create(chunk).Error
}

func (r *repo) GetRecordingChunksByLiveSessionId(ctx context.Context, liveSessionId uuid.UUID) ([]*entities.RecordingChunk, error) {
	var chunks []*entities.RecordingChunk
	err := r.GetDB().Where("live_session_id = ?", liveSessionId).Order("chunk_index ASC").Find(&chunks).Error
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *repo) UpdateRecordingChunkStatus(ctx context.Context, chunkId uuid.UUID, status string) error {
	return r.GetDB().Model(&entities.RecordingChunk{}).Where("id = ?", chunkId).Update("status", status).Error
}
