package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"veda-server/config"
	"veda-server/constant"
	"veda-server/dto"
	"veda-server/entities"
	"veda-server/pkg/rabbitmq"
	"veda-server/repository"
)

type LessonService interface {
	Upload(ctx context.Context, courseId uuid.UUID, title, fileName string, body io.Reader, size int64) (*entities.Lesson, error)
	Get(ctx context.Context, lessonId uuid.UUID) (*entities.Lesson, error)
}

type lessonService struct {
	repo      repository.Repository
	cfg       *config.Config
	publisher rabbitmq.Publisher
}

func NewLessonService(repo repository.Repository, cfg *config.Config, publisher rabbitmq.Publisher) LessonService {
	return &lessonService{
		repo:      repo,
		cfg:       cfg,
		publisher: publisher,
	}
}

// Upload stores the raw lecture video and enqueues the HLS transcode. The
// lesson's video_url stays empty until the worker finishes.
func (s *lessonService) Upload(ctx context.Context, courseId uuid.UUID, title, fileName string, body io.Reader, size int64) (*entities.Lesson, error) {
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if fileName == "" || size <= 0 {
		return nil, fmt.Errorf("%w: video file is required", ErrValidation)
	}

	lesson := &entities.Lesson{
		ID:       uuid.New(),
		CourseId: courseId,
		Title:    title,
		Status:   constant.LessonStatusUploaded,
	}

	objectPath := fmt.Sprintf("lessons/%s/raw/%s", lesson.ID, filepath.Base(fileName))
	_, err := s.cfg.Storage.PutObject(ctx, s.cfg.MinIOBucket, objectPath, body, size, minio.PutObjectOptions{})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("object", objectPath).Msg("failed to upload lesson video")
		return nil, err
	}

	if err := s.repo.CreateLesson(ctx, lesson); err != nil {
		return nil, err
	}

	job := &entities.Job{
		ID:         uuid.New(),
		EntityId:   lesson.ID,
		EntityType: "lesson",
		Status:     constant.JobStatusPending,
		JobType:    constant.JobTypeTranscoder,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	message := dto.TranscodeMessage{
		JobId:      job.ID,
		ObjectPath: objectPath,
		FileName:   filepath.Base(fileName),
	}
	if err := s.publisher.Publish(ctx, rabbitmq.TranscodeBinding, message); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("lesson_id", lesson.ID.String()).Msg("failed to publish transcode message")
		return nil, err
	}

	zerolog.Ctx(ctx).Info().Str("lesson_id", lesson.ID.String()).Msg("lesson uploaded")
	return lesson, nil
}

func (s *lessonService) Get(ctx context.Context, lessonId uuid.UUID) (*entities.Lesson, error) {
	lesson, err := s.repo.FindLessonById(ctx, lessonId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: lesson %s", ErrNotFound, lessonId)
		}
		return nil, err
	}
	return lesson, nil
}
