package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"
	"veda-server/config"
	"veda-server/constant"
	"veda-server/dto"
	"veda-server/repository"
)

type TranscodeService interface {
	Process(ctx context.Context, message dto.TranscodeMessage) error
}

type transcodeService struct {
	repo repository.Repository
	cfg  *config.Config
}

func NewTranscodeService(repo repository.Repository, cfg *config.Config) TranscodeService {
	return &transcodeService{
		repo: repo,
		cfg:  cfg,
	}
}

func (s *transcodeService) Process(ctx context.Context, message dto.TranscodeMessage) (err error) {
	zerolog.Ctx(ctx).Info().Str("job_id", message.JobId.String()).Msg("processing transcode job")
	remotePrefix := filepath.Dir(message.ObjectPath)
	job, err := s.repo.FindJobById(ctx, message.JobId)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to find job by id")
		return err
	}

	if job.Status != constant.JobStatusPending {
		zerolog.Ctx(ctx).Info().Str("job_id", message.JobId.String()).Msg("job is not pending")
		return nil
	}

	if err := s.repo.UpdateStatusJob(ctx, constant.JobStatusProcessing, message.JobId); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to update job status")
		return err
	}

	defer func() {
		if err != nil {
			if errors.Is(err, ErrNonRetryable) {
				if updateErr := s.repo.UpdateStatusJob(ctx, constant.JobStatusFailed, message.JobId); updateErr != nil {
					zerolog.Ctx(ctx).Error().Err(updateErr).Msg("failed to update job status")
				}
				err = nil
			} else {
				if updateErr := s.repo.UpdateStatusJob(ctx, constant.JobStatusPending, message.JobId); updateErr != nil {
					zerolog.Ctx(ctx).Error().Err(updateErr).Msg("failed to update job status")
				}
			}
		}
	}()

	tempDir := filepath.Join("temp", message.JobId.String())
	defer os.RemoveAll(tempDir)

	inputDir := filepath.Join(tempDir, "input")
	outputDir := filepath.Join(tempDir, "output")

	if err = os.MkdirAll(inputDir, os.ModePerm); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to create input directory")
		return errors.Join(ErrNonRetryable, err)
	}
	if err = os.MkdirAll(outputDir, os.ModePerm); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to create output directory")
		return errors.Join(ErrNonRetryable, err)
	}

	inputFilepath := filepath.Join(inputDir, message.FileName)
	zerolog.Ctx(ctx).Info().Str("input_file", inputFilepath).Msg("downloading input file")
	err = s.cfg.Storage.FGetObject(ctx, s.cfg.MinIOBucket, message.ObjectPath, inputFilepath, minio.GetObjectOptions{})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to download file")
		return err
	}

	zerolog.Ctx(ctx).Info().Msg("transcoding to HLS")
	if err = transcodeToHLS(inputFilepath, outputDir); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to transcode file")
		return errors.Join(ErrNonRetryable, err)
	}

	if err = writeMasterPlaylist(outputDir); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to write master playlist")
		return errors.Join(ErrNonRetryable, err)
	}

	zerolog.Ctx(ctx).Info().Msg("uploading renditions")
	err = uploadDirectory(ctx, s.cfg, outputDir, remotePrefix)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to upload renditions")
		return err
	}

	zerolog.Ctx(ctx).Info().Msg("deleting original file")
	err = s.cfg.Storage.RemoveObject(ctx, s.cfg.MinIOBucket, message.ObjectPath, minio.RemoveObjectOptions{})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to delete original file")
		return err
	}

	if err = s.repo.UpdateStatusJob(ctx, constant.JobStatusCompleted, message.JobId); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to update job status")
		return err
	}

	masterPath := strings.ReplaceAll(filepath.Join(remotePrefix, "master.m3u8"), "\\", "/")
	if err = s.repo.UpdateLessonVideoURL(ctx, job.EntityId, masterPath); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to update lesson video url")
		return err
	}

	zerolog.Ctx(ctx).Info().Str("job_id", message.JobId.String()).Msg("transcode job completed")

	return nil
}

func uploadDirectory(ctx context.Context, cfg *config.Config, localPath, remotePrefix string) error {
	return filepath.Walk(localPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		relativePath, err := filepath.Rel(localPath, path)
		if err != nil {
			return err
		}

		objectName := strings.ReplaceAll(filepath.Join(remotePrefix, relativePath), "\\", "/")

		_, uploadErr := cfg.Storage.FPutObject(ctx, cfg.MinIOBucket, objectName, path, minio.PutObjectOptions{})
		return uploadErr
	})
}
