package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"
	"veda-server/config"
	"veda-server/constant"
	"veda-server/dto"
	"veda-server/repository"
)

type RecordingMergeService interface {
	Process(ctx context.Context, message dto.RecordingMergeMessage) error
}

type recordingMergeService struct {
	repo repository.Repository
	cfg  *config.Config
}

func NewRecordingMergeService(repo repository.Repository, cfg *config.Config) RecordingMergeService {
	return &recordingMergeService{
		repo: repo,
		cfg:  cfg,
	}
}

// Process concatenates a session's recording chunks into one video and stores
// it as the session's final recording.
func (s *recordingMergeService) Process(ctx context.Context, message dto.RecordingMergeMessage) (err error) {
	zerolog.Ctx(ctx).Info().
		Str("job_id", message.JobId.String()).
		Str("live_session_id", message.LiveSessionId.String()).
		Msg("processing recording merge job")

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
				if updateErr := s.repo.UpdateSessionRecording(ctx, message.LiveSessionId, constant.RecordingStatusFailed, "", 0, 0); updateErr != nil {
					zerolog.Ctx(ctx).Error().Err(updateErr).Msg("failed to update session recording status")
				}
				err = nil
			} else {
				if updateErr := s.repo.UpdateStatusJob(ctx, constant.JobStatusPending, message.JobId); updateErr != nil {
					zerolog.Ctx(ctx).Error().Err(updateErr).Msg("failed to update job status")
				}
			}
		}
	}()

	chunks, err := s.repo.GetRecordingChunksByLiveSessionId(ctx, message.LiveSessionId)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to get recording chunks")
		return err
	}
	if len(chunks) == 0 {
		err = fmt.Errorf("no recording chunks found for live_session_id: %s", message.LiveSessionId)
		zerolog.Ctx(ctx).Error().Err(err).Msg("no chunks to merge")
		return errors.Join(ErrNonRetryable, err)
	}

	zerolog.Ctx(ctx).Info().Int("chunk_count", len(chunks)).Msg("found recording chunks")

	tempDir := filepath.Join("temp", message.JobId.String())
	defer os.RemoveAll(tempDir)

	chunksDir := filepath.Join(tempDir, "chunks")
	if err = os.MkdirAll(chunksDir, os.ModePerm); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to create chunks directory")
		return errors.Join(ErrNonRetryable, err)
	}

	localChunks := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		localPath := filepath.Join(chunksDir, fmt.Sprintf("chunk-%05d%s", chunk.ChunkIndex, filepath.Ext(chunk.ObjectName)))
		if err = s.cfg.Storage.FGetObject(ctx, s.cfg.MinIOBucket, chunk.ObjectName, localPath, minio.GetObjectOptions{}); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("object", chunk.ObjectName).Msg("failed to download chunk")
			return err
		}
		localChunks = append(localChunks, localPath)
	}

	mergedPath := filepath.Join(tempDir, "recording.mp4")
	if err = concatChunks(localChunks, tempDir, mergedPath); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to merge chunks")
		return errors.Join(ErrNonRetryable, err)
	}

	finalObjectName := fmt.Sprintf("sessions/%s/recording/recording.mp4", message.LiveSessionId)
	zerolog.Ctx(ctx).Info().Str("object", finalObjectName).Msg("uploading merged recording")
	_, err = s.cfg.Storage.FPutObject(ctx, s.cfg.MinIOBucket, finalObjectName, mergedPath, minio.PutObjectOptions{ContentType: "video/mp4"})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to upload merged recording")
		return err
	}

	duration := 0
	for _, chunk := range chunks {
		if chunk.DurationSeconds != nil {
			duration += *chunk.DurationSeconds
		}
	}

	if err = s.repo.UpdateSessionRecording(ctx, message.LiveSessionId, constant.RecordingStatusCompleted, finalObjectName, duration, len(chunks)); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to update session recording")
		return err
	}

	for _, chunk := range chunks {
		if updateErr := s.repo.UpdateRecordingChunkStatus(ctx, chunk.ID, "COMPLETED"); updateErr != nil {
			zerolog.Ctx(ctx).Error().Err(updateErr).Str("chunk_id", chunk.ID.String()).Msg("failed to update chunk status")
		}
	}

	if err = s.repo.UpdateStatusJob(ctx, constant.JobStatusCompleted, message.JobId); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to update job status")
		return err
	}

	zerolog.Ctx(ctx).Info().Str("job_id", message.JobId.String()).Msg("recording merge job completed")

	return nil
}

// concatChunks merges the ordered chunk files with ffmpeg's concat demuxer,
// re-encoding so mixed-codec chunks still produce a playable file.
func concatChunks(chunkPaths []string, workDir, outputPath string) error {
	listPath := filepath.Join(workDir, "chunks.txt")
	var list string
	for _, p := range chunkPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		list += fmt.Sprintf("file '%s'\n", abs)
	}
	if err := os.WriteFile(listPath, []byte(list), 0644); err != nil {
		return err
	}

	cmd := exec.Command("ffmpeg",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-c:a", "aac",
		"-movflags", "+faststart",
		outputPath,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg execution failed: %w: %s", err, string(output))
	}

	return nil
}
