package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"
	"veda-server/config"
	"veda-server/constant"
	"veda-server/dto"
	"veda-server/entities"
	"veda-server/repository"
)

type SlideConvertService interface {
	Process(ctx context.Context, message dto.SlideConvertMessage) error
}

type slideConvertService struct {
	repo repository.Repository
	cfg  *config.Config
}

func NewSlideConvertService(repo repository.Repository, cfg *config.Config) SlideConvertService {
	return &slideConvertService{
		repo: repo,
		cfg:  cfg,
	}
}

// Process converts a session's PDF deck into per-page PNGs, uploads them and
// writes the ordered slide list onto the session. The slide list is written
// exactly once; a replayed message finds the job no longer pending and is a
// no-op.
func (s *slideConvertService) Process(ctx context.Context, message dto.SlideConvertMessage) (err error) {
	zerolog.Ctx(ctx).Info().
		Str("job_id", message.JobId.String()).
		Str("session_id", message.SessionId.String()).
		Msg("processing slide convert job")

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
				if updateErr := s.repo.UpdateSessionSlideStatus(ctx, message.SessionId, constant.SlideStatusFailed); updateErr != nil {
					zerolog.Ctx(ctx).Error().Err(updateErr).Msg("failed to update session slide status")
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

	pagesDir := filepath.Join(tempDir, "pages")
	if err = os.MkdirAll(pagesDir, os.ModePerm); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to create pages directory")
		return errors.Join(ErrNonRetryable, err)
	}

	pdfPath := filepath.Join(tempDir, "deck.pdf")
	zerolog.Ctx(ctx).Info().Str("object", message.ObjectPath).Msg("downloading slide source")
	err = s.cfg.Storage.FGetObject(ctx, s.cfg.MinIOBucket, message.ObjectPath, pdfPath, minio.GetObjectOptions{})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to download slide source")
		return err
	}

	zerolog.Ctx(ctx).Info().Msg("converting deck to images")
	pages, err := convertPDFToImages(pdfPath, pagesDir)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to convert deck")
		return errors.Join(ErrNonRetryable, err)
	}
	if len(pages) == 0 {
		zerolog.Ctx(ctx).Error().Msg("deck has no pages")
		return errors.Join(ErrNonRetryable, errors.New("deck has no pages"))
	}

	slides := make([]entities.Slide, 0, len(pages))
	for i, page := range pages {
		objectName := fmt.Sprintf("sessions/%s/slides/page-%03d.png", message.SessionId, i)
		_, uploadErr := s.cfg.Storage.FPutObject(ctx, s.cfg.MinIOBucket, objectName, page, minio.PutObjectOptions{ContentType: "image/png"})
		if uploadErr != nil {
			zerolog.Ctx(ctx).Error().Err(uploadErr).Str("object", objectName).Msg("failed to upload slide page")
			return uploadErr
		}
		slides = append(slides, entities.Slide{
			PageIndex: i,
			ImageUrl:  objectName,
		})
	}

	if err = s.repo.SetSessionSlides(ctx, message.SessionId, slides); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			zerolog.Ctx(ctx).Warn().Str("session_id", message.SessionId.String()).Msg("slides already set")
			err = nil
		} else {
			zerolog.Ctx(ctx).Error().Err(err).Msg("failed to set session slides")
			return err
		}
	}

	if err = s.repo.UpdateStatusJob(ctx, constant.JobStatusCompleted, message.JobId); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to update job status")
		return err
	}

	zerolog.Ctx(ctx).Info().Str("job_id", message.JobId.String()).Int("pages", len(slides)).Msg("slide convert job completed")

	return nil
}

// convertPDFToImages renders each page as a PNG via pdftoppm and returns the
// generated file paths in page order.
func convertPDFToImages(pdfPath, outputDir string) ([]string, error) {
	cmd := exec.Command("pdftoppm", "-png", "-r", "150", pdfPath, filepath.Join(outputDir, "page"))
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("pdftoppm execution failed: %w: %s", err, string(output))
	}

	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return nil, err
	}

	var pages []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".png") {
			continue
		}
		pages = append(pages, filepath.Join(outputDir, entry.Name()))
	}
	// pdftoppm zero-pads page numbers, lexical order is page order.
	sort.Strings(pages)

	return pages, nil
}
