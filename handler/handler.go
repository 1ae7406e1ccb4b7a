package handler

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"veda-server/dto"
	"veda-server/service"
)

type ServiceDependencies struct {
	TranscodeService      service.TranscodeService
	SlideConvertService   service.SlideConvertService
	RecordingMergeService service.RecordingMergeService
}

func TranscodeHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var message dto.TranscodeMessage
	if err := json.Unmarshal(msg.Body, &message); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal transcode message")
		return err
	}

	return deps.TranscodeService.Process(ctx, message)
}

func SlideConvertHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var message dto.SlideConvertMessage
	if err := json.Unmarshal(msg.Body, &message); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal slide convert message")
		return err
	}

	zerolog.Ctx(ctx).Info().
		Str("job_id", message.JobId.String()).
		Str("session_id", message.SessionId.String()).
		Msg("received slide convert message")

	return deps.SlideConvertService.Process(ctx, message)
}

func RecordingMergeHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var message dto.RecordingMergeMessage
	if err := json.Unmarshal(msg.Body, &message); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal recording merge message")
		return err
	}

	zerolog.Ctx(ctx).Info().
		Str("job_id", message.JobId.String()).
		Str("live_session_id", message.LiveSessionId.String()).
		Msg("received recording merge message")

	return deps.RecordingMergeService.Process(ctx, message)
}
