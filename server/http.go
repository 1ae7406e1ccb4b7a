package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"veda-server/config"
	"veda-server/constant"
	jobHandler "veda-server/handler"
	"veda-server/pkg/rabbitmq"
	"veda-server/pkg/realtime"
	"veda-server/repository"
	"veda-server/service"
)

func RunHttp(cfg *config.Config) {
	ctx, cancel := signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Bool("isProduction", cfg.App.Environment == constant.EnvironmentProduction.String()).Send()
	if cfg.App.Environment == constant.EnvironmentProduction.String() {
		gin.SetMode(gin.ReleaseMode)
	}

	conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("NewRabbitMQConn")
	}

	repo := repository.NewRepo(cfg.DB)
	publisher := rabbitmq.NewPublisher(conn, cfg.Queue)
	rooms := realtime.NewManager(ctx)
	tokens := service.NewTokenIssuer(cfg.Auth)

	sessionService := service.NewSessionService(repo, cfg, rooms, tokens, publisher)
	lessonService := service.NewLessonService(repo, cfg, publisher)
	transcodeService := service.NewTranscodeService(repo, cfg)
	slideConvertService := service.NewSlideConvertService(repo, cfg)
	recordingMergeService := service.NewRecordingMergeService(repo, cfg)

	serviceDeps := jobHandler.ServiceDependencies{
		TranscodeService:      transcodeService,
		SlideConvertService:   slideConvertService,
		RecordingMergeService: recordingMergeService,
	}

	consumers := []struct {
		name     string
		consumer rabbitmq.Consumer[jobHandler.ServiceDependencies]
	}{
		{"transcode", rabbitmq.NewConsumer(conn, cfg.Queue, rabbitmq.TranscodeBinding, cfg.Server.Workers, jobHandler.TranscodeHandler)},
		{"slide_convert", rabbitmq.NewConsumer(conn, cfg.Queue, rabbitmq.SlideConvertBinding, cfg.Server.Workers, jobHandler.SlideConvertHandler)},
		{"recording_merge", rabbitmq.NewConsumer(conn, cfg.Queue, rabbitmq.RecordingMergeBinding, cfg.Server.Workers, jobHandler.RecordingMergeHandler)},
	}
	for _, c := range consumers {
		c := c
		go func() {
			if err := c.consumer.Consume(ctx, serviceDeps); err != nil {
				zerolog.Ctx(ctx).Error().Err(err).Str("consumer", c.name).Msg("consumer error")
			}
		}()
	}

	r := gin.Default()
	addHealth(r)
	jobHandler.NewHTTP(cfg, sessionService, lessonService, tokens, rooms).Register(r)

	handler := http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("start http server")
		if err := handler.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
		}
	}()

	<-ctx.Done()
	zerolog.Ctx(ctx).Info().Msg("shutting down server")
	if err := handler.Shutdown(ctx); err != nil {
		zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
	}

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("server shutdown")
}

func addHealth(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})
}

func setupLogger(cfg *config.Config) context.Context {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.App.Environment == constant.EnvironmentDevelop.String() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	return ctx
}
