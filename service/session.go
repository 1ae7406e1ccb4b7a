package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"veda-server/config"
	"veda-server/constant"
	"veda-server/dto"
	"veda-server/entities"
	"veda-server/pkg/rabbitmq"
	"veda-server/pkg/realtime"
	"veda-server/repository"
)

// RoomProvider is the realtime transport the lifecycle drives. CreateRoom is
// expected to return realtime.ErrRoomExists on a duplicate so a repeated
// start stays idempotent; CloseRoom failures are treated as best-effort.
type RoomProvider interface {
	CreateRoom(ctx context.Context, roomId string, slideCount int) error
	CloseRoom(ctx context.Context, roomId string) error
}

// SessionAccess is what start and join hand back to a participant: a
// room-scoped credential plus the room handle.
type SessionAccess struct {
	Token   string
	RoomId  string
	Session *entities.LiveSession
}

type SessionService interface {
	Schedule(ctx context.Context, presenterId uuid.UUID, req dto.ScheduleSessionRequest, slideObjectPath string) (*entities.LiveSession, error)
	Start(ctx context.Context, sessionId, callerId uuid.UUID) (*SessionAccess, error)
	End(ctx context.Context, sessionId, callerId uuid.UUID) (*entities.LiveSession, error)
	Join(ctx context.Context, sessionId, callerId uuid.UUID) (*SessionAccess, error)
	Get(ctx context.Context, sessionId uuid.UUID) (*entities.LiveSession, error)
	List(ctx context.Context) ([]*entities.LiveSession, error)
	AddRecordingChunk(ctx context.Context, sessionId uuid.UUID, callerId uuid.UUID, chunkIndex int, objectName string, fileSize int64) error
}

type sessionService struct {
	repo      repository.Repository
	cfg       *config.Config
	rooms     RoomProvider
	tokens    TokenIssuer
	publisher rabbitmq.Publisher
}

func NewSessionService(repo repository.Repository, cfg *config.Config, rooms RoomProvider, tokens TokenIssuer, publisher rabbitmq.Publisher) SessionService {
	return &sessionService{
		repo:      repo,
		cfg:       cfg,
		rooms:     rooms,
		tokens:    tokens,
		publisher: publisher,
	}
}

// Schedule persists a SCHEDULED session and enqueues the slide deck
// conversion. The room handle is assigned here, once, and never changes.
func (s *sessionService) Schedule(ctx context.Context, presenterId uuid.UUID, req dto.ScheduleSessionRequest, slideObjectPath string) (*entities.LiveSession, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if slideObjectPath == "" {
		return nil, fmt.Errorf("%w: slide source is required", ErrValidation)
	}
	if req.StartTime.IsZero() {
		return nil, fmt.Errorf("%w: start_time is required", ErrValidation)
	}

	session := &entities.LiveSession{
		ID:          uuid.New(),
		PresenterId: presenterId,
		CourseId:    req.CourseId,
		Title:       req.Title,
		Description: req.Description,
		Status:      constant.SessionStatusScheduled,
		RoomId:      fmt.Sprintf("room-%s", uuid.New()),
		StartTime:   req.StartTime,
		SlideStatus: constant.SlideStatusNotReady,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to create session")
		return nil, err
	}

	job := &entities.Job{
		ID:         uuid.New(),
		EntityId:   session.ID,
		EntityType: "live_session",
		Status:     constant.JobStatusPending,
		JobType:    constant.JobTypeSlideConvert,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to create slide convert job")
		return nil, err
	}

	message := dto.SlideConvertMessage{
		JobId:      job.ID,
		SessionId:  session.ID,
		ObjectPath: slideObjectPath,
	}
	if err := s.publisher.Publish(ctx, rabbitmq.SlideConvertBinding, message); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("session_id", session.ID.String()).Msg("failed to publish slide convert message")
		return nil, err
	}

	zerolog.Ctx(ctx).Info().Str("session_id", session.ID.String()).Str("room_id", session.RoomId).Msg("session scheduled")
	return session, nil
}

// Start moves the session live, ensures the transport room exists and mints a
// publish+subscribe credential for the presenter. Calling start on a session
// that is already live re-issues the credential instead of failing.
func (s *sessionService) Start(ctx context.Context, sessionId, callerId uuid.UUID) (*SessionAccess, error) {
	session, err := s.loadSession(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	if session.PresenterId != callerId {
		return nil, fmt.Errorf("%w: only the presenter may start a session", ErrForbidden)
	}

	switch session.Status {
	case constant.SessionStatusEnded:
		return nil, fmt.Errorf("%w: session has ended", ErrInvalidState)
	case constant.SessionStatusScheduled:
		err = s.repo.TransitionSessionStatus(ctx, sessionId, constant.SessionStatusScheduled, constant.SessionStatusLive, nil)
		if err != nil {
			if errors.Is(err, repository.ErrStateConflict) {
				return nil, fmt.Errorf("%w: session is no longer scheduled", ErrInvalidState)
			}
			return nil, err
		}
		session.Status = constant.SessionStatusLive
	case constant.SessionStatusLive:
		// already live, fall through and re-ensure the room
	}

	if err := s.rooms.CreateRoom(ctx, session.RoomId, len(session.Slides)); err != nil {
		if !errors.Is(err, realtime.ErrRoomExists) {
			zerolog.Ctx(ctx).Error().Err(err).Str("room_id", session.RoomId).Msg("failed to create room")
			return nil, err
		}
		zerolog.Ctx(ctx).Debug().Str("room_id", session.RoomId).Msg("room already exists")
	}

	token, err := s.tokens.Issue(callerId, RoomGrant{
		RoomId:       session.RoomId,
		CanPublish:   true,
		CanSubscribe: true,
	})
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().Str("session_id", sessionId.String()).Msg("session started")
	return &SessionAccess{Token: token, RoomId: session.RoomId, Session: session}, nil
}

// End moves the session to its terminal state, tears down the room
// best-effort and, when recording chunks exist, enqueues the merge.
func (s *sessionService) End(ctx context.Context, sessionId, callerId uuid.UUID) (*entities.LiveSession, error) {
	session, err := s.loadSession(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	if session.PresenterId != callerId {
		return nil, fmt.Errorf("%w: only the presenter may end a session", ErrForbidden)
	}
	if session.Status != constant.SessionStatusLive {
		return nil, fmt.Errorf("%w: session is not live", ErrInvalidState)
	}

	now := time.Now()
	err = s.repo.TransitionSessionStatus(ctx, sessionId, constant.SessionStatusLive, constant.SessionStatusEnded, map[string]interface{}{
		"end_time": now,
	})
	if err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return nil, fmt.Errorf("%w: session is not live", ErrInvalidState)
		}
		return nil, err
	}
	session.Status = constant.SessionStatusEnded
	session.EndTime = &now

	// The local status is authoritative; a teardown failure is logged, not surfaced.
	if err := s.rooms.CloseRoom(ctx, session.RoomId); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("room_id", session.RoomId).Msg("failed to close room")
	}

	s.enqueueRecordingMerge(ctx, session)

	zerolog.Ctx(ctx).Info().Str("session_id", sessionId.String()).Msg("session ended")
	return session, nil
}

func (s *sessionService) enqueueRecordingMerge(ctx context.Context, session *entities.LiveSession) {
	chunks, err := s.repo.GetRecordingChunksByLiveSessionId(ctx, session.ID)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("session_id", session.ID.String()).Msg("failed to list recording chunks")
		return
	}
	if len(chunks) == 0 {
		return
	}

	job := &entities.Job{
		ID:         uuid.New(),
		EntityId:   session.ID,
		EntityType: "live_session",
		Status:     constant.JobStatusPending,
		JobType:    constant.JobTypeRecordingMerge,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("session_id", session.ID.String()).Msg("failed to create recording merge job")
		return
	}

	message := dto.RecordingMergeMessage{
		JobId:         job.ID,
		LiveSessionId: session.ID,
	}
	if err := s.publisher.Publish(ctx, rabbitmq.RecordingMergeBinding, message); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("session_id", session.ID.String()).Msg("failed to publish recording merge message")
	}
}

// Join mints a subscribe-only credential. Only a live session can be joined.
func (s *sessionService) Join(ctx context.Context, sessionId, callerId uuid.UUID) (*SessionAccess, error) {
	session, err := s.loadSession(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	if session.Status != constant.SessionStatusLive {
		return nil, fmt.Errorf("%w: session is not live", ErrInvalidState)
	}

	token, err := s.tokens.Issue(callerId, RoomGrant{
		RoomId:       session.RoomId,
		CanPublish:   false,
		CanSubscribe: true,
	})
	if err != nil {
		return nil, err
	}

	return &SessionAccess{Token: token, RoomId: session.RoomId, Session: session}, nil
}

func (s *sessionService) Get(ctx context.Context, sessionId uuid.UUID) (*entities.LiveSession, error) {
	return s.loadSession(ctx, sessionId)
}

func (s *sessionService) List(ctx context.Context) ([]*entities.LiveSession, error) {
	return s.repo.ListSessionsByStatus(ctx, constant.SessionStatusScheduled, constant.SessionStatusLive)
}

// AddRecordingChunk records one uploaded chunk and flips the session's
// recording status on the first one. Only the presenter records chunks.
func (s *sessionService) AddRecordingChunk(ctx context.Context, sessionId uuid.UUID, callerId uuid.UUID, chunkIndex int, objectName string, fileSize int64) error {
	session, err := s.loadSession(ctx, sessionId)
	if err != nil {
		return err
	}
	if session.PresenterId != callerId {
		return fmt.Errorf("%w: only the presenter can upload recording chunks", ErrForbidden)
	}
	if session.Status != constant.SessionStatusLive {
		return fmt.Errorf("%w: session is not live", ErrInvalidState)
	}

	chunk := &entities.RecordingChunk{
		ID:            uuid.New(),
		LiveSessionId: sessionId,
		ChunkIndex:    chunkIndex,
		ObjectName:    objectName,
		FileSize:      &fileSize,
		Status:        "UPLOADED",
	}
	if err := s.repo.CreateRecordingChunk(ctx, chunk); err != nil {
		return err
	}

	if session.RecordingStatus == constant.RecordingStatusNotStarted {
		if err := s.repo.UpdateSessionRecording(ctx, sessionId, constant.RecordingStatusRecording, "", 0, chunkIndex+1); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("session_id", sessionId.String()).Msg("failed to update recording status")
		}
	}
	return nil
}

func (s *sessionService) loadSession(ctx context.Context, sessionId uuid.UUID) (*entities.LiveSession, error) {
	session, err := s.repo.FindSessionById(ctx, sessionId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionId)
		}
		return nil, err
	}
	return session, nil
}
