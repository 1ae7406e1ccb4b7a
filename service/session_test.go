package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"veda-server/config"
	"veda-server/constant"
	"veda-server/dto"
	"veda-server/entities"
	"veda-server/pkg/rabbitmq"
	"veda-server/pkg/realtime"
	"veda-server/repository"
)

type fakeRepo struct {
	sessions map[uuid.UUID]*entities.LiveSession
	lessons  map[uuid.UUID]*entities.Lesson
	jobs     map[uuid.UUID]*entities.Job
	chunks   map[uuid.UUID][]*entities.RecordingChunk
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		sessions: make(map[uuid.UUID]*entities.LiveSession),
		lessons:  make(map[uuid.UUID]*entities.Lesson),
		jobs:     make(map[uuid.UUID]*entities.Job),
		chunks:   make(map[uuid.UUID][]*entities.RecordingChunk),
	}
}

func (f *fakeRepo) Transaction(ctx context.Context, callback func(ctx context.Context) error, opts ...*sql.TxOptions) error {
	return callback(ctx)
}

func (f *fakeRepo) GetDB() *gorm.DB { return nil }

func (f *fakeRepo) CreateSession(ctx context.Context, session *entities.LiveSession) error {
	f.sessions[session.ID] = session
	return nil
}

func (f *fakeRepo) FindSessionById(ctx context.Context, id uuid.UUID) (*entities.LiveSession, error) {
	session, ok := f.sessions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return session, nil
}

func (f *fakeRepo) ListSessionsByStatus(ctx context.Context, statuses ...constant.SessionStatus) ([]*entities.LiveSession, error) {
	var out []*entities.LiveSession
	for _, s := range f.sessions {
		for _, status := range statuses {
			if s.Status == status {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

func (f *fakeRepo) TransitionSessionStatus(ctx context.Context, id uuid.UUID, from, to constant.SessionStatus, updates map[string]interface{}) error {
	session, ok := f.sessions[id]
	if !ok || session.Status != from {
		return repository.ErrStateConflict
	}
	session.Status = to
	if v, ok := updates["end_time"]; ok {
		if ts, ok := v.(time.Time); ok {
			session.EndTime = &ts
		}
	}
	return nil
}

func (f *fakeRepo) SetSessionSlides(ctx context.Context, sessionId uuid.UUID, slides []entities.Slide) error {
	session, ok := f.sessions[sessionId]
	if !ok || session.SlideStatus != constant.SlideStatusNotReady {
		return repository.ErrStateConflict
	}
	session.Slides = slides
	session.SlideStatus = constant.SlideStatusReady
	return nil
}

func (f *fakeRepo) UpdateSessionSlideStatus(ctx context.Context, sessionId uuid.UUID, status constant.SlideStatus) error {
	if session, ok := f.sessions[sessionId]; ok {
		session.SlideStatus = status
	}
	return nil
}

func (f *fakeRepo) UpdateSessionRecording(ctx context.Context, sessionId uuid.UUID, status constant.RecordingStatus, finalVideoObjectName string, durationSeconds int, totalChunks int) error {
	if session, ok := f.sessions[sessionId]; ok {
		session.RecordingStatus = status
		session.TotalChunks = totalChunks
	}
	return nil
}

func (f *fakeRepo) CreateLesson(ctx context.Context, lesson *entities.Lesson) error {
	f.lessons[lesson.ID] = lesson
	return nil
}

func (f *fakeRepo) FindLessonById(ctx context.Context, id uuid.UUID) (*entities.Lesson, error) {
	lesson, ok := f.lessons[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return lesson, nil
}

func (f *fakeRepo) UpdateLessonVideoURL(ctx context.Context, lessonId uuid.UUID, url string) error {
	if lesson, ok := f.lessons[lessonId]; ok {
		lesson.VideoUrl = url
		lesson.Status = constant.LessonStatusReady
	}
	return nil
}

func (f *fakeRepo) CreateJob(ctx context.Context, job *entities.Job) error {
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeRepo) FindJobById(ctx context.Context, id uuid.UUID) (*entities.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return job, nil
}

func (f *fakeRepo) UpdateStatusJob(ctx context.Context, status constant.JobStatus, id uuid.UUID) error {
	if job, ok := f.jobs[id]; ok {
		job.Status = status
	}
	return nil
}

func (f *fakeRepo) CreateRecordingChunk(ctx context.Context, chunk *entities.RecordingChunk) error {
	f.chunks[chunk.LiveSessionId] = append(f.chunks[chunk.LiveSessionId], chunk)
	return nil
}

func (f *fakeRepo) GetRecordingChunksByLiveSessionId(ctx context.Context, liveSessionId uuid.UUID) ([]*entities.RecordingChunk, error) {
	return f.chunks[liveSessionId], nil
}

func (f *fakeRepo) UpdateRecordingChunkStatus(ctx context.Context, chunkId uuid.UUID, status string) error {
	return nil
}

func (f *fakeRepo) jobsOfType(jobType constant.JobType) []*entities.Job {
	var out []*entities.Job
	for _, j := range f.jobs {
		if j.JobType == jobType {
			out = append(out, j)
		}
	}
	return out
}

type fakeRooms struct {
	created   map[string]int
	closed    map[string]int
	createErr error
	closeErr  error
}

func newFakeRooms() *fakeRooms {
	return &fakeRooms{created: make(map[string]int), closed: make(map[string]int)}
}

func (f *fakeRooms) CreateRoom(ctx context.Context, roomId string, slideCount int) error {
	f.created[roomId]++
	if f.createErr != nil {
		return f.createErr
	}
	if f.created[roomId] > 1 {
		return realtime.ErrRoomExists
	}
	return nil
}

func (f *fakeRooms) CloseRoom(ctx context.Context, roomId string) error {
	f.closed[roomId]++
	return f.closeErr
}

type published struct {
	binding rabbitmq.Binding
	message interface{}
}

type fakePublisher struct {
	messages []published
	err      error
}

func (f *fakePublisher) Publish(ctx context.Context, binding rabbitmq.Binding, message interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, published{binding: binding, message: message})
	return nil
}

type fixture struct {
	repo      *fakeRepo
	rooms     *fakeRooms
	publisher *fakePublisher
	tokens    TokenIssuer
	svc       SessionService
}

func newFixture() *fixture {
	repo := newFakeRepo()
	rooms := newFakeRooms()
	publisher := &fakePublisher{}
	tokens := NewTokenIssuer(config.Auth{JWTSecret: []byte("test-secret"), RoomTTL: time.Hour})
	cfg := &config.Config{Auth: config.Auth{JWTSecret: []byte("test-secret"), RoomTTL: time.Hour}}
	return &fixture{
		repo:      repo,
		rooms:     rooms,
		publisher: publisher,
		tokens:    tokens,
		svc:       NewSessionService(repo, cfg, rooms, tokens, publisher),
	}
}

func (fx *fixture) schedule(t *testing.T, presenterId uuid.UUID) *entities.LiveSession {
	t.Helper()
	session, err := fx.svc.Schedule(context.Background(), presenterId, dto.ScheduleSessionRequest{
		CourseId:  uuid.New(),
		Title:     "Intro to Distributed Systems",
		StartTime: time.Now().Add(time.Hour),
	}, "slide-decks/deck.pdf")
	if err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	return session
}

func (fx *fixture) markSlidesReady(t *testing.T, sessionId uuid.UUID, pages int) {
	t.Helper()
	slides := make([]entities.Slide, pages)
	for i := range slides {
		slides[i] = entities.Slide{PageIndex: i, ImageUrl: "sessions/x/slides/page.png"}
	}
	if err := fx.repo.SetSessionSlides(context.Background(), sessionId, slides); err != nil {
		t.Fatalf("setting slides failed: %v", err)
	}
}

func TestScheduleValidation(t *testing.T) {
	fx := newFixture()
	presenter := uuid.New()

	tests := []struct {
		name      string
		req       dto.ScheduleSessionRequest
		slidePath string
	}{
		{
			name:      "missing title",
			req:       dto.ScheduleSessionRequest{CourseId: uuid.New(), StartTime: time.Now()},
			slidePath: "slide-decks/deck.pdf",
		},
		{
			name:      "missing slide source",
			req:       dto.ScheduleSessionRequest{CourseId: uuid.New(), Title: "t", StartTime: time.Now()},
			slidePath: "",
		},
		{
			name:      "missing start time",
			req:       dto.ScheduleSessionRequest{CourseId: uuid.New(), Title: "t"},
			slidePath: "slide-decks/deck.pdf",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.svc.Schedule(context.Background(), presenter, tt.req, tt.slidePath)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestScheduleEnqueuesSlideConversion(t *testing.T) {
	fx := newFixture()
	session := fx.schedule(t, uuid.New())

	if session.Status != constant.SessionStatusScheduled {
		t.Fatalf("expected SCHEDULED, got %s", session.Status)
	}
	if session.RoomId == "" {
		t.Fatal("expected a room id to be assigned")
	}

	jobs := fx.repo.jobsOfType(constant.JobTypeSlideConvert)
	if len(jobs) != 1 {
		t.Fatalf("expected one slide convert job, got %d", len(jobs))
	}
	if jobs[0].Status != constant.JobStatusPending {
		t.Fatalf("expected pending job, got %s", jobs[0].Status)
	}

	if len(fx.publisher.messages) != 1 {
		t.Fatalf("expected one published message, got %d", len(fx.publisher.messages))
	}
	if fx.publisher.messages[0].binding != rabbitmq.SlideConvertBinding {
		t.Fatalf("published to wrong binding: %+v", fx.publisher.messages[0].binding)
	}
}

func TestSessionLifecycleScenario(t *testing.T) {
	fx := newFixture()
	presenter := uuid.New()
	viewer := uuid.New()

	session := fx.schedule(t, presenter)
	fx.markSlidesReady(t, session.ID, 3)

	// Presenter starts: session goes live, credential carries both grants.
	access, err := fx.svc.Start(context.Background(), session.ID, presenter)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if access.Session.Status != constant.SessionStatusLive {
		t.Fatalf("expected LIVE, got %s", access.Session.Status)
	}
	claims, err := fx.tokens.Verify(access.Token)
	if err != nil {
		t.Fatalf("presenter token invalid: %v", err)
	}
	if !claims.CanPublish || !claims.CanSubscribe {
		t.Fatalf("presenter credential must carry publish+subscribe, got %+v", claims)
	}
	if claims.RoomId != session.RoomId {
		t.Fatalf("credential scoped to wrong room: %s", claims.RoomId)
	}

	// A second identity joins while live: subscribe-only credential.
	viewerAccess, err := fx.svc.Join(context.Background(), session.ID, viewer)
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	viewerClaims, err := fx.tokens.Verify(viewerAccess.Token)
	if err != nil {
		t.Fatalf("viewer token invalid: %v", err)
	}
	if viewerClaims.CanPublish {
		t.Fatal("viewer credential must not carry the publish grant")
	}
	if !viewerClaims.CanSubscribe {
		t.Fatal("viewer credential must carry the subscribe grant")
	}

	// End: terminal state, end time stamped, room torn down.
	ended, err := fx.svc.End(context.Background(), session.ID, presenter)
	if err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if ended.Status != constant.SessionStatusEnded {
		t.Fatalf("expected ENDED, got %s", ended.Status)
	}
	if ended.EndTime == nil {
		t.Fatal("expected end time to be stamped")
	}
	if fx.rooms.closed[session.RoomId] != 1 {
		t.Fatal("expected room teardown")
	}

	// Joining after end fails, and ended never goes live again.
	if _, err := fx.svc.Join(context.Background(), session.ID, viewer); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on join after end, got %v", err)
	}
	if _, err := fx.svc.Start(context.Background(), session.ID, presenter); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on restart after end, got %v", err)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	fx := newFixture()
	presenter := uuid.New()
	session := fx.schedule(t, presenter)

	if _, err := fx.svc.Start(context.Background(), session.ID, presenter); err != nil {
		t.Fatalf("first start failed: %v", err)
	}

	// Second start finds the session live and the room already existing.
	access, err := fx.svc.Start(context.Background(), session.ID, presenter)
	if err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	if access.Token == "" {
		t.Fatal("expected a credential from a repeated start")
	}
	if fx.rooms.created[session.RoomId] != 2 {
		t.Fatalf("expected two create attempts, got %d", fx.rooms.created[session.RoomId])
	}
}

func TestStartChecksPresenter(t *testing.T) {
	fx := newFixture()
	session := fx.schedule(t, uuid.New())

	if _, err := fx.svc.Start(context.Background(), session.ID, uuid.New()); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := fx.svc.End(context.Background(), session.ID, uuid.New()); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden on end, got %v", err)
	}
}

func TestStartUnknownSession(t *testing.T) {
	fx := newFixture()

	if _, err := fx.svc.Start(context.Background(), uuid.New(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStartPropagatesProviderFailure(t *testing.T) {
	fx := newFixture()
	presenter := uuid.New()
	session := fx.schedule(t, presenter)

	providerErr := errors.New("provider down")
	fx.rooms.createErr = providerErr

	if _, err := fx.svc.Start(context.Background(), session.ID, presenter); !errors.Is(err, providerErr) {
		t.Fatalf("expected provider error to propagate, got %v", err)
	}
}

func TestJoinRequiresLiveSession(t *testing.T) {
	fx := newFixture()
	presenter := uuid.New()
	session := fx.schedule(t, presenter)

	// Still scheduled.
	if _, err := fx.svc.Join(context.Background(), session.ID, uuid.New()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on scheduled join, got %v", err)
	}
}

func TestEndTeardownIsBestEffort(t *testing.T) {
	fx := newFixture()
	presenter := uuid.New()
	session := fx.schedule(t, presenter)

	if _, err := fx.svc.Start(context.Background(), session.ID, presenter); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	fx.rooms.closeErr = errors.New("teardown failed")
	ended, err := fx.svc.End(context.Background(), session.ID, presenter)
	if err != nil {
		t.Fatalf("end must not surface teardown failure, got %v", err)
	}
	if ended.Status != constant.SessionStatusEnded {
		t.Fatalf("expected ENDED, got %s", ended.Status)
	}
}

func TestEndEnqueuesRecordingMerge(t *testing.T) {
	fx := newFixture()
	presenter := uuid.New()
	session := fx.schedule(t, presenter)

	if _, err := fx.svc.Start(context.Background(), session.ID, presenter); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := fx.svc.AddRecordingChunk(context.Background(), session.ID, presenter, 0, "sessions/x/chunks/chunk-00000.webm", 1024); err != nil {
		t.Fatalf("chunk upload failed: %v", err)
	}

	if _, err := fx.svc.End(context.Background(), session.ID, presenter); err != nil {
		t.Fatalf("end failed: %v", err)
	}

	jobs := fx.repo.jobsOfType(constant.JobTypeRecordingMerge)
	if len(jobs) != 1 {
		t.Fatalf("expected one recording merge job, got %d", len(jobs))
	}

	var mergePublished bool
	for _, m := range fx.publisher.messages {
		if m.binding == rabbitmq.RecordingMergeBinding {
			mergePublished = true
		}
	}
	if !mergePublished {
		t.Fatal("expected a recording merge message to be published")
	}
}

func TestAddRecordingChunkRequiresLiveSession(t *testing.T) {
	fx := newFixture()
	presenter := uuid.New()
	session := fx.schedule(t, presenter)

	err := fx.svc.AddRecordingChunk(context.Background(), session.ID, presenter, 0, "sessions/x/chunks/chunk-00000.webm", 1024)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestAddRecordingChunkChecksPresenter(t *testing.T) {
	fx := newFixture()
	presenter := uuid.New()
	session := fx.schedule(t, presenter)

	if _, err := fx.svc.Start(context.Background(), session.ID, presenter); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	err := fx.svc.AddRecordingChunk(context.Background(), session.ID, uuid.New(), 0, "sessions/x/chunks/chunk-00000.webm", 1024)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for a non-presenter upload, got %v", err)
	}
	if len(fx.repo.chunks) != 0 {
		t.Fatalf("expected no chunk recorded, got %d", len(fx.repo.chunks))
	}
}
