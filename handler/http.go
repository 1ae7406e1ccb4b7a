package handler

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"
	"veda-server/config"
	"veda-server/dto"
	"veda-server/pkg/realtime"
	"veda-server/service"
)

type HTTP struct {
	cfg      *config.Config
	sessions service.SessionService
	lessons  service.LessonService
	tokens   service.TokenIssuer
	rooms    *realtime.Manager
	upgrader websocket.Upgrader
}

func NewHTTP(cfg *config.Config, sessions service.SessionService, lessons service.LessonService, tokens service.TokenIssuer, rooms *realtime.Manager) *HTTP {
	return &HTTP{
		cfg:      cfg,
		sessions: sessions,
		lessons:  lessons,
		tokens:   tokens,
		rooms:    rooms,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *HTTP) Register(r *gin.Engine) {
	r.GET("/ws", h.attachWebsocket)

	authed := r.Group("/", Auth(h.cfg.Auth.JWTSecret))
	{
		authed.POST("/live-classes", h.schedule)
		authed.GET("/live-classes", h.list)
		authed.GET("/live-classes/:id", h.get)
		authed.POST("/live-classes/:id/start", h.start)
		authed.POST("/live-classes/:id/end", h.end)
		authed.GET("/live-classes/:id/join", h.join)
		authed.POST("/live-classes/:id/chunks", h.uploadChunk)
		authed.POST("/lessons", h.uploadLesson)
		authed.GET("/lessons/:id", h.getLesson)
	}
}

func (h *HTTP) schedule(c *gin.Context) {
	caller, ok := callerId(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Message: "missing identity"})
		return
	}

	var req dto.ScheduleSessionRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: err.Error()})
		return
	}

	slideObjectPath := ""
	file, err := c.FormFile("slides")
	if err == nil {
		src, openErr := file.Open()
		if openErr != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: openErr.Error()})
			return
		}
		defer src.Close()

		slideObjectPath = fmt.Sprintf("slide-decks/%s%s", uuid.New(), filepath.Ext(file.Filename))
		_, putErr := h.cfg.Storage.PutObject(c.Request.Context(), h.cfg.MinIOBucket, slideObjectPath, src, file.Size, minio.PutObjectOptions{ContentType: "application/pdf"})
		if putErr != nil {
			zerolog.Ctx(c.Request.Context()).Error().Err(putErr).Msg("failed to store slide source")
			c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Message: "failed to store slide source"})
			return
		}
	}

	session, err := h.sessions.Schedule(c.Request.Context(), caller, req, slideObjectPath)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.SessionResponse{Success: true, Session: session})
}

func (h *HTTP) list(c *gin.Context) {
	sessions, err := h.sessions.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SessionListResponse{Success: true, Sessions: sessions})
}

func (h *HTTP) get(c *gin.Context) {
	sessionId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "invalid session id"})
		return
	}

	session, err := h.sessions.Get(c.Request.Context(), sessionId)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SessionResponse{Success: true, Session: session})
}

func (h *HTTP) start(c *gin.Context) {
	caller, ok := callerId(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Message: "missing identity"})
		return
	}

	sessionId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "invalid session id"})
		return
	}

	access, err := h.sessions.Start(c.Request.Context(), sessionId, caller)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.AccessResponse{Success: true, Token: access.Token, RoomId: access.RoomId, Session: access.Session})
}

func (h *HTTP) end(c *gin.Context) {
	caller, ok := callerId(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Message: "missing identity"})
		return
	}

	sessionId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "invalid session id"})
		return
	}

	session, err := h.sessions.End(c.Request.Context(), sessionId, caller)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SessionResponse{Success: true, Session: session})
}

func (h *HTTP) join(c *gin.Context) {
	caller, ok := callerId(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Message: "missing identity"})
		return
	}

	sessionId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "invalid session id"})
		return
	}

	access, err := h.sessions.Join(c.Request.Context(), sessionId, caller)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.AccessResponse{Success: true, Token: access.Token, RoomId: access.RoomId, Session: access.Session})
}

func (h *HTTP) uploadChunk(c *gin.Context) {
	caller, ok := callerId(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Message: "missing identity"})
		return
	}

	sessionId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "invalid session id"})
		return
	}

	chunkIndex, err := strconv.Atoi(c.PostForm("chunk_index"))
	if err != nil || chunkIndex < 0 {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "invalid chunk_index"})
		return
	}

	file, err := c.FormFile("chunk")
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "chunk file is required"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: err.Error()})
		return
	}
	defer src.Close()

	objectName := fmt.Sprintf("sessions/%s/chunks/chunk-%05d%s", sessionId, chunkIndex, filepath.Ext(file.Filename))
	_, err = h.cfg.Storage.PutObject(c.Request.Context(), h.cfg.MinIOBucket, objectName, src, file.Size, minio.PutObjectOptions{})
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("object", objectName).Msg("failed to store recording chunk")
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Message: "failed to store chunk"})
		return
	}

	if err := h.sessions.AddRecordingChunk(c.Request.Context(), sessionId, caller, chunkIndex, objectName, file.Size); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ChunkUploadResponse{Success: true, ChunkIndex: chunkIndex, ObjectName: objectName})
}

func (h *HTTP) uploadLesson(c *gin.Context) {
	courseId, err := uuid.Parse(c.PostForm("course_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "invalid course_id"})
		return
	}

	file, err := c.FormFile("video")
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "video file is required"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: err.Error()})
		return
	}
	defer src.Close()

	lesson, err := h.lessons.Upload(c.Request.Context(), courseId, c.PostForm("title"), file.Filename, src, file.Size)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.LessonResponse{Success: true, Lesson: lesson})
}

func (h *HTTP) getLesson(c *gin.Context) {
	lessonId, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "invalid lesson id"})
		return
	}

	lesson, err := h.lessons.Get(c.Request.Context(), lessonId)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.LessonResponse{Success: true, Lesson: lesson})
}

// attachWebsocket authenticates with the room access token minted by start or
// join, then hands the connection to the room. The publish grant travels with
// the connection so subscribe-only viewers cannot emit slide events.
func (h *HTTP) attachWebsocket(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Message: "missing token"})
		return
	}

	claims, err := h.tokens.Verify(tokenStr)
	if err != nil {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Message: "invalid token"})
		return
	}
	if !claims.CanSubscribe {
		c.JSON(http.StatusForbidden, dto.ErrorResponse{Message: "token has no subscribe grant"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	if err := h.rooms.Attach(claims.RoomId, conn, claims.Subject, claims.CanPublish); err != nil {
		zerolog.Ctx(c.Request.Context()).Warn().Err(err).Str("room_id", claims.RoomId).Msg("failed to attach participant")
		conn.Close()
		return
	}
}

func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrInvalidState):
		status = http.StatusConflict
	}

	c.JSON(status, dto.ErrorResponse{Message: err.Error()})
}
