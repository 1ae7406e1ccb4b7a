package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"veda-server/config"
	"veda-server/service"
)

func TestRespondErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", fmt.Errorf("%w: title is required", service.ErrValidation), http.StatusBadRequest},
		{"not found", fmt.Errorf("%w: session x", service.ErrNotFound), http.StatusNotFound},
		{"forbidden", fmt.Errorf("%w: not the presenter", service.ErrForbidden), http.StatusForbidden},
		{"invalid state", fmt.Errorf("%w: session is not live", service.ErrInvalidState), http.StatusConflict},
		{"unknown", fmt.Errorf("provider down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			respondError(c, tt.err)
			if w.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, w.Code)
			}
		})
	}
}

// The lifecycle handlers reject requests whose context carries no caller
// identity instead of passing a zero id down to the service layer.
func TestLifecycleHandlersRequireIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := NewHTTP(&config.Config{}, nil, nil, nil, nil)
	r := gin.New()
	r.POST("/live-classes/:id/start", h.start)
	r.POST("/live-classes/:id/end", h.end)
	r.GET("/live-classes/:id/join", h.join)
	r.POST("/live-classes/:id/chunks", h.uploadChunk)

	id := uuid.New().String()
	tests := []struct {
		name   string
		method string
		path   string
	}{
		{"start", http.MethodPost, "/live-classes/" + id + "/start"},
		{"end", http.MethodPost, "/live-classes/" + id + "/end"},
		{"join", http.MethodGet, "/live-classes/" + id + "/join"},
		{"chunks", http.MethodPost, "/live-classes/" + id + "/chunks"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(tt.method, tt.path, nil)
			r.ServeHTTP(w, req)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", w.Code)
			}
		})
	}
}

func identityToken(t *testing.T, secret []byte, userId string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userId,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	secret := []byte("test-secret")

	r := gin.New()
	var gotCaller uuid.UUID
	r.GET("/protected", Auth(secret), func(c *gin.Context) {
		gotCaller, _ = callerId(c)
		c.Status(http.StatusOK)
	})

	t.Run("missing header", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer not-a-token")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+identityToken(t, []byte("other"), uuid.New().String()))
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
	})

	t.Run("valid token", func(t *testing.T) {
		userId := uuid.New()
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+identityToken(t, secret, userId.String()))
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if gotCaller != userId {
			t.Fatalf("expected caller %s, got %s", userId, gotCaller)
		}
	})
}
