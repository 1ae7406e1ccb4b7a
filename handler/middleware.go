package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"veda-server/dto"
)

const callerIdKey = "caller_id"

// Auth validates the bearer identity token and stores the caller's id on the
// request context. Identity issuance itself lives in the auth service, not
// here.
func Auth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{Message: "missing bearer token"})
			return
		}

		token, err := jwt.ParseWithClaims(strings.TrimPrefix(header, "Bearer "), &jwt.MapClaims{}, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{Message: "invalid token"})
			return
		}

		claims, ok := token.Claims.(*jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{Message: "invalid token"})
			return
		}

		userId, ok := (*claims)["user_id"].(string)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{Message: "invalid user id in token"})
			return
		}

		callerId, err := uuid.Parse(userId)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{Message: "invalid user id in token"})
			return
		}

		c.Set(callerIdKey, callerId)
		c.Next()
	}
}

func callerId(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get(callerIdKey)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
