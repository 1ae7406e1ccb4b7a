package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"veda-server/config"
)

// RoomGrant describes what a participant may do inside a room. A presenter
// credential carries publish+subscribe, a viewer credential subscribe only.
type RoomGrant struct {
	RoomId       string
	CanPublish   bool
	CanSubscribe bool
}

type RoomClaims struct {
	jwt.RegisteredClaims
	RoomId       string `json:"room_id"`
	CanPublish   bool   `json:"can_publish"`
	CanSubscribe bool   `json:"can_subscribe"`
}

type TokenIssuer interface {
	Issue(identity uuid.UUID, grant RoomGrant) (string, error)
	Verify(token string) (*RoomClaims, error)
}

type tokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(cfg config.Auth) TokenIssuer {
	return &tokenIssuer{
		secret: cfg.JWTSecret,
		ttl:    cfg.RoomTTL,
	}
}

func (i *tokenIssuer) Issue(identity uuid.UUID, grant RoomGrant) (string, error) {
	now := time.Now()
	claims := RoomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		RoomId:       grant.RoomId,
		CanPublish:   grant.CanPublish,
		CanSubscribe: grant.CanSubscribe,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

func (i *tokenIssuer) Verify(tokenString string) (*RoomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &RoomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*RoomClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}
