// Package auth issues and validates the HS256 JWTs that authenticate a
// participant's WebSocket handshake and REST calls for a room.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"sealedchat/internal/apperr"
)

// Claims identifies a participant within a room for the lifetime of the
// room. Tokens are not renewed; a new token is issued by each room create,
// accept, or join call.
type Claims struct {
	RoomID        string `json:"room_id"`
	ParticipantID int64  `json:"participant_id"`
	Role          string `json:"role"`
	DeviceID      string `json:"device_id"`
	jwt.RegisteredClaims
}

type Issuer struct {
	secret []byte
}

func NewIssuer(secret []byte) *Issuer {
	return &Issuer{secret: secret}
}

// Issue mints a token valid for ttl, scoped to one participant in one room.
func (iss *Issuer) Issue(roomID string, participantID int64, role, deviceID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RoomID:        roomID,
		ParticipantID: participantID,
		Role:          role,
		DeviceID:      deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(iss.secret)
	if err != nil {
		return "", apperr.Crypto("failed to sign participant token: %v", err)
	}
	return signed, nil
}

// Validate parses and verifies a token, returning its claims.
func (iss *Issuer) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperr.AuthFailure("unexpected signing method: %v", t.Header["alg"])
		}
		return iss.secret, nil
	})
	if err != nil {
		return nil, apperr.AuthFailure("invalid token: %v", err)
	}
	if !token.Valid {
		return nil, apperr.AuthFailure("token failed validation")
	}
	return claims, nil
}
