// Package device issues and persists the device-id cookie that ties a
// browser session to a participant row, the ambient session layer the
// core (lifecycle, broker) depends on but never implements itself.
package device

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"sealedchat/internal/apperr"
)

const (
	CookieName = "sealedchat_device_id"
	keyPrefix  = "device:"
)

type Store struct {
	redis    *redis.Client
	lifetime time.Duration
}

func NewStore(client *redis.Client, lifetime time.Duration) *Store {
	return &Store{redis: client, lifetime: lifetime}
}

// EnsureDeviceID reads the device-id cookie from r, minting and persisting
// a new one (and setting it on w) if absent. Returns the device id either
// way.
func (s *Store) EnsureDeviceID(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, error) {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		if err := s.touch(ctx, cookie.Value); err != nil {
			return "", err
		}
		return cookie.Value, nil
	}

	deviceID := uuid.NewString()
	if err := s.touch(ctx, deviceID); err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    deviceID,
		Path:     "/",
		MaxAge:   int(s.lifetime.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	return deviceID, nil
}

func (s *Store) touch(ctx context.Context, deviceID string) error {
	if err := s.redis.Set(ctx, keyPrefix+deviceID, time.Now().Unix(), s.lifetime).Err(); err != nil {
		return apperr.Storage("failed to persist device session: %v", err)
	}
	return nil
}

// Exists reports whether a device id has a live session, used to validate
// a device id supplied without its cookie (e.g. a reconnect carrying the
// id in a query parameter during local development).
func (s *Store) Exists(ctx context.Context, deviceID string) (bool, error) {
	n, err := s.redis.Exists(ctx, keyPrefix+deviceID).Result()
	if err != nil {
		return false, apperr.Storage("failed to check device session: %v", err)
	}
	return n > 0, nil
}
