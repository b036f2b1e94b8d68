package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sealedchat/internal/apperr"
)

type RoomKeyStore struct {
	db *pgxpool.Pool
}

// InsertWrappedKey stores the master-key-wrapped room key within tx, as
// part of the room-acceptance transaction. One row per room; a second
// insert for the same room is a programming error and fails on the unique
// constraint.
func (s *RoomKeyStore) InsertWrappedKey(ctx context.Context, tx pgx.Tx, roomID string, wrapped []byte) error {
	const query = `INSERT INTO room_keys (room_id, wrapped_key) VALUES ($1, $2)`
	if _, err := tx.Exec(ctx, query, roomID, wrapped); err != nil {
		return apperr.Storage("failed to insert room key for room %s: %v", roomID, err)
	}
	return nil
}

// GetWrappedKey returns nil, nil if no room key has been established yet
// (the room is still pending).
func (s *RoomKeyStore) GetWrappedKey(ctx context.Context, roomID string) ([]byte, error) {
	const query = `SELECT wrapped_key FROM room_keys WHERE room_id = $1`
	var wrapped []byte
	err := s.db.QueryRow(ctx, query, roomID).Scan(&wrapped)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage("failed to get room key for room %s: %v", roomID, err)
	}
	return wrapped, nil
}
