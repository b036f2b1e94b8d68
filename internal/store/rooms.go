package store

import (
	"context"
	"crypto/rand"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"sealedchat/internal/apperr"
)

const roomIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

const maxCreateRoomAttempts = 10

type RoomStore struct {
	db *pgxpool.Pool
}

func generateRoomID() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, 4)
	for i, b := range buf {
		out[i] = roomIDAlphabet[int(b)%len(roomIDAlphabet)]
	}
	return string(out), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateRoom inserts a new room in the pending state. If preferredID is
// non-empty it is used as-is (duplicate collision surfaces as an error);
// otherwise candidate ids are generated until one is unique, bounded by
// maxCreateRoomAttempts.
func (s *RoomStore) CreateRoom(ctx context.Context, preferredID string) (*Room, error) {
	if preferredID != "" {
		return s.insertRoom(ctx, preferredID)
	}

	var lastErr error
	for attempt := 0; attempt < maxCreateRoomAttempts; attempt++ {
		id, err := generateRoomID()
		if err != nil {
			return nil, apperr.Storage("failed to generate room id: %v", err)
		}
		room, err := s.insertRoom(ctx, id)
		if err == nil {
			return room, nil
		}
		if isUniqueViolation(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, apperr.CapacityExhausted(500, "failed to generate unique room id after %d attempts: %v", maxCreateRoomAttempts, lastErr)
}

func (s *RoomStore) insertRoom(ctx context.Context, id string) (*Room, error) {
	const q = `
		INSERT INTO rooms (room_id, status, created_at)
		VALUES ($1, 'pending', now())
		RETURNING room_id, status, created_at
	`
	var room Room
	err := s.db.QueryRow(ctx, q, id).Scan(&room.RoomID, &room.Status, &room.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, err
		}
		return nil, apperr.Storage("failed to create room: %v", err)
	}
	return &room, nil
}

// GetRoom returns nil, nil if the room does not exist.
func (s *RoomStore) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	return s.getRoomTx(ctx, s.db, roomID)
}

func (s *RoomStore) getRoomTx(ctx context.Context, q querier, roomID string) (*Room, error) {
	const query = `
		SELECT room_id, status, created_at, accepted_at, expires_at, closed_at, archive_key
		FROM rooms WHERE room_id = $1
	`
	var room Room
	err := q.QueryRow(ctx, query, roomID).Scan(
		&room.RoomID, &room.Status, &room.CreatedAt,
		&room.AcceptedAt, &room.ExpiresAt, &room.ClosedAt, &room.ArchiveKey,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage("failed to get room %s: %v", roomID, err)
	}
	return &room, nil
}

// AcceptRoom flips status pending -> active, stamping accepted_at/expires_at.
// Returns false (no error) if the room was not pending, making the call
// idempotent from the caller's point of view.
func (s *RoomStore) AcceptRoom(ctx context.Context, roomID string) (bool, error) {
	return s.acceptRoomTx(ctx, s.db, roomID, time.Now())
}

func (s *RoomStore) acceptRoomTx(ctx context.Context, q querier, roomID string, now time.Time) (bool, error) {
	const query = `
		UPDATE rooms SET status = 'active', accepted_at = $2, expires_at = $3
		WHERE room_id = $1 AND status = 'pending'
		RETURNING room_id
	`
	var returned string
	err := q.QueryRow(ctx, query, roomID, now, now.Add(24*time.Hour)).Scan(&returned)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Storage("failed to accept room %s: %v", roomID, err)
	}
	return true, nil
}

func (s *RoomStore) LockRoom(ctx context.Context, roomID string) (bool, error) {
	return s.conditionalTransition(ctx, roomID, "active", "locked")
}

func (s *RoomStore) UnlockRoom(ctx context.Context, roomID string) (bool, error) {
	return s.conditionalTransition(ctx, roomID, "locked", "active")
}

func (s *RoomStore) conditionalTransition(ctx context.Context, roomID, from, to string) (bool, error) {
	return s.conditionalTransitionQ(ctx, s.db, roomID, from, to)
}

// LockRoomTx is LockRoom run inside a caller-managed transaction, so the
// capacity-triggered active->locked flip can share the join transaction's
// row lock.
func (s *RoomStore) LockRoomTx(ctx context.Context, tx pgx.Tx, roomID string) (bool, error) {
	return s.conditionalTransitionQ(ctx, tx, roomID, "active", "locked")
}

func (s *RoomStore) conditionalTransitionQ(ctx context.Context, q querier, roomID, from, to string) (bool, error) {
	const query = `
		UPDATE rooms SET status = $3
		WHERE room_id = $1 AND status = $2
		RETURNING room_id
	`
	var returned string
	err := q.QueryRow(ctx, query, roomID, from, to).Scan(&returned)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Storage("failed to transition room %s %s->%s: %v", roomID, from, to, err)
	}
	return true, nil
}

// CloseRoom transitions {active,locked} -> closed. reason is logged by the
// caller, not stored.
func (s *RoomStore) CloseRoom(ctx context.Context, roomID string) (bool, error) {
	const query = `
		UPDATE rooms SET status = 'closed', closed_at = now()
		WHERE room_id = $1 AND status IN ('active', 'locked')
		RETURNING room_id
	`
	var returned string
	err := s.db.QueryRow(ctx, query, roomID).Scan(&returned)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Storage("failed to close room %s: %v", roomID, err)
	}
	return true, nil
}

// ArchiveRoom transitions closed -> archived, stamping archive_key.
func (s *RoomStore) ArchiveRoom(ctx context.Context, roomID, archiveKey string) (bool, error) {
	const query = `
		UPDATE rooms SET status = 'archived', archive_key = $2
		WHERE room_id = $1 AND status = 'closed'
		RETURNING room_id
	`
	var returned string
	err := s.db.QueryRow(ctx, query, roomID, archiveKey).Scan(&returned)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Storage("failed to archive room %s: %v", roomID, err)
	}
	return true, nil
}

// GetExpiredRooms returns ids with status in {active,locked} and
// expires_at < now.
func (s *RoomStore) GetExpiredRooms(ctx context.Context, now time.Time) ([]string, error) {
	const query = `
		SELECT room_id FROM rooms
		WHERE status IN ('active', 'locked') AND expires_at < $1
	`
	rows, err := s.db.Query(ctx, query, now)
	if err != nil {
		return nil, apperr.Storage("failed to list expired rooms: %v", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Storage("failed to scan expired room: %v", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetClosedUnarchivedRooms returns ids of rooms ready for the archival pass.
func (s *RoomStore) GetClosedUnarchivedRooms(ctx context.Context) ([]string, error) {
	const query = `SELECT room_id FROM rooms WHERE status = 'closed'`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, apperr.Storage("failed to list closed rooms: %v", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Storage("failed to scan closed room: %v", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// querier abstracts over *pgxpool.Pool and pgx.Tx so the same query helpers
// can run standalone or inside a caller-managed transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// LockRoomForUpdate takes a row lock on the room within tx, closing the
// admission race: the caller must hold this lock for the lifetime of a join
// transaction so a concurrent join cannot observe a stale participant count.
func (s *RoomStore) LockRoomForUpdate(ctx context.Context, tx pgx.Tx, roomID string) (*Room, error) {
	const query = `
		SELECT room_id, status, created_at, accepted_at, expires_at, closed_at, archive_key
		FROM rooms WHERE room_id = $1 FOR UPDATE
	`
	var room Room
	err := tx.QueryRow(ctx, query, roomID).Scan(
		&room.RoomID, &room.Status, &room.CreatedAt,
		&room.AcceptedAt, &room.ExpiresAt, &room.ClosedAt, &room.ArchiveKey,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage("failed to lock room %s: %v", roomID, err)
	}
	return &room, nil
}

// AcceptRoomTx is AcceptRoom run inside a caller-managed transaction, so it
// can be combined with the room-key and host-participant inserts atomically.
func (s *RoomStore) AcceptRoomTx(ctx context.Context, tx pgx.Tx, roomID string, now time.Time) (bool, error) {
	return s.acceptRoomTx(ctx, tx, roomID, now)
}
