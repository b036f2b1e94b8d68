package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sealedchat/internal/apperr"
)

// RoomCapacity is the hard cap on concurrent participants per room (host +
// one guest). Enforced inside the join transaction under the room row lock.
const RoomCapacity = 2

// InactivityTimeout matches the original cleanup sweep: a participant with
// no activity for this long is treated as disconnected.
const InactivityTimeout = 90 * time.Second

type ParticipantStore struct {
	db *pgxpool.Pool
}

// CreateParticipant inserts a participant row within tx. Call sites that
// need the capacity invariant enforced must first call
// RoomStore.LockRoomForUpdate and CountParticipants(tx, ...) within the same
// transaction before inserting.
func (s *ParticipantStore) CreateParticipant(ctx context.Context, tx pgx.Tx, roomID string, role Role, deviceID string, ipAddress *string) (*Participant, error) {
	const query = `
		INSERT INTO participants (room_id, role, device_id, ip_address, joined_at, last_seen_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING id, room_id, role, device_id, display_name, ip_address, joined_at, last_seen_at
	`
	var p Participant
	err := tx.QueryRow(ctx, query, roomID, role, deviceID, ipAddress).Scan(
		&p.ID, &p.RoomID, &p.Role, &p.DeviceID, &p.DisplayName, &p.IPAddress, &p.JoinedAt, &p.LastSeenAt,
	)
	if err != nil {
		return nil, apperr.Storage("failed to create participant: %v", err)
	}
	return &p, nil
}

// CountParticipants counts current participants of a room within tx. Must
// be called after LockRoomForUpdate in the same transaction for the count
// to be race-free.
func (s *ParticipantStore) CountParticipants(ctx context.Context, tx pgx.Tx, roomID string) (int, error) {
	const query = `SELECT count(*) FROM participants WHERE room_id = $1`
	var n int
	if err := tx.QueryRow(ctx, query, roomID).Scan(&n); err != nil {
		return 0, apperr.Storage("failed to count participants for room %s: %v", roomID, err)
	}
	return n, nil
}

func (s *ParticipantStore) GetParticipant(ctx context.Context, id int64) (*Participant, error) {
	const query = `
		SELECT id, room_id, role, device_id, display_name, ip_address, joined_at, last_seen_at
		FROM participants WHERE id = $1
	`
	var p Participant
	err := s.db.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.RoomID, &p.Role, &p.DeviceID, &p.DisplayName, &p.IPAddress, &p.JoinedAt, &p.LastSeenAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage("failed to get participant %d: %v", id, err)
	}
	return &p, nil
}

// GetParticipantByDevice returns the participant row for a room/device pair,
// or nil if the device has no active participant in the room.
func (s *ParticipantStore) GetParticipantByDevice(ctx context.Context, roomID, deviceID string) (*Participant, error) {
	return getParticipantByDeviceQ(ctx, s.db, roomID, deviceID)
}

// GetParticipantByDeviceTx is the same lookup run inside a caller-managed
// transaction, so JoinRoom can check for an existing participant under the
// same room row lock it uses for the capacity check.
func (s *ParticipantStore) GetParticipantByDeviceTx(ctx context.Context, tx pgx.Tx, roomID, deviceID string) (*Participant, error) {
	return getParticipantByDeviceQ(ctx, tx, roomID, deviceID)
}

func getParticipantByDeviceQ(ctx context.Context, q querier, roomID, deviceID string) (*Participant, error) {
	const query = `
		SELECT id, room_id, role, device_id, display_name, ip_address, joined_at, last_seen_at
		FROM participants WHERE room_id = $1 AND device_id = $2
	`
	var p Participant
	err := q.QueryRow(ctx, query, roomID, deviceID).Scan(
		&p.ID, &p.RoomID, &p.Role, &p.DeviceID, &p.DisplayName, &p.IPAddress, &p.JoinedAt, &p.LastSeenAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage("failed to get participant by device in room %s: %v", roomID, err)
	}
	return &p, nil
}

func (s *ParticipantStore) GetRoomParticipants(ctx context.Context, roomID string) ([]*Participant, error) {
	const query = `
		SELECT id, room_id, role, device_id, display_name, ip_address, joined_at, last_seen_at
		FROM participants WHERE room_id = $1 ORDER BY joined_at ASC
	`
	rows, err := s.db.Query(ctx, query, roomID)
	if err != nil {
		return nil, apperr.Storage("failed to list participants for room %s: %v", roomID, err)
	}
	defer rows.Close()

	var out []*Participant
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.ID, &p.RoomID, &p.Role, &p.DeviceID, &p.DisplayName, &p.IPAddress, &p.JoinedAt, &p.LastSeenAt); err != nil {
			return nil, apperr.Storage("failed to scan participant: %v", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// TouchLastSeen bumps a participant's liveness timestamp. The broker calls
// this on every inbound frame, including ping, so the inactivity reaper can
// tell a quiet-but-open socket from one that vanished uncleanly.
func (s *ParticipantStore) TouchLastSeen(ctx context.Context, id int64) error {
	const query = `UPDATE participants SET last_seen_at = now() WHERE id = $1`
	if _, err := s.db.Exec(ctx, query, id); err != nil {
		return apperr.Storage("failed to touch participant %d: %v", id, err)
	}
	return nil
}

// GetStaleParticipants returns participants across all rooms whose
// last_seen_at predates the cutoff, for the archival sweep's cleanup pass.
func (s *ParticipantStore) GetStaleParticipants(ctx context.Context, cutoff time.Time) ([]*Participant, error) {
	const query = `
		SELECT id, room_id, role, device_id, display_name, ip_address, joined_at, last_seen_at
		FROM participants WHERE last_seen_at < $1
	`
	rows, err := s.db.Query(ctx, query, cutoff)
	if err != nil {
		return nil, apperr.Storage("failed to list stale participants: %v", err)
	}
	defer rows.Close()

	var out []*Participant
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.ID, &p.RoomID, &p.Role, &p.DeviceID, &p.DisplayName, &p.IPAddress, &p.JoinedAt, &p.LastSeenAt); err != nil {
			return nil, apperr.Storage("failed to scan stale participant: %v", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// RemoveParticipant unconditionally deletes a participant row. A
// disconnect always removes the row (no soft-disconnect state is kept), so
// a subsequent join from the same device is a fresh join, never a resume.
func (s *ParticipantStore) RemoveParticipant(ctx context.Context, id int64) error {
	const query = `DELETE FROM participants WHERE id = $1`
	if _, err := s.db.Exec(ctx, query, id); err != nil {
		return apperr.Storage("failed to remove participant %d: %v", id, err)
	}
	return nil
}

// SetDisplayName updates the announced display name for a participant.
func (s *ParticipantStore) SetDisplayName(ctx context.Context, id int64, name string) error {
	const query = `UPDATE participants SET display_name = $2 WHERE id = $1`
	tag, err := s.db.Exec(ctx, query, id, name)
	if err != nil {
		return apperr.Storage("failed to set display name for participant %d: %v", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("participant %d not found", id)
	}
	return nil
}

// ValidateDeviceAccess confirms deviceID owns a participant row in roomID.
func (s *ParticipantStore) ValidateDeviceAccess(ctx context.Context, roomID, deviceID string) (bool, error) {
	p, err := s.GetParticipantByDevice(ctx, roomID, deviceID)
	if err != nil {
		return false, err
	}
	return p != nil, nil
}
